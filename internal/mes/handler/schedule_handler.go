package handler

import (
	"time"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// ScheduleHandler 排程接口
type ScheduleHandler struct {
	svc *service.SchedulerService
}

func NewScheduleHandler(svc *service.SchedulerService) *ScheduleHandler {
	return &ScheduleHandler{svc: svc}
}

// ScheduleOrder 为订单排程
// POST /api/v1/orders/:id/schedule
func (h *ScheduleHandler) ScheduleOrder(c *gin.Context) {
	result, err := h.svc.ScheduleProduction(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, result)
}

// ListByOrder 订单排程列表
// GET /api/v1/orders/:id/schedules
func (h *ScheduleHandler) ListByOrder(c *gin.Context) {
	schedules, err := h.svc.ListByOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": schedules})
}

// Reschedule 排程改期（级联同订单下游排程）
// PUT /api/v1/schedules/:id/reschedule
func (h *ScheduleHandler) Reschedule(c *gin.Context) {
	var input struct {
		NewStart time.Time `json:"new_start" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if err := h.svc.Reschedule(c.Request.Context(), c.Param("id"), input.NewStart); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"message": "排程已改期"})
}

// MarkDelayed 标记延误
// POST /api/v1/schedules/:id/delay
func (h *ScheduleHandler) MarkDelayed(c *gin.Context) {
	var input struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&input)

	if err := h.svc.MarkDelayed(c.Request.Context(), c.Param("id"), input.Reason, GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"message": "已标记延误"})
}

// WorkCellLoad 工作单元负载
// GET /api/v1/work-cells/:id/load?from=&to=
func (h *ScheduleHandler) WorkCellLoad(c *gin.Context) {
	from := time.Now()
	to := from.AddDate(0, 0, 7)
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}

	minutes, schedules, err := h.svc.WorkCellLoad(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{
		"scheduled_minutes": minutes,
		"items":             schedules,
	})
}
