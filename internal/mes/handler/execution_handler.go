package handler

import (
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// ExecutionHandler 工序执行接口
// 工序状态流转都挂在订单上下文下，步骤ID来自该订单解析出的路线。
type ExecutionHandler struct {
	svc *service.ExecutionService
}

func NewExecutionHandler(svc *service.ExecutionService) *ExecutionHandler {
	return &ExecutionHandler{svc: svc}
}

// QueueStep 工序入队
// POST /api/v1/steps/:id/queue
func (h *ExecutionHandler) QueueStep(c *gin.Context) {
	step, err := h.svc.QueueStep(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, step)
}

// StartStep 启动工序（按质检模式铺开执行记录）
// POST /api/v1/orders/:id/steps/:stepId/start
func (h *ExecutionHandler) StartStep(c *gin.Context) {
	execs, err := h.svc.StartStep(c.Request.Context(), c.Param("id"), c.Param("stepId"), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"executions": execs, "count": len(execs)})
}

// CompleteStep 完成工序（触发订单完成判定与向上冒泡）
// POST /api/v1/orders/:id/steps/:stepId/complete
func (h *ExecutionHandler) CompleteStep(c *gin.Context) {
	if err := h.svc.CompleteStep(c.Request.Context(), c.Param("id"), c.Param("stepId"), GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"message": "工序已完成"})
}

// HoldStep 暂停工序
// POST /api/v1/steps/:id/hold
func (h *ExecutionHandler) HoldStep(c *gin.Context) {
	if err := h.svc.HoldStep(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"message": "工序已暂停"})
}

// ResumeStep 恢复工序
// POST /api/v1/steps/:id/resume
func (h *ExecutionHandler) ResumeStep(c *gin.Context) {
	if err := h.svc.ResumeStep(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"message": "工序已恢复"})
}

// SkipStep 跳过工序
// POST /api/v1/steps/:id/skip
func (h *ExecutionHandler) SkipStep(c *gin.Context) {
	if err := h.svc.SkipStep(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"message": "工序已跳过"})
}

// ListExecutions 工序的执行记录
// GET /api/v1/steps/:id/executions
func (h *ExecutionHandler) ListExecutions(c *gin.Context) {
	execs, err := h.svc.ListExecutions(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": execs})
}

// CompleteExecution 关闭执行记录（质检结果+失败处置）
// POST /api/v1/executions/:id/complete
func (h *ExecutionHandler) CompleteExecution(c *gin.Context) {
	var input service.CompleteExecutionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	exec, err := h.svc.CompleteExecution(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, exec)
}
