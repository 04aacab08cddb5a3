package handler

import (
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// RoutingHandler 生产路线接口
type RoutingHandler struct {
	svc *service.RoutingService
}

func NewRoutingHandler(svc *service.RoutingService) *RoutingHandler {
	return &RoutingHandler{svc: svc}
}

// Create 创建路线
// POST /api/v1/routings
func (h *RoutingHandler) Create(c *gin.Context) {
	var input service.CreateRoutingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	routing, err := h.svc.CreateRouting(c.Request.Context(), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, routing)
}

// Get 路线详情（含工序）
// GET /api/v1/routings/:id
func (h *RoutingHandler) Get(c *gin.Context) {
	routing, err := h.svc.GetRouting(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, routing)
}

// AddStep 追加工序
// POST /api/v1/routings/:id/steps
func (h *RoutingHandler) AddStep(c *gin.Context) {
	var input service.AddStepInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	step, err := h.svc.AddStep(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, step)
}

// ResolveForOrder 订单直挂的激活路线
// GET /api/v1/orders/:id/routing
func (h *RoutingHandler) ResolveForOrder(c *gin.Context) {
	routing, err := h.svc.ResolveForOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	if routing == nil {
		NotFound(c, "订单没有直挂路线")
		return
	}
	Success(c, routing)
}

// Resolve BOM节点的有效路线（沿父链继承）
// GET /api/v1/bom-items/:id/routing
func (h *RoutingHandler) Resolve(c *gin.Context) {
	routing, err := h.svc.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	if routing == nil {
		NotFound(c, "该节点没有可用路线")
		return
	}
	Success(c, routing)
}

// Override 在BOM节点上覆盖路线
// PUT /api/v1/bom-items/:id/routing
func (h *RoutingHandler) Override(c *gin.Context) {
	var input struct {
		RoutingID string `json:"routing_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	routing, err := h.svc.Override(c.Request.Context(), c.Param("id"), input.RoutingID, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, routing)
}

// InheritanceTree 路线继承链诊断
// GET /api/v1/bom-items/:id/routing/inheritance
func (h *RoutingHandler) InheritanceTree(c *gin.Context) {
	chain, err := h.svc.InheritanceTree(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"chain": chain})
}
