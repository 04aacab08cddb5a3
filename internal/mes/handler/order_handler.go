package handler

import (
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// OrderHandler 制造订单接口
type OrderHandler struct {
	svc *service.ExplosionService
}

func NewOrderHandler(svc *service.ExplosionService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Create 创建顶层订单
// POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	var input service.CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.svc.CreateOrder(c.Request.Context(), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, order)
}

// Get 订单详情
// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, order)
}

// List 订单列表
// GET /api/v1/orders?status=&root_only=
func (h *OrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	rootOnly := c.Query("root_only") == "true"
	orders, total, err := h.svc.ListOrders(c.Request.Context(), c.Query("status"), rootOnly, page, pageSize)
	if err != nil {
		InternalError(c, "获取订单列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{
		Items: orders,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		},
	})
}

// GetTree 订单树（根订单及全部后代）
// GET /api/v1/orders/:id/tree
func (h *OrderHandler) GetTree(c *gin.Context) {
	root, descendants, err := h.svc.GetOrderTree(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"root": root, "descendants": descendants})
}

// Explode 按BOM展开订单树
// POST /api/v1/orders/:id/explode
func (h *OrderHandler) Explode(c *gin.Context) {
	created, err := h.svc.Explode(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, gin.H{"created": created, "count": len(created)})
}

// Release 下发订单
// POST /api/v1/orders/:id/release
func (h *OrderHandler) Release(c *gin.Context) {
	order, err := h.svc.Release(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, order)
}

// Cancel 取消订单（级联子树）
// POST /api/v1/orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	if err := h.svc.Cancel(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"message": "订单已取消"})
}
