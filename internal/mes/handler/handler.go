package handler

import (
	"errors"
	"strconv"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/service"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handlers 处理器集合
type Handlers struct {
	Item      *ItemHandler
	BOM       *BOMHandler
	Routing   *RoutingHandler
	Order     *OrderHandler
	Execution *ExecutionHandler
	Schedule  *ScheduleHandler
	WorkCell  *WorkCellHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Item:      NewItemHandler(svc.Item),
		BOM:       NewBOMHandler(svc.BOM),
		Routing:   NewRoutingHandler(svc.Routing),
		Order:     NewOrderHandler(svc.Explosion),
		Execution: NewExecutionHandler(svc.Execution),
		Schedule:  NewScheduleHandler(svc.Scheduler),
		WorkCell:  NewWorkCellHandler(svc.WorkCell),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 资源冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// ServiceError 业务错误统一映射
// 参数校验 400；记录不存在 404；依赖/排程冲突 409；结构错误 422。
func ServiceError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var structuralErr *service.StructuralError
	var dependencyErr *service.DependencyError
	var conflictErr *service.ConflictError

	switch {
	case errors.As(err, &validationErr):
		BadRequest(c, validationErr.Message)
	case errors.As(err, &structuralErr):
		Error(c, 42200, structuralErr.Message)
	case errors.As(err, &dependencyErr):
		Error(c, 40901, dependencyErr.Message)
	case errors.As(err, &conflictErr):
		Conflict(c, conflictErr.Message)
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// ============================================================
// Item Handler
// ============================================================

type ItemHandler struct {
	svc *service.ItemService
}

func NewItemHandler(svc *service.ItemService) *ItemHandler {
	return &ItemHandler{svc: svc}
}

func (h *ItemHandler) Create(c *gin.Context) {
	var input service.CreateItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	item, err := h.svc.CreateItem(c.Request.Context(), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, item)
}

func (h *ItemHandler) Get(c *gin.Context) {
	item, err := h.svc.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, item)
}

func (h *ItemHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.ListItems(c.Request.Context(), c.Query("status"), page, pageSize)
	if err != nil {
		InternalError(c, "获取物料列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		},
	})
}

func (h *ItemHandler) Update(c *gin.Context) {
	var input service.CreateItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	item, err := h.svc.UpdateItem(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, item)
}

// SetPrimaryBOM 设置物料主BOM
// PUT /api/v1/items/:id/primary-bom
func (h *ItemHandler) SetPrimaryBOM(c *gin.Context) {
	var input struct {
		BomID string `json:"bom_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if err := h.svc.SetPrimaryBOM(c.Request.Context(), c.Param("id"), input.BomID); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"message": "主BOM已设置"})
}

// ============================================================
// WorkCell Handler
// ============================================================

type WorkCellHandler struct {
	svc *service.WorkCellService
}

func NewWorkCellHandler(svc *service.WorkCellService) *WorkCellHandler {
	return &WorkCellHandler{svc: svc}
}

func (h *WorkCellHandler) Create(c *gin.Context) {
	var input service.CreateWorkCellInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	cell, err := h.svc.CreateWorkCell(c.Request.Context(), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, cell)
}

func (h *WorkCellHandler) Get(c *gin.Context) {
	cell, err := h.svc.GetWorkCell(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, cell)
}

func (h *WorkCellHandler) List(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	cells, err := h.svc.ListWorkCells(c.Request.Context(), activeOnly)
	if err != nil {
		InternalError(c, "获取工作单元列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": cells})
}

func (h *WorkCellHandler) Update(c *gin.Context) {
	var input service.CreateWorkCellInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	cell, err := h.svc.UpdateWorkCell(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, cell)
}

// SetActive 启用/停用工作单元
// PUT /api/v1/work-cells/:id/active
func (h *WorkCellHandler) SetActive(c *gin.Context) {
	var input struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if err := h.svc.SetActive(c.Request.Context(), c.Param("id"), *input.Active); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"message": "状态已更新"})
}
