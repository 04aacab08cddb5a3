package handler

import (
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// BOMHandler BOM接口
type BOMHandler struct {
	svc *service.BOMService
}

func NewBOMHandler(svc *service.BOMService) *BOMHandler {
	return &BOMHandler{svc: svc}
}

// Create 创建BOM
// POST /api/v1/boms
func (h *BOMHandler) Create(c *gin.Context) {
	var input service.CreateBOMInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	bom, err := h.svc.CreateBOM(c.Request.Context(), &input, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, bom)
}

// Get BOM详情
// GET /api/v1/boms/:id
func (h *BOMHandler) Get(c *gin.Context) {
	bom, err := h.svc.GetBOM(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, bom)
}

// AddItem 向版本追加节点
// POST /api/v1/bom-versions/:id/items
func (h *BOMHandler) AddItem(c *gin.Context) {
	var input service.AddBomItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	item, err := h.svc.AddItem(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, item)
}

// GetTree 版本节点树
// GET /api/v1/bom-versions/:id/tree
func (h *BOMHandler) GetTree(c *gin.Context) {
	tree, err := h.svc.GetTree(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"items": tree})
}

// Publish 发布版本
// POST /api/v1/bom-versions/:id/publish
func (h *BOMHandler) Publish(c *gin.Context) {
	var input struct {
		Notes string `json:"notes"`
	}
	_ = c.ShouldBindJSON(&input)

	version, err := h.svc.PublishVersion(c.Request.Context(), c.Param("id"), input.Notes, GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, version)
}

// Clone 克隆版本
// POST /api/v1/bom-versions/:id/clone
func (h *BOMHandler) Clone(c *gin.Context) {
	clone, err := h.svc.CloneVersion(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, clone)
}
