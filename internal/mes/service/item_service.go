package service

import (
	"context"
	"fmt"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/google/uuid"
)

// ItemService 物料服务
type ItemService struct {
	itemRepo *repository.ItemRepository
	bomRepo  *repository.BOMRepository
}

func NewItemService(itemRepo *repository.ItemRepository, bomRepo *repository.BOMRepository) *ItemService {
	return &ItemService{itemRepo: itemRepo, bomRepo: bomRepo}
}

type CreateItemInput struct {
	Code              string `json:"code" binding:"required"`
	Name              string `json:"name" binding:"required"`
	Description       string `json:"description"`
	Unit              string `json:"unit"`
	CanBeManufactured bool   `json:"can_be_manufactured"`
	CanBePurchased    bool   `json:"can_be_purchased"`
	CanBeSold         bool   `json:"can_be_sold"`
	IsPhantom         bool   `json:"is_phantom"`
}

// CreateItem 创建物料
func (s *ItemService) CreateItem(ctx context.Context, input *CreateItemInput, createdBy string) (*entity.Item, error) {
	if existing, _ := s.itemRepo.FindByCode(ctx, input.Code); existing != nil {
		return nil, validationErrorf("物料编码 %s 已存在", input.Code)
	}

	unit := input.Unit
	if unit == "" {
		unit = "pcs"
	}
	item := &entity.Item{
		ID:                uuid.New().String(),
		Code:              input.Code,
		Name:              input.Name,
		Description:       input.Description,
		Unit:              unit,
		CanBeManufactured: input.CanBeManufactured,
		CanBePurchased:    input.CanBePurchased,
		CanBeSold:         input.CanBeSold,
		IsPhantom:         input.IsPhantom,
		Status:            entity.ItemStatusActive,
		CreatedBy:         createdBy,
	}
	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("创建物料失败: %w", err)
	}
	return item, nil
}

// SetPrimaryBOM 设置物料的主BOM
// 订单展开走到该物料时会用主BOM重新锚定为新的顶层订单。
func (s *ItemService) SetPrimaryBOM(ctx context.Context, itemID, bomID string) error {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("物料不存在: %w", err)
	}
	bom, err := s.bomRepo.FindByID(ctx, bomID)
	if err != nil {
		return fmt.Errorf("BOM不存在: %w", err)
	}
	if bom.OutputItemID != item.ID {
		return validationErrorf("BOM %s 的产出物料不是 %s", bom.Number, item.Code)
	}

	item.PrimaryBomID = &bom.ID
	return s.itemRepo.Update(ctx, item)
}

// GetItem 物料详情
func (s *ItemService) GetItem(ctx context.Context, id string) (*entity.Item, error) {
	return s.itemRepo.FindByID(ctx, id)
}

// ListItems 物料列表
func (s *ItemService) ListItems(ctx context.Context, status string, page, pageSize int) ([]entity.Item, int64, error) {
	return s.itemRepo.List(ctx, status, page, pageSize)
}

// UpdateItem 更新物料基本信息
func (s *ItemService) UpdateItem(ctx context.Context, id string, input *CreateItemInput) (*entity.Item, error) {
	item, err := s.itemRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("物料不存在: %w", err)
	}

	item.Name = input.Name
	item.Description = input.Description
	if input.Unit != "" {
		item.Unit = input.Unit
	}
	item.CanBeManufactured = input.CanBeManufactured
	item.CanBePurchased = input.CanBePurchased
	item.CanBeSold = input.CanBeSold
	item.IsPhantom = input.IsPhantom

	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}
