package repository

import (
	"context"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// ItemRepository 物料仓库
type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create 创建物料
func (r *ItemRepository) Create(ctx context.Context, item *entity.Item) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// FindByID 根据ID查找物料
func (r *ItemRepository) FindByID(ctx context.Context, id string) (*entity.Item, error) {
	var item entity.Item
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByCode 根据编码查找物料
func (r *ItemRepository) FindByCode(ctx context.Context, code string) (*entity.Item, error) {
	var item entity.Item
	err := r.db.WithContext(ctx).First(&item, "code = ?", code).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// List 物料列表
func (r *ItemRepository) List(ctx context.Context, status string, page, pageSize int) ([]entity.Item, int64, error) {
	var items []entity.Item
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Item{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("code").Offset(offset).Limit(pageSize).Find(&items).Error
	return items, total, err
}

// Update 更新物料
func (r *ItemRepository) Update(ctx context.Context, item *entity.Item) error {
	return r.db.WithContext(ctx).Save(item).Error
}
