package repository

import (
	"context"
	"errors"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// BOMRepository BOM仓库
type BOMRepository struct {
	db *gorm.DB
}

func NewBOMRepository(db *gorm.DB) *BOMRepository {
	return &BOMRepository{db: db}
}

func (r *BOMRepository) DB() *gorm.DB {
	return r.db
}

// Create 创建BOM
func (r *BOMRepository) Create(ctx context.Context, bom *entity.BillOfMaterial) error {
	return r.db.WithContext(ctx).Create(bom).Error
}

// FindByID 根据ID查找BOM（含版本列表）
func (r *BOMRepository) FindByID(ctx context.Context, id string) (*entity.BillOfMaterial, error) {
	var bom entity.BillOfMaterial
	err := r.db.WithContext(ctx).
		Preload("OutputItem").
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("version_number")
		}).
		First(&bom, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &bom, nil
}

// CountByNumberPrefix 统计指定编号前缀的BOM数量（月度流水号用）
func (r *BOMRepository) CountByNumberPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.BillOfMaterial{}).
		Where("number LIKE ?", prefix+"%").Count(&count).Error
	return count, err
}

// Update 更新BOM
func (r *BOMRepository) Update(ctx context.Context, bom *entity.BillOfMaterial) error {
	return r.db.WithContext(ctx).Save(bom).Error
}

// CurrentVersion 获取BOM的当前版本
// 没有当前版本返回 ErrNotFound。
func (r *BOMRepository) CurrentVersion(ctx context.Context, bomID string) (*entity.BomVersion, error) {
	var version entity.BomVersion
	err := r.db.WithContext(ctx).
		Where("bill_of_material_id = ? AND is_current = ?", bomID, true).
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// FindVersion 根据ID查找版本
func (r *BOMRepository) FindVersion(ctx context.Context, versionID string) (*entity.BomVersion, error) {
	var version entity.BomVersion
	err := r.db.WithContext(ctx).First(&version, "id = ?", versionID).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// CreateVersion 创建版本
func (r *BOMRepository) CreateVersion(ctx context.Context, version *entity.BomVersion) error {
	return r.db.WithContext(ctx).Create(version).Error
}

// UpdateVersion 更新版本
func (r *BOMRepository) UpdateVersion(ctx context.Context, version *entity.BomVersion) error {
	return r.db.WithContext(ctx).Save(version).Error
}

// MaxVersionNumber 获取BOM的最大版本号
func (r *BOMRepository) MaxVersionNumber(ctx context.Context, bomID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&entity.BomVersion{}).
		Where("bill_of_material_id = ?", bomID).
		Select("COALESCE(MAX(version_number), 0)").Scan(&max).Error
	return max, err
}

// CreateItem 创建BOM节点
func (r *BOMRepository) CreateItem(ctx context.Context, item *entity.BomItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// UpdateItem 更新BOM节点
func (r *BOMRepository) UpdateItem(ctx context.Context, item *entity.BomItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// FindItem 根据ID查找BOM节点
func (r *BOMRepository) FindItem(ctx context.Context, id string) (*entity.BomItem, error) {
	var item entity.BomItem
	err := r.db.WithContext(ctx).Preload("Item").First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemsByVersion 版本下全部节点（按层级和兄弟顺序）
func (r *BOMRepository) ItemsByVersion(ctx context.Context, versionID string) ([]entity.BomItem, error) {
	var items []entity.BomItem
	err := r.db.WithContext(ctx).
		Preload("Item").
		Where("bom_version_id = ?", versionID).
		Order("level, sequence_number").
		Find(&items).Error
	return items, err
}

// RootItems 版本的根节点列表
// 不变量检查方使用：合法版本最多一个根。
func (r *BOMRepository) RootItems(ctx context.Context, versionID string) ([]entity.BomItem, error) {
	var items []entity.BomItem
	err := r.db.WithContext(ctx).
		Preload("Item").
		Where("bom_version_id = ? AND parent_item_id IS NULL", versionID).
		Find(&items).Error
	return items, err
}
