package repository

import (
	"context"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository 制造订单仓库
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) DB() *gorm.DB {
	return r.db
}

// Create 创建订单
func (r *OrderRepository) Create(ctx context.Context, order *entity.ManufacturingOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID 根据ID查找订单
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.ManufacturingOrder, error) {
	var order entity.ManufacturingOrder
	err := r.db.WithContext(ctx).
		Preload("Item").
		Preload("BillOfMaterial").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIDForUpdate 行锁读取订单
// 完成传播的计数器更新必须在锁内进行，先加后查必须原子化。
func (r *OrderRepository) FindByIDForUpdate(tx *gorm.DB, id string) (*entity.ManufacturingOrder, error) {
	var order entity.ManufacturingOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Update 更新订单
func (r *OrderRepository) Update(ctx context.Context, order *entity.ManufacturingOrder) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// CountRootOrdersForMonth 统计某月的顶层订单数量（MO-NNNNN-YYMM 流水号用）
func (r *OrderRepository) CountRootOrdersForMonth(ctx context.Context, yymm string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ManufacturingOrder{}).
		Where("parent_id IS NULL AND number LIKE ?", "MO-%-"+yymm).
		Count(&count).Error
	return count, err
}

// List 订单列表
func (r *OrderRepository) List(ctx context.Context, status string, rootOnly bool, page, pageSize int) ([]entity.ManufacturingOrder, int64, error) {
	var orders []entity.ManufacturingOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ManufacturingOrder{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if rootOnly {
		query = query.Where("parent_id IS NULL")
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Item").
		Order("created_at DESC").
		Offset(offset).Limit(pageSize).
		Find(&orders).Error
	return orders, total, err
}

// Descendants 订单的全部后代（逐层查找）
func (r *OrderRepository) Descendants(ctx context.Context, rootID string) ([]entity.ManufacturingOrder, error) {
	var result []entity.ManufacturingOrder
	frontier := []string{rootID}
	for len(frontier) > 0 {
		var batch []entity.ManufacturingOrder
		if err := r.db.WithContext(ctx).
			Where("parent_id IN ?", frontier).
			Find(&batch).Error; err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		frontier = frontier[:0]
		for _, o := range batch {
			frontier = append(frontier, o.ID)
		}
		result = append(result, batch...)
	}
	return result, nil
}
