package repository

import (
	"context"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkCellRepository 工作单元仓库
type WorkCellRepository struct {
	db *gorm.DB
}

func NewWorkCellRepository(db *gorm.DB) *WorkCellRepository {
	return &WorkCellRepository{db: db}
}

// Create 创建工作单元
func (r *WorkCellRepository) Create(ctx context.Context, cell *entity.WorkCell) error {
	return r.db.WithContext(ctx).Create(cell).Error
}

// FindByID 根据ID查找工作单元
func (r *WorkCellRepository) FindByID(ctx context.Context, id string) (*entity.WorkCell, error) {
	var cell entity.WorkCell
	err := r.db.WithContext(ctx).First(&cell, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &cell, nil
}

// FindByIDForUpdate 行锁读取工作单元
// 槽位搜索+写入期间对该工作单元互斥，避免并发分配同一空档。
func (r *WorkCellRepository) FindByIDForUpdate(tx *gorm.DB, id string) (*entity.WorkCell, error) {
	var cell entity.WorkCell
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&cell, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &cell, nil
}

// List 工作单元列表
func (r *WorkCellRepository) List(ctx context.Context, activeOnly bool) ([]entity.WorkCell, error) {
	var cells []entity.WorkCell
	query := r.db.WithContext(ctx)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("code").Find(&cells).Error
	return cells, err
}

// Update 更新工作单元
func (r *WorkCellRepository) Update(ctx context.Context, cell *entity.WorkCell) error {
	return r.db.WithContext(ctx).Save(cell).Error
}
