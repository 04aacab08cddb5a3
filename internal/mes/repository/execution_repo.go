package repository

import (
	"context"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// ExecutionRepository 工序执行记录仓库
type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create 创建执行记录
func (r *ExecutionRepository) Create(ctx context.Context, exec *entity.ManufacturingStepExecution) error {
	return r.db.WithContext(ctx).Create(exec).Error
}

// BatchCreate 批量创建执行记录（逐件/抽样质检扇出）
func (r *ExecutionRepository) BatchCreate(ctx context.Context, execs []entity.ManufacturingStepExecution) error {
	if len(execs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&execs).Error
}

// FindByID 根据ID查找执行记录
func (r *ExecutionRepository) FindByID(ctx context.Context, id string) (*entity.ManufacturingStepExecution, error) {
	var exec entity.ManufacturingStepExecution
	err := r.db.WithContext(ctx).
		Preload("RoutingStep").
		First(&exec, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// Update 更新执行记录
func (r *ExecutionRepository) Update(ctx context.Context, exec *entity.ManufacturingStepExecution) error {
	return r.db.WithContext(ctx).Save(exec).Error
}

// ByStep 某工序的全部执行记录（按件序号）
func (r *ExecutionRepository) ByStep(ctx context.Context, stepID string) ([]entity.ManufacturingStepExecution, error) {
	var execs []entity.ManufacturingStepExecution
	err := r.db.WithContext(ctx).
		Where("routing_step_id = ?", stepID).
		Order("part_number").
		Find(&execs).Error
	return execs, err
}

// CountOpenByStep 某工序未关闭的执行记录数量
func (r *ExecutionRepository) CountOpenByStep(ctx context.Context, stepID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ManufacturingStepExecution{}).
		Where("routing_step_id = ? AND status NOT IN ?", stepID,
			[]string{entity.ExecutionStatusCompleted, entity.ExecutionStatusSkipped}).
		Count(&count).Error
	return count, err
}
