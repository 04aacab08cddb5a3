package repository

import (
	"context"
	"errors"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// RoutingRepository 工艺路线仓库
type RoutingRepository struct {
	db *gorm.DB
}

func NewRoutingRepository(db *gorm.DB) *RoutingRepository {
	return &RoutingRepository{db: db}
}

// Create 创建工艺路线
func (r *RoutingRepository) Create(ctx context.Context, routing *entity.ProductionRouting) error {
	return r.db.WithContext(ctx).Create(routing).Error
}

// FindByID 根据ID查找工艺路线（含工序）
func (r *RoutingRepository) FindByID(ctx context.Context, id string) (*entity.ProductionRouting, error) {
	var routing entity.ProductionRouting
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_number")
		}).
		First(&routing, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &routing, nil
}

// FindActiveByBomItem 查找BOM节点上直接定义的激活路线
// 没有返回 nil, nil：无路线是合法常态，不是错误。
func (r *RoutingRepository) FindActiveByBomItem(ctx context.Context, bomItemID string) (*entity.ProductionRouting, error) {
	var routing entity.ProductionRouting
	err := r.db.WithContext(ctx).
		Where("bom_item_id = ? AND is_active = ?", bomItemID, true).
		First(&routing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &routing, nil
}

// FindActiveByOrder 查找订单上直接挂载的激活路线
func (r *RoutingRepository) FindActiveByOrder(ctx context.Context, orderID string) (*entity.ProductionRouting, error) {
	var routing entity.ProductionRouting
	err := r.db.WithContext(ctx).
		Where("manufacturing_order_id = ? AND is_active = ?", orderID, true).
		First(&routing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &routing, nil
}

// Update 更新工艺路线
func (r *RoutingRepository) Update(ctx context.Context, routing *entity.ProductionRouting) error {
	return r.db.WithContext(ctx).Save(routing).Error
}

// CreateStep 创建工序
func (r *RoutingRepository) CreateStep(ctx context.Context, step *entity.RoutingStep) error {
	return r.db.WithContext(ctx).Create(step).Error
}

// UpdateStep 更新工序
func (r *RoutingRepository) UpdateStep(ctx context.Context, step *entity.RoutingStep) error {
	return r.db.WithContext(ctx).Save(step).Error
}

// FindStep 根据ID查找工序
func (r *RoutingRepository) FindStep(ctx context.Context, id string) (*entity.RoutingStep, error) {
	var step entity.RoutingStep
	err := r.db.WithContext(ctx).Preload("DependsOnStep").First(&step, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// StepsByRouting 路线下全部工序（按工序号）
func (r *RoutingRepository) StepsByRouting(ctx context.Context, routingID string) ([]entity.RoutingStep, error) {
	var steps []entity.RoutingStep
	err := r.db.WithContext(ctx).
		Where("routing_id = ?", routingID).
		Order("step_number").
		Find(&steps).Error
	return steps, err
}

// StepByNumber 根据工序号查找工序
func (r *RoutingRepository) StepByNumber(ctx context.Context, routingID string, stepNumber int) (*entity.RoutingStep, error) {
	var step entity.RoutingStep
	err := r.db.WithContext(ctx).
		Where("routing_id = ? AND step_number = ?", routingID, stepNumber).
		First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// MaxStepNumber 路线内最大工序号
func (r *RoutingRepository) MaxStepNumber(ctx context.Context, routingID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&entity.RoutingStep{}).
		Where("routing_id = ?", routingID).
		Select("COALESCE(MAX(step_number), 0)").Scan(&max).Error
	return max, err
}

// FindReworkStepFor 查找依赖指定工序的返工工序（避免重复插入）
// 质检失败处置在事务内调用，读必须走同一事务。
func (r *RoutingRepository) FindReworkStepFor(tx *gorm.DB, routingID, failedStepID string) (*entity.RoutingStep, error) {
	var step entity.RoutingStep
	err := tx.
		Where("routing_id = ? AND step_type = ? AND depends_on_step_id = ?",
			routingID, entity.StepTypeRework, failedStepID).
		First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// CountOpenSteps 路线内未终止的工序数量
// 完成判定在事务内调用，读必须走同一事务。
func (r *RoutingRepository) CountOpenSteps(tx *gorm.DB, routingID string) (int64, error) {
	var count int64
	err := tx.Model(&entity.RoutingStep{}).
		Where("routing_id = ? AND status NOT IN ?", routingID,
			[]string{entity.StepStatusCompleted, entity.StepStatusSkipped}).
		Count(&count).Error
	return count, err
}
