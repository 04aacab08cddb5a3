package repository

import (
	"context"
	"time"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"gorm.io/gorm"
)

// ScheduleRepository 生产排程仓库
type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create 创建排程
func (r *ScheduleRepository) Create(ctx context.Context, schedule *entity.ProductionSchedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

// FindByID 根据ID查找排程
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*entity.ProductionSchedule, error) {
	var schedule entity.ProductionSchedule
	err := r.db.WithContext(ctx).
		Preload("WorkCell").
		First(&schedule, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// Update 更新排程
func (r *ScheduleRepository) Update(ctx context.Context, schedule *entity.ProductionSchedule) error {
	return r.db.WithContext(ctx).Save(schedule).Error
}

// ActiveByWorkCell 工作单元上从某时刻起的活动排程（按开始时间）
func (r *ScheduleRepository) ActiveByWorkCell(ctx context.Context, workCellID string, from time.Time) ([]entity.ProductionSchedule, error) {
	var schedules []entity.ProductionSchedule
	err := r.db.WithContext(ctx).
		Where("work_cell_id = ? AND status IN ? AND scheduled_end > ?",
			workCellID, entity.ActiveScheduleStatuses, from).
		Order("scheduled_start").
		Find(&schedules).Error
	return schedules, err
}

// HasOverlap 工作单元在 [start, end) 内是否存在与活动排程的重叠
// excludeID 用于改期时排除排程自身。
func (r *ScheduleRepository) HasOverlap(ctx context.Context, workCellID string, start, end time.Time, excludeID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&entity.ProductionSchedule{}).
		Where("work_cell_id = ? AND status IN ?", workCellID, entity.ActiveScheduleStatuses).
		Where("scheduled_start < ? AND scheduled_end > ?", end, start)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

// ByOrder 某订单的全部排程（按开始时间）
func (r *ScheduleRepository) ByOrder(ctx context.Context, orderID string) ([]entity.ProductionSchedule, error) {
	var schedules []entity.ProductionSchedule
	err := r.db.WithContext(ctx).
		Where("manufacturing_order_id = ?", orderID).
		Order("scheduled_start").
		Find(&schedules).Error
	return schedules, err
}

// ByStep 某工序的排程
func (r *ScheduleRepository) ByStep(ctx context.Context, stepID string) ([]entity.ProductionSchedule, error) {
	var schedules []entity.ProductionSchedule
	err := r.db.WithContext(ctx).
		Where("routing_step_id = ?", stepID).
		Order("scheduled_start").
		Find(&schedules).Error
	return schedules, err
}

// CancelByOrder 取消订单的全部活动排程
func (r *ScheduleRepository) CancelByOrder(ctx context.Context, orderID string) error {
	return r.db.WithContext(ctx).Model(&entity.ProductionSchedule{}).
		Where("manufacturing_order_id = ? AND status IN ?", orderID, entity.ActiveScheduleStatuses).
		Update("status", entity.ScheduleStatusCancelled).Error
}
