package repository

import (
	"context"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityLogRepository 业务事件仓库
type ActivityLogRepository struct {
	db *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create 创建事件记录
func (r *ActivityLogRepository) Create(ctx context.Context, log *entity.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByEntity 查询某实体的事件记录
func (r *ActivityLogRepository) FindByEntity(ctx context.Context, entityType, entityID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	var items []entity.ActivityLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ActivityLog{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// LogActivity 便捷记录事件
// 写入失败不阻断业务流程，由调用方决定是否关心返回错误。
func (r *ActivityLogRepository) LogActivity(ctx context.Context, entityType, entityID, entityCode, action, fromStatus, toStatus, content, operatorID string) error {
	log := &entity.ActivityLog{
		ID:         uuid.New().String(),
		EntityType: entityType,
		EntityID:   entityID,
		EntityCode: entityCode,
		Action:     action,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Content:    content,
		OperatorID: operatorID,
	}
	return r.db.WithContext(ctx).Create(log).Error
}
