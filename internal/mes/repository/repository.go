package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	Item        *ItemRepository
	BOM         *BOMRepository
	Routing     *RoutingRepository
	Order       *OrderRepository
	WorkCell    *WorkCellRepository
	Schedule    *ScheduleRepository
	Execution   *ExecutionRepository
	ActivityLog *ActivityLogRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Item:        NewItemRepository(db),
		BOM:         NewBOMRepository(db),
		Routing:     NewRoutingRepository(db),
		Order:       NewOrderRepository(db),
		WorkCell:    NewWorkCellRepository(db),
		Schedule:    NewScheduleRepository(db),
		Execution:   NewExecutionRepository(db),
		ActivityLog: NewActivityLogRepository(db),
	}
}
