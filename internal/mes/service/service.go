package service

import (
	"github.com/db-puzzle/maintenance-OS-sub006/internal/config"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Item      *ItemService
	BOM       *BOMService
	Routing   *RoutingService
	Explosion *ExplosionService
	Execution *ExecutionService
	Scheduler *SchedulerService
	WorkCell  *WorkCellService
}

// NewServices 创建服务集合
// Redis可用时路线解析缓存走Redis，否则退化为进程内缓存。
func NewServices(repos *repository.Repositories, db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Services {
	var cache RoutingCache
	if rdb != nil {
		cache = NewRedisRoutingCache(rdb)
	} else {
		cache = NewMemoryRoutingCache()
	}

	routingSvc := NewRoutingService(repos.Routing, repos.BOM, repos.ActivityLog, cache, db)

	return &Services{
		Item:      NewItemService(repos.Item, repos.BOM),
		BOM:       NewBOMService(repos.BOM, repos.Item, repos.ActivityLog, db),
		Routing:   routingSvc,
		Explosion: NewExplosionService(repos.Order, repos.BOM, repos.Item, repos.ActivityLog, db),
		Execution: NewExecutionService(repos.Routing, repos.Execution, repos.Order, repos.ActivityLog, db),
		Scheduler: NewSchedulerService(repos.Order, repos.BOM, routingSvc, repos.WorkCell,
			repos.Schedule, repos.ActivityLog, PolicyFromConfig(cfg.Scheduling), db),
		WorkCell: NewWorkCellService(repos.WorkCell, repos.Schedule),
	}
}
