package service

import (
	"context"
	"fmt"
	"time"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoutingService 工艺路线服务
// 路线的创建与挂载、工序维护，以及按BOM节点的继承解析。
// 解析结果按节点ID缓存；路线变更与缓存失效同步发生。
type RoutingService struct {
	routingRepo *repository.RoutingRepository
	bomRepo     *repository.BOMRepository
	logRepo     *repository.ActivityLogRepository
	cache       RoutingCache
	db          *gorm.DB
}

func NewRoutingService(routingRepo *repository.RoutingRepository, bomRepo *repository.BOMRepository, logRepo *repository.ActivityLogRepository, cache RoutingCache, db *gorm.DB) *RoutingService {
	return &RoutingService{routingRepo: routingRepo, bomRepo: bomRepo, logRepo: logRepo, cache: cache, db: db}
}

type CreateRoutingInput struct {
	Name                 string  `json:"name" binding:"required"`
	BomItemID            *string `json:"bom_item_id"`
	ManufacturingOrderID *string `json:"manufacturing_order_id"`
}

// CreateRouting 创建工艺路线
// 挂到BOM节点时视为该节点"定义"的路线，并同步失效相关缓存。
func (s *RoutingService) CreateRouting(ctx context.Context, input *CreateRoutingInput, createdBy string) (*entity.ProductionRouting, error) {
	routing := &entity.ProductionRouting{
		ID:                   uuid.New().String(),
		Number:               fmt.Sprintf("RT-%s-%s", time.Now().Format("0601"), uuid.New().String()[:8]),
		Name:                 input.Name,
		BomItemID:            input.BomItemID,
		ManufacturingOrderID: input.ManufacturingOrderID,
		RoutingType:          entity.RoutingTypeDefined,
		IsActive:             true,
		CreatedBy:            createdBy,
	}

	if input.BomItemID != nil {
		if _, err := s.bomRepo.FindItem(ctx, *input.BomItemID); err != nil {
			return nil, fmt.Errorf("BOM节点不存在: %w", err)
		}
		existing, err := s.routingRepo.FindActiveByBomItem(ctx, *input.BomItemID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, validationErrorf("BOM节点已有激活路线 %s", existing.Number)
		}
	}

	if err := s.routingRepo.Create(ctx, routing); err != nil {
		return nil, fmt.Errorf("创建工艺路线失败: %w", err)
	}

	if input.BomItemID != nil {
		if err := s.invalidateAround(ctx, *input.BomItemID); err != nil {
			return nil, fmt.Errorf("路线缓存失效失败: %w", err)
		}
	}

	s.logRepo.LogActivity(ctx, "routing", routing.ID, routing.Number, "routing_created", "", "", routing.Name, createdBy)
	return routing, nil
}

// GetRouting 获取路线详情（含工序）
func (s *RoutingService) GetRouting(ctx context.Context, id string) (*entity.ProductionRouting, error) {
	return s.routingRepo.FindByID(ctx, id)
}

type AddStepInput struct {
	Name                string  `json:"name" binding:"required"`
	Description         string  `json:"description"`
	StepType            string  `json:"step_type"`
	SetupTimeMinutes    float64 `json:"setup_time_minutes"`
	CycleTimeMinutes    float64 `json:"cycle_time_minutes" binding:"required"`
	TeardownTimeMinutes float64 `json:"teardown_time_minutes"`
	WorkCellID          *string `json:"work_cell_id"`
	DependsOnStepID     *string `json:"depends_on_step_id"`
	QualityCheckMode    string  `json:"quality_check_mode"`
	SamplingSize        *int    `json:"sampling_size"`
}

// AddStep 向路线追加工序
// 除第一道工序外必须有前置依赖；未显式给出时自动指向工序号更小的最近一道，
// 找不到前驱则拒绝。放行条件恒为前置工序"completed"，保证严格串行链。
func (s *RoutingService) AddStep(ctx context.Context, routingID string, input *AddStepInput) (*entity.RoutingStep, error) {
	if input.CycleTimeMinutes <= 0 {
		return nil, validationErrorf("单件工时必须大于0")
	}

	stepType := input.StepType
	if stepType == "" {
		stepType = entity.StepTypeStandard
	}
	if stepType == entity.StepTypeQualityCheck {
		switch input.QualityCheckMode {
		case entity.QualityCheckEveryPart, entity.QualityCheckEntireLot, entity.QualityCheckSampling:
		default:
			return nil, validationErrorf("质检工序必须指定合法的质检模式")
		}
		if input.SamplingSize != nil && *input.SamplingSize <= 0 {
			return nil, validationErrorf("抽样数量必须大于0")
		}
	}

	if _, err := s.routingRepo.FindByID(ctx, routingID); err != nil {
		return nil, fmt.Errorf("工艺路线不存在: %w", err)
	}

	maxNumber, err := s.routingRepo.MaxStepNumber(ctx, routingID)
	if err != nil {
		return nil, err
	}
	stepNumber := maxNumber + 1

	dependsOn := input.DependsOnStepID
	if stepNumber > 1 && dependsOn == nil {
		prev, err := s.routingRepo.StepByNumber(ctx, routingID, stepNumber-1)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, validationErrorf("工序 %d 缺少前置依赖且找不到前驱工序", stepNumber)
		}
		dependsOn = &prev.ID
	}

	step := &entity.RoutingStep{
		ID:                     uuid.New().String(),
		RoutingID:              routingID,
		StepNumber:             stepNumber,
		Name:                   input.Name,
		Description:            input.Description,
		StepType:               stepType,
		Status:                 entity.StepStatusPending,
		SetupTimeMinutes:       input.SetupTimeMinutes,
		CycleTimeMinutes:       input.CycleTimeMinutes,
		TeardownTimeMinutes:    input.TeardownTimeMinutes,
		WorkCellID:             input.WorkCellID,
		DependsOnStepID:        dependsOn,
		CanStartWhenDependency: entity.DependencyCompleted,
		QualityCheckMode:       input.QualityCheckMode,
		SamplingSize:           input.SamplingSize,
	}
	if err := s.routingRepo.CreateStep(ctx, step); err != nil {
		return nil, fmt.Errorf("创建工序失败: %w", err)
	}
	return step, nil
}

// Resolve 解析BOM节点适用的工艺路线
// 自身有激活路线直接返回；否则沿父链向上找最近的激活路线；
// 走到根仍没有返回 nil——无路线是合法常态。结果按被查询节点缓存。
func (s *RoutingService) Resolve(ctx context.Context, bomItemID string) (*entity.ProductionRouting, error) {
	if cached, hit, err := s.cache.Get(ctx, bomItemID); err == nil && hit {
		if cached == routingCacheNone {
			return nil, nil
		}
		routing, err := s.routingRepo.FindByID(ctx, cached)
		if err == nil && routing.IsActive {
			return routing, nil
		}
		// 缓存指向的路线已失效，退回重新解析
	}

	routing, err := s.resolveWalk(ctx, bomItemID)
	if err != nil {
		return nil, err
	}

	routingID := ""
	if routing != nil {
		routingID = routing.ID
	}
	if err := s.cache.Set(ctx, bomItemID, routingID); err != nil {
		return nil, fmt.Errorf("写入路线缓存失败: %w", err)
	}
	return routing, nil
}

func (s *RoutingService) resolveWalk(ctx context.Context, bomItemID string) (*entity.ProductionRouting, error) {
	currentID := bomItemID
	for {
		routing, err := s.routingRepo.FindActiveByBomItem(ctx, currentID)
		if err != nil {
			return nil, err
		}
		if routing != nil {
			return routing, nil
		}

		node, err := s.bomRepo.FindItem(ctx, currentID)
		if err != nil {
			return nil, fmt.Errorf("BOM节点不存在: %w", err)
		}
		if node.ParentItemID == nil {
			return nil, nil
		}
		currentID = *node.ParentItemID
	}
}

// ResolveForOrder 解析订单适用的工艺路线
// 订单自身挂载的路线优先。
func (s *RoutingService) ResolveForOrder(ctx context.Context, orderID string) (*entity.ProductionRouting, error) {
	return s.routingRepo.FindActiveByOrder(ctx, orderID)
}

// Override 将路线改挂到指定BOM节点（提升为该节点"定义"的路线）
// 缓存失效覆盖该节点、全部祖先及整棵子树，发生在写事务提交之后；
// 提交与失效之间进程中断时，旧解析结果最长保留一个缓存TTL。
func (s *RoutingService) Override(ctx context.Context, bomItemID, routingID, actorID string) (*entity.ProductionRouting, error) {
	if _, err := s.bomRepo.FindItem(ctx, bomItemID); err != nil {
		return nil, fmt.Errorf("BOM节点不存在: %w", err)
	}
	routing, err := s.routingRepo.FindByID(ctx, routingID)
	if err != nil {
		return nil, fmt.Errorf("工艺路线不存在: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 原节点上的激活路线退位
		if err := tx.Model(&entity.ProductionRouting{}).
			Where("bom_item_id = ? AND is_active = ? AND id <> ?", bomItemID, true, routingID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&entity.ProductionRouting{}).
			Where("id = ?", routingID).
			Updates(map[string]interface{}{
				"bom_item_id":  bomItemID,
				"routing_type": entity.RoutingTypeDefined,
				"is_active":    true,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("路线改挂失败: %w", err)
	}

	if err := s.invalidateAround(ctx, bomItemID); err != nil {
		return nil, fmt.Errorf("路线缓存失效失败: %w", err)
	}

	s.logRepo.LogActivity(ctx, "routing", routing.ID, routing.Number, "routing_overridden", "", "",
		fmt.Sprintf("改挂到BOM节点 %s", bomItemID), actorID)
	routing.BomItemID = &bomItemID
	routing.RoutingType = entity.RoutingTypeDefined
	return routing, nil
}

// invalidateAround 失效节点自身、父链上全部祖先以及整棵子树的缓存
// 祖先的解析结果可能传递依赖此节点的定义路线；子树节点可能继承自此节点。
func (s *RoutingService) invalidateAround(ctx context.Context, bomItemID string) error {
	ids := []string{bomItemID}

	// 祖先链
	currentID := bomItemID
	for {
		node, err := s.bomRepo.FindItem(ctx, currentID)
		if err != nil {
			return err
		}
		if node.ParentItemID == nil {
			break
		}
		ids = append(ids, *node.ParentItemID)
		currentID = *node.ParentItemID
	}

	// 子树
	subtree, err := s.subtreeIDs(ctx, bomItemID)
	if err != nil {
		return err
	}
	ids = append(ids, subtree...)

	return s.cache.Invalidate(ctx, ids...)
}

func (s *RoutingService) subtreeIDs(ctx context.Context, bomItemID string) ([]string, error) {
	var ids []string
	frontier := []string{bomItemID}
	for len(frontier) > 0 {
		var batch []entity.BomItem
		if err := s.db.WithContext(ctx).
			Where("parent_item_id IN ?", frontier).
			Find(&batch).Error; err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		frontier = frontier[:0]
		for _, it := range batch {
			ids = append(ids, it.ID)
			frontier = append(frontier, it.ID)
		}
	}
	return ids, nil
}

// InheritanceNode 继承树诊断节点
type InheritanceNode struct {
	BomItemID string                    `json:"bom_item_id"`
	Level     int                       `json:"level"`
	Routing   *entity.ProductionRouting `json:"routing,omitempty"`
	Source    string                    `json:"source"` // defined/inherited/none
}

// InheritanceTree 路线继承树诊断
// 从节点沿父链向上报告每层的路线情况；遇到"定义"类型的路线即终止——
// 这只影响诊断报告，实际解析始终取最近的激活路线。
func (s *RoutingService) InheritanceTree(ctx context.Context, bomItemID string) ([]InheritanceNode, error) {
	var chain []InheritanceNode
	currentID := bomItemID
	for {
		node, err := s.bomRepo.FindItem(ctx, currentID)
		if err != nil {
			return nil, fmt.Errorf("BOM节点不存在: %w", err)
		}

		routing, err := s.routingRepo.FindActiveByBomItem(ctx, currentID)
		if err != nil {
			return nil, err
		}

		entry := InheritanceNode{BomItemID: currentID, Level: node.Level, Source: "none"}
		if routing != nil {
			entry.Routing = routing
			entry.Source = routing.RoutingType
		}
		chain = append(chain, entry)

		if routing != nil && routing.RoutingType == entity.RoutingTypeDefined {
			break
		}
		if node.ParentItemID == nil {
			break
		}
		currentID = *node.ParentItemID
	}
	return chain, nil
}
