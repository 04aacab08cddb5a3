package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExplosionService 订单展开引擎
// 给定挂有BOM的制造订单，按当前版本的节点树递归生成子订单，
// 用量沿树逐级相乘；节点物料自带主BOM时在该子订单上重新锚定展开。
// 整个顶层展开是一个事务：任一层失败，所有已生成的订单一并回滚。
type ExplosionService struct {
	orderRepo *repository.OrderRepository
	bomRepo   *repository.BOMRepository
	itemRepo  *repository.ItemRepository
	logRepo   *repository.ActivityLogRepository
	db        *gorm.DB
}

func NewExplosionService(orderRepo *repository.OrderRepository, bomRepo *repository.BOMRepository, itemRepo *repository.ItemRepository, logRepo *repository.ActivityLogRepository, db *gorm.DB) *ExplosionService {
	return &ExplosionService{orderRepo: orderRepo, bomRepo: bomRepo, itemRepo: itemRepo, logRepo: logRepo, db: db}
}

type CreateOrderInput struct {
	ItemID                 string     `json:"item_id" binding:"required"`
	BillOfMaterialID       *string    `json:"bill_of_material_id"`
	Quantity               float64    `json:"quantity" binding:"required"`
	Priority               int        `json:"priority"`
	RequestedDate          *time.Time `json:"requested_date"`
	AutoCompleteOnChildren *bool      `json:"auto_complete_on_children"`
	Notes                  string     `json:"notes"`
}

// CreateOrder 创建顶层制造订单
func (s *ExplosionService) CreateOrder(ctx context.Context, input *CreateOrderInput, createdBy string) (*entity.ManufacturingOrder, error) {
	if input.Quantity <= 0 {
		return nil, validationErrorf("订单数量必须大于0，实际为 %v", input.Quantity)
	}
	if _, err := s.itemRepo.FindByID(ctx, input.ItemID); err != nil {
		return nil, fmt.Errorf("物料不存在: %w", err)
	}
	if input.BillOfMaterialID != nil {
		if _, err := s.bomRepo.FindByID(ctx, *input.BillOfMaterialID); err != nil {
			return nil, fmt.Errorf("BOM不存在: %w", err)
		}
	}

	number, err := s.nextOrderNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成订单号失败: %w", err)
	}

	autoComplete := true
	if input.AutoCompleteOnChildren != nil {
		autoComplete = *input.AutoCompleteOnChildren
	}

	order := &entity.ManufacturingOrder{
		ID:                     uuid.New().String(),
		Number:                 number,
		ItemID:                 input.ItemID,
		BillOfMaterialID:       input.BillOfMaterialID,
		Quantity:               input.Quantity,
		Status:                 entity.OrderStatusDraft,
		Priority:               input.Priority,
		RequestedDate:          input.RequestedDate,
		AutoCompleteOnChildren: autoComplete,
		Notes:                  input.Notes,
		CreatedBy:              createdBy,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}

	s.logRepo.LogActivity(ctx, "order", order.ID, order.Number, "order_created", "", entity.OrderStatusDraft,
		fmt.Sprintf("创建制造订单，数量 %v", order.Quantity), createdBy)
	return order, nil
}

// GetOrder 获取订单详情
func (s *ExplosionService) GetOrder(ctx context.Context, id string) (*entity.ManufacturingOrder, error) {
	return s.orderRepo.FindByID(ctx, id)
}

// ListOrders 订单列表
func (s *ExplosionService) ListOrders(ctx context.Context, status string, rootOnly bool, page, pageSize int) ([]entity.ManufacturingOrder, int64, error) {
	return s.orderRepo.List(ctx, status, rootOnly, page, pageSize)
}

// GetOrderTree 获取订单及全部后代
func (s *ExplosionService) GetOrderTree(ctx context.Context, rootID string) (*entity.ManufacturingOrder, []entity.ManufacturingOrder, error) {
	root, err := s.orderRepo.FindByID(ctx, rootID)
	if err != nil {
		return nil, nil, err
	}
	descendants, err := s.orderRepo.Descendants(ctx, rootID)
	if err != nil {
		return nil, nil, err
	}
	return root, descendants, nil
}

// Explode 展开订单的BOM为子订单树
// 前置条件：订单挂有BOM；BOM有当前版本；当前版本恰好一个根节点，
// 且根节点物料等于订单物料。违反任一条件以 StructuralError 中止，
// 本次调用不留任何已生成的订单。
func (s *ExplosionService) Explode(ctx context.Context, orderID, actorID string) ([]entity.ManufacturingOrder, error) {
	var created []entity.ManufacturingOrder

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order entity.ManufacturingOrder
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", orderID).Error; err != nil {
			return fmt.Errorf("订单不存在: %w", err)
		}
		return s.explodeOrder(tx, &order, &created)
	})
	if err != nil {
		return nil, err
	}

	s.logRepo.LogActivity(ctx, "order", orderID, "", "order_exploded", "", "",
		fmt.Sprintf("BOM展开生成 %d 个子订单", len(created)), actorID)
	return created, nil
}

// explodeOrder 展开一个订单（顶层或重新锚定的子树顶层）
// 始终运行在外层 Explode 的事务内，嵌套的重新锚定展开不开启独立事务。
func (s *ExplosionService) explodeOrder(tx *gorm.DB, order *entity.ManufacturingOrder, created *[]entity.ManufacturingOrder) error {
	if order.BillOfMaterialID == nil {
		return validationErrorf("订单 %s 未关联BOM，无法展开", order.Number)
	}

	var version entity.BomVersion
	err := tx.Where("bill_of_material_id = ? AND is_current = ?", *order.BillOfMaterialID, true).
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return structuralErrorf("订单 %s 的BOM没有当前版本", order.Number)
	}
	if err != nil {
		return err
	}

	var roots []entity.BomItem
	if err := tx.Where("bom_version_id = ? AND parent_item_id IS NULL", version.ID).
		Find(&roots).Error; err != nil {
		return err
	}
	if len(roots) == 0 {
		return structuralErrorf("订单 %s 的BOM版本没有根节点", order.Number)
	}
	if len(roots) > 1 {
		return structuralErrorf("订单 %s 的BOM版本存在 %d 个根节点", order.Number, len(roots))
	}
	root := roots[0]
	if root.ItemID != order.ItemID {
		return structuralErrorf("订单 %s 的物料与BOM根节点物料不一致", order.Number)
	}

	// 根节点本身不单独生成订单，只作为锚点
	return s.explodeChildren(tx, order, order, root.ID, 1, created)
}

// explodeChildren 递归生成子订单
// topOrder 是本次（重新锚定）展开的顶层订单，multiplier 累积锚点沿途的用量倍数：
// 子订单数量 = 节点用量 × 顶层订单数量 × multiplier。
func (s *ExplosionService) explodeChildren(tx *gorm.DB, topOrder, parentOrder *entity.ManufacturingOrder, anchorItemID string, multiplier float64, created *[]entity.ManufacturingOrder) error {
	var children []entity.BomItem
	if err := tx.Where("parent_item_id = ?", anchorItemID).
		Order("sequence_number").
		Find(&children).Error; err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	var existing int64
	if err := tx.Model(&entity.ManufacturingOrder{}).
		Where("parent_id = ?", parentOrder.ID).
		Count(&existing).Error; err != nil {
		return err
	}
	seq := int(existing)

	for _, bomItem := range children {
		if bomItem.Quantity <= 0 {
			return validationErrorf("BOM节点用量非法: %v", bomItem.Quantity)
		}

		seq++
		childOrder := &entity.ManufacturingOrder{
			ID:                     uuid.New().String(),
			Number:                 fmt.Sprintf("%s-%03d", parentOrder.Number, seq),
			ItemID:                 bomItem.ItemID,
			ParentID:               &parentOrder.ID,
			Quantity:               bomItem.Quantity * topOrder.Quantity * multiplier,
			Status:                 entity.OrderStatusDraft,
			Priority:               topOrder.Priority,
			RequestedDate:          topOrder.RequestedDate,
			AutoCompleteOnChildren: topOrder.AutoCompleteOnChildren,
			CreatedBy:              topOrder.CreatedBy,
		}

		var item entity.Item
		if err := tx.First(&item, "id = ?", bomItem.ItemID).Error; err != nil {
			return fmt.Errorf("BOM节点物料不存在: %w", err)
		}

		// 物料自带主BOM时重新锚定：子订单改挂该BOM并作为新的顶层继续展开。
		// 主BOM已停用或被删除时按普通节点处理，其余查询错误照常中止。
		rerooted := false
		if item.PrimaryBomID != nil {
			var primaryBom entity.BillOfMaterial
			err := tx.First(&primaryBom, "id = ? AND is_active = ?", *item.PrimaryBomID, true).Error
			switch {
			case err == nil:
				childOrder.BillOfMaterialID = &primaryBom.ID
				rerooted = true
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		if err := tx.Create(childOrder).Error; err != nil {
			return fmt.Errorf("创建子订单失败: %w", err)
		}
		*created = append(*created, *childOrder)

		if rerooted {
			if err := s.explodeOrder(tx, childOrder, created); err != nil {
				return err
			}
		} else {
			if err := s.explodeChildren(tx, topOrder, childOrder, bomItem.ID, multiplier*bomItem.Quantity, created); err != nil {
				return err
			}
		}

		// 子订单完全物化后按实际子订单数刷新计数器
		var liveChildren int64
		if err := tx.Model(&entity.ManufacturingOrder{}).
			Where("parent_id = ?", childOrder.ID).
			Count(&liveChildren).Error; err != nil {
			return err
		}
		if err := tx.Model(&entity.ManufacturingOrder{}).
			Where("id = ?", childOrder.ID).
			Update("child_orders_count", liveChildren).Error; err != nil {
			return err
		}
	}

	// 父订单计数器同步
	return tx.Model(&entity.ManufacturingOrder{}).
		Where("id = ?", parentOrder.ID).
		Update("child_orders_count", gorm.Expr(
			"(SELECT COUNT(*) FROM mes_manufacturing_orders c WHERE c.parent_id = ?)", parentOrder.ID)).Error
}

// Release 下达订单
func (s *ExplosionService) Release(ctx context.Context, orderID, actorID string) (*entity.ManufacturingOrder, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("订单不存在: %w", err)
	}
	if !order.CanTransitionTo(entity.OrderStatusReleased) {
		return nil, validationErrorf("订单状态 %s 不允许下达", order.Status)
	}

	from := order.Status
	order.Status = entity.OrderStatusReleased
	if err := s.orderRepo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("下达订单失败: %w", err)
	}

	s.logRepo.LogActivity(ctx, "order", order.ID, order.Number, "order_released", from, order.Status, "", actorID)
	return order, nil
}

// Cancel 取消订单
// 终态迁移，事务内级联：非终止后代订单取消、活动工序跳过、活动排程取消。
func (s *ExplosionService) Cancel(ctx context.Context, orderID, actorID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order entity.ManufacturingOrder
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", orderID).Error; err != nil {
			return fmt.Errorf("订单不存在: %w", err)
		}
		if order.IsTerminal() {
			return validationErrorf("订单状态 %s 不允许取消", order.Status)
		}
		return s.cancelTree(tx, &order)
	})
	if err != nil {
		return err
	}

	s.logRepo.LogActivity(ctx, "order", orderID, "", "order_cancelled", "", entity.OrderStatusCancelled, "", actorID)
	return nil
}

func (s *ExplosionService) cancelTree(tx *gorm.DB, order *entity.ManufacturingOrder) error {
	if err := tx.Model(&entity.ManufacturingOrder{}).
		Where("id = ?", order.ID).
		Update("status", entity.OrderStatusCancelled).Error; err != nil {
		return err
	}

	// 该订单路线上的活动工序跳过
	if err := tx.Model(&entity.RoutingStep{}).
		Where("routing_id IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).Model(&entity.ProductionRouting{}).
				Select("id").Where("manufacturing_order_id = ?", order.ID)).
		Where("status NOT IN ?", []string{entity.StepStatusCompleted, entity.StepStatusSkipped}).
		Update("status", entity.StepStatusSkipped).Error; err != nil {
		return err
	}

	// 活动排程取消
	if err := tx.Model(&entity.ProductionSchedule{}).
		Where("manufacturing_order_id = ? AND status IN ?", order.ID, entity.ActiveScheduleStatuses).
		Update("status", entity.ScheduleStatusCancelled).Error; err != nil {
		return err
	}

	var children []entity.ManufacturingOrder
	if err := tx.Where("parent_id = ? AND status NOT IN ?", order.ID,
		[]string{entity.OrderStatusCompleted, entity.OrderStatusCancelled}).
		Find(&children).Error; err != nil {
		return err
	}
	for i := range children {
		if err := s.cancelTree(tx, &children[i]); err != nil {
			return err
		}
	}
	return nil
}

// nextOrderNumber 生成顶层订单号 MO-NNNNN-YYMM
// 子订单号由父订单号加零填充序号派生，序号来自父订单当前子订单数的单调递增。
func (s *ExplosionService) nextOrderNumber(ctx context.Context) (string, error) {
	yymm := time.Now().Format("0601")
	count, err := s.orderRepo.CountRootOrdersForMonth(ctx, yymm)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MO-%05d-%s", count+1, yymm), nil
}
