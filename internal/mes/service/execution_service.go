package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExecutionService 工序执行服务
// 驱动严格串行的工序状态机：依赖放行、质检扇出、返工插入、暂停恢复，
// 以及完成后沿订单树向上的自动完成传播。
type ExecutionService struct {
	routingRepo *repository.RoutingRepository
	execRepo    *repository.ExecutionRepository
	orderRepo   *repository.OrderRepository
	logRepo     *repository.ActivityLogRepository
	db          *gorm.DB
}

func NewExecutionService(routingRepo *repository.RoutingRepository, execRepo *repository.ExecutionRepository, orderRepo *repository.OrderRepository, logRepo *repository.ActivityLogRepository, db *gorm.DB) *ExecutionService {
	return &ExecutionService{routingRepo: routingRepo, execRepo: execRepo, orderRepo: orderRepo, logRepo: logRepo, db: db}
}

// samplingBreakpoints ISO 2859 一般检验水平II的批量断点表
// lot ≤ 8 时全检。
var samplingBreakpoints = []struct {
	maxLot int
	size   int
}{
	{15, 5},
	{25, 8},
	{50, 13},
	{90, 20},
	{150, 32},
	{280, 50},
	{500, 80},
	{1200, 125},
	{3200, 200},
	{10000, 315},
}

// SampleSizeForLot 按批量查抽样数量
func SampleSizeForLot(lotSize int) int {
	if lotSize <= 8 {
		return lotSize
	}
	for _, bp := range samplingBreakpoints {
		if lotSize <= bp.maxLot {
			return bp.size
		}
	}
	return 500
}

// CanStart 工序是否可以启动
// 无依赖，或前置工序状态恰为 completed。
func (s *ExecutionService) CanStart(ctx context.Context, step *entity.RoutingStep) (bool, error) {
	if step.DependsOnStepID == nil {
		return true, nil
	}
	dep, err := s.routingRepo.FindStep(ctx, *step.DependsOnStepID)
	if err != nil {
		return false, fmt.Errorf("前置工序不存在: %w", err)
	}
	return dep.Status == entity.StepStatusCompleted, nil
}

// QueueStep 工序入队
func (s *ExecutionService) QueueStep(ctx context.Context, stepID string) (*entity.RoutingStep, error) {
	step, err := s.routingRepo.FindStep(ctx, stepID)
	if err != nil {
		return nil, fmt.Errorf("工序不存在: %w", err)
	}
	if step.Status != entity.StepStatusPending {
		return nil, validationErrorf("工序状态 %s 不允许入队", step.Status)
	}
	step.Status = entity.StepStatusQueued
	if err := s.routingRepo.UpdateStep(ctx, step); err != nil {
		return nil, err
	}
	return step, nil
}

// StartStep 启动工序
// 前置未完成返回 DependencyError。质检工序按模式扇出执行记录：
// 逐件→每件一条；整批→一条；抽样→显式抽样数（封顶批量）或断点表。
func (s *ExecutionService) StartStep(ctx context.Context, orderID, stepID, actorID string) ([]entity.ManufacturingStepExecution, error) {
	step, err := s.routingRepo.FindStep(ctx, stepID)
	if err != nil {
		return nil, fmt.Errorf("工序不存在: %w", err)
	}
	if step.Status != entity.StepStatusPending && step.Status != entity.StepStatusQueued {
		return nil, validationErrorf("工序状态 %s 不允许启动", step.Status)
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("订单不存在: %w", err)
	}
	if order.IsTerminal() {
		return nil, validationErrorf("订单状态 %s 不允许开工", order.Status)
	}
	if err := s.checkStepOwnership(ctx, step, order); err != nil {
		return nil, err
	}

	ok, err := s.CanStart(ctx, step)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dependencyErrorf("工序 %d 的前置工序尚未完成", step.StepNumber)
	}

	now := time.Now()
	execs := s.fanOutExecutions(step, order, now, actorID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.RoutingStep{}).
			Where("id = ?", step.ID).
			Update("status", entity.StepStatusInProgress).Error; err != nil {
			return err
		}
		if err := tx.Create(&execs).Error; err != nil {
			return err
		}

		// 首道工序开工带动订单进入生产
		if order.Status != entity.OrderStatusInProgress {
			updates := map[string]interface{}{"status": entity.OrderStatusInProgress}
			if order.ActualStartDate == nil {
				updates["actual_start_date"] = now
			}
			if err := tx.Model(&entity.ManufacturingOrder{}).
				Where("id = ?", order.ID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("启动工序失败: %w", err)
	}

	step.Status = entity.StepStatusInProgress
	return execs, nil
}

// fanOutExecutions 按工序类型与质检模式生成执行记录
func (s *ExecutionService) fanOutExecutions(step *entity.RoutingStep, order *entity.ManufacturingOrder, now time.Time, actorID string) []entity.ManufacturingStepExecution {
	newExec := func(partNumber *int) entity.ManufacturingStepExecution {
		return entity.ManufacturingStepExecution{
			ID:                   uuid.New().String(),
			RoutingStepID:        step.ID,
			ManufacturingOrderID: order.ID,
			PartNumber:           partNumber,
			Status:               entity.ExecutionStatusInProgress,
			StartedAt:            &now,
			ExecutedBy:           actorID,
		}
	}

	if step.StepType != entity.StepTypeQualityCheck {
		return []entity.ManufacturingStepExecution{newExec(nil)}
	}

	lot := int(math.Ceil(order.Quantity))
	switch step.QualityCheckMode {
	case entity.QualityCheckEveryPart:
		execs := make([]entity.ManufacturingStepExecution, 0, lot)
		for i := 1; i <= lot; i++ {
			n := i
			execs = append(execs, newExec(&n))
		}
		return execs
	case entity.QualityCheckSampling:
		size := SampleSizeForLot(lot)
		if step.SamplingSize != nil {
			size = *step.SamplingSize
			if size > lot {
				size = lot
			}
		}
		execs := make([]entity.ManufacturingStepExecution, 0, size)
		for i := 1; i <= size; i++ {
			n := i
			execs = append(execs, newExec(&n))
		}
		return execs
	default: // entire_lot
		return []entity.ManufacturingStepExecution{newExec(nil)}
	}
}

// checkStepOwnership 校验工序属于该订单适用的路线
// 订单直挂路线要求精确匹配；BOM挂载路线要求其所在版本属于订单的BOM。
// 不匹配的订单/工序组合不得互相改写状态。
func (s *ExecutionService) checkStepOwnership(ctx context.Context, step *entity.RoutingStep, order *entity.ManufacturingOrder) error {
	mismatch := validationErrorf("工序 %d 不属于订单 %s 的工艺路线", step.StepNumber, order.Number)

	var routing entity.ProductionRouting
	if err := s.db.WithContext(ctx).First(&routing, "id = ?", step.RoutingID).Error; err != nil {
		return fmt.Errorf("工艺路线不存在: %w", err)
	}
	if routing.ManufacturingOrderID != nil {
		if *routing.ManufacturingOrderID != order.ID {
			return mismatch
		}
		return nil
	}
	if routing.BomItemID == nil || order.BillOfMaterialID == nil {
		return mismatch
	}

	var bomItem entity.BomItem
	if err := s.db.WithContext(ctx).First(&bomItem, "id = ?", *routing.BomItemID).Error; err != nil {
		return fmt.Errorf("BOM节点不存在: %w", err)
	}
	var version entity.BomVersion
	if err := s.db.WithContext(ctx).First(&version, "id = ?", bomItem.BomVersionID).Error; err != nil {
		return fmt.Errorf("BOM版本不存在: %w", err)
	}
	if version.BillOfMaterialID != *order.BillOfMaterialID {
		return mismatch
	}
	return nil
}

type CompleteExecutionInput struct {
	QualityResult string `json:"quality_result"` // passed/failed，质检工序必填
	FailureAction string `json:"failure_action"` // scrap/rework，失败时必填
	Notes         string `json:"notes"`
}

// CompleteExecution 关闭一条执行记录
// 质检失败按处置动作分支：scrap 累加订单报废数量；rework 在路线末尾
// 插入（或复用已有的）返工工序，依赖失败工序，工时按2倍粗估并入队。
func (s *ExecutionService) CompleteExecution(ctx context.Context, execID string, input *CompleteExecutionInput, actorID string) (*entity.ManufacturingStepExecution, error) {
	exec, err := s.execRepo.FindByID(ctx, execID)
	if err != nil {
		return nil, fmt.Errorf("执行记录不存在: %w", err)
	}
	if exec.IsClosed() {
		return nil, validationErrorf("执行记录已关闭")
	}

	step := exec.RoutingStep
	if step == nil {
		step, err = s.routingRepo.FindStep(ctx, exec.RoutingStepID)
		if err != nil {
			return nil, fmt.Errorf("工序不存在: %w", err)
		}
	}

	isQuality := step.StepType == entity.StepTypeQualityCheck
	if isQuality {
		switch input.QualityResult {
		case entity.QualityResultPassed, entity.QualityResultFailed:
		default:
			return nil, validationErrorf("质检执行必须给出 passed/failed 结论")
		}
		if input.QualityResult == entity.QualityResultFailed {
			switch input.FailureAction {
			case entity.FailureActionScrap, entity.FailureActionRework:
			default:
				return nil, validationErrorf("质检失败必须指定 scrap/rework 处置")
			}
		}
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exec.Status = entity.ExecutionStatusCompleted
		exec.CompletedAt = &now
		exec.Notes = input.Notes
		if isQuality {
			exec.QualityResult = &input.QualityResult
			if input.QualityResult == entity.QualityResultFailed {
				exec.FailureAction = &input.FailureAction
			}
		}
		if err := tx.Save(exec).Error; err != nil {
			return err
		}

		if isQuality && input.QualityResult == entity.QualityResultFailed {
			if err := s.handleQualityFailure(tx, exec, step, input.FailureAction); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("关闭执行记录失败: %w", err)
	}

	if isQuality && input.QualityResult == entity.QualityResultFailed {
		s.logRepo.LogActivity(ctx, "step", step.ID, "", "quality_failed", "", "",
			fmt.Sprintf("工序 %d 质检失败，处置: %s", step.StepNumber, input.FailureAction), actorID)
	}
	return exec, nil
}

// handleQualityFailure 质检失败处置
func (s *ExecutionService) handleQualityFailure(tx *gorm.DB, exec *entity.ManufacturingStepExecution, failedStep *entity.RoutingStep, action string) error {
	if action == entity.FailureActionScrap {
		return tx.Model(&entity.ManufacturingOrder{}).
			Where("id = ?", exec.ManufacturingOrderID).
			Update("scrapped_quantity", gorm.Expr("scrapped_quantity + 1")).Error
	}

	// rework：同一失败工序只插入一次返工工序
	existing, err := s.routingRepo.FindReworkStepFor(tx, failedStep.RoutingID, failedStep.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	var maxNumber int
	if err := tx.Model(&entity.RoutingStep{}).
		Where("routing_id = ?", failedStep.RoutingID).
		Select("COALESCE(MAX(step_number), 0)").Scan(&maxNumber).Error; err != nil {
		return err
	}

	rework := &entity.RoutingStep{
		ID:                     uuid.New().String(),
		RoutingID:              failedStep.RoutingID,
		StepNumber:             maxNumber + 1,
		Name:                   fmt.Sprintf("%s返工", failedStep.Name),
		StepType:               entity.StepTypeRework,
		Status:                 entity.StepStatusQueued,
		SetupTimeMinutes:       failedStep.SetupTimeMinutes,
		CycleTimeMinutes:       failedStep.CycleTimeMinutes * 2, // 返工工时粗估
		TeardownTimeMinutes:    failedStep.TeardownTimeMinutes,
		WorkCellID:             failedStep.WorkCellID,
		DependsOnStepID:        &failedStep.ID,
		CanStartWhenDependency: entity.DependencyCompleted,
	}
	return tx.Create(rework).Error
}

// HoldStep 暂停工序
// 持久状态迁移而非阻塞线程；未关闭的执行记录同步记下暂停时刻。
func (s *ExecutionService) HoldStep(ctx context.Context, stepID, actorID string) error {
	step, err := s.routingRepo.FindStep(ctx, stepID)
	if err != nil {
		return fmt.Errorf("工序不存在: %w", err)
	}
	if step.Status != entity.StepStatusInProgress {
		return validationErrorf("工序状态 %s 不允许暂停", step.Status)
	}

	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.RoutingStep{}).
			Where("id = ?", step.ID).
			Update("status", entity.StepStatusOnHold).Error; err != nil {
			return err
		}
		return tx.Model(&entity.ManufacturingStepExecution{}).
			Where("routing_step_id = ? AND status = ?", step.ID, entity.ExecutionStatusInProgress).
			Updates(map[string]interface{}{
				"status":     entity.ExecutionStatusOnHold,
				"on_hold_at": now,
			}).Error
	})
}

// ResumeStep 恢复工序
// 每条暂停中的执行记录把 now - on_hold_at 累入总暂停时长。
func (s *ExecutionService) ResumeStep(ctx context.Context, stepID, actorID string) error {
	step, err := s.routingRepo.FindStep(ctx, stepID)
	if err != nil {
		return fmt.Errorf("工序不存在: %w", err)
	}
	if step.Status != entity.StepStatusOnHold {
		return validationErrorf("工序状态 %s 不允许恢复", step.Status)
	}

	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var held []entity.ManufacturingStepExecution
		if err := tx.Where("routing_step_id = ? AND status = ?", step.ID, entity.ExecutionStatusOnHold).
			Find(&held).Error; err != nil {
			return err
		}
		for i := range held {
			exec := &held[i]
			if exec.OnHoldAt != nil {
				exec.TotalHoldMinutes += now.Sub(*exec.OnHoldAt).Minutes()
			}
			exec.Status = entity.ExecutionStatusInProgress
			exec.ResumedAt = &now
			exec.OnHoldAt = nil
			if err := tx.Save(exec).Error; err != nil {
				return err
			}
		}
		return tx.Model(&entity.RoutingStep{}).
			Where("id = ?", step.ID).
			Update("status", entity.StepStatusInProgress).Error
	})
}

// SkipStep 跳过工序（取消路径）
func (s *ExecutionService) SkipStep(ctx context.Context, stepID, actorID string) error {
	step, err := s.routingRepo.FindStep(ctx, stepID)
	if err != nil {
		return fmt.Errorf("工序不存在: %w", err)
	}
	if step.IsTerminal() {
		return validationErrorf("工序状态 %s 不允许跳过", step.Status)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.RoutingStep{}).
			Where("id = ?", step.ID).
			Update("status", entity.StepStatusSkipped).Error; err != nil {
			return err
		}
		return tx.Model(&entity.ManufacturingStepExecution{}).
			Where("routing_step_id = ? AND status NOT IN ?", step.ID,
				[]string{entity.ExecutionStatusCompleted, entity.ExecutionStatusSkipped}).
			Update("status", entity.ExecutionStatusSkipped).Error
	})
}

// CompleteStep 完成工序
// 要求全部执行记录已关闭。若这是路线上最后一道未终止工序，订单完成并
// 记录实际结束时间，随后沿父链传播：父订单完成子数+1，满足自动完成条件
// 则父订单也完成，递归向上。计数器更新在父订单行锁内进行。
func (s *ExecutionService) CompleteStep(ctx context.Context, orderID, stepID, actorID string) error {
	step, err := s.routingRepo.FindStep(ctx, stepID)
	if err != nil {
		return fmt.Errorf("工序不存在: %w", err)
	}
	if step.Status != entity.StepStatusInProgress {
		return validationErrorf("工序状态 %s 不允许完成", step.Status)
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("订单不存在: %w", err)
	}
	if err := s.checkStepOwnership(ctx, step, order); err != nil {
		return err
	}

	open, err := s.execRepo.CountOpenByStep(ctx, stepID)
	if err != nil {
		return err
	}
	if open > 0 {
		return validationErrorf("工序还有 %d 条执行记录未关闭", open)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.RoutingStep{}).
			Where("id = ?", step.ID).
			Update("status", entity.StepStatusCompleted).Error; err != nil {
			return err
		}

		remaining, err := s.routingRepo.CountOpenSteps(tx, step.RoutingID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		return s.completeOrder(tx, orderID)
	})
	if err != nil {
		return fmt.Errorf("完成工序失败: %w", err)
	}

	s.logRepo.LogActivity(ctx, "step", step.ID, "", "step_completed", entity.StepStatusInProgress,
		entity.StepStatusCompleted, fmt.Sprintf("工序 %d 完成", step.StepNumber), actorID)
	return nil
}

// completeOrder 订单完成并向上传播
func (s *ExecutionService) completeOrder(tx *gorm.DB, orderID string) error {
	var order entity.ManufacturingOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", orderID).Error; err != nil {
		return err
	}
	if order.IsTerminal() {
		return nil
	}

	now := time.Now()
	if err := tx.Model(&entity.ManufacturingOrder{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":          entity.OrderStatusCompleted,
			"actual_end_date": now,
		}).Error; err != nil {
		return err
	}

	if order.ParentID == nil {
		return nil
	}
	return s.bubbleUp(tx, *order.ParentID)
}

// bubbleUp 父订单完成子数+1并检查自动完成条件，满足则递归向上
func (s *ExecutionService) bubbleUp(tx *gorm.DB, parentID string) error {
	var parent entity.ManufacturingOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&parent, "id = ?", parentID).Error; err != nil {
		return err
	}

	parent.CompletedChildOrdersCount++
	if err := tx.Model(&entity.ManufacturingOrder{}).
		Where("id = ?", parent.ID).
		Update("completed_child_orders_count", parent.CompletedChildOrdersCount).Error; err != nil {
		return err
	}

	autoComplete := parent.AutoCompleteOnChildren &&
		parent.ChildOrdersCount > 0 &&
		parent.CompletedChildOrdersCount == parent.ChildOrdersCount &&
		!parent.IsTerminal()
	if !autoComplete {
		return nil
	}

	now := time.Now()
	if err := tx.Model(&entity.ManufacturingOrder{}).
		Where("id = ?", parent.ID).
		Updates(map[string]interface{}{
			"status":          entity.OrderStatusCompleted,
			"actual_end_date": now,
		}).Error; err != nil {
		return err
	}

	if parent.ParentID == nil {
		return nil
	}
	return s.bubbleUp(tx, *parent.ParentID)
}

// ListExecutions 某工序的执行记录
func (s *ExecutionService) ListExecutions(ctx context.Context, stepID string) ([]entity.ManufacturingStepExecution, error) {
	return s.execRepo.ByStep(ctx, stepID)
}
