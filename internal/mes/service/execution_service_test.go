package service

import (
	"context"
	"errors"
	"testing"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/testutil"
	"github.com/google/uuid"
)

// seedOrderWithRouting 直接落一个挂了路线的订单：
// 工序1 标准，工序2 抽样质检。
func seedOrderWithRouting(t *testing.T, svc *testServices, quantity float64) (*entity.ManufacturingOrder, *entity.RoutingStep, *entity.RoutingStep) {
	t.Helper()
	ctx := context.Background()

	item := testutil.SeedItem(t, svc.DB, "EXE-"+uuid.New().String()[:8])
	order, err := svc.Explosion.CreateOrder(ctx, &CreateOrderInput{
		ItemID:   item.ID,
		Quantity: quantity,
	}, "u1")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	routing, err := svc.Routing.CreateRouting(ctx, &CreateRoutingInput{
		Name:                 "执行测试路线",
		ManufacturingOrderID: &order.ID,
	}, "u1")
	if err != nil {
		t.Fatalf("CreateRouting failed: %v", err)
	}

	s1, err := svc.Routing.AddStep(ctx, routing.ID, &AddStepInput{Name: "加工", CycleTimeMinutes: 5})
	if err != nil {
		t.Fatalf("AddStep 1 failed: %v", err)
	}
	s2, err := svc.Routing.AddStep(ctx, routing.ID, &AddStepInput{
		Name:             "抽检",
		CycleTimeMinutes: 2,
		StepType:         entity.StepTypeQualityCheck,
		QualityCheckMode: entity.QualityCheckSampling,
	})
	if err != nil {
		t.Fatalf("AddStep 2 failed: %v", err)
	}
	return order, s1, s2
}

func completeOpenExecutions(t *testing.T, svc *testServices, stepID string, input *CompleteExecutionInput) {
	t.Helper()
	ctx := context.Background()
	execs, err := svc.Execution.ListExecutions(ctx, stepID)
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	for i := range execs {
		if execs[i].IsClosed() {
			continue
		}
		if _, err := svc.Execution.CompleteExecution(ctx, execs[i].ID, input, "u1"); err != nil {
			t.Fatalf("CompleteExecution failed: %v", err)
		}
	}
}

// 前置工序未完成时启动被 DependencyError 拒绝
func TestStartStepBlockedByDependency(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	order, _, s2 := seedOrderWithRouting(t, svc, 10)

	_, err := svc.Execution.StartStep(ctx, order.ID, s2.ID, "u1")
	var derr *DependencyError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DependencyError, got %v", err)
	}
}

// 首道工序开工带动订单进入生产
func TestStartStepMovesOrderInProgress(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	order, s1, _ := seedOrderWithRouting(t, svc, 10)

	execs, err := svc.Execution.StartStep(ctx, order.ID, s1.ID, "u1")
	if err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("standard step must fan out one execution, got %d", len(execs))
	}

	got, _ := svc.Explosion.GetOrder(ctx, order.ID)
	if got.Status != entity.OrderStatusInProgress {
		t.Fatalf("order status = %s, want in_progress", got.Status)
	}
	if got.ActualStartDate == nil {
		t.Fatal("actual_start_date must be set on first start")
	}
}

// 抽样质检按断点表扇出执行记录：批量50 → 13件
func TestStartStepSamplingFanOut(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	order, s1, s2 := seedOrderWithRouting(t, svc, 50)

	if _, err := svc.Execution.StartStep(ctx, order.ID, s1.ID, "u1"); err != nil {
		t.Fatalf("StartStep 1 failed: %v", err)
	}
	completeOpenExecutions(t, svc, s1.ID, &CompleteExecutionInput{})
	if err := svc.Execution.CompleteStep(ctx, order.ID, s1.ID, "u1"); err != nil {
		t.Fatalf("CompleteStep 1 failed: %v", err)
	}

	execs, err := svc.Execution.StartStep(ctx, order.ID, s2.ID, "u1")
	if err != nil {
		t.Fatalf("StartStep 2 failed: %v", err)
	}
	if len(execs) != 13 {
		t.Fatalf("lot 50 must sample 13 parts, got %d", len(execs))
	}
	if execs[0].PartNumber == nil || *execs[0].PartNumber != 1 {
		t.Fatal("sampled executions must carry part numbers")
	}
}

// 暂停/恢复是持久状态迁移并累计暂停时长
func TestHoldAndResumeStep(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	order, s1, _ := seedOrderWithRouting(t, svc, 10)

	if _, err := svc.Execution.StartStep(ctx, order.ID, s1.ID, "u1"); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	if err := svc.Execution.HoldStep(ctx, s1.ID, "u1"); err != nil {
		t.Fatalf("HoldStep failed: %v", err)
	}

	step, _ := svc.Repos.Routing.FindStep(ctx, s1.ID)
	if step.Status != entity.StepStatusOnHold {
		t.Fatalf("step status = %s, want on_hold", step.Status)
	}
	execs, _ := svc.Execution.ListExecutions(ctx, s1.ID)
	if execs[0].Status != entity.ExecutionStatusOnHold || execs[0].OnHoldAt == nil {
		t.Fatalf("execution not held: %+v", execs[0])
	}

	// 重复暂停被拒绝
	var verr *ValidationError
	if err := svc.Execution.HoldStep(ctx, s1.ID, "u1"); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError holding a held step, got %v", err)
	}

	if err := svc.Execution.ResumeStep(ctx, s1.ID, "u1"); err != nil {
		t.Fatalf("ResumeStep failed: %v", err)
	}
	step, _ = svc.Repos.Routing.FindStep(ctx, s1.ID)
	if step.Status != entity.StepStatusInProgress {
		t.Fatalf("step status = %s, want in_progress", step.Status)
	}
	execs, _ = svc.Execution.ListExecutions(ctx, s1.ID)
	if execs[0].OnHoldAt != nil || execs[0].ResumedAt == nil {
		t.Fatalf("execution not resumed: %+v", execs[0])
	}
	if execs[0].TotalHoldMinutes < 0 {
		t.Fatalf("negative hold minutes: %v", execs[0].TotalHoldMinutes)
	}
}

// 还有未关闭执行记录时不允许完成工序
func TestCompleteStepRequiresClosedExecutions(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	order, s1, _ := seedOrderWithRouting(t, svc, 10)

	if _, err := svc.Execution.StartStep(ctx, order.ID, s1.ID, "u1"); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	err := svc.Execution.CompleteStep(ctx, order.ID, s1.ID, "u1")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError with open executions, got %v", err)
	}
}

// 质检失败scrap累加订单报废数量
func TestQualityFailureScrap(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	order, s1, s2 := seedOrderWithRouting(t, svc, 10)

	if _, err := svc.Execution.StartStep(ctx, order.ID, s1.ID, "u1"); err != nil {
		t.Fatalf("StartStep 1 failed: %v", err)
	}
	completeOpenExecutions(t, svc, s1.ID, &CompleteExecutionInput{})
	if err := svc.Execution.CompleteStep(ctx, order.ID, s1.ID, "u1"); err != nil {
		t.Fatalf("CompleteStep 1 failed: %v", err)
	}

	execs, err := svc.Execution.StartStep(ctx, order.ID, s2.ID, "u1")
	if err != nil {
		t.Fatalf("StartStep 2 failed: %v", err)
	}

	// 质检执行必须给结论
	_, err = svc.Execution.CompleteExecution(ctx, execs[0].ID, &CompleteExecutionInput{}, "u1")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError without quality result, got %v", err)
	}

	if _, err := svc.Execution.CompleteExecution(ctx, execs[0].ID, &CompleteExecutionInput{
		QualityResult: entity.QualityResultFailed,
		FailureAction: entity.FailureActionScrap,
	}, "u1"); err != nil {
		t.Fatalf("CompleteExecution scrap failed: %v", err)
	}

	got, _ := svc.Explosion.GetOrder(ctx, order.ID)
	if got.ScrappedQuantity != 1 {
		t.Fatalf("scrapped quantity = %v, want 1", got.ScrappedQuantity)
	}
}

// 质检失败rework在路线末尾插入返工工序，同一失败工序只插一次
func TestQualityFailureReworkInsertedOnce(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	order, s1, s2 := seedOrderWithRouting(t, svc, 10)

	if _, err := svc.Execution.StartStep(ctx, order.ID, s1.ID, "u1"); err != nil {
		t.Fatalf("StartStep 1 failed: %v", err)
	}
	completeOpenExecutions(t, svc, s1.ID, &CompleteExecutionInput{})
	if err := svc.Execution.CompleteStep(ctx, order.ID, s1.ID, "u1"); err != nil {
		t.Fatalf("CompleteStep 1 failed: %v", err)
	}

	execs, err := svc.Execution.StartStep(ctx, order.ID, s2.ID, "u1")
	if err != nil {
		t.Fatalf("StartStep 2 failed: %v", err)
	}
	if len(execs) < 2 {
		t.Fatalf("need at least 2 sampled executions, got %d", len(execs))
	}

	fail := &CompleteExecutionInput{
		QualityResult: entity.QualityResultFailed,
		FailureAction: entity.FailureActionRework,
	}
	if _, err := svc.Execution.CompleteExecution(ctx, execs[0].ID, fail, "u1"); err != nil {
		t.Fatalf("CompleteExecution fail #1: %v", err)
	}
	if _, err := svc.Execution.CompleteExecution(ctx, execs[1].ID, fail, "u1"); err != nil {
		t.Fatalf("CompleteExecution fail #2: %v", err)
	}

	var reworks []entity.RoutingStep
	svc.DB.Where("routing_id = ? AND step_type = ?", s2.RoutingID, entity.StepTypeRework).Find(&reworks)
	if len(reworks) != 1 {
		t.Fatalf("expected exactly one rework step, got %d", len(reworks))
	}
	rework := reworks[0]
	if rework.StepNumber != s2.StepNumber+1 {
		t.Fatalf("rework step number = %d, want %d", rework.StepNumber, s2.StepNumber+1)
	}
	if rework.CycleTimeMinutes != s2.CycleTimeMinutes*2 {
		t.Fatalf("rework cycle time = %v, want doubled %v", rework.CycleTimeMinutes, s2.CycleTimeMinutes*2)
	}
	if rework.Status != entity.StepStatusQueued {
		t.Fatalf("rework status = %s, want queued", rework.Status)
	}
	if rework.DependsOnStepID == nil || *rework.DependsOnStepID != s2.ID {
		t.Fatal("rework must depend on the failed step")
	}
}

// 最后一道工序完成→订单完成；返工工序插入后订单要等返工收尾
func TestCompletionWaitsForRework(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	order, s1, s2 := seedOrderWithRouting(t, svc, 10)

	if _, err := svc.Execution.StartStep(ctx, order.ID, s1.ID, "u1"); err != nil {
		t.Fatalf("StartStep 1 failed: %v", err)
	}
	completeOpenExecutions(t, svc, s1.ID, &CompleteExecutionInput{})
	if err := svc.Execution.CompleteStep(ctx, order.ID, s1.ID, "u1"); err != nil {
		t.Fatalf("CompleteStep 1 failed: %v", err)
	}

	execs, err := svc.Execution.StartStep(ctx, order.ID, s2.ID, "u1")
	if err != nil {
		t.Fatalf("StartStep 2 failed: %v", err)
	}
	// 第一件失败返工，其余通过
	if _, err := svc.Execution.CompleteExecution(ctx, execs[0].ID, &CompleteExecutionInput{
		QualityResult: entity.QualityResultFailed,
		FailureAction: entity.FailureActionRework,
	}, "u1"); err != nil {
		t.Fatalf("CompleteExecution fail: %v", err)
	}
	completeOpenExecutions(t, svc, s2.ID, &CompleteExecutionInput{QualityResult: entity.QualityResultPassed})
	if err := svc.Execution.CompleteStep(ctx, order.ID, s2.ID, "u1"); err != nil {
		t.Fatalf("CompleteStep 2 failed: %v", err)
	}

	// 返工工序尚未终止，订单不能完成
	got, _ := svc.Explosion.GetOrder(ctx, order.ID)
	if got.Status == entity.OrderStatusCompleted {
		t.Fatal("order must not complete while rework is open")
	}

	var rework entity.RoutingStep
	if err := svc.DB.First(&rework, "routing_id = ? AND step_type = ?", s2.RoutingID, entity.StepTypeRework).Error; err != nil {
		t.Fatalf("rework step missing: %v", err)
	}
	if _, err := svc.Execution.StartStep(ctx, order.ID, rework.ID, "u1"); err != nil {
		t.Fatalf("StartStep rework failed: %v", err)
	}
	completeOpenExecutions(t, svc, rework.ID, &CompleteExecutionInput{})
	if err := svc.Execution.CompleteStep(ctx, order.ID, rework.ID, "u1"); err != nil {
		t.Fatalf("CompleteStep rework failed: %v", err)
	}

	got, _ = svc.Explosion.GetOrder(ctx, order.ID)
	if got.Status != entity.OrderStatusCompleted {
		t.Fatalf("order status = %s, want completed", got.Status)
	}
	if got.ActualEndDate == nil {
		t.Fatal("actual_end_date must be set on completion")
	}
}

// 子订单完成沿父链冒泡，计数满且开启自动完成时父订单也完成
func TestCompletionBubblesUpOrderTree(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	parentItem := testutil.SeedItem(t, svc.DB, "BUB-P")
	parent := &entity.ManufacturingOrder{
		ID:                     uuid.New().String(),
		Number:                 "MO-90001-2608",
		ItemID:                 parentItem.ID,
		Quantity:               1,
		Status:                 entity.OrderStatusInProgress,
		ChildOrdersCount:       2,
		AutoCompleteOnChildren: true,
		CreatedBy:              "u1",
	}
	if err := svc.DB.Create(parent).Error; err != nil {
		t.Fatalf("seed parent failed: %v", err)
	}

	makeChild := func(suffix string) (*entity.ManufacturingOrder, *entity.RoutingStep) {
		childItem := testutil.SeedItem(t, svc.DB, "BUB-C"+suffix)
		child := &entity.ManufacturingOrder{
			ID:        uuid.New().String(),
			Number:    parent.Number + "-" + suffix,
			ItemID:    childItem.ID,
			ParentID:  &parent.ID,
			Quantity:  1,
			Status:    entity.OrderStatusReleased,
			CreatedBy: "u1",
		}
		if err := svc.DB.Create(child).Error; err != nil {
			t.Fatalf("seed child failed: %v", err)
		}
		routing, err := svc.Routing.CreateRouting(ctx, &CreateRoutingInput{
			Name: "子单路线" + suffix, ManufacturingOrderID: &child.ID,
		}, "u1")
		if err != nil {
			t.Fatalf("CreateRouting failed: %v", err)
		}
		step, err := svc.Routing.AddStep(ctx, routing.ID, &AddStepInput{Name: "加工", CycleTimeMinutes: 3})
		if err != nil {
			t.Fatalf("AddStep failed: %v", err)
		}
		return child, step
	}

	finish := func(order *entity.ManufacturingOrder, step *entity.RoutingStep) {
		if _, err := svc.Execution.StartStep(ctx, order.ID, step.ID, "u1"); err != nil {
			t.Fatalf("StartStep failed: %v", err)
		}
		completeOpenExecutions(t, svc, step.ID, &CompleteExecutionInput{})
		if err := svc.Execution.CompleteStep(ctx, order.ID, step.ID, "u1"); err != nil {
			t.Fatalf("CompleteStep failed: %v", err)
		}
	}

	c1, s1 := makeChild("001")
	c2, s2 := makeChild("002")

	finish(c1, s1)
	got, _ := svc.Explosion.GetOrder(ctx, parent.ID)
	if got.CompletedChildOrdersCount != 1 {
		t.Fatalf("completed child count = %d, want 1", got.CompletedChildOrdersCount)
	}
	if got.Status == entity.OrderStatusCompleted {
		t.Fatal("parent must not complete with one child pending")
	}

	finish(c2, s2)
	got, _ = svc.Explosion.GetOrder(ctx, parent.ID)
	if got.CompletedChildOrdersCount != 2 {
		t.Fatalf("completed child count = %d, want 2", got.CompletedChildOrdersCount)
	}
	if got.Status != entity.OrderStatusCompleted {
		t.Fatalf("parent status = %s, want completed", got.Status)
	}
}

// 工序归属校验：错配的订单/工序组合不得互相改写状态
func TestStepMustBelongToOrder(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	orderA, stepA, _ := seedOrderWithRouting(t, svc, 1)
	orderB, _, _ := seedOrderWithRouting(t, svc, 1)

	_, err := svc.Execution.StartStep(ctx, orderB.ID, stepA.ID, "u1")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError starting another order's step, got %v", err)
	}

	// 错配启动不得留下执行记录或状态变化
	execs, err := svc.Execution.ListExecutions(ctx, stepA.ID)
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if len(execs) != 0 {
		t.Fatalf("mismatched start must not fan out executions, got %d", len(execs))
	}
	gotB, _ := svc.Explosion.GetOrder(ctx, orderB.ID)
	if gotB.Status != entity.OrderStatusDraft {
		t.Fatalf("order B status = %s, want draft", gotB.Status)
	}

	// 正主正常启动后，完成同样校验归属
	if _, err := svc.Execution.StartStep(ctx, orderA.ID, stepA.ID, "u1"); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	completeOpenExecutions(t, svc, stepA.ID, &CompleteExecutionInput{})
	err = svc.Execution.CompleteStep(ctx, orderB.ID, stepA.ID, "u1")
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError completing another order's step, got %v", err)
	}
	recheck, err := svc.Repos.Routing.FindStep(ctx, stepA.ID)
	if err != nil {
		t.Fatalf("FindStep failed: %v", err)
	}
	if recheck.Status != entity.StepStatusInProgress {
		t.Fatalf("step status = %s, want in_progress after rejected completion", recheck.Status)
	}
}
