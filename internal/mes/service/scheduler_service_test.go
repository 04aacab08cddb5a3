package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/testutil"
	"github.com/google/uuid"
)

// attachRouting 给BOM节点挂一条单工序路线
func attachRouting(t *testing.T, svc *testServices, node *entity.BomItem, cycleMinutes float64, workCellID *string) *entity.RoutingStep {
	t.Helper()
	ctx := context.Background()
	routing, err := svc.Routing.CreateRouting(ctx, &CreateRoutingInput{
		Name:      "排程路线-" + node.ID[:8],
		BomItemID: &node.ID,
	}, "u1")
	if err != nil {
		t.Fatalf("CreateRouting failed: %v", err)
	}
	step, err := svc.Routing.AddStep(ctx, routing.ID, &AddStepInput{
		Name:             "加工",
		CycleTimeMinutes: cycleMinutes,
		WorkCellID:       workCellID,
	})
	if err != nil {
		t.Fatalf("AddStep failed: %v", err)
	}
	return step
}

// 子件先排，父节点开工不早于子件完工
func TestScheduleProductionOrdersChildBeforeParent(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	rootItem := testutil.SeedItem(t, svc.DB, "SCH-ROOT")
	childItem := testutil.SeedItem(t, svc.DB, "SCH-CHILD")
	bom, nodes := buildPublishedBOM(t, svc, rootItem, []struct {
		Item *entity.Item
		Qty  float64
	}{{childItem, 2}})

	cell := testutil.SeedWorkCell(t, svc.DB, "CELL-A", 100)
	rootStep := attachRouting(t, svc, nodes[0], 5, &cell.ID)
	childStep := attachRouting(t, svc, nodes[1], 10, &cell.ID)

	order, err := svc.Explosion.CreateOrder(ctx, &CreateOrderInput{
		ItemID:           rootItem.ID,
		BillOfMaterialID: &bom.ID,
		Quantity:         2,
	}, "u1")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	result, err := svc.Scheduler.ScheduleProduction(ctx, order.ID)
	if err != nil {
		t.Fatalf("ScheduleProduction failed: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %+v", result.Conflicts)
	}
	if len(result.Schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(result.Schedules))
	}

	byStep := map[string]*entity.ProductionSchedule{}
	for i := range result.Schedules {
		byStep[result.Schedules[i].RoutingStepID] = &result.Schedules[i]
	}
	childSched, rootSched := byStep[childStep.ID], byStep[rootStep.ID]
	if childSched == nil || rootSched == nil {
		t.Fatal("schedules missing for routing steps")
	}

	// 订单数量2：子件工序 10×2=20 分钟，父件工序 5×2=10 分钟
	if got := childSched.ScheduledEnd.Sub(childSched.ScheduledStart); got != 20*time.Minute {
		t.Fatalf("child duration = %v, want 20m", got)
	}
	if got := rootSched.ScheduledEnd.Sub(rootSched.ScheduledStart); got != 10*time.Minute {
		t.Fatalf("root duration = %v, want 10m", got)
	}
	if rootSched.ScheduledStart.Before(childSched.ScheduledEnd) {
		t.Fatalf("root starts %v before child ends %v",
			rootSched.ScheduledStart, childSched.ScheduledEnd)
	}
	if childSched.Status != entity.ScheduleStatusScheduled {
		t.Fatalf("schedule status = %s, want scheduled", childSched.Status)
	}
}

// 效率折算：80%效率把纯工时放大到125%
func TestScheduleProductionAppliesEfficiency(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	rootItem := testutil.SeedItem(t, svc.DB, "EFF-ROOT")
	bom, nodes := buildPublishedBOM(t, svc, rootItem, nil)

	cell := testutil.SeedWorkCell(t, svc.DB, "CELL-SLOW", 80)
	attachRouting(t, svc, nodes[0], 8, &cell.ID)

	order, err := svc.Explosion.CreateOrder(ctx, &CreateOrderInput{
		ItemID: rootItem.ID, BillOfMaterialID: &bom.ID, Quantity: 1,
	}, "u1")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	result, err := svc.Scheduler.ScheduleProduction(ctx, order.ID)
	if err != nil {
		t.Fatalf("ScheduleProduction failed: %v", err)
	}
	if len(result.Schedules) != 1 {
		t.Fatalf("expected 1 schedule, got %d", len(result.Schedules))
	}
	if got := result.Schedules[0].ScheduledEnd.Sub(result.Schedules[0].ScheduledStart); got != 10*time.Minute {
		t.Fatalf("duration = %v, want 8m scaled to 10m at 80%% efficiency", got)
	}
}

// 缺工作单元和停用单元按冲突上报，不中断其余排程
func TestScheduleProductionReportsConflicts(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	rootItem := testutil.SeedItem(t, svc.DB, "CFL-ROOT")
	childItem := testutil.SeedItem(t, svc.DB, "CFL-CHILD")
	bom, nodes := buildPublishedBOM(t, svc, rootItem, []struct {
		Item *entity.Item
		Qty  float64
	}{{childItem, 1}})

	idle := testutil.SeedWorkCell(t, svc.DB, "CELL-OFF", 100)
	if err := svc.DB.Model(&entity.WorkCell{}).Where("id = ?", idle.ID).
		Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate cell failed: %v", err)
	}

	attachRouting(t, svc, nodes[0], 5, nil)      // 未指定工作单元
	attachRouting(t, svc, nodes[1], 5, &idle.ID) // 停用的工作单元

	order, err := svc.Explosion.CreateOrder(ctx, &CreateOrderInput{
		ItemID: rootItem.ID, BillOfMaterialID: &bom.ID, Quantity: 1,
	}, "u1")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	result, err := svc.Scheduler.ScheduleProduction(ctx, order.ID)
	if err != nil {
		t.Fatalf("ScheduleProduction failed: %v", err)
	}
	if len(result.Schedules) != 0 {
		t.Fatalf("expected no schedules, got %d", len(result.Schedules))
	}
	if len(result.Conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %d: %+v", len(result.Conflicts), result.Conflicts)
	}
}

// 未关联BOM的订单不能排程
func TestScheduleProductionRequiresBOM(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	item := testutil.SeedItem(t, svc.DB, "NOBOM")
	order, err := svc.Explosion.CreateOrder(ctx, &CreateOrderInput{
		ItemID: item.ID, Quantity: 1,
	}, "u1")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	_, err = svc.Scheduler.ScheduleProduction(ctx, order.ID)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func seedSchedule(t *testing.T, svc *testServices, orderID, cellID string, start time.Time, minutes int) *entity.ProductionSchedule {
	t.Helper()
	sched := &entity.ProductionSchedule{
		ID:                   uuid.New().String(),
		WorkCellID:           cellID,
		RoutingStepID:        uuid.New().String(),
		ManufacturingOrderID: orderID,
		ScheduledStart:       start,
		ScheduledEnd:         start.Add(time.Duration(minutes) * time.Minute),
		Status:               entity.ScheduleStatusScheduled,
	}
	if err := svc.DB.Create(sched).Error; err != nil {
		t.Fatalf("seed schedule failed: %v", err)
	}
	return sched
}

func seedBareOrder(t *testing.T, svc *testServices, code string) *entity.ManufacturingOrder {
	t.Helper()
	item := testutil.SeedItem(t, svc.DB, code)
	order, err := svc.Explosion.CreateOrder(context.Background(), &CreateOrderInput{
		ItemID: item.ID, Quantity: 1,
	}, "u1")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	return order
}

// 改期保持时长并级联平移同订单下游排程
func TestRescheduleCascadesDownstream(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	order := seedBareOrder(t, svc, "RSC-ORD")
	cellA := testutil.SeedWorkCell(t, svc.DB, "CELL-R1", 100)
	cellB := testutil.SeedWorkCell(t, svc.DB, "CELL-R2", 100)

	day := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC) // 周一
	s1 := seedSchedule(t, svc, order.ID, cellA.ID, day, 60)                     // 10:00-11:00
	s2 := seedSchedule(t, svc, order.ID, cellB.ID, day.Add(65*time.Minute), 60) // 11:05-12:05

	newStart := day.Add(30 * time.Minute) // 10:30
	if err := svc.Scheduler.Reschedule(ctx, s1.ID, newStart); err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}

	var got1, got2 entity.ProductionSchedule
	svc.DB.First(&got1, "id = ?", s1.ID)
	svc.DB.First(&got2, "id = ?", s2.ID)

	if !got1.ScheduledStart.Equal(newStart) || !got1.ScheduledEnd.Equal(newStart.Add(60*time.Minute)) {
		t.Fatalf("s1 moved to %v-%v, want 10:30-11:30", got1.ScheduledStart, got1.ScheduledEnd)
	}
	// s2 原开始 11:05 晚于旧结束 11:00 但早于新链尾 11:30，同步平移 +30 分钟
	wantStart := day.Add(95 * time.Minute)
	if !got2.ScheduledStart.Equal(wantStart) {
		t.Fatalf("s2 start = %v, want %v", got2.ScheduledStart, wantStart)
	}
	if got2.ScheduledEnd.Sub(got2.ScheduledStart) != 60*time.Minute {
		t.Fatal("cascade must preserve downstream duration")
	}
}

// 改到被占用的区间返回 ConflictError，落库状态不变
func TestRescheduleIntoOccupiedSlot(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	orderA := seedBareOrder(t, svc, "RSC-A")
	orderB := seedBareOrder(t, svc, "RSC-B")
	cell := testutil.SeedWorkCell(t, svc.DB, "CELL-O", 100)

	day := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	blocker := seedSchedule(t, svc, orderA.ID, cell.ID, day, 60)                   // 10:00-11:00
	mover := seedSchedule(t, svc, orderB.ID, cell.ID, day.Add(2*time.Hour), 60)    // 12:00-13:00

	err := svc.Scheduler.Reschedule(ctx, mover.ID, day.Add(30*time.Minute))
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	var got entity.ProductionSchedule
	svc.DB.First(&got, "id = ?", mover.ID)
	if !got.ScheduledStart.Equal(mover.ScheduledStart) {
		t.Fatal("failed reschedule must not move the schedule")
	}

	// 取消的排程不占区间
	if err := svc.DB.Model(&entity.ProductionSchedule{}).Where("id = ?", blocker.ID).
		Update("status", entity.ScheduleStatusCancelled).Error; err != nil {
		t.Fatalf("cancel blocker failed: %v", err)
	}
	if err := svc.Scheduler.Reschedule(ctx, mover.ID, day.Add(30*time.Minute)); err != nil {
		t.Fatalf("Reschedule after cancel failed: %v", err)
	}
}

// 工作单元负载统计区间内的活动排程
func TestWorkCellLoad(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	order := seedBareOrder(t, svc, "LOAD-ORD")
	cell := testutil.SeedWorkCell(t, svc.DB, "CELL-L", 100)

	day := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	seedSchedule(t, svc, order.ID, cell.ID, day, 90)
	seedSchedule(t, svc, order.ID, cell.ID, day.Add(3*time.Hour), 30)
	outside := seedSchedule(t, svc, order.ID, cell.ID, day.AddDate(0, 0, 10), 60)
	_ = outside

	minutes, schedules, err := svc.Scheduler.WorkCellLoad(ctx, cell.ID, day.Add(-time.Hour), day.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("WorkCellLoad failed: %v", err)
	}
	if len(schedules) != 2 {
		t.Fatalf("expected 2 schedules in range, got %d", len(schedules))
	}
	if minutes != 120 {
		t.Fatalf("load = %v minutes, want 120", minutes)
	}
}
