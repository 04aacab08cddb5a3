package service

import (
	"context"
	"testing"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/testutil"
	"gorm.io/gorm"
)

// testServices wires every service against an isolated test schema
// with the in-process routing cache.
type testServices struct {
	DB        *gorm.DB
	Repos     *repository.Repositories
	Item      *ItemService
	BOM       *BOMService
	Routing   *RoutingService
	Explosion *ExplosionService
	Execution *ExecutionService
	Scheduler *SchedulerService
	WorkCell  *WorkCellService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)

	routingSvc := NewRoutingService(repos.Routing, repos.BOM, repos.ActivityLog, NewMemoryRoutingCache(), db)
	return &testServices{
		DB:        db,
		Repos:     repos,
		Item:      NewItemService(repos.Item, repos.BOM),
		BOM:       NewBOMService(repos.BOM, repos.Item, repos.ActivityLog, db),
		Routing:   routingSvc,
		Explosion: NewExplosionService(repos.Order, repos.BOM, repos.Item, repos.ActivityLog, db),
		Execution: NewExecutionService(repos.Routing, repos.Execution, repos.Order, repos.ActivityLog, db),
		Scheduler: NewSchedulerService(repos.Order, repos.BOM, routingSvc, repos.WorkCell,
			repos.Schedule, repos.ActivityLog, DefaultSchedulePolicy(), db),
		WorkCell: NewWorkCellService(repos.WorkCell, repos.Schedule),
	}
}

// draftVersion returns the version CreateBOM seeded for the BOM.
func draftVersion(t *testing.T, db *gorm.DB, bomID string) *entity.BomVersion {
	t.Helper()
	var version entity.BomVersion
	if err := db.First(&version, "bill_of_material_id = ?", bomID).Error; err != nil {
		t.Fatalf("Failed to load draft version: %v", err)
	}
	return &version
}

// buildPublishedBOM creates a BOM for rootItem with the given child chain
// (each child hangs under the previous one) and publishes it.
// Returns the BOM and the created bom items, root first.
func buildPublishedBOM(t *testing.T, svc *testServices, rootItem *entity.Item, children []struct {
	Item *entity.Item
	Qty  float64
}) (*entity.BillOfMaterial, []*entity.BomItem) {
	t.Helper()
	ctx := context.Background()

	bom, err := svc.BOM.CreateBOM(ctx, &CreateBOMInput{
		Name:         "BOM " + rootItem.Code,
		OutputItemID: rootItem.ID,
	}, "test-user-001")
	if err != nil {
		t.Fatalf("CreateBOM failed: %v", err)
	}
	version := draftVersion(t, svc.DB, bom.ID)

	root, err := svc.BOM.AddItem(ctx, version.ID, &AddBomItemInput{
		ItemID:   rootItem.ID,
		Quantity: 1,
	})
	if err != nil {
		t.Fatalf("AddItem root failed: %v", err)
	}

	nodes := []*entity.BomItem{root}
	parentID := root.ID
	for i, child := range children {
		node, err := svc.BOM.AddItem(ctx, version.ID, &AddBomItemInput{
			ItemID:         child.Item.ID,
			ParentItemID:   &parentID,
			Quantity:       child.Qty,
			SequenceNumber: i + 1,
		})
		if err != nil {
			t.Fatalf("AddItem child %d failed: %v", i, err)
		}
		nodes = append(nodes, node)
		parentID = node.ID
	}

	if _, err := svc.BOM.PublishVersion(ctx, version.ID, "", "test-user-001"); err != nil {
		t.Fatalf("PublishVersion failed: %v", err)
	}
	return bom, nodes
}
