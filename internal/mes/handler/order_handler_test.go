package handler

import (
	"net/http"
	"testing"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/config"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/service"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/testutil"
)

func setupOrderTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	svc := service.NewServices(repos, db, nil, &config.Config{})
	h := NewHandlers(svc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/items", h.Item.Create)
	api.POST("/boms", h.BOM.Create)
	api.POST("/bom-versions/:id/items", h.BOM.AddItem)
	api.POST("/bom-versions/:id/publish", h.BOM.Publish)
	api.POST("/routings", h.Routing.Create)
	api.POST("/orders", h.Order.Create)
	api.GET("/orders/:id/tree", h.Order.GetTree)
	api.GET("/orders/:id/routing", h.Routing.ResolveForOrder)
	api.POST("/orders/:id/explode", h.Order.Explode)
	api.POST("/orders/:id/release", h.Order.Release)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

func createItemViaAPI(t *testing.T, env *testutil.TestEnv, token, code string) string {
	t.Helper()
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/items", map[string]interface{}{
		"code":                code,
		"name":                "物料 " + code,
		"can_be_manufactured": true,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating item, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	return resp["data"].(map[string]interface{})["id"].(string)
}

// TestOrderExplodeFlow walks the full path: items → BOM → publish → order → explode
func TestOrderExplodeFlow(t *testing.T) {
	env := setupOrderTest(t)
	token := testutil.DefaultTestToken()

	rootID := createItemViaAPI(t, env, token, "API-ROOT")
	subID := createItemViaAPI(t, env, token, "API-SUB")

	// Create BOM
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/boms", map[string]interface{}{
		"name":           "接口测试BOM",
		"output_item_id": rootID,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating BOM, got %d: %s", w.Code, w.Body.String())
	}
	bomID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	var version entity.BomVersion
	if err := env.DB.First(&version, "bill_of_material_id = ?", bomID).Error; err != nil {
		t.Fatalf("draft version missing: %v", err)
	}

	// Root node then one sub-assembly, qty 4
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/bom-versions/"+version.ID+"/items",
		map[string]interface{}{"item_id": rootID, "quantity": 1}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 adding root node, got %d: %s", w.Code, w.Body.String())
	}
	rootNodeID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/bom-versions/"+version.ID+"/items",
		map[string]interface{}{"item_id": subID, "parent_item_id": rootNodeID, "quantity": 4}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 adding child node, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/bom-versions/"+version.ID+"/publish", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 publishing, got %d: %s", w.Code, w.Body.String())
	}

	// Create order, qty 3
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"item_id":             rootID,
		"bill_of_material_id": bomID,
		"quantity":            3,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating order, got %d: %s", w.Code, w.Body.String())
	}
	orderData := testutil.ParseResponse(w)["data"].(map[string]interface{})
	orderID := orderData["id"].(string)
	if orderData["status"] != entity.OrderStatusDraft {
		t.Fatalf("expected draft order, got %v", orderData["status"])
	}

	// Explode: sub-assembly 4 × order 3 = 12
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/explode", nil, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 exploding, got %d: %s", w.Code, w.Body.String())
	}
	explodeData := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if explodeData["count"].(float64) != 1 {
		t.Fatalf("expected 1 child order, got %v", explodeData["count"])
	}

	var child entity.ManufacturingOrder
	if err := env.DB.First(&child, "parent_id = ?", orderID).Error; err != nil {
		t.Fatalf("child order missing: %v", err)
	}
	if child.Quantity != 12 {
		t.Fatalf("child quantity = %v, want 12", child.Quantity)
	}
	if child.Number != orderData["number"].(string)+"-001" {
		t.Fatalf("child number = %s, want parent suffix -001", child.Number)
	}

	// Order tree returns root plus descendant
	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/orders/"+orderID+"/tree", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for tree, got %d: %s", w.Code, w.Body.String())
	}
	treeData := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if len(treeData["descendants"].([]interface{})) != 1 {
		t.Fatalf("expected 1 descendant, got %v", treeData["descendants"])
	}

	// Release
	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders/"+orderID+"/release", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 releasing, got %d: %s", w.Code, w.Body.String())
	}
}

// TestOrderRoutingEndpoint resolves the routing mounted on an order
func TestOrderRoutingEndpoint(t *testing.T) {
	env := setupOrderTest(t)
	token := testutil.DefaultTestToken()

	itemID := createItemViaAPI(t, env, token, "API-RTG")
	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"item_id":  itemID,
		"quantity": 2,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating order, got %d: %s", w.Code, w.Body.String())
	}
	orderID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	// No routing mounted yet
	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/orders/"+orderID+"/routing", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without routing, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/routings", map[string]interface{}{
		"name":                   "订单装配路线",
		"manufacturing_order_id": orderID,
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating routing, got %d: %s", w.Code, w.Body.String())
	}
	routingID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/orders/"+orderID+"/routing", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 resolving order routing, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["id"].(string) != routingID {
		t.Fatalf("resolved routing %v, want %s", data["id"], routingID)
	}
}

// TestOrderEndpointsRejectWithoutToken verifies JWT auth guards the API
func TestOrderEndpointsRejectWithoutToken(t *testing.T) {
	env := setupOrderTest(t)

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders",
		map[string]interface{}{"item_id": "x", "quantity": 1}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

// TestOrderCreateValidation rejects malformed payloads with the error envelope
func TestOrderCreateValidation(t *testing.T) {
	env := setupOrderTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/orders",
		map[string]interface{}{"quantity": 1}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing item_id, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["code"].(float64) != 40000 {
		t.Fatalf("expected code 40000, got %v", resp["code"])
	}
}
