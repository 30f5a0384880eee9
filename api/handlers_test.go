/*
handlers_test.go - HTTP handler tests

Exercises the full request path: router, handlers, services, and the
in-memory store. Cost figures are compared as decimals rather than raw
strings so exponent differences never matter.
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kentonium3/bake-tracker-sub019/catalog"
	"github.com/kentonium3/bake-tracker-sub019/costing"
	"github.com/kentonium3/bake-tracker-sub019/costing/store"
	"github.com/kentonium3/bake-tracker-sub019/factory"
	"github.com/kentonium3/bake-tracker-sub019/production"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := zerolog.Nop()
	mem := store.NewMemory()
	fifo := costing.NewDepletionEngine(log)
	avg := costing.NewAverageEngine()
	agg := costing.NewAggregator(fifo, avg, 32, log)
	cat := catalog.NewService(mem, log)
	prod := production.NewService(mem, agg, fifo, avg, log)
	fac := factory.NewCatalogFactory(cat, prod, log)
	return NewRouter(NewHandler(mem, cat, prod, fac))
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response (%s): %v", rr.Body.String(), err)
	}
}

func assertDecimal(t *testing.T, got, want string) {
	t.Helper()
	g, err := decimal.NewFromString(got)
	if err != nil {
		t.Fatalf("response value %q is not a decimal: %v", got, err)
	}
	if !g.Equal(costing.MustParseDecimal(want)) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func createIngredient(t *testing.T, router http.Handler, name, unit, tracking string) IngredientDTO {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/api/ingredients", CreateIngredientRequest{
		Name: name, Unit: unit, Tracking: tracking,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create ingredient: status %d: %s", rr.Code, rr.Body.String())
	}
	var dto IngredientDTO
	decode(t, rr, &dto)
	return dto
}

func createRecipe(t *testing.T, router http.Handler, name, yieldUnit string) RecipeDTO {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/api/recipes", CreateRecipeRequest{
		Name: name, YieldUnit: yieldUnit,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create recipe: status %d: %s", rr.Code, rr.Body.String())
	}
	var dto RecipeDTO
	decode(t, rr, &dto)
	return dto
}

func registerLot(t *testing.T, router http.Handler, ingredientID, qty, unit, unitCost, acquiredAt string) LotDTO {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/api/ingredients/"+ingredientID+"/lots", RegisterLotRequest{
		Quantity: qty, Unit: unit, UnitCost: unitCost, AcquiredAt: acquiredAt,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register lot: status %d: %s", rr.Code, rr.Body.String())
	}
	var dto LotDTO
	decode(t, rr, &dto)
	return dto
}

// cookieFixture builds the catalog used by the production tests:
// cookies need 2g of flour and 3g of butter each; flour carries two
// lots (3g at 1.50, 10g at 2.00), butter is averaged at 0.50.
func cookieFixture(t *testing.T, router http.Handler) (recipeID string) {
	t.Helper()
	flour := createIngredient(t, router, "Flour", "g", "lots")
	butter := createIngredient(t, router, "Butter", "g", "average")

	registerLot(t, router, string(flour.ID), "3", "g", "1.50", "2026-01-01T00:00:00Z")
	registerLot(t, router, string(flour.ID), "10", "g", "2.00", "2026-01-02T00:00:00Z")

	rr := do(t, router, http.MethodPost, "/api/ingredients/"+string(butter.ID)+"/acquire", AcquireRequest{
		Quantity: "100", Unit: "g", UnitCost: "0.50",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("acquire butter: status %d: %s", rr.Code, rr.Body.String())
	}

	recipe := createRecipe(t, router, "Cookies", "each")
	for i, comp := range []AddComponentRequest{
		{IngredientID: string(flour.ID), Quantity: "2", Unit: "g", Position: 0},
		{IngredientID: string(butter.ID), Quantity: "3", Unit: "g", Position: 1},
	} {
		rr := do(t, router, http.MethodPost, "/api/recipes/"+string(recipe.ID)+"/components", comp)
		if rr.Code != http.StatusCreated {
			t.Fatalf("add component %d: status %d: %s", i, rr.Code, rr.Body.String())
		}
	}
	return string(recipe.ID)
}

func TestCreateIngredient_DefaultsToLotTracking(t *testing.T) {
	// GIVEN: a fresh server
	router := newTestRouter(t)

	// WHEN: an ingredient is created without a tracking mode
	dto := createIngredient(t, router, "Salt", "g", "")

	// THEN: it defaults to lot tracking and can be fetched back
	if dto.Tracking != "lots" {
		t.Errorf("tracking = %q, want lots", dto.Tracking)
	}
	rr := do(t, router, http.MethodGet, "/api/ingredients/"+string(dto.ID), nil)
	if rr.Code != http.StatusOK {
		t.Errorf("fetch after create: status %d", rr.Code)
	}
}

func TestCreateIngredient_BlankNameRejected(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/api/ingredients", CreateIngredientRequest{Unit: "g"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestGetIngredient_UnknownReturns404(t *testing.T) {
	router := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/api/ingredients/no-such-id", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestAvailability_SumsLots(t *testing.T) {
	// GIVEN: an ingredient with two lots
	router := newTestRouter(t)
	ing := createIngredient(t, router, "Flour", "g", "lots")
	registerLot(t, router, string(ing.ID), "3", "g", "1.50", "2026-01-01T00:00:00Z")
	registerLot(t, router, string(ing.ID), "10", "g", "2.00", "2026-01-02T00:00:00Z")

	// WHEN: availability is queried
	rr := do(t, router, http.MethodGet, "/api/ingredients/"+string(ing.ID)+"/availability", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	// THEN: the lots are summed
	var dto AvailabilityDTO
	decode(t, rr, &dto)
	assertDecimal(t, dto.Available, "13")
}

func TestDeplete_WalksLotsOldestFirst(t *testing.T) {
	// GIVEN: two lots, the cheaper one older
	router := newTestRouter(t)
	ing := createIngredient(t, router, "Flour", "g", "lots")
	registerLot(t, router, string(ing.ID), "3", "g", "1.50", "2026-01-01T00:00:00Z")
	registerLot(t, router, string(ing.ID), "10", "g", "2.00", "2026-01-02T00:00:00Z")

	// WHEN: 4g are depleted
	rr := do(t, router, http.MethodPost, "/api/ingredients/"+string(ing.ID)+"/deplete", DepleteRequest{
		Quantity: "4", Unit: "g",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	// THEN: cost is 3*1.50 + 1*2.00, drawn from both lots
	var dto DepletionResultDTO
	decode(t, rr, &dto)
	assertDecimal(t, dto.TotalCost, "6.50")
	if len(dto.Records) != 2 {
		t.Errorf("records = %d, want 2", len(dto.Records))
	}

	avail := do(t, router, http.MethodGet, "/api/ingredients/"+string(ing.ID)+"/availability", nil)
	var a AvailabilityDTO
	decode(t, avail, &a)
	assertDecimal(t, a.Available, "9")
}

func TestDeplete_InsufficientStockReturns409(t *testing.T) {
	router := newTestRouter(t)
	ing := createIngredient(t, router, "Flour", "g", "lots")
	registerLot(t, router, string(ing.ID), "3", "g", "1.50", "2026-01-01T00:00:00Z")

	rr := do(t, router, http.MethodPost, "/api/ingredients/"+string(ing.ID)+"/deplete", DepleteRequest{
		Quantity: "5", Unit: "g",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rr.Code, rr.Body.String())
	}

	// Nothing moved.
	avail := do(t, router, http.MethodGet, "/api/ingredients/"+string(ing.ID)+"/availability", nil)
	var a AvailabilityDTO
	decode(t, avail, &a)
	assertDecimal(t, a.Available, "3")
}

func TestAddComponent_RequiresExactlyOneReference(t *testing.T) {
	router := newTestRouter(t)
	ing := createIngredient(t, router, "Flour", "g", "lots")
	recipe := createRecipe(t, router, "Bread", "each")

	// Both references set.
	rr := do(t, router, http.MethodPost, "/api/recipes/"+string(recipe.ID)+"/components", AddComponentRequest{
		IngredientID: string(ing.ID), RecipeID: string(recipe.ID), Quantity: "1", Unit: "g",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("both refs: status = %d, want 400", rr.Code)
	}

	// Neither reference set.
	rr = do(t, router, http.MethodPost, "/api/recipes/"+string(recipe.ID)+"/components", AddComponentRequest{
		Quantity: "1", Unit: "g",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("no refs: status = %d, want 400", rr.Code)
	}
}

func TestAddComponent_CycleReturns409(t *testing.T) {
	// GIVEN: cake contains frosting
	router := newTestRouter(t)
	cake := createRecipe(t, router, "Cake", "each")
	frosting := createRecipe(t, router, "Frosting", "g")

	rr := do(t, router, http.MethodPost, "/api/recipes/"+string(cake.ID)+"/components", AddComponentRequest{
		RecipeID: string(frosting.ID), Quantity: "100", Unit: "g",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add frosting to cake: status %d: %s", rr.Code, rr.Body.String())
	}

	// WHEN: frosting tries to contain cake
	rr = do(t, router, http.MethodPost, "/api/recipes/"+string(frosting.ID)+"/components", AddComponentRequest{
		RecipeID: string(cake.ID), Quantity: "1", Unit: "each",
	})

	// THEN: the edge is refused and nothing is persisted
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rr.Code, rr.Body.String())
	}
	list := do(t, router, http.MethodGet, "/api/recipes/"+string(frosting.ID)+"/components", nil)
	var comps []ComponentDTO
	decode(t, list, &comps)
	if len(comps) != 0 {
		t.Errorf("frosting has %d components after rejected edge, want 0", len(comps))
	}
}

func TestProduce_CommitDepletesStockAndWritesSnapshot(t *testing.T) {
	// GIVEN: the cookie catalog with stock on hand
	router := newTestRouter(t)
	recipeID := cookieFixture(t, router)

	// WHEN: two cookies are produced
	rr := do(t, router, http.MethodPost, "/api/recipes/"+recipeID+"/produce", ProduceRequest{Quantity: "2"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var bake BakeDTO
	decode(t, rr, &bake)

	// THEN: the cost reflects FIFO flour plus averaged butter
	assertDecimal(t, bake.Cost.TotalCost, "9.50")
	assertDecimal(t, bake.Cost.PerUnitCost, "4.75")
	if bake.ProductionRef == "" {
		t.Error("production ref is empty")
	}
	if bake.Snapshot == nil {
		t.Fatal("snapshot missing from commit response")
	}
	if bake.Snapshot.Backfilled {
		t.Error("live production snapshot flagged as backfilled")
	}

	// AND: the snapshot and its audit trail are queryable
	snaps := do(t, router, http.MethodGet, "/api/recipes/"+recipeID+"/snapshots", nil)
	var history []SnapshotDTO
	decode(t, snaps, &history)
	if len(history) != 1 {
		t.Fatalf("snapshot history = %d entries, want 1", len(history))
	}

	cons := do(t, router, http.MethodGet, fmt.Sprintf("/api/productions/%s/consumptions", bake.ProductionRef), nil)
	var records []ConsumptionDTO
	decode(t, cons, &records)
	if len(records) == 0 {
		t.Error("no consumption records for the production")
	}
}

func TestProduce_DryRunReportsCostWithoutPersisting(t *testing.T) {
	router := newTestRouter(t)
	recipeID := cookieFixture(t, router)

	rr := do(t, router, http.MethodPost, "/api/recipes/"+recipeID+"/produce", ProduceRequest{
		Quantity: "2", DryRun: true,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var bake BakeDTO
	decode(t, rr, &bake)
	assertDecimal(t, bake.Cost.TotalCost, "9.50")
	if bake.Snapshot != nil {
		t.Error("dry run returned a snapshot")
	}

	snaps := do(t, router, http.MethodGet, "/api/recipes/"+recipeID+"/snapshots", nil)
	var history []SnapshotDTO
	decode(t, snaps, &history)
	if len(history) != 0 {
		t.Errorf("dry run persisted %d snapshots", len(history))
	}
}

func TestProduce_InsufficientStockReturns409AndRollsBack(t *testing.T) {
	// GIVEN: stock for at most six cookies' flour
	router := newTestRouter(t)
	recipeID := cookieFixture(t, router)

	// WHEN: ten cookies are requested (20g flour against 13g)
	rr := do(t, router, http.MethodPost, "/api/recipes/"+recipeID+"/produce", ProduceRequest{Quantity: "10"})

	// THEN: the request is refused and no snapshot exists
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rr.Code, rr.Body.String())
	}
	snaps := do(t, router, http.MethodGet, "/api/recipes/"+recipeID+"/snapshots", nil)
	var history []SnapshotDTO
	decode(t, snaps, &history)
	if len(history) != 0 {
		t.Errorf("failed production persisted %d snapshots", len(history))
	}
}

func TestFeasibility_ReportsShortfall(t *testing.T) {
	router := newTestRouter(t)
	recipeID := cookieFixture(t, router)

	// Feasible at quantity 2.
	rr := do(t, router, http.MethodGet, "/api/recipes/"+recipeID+"/feasibility?quantity=2", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var feas FeasibilityDTO
	decode(t, rr, &feas)
	if !feas.Feasible {
		t.Fatal("quantity 2 should be feasible")
	}
	assertDecimal(t, feas.Cost.TotalCost, "9.50")

	// Infeasible at quantity 10: 20g of flour against 13g on hand.
	rr = do(t, router, http.MethodGet, "/api/recipes/"+recipeID+"/feasibility?quantity=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &feas)
	if feas.Feasible {
		t.Fatal("quantity 10 should not be feasible")
	}
	if feas.Short == nil {
		t.Fatal("shortage details missing")
	}
	assertDecimal(t, feas.Short.Shortfall, "7")
}

func TestBackfill_CreatesFlaggedSnapshot(t *testing.T) {
	router := newTestRouter(t)
	recipe := createRecipe(t, router, "Old Bake", "each")

	rr := do(t, router, http.MethodPost, "/api/admin/backfill", BackfillRequest{
		RecipeID:   recipe.ID,
		Quantity:   "4",
		TotalCost:  "10.00",
		ProducedAt: "2025-06-01T00:00:00Z",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var snap SnapshotDTO
	decode(t, rr, &snap)
	if !snap.Backfilled {
		t.Error("backfilled snapshot not flagged")
	}
	assertDecimal(t, snap.PerUnitCost, "2.5")
	if snap.CreatedAt != "2025-06-01T00:00:00Z" {
		t.Errorf("created_at = %q, want the produced_at timestamp", snap.CreatedAt)
	}
}

func TestScenarios_LoadAndList(t *testing.T) {
	router := newTestRouter(t)

	list := do(t, router, http.MethodGet, "/api/scenarios", nil)
	var available []ScenarioDTO
	decode(t, list, &available)
	if len(available) != 3 {
		t.Fatalf("scenarios = %d, want 3", len(available))
	}

	rr := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{Name: "bakery-basics"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var loaded LoadScenarioResponse
	decode(t, rr, &loaded)
	if loaded.Ingredients != 3 || loaded.Recipes != 1 {
		t.Errorf("loaded %d ingredients / %d recipes, want 3 / 1", loaded.Ingredients, loaded.Recipes)
	}
	if len(loaded.Skipped) != 0 {
		t.Errorf("scenario skipped components: %v", loaded.Skipped)
	}

	current := do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	var cur map[string]string
	decode(t, current, &cur)
	if cur["name"] != "bakery-basics" {
		t.Errorf("current scenario = %q", cur["name"])
	}

	missing := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{Name: "nope"})
	if missing.Code != http.StatusNotFound {
		t.Errorf("unknown scenario: status = %d, want 404", missing.Code)
	}
}
