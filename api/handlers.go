/*
handlers.go - HTTP API handlers for the bake cost tracker

PURPOSE:
  Exposes the costing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain services.

ENDPOINTS:
  Ingredients:
    GET    /api/ingredients                    List ingredients
    POST   /api/ingredients                    Create ingredient
    GET    /api/ingredients/{id}               Get ingredient
    GET    /api/ingredients/{id}/lots          List lots (FIFO order)
    POST   /api/ingredients/{id}/lots          Register a lot
    GET    /api/ingredients/{id}/availability  Consumable quantity
    POST   /api/ingredients/{id}/deplete       Direct depletion
    POST   /api/ingredients/{id}/acquire       Weighted-average acquisition

  Lots:
    DELETE /api/lots/{id}                      Remove an unreferenced lot

  Recipes:
    GET    /api/recipes                        List recipes
    POST   /api/recipes                        Create recipe
    GET    /api/recipes/{id}                   Get recipe
    GET    /api/recipes/{id}/components        Composition edges
    POST   /api/recipes/{id}/components        Add a component
    GET    /api/recipes/{id}/feasibility       Dry-run cost projection
    POST   /api/recipes/{id}/produce           Commit a bake
    GET    /api/recipes/{id}/snapshots         Snapshot history

  Snapshots / productions:
    GET    /api/snapshots                      All snapshots
    GET    /api/snapshots/{id}                 One snapshot
    GET    /api/productions/{ref}/consumptions Depletion audit trail

  Admin:
    POST   /api/admin/backfill                 Backfilled historical snapshot

  Scenarios:
    GET    /api/scenarios                      List demo scenarios
    POST   /api/scenarios/load                 Load a demo scenario

ERROR HANDLING:
  Domain errors map to HTTP status via the costing error classifiers:
  - 400: validation and composition errors
  - 404: unknown ingredient/recipe/lot/snapshot
  - 409: integrity conflicts (duplicate snapshot, insufficient stock,
         referenced lot)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo catalog definitions
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kentonium3/bake-tracker-sub019/catalog"
	"github.com/kentonium3/bake-tracker-sub019/costing"
	"github.com/kentonium3/bake-tracker-sub019/factory"
	"github.com/kentonium3/bake-tracker-sub019/production"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      costing.TxStore
	Catalog    *catalog.Service
	Production *production.Service
	Factory    *factory.CatalogFactory

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler wired to the given services.
func NewHandler(store costing.TxStore, cat *catalog.Service, prod *production.Service, fac *factory.CatalogFactory) *Handler {
	return &Handler{
		Store:      store,
		Catalog:    cat,
		Production: prod,
		Factory:    fac,
	}
}

// =============================================================================
// INGREDIENT HANDLERS
// =============================================================================

// ListIngredients returns all ingredients.
func (h *Handler) ListIngredients(w http.ResponseWriter, r *http.Request) {
	ingredients, err := h.Store.Ingredients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list ingredients", err)
		return
	}

	dtos := make([]IngredientDTO, len(ingredients))
	for i, ing := range ingredients {
		dtos[i] = toIngredientDTO(ing)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateIngredient creates a new ingredient.
func (h *Handler) CreateIngredient(w http.ResponseWriter, r *http.Request) {
	var req CreateIngredientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	tracking := costing.TrackingMode(req.Tracking)
	if tracking == "" {
		tracking = costing.TrackLots
	}
	if tracking != costing.TrackLots && tracking != costing.TrackAverage {
		writeError(w, http.StatusBadRequest, "tracking must be \"lots\" or \"average\"", nil)
		return
	}

	ing, err := h.Catalog.CreateIngredient(r.Context(), req.Name, costing.Unit(req.Unit), tracking)
	if err != nil {
		writeDomainError(w, "Failed to create ingredient", err)
		return
	}
	writeJSON(w, http.StatusCreated, toIngredientDTO(*ing))
}

// GetIngredient returns a single ingredient.
func (h *Handler) GetIngredient(w http.ResponseWriter, r *http.Request) {
	id := costing.IngredientID(chi.URLParam(r, "id"))

	ing, err := h.Catalog.Ingredient(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get ingredient", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTO(*ing))
}

// ListLots returns an ingredient's lots in depletion order.
func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	id := costing.IngredientID(chi.URLParam(r, "id"))

	lots, err := h.Catalog.Lots(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list lots", err)
		return
	}

	dtos := make([]LotDTO, len(lots))
	for i, lot := range lots {
		dtos[i] = toLotDTO(lot)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterLot records a new acquisition batch for a lot-tracked ingredient.
func (h *Handler) RegisterLot(w http.ResponseWriter, r *http.Request) {
	id := costing.IngredientID(chi.URLParam(r, "id"))

	var req RegisterLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	quantity, err := parseQuantityField(req.Quantity, req.Unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}
	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unit_cost", err)
		return
	}

	var acquiredAt time.Time
	if req.AcquiredAt != "" {
		acquiredAt, err = time.Parse(time.RFC3339, req.AcquiredAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid acquired_at (use RFC3339)", err)
			return
		}
	}

	lot, err := h.Catalog.RegisterLot(r.Context(), id, quantity, unitCost, acquiredAt)
	if err != nil {
		writeDomainError(w, "Failed to register lot", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLotDTO(*lot))
}

// GetAvailability reports an ingredient's consumable quantity.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id := costing.IngredientID(chi.URLParam(r, "id"))

	available, err := h.Production.Availability(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get availability", err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{
		IngredientID: id,
		Available:    available.Value.String(),
		Unit:         string(available.Unit),
	})
}

// DepleteIngredient consumes stock outside a bake. dry_run previews the
// FIFO slices without mutating anything.
func (h *Handler) DepleteIngredient(w http.ResponseWriter, r *http.Request) {
	id := costing.IngredientID(chi.URLParam(r, "id"))

	var req DepleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	quantity, err := parseQuantityField(req.Quantity, req.Unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}

	mode := costing.ModeCommit
	if req.DryRun {
		mode = costing.ModeDryRun
	}

	result, err := h.Production.Deplete(r.Context(), id, quantity, mode)
	if err != nil {
		writeDomainError(w, "Failed to deplete", err)
		return
	}

	records := make([]ConsumptionDTO, len(result.Records))
	for i, rec := range result.Records {
		records[i] = toConsumptionDTO(rec)
	}
	writeJSON(w, http.StatusOK, DepletionResultDTO{
		IngredientID: result.IngredientID,
		Quantity:     result.Quantity.Value.String(),
		Unit:         string(result.Quantity.Unit),
		TotalCost:    result.TotalCost.String(),
		UnitCost:     result.UnitCost().String(),
		DryRun:       req.DryRun,
		Records:      records,
	})
}

// AcquireStock adds weighted-average stock and returns the new average.
func (h *Handler) AcquireStock(w http.ResponseWriter, r *http.Request) {
	id := costing.IngredientID(chi.URLParam(r, "id"))

	var req AcquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	quantity, err := parseQuantityField(req.Quantity, req.Unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}
	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unit_cost", err)
		return
	}

	avg, err := h.Production.Acquire(r.Context(), id, quantity, unitCost)
	if err != nil {
		writeDomainError(w, "Failed to acquire stock", err)
		return
	}
	writeJSON(w, http.StatusOK, AcquireResponse{
		IngredientID: id,
		AverageCost:  avg.String(),
	})
}

// DeleteLot removes a lot that no consumption references.
func (h *Handler) DeleteLot(w http.ResponseWriter, r *http.Request) {
	id := costing.LotID(chi.URLParam(r, "id"))

	if err := h.Catalog.RemoveLot(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete lot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RECIPE HANDLERS
// =============================================================================

// ListRecipes returns all recipes.
func (h *Handler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.Store.Recipes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list recipes", err)
		return
	}

	dtos := make([]RecipeDTO, len(recipes))
	for i, rec := range recipes {
		dtos[i] = toRecipeDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRecipe creates a new recipe.
func (h *Handler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req CreateRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	rec, err := h.Catalog.CreateRecipe(r.Context(), req.Name, costing.Unit(req.YieldUnit))
	if err != nil {
		writeDomainError(w, "Failed to create recipe", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecipeDTO(*rec))
}

// GetRecipe returns a single recipe.
func (h *Handler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	id := costing.AssemblyID(chi.URLParam(r, "id"))

	rec, err := h.Catalog.Recipe(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get recipe", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeDTO(*rec))
}

// ListComponents returns a recipe's composition edges in position order.
func (h *Handler) ListComponents(w http.ResponseWriter, r *http.Request) {
	id := costing.AssemblyID(chi.URLParam(r, "id"))

	edges, err := h.Catalog.Components(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list components", err)
		return
	}

	dtos := make([]ComponentDTO, len(edges))
	for i, edge := range edges {
		dtos[i] = toComponentDTO(edge)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddComponent adds one component edge to a recipe. Cycle validation
// happens inside the catalog service before anything is written.
func (h *Handler) AddComponent(w http.ResponseWriter, r *http.Request) {
	parentID := costing.AssemblyID(chi.URLParam(r, "id"))

	var req AddComponentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var ref costing.ComponentRef
	switch {
	case req.IngredientID != "" && req.RecipeID != "":
		writeError(w, http.StatusBadRequest, "Specify exactly one of ingredient_id or recipe_id", nil)
		return
	case req.IngredientID != "":
		ref = costing.IngredientRef(costing.IngredientID(req.IngredientID))
	case req.RecipeID != "":
		ref = costing.AssemblyRef(costing.AssemblyID(req.RecipeID))
	default:
		writeError(w, http.StatusBadRequest, "Specify exactly one of ingredient_id or recipe_id", nil)
		return
	}

	quantity, err := parseQuantityField(req.Quantity, req.Unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}

	edge, err := h.Catalog.AddComponent(r.Context(), parentID, ref, quantity, req.Position)
	if err != nil {
		writeDomainError(w, "Failed to add component", err)
		return
	}
	writeJSON(w, http.StatusCreated, toComponentDTO(*edge))
}

// GetFeasibility answers "can I make N of this right now, and at what
// cost?" without mutating stock. ?quantity= defaults to 1.
func (h *Handler) GetFeasibility(w http.ResponseWriter, r *http.Request) {
	id := costing.AssemblyID(chi.URLParam(r, "id"))

	quantity := decimal.NewFromInt(1)
	if q := r.URL.Query().Get("quantity"); q != "" {
		var err error
		quantity, err = decimal.NewFromString(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid quantity", err)
			return
		}
	}

	feas, err := h.Production.CanProduce(r.Context(), id, quantity)
	if err != nil {
		writeDomainError(w, "Failed to compute feasibility", err)
		return
	}

	dto := FeasibilityDTO{Feasible: feas.Feasible}
	if feas.Cost != nil {
		cost := toCostResultDTO(*feas.Cost)
		dto.Cost = &cost
	}
	if feas.Short != nil {
		dto.Short = &ShortageDTO{
			IngredientID: feas.Short.IngredientID,
			Available:    feas.Short.Available.Value.String(),
			Requested:    feas.Short.Requested.Value.String(),
			Shortfall:    feas.Short.Shortfall().Value.String(),
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// Produce commits a bake: depletes stock transactionally and freezes a
// cost snapshot. With dry_run it only projects, mutating nothing.
func (h *Handler) Produce(w http.ResponseWriter, r *http.Request) {
	id := costing.AssemblyID(chi.URLParam(r, "id"))

	var req ProduceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}

	if req.DryRun {
		feas, err := h.Production.CanProduce(r.Context(), id, quantity)
		if err != nil {
			writeDomainError(w, "Failed to project bake", err)
			return
		}
		if !feas.Feasible {
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error:   "Insufficient stock",
				Details: feas.Short.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, BakeDTO{Cost: toCostResultDTO(*feas.Cost)})
		return
	}

	bake, err := h.Production.Produce(r.Context(), id, quantity)
	if err != nil {
		writeDomainError(w, "Failed to produce", err)
		return
	}

	snap := toSnapshotDTO(bake.Snapshot)
	writeJSON(w, http.StatusCreated, BakeDTO{
		ProductionRef: bake.Ref,
		Cost:          toCostResultDTO(*bake.Cost),
		Snapshot:      &snap,
	})
}

// ListRecipeSnapshots returns a recipe's snapshot history, newest first.
func (h *Handler) ListRecipeSnapshots(w http.ResponseWriter, r *http.Request) {
	id := costing.AssemblyID(chi.URLParam(r, "id"))

	snaps, err := h.Store.SnapshotsByEntity(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots", err)
		return
	}

	dtos := make([]SnapshotDTO, len(snaps))
	for i, snap := range snaps {
		dtos[i] = toSnapshotDTO(snap)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SNAPSHOT AND AUDIT HANDLERS
// =============================================================================

// ListSnapshots returns every snapshot, newest first.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.Store.Snapshots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots", err)
		return
	}

	dtos := make([]SnapshotDTO, len(snaps))
	for i, snap := range snaps {
		dtos[i] = toSnapshotDTO(snap)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSnapshot returns a single snapshot.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := costing.SnapshotID(chi.URLParam(r, "id"))

	snap, err := h.Store.Snapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(*snap))
}

// ListProductionConsumptions returns the depletion audit trail for one
// production event.
func (h *Handler) ListProductionConsumptions(w http.ResponseWriter, r *http.Request) {
	ref := costing.ProductionRef(chi.URLParam(r, "ref"))

	records, err := h.Store.ConsumptionsByProduction(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list consumptions", err)
		return
	}

	dtos := make([]ConsumptionDTO, len(records))
	for i, rec := range records {
		dtos[i] = toConsumptionDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Backfill records a historical cost snapshot for a bake that predates
// the system. The snapshot is flagged and no stock is touched.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}
	totalCost, err := decimal.NewFromString(req.TotalCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total_cost", err)
		return
	}
	producedAt, err := time.Parse(time.RFC3339, req.ProducedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid produced_at (use RFC3339)", err)
		return
	}

	snap, err := h.Production.BackfillSnapshot(r.Context(), production.BackfillInput{
		RecipeID:   req.RecipeID,
		Quantity:   quantity,
		TotalCost:  totalCost,
		Components: req.Components,
		ProducedAt: producedAt,
	})
	if err != nil {
		writeDomainError(w, "Failed to backfill snapshot", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotDTO(*snap))
}

// =============================================================================
// HELPERS
// =============================================================================

func parseQuantityField(value, unit string) (costing.Quantity, error) {
	if value == "" {
		return costing.Quantity{}, fmt.Errorf("quantity is required")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return costing.Quantity{}, fmt.Errorf("quantity %q is not a decimal: %w", value, err)
	}
	return costing.NewQuantityFromDecimal(d, costing.Unit(unit)), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps costing errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case costing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case costing.IsIntegrityError(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, costing.ErrInsufficientStock), errors.Is(err, costing.ErrLotReferenced):
		writeError(w, http.StatusConflict, message, err)
	case costing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
