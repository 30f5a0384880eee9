/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with clients. Kept separate from domain types so
  the wire format can evolve without touching the costing engine.

CONVENTIONS:
  - Decimal quantities and costs travel as strings ("12.50"), never as
    floats, so nothing is lost in transit.
  - Timestamps are RFC3339.
  - Component breakdowns reuse costing.ComponentCost directly since that
    type already carries JSON tags.

SEE ALSO:
  - handlers.go: where these are populated
*/
package api

import (
	"time"

	"github.com/kentonium3/bake-tracker-sub019/costing"
)

// =============================================================================
// CATALOG
// =============================================================================

type IngredientDTO struct {
	ID        costing.IngredientID `json:"id"`
	Name      string               `json:"name"`
	Unit      string               `json:"unit"`
	Tracking  string               `json:"tracking"`
	CreatedAt string               `json:"created_at"`
}

type CreateIngredientRequest struct {
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Tracking string `json:"tracking"` // "lots" or "average"
}

type RecipeDTO struct {
	ID        costing.AssemblyID `json:"id"`
	Name      string             `json:"name"`
	YieldUnit string             `json:"yield_unit"`
	CreatedAt string             `json:"created_at"`
}

type CreateRecipeRequest struct {
	Name      string `json:"name"`
	YieldUnit string `json:"yield_unit"`
}

// AddComponentRequest names exactly one of ingredient_id or recipe_id.
type AddComponentRequest struct {
	IngredientID string `json:"ingredient_id,omitempty"`
	RecipeID     string `json:"recipe_id,omitempty"`
	Quantity     string `json:"quantity"`
	Unit         string `json:"unit"`
	Position     int    `json:"position"`
}

type ComponentDTO struct {
	ID          string             `json:"id"`
	ParentID    costing.AssemblyID `json:"parent_id"`
	Kind        string             `json:"kind"`
	ComponentID string             `json:"component_id"`
	Quantity    string             `json:"quantity"`
	Unit        string             `json:"unit"`
	Position    int                `json:"position"`
}

// =============================================================================
// STOCK
// =============================================================================

type RegisterLotRequest struct {
	Quantity   string `json:"quantity"`
	Unit       string `json:"unit"`
	UnitCost   string `json:"unit_cost"`
	AcquiredAt string `json:"acquired_at,omitempty"` // RFC3339, defaults to now
}

type LotDTO struct {
	ID           costing.LotID        `json:"id"`
	IngredientID costing.IngredientID `json:"ingredient_id"`
	Original     string               `json:"original"`
	Remaining    string               `json:"remaining"`
	Unit         string               `json:"unit"`
	UnitCost     string               `json:"unit_cost"`
	AcquiredAt   string               `json:"acquired_at"`
	Exhausted    bool                 `json:"exhausted"`
}

type AcquireRequest struct {
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
	UnitCost string `json:"unit_cost"`
}

type AcquireResponse struct {
	IngredientID costing.IngredientID `json:"ingredient_id"`
	AverageCost  string               `json:"average_cost"`
}

type DepleteRequest struct {
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

type ConsumptionDTO struct {
	ID            costing.ConsumptionID `json:"id"`
	LotID         costing.LotID         `json:"lot_id"`
	IngredientID  costing.IngredientID  `json:"ingredient_id"`
	Quantity      string                `json:"quantity"`
	Unit          string                `json:"unit"`
	Cost          string                `json:"cost"`
	ProductionRef costing.ProductionRef `json:"production_ref"`
	CreatedAt     string                `json:"created_at"`
}

type DepletionResultDTO struct {
	IngredientID costing.IngredientID `json:"ingredient_id"`
	Quantity     string               `json:"quantity"`
	Unit         string               `json:"unit"`
	TotalCost    string               `json:"total_cost"`
	UnitCost     string               `json:"unit_cost"`
	DryRun       bool                 `json:"dry_run"`
	Records      []ConsumptionDTO     `json:"records"`
}

type AvailabilityDTO struct {
	IngredientID costing.IngredientID `json:"ingredient_id"`
	Available    string               `json:"available"`
	Unit         string               `json:"unit"`
}

// =============================================================================
// COSTING
// =============================================================================

type CostResultDTO struct {
	EntityID    costing.AssemblyID      `json:"entity_id"`
	Quantity    string                  `json:"quantity"`
	TotalCost   string                  `json:"total_cost"`
	PerUnitCost string                  `json:"per_unit_cost"`
	Components  []costing.ComponentCost `json:"components"`
}

type FeasibilityDTO struct {
	Feasible bool           `json:"feasible"`
	Cost     *CostResultDTO `json:"cost,omitempty"`
	Short    *ShortageDTO   `json:"short,omitempty"`
}

type ShortageDTO struct {
	IngredientID costing.IngredientID `json:"ingredient_id"`
	Available    string               `json:"available"`
	Requested    string               `json:"requested"`
	Shortfall    string               `json:"shortfall"`
}

type ProduceRequest struct {
	Quantity string `json:"quantity"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

type BakeDTO struct {
	ProductionRef costing.ProductionRef `json:"production_ref"`
	Cost          CostResultDTO         `json:"cost"`
	Snapshot      *SnapshotDTO          `json:"snapshot,omitempty"`
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

type SnapshotDTO struct {
	ID             costing.SnapshotID      `json:"id"`
	EntityID       costing.AssemblyID      `json:"entity_id"`
	ProductionRef  costing.ProductionRef   `json:"production_ref"`
	Quantity       string                  `json:"quantity"`
	TotalCost      string                  `json:"total_cost"`
	PerUnitCost    string                  `json:"per_unit_cost"`
	Components     []costing.ComponentCost `json:"components"`
	ConsumptionIDs []costing.ConsumptionID `json:"consumption_ids,omitempty"`
	Backfilled     bool                    `json:"backfilled"`
	CreatedAt      string                  `json:"created_at"`
}

type BackfillRequest struct {
	RecipeID   costing.AssemblyID      `json:"recipe_id"`
	Quantity   string                  `json:"quantity"`
	TotalCost  string                  `json:"total_cost"`
	Components []costing.ComponentCost `json:"components,omitempty"`
	ProducedAt string                  `json:"produced_at"` // RFC3339
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

type ScenarioDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	Name string `json:"name"`
}

type LoadScenarioResponse struct {
	Name        string   `json:"name"`
	Ingredients int      `json:"ingredients"`
	Recipes     int      `json:"recipes"`
	Skipped     []string `json:"skipped,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toIngredientDTO(ing costing.Ingredient) IngredientDTO {
	return IngredientDTO{
		ID:        ing.ID,
		Name:      ing.Name,
		Unit:      string(ing.Unit),
		Tracking:  string(ing.Tracking),
		CreatedAt: ing.CreatedAt.Format(time.RFC3339),
	}
}

func toRecipeDTO(rec costing.Recipe) RecipeDTO {
	return RecipeDTO{
		ID:        rec.ID,
		Name:      rec.Name,
		YieldUnit: string(rec.YieldUnit),
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
}

func toComponentDTO(edge costing.CompositionEdge) ComponentDTO {
	return ComponentDTO{
		ID:          edge.ID,
		ParentID:    edge.ParentID,
		Kind:        string(edge.Component.Kind()),
		ComponentID: edge.Component.RefID(),
		Quantity:    edge.Quantity.Value.String(),
		Unit:        string(edge.Quantity.Unit),
		Position:    edge.Position,
	}
}

func toLotDTO(lot costing.Lot) LotDTO {
	return LotDTO{
		ID:           lot.ID,
		IngredientID: lot.IngredientID,
		Original:     lot.Original.Value.String(),
		Remaining:    lot.Remaining.Value.String(),
		Unit:         string(lot.Original.Unit),
		UnitCost:     lot.UnitCost.String(),
		AcquiredAt:   lot.AcquiredAt.Format(time.RFC3339),
		Exhausted:    lot.Exhausted(),
	}
}

func toConsumptionDTO(r costing.ConsumptionRecord) ConsumptionDTO {
	return ConsumptionDTO{
		ID:            r.ID,
		LotID:         r.LotID,
		IngredientID:  r.IngredientID,
		Quantity:      r.Quantity.Value.String(),
		Unit:          string(r.Quantity.Unit),
		Cost:          r.Cost.String(),
		ProductionRef: r.ProductionRef,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
}

func toCostResultDTO(result costing.CostResult) CostResultDTO {
	return CostResultDTO{
		EntityID:    result.EntityID,
		Quantity:    result.Quantity.String(),
		TotalCost:   result.TotalCost.String(),
		PerUnitCost: result.PerUnitCost.String(),
		Components:  result.Components,
	}
}

func toSnapshotDTO(snap costing.CostSnapshot) SnapshotDTO {
	return SnapshotDTO{
		ID:             snap.ID,
		EntityID:       snap.EntityID,
		ProductionRef:  snap.ProductionRef,
		Quantity:       snap.Quantity.String(),
		TotalCost:      snap.TotalCost.String(),
		PerUnitCost:    snap.PerUnitCost.String(),
		Components:     snap.Components,
		ConsumptionIDs: snap.ConsumptionIDs,
		Backfilled:     snap.Backfilled,
		CreatedAt:      snap.CreatedAt.Format(time.RFC3339),
	}
}
