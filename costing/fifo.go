/*
fifo.go - FIFO depletion engine for lot-tracked ingredients

PURPOSE:
  Consumes ingredient lots oldest-first and returns the exact weighted
  cost of the quantity consumed. Cost is the sum of per-slice costs
  (slice quantity x that lot's unit cost), NOT quantity x average cost,
  preserving exact FIFO economics.

ATOMICITY:
  Deplete plans the full consumption against the loaded lots before
  writing anything. If total remaining stock is short, it fails with
  InsufficientStockError and no write has happened. In ModeDryRun the
  plan is returned without any write at all.

SEE ALSO:
  - average.go: the alternative costing model for bulk stock
  - aggregate.go: calls this engine at composition-graph leaves
*/
package costing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULT
// =============================================================================

// ConsumptionResult reports one successful (or planned) depletion.
type ConsumptionResult struct {
	IngredientID IngredientID
	Quantity     Quantity        // equals the requested quantity
	TotalCost    decimal.Decimal // sum of per-slice costs
	Records      []ConsumptionRecord
}

// UnitCost is the effective per-unit cost of this depletion.
func (r *ConsumptionResult) UnitCost() decimal.Decimal {
	if r.Quantity.IsZero() {
		return decimal.Zero
	}
	return r.TotalCost.Div(r.Quantity.Value)
}

// =============================================================================
// DEPLETION PLAN - Pure FIFO walk, no I/O
// =============================================================================

type depletionSlice struct {
	lot  Lot
	take Quantity
	cost decimal.Decimal
}

// planDepletion walks lots (already oldest-first) and allocates the
// requested quantity. Returns the slices and the total available quantity;
// errors with InsufficientStockError when stock falls short, before any
// caller-visible mutation.
func planDepletion(ingredientID IngredientID, lots []Lot, requested Quantity) ([]depletionSlice, error) {
	available := requested.Zero()
	for _, lot := range lots {
		available = available.Add(lot.Remaining)
	}
	if available.LessThan(requested) {
		return nil, &InsufficientStockError{
			IngredientID: ingredientID,
			Available:    available,
			Requested:    requested,
		}
	}

	var slices []depletionSlice
	remaining := requested
	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}
		if lot.Exhausted() {
			continue
		}
		take := lot.Remaining.Min(remaining)
		slices = append(slices, depletionSlice{
			lot:  lot,
			take: take,
			cost: take.Value.Mul(lot.UnitCost),
		})
		remaining = remaining.Sub(take)
	}
	return slices, nil
}

// =============================================================================
// DEPLETION ENGINE
// =============================================================================

type DepletionEngine struct {
	log   zerolog.Logger
	now   func() time.Time
	newID func() ConsumptionID
}

func NewDepletionEngine(log zerolog.Logger) *DepletionEngine {
	return &DepletionEngine{
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: NewConsumptionID,
	}
}

// Deplete consumes the requested quantity of a lot-tracked ingredient in
// FIFO order within tx. All-or-nothing: a shortage leaves every lot
// untouched. ModeDryRun returns the identical result without mutating
// lots or persisting consumption records.
func (e *DepletionEngine) Deplete(ctx context.Context, tx Store, ingredientID IngredientID, requested Quantity, ref ProductionRef, mode Mode) (*ConsumptionResult, error) {
	if !requested.IsPositive() {
		return nil, fmt.Errorf("%w: depletion quantity must be positive, got %v", ErrInvalidQuantity, requested.Value)
	}

	lots, err := tx.LotsByIngredient(ctx, ingredientID)
	if err != nil {
		return nil, err
	}

	slices, err := planDepletion(ingredientID, lots, requested)
	if err != nil {
		return nil, err
	}

	now := e.now()
	result := &ConsumptionResult{
		IngredientID: ingredientID,
		Quantity:     requested,
		TotalCost:    decimal.Zero,
	}
	for _, s := range slices {
		result.TotalCost = result.TotalCost.Add(s.cost)
		result.Records = append(result.Records, ConsumptionRecord{
			ID:            e.newID(),
			LotID:         s.lot.ID,
			IngredientID:  ingredientID,
			Quantity:      s.take,
			Cost:          s.cost,
			ProductionRef: ref,
			CreatedAt:     now,
		})
	}

	if mode == ModeDryRun {
		return result, nil
	}

	for _, s := range slices {
		if err := tx.UpdateLotRemaining(ctx, s.lot.ID, s.lot.Remaining.Sub(s.take)); err != nil {
			return nil, err
		}
	}
	if err := tx.AppendConsumptions(ctx, result.Records); err != nil {
		return nil, err
	}

	e.log.Debug().
		Str("ingredient", string(ingredientID)).
		Str("quantity", requested.Value.String()).
		Str("cost", result.TotalCost.String()).
		Int("lots", len(slices)).
		Msg("depleted")

	return result, nil
}

// Available sums the remaining quantity across all lots of an ingredient.
func (e *DepletionEngine) Available(ctx context.Context, s Store, ingredientID IngredientID) (Quantity, error) {
	lots, err := s.LotsByIngredient(ctx, ingredientID)
	if err != nil {
		return Quantity{}, err
	}
	ing, err := s.Ingredient(ctx, ingredientID)
	if err != nil {
		return Quantity{}, err
	}
	total := NewQuantity(0, ing.Unit)
	for _, lot := range lots {
		total = total.Add(lot.Remaining)
	}
	return total, nil
}
