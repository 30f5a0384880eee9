/*
average.go - Weighted-average costing engine for bulk stocked items

PURPOSE:
  The alternative consumption model for fungible stock that isn't worth
  tracking as dated lots (salt, sugar bought in bulk). One row per
  ingredient holds on-hand quantity and a rolling weighted-average cost:

    newAvg = (onHand*avg + added*addedCost) / (onHand + added)

  The average changes on acquisition ONLY. Consumption decrements
  on-hand quantity and charges quantity x current average.
*/
package costing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// weightedAverage recomputes the rolling average after an acquisition.
// Zero on-hand: the average becomes the incoming cost. Zero added: the
// average is unchanged.
func weightedAverage(onHand, avgCost, added, addedCost decimal.Decimal) decimal.Decimal {
	if added.IsZero() {
		return avgCost
	}
	if onHand.IsZero() {
		return addedCost
	}
	total := onHand.Add(added)
	if !total.IsPositive() {
		return decimal.Zero
	}
	return onHand.Mul(avgCost).Add(added.Mul(addedCost)).Div(total)
}

// =============================================================================
// AVERAGE ENGINE
// =============================================================================

type AverageEngine struct {
	now func() time.Time
}

func NewAverageEngine() *AverageEngine {
	return &AverageEngine{now: func() time.Time { return time.Now().UTC() }}
}

// Acquire adds stock at a cost and recomputes the rolling average.
// Creates the stock row on first acquisition. Negative quantity or cost
// is rejected; zero quantity leaves both on-hand and average unchanged.
func (e *AverageEngine) Acquire(ctx context.Context, tx Store, ingredientID IngredientID, added Quantity, unitCost decimal.Decimal) (decimal.Decimal, error) {
	if added.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: acquisition quantity must not be negative, got %v", ErrInvalidQuantity, added.Value)
	}
	if unitCost.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: acquisition unit cost must not be negative, got %v", ErrInvalidQuantity, unitCost)
	}

	item, err := tx.StockedItem(ctx, ingredientID)
	if IsNotFound(err) {
		item = &StockedItem{
			IngredientID: ingredientID,
			OnHand:       added.Zero(),
			AverageCost:  decimal.Zero,
		}
	} else if err != nil {
		return decimal.Zero, err
	}

	item.AverageCost = weightedAverage(item.OnHand.Value, item.AverageCost, added.Value, unitCost)
	item.OnHand = item.OnHand.Add(added)
	item.UpdatedAt = e.now()

	if err := tx.PutStockedItem(ctx, *item); err != nil {
		return decimal.Zero, err
	}
	return item.AverageCost, nil
}

// Consume removes stock and returns quantity x current average cost.
// Consumption below zero is rejected, not clamped, and the average is
// never recalculated here. ModeDryRun computes the cost without writing.
func (e *AverageEngine) Consume(ctx context.Context, tx Store, ingredientID IngredientID, requested Quantity, mode Mode) (decimal.Decimal, error) {
	if !requested.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: consumption quantity must be positive, got %v", ErrInvalidQuantity, requested.Value)
	}

	item, err := tx.StockedItem(ctx, ingredientID)
	if IsNotFound(err) {
		return decimal.Zero, &InsufficientStockError{
			IngredientID: ingredientID,
			Available:    requested.Zero(),
			Requested:    requested,
		}
	} else if err != nil {
		return decimal.Zero, err
	}

	if item.OnHand.LessThan(requested) {
		return decimal.Zero, &InsufficientStockError{
			IngredientID: ingredientID,
			Available:    item.OnHand,
			Requested:    requested,
		}
	}

	cost := requested.Value.Mul(item.AverageCost)
	if mode == ModeDryRun {
		return cost, nil
	}

	item.OnHand = item.OnHand.Sub(requested)
	item.UpdatedAt = e.now()
	if err := tx.PutStockedItem(ctx, *item); err != nil {
		return decimal.Zero, err
	}
	return cost, nil
}

// OnHand returns the current stocked quantity, zero if no row exists yet.
func (e *AverageEngine) OnHand(ctx context.Context, s Store, ingredientID IngredientID) (Quantity, error) {
	item, err := s.StockedItem(ctx, ingredientID)
	if IsNotFound(err) {
		ing, ierr := s.Ingredient(ctx, ingredientID)
		if ierr != nil {
			return Quantity{}, ierr
		}
		return NewQuantity(0, ing.Unit), nil
	} else if err != nil {
		return Quantity{}, err
	}
	return item.OnHand, nil
}
