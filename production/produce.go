/*
Package production orchestrates bakes: the top-level events that consume
stock, compute actual cost, and freeze a snapshot.

PURPOSE:
  Produce wraps a commit-mode cost computation and the snapshot write in
  ONE store transaction. If anything fails anywhere in the recursion -
  an insufficient ingredient three levels deep included - every prior
  consumption in the same bake rolls back. There is no partial-bake
  state.

  CanProduce answers "can I actually make N of this?" with a dry-run of
  the same computation, including the specific short ingredient when the
  answer is no.
*/
package production

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kentonium3/bake-tracker-sub019/costing"
)

// Service runs production events against the costing engine.
type Service struct {
	store costing.TxStore
	agg   *costing.Aggregator
	fifo  *costing.DepletionEngine
	avg   *costing.AverageEngine
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store costing.TxStore, agg *costing.Aggregator, fifo *costing.DepletionEngine, avg *costing.AverageEngine, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		agg:   agg,
		fifo:  fifo,
		avg:   avg,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// PRODUCE
// =============================================================================

// BakeResult reports one committed production event.
type BakeResult struct {
	Ref      costing.ProductionRef
	Cost     *costing.CostResult
	Snapshot costing.CostSnapshot
}

// Produce makes quantity units of a recipe: consumes stock through the
// composition graph and freezes the snapshot, all in one transaction.
func (s *Service) Produce(ctx context.Context, recipeID costing.AssemblyID, quantity decimal.Decimal) (*BakeResult, error) {
	ref := costing.NewProductionRef()
	out := &BakeResult{Ref: ref}

	err := s.store.WithTx(ctx, func(tx costing.Store) error {
		result, err := s.agg.ComputeCost(ctx, tx, recipeID, quantity, ref, costing.ModeCommit)
		if err != nil {
			return err
		}
		snap := costing.NewCostSnapshot(result, ref, s.now())
		if err := tx.SaveSnapshot(ctx, snap); err != nil {
			return err
		}
		out.Cost = result
		out.Snapshot = snap
		return nil
	})
	if err != nil {
		var short *costing.InsufficientStockError
		if errors.As(err, &short) {
			s.log.Warn().
				Str("recipe", string(recipeID)).
				Str("ingredient", string(short.IngredientID)).
				Str("available", short.Available.Value.String()).
				Str("requested", short.Requested.Value.String()).
				Msg("bake aborted: ingredient short")
		} else {
			s.log.Error().Err(err).Str("recipe", string(recipeID)).Msg("bake failed")
		}
		return nil, err
	}

	s.log.Info().
		Str("recipe", string(recipeID)).
		Str("ref", string(ref)).
		Str("quantity", quantity.String()).
		Str("total_cost", out.Cost.TotalCost.String()).
		Str("per_unit", out.Cost.PerUnitCost.String()).
		Msg("bake committed")
	return out, nil
}

// =============================================================================
// DRY-RUN FEASIBILITY
// =============================================================================

// Feasibility is the answer to "can I make N of this right now?".
type Feasibility struct {
	Feasible bool
	// Cost is the projected cost when feasible.
	Cost *costing.CostResult
	// Short names the first short ingredient when not feasible.
	Short *costing.InsufficientStockError
}

// CanProduce runs the full cost computation in dry-run mode. Nothing is
// mutated; calling it twice returns identical results.
func (s *Service) CanProduce(ctx context.Context, recipeID costing.AssemblyID, quantity decimal.Decimal) (*Feasibility, error) {
	result, err := s.agg.ComputeCost(ctx, s.store, recipeID, quantity, costing.NewProductionRef(), costing.ModeDryRun)
	if err != nil {
		var short *costing.InsufficientStockError
		if errors.As(err, &short) {
			return &Feasibility{Feasible: false, Short: short}, nil
		}
		return nil, err
	}
	return &Feasibility{Feasible: true, Cost: result}, nil
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// Availability reports an ingredient's consumable quantity, dispatching
// on its tracking mode: remaining lot sum or stocked on-hand quantity.
func (s *Service) Availability(ctx context.Context, ingredientID costing.IngredientID) (costing.Quantity, error) {
	ing, err := s.store.Ingredient(ctx, ingredientID)
	if err != nil {
		return costing.Quantity{}, err
	}
	if ing.Tracking == costing.TrackAverage {
		return s.avg.OnHand(ctx, s.store, ingredientID)
	}
	return s.fifo.Available(ctx, s.store, ingredientID)
}

// =============================================================================
// DIRECT STOCK OPERATIONS (exposed for callers outside full bakes)
// =============================================================================

// Deplete consumes a lot-tracked ingredient outside a bake (spoilage,
// manual correction). Commit mode runs in its own transaction.
func (s *Service) Deplete(ctx context.Context, ingredientID costing.IngredientID, quantity costing.Quantity, mode costing.Mode) (*costing.ConsumptionResult, error) {
	ref := costing.NewProductionRef()
	if mode == costing.ModeDryRun {
		return s.fifo.Deplete(ctx, s.store, ingredientID, quantity, ref, mode)
	}

	var result *costing.ConsumptionResult
	err := s.store.WithTx(ctx, func(tx costing.Store) error {
		var err error
		result, err = s.fifo.Deplete(ctx, tx, ingredientID, quantity, ref, mode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Acquire adds weighted-average stock and returns the new average cost.
func (s *Service) Acquire(ctx context.Context, ingredientID costing.IngredientID, quantity costing.Quantity, unitCost decimal.Decimal) (decimal.Decimal, error) {
	ing, err := s.store.Ingredient(ctx, ingredientID)
	if err != nil {
		return decimal.Zero, err
	}
	if ing.Tracking != costing.TrackAverage {
		return decimal.Zero, errors.New("ingredient is lot-tracked; register a lot instead")
	}

	var avg decimal.Decimal
	err = s.store.WithTx(ctx, func(tx costing.Store) error {
		var err error
		avg, err = s.avg.Acquire(ctx, tx, ingredientID, quantity, unitCost)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return avg, nil
}
