/*
aggregate.go - Recursive cost aggregation over the composition graph

PURPOSE:
  Computes the actual cost of producing a quantity of an assembled
  product. Depth-first, post-order: leaf components consume real stock
  through the FIFO or weighted-average engine (selected by the
  ingredient's tracking mode), sub-assemblies recurse, and costs sum
  upward with quantity multiplication at each level.

MODES:
  ModeCommit  - every leaf consumption is real; the caller wraps the call
                and the snapshot write in one store transaction.
  ModeDryRun  - the whole recursion runs against a copy-on-write overlay,
                so sibling leaves still observe each other's depletion
                but nothing is persisted anywhere. Running it twice
                yields identical results.

GUARDS:
  - quantity must be positive (rejected before traversal)
  - an assembly with zero components is InvalidComposition
  - recursion beyond MaxDepth is DepthExceeded: graph validation should
    make that impossible, so it is logged at error level

SEQUENTIAL BY DESIGN:
  The traversal is single-threaded. Each leaf must observe the lot state
  left by prior siblings in the same computation, otherwise two
  components could allocate the same inventory.
*/
package costing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultMaxDepth bounds composition recursion. Generous: real recipes
// nest a handful of levels.
const DefaultMaxDepth = 32

// =============================================================================
// RESULT
// =============================================================================

// CostResult is the outcome of one cost computation.
type CostResult struct {
	EntityID     AssemblyID
	Quantity     decimal.Decimal
	TotalCost    decimal.Decimal
	PerUnitCost  decimal.Decimal
	Components   []ComponentCost
	Consumptions []ConsumptionRecord
}

// ComponentCost is one node of the per-component breakdown tree. It is
// value-copied into snapshots, so it must stay self-describing.
type ComponentCost struct {
	Component ComponentRef    `json:"component"`
	Quantity  Quantity        `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Children  []ComponentCost `json:"children,omitempty"`
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	fifo     *DepletionEngine
	avg      *AverageEngine
	maxDepth int
	log      zerolog.Logger
}

func NewAggregator(fifo *DepletionEngine, avg *AverageEngine, maxDepth int, log zerolog.Logger) *Aggregator {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Aggregator{fifo: fifo, avg: avg, maxDepth: maxDepth, log: log}
}

// ComputeCost costs the production of quantity units of entityID.
// In ModeCommit, tx must be a transaction-scoped store obtained from
// TxStore.WithTx; all consumption happens within it. In ModeDryRun any
// store works and nothing is mutated.
func (a *Aggregator) ComputeCost(ctx context.Context, tx Store, entityID AssemblyID, quantity decimal.Decimal, ref ProductionRef, mode Mode) (*CostResult, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: production quantity must be positive, got %v", ErrInvalidQuantity, quantity)
	}

	work := tx
	if mode == ModeDryRun {
		// All mutation the recursion performs lands in the overlay and
		// is discarded with it.
		work = newDryRunOverlay(tx)
	}

	start := time.Now()
	components, consumptions, total, err := a.walk(ctx, work, entityID, quantity, ref, 1)
	if err != nil {
		return nil, err
	}

	result := &CostResult{
		EntityID:     entityID,
		Quantity:     quantity,
		TotalCost:    total,
		PerUnitCost:  total.Div(quantity),
		Components:   components,
		Consumptions: consumptions,
	}

	a.log.Debug().
		Str("entity", string(entityID)).
		Str("quantity", quantity.String()).
		Str("total_cost", total.String()).
		Str("mode", string(mode)).
		Dur("took", time.Since(start)).
		Msg("cost computed")

	return result, nil
}

// walk costs one assembly level and recurses into sub-assemblies.
func (a *Aggregator) walk(ctx context.Context, tx Store, entityID AssemblyID, quantity decimal.Decimal, ref ProductionRef, depth int) ([]ComponentCost, []ConsumptionRecord, decimal.Decimal, error) {
	if depth > a.maxDepth {
		err := &DepthExceededError{EntityID: entityID, Depth: depth}
		a.log.Error().
			Str("entity", string(entityID)).
			Int("depth", depth).
			Msg("composition depth exceeded: graph validation gap")
		return nil, nil, decimal.Zero, err
	}

	if _, err := tx.Recipe(ctx, entityID); err != nil {
		return nil, nil, decimal.Zero, err
	}

	edges, err := tx.EdgesByParent(ctx, entityID)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	if len(edges) == 0 {
		return nil, nil, decimal.Zero, &CompositionError{EntityID: entityID, Reason: "no components defined"}
	}

	var (
		components   []ComponentCost
		consumptions []ConsumptionRecord
		total        = decimal.Zero
	)

	for _, edge := range edges {
		needed := edge.Quantity.Mul(quantity)

		switch edge.Component.Kind() {
		case KindIngredient:
			id, _ := edge.Component.Ingredient()
			cost, records, err := a.consumeLeaf(ctx, tx, id, needed, ref)
			if err != nil {
				return nil, nil, decimal.Zero, err
			}
			components = append(components, ComponentCost{
				Component: edge.Component,
				Quantity:  needed,
				UnitCost:  safeDiv(cost, needed.Value),
				TotalCost: cost,
			})
			consumptions = append(consumptions, records...)
			total = total.Add(cost)

		case KindAssembly:
			id, _ := edge.Component.Assembly()
			children, records, subTotal, err := a.walk(ctx, tx, id, needed.Value, ref, depth+1)
			if err != nil {
				return nil, nil, decimal.Zero, err
			}
			components = append(components, ComponentCost{
				Component: edge.Component,
				Quantity:  needed,
				UnitCost:  safeDiv(subTotal, needed.Value),
				TotalCost: subTotal,
				Children:  children,
			})
			consumptions = append(consumptions, records...)
			total = total.Add(subTotal)

		default:
			return nil, nil, decimal.Zero, &CompositionError{
				EntityID: entityID,
				Reason:   fmt.Sprintf("edge %s has no component reference", edge.ID),
			}
		}
	}

	return components, consumptions, total, nil
}

// consumeLeaf dispatches a base-ingredient consumption on tracking mode.
// Leaves always run in commit mode against tx: in a dry run, tx is the
// overlay, which is the no-persistence guarantee.
func (a *Aggregator) consumeLeaf(ctx context.Context, tx Store, id IngredientID, needed Quantity, ref ProductionRef) (decimal.Decimal, []ConsumptionRecord, error) {
	ing, err := tx.Ingredient(ctx, id)
	if err != nil {
		return decimal.Zero, nil, err
	}

	switch ing.Tracking {
	case TrackAverage:
		cost, err := a.avg.Consume(ctx, tx, id, needed, ModeCommit)
		if err != nil {
			return decimal.Zero, nil, err
		}
		return cost, nil, nil
	default:
		res, err := a.fifo.Deplete(ctx, tx, id, needed, ref, ModeCommit)
		if err != nil {
			return decimal.Zero, nil, err
		}
		return res.TotalCost, res.Records, nil
	}
}

func safeDiv(total, by decimal.Decimal) decimal.Decimal {
	if by.IsZero() {
		return decimal.Zero
	}
	return total.Div(by)
}
