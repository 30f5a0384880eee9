/*
backfill.go - Administrative snapshot backfill

PURPOSE:
  One-time migration support: systems adopting this engine usually have
  production history older than the engine itself. Backfill inserts
  snapshots for that history without touching stock or creating
  consumption records. It is a separate, explicitly named path - not a
  flag on the normal constructor - so normal production flow cannot
  reach it, and every record it writes carries Backfilled=true.
*/
package production

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kentonium3/bake-tracker-sub019/costing"
)

// BackfillInput describes one historical production event.
type BackfillInput struct {
	RecipeID   costing.AssemblyID
	Quantity   decimal.Decimal
	TotalCost  decimal.Decimal
	Components []costing.ComponentCost
	ProducedAt time.Time
}

// BackfillSnapshot inserts a flagged historical snapshot. The recipe must
// exist; quantity and cost are taken as given since the source records
// predate lot tracking.
func (s *Service) BackfillSnapshot(ctx context.Context, in BackfillInput) (*costing.CostSnapshot, error) {
	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: backfill quantity must be positive, got %v", costing.ErrInvalidQuantity, in.Quantity)
	}
	if in.TotalCost.IsNegative() {
		return nil, fmt.Errorf("%w: backfill cost must not be negative", costing.ErrInvalidQuantity)
	}
	if in.ProducedAt.IsZero() {
		return nil, fmt.Errorf("backfill requires the historical production time")
	}

	snap := costing.NewBackfilledSnapshot(in.RecipeID, in.Quantity, in.TotalCost, in.Components, in.ProducedAt)

	err := s.store.WithTx(ctx, func(tx costing.Store) error {
		if _, err := tx.Recipe(ctx, in.RecipeID); err != nil {
			return err
		}
		return tx.SaveSnapshot(ctx, snap)
	})
	if err != nil {
		return nil, err
	}

	s.log.Warn().
		Str("recipe", string(in.RecipeID)).
		Str("snapshot", string(snap.ID)).
		Time("produced_at", in.ProducedAt).
		Msg("backfilled snapshot created")
	return &snap, nil
}
