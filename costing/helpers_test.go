package costing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kentonium3/bake-tracker-sub019/costing"
	"github.com/kentonium3/bake-tracker-sub019/costing/store"
)

// Shared fixtures for the costing tests. Everything runs against the
// in-memory store, which mirrors the SQLite rollback semantics.

func newStore() *store.Memory {
	return store.NewMemory()
}

func grams(v float64) costing.Quantity {
	return costing.NewQuantity(v, costing.UnitGram)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedIngredient(t *testing.T, s costing.Store, name string, tracking costing.TrackingMode) costing.IngredientID {
	t.Helper()
	ing := costing.Ingredient{
		ID:        costing.NewIngredientID(),
		Name:      name,
		Unit:      costing.UnitGram,
		Tracking:  tracking,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutIngredient(context.Background(), ing))
	return ing.ID
}

func seedRecipe(t *testing.T, s costing.Store, name string) costing.AssemblyID {
	t.Helper()
	rec := costing.Recipe{
		ID:        costing.NewAssemblyID(),
		Name:      name,
		YieldUnit: costing.UnitEach,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutRecipe(context.Background(), rec))
	return rec.ID
}

// seedLot inserts a lot acquired at a fixed offset in days, so FIFO
// ordering in tests is explicit.
func seedLot(t *testing.T, s costing.Store, ingID costing.IngredientID, qty float64, unitCost string, dayOffset int) costing.LotID {
	t.Helper()
	base := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	lot := costing.Lot{
		ID:           costing.NewLotID(),
		IngredientID: ingID,
		Original:     grams(qty),
		Remaining:    grams(qty),
		UnitCost:     dec(unitCost),
		AcquiredAt:   base.AddDate(0, 0, dayOffset),
	}
	require.NoError(t, s.InsertLot(context.Background(), lot))
	return lot.ID
}

func seedEdge(t *testing.T, s costing.Store, parent costing.AssemblyID, ref costing.ComponentRef, qty float64, position int) {
	t.Helper()
	require.NoError(t, s.InsertEdge(context.Background(), costing.CompositionEdge{
		ID:        uuid.NewString(),
		ParentID:  parent,
		Component: ref,
		Quantity:  grams(qty),
		Position:  position,
	}))
}

func quietLogger() zerolog.Logger {
	return zerolog.Nop()
}
