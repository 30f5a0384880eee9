package costing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentonium3/bake-tracker-sub019/costing"
)

func TestSnapshot_FreezesCostResult(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	agg := newAggregator()

	flour := seedIngredient(t, s, "flour", costing.TrackLots)
	seedLot(t, s, flour, 100, "0.02", 0)

	bread := seedRecipe(t, s, "bread")
	seedEdge(t, s, bread, costing.IngredientRef(flour), 50, 0)

	ref := costing.NewProductionRef()
	result, err := agg.ComputeCost(ctx, s, bread, dec("1"), ref, costing.ModeCommit)
	require.NoError(t, err)

	at := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	snap := costing.NewCostSnapshot(result, ref, at)
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	stored, err := s.Snapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, ref, stored.ProductionRef)
	assert.True(t, stored.TotalCost.Equal(dec("1.00")))
	assert.True(t, stored.PerUnitCost.Equal(dec("1.00")))
	assert.False(t, stored.Backfilled)
	require.Len(t, stored.Components, 1)
	assert.Len(t, stored.ConsumptionIDs, len(result.Consumptions))
}

func TestSnapshot_SurvivesLaterCatalogEdits(t *testing.T) {
	// A snapshot is a value copy. Consuming the cheap lot, registering an
	// expensive one, and re-costing must not change what the stored
	// snapshot reports.

	ctx := context.Background()
	s := newStore()
	agg := newAggregator()

	flour := seedIngredient(t, s, "flour", costing.TrackLots)
	seedLot(t, s, flour, 100, "0.02", 0)

	bread := seedRecipe(t, s, "bread")
	seedEdge(t, s, bread, costing.IngredientRef(flour), 50, 0)

	ref := costing.NewProductionRef()
	result, err := agg.ComputeCost(ctx, s, bread, dec("1"), ref, costing.ModeCommit)
	require.NoError(t, err)
	snap := costing.NewCostSnapshot(result, ref, time.Now().UTC())
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	// Prices move: a much more expensive lot arrives.
	seedLot(t, s, flour, 100, "5.00", 30)

	later, err := agg.ComputeCost(ctx, s, bread, dec("1"), costing.NewProductionRef(), costing.ModeDryRun)
	require.NoError(t, err)
	assert.False(t, later.TotalCost.Equal(snap.TotalCost), "sanity: the live cost did change")

	stored, err := s.Snapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalCost.Equal(dec("1.00")), "snapshot must be immune to later price changes")
}

func TestSnapshot_OnePerProductionRef(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	rec := seedRecipe(t, s, "bread")
	ref := costing.NewProductionRef()

	first := costing.CostSnapshot{
		ID:            costing.NewSnapshotID(),
		EntityID:      rec,
		ProductionRef: ref,
		Quantity:      dec("1"),
		TotalCost:     dec("2.00"),
		PerUnitCost:   dec("2.00"),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.SaveSnapshot(ctx, first))

	dup := first
	dup.ID = costing.NewSnapshotID()
	err := s.SaveSnapshot(ctx, dup)
	require.ErrorIs(t, err, costing.ErrSnapshotExists)
}

func TestBackfilledSnapshot_FlaggedAndComputesPerUnit(t *testing.T) {
	producedAt := time.Date(2025, time.November, 12, 14, 0, 0, 0, time.UTC)
	snap := costing.NewBackfilledSnapshot("recipe-1", dec("4"), dec("10.00"), nil, producedAt)

	assert.True(t, snap.Backfilled)
	assert.True(t, snap.PerUnitCost.Equal(dec("2.5")))
	assert.Equal(t, producedAt, snap.CreatedAt)
	assert.NotEmpty(t, snap.ProductionRef)
	assert.Empty(t, snap.ConsumptionIDs, "backfilled records consumed no tracked stock")
}
