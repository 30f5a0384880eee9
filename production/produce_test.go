package production_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentonium3/bake-tracker-sub019/catalog"
	"github.com/kentonium3/bake-tracker-sub019/costing"
	"github.com/kentonium3/bake-tracker-sub019/costing/store"
	"github.com/kentonium3/bake-tracker-sub019/production"
)

type fixture struct {
	store   *store.Memory
	catalog *catalog.Service
	prod    *production.Service
}

func newFixture() *fixture {
	mem := store.NewMemory()
	log := zerolog.Nop()
	fifo := costing.NewDepletionEngine(log)
	avg := costing.NewAverageEngine()
	agg := costing.NewAggregator(fifo, avg, 0, log)
	return &fixture{
		store:   mem,
		catalog: catalog.NewService(mem, log),
		prod:    production.NewService(mem, agg, fifo, avg, log),
	}
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

// cookieSetup builds flour (lots: 3g at 1.50, 10g at 2.00), butter
// (average at 0.50), and a recipe needing 2g flour + 3g butter per unit.
func cookieSetup(t *testing.T, f *fixture) (costing.IngredientID, costing.IngredientID, costing.AssemblyID) {
	t.Helper()
	ctx := context.Background()

	flour, err := f.catalog.CreateIngredient(ctx, "Flour", costing.UnitGram, costing.TrackLots)
	require.NoError(t, err)
	_, err = f.catalog.RegisterLot(ctx, flour.ID, grams(3), dec("1.50"), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = f.catalog.RegisterLot(ctx, flour.ID, grams(10), dec("2.00"), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	butter, err := f.catalog.CreateIngredient(ctx, "Butter", costing.UnitGram, costing.TrackAverage)
	require.NoError(t, err)
	_, err = f.prod.Acquire(ctx, butter.ID, grams(100), dec("0.50"))
	require.NoError(t, err)

	cookie, err := f.catalog.CreateRecipe(ctx, "Cookie", costing.UnitEach)
	require.NoError(t, err)
	_, err = f.catalog.AddComponent(ctx, cookie.ID, costing.IngredientRef(flour.ID), grams(2), 0)
	require.NoError(t, err)
	_, err = f.catalog.AddComponent(ctx, cookie.ID, costing.IngredientRef(butter.ID), grams(3), 1)
	require.NoError(t, err)

	return flour.ID, butter.ID, cookie.ID
}

func TestProduce_CommitsConsumptionAndSnapshotTogether(t *testing.T) {
	// Producing 2 cookies:
	//   flour 4g = 3g at 1.50 + 1g at 2.00 = 6.50
	//   butter 6g at 0.50 = 3.00
	//   total 9.50, per-unit 4.75

	ctx := context.Background()
	f := newFixture()
	flour, butter, cookie := cookieSetup(t, f)

	bake, err := f.prod.Produce(ctx, cookie, dec("2"))
	require.NoError(t, err)

	assert.True(t, bake.Cost.TotalCost.Equal(dec("9.50")), "got %s", bake.Cost.TotalCost)
	assert.True(t, bake.Cost.PerUnitCost.Equal(dec("4.75")))
	assert.Equal(t, bake.Ref, bake.Snapshot.ProductionRef)
	assert.False(t, bake.Snapshot.Backfilled)

	// The snapshot is persisted and carries the consumption ids.
	snap, err := f.store.Snapshot(ctx, bake.Snapshot.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ConsumptionIDs)

	// Stock moved.
	available, err := f.prod.Availability(ctx, flour)
	require.NoError(t, err)
	assert.True(t, available.Value.Equal(dec("9")))

	onHand, err := f.prod.Availability(ctx, butter)
	require.NoError(t, err)
	assert.True(t, onHand.Value.Equal(dec("94")))

	// The audit trail for the bake exists.
	records, err := f.store.ConsumptionsByProduction(ctx, bake.Ref)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}

func TestProduce_ShortageRollsBackEverything(t *testing.T) {
	// The recipe's flour leg succeeds, then the butter leg falls short.
	// The transaction must roll back the flour depletion too.

	ctx := context.Background()
	f := newFixture()

	flour, err := f.catalog.CreateIngredient(ctx, "Flour", costing.UnitGram, costing.TrackLots)
	require.NoError(t, err)
	_, err = f.catalog.RegisterLot(ctx, flour.ID, grams(100), dec("0.002"), time.Time{})
	require.NoError(t, err)

	butter, err := f.catalog.CreateIngredient(ctx, "Butter", costing.UnitGram, costing.TrackAverage)
	require.NoError(t, err)
	_, err = f.prod.Acquire(ctx, butter.ID, grams(2), dec("0.50"))
	require.NoError(t, err)

	cake, err := f.catalog.CreateRecipe(ctx, "Cake", costing.UnitEach)
	require.NoError(t, err)
	_, err = f.catalog.AddComponent(ctx, cake.ID, costing.IngredientRef(flour.ID), grams(50), 0)
	require.NoError(t, err)
	_, err = f.catalog.AddComponent(ctx, cake.ID, costing.IngredientRef(butter.ID), grams(10), 1)
	require.NoError(t, err)

	_, err = f.prod.Produce(ctx, cake.ID, dec("1"))
	require.ErrorIs(t, err, costing.ErrInsufficientStock)

	// Flour is fully restored despite its leg having succeeded first.
	available, err := f.prod.Availability(ctx, flour.ID)
	require.NoError(t, err)
	assert.True(t, available.Value.Equal(dec("100")), "rollback must restore flour, got %s", available.Value)

	// No snapshot, no consumption records.
	snaps, err := f.store.SnapshotsByEntity(ctx, cake.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestCanProduce_FeasibleReportsProjectedCost(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	flour, _, cookie := cookieSetup(t, f)

	feas, err := f.prod.CanProduce(ctx, cookie, dec("2"))
	require.NoError(t, err)
	assert.True(t, feas.Feasible)
	require.NotNil(t, feas.Cost)
	assert.True(t, feas.Cost.TotalCost.Equal(dec("9.50")))

	// Nothing moved.
	available, err := f.prod.Availability(ctx, flour)
	require.NoError(t, err)
	assert.True(t, available.Value.Equal(dec("13")))
}

func TestCanProduce_ShortageIsAnAnswerNotAnError(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, _, cookie := cookieSetup(t, f)

	// 13g of flour supports at most 6 cookies at 2g each.
	feas, err := f.prod.CanProduce(ctx, cookie, dec("10"))
	require.NoError(t, err, "infeasibility is a result, not a failure")
	assert.False(t, feas.Feasible)
	require.NotNil(t, feas.Short)
	assert.True(t, feas.Short.Shortfall().IsPositive())
}

func TestDeplete_CommitRunsInItsOwnTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	flour, _, _ := cookieSetup(t, f)

	result, err := f.prod.Deplete(ctx, flour, grams(5), costing.ModeCommit)
	require.NoError(t, err)
	assert.True(t, result.TotalCost.Equal(dec("8.50")), "3g at 1.50 + 2g at 2.00, got %s", result.TotalCost)

	available, err := f.prod.Availability(ctx, flour)
	require.NoError(t, err)
	assert.True(t, available.Value.Equal(dec("8")))
}

func TestAcquire_RejectsLotTrackedIngredient(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	flour, _, _ := cookieSetup(t, f)

	_, err := f.prod.Acquire(ctx, flour, grams(10), dec("0.002"))
	require.Error(t, err)
}

func TestBackfillSnapshot_CreatesFlaggedRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, _, cookie := cookieSetup(t, f)

	producedAt := time.Date(2025, time.December, 24, 10, 0, 0, 0, time.UTC)
	snap, err := f.prod.BackfillSnapshot(ctx, production.BackfillInput{
		RecipeID:   cookie,
		Quantity:   dec("12"),
		TotalCost:  dec("30.00"),
		ProducedAt: producedAt,
	})
	require.NoError(t, err)
	assert.True(t, snap.Backfilled)
	assert.True(t, snap.PerUnitCost.Equal(dec("2.5")))
	assert.Equal(t, producedAt, snap.CreatedAt)

	stored, err := f.store.Snapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, stored.Backfilled)
}

func TestBackfillSnapshot_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, _, cookie := cookieSetup(t, f)

	producedAt := time.Now().UTC()

	_, err := f.prod.BackfillSnapshot(ctx, production.BackfillInput{
		RecipeID: cookie, Quantity: dec("0"), TotalCost: dec("1"), ProducedAt: producedAt,
	})
	require.ErrorIs(t, err, costing.ErrInvalidQuantity)

	_, err = f.prod.BackfillSnapshot(ctx, production.BackfillInput{
		RecipeID: cookie, Quantity: dec("1"), TotalCost: dec("-1"), ProducedAt: producedAt,
	})
	require.Error(t, err)

	_, err = f.prod.BackfillSnapshot(ctx, production.BackfillInput{
		RecipeID: cookie, Quantity: dec("1"), TotalCost: dec("1"),
	})
	require.Error(t, err, "produced_at is required")

	_, err = f.prod.BackfillSnapshot(ctx, production.BackfillInput{
		RecipeID: "missing", Quantity: dec("1"), TotalCost: dec("1"), ProducedAt: producedAt,
	})
	require.ErrorIs(t, err, costing.ErrAssemblyNotFound)
}
