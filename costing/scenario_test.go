/*
scenario_test.go - Executable specifications for the costing engine

PURPOSE:
  These tests serve as EXECUTABLE SPECIFICATIONS of the engine design.
  Each test documents one guaranteed behavior and validates that the
  implementation conforms to it.

ORGANIZATION:
  1. Depletion invariants - FIFO order, exactness, all-or-nothing
  2. Average costing - acquisition moves the average, consumption never
  3. Composition - polymorphic components, cycle rejection
  4. Aggregation - recursive costing, commit vs dry-run
  5. Snapshots - write-once, value-copied history

READING THESE TESTS:
  Each test has a descriptive name stating the behavior and
  GIVEN/WHEN/THEN comments explaining the scenario. They are
  intentionally verbose for documentation purposes.
*/
package costing_test

import (
	"context"
	"testing"
	"time"

	"github.com/kentonium3/bake-tracker-sub019/costing"
)

// =============================================================================
// 1. DEPLETION INVARIANTS
// =============================================================================

func TestScenario_Depletion_LotsAreImmutableExceptRemaining(t *testing.T) {
	// The store interface exposes exactly one lot mutation:
	// UpdateLotRemaining. Original quantity, unit cost, and acquisition
	// date have no write path after insert. This is enforced at compile
	// time by the LotStore interface.
	//
	// GIVEN: a store implementing costing.LotStore
	// THEN:  only InsertLot, UpdateLotRemaining, and DeleteLot mutate

	var _ costing.LotStore = newStore()
}

func TestScenario_Depletion_ConsumptionLedgerIsAppendOnly(t *testing.T) {
	// ConsumptionStore has no update or delete. Corrections happen by
	// producing again, never by rewriting history.

	var _ costing.ConsumptionStore = newStore()
}

func TestScenario_Depletion_ShortageIsDetectedBeforeAnyWrite(t *testing.T) {
	// GIVEN: two lots of 5g each
	// WHEN:  a 20g depletion fails
	// THEN:  both lots still hold 5g - the plan is validated against the
	//        total before the first lot is touched

	ctx := context.Background()
	s := newStore()
	engine := costing.NewDepletionEngine(quietLogger())

	ing := seedIngredient(t, s, "flour", costing.TrackLots)
	a := seedLot(t, s, ing, 5, "1.00", 0)
	b := seedLot(t, s, ing, 5, "1.00", 1)

	if _, err := engine.Deplete(ctx, s, ing, grams(20), costing.NewProductionRef(), costing.ModeCommit); err == nil {
		t.Fatal("expected a shortage error")
	}

	la, _ := s.Lot(ctx, a)
	lb, _ := s.Lot(ctx, b)
	if !la.Remaining.Value.Equal(dec("5")) || !lb.Remaining.Value.Equal(dec("5")) {
		t.Errorf("failed depletion must leave lots untouched, got %s and %s",
			la.Remaining.Value, lb.Remaining.Value)
	}
}

// =============================================================================
// 4. AGGREGATION
// =============================================================================

func TestScenario_Aggregation_CommitAndDryRunAgreeOnCost(t *testing.T) {
	// GIVEN: a recipe over lot-tracked and average-tracked ingredients
	// WHEN:  costing it first as a dry run, then as a commit
	// THEN:  both report the same total, and only the commit moved stock

	ctx := context.Background()
	s := newStore()
	agg := newAggregator()
	avg := costing.NewAverageEngine()

	flour := seedIngredient(t, s, "flour", costing.TrackLots)
	seedLot(t, s, flour, 500, "0.002", 0)
	butter := seedIngredient(t, s, "butter", costing.TrackAverage)
	if _, err := avg.Acquire(ctx, s, butter, grams(200), dec("0.012")); err != nil {
		t.Fatal(err)
	}

	cookies := seedRecipe(t, s, "cookies")
	seedEdge(t, s, cookies, costing.IngredientRef(flour), 125, 0)
	seedEdge(t, s, cookies, costing.IngredientRef(butter), 60, 1)

	preview, err := agg.ComputeCost(ctx, s, cookies, dec("1"), costing.NewProductionRef(), costing.ModeDryRun)
	if err != nil {
		t.Fatal(err)
	}

	committed, err := agg.ComputeCost(ctx, s, cookies, dec("1"), costing.NewProductionRef(), costing.ModeCommit)
	if err != nil {
		t.Fatal(err)
	}

	if !preview.TotalCost.Equal(committed.TotalCost) {
		t.Errorf("dry run promised %s but commit charged %s", preview.TotalCost, committed.TotalCost)
	}

	lots, _ := s.LotsByIngredient(ctx, flour)
	if !lots[0].Remaining.Value.Equal(dec("375")) {
		t.Errorf("commit should have consumed 125g exactly once, %sg remain", lots[0].Remaining.Value)
	}
}

// =============================================================================
// 5. SNAPSHOTS
// =============================================================================

func TestScenario_Snapshots_StoreInterfaceHasNoUpdateOrDelete(t *testing.T) {
	// SnapshotStore offers SaveSnapshot and reads. No update, no delete:
	// cost history cannot be rewritten through any store implementation.

	var _ costing.SnapshotStore = newStore()
}

func TestScenario_Snapshots_HistoryOrderedNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	rec := seedRecipe(t, s, "bread")
	base := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		snap := costing.CostSnapshot{
			ID:            costing.NewSnapshotID(),
			EntityID:      rec,
			ProductionRef: costing.NewProductionRef(),
			Quantity:      dec("1"),
			TotalCost:     dec("1.00"),
			PerUnitCost:   dec("1.00"),
			CreatedAt:     base.AddDate(0, 0, i),
		}
		if err := s.SaveSnapshot(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}

	snaps, err := s.SnapshotsByEntity(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].CreatedAt.After(snaps[i-1].CreatedAt) {
			t.Errorf("snapshots out of order at %d", i)
		}
	}
}
