/*
store.go - Persistence interfaces for the costing engine

PURPOSE:
  Defines the boundary between the engine and the database. Implementations
  exist for SQLite (store/sqlite) and memory (costing/store).

APPEND-ONLY CONTRACT:
  Consumption records and snapshots have NO update or delete methods.
  Lots mutate in exactly one way: Remaining decreases via
  UpdateLotRemaining. Corrections to history are new records, not edits.

TRANSACTIONS:
  TxStore.WithTx runs a function against a transaction-scoped Store.
  Every mutating engine call takes the tx-scoped Store as an explicit
  parameter, so atomicity boundaries are visible at the call site. If the
  function returns an error the whole transaction rolls back - there is
  no partial consumption and no snapshot without its consumption records.
*/
package costing

import "context"

// =============================================================================
// LOTS
// =============================================================================

type LotStore interface {
	// InsertLot persists a new lot. The store assigns Sequence.
	InsertLot(ctx context.Context, lot Lot) error

	// Lot returns one lot or ErrLotNotFound.
	Lot(ctx context.Context, id LotID) (*Lot, error)

	// LotsByIngredient returns every lot for the ingredient, exhausted
	// ones included, ordered by AcquiredAt ascending with Sequence
	// breaking ties. Depletion correctness depends on this order.
	LotsByIngredient(ctx context.Context, ingredientID IngredientID) ([]Lot, error)

	// UpdateLotRemaining sets the remaining quantity of a lot. This is
	// the only mutation lots support.
	UpdateLotRemaining(ctx context.Context, id LotID, remaining Quantity) error

	// DeleteLot removes a lot. Callers must enforce the reference guard
	// (see catalog.RemoveLot) before calling.
	DeleteLot(ctx context.Context, id LotID) error
}

// =============================================================================
// CONSUMPTION RECORDS (append-only)
// =============================================================================

type ConsumptionStore interface {
	// AppendConsumptions persists records atomically. The ONLY write.
	AppendConsumptions(ctx context.Context, records []ConsumptionRecord) error

	// ConsumptionsByProduction returns the records created by one
	// production event, in creation order.
	ConsumptionsByProduction(ctx context.Context, ref ProductionRef) ([]ConsumptionRecord, error)

	// CountConsumptionsByLot reports how many records reference a lot.
	// Used by the lot deletion guard.
	CountConsumptionsByLot(ctx context.Context, id LotID) (int, error)
}

// =============================================================================
// STOCKED ITEMS (weighted average)
// =============================================================================

type StockedItemStore interface {
	// PutStockedItem inserts or replaces the aggregate stock row.
	PutStockedItem(ctx context.Context, item StockedItem) error

	// StockedItem returns the row or ErrIngredientNotFound.
	StockedItem(ctx context.Context, ingredientID IngredientID) (*StockedItem, error)
}

// =============================================================================
// COMPOSITION EDGES
// =============================================================================

type EdgeStore interface {
	EdgeReader

	// InsertEdge persists a validated edge. Validation (positive
	// quantity, no cycle) happens in the catalog layer first.
	InsertEdge(ctx context.Context, edge CompositionEdge) error
}

// =============================================================================
// CATALOG RECORDS
// =============================================================================

type CatalogStore interface {
	PutIngredient(ctx context.Context, ing Ingredient) error
	Ingredient(ctx context.Context, id IngredientID) (*Ingredient, error)
	Ingredients(ctx context.Context) ([]Ingredient, error)

	PutRecipe(ctx context.Context, rec Recipe) error
	Recipe(ctx context.Context, id AssemblyID) (*Recipe, error)
	Recipes(ctx context.Context) ([]Recipe, error)
}

// =============================================================================
// SNAPSHOTS (write-once)
// =============================================================================

type SnapshotStore interface {
	// SaveSnapshot persists a snapshot. Fails with ErrSnapshotExists if
	// one already exists for the same production reference.
	SaveSnapshot(ctx context.Context, snap CostSnapshot) error

	// Snapshot returns one snapshot or ErrSnapshotNotFound.
	Snapshot(ctx context.Context, id SnapshotID) (*CostSnapshot, error)

	// SnapshotsByEntity returns snapshots for one assembly, newest first.
	SnapshotsByEntity(ctx context.Context, entityID AssemblyID) ([]CostSnapshot, error)

	// Snapshots returns all snapshots, newest first.
	Snapshots(ctx context.Context) ([]CostSnapshot, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is the full persistence surface the engine operates on.
type Store interface {
	LotStore
	ConsumptionStore
	StockedItemStore
	EdgeStore
	CatalogStore
	SnapshotStore
}

// TxStore adds transaction support.
type TxStore interface {
	Store

	// WithTx executes fn against a transaction-scoped Store.
	// Error from fn rolls the transaction back; nil commits it.
	WithTx(ctx context.Context, fn func(Store) error) error
}
