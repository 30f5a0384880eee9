/*
Package sqlite provides the SQLite-backed implementation of the costing
store interfaces.

PURPOSE:
  Implements costing.TxStore over a single SQLite file. The engine runs
  in a single-writer desktop context, which is exactly what SQLite with
  WAL mode is built for.

APPEND-ONLY ENFORCEMENT:
  - consumptions: INSERT only; no UPDATE or DELETE statement exists
  - snapshots: INSERT only, with a UNIQUE index per production reference
  - lots: the single UPDATE touches remaining_qty and nothing else

DECIMALS:
  Quantities and costs are stored as TEXT in decimal string form, never
  as floating point, so values survive the round trip exactly.

KEY TABLES:
  ingredients, recipes:   catalog records
  lots:                   dated acquisition batches (FIFO order by
                          acquired_at, then rowid-backed seq)
  consumptions:           immutable depletion audit entries
  stocked_items:          weighted-average stock rows
  composition_edges:      bill-of-materials rows
  snapshots:              frozen cost records (breakdown as JSON)

MIGRATION:
  Schema is auto-migrated on New(). Use ":memory:" for tests.

SEE ALSO:
  - costing/store.go: interface definitions
  - costing/store/memory.go: in-memory implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kentonium3/bake-tracker-sub019/costing"
)

// Store implements costing.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Catalog records
	CREATE TABLE IF NOT EXISTS ingredients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		tracking_mode TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recipes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		yield_unit TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Lots: acquisition batches, consumed oldest-first
	CREATE TABLE IF NOT EXISTS lots (
		id TEXT PRIMARY KEY,
		ingredient_id TEXT NOT NULL REFERENCES ingredients(id),
		original_qty TEXT NOT NULL,
		remaining_qty TEXT NOT NULL,
		unit TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		acquired_at TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lots_ingredient_acquired
		ON lots(ingredient_id, acquired_at, seq);

	-- Consumptions: append-only depletion ledger
	CREATE TABLE IF NOT EXISTS consumptions (
		id TEXT PRIMARY KEY,
		lot_id TEXT NOT NULL REFERENCES lots(id),
		ingredient_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		cost TEXT NOT NULL,
		production_ref TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_consumptions_ref
		ON consumptions(production_ref);
	CREATE INDEX IF NOT EXISTS idx_consumptions_lot
		ON consumptions(lot_id);

	-- Stocked items: one weighted-average row per ingredient
	CREATE TABLE IF NOT EXISTS stocked_items (
		ingredient_id TEXT PRIMARY KEY,
		on_hand TEXT NOT NULL,
		unit TEXT NOT NULL,
		average_cost TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Composition edges: parent-contains-component rows
	CREATE TABLE IF NOT EXISTS composition_edges (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL REFERENCES recipes(id),
		component_kind TEXT NOT NULL,
		component_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_edges_parent
		ON composition_edges(parent_id, position);

	-- Snapshots: write-once cost records
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		production_ref TEXT NOT NULL,
		quantity TEXT NOT NULL,
		total_cost TEXT NOT NULL,
		per_unit_cost TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		consumption_ids_json TEXT NOT NULL,
		backfilled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_ref
		ON snapshots(production_ref);
	CREATE INDEX IF NOT EXISTS idx_snapshots_entity
		ON snapshots(entity_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx so the same statement helpers serve
// both direct calls and transactional views.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LOTS
// =============================================================================

func (s *Store) InsertLot(ctx context.Context, lot costing.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLot(ctx, s.db, lot)
}

func (s *Store) insertLot(ctx context.Context, db dbtx, lot costing.Lot) error {
	var next int64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM lots`).Scan(&next); err != nil {
		return fmt.Errorf("failed to allocate lot sequence: %w", err)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO lots (id, ingredient_id, original_qty, remaining_qty, unit, unit_cost, acquired_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID,
		lot.IngredientID,
		lot.Original.Value.String(),
		lot.Remaining.Value.String(),
		lot.Original.Unit,
		lot.UnitCost.String(),
		lot.AcquiredAt.UTC().Format(time.RFC3339Nano),
		next,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lot: %w", err)
	}
	return nil
}

func (s *Store) Lot(ctx context.Context, id costing.LotID) (*costing.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lot(ctx, s.db, id)
}

func (s *Store) lot(ctx context.Context, db dbtx, id costing.LotID) (*costing.Lot, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, ingredient_id, original_qty, remaining_qty, unit, unit_cost, acquired_at, seq
		FROM lots WHERE id = ?`, id)
	lot, err := scanLot(row)
	if err == sql.ErrNoRows {
		return nil, costing.ErrLotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lot: %w", err)
	}
	return lot, nil
}

func (s *Store) LotsByIngredient(ctx context.Context, ingredientID costing.IngredientID) ([]costing.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lotsByIngredient(ctx, s.db, ingredientID)
}

func (s *Store) lotsByIngredient(ctx context.Context, db dbtx, ingredientID costing.IngredientID) ([]costing.Lot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, ingredient_id, original_qty, remaining_qty, unit, unit_cost, acquired_at, seq
		FROM lots WHERE ingredient_id = ?
		ORDER BY acquired_at ASC, seq ASC`, ingredientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var lots []costing.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, *lot)
	}
	return lots, rows.Err()
}

func (s *Store) UpdateLotRemaining(ctx context.Context, id costing.LotID, remaining costing.Quantity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLotRemaining(ctx, s.db, id, remaining)
}

func (s *Store) updateLotRemaining(ctx context.Context, db dbtx, id costing.LotID, remaining costing.Quantity) error {
	res, err := db.ExecContext(ctx, `UPDATE lots SET remaining_qty = ? WHERE id = ?`,
		remaining.Value.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update lot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return costing.ErrLotNotFound
	}
	return nil
}

func (s *Store) DeleteLot(ctx context.Context, id costing.LotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLot(ctx, s.db, id)
}

func (s *Store) deleteLot(ctx context.Context, db dbtx, id costing.LotID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM lots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete lot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return costing.ErrLotNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (*costing.Lot, error) {
	var (
		lot                               costing.Lot
		originalQty, remainingQty         string
		unit, unitCost, acquiredAt        string
	)
	if err := row.Scan(&lot.ID, &lot.IngredientID, &originalQty, &remainingQty, &unit, &unitCost, &acquiredAt, &lot.Sequence); err != nil {
		return nil, err
	}
	var err error
	if lot.Original, err = parseQuantity(originalQty, unit); err != nil {
		return nil, fmt.Errorf("corrupt lot %s: %w", lot.ID, err)
	}
	if lot.Remaining, err = parseQuantity(remainingQty, unit); err != nil {
		return nil, fmt.Errorf("corrupt lot %s: %w", lot.ID, err)
	}
	if lot.UnitCost, err = costing.ParseDecimal(unitCost); err != nil {
		return nil, fmt.Errorf("corrupt lot %s: %w", lot.ID, err)
	}
	if lot.AcquiredAt, err = time.Parse(time.RFC3339Nano, acquiredAt); err != nil {
		return nil, fmt.Errorf("corrupt lot %s: %w", lot.ID, err)
	}
	return &lot, nil
}

// =============================================================================
// CONSUMPTIONS (append-only)
// =============================================================================

func (s *Store) AppendConsumptions(ctx context.Context, records []costing.ConsumptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendConsumptions(ctx, s.db, records)
}

func (s *Store) appendConsumptions(ctx context.Context, db dbtx, records []costing.ConsumptionRecord) error {
	for _, r := range records {
		_, err := db.ExecContext(ctx, `
			INSERT INTO consumptions (id, lot_id, ingredient_id, quantity, unit, cost, production_ref, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID,
			r.LotID,
			r.IngredientID,
			r.Quantity.Value.String(),
			r.Quantity.Unit,
			r.Cost.String(),
			r.ProductionRef,
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to append consumption: %w", err)
		}
	}
	return nil
}

func (s *Store) ConsumptionsByProduction(ctx context.Context, ref costing.ProductionRef) ([]costing.ConsumptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consumptionsByProduction(ctx, s.db, ref)
}

func (s *Store) consumptionsByProduction(ctx context.Context, db dbtx, ref costing.ProductionRef) ([]costing.ConsumptionRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, lot_id, ingredient_id, quantity, unit, cost, production_ref, created_at
		FROM consumptions WHERE production_ref = ?
		ORDER BY created_at ASC, id ASC`, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumptions: %w", err)
	}
	defer rows.Close()

	var records []costing.ConsumptionRecord
	for rows.Next() {
		var (
			r                       costing.ConsumptionRecord
			qty, unit, cost, created string
		)
		if err := rows.Scan(&r.ID, &r.LotID, &r.IngredientID, &qty, &unit, &cost, &r.ProductionRef, &created); err != nil {
			return nil, fmt.Errorf("failed to scan consumption: %w", err)
		}
		var err error
		if r.Quantity, err = parseQuantity(qty, unit); err != nil {
			return nil, fmt.Errorf("corrupt consumption %s: %w", r.ID, err)
		}
		if r.Cost, err = costing.ParseDecimal(cost); err != nil {
			return nil, fmt.Errorf("corrupt consumption %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("corrupt consumption %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) CountConsumptionsByLot(ctx context.Context, id costing.LotID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countConsumptionsByLot(ctx, s.db, id)
}

func (s *Store) countConsumptionsByLot(ctx context.Context, db dbtx, id costing.LotID) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM consumptions WHERE lot_id = ?`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count consumptions: %w", err)
	}
	return n, nil
}

// =============================================================================
// STOCKED ITEMS
// =============================================================================

func (s *Store) PutStockedItem(ctx context.Context, item costing.StockedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putStockedItem(ctx, s.db, item)
}

func (s *Store) putStockedItem(ctx context.Context, db dbtx, item costing.StockedItem) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO stocked_items (ingredient_id, on_hand, unit, average_cost, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ingredient_id) DO UPDATE SET
			on_hand = excluded.on_hand,
			unit = excluded.unit,
			average_cost = excluded.average_cost,
			updated_at = excluded.updated_at`,
		item.IngredientID,
		item.OnHand.Value.String(),
		item.OnHand.Unit,
		item.AverageCost.String(),
		item.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to put stocked item: %w", err)
	}
	return nil
}

func (s *Store) StockedItem(ctx context.Context, ingredientID costing.IngredientID) (*costing.StockedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stockedItem(ctx, s.db, ingredientID)
}

func (s *Store) stockedItem(ctx context.Context, db dbtx, ingredientID costing.IngredientID) (*costing.StockedItem, error) {
	var (
		item                     costing.StockedItem
		onHand, unit, avg, updated string
	)
	err := db.QueryRowContext(ctx, `
		SELECT ingredient_id, on_hand, unit, average_cost, updated_at
		FROM stocked_items WHERE ingredient_id = ?`, ingredientID).
		Scan(&item.IngredientID, &onHand, &unit, &avg, &updated)
	if err == sql.ErrNoRows {
		return nil, costing.ErrIngredientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stocked item: %w", err)
	}
	if item.OnHand, err = parseQuantity(onHand, unit); err != nil {
		return nil, fmt.Errorf("corrupt stocked item %s: %w", ingredientID, err)
	}
	if item.AverageCost, err = costing.ParseDecimal(avg); err != nil {
		return nil, fmt.Errorf("corrupt stocked item %s: %w", ingredientID, err)
	}
	if item.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("corrupt stocked item %s: %w", ingredientID, err)
	}
	return &item, nil
}

// =============================================================================
// COMPOSITION EDGES
// =============================================================================

func (s *Store) InsertEdge(ctx context.Context, edge costing.CompositionEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertEdge(ctx, s.db, edge)
}

func (s *Store) insertEdge(ctx context.Context, db dbtx, edge costing.CompositionEdge) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO composition_edges (id, parent_id, component_kind, component_id, quantity, unit, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		edge.ID,
		edge.ParentID,
		edge.Component.Kind(),
		edge.Component.RefID(),
		edge.Quantity.Value.String(),
		edge.Quantity.Unit,
		edge.Position,
	)
	if err != nil {
		return fmt.Errorf("failed to insert edge: %w", err)
	}
	return nil
}

func (s *Store) EdgesByParent(ctx context.Context, parentID costing.AssemblyID) ([]costing.CompositionEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesByParent(ctx, s.db, parentID)
}

func (s *Store) edgesByParent(ctx context.Context, db dbtx, parentID costing.AssemblyID) ([]costing.CompositionEdge, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, parent_id, component_kind, component_id, quantity, unit, position
		FROM composition_edges WHERE parent_id = ?
		ORDER BY position ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []costing.CompositionEdge
	for rows.Next() {
		var (
			edge              costing.CompositionEdge
			kind, refID       string
			qty, unit         string
		)
		if err := rows.Scan(&edge.ID, &edge.ParentID, &kind, &refID, &qty, &unit, &edge.Position); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		ref, err := costing.ParseComponentRef(costing.ComponentKind(kind), refID)
		if err != nil {
			return nil, fmt.Errorf("corrupt edge %s: %w", edge.ID, err)
		}
		edge.Component = ref
		if edge.Quantity, err = parseQuantity(qty, unit); err != nil {
			return nil, fmt.Errorf("corrupt edge %s: %w", edge.ID, err)
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// =============================================================================
// CATALOG RECORDS
// =============================================================================

func (s *Store) PutIngredient(ctx context.Context, ing costing.Ingredient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putIngredient(ctx, s.db, ing)
}

func (s *Store) putIngredient(ctx context.Context, db dbtx, ing costing.Ingredient) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, unit, tracking_mode, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			unit = excluded.unit,
			tracking_mode = excluded.tracking_mode`,
		ing.ID, ing.Name, ing.Unit, ing.Tracking, ing.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to put ingredient: %w", err)
	}
	return nil
}

func (s *Store) Ingredient(ctx context.Context, id costing.IngredientID) (*costing.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ingredient(ctx, s.db, id)
}

func (s *Store) ingredient(ctx context.Context, db dbtx, id costing.IngredientID) (*costing.Ingredient, error) {
	var (
		ing     costing.Ingredient
		created string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, name, unit, tracking_mode, created_at FROM ingredients WHERE id = ?`, id).
		Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.Tracking, &created)
	if err == sql.ErrNoRows {
		return nil, costing.ErrIngredientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ingredient: %w", err)
	}
	if ing.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("corrupt ingredient %s: %w", ing.ID, err)
	}
	return &ing, nil
}

func (s *Store) Ingredients(ctx context.Context) ([]costing.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allIngredients(ctx, s.db)
}

func (s *Store) allIngredients(ctx context.Context, db dbtx) ([]costing.Ingredient, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, unit, tracking_mode, created_at FROM ingredients ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingredients: %w", err)
	}
	defer rows.Close()

	var out []costing.Ingredient
	for rows.Next() {
		var (
			ing     costing.Ingredient
			created string
		)
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.Tracking, &created); err != nil {
			return nil, fmt.Errorf("failed to scan ingredient: %w", err)
		}
		var err error
		if ing.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("corrupt ingredient %s: %w", ing.ID, err)
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

func (s *Store) PutRecipe(ctx context.Context, rec costing.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putRecipe(ctx, s.db, rec)
}

func (s *Store) putRecipe(ctx context.Context, db dbtx, rec costing.Recipe) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO recipes (id, name, yield_unit, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			yield_unit = excluded.yield_unit`,
		rec.ID, rec.Name, rec.YieldUnit, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to put recipe: %w", err)
	}
	return nil
}

func (s *Store) Recipe(ctx context.Context, id costing.AssemblyID) (*costing.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recipe(ctx, s.db, id)
}

func (s *Store) recipe(ctx context.Context, db dbtx, id costing.AssemblyID) (*costing.Recipe, error) {
	var (
		rec     costing.Recipe
		created string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, name, yield_unit, created_at FROM recipes WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Name, &rec.YieldUnit, &created)
	if err == sql.ErrNoRows {
		return nil, costing.ErrAssemblyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("corrupt recipe %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func (s *Store) Recipes(ctx context.Context) ([]costing.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allRecipes(ctx, s.db)
}

func (s *Store) allRecipes(ctx context.Context, db dbtx) ([]costing.Recipe, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, yield_unit, created_at FROM recipes ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipes: %w", err)
	}
	defer rows.Close()

	var out []costing.Recipe
	for rows.Next() {
		var (
			rec     costing.Recipe
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.YieldUnit, &created); err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		var err error
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("corrupt recipe %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// SNAPSHOTS (write-once)
// =============================================================================

func (s *Store) SaveSnapshot(ctx context.Context, snap costing.CostSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSnapshot(ctx, s.db, snap)
}

func (s *Store) saveSnapshot(ctx context.Context, db dbtx, snap costing.CostSnapshot) error {
	breakdownJSON, err := json.Marshal(snap.Components)
	if err != nil {
		return fmt.Errorf("failed to serialize breakdown: %w", err)
	}
	idsJSON, err := json.Marshal(snap.ConsumptionIDs)
	if err != nil {
		return fmt.Errorf("failed to serialize consumption ids: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO snapshots (id, entity_id, production_ref, quantity, total_cost, per_unit_cost,
			breakdown_json, consumption_ids_json, backfilled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID,
		snap.EntityID,
		snap.ProductionRef,
		snap.Quantity.String(),
		snap.TotalCost.String(),
		snap.PerUnitCost.String(),
		string(breakdownJSON),
		string(idsJSON),
		snap.Backfilled,
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return costing.ErrSnapshotExists
		}
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *Store) Snapshot(ctx context.Context, id costing.SnapshotID) (*costing.CostSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(ctx, s.db, id)
}

func (s *Store) snapshot(ctx context.Context, db dbtx, id costing.SnapshotID) (*costing.CostSnapshot, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, entity_id, production_ref, quantity, total_cost, per_unit_cost,
			breakdown_json, consumption_ids_json, backfilled, created_at
		FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, costing.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) SnapshotsByEntity(ctx context.Context, entityID costing.AssemblyID) ([]costing.CostSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySnapshots(ctx, s.db, `WHERE entity_id = ?`, entityID)
}

func (s *Store) Snapshots(ctx context.Context) ([]costing.CostSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySnapshots(ctx, s.db, ``)
}

func (s *Store) querySnapshots(ctx context.Context, db dbtx, where string, args ...any) ([]costing.CostSnapshot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, entity_id, production_ref, quantity, total_cost, per_unit_cost,
			breakdown_json, consumption_ids_json, backfilled, created_at
		FROM snapshots `+where+` ORDER BY created_at DESC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []costing.CostSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row rowScanner) (*costing.CostSnapshot, error) {
	var (
		snap                                       costing.CostSnapshot
		qty, total, perUnit, breakdown, ids, created string
	)
	if err := row.Scan(&snap.ID, &snap.EntityID, &snap.ProductionRef, &qty, &total, &perUnit,
		&breakdown, &ids, &snap.Backfilled, &created); err != nil {
		return nil, err
	}
	var err error
	if snap.Quantity, err = costing.ParseDecimal(qty); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", snap.ID, err)
	}
	if snap.TotalCost, err = costing.ParseDecimal(total); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", snap.ID, err)
	}
	if snap.PerUnitCost, err = costing.ParseDecimal(perUnit); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", snap.ID, err)
	}
	if err := json.Unmarshal([]byte(breakdown), &snap.Components); err != nil {
		return nil, fmt.Errorf("corrupt breakdown json: %w", err)
	}
	if err := json.Unmarshal([]byte(ids), &snap.ConsumptionIDs); err != nil {
		return nil, fmt.Errorf("corrupt consumption ids json: %w", err)
	}
	if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", snap.ID, err)
	}
	return &snap, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(costing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every operation through the open *sql.Tx.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) InsertLot(ctx context.Context, lot costing.Lot) error {
	return ts.parent.insertLot(ctx, ts.tx, lot)
}

func (ts *txStore) Lot(ctx context.Context, id costing.LotID) (*costing.Lot, error) {
	return ts.parent.lot(ctx, ts.tx, id)
}

func (ts *txStore) LotsByIngredient(ctx context.Context, ingredientID costing.IngredientID) ([]costing.Lot, error) {
	return ts.parent.lotsByIngredient(ctx, ts.tx, ingredientID)
}

func (ts *txStore) UpdateLotRemaining(ctx context.Context, id costing.LotID, remaining costing.Quantity) error {
	return ts.parent.updateLotRemaining(ctx, ts.tx, id, remaining)
}

func (ts *txStore) DeleteLot(ctx context.Context, id costing.LotID) error {
	return ts.parent.deleteLot(ctx, ts.tx, id)
}

func (ts *txStore) AppendConsumptions(ctx context.Context, records []costing.ConsumptionRecord) error {
	return ts.parent.appendConsumptions(ctx, ts.tx, records)
}

func (ts *txStore) ConsumptionsByProduction(ctx context.Context, ref costing.ProductionRef) ([]costing.ConsumptionRecord, error) {
	return ts.parent.consumptionsByProduction(ctx, ts.tx, ref)
}

func (ts *txStore) CountConsumptionsByLot(ctx context.Context, id costing.LotID) (int, error) {
	return ts.parent.countConsumptionsByLot(ctx, ts.tx, id)
}

func (ts *txStore) PutStockedItem(ctx context.Context, item costing.StockedItem) error {
	return ts.parent.putStockedItem(ctx, ts.tx, item)
}

func (ts *txStore) StockedItem(ctx context.Context, ingredientID costing.IngredientID) (*costing.StockedItem, error) {
	return ts.parent.stockedItem(ctx, ts.tx, ingredientID)
}

func (ts *txStore) InsertEdge(ctx context.Context, edge costing.CompositionEdge) error {
	return ts.parent.insertEdge(ctx, ts.tx, edge)
}

func (ts *txStore) EdgesByParent(ctx context.Context, parentID costing.AssemblyID) ([]costing.CompositionEdge, error) {
	return ts.parent.edgesByParent(ctx, ts.tx, parentID)
}

func (ts *txStore) PutIngredient(ctx context.Context, ing costing.Ingredient) error {
	return ts.parent.putIngredient(ctx, ts.tx, ing)
}

func (ts *txStore) Ingredient(ctx context.Context, id costing.IngredientID) (*costing.Ingredient, error) {
	return ts.parent.ingredient(ctx, ts.tx, id)
}

func (ts *txStore) Ingredients(ctx context.Context) ([]costing.Ingredient, error) {
	return ts.parent.allIngredients(ctx, ts.tx)
}

func (ts *txStore) PutRecipe(ctx context.Context, rec costing.Recipe) error {
	return ts.parent.putRecipe(ctx, ts.tx, rec)
}

func (ts *txStore) Recipe(ctx context.Context, id costing.AssemblyID) (*costing.Recipe, error) {
	return ts.parent.recipe(ctx, ts.tx, id)
}

func (ts *txStore) Recipes(ctx context.Context) ([]costing.Recipe, error) {
	return ts.parent.allRecipes(ctx, ts.tx)
}

func (ts *txStore) SaveSnapshot(ctx context.Context, snap costing.CostSnapshot) error {
	return ts.parent.saveSnapshot(ctx, ts.tx, snap)
}

func (ts *txStore) Snapshot(ctx context.Context, id costing.SnapshotID) (*costing.CostSnapshot, error) {
	return ts.parent.snapshot(ctx, ts.tx, id)
}

func (ts *txStore) SnapshotsByEntity(ctx context.Context, entityID costing.AssemblyID) ([]costing.CostSnapshot, error) {
	return ts.parent.querySnapshots(ctx, ts.tx, `WHERE entity_id = ?`, entityID)
}

func (ts *txStore) Snapshots(ctx context.Context) ([]costing.CostSnapshot, error) {
	return ts.parent.querySnapshots(ctx, ts.tx, ``)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseQuantity(value, unit string) (costing.Quantity, error) {
	d, err := costing.ParseDecimal(value)
	if err != nil {
		return costing.Quantity{}, err
	}
	return costing.Quantity{Value: d, Unit: costing.Unit(unit)}, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
