/*
Package costing provides the cost aggregation and stock depletion engine.

PURPOSE:
  This package contains the core types and algorithms for computing the
  actual cost of producing assembled goods: FIFO depletion of ingredient
  lots, weighted-average costing of bulk stock, recursive traversal of the
  recipe composition graph, and immutable cost snapshots.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: a decimal amount with a unit (e.g., 500 g, 2 each)
  - Lot: one dated acquisition batch of a FIFO-tracked ingredient
  - ConsumptionRecord: an immutable audit entry for one lot depletion slice
  - StockedItem: bulk stock tracked by a rolling weighted-average cost
  - Ingredient / Recipe: catalog records the engine reads, never writes

DESIGN PRINCIPLES:
  1. Precision: all quantities and money use decimal.Decimal
  2. Immutability: consumption records and snapshots are never edited
  3. Type safety: distinct ID types prevent mixing ingredient/recipe ids
  4. Explicit transactions: every mutating call takes the tx-scoped Store

SEE ALSO:
  - fifo.go: FIFO depletion engine
  - average.go: weighted-average costing engine
  - graph.go: composition graph and cycle validation
  - aggregate.go: recursive cost aggregation
*/
package costing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Decimal amount with unit
// =============================================================================

type Quantity struct {
	Value decimal.Decimal `json:"value"`
	Unit  Unit            `json:"unit"`
}

type Unit string

const (
	UnitGram       Unit = "g"
	UnitMilliliter Unit = "ml"
	UnitEach       Unit = "each"
)

func NewQuantity(value float64, unit Unit) Quantity {
	return Quantity{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewQuantityFromInt(value int, unit Unit) Quantity {
	return Quantity{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func NewQuantityFromDecimal(value decimal.Decimal, unit Unit) Quantity {
	return Quantity{Value: value, Unit: unit}
}

// ParseDecimal parses a decimal from its string form. All runtime input
// (API payloads, catalog files, database columns) goes through here so a
// malformed figure surfaces as an error instead of loading as zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// MustParseDecimal is for literals known to be valid at compile time.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid decimal literal %q: %v", s, err))
	}
	return d
}

func (q Quantity) Zero() Quantity                 { return Quantity{Value: decimal.Zero, Unit: q.Unit} }
func (q Quantity) Add(b Quantity) Quantity        { return Quantity{Value: q.Value.Add(b.Value), Unit: q.Unit} }
func (q Quantity) Sub(b Quantity) Quantity        { return Quantity{Value: q.Value.Sub(b.Value), Unit: q.Unit} }
func (q Quantity) Mul(s decimal.Decimal) Quantity { return Quantity{Value: q.Value.Mul(s), Unit: q.Unit} }
func (q Quantity) IsZero() bool                   { return q.Value.IsZero() }
func (q Quantity) IsNegative() bool               { return q.Value.IsNegative() }
func (q Quantity) IsPositive() bool               { return q.Value.IsPositive() }
func (q Quantity) GreaterThan(b Quantity) bool    { return q.Value.GreaterThan(b.Value) }
func (q Quantity) LessThan(b Quantity) bool       { return q.Value.LessThan(b.Value) }
func (q Quantity) Min(b Quantity) Quantity {
	if q.LessThan(b) {
		return q
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type IngredientID string
type AssemblyID string
type LotID string
type ConsumptionID string
type SnapshotID string

// ProductionRef ties consumption records and a snapshot to one production
// (bake) event.
type ProductionRef string

func NewIngredientID() IngredientID   { return IngredientID(uuid.NewString()) }
func NewAssemblyID() AssemblyID       { return AssemblyID(uuid.NewString()) }
func NewLotID() LotID                 { return LotID(uuid.NewString()) }
func NewConsumptionID() ConsumptionID { return ConsumptionID(uuid.NewString()) }
func NewSnapshotID() SnapshotID       { return SnapshotID(uuid.NewString()) }
func NewProductionRef() ProductionRef { return ProductionRef(uuid.NewString()) }

// =============================================================================
// EXECUTION MODE
// =============================================================================

// Mode selects whether an operation persists its side effects.
type Mode string

const (
	// ModeCommit performs real consumption inside the caller's transaction.
	ModeCommit Mode = "commit"
	// ModeDryRun computes the identical result with zero mutation anywhere.
	ModeDryRun Mode = "dry_run"
)

// =============================================================================
// TRACKING MODE - How an ingredient's stock and cost are tracked
// =============================================================================

type TrackingMode string

const (
	// TrackLots keeps discrete dated lots, consumed oldest-first (FIFO).
	TrackLots TrackingMode = "lots"
	// TrackAverage keeps a single on-hand quantity with a rolling
	// weighted-average cost.
	TrackAverage TrackingMode = "average"
)

// =============================================================================
// CATALOG RECORDS - Read-only to this engine, managed by the catalog layer
// =============================================================================

type Ingredient struct {
	ID        IngredientID
	Name      string
	Unit      Unit
	Tracking  TrackingMode
	CreatedAt time.Time
}

type Recipe struct {
	ID        AssemblyID
	Name      string
	YieldUnit Unit
	CreatedAt time.Time
}

// =============================================================================
// LOT - One acquisition batch of a FIFO-tracked ingredient
// =============================================================================

// Lot is created on purchase and mutated only by depletion.
// Invariant: 0 <= Remaining <= Original.
type Lot struct {
	ID           LotID
	IngredientID IngredientID
	Original     Quantity
	Remaining    Quantity
	UnitCost     decimal.Decimal
	AcquiredAt   time.Time

	// Sequence is assigned by the store on insert and breaks AcquiredAt
	// ties deterministically.
	Sequence int64
}

// Exhausted reports whether the lot has nothing left to consume.
func (l Lot) Exhausted() bool { return !l.Remaining.IsPositive() }

// =============================================================================
// CONSUMPTION RECORD - Immutable audit entry, one per lot slice
// =============================================================================

// ConsumptionRecord links one depletion slice to one lot. Created only by
// the depletion engine. Never updated, never deleted.
type ConsumptionRecord struct {
	ID            ConsumptionID
	LotID         LotID
	IngredientID  IngredientID
	Quantity      Quantity
	Cost          decimal.Decimal // Quantity x lot unit cost at depletion time
	ProductionRef ProductionRef
	CreatedAt     time.Time
}

// =============================================================================
// STOCKED ITEM - Weighted-average tracked stock
// =============================================================================

// StockedItem is the aggregate stock row for a TrackAverage ingredient.
// AverageCost changes on acquisition only, never on consumption.
type StockedItem struct {
	IngredientID IngredientID
	OnHand       Quantity
	AverageCost  decimal.Decimal
	UpdatedAt    time.Time
}
