/*
snapshot.go - Immutable cost snapshots

PURPOSE:
  A snapshot freezes the fully resolved cost of one production event:
  total, per-unit, the serialized component breakdown, and the ids of the
  consumption records the computation created. The breakdown is a value
  copy, not live references - later catalog or price edits can never
  change what a historical snapshot displays.

WRITE-ONCE:
  The store interface exposes no update or delete for snapshots, and at
  most one snapshot may exist per production reference. The only path
  that creates snapshots outside a commit-mode cost computation is the
  explicitly named backfill constructor, used by the administrative
  migration flow, and such records carry Backfilled=true for audits.
*/
package costing

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostSnapshot is an immutable point-in-time record of a computed cost.
type CostSnapshot struct {
	ID            SnapshotID
	EntityID      AssemblyID
	ProductionRef ProductionRef
	Quantity      decimal.Decimal
	TotalCost     decimal.Decimal
	PerUnitCost   decimal.Decimal

	// Components is the frozen breakdown tree, stored serialized.
	Components []ComponentCost

	// ConsumptionIDs are the ledger entries this computation created.
	ConsumptionIDs []ConsumptionID

	// Backfilled marks records inserted by the administrative migration
	// path rather than a live production event.
	Backfilled bool

	CreatedAt time.Time
}

// NewCostSnapshot freezes a commit-mode cost result. Call it inside the
// same transaction as the computation itself.
func NewCostSnapshot(result *CostResult, ref ProductionRef, at time.Time) CostSnapshot {
	ids := make([]ConsumptionID, 0, len(result.Consumptions))
	for _, r := range result.Consumptions {
		ids = append(ids, r.ID)
	}
	return CostSnapshot{
		ID:             NewSnapshotID(),
		EntityID:       result.EntityID,
		ProductionRef:  ref,
		Quantity:       result.Quantity,
		TotalCost:      result.TotalCost,
		PerUnitCost:    result.PerUnitCost,
		Components:     result.Components,
		ConsumptionIDs: ids,
		CreatedAt:      at,
	}
}

// NewBackfilledSnapshot builds a snapshot for pre-existing history. It is
// deliberately a separate constructor, not a flag on the normal one, so
// the migration path cannot be reached by accident from production code.
func NewBackfilledSnapshot(entityID AssemblyID, quantity, totalCost decimal.Decimal, components []ComponentCost, producedAt time.Time) CostSnapshot {
	perUnit := decimal.Zero
	if quantity.IsPositive() {
		perUnit = totalCost.Div(quantity)
	}
	return CostSnapshot{
		ID:            NewSnapshotID(),
		EntityID:      entityID,
		ProductionRef: NewProductionRef(),
		Quantity:      quantity,
		TotalCost:     totalCost,
		PerUnitCost:   perUnit,
		Components:    components,
		Backfilled:    true,
		CreatedAt:     producedAt,
	}
}
