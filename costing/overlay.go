/*
overlay.go - Copy-on-write store view for dry-run aggregation

PURPOSE:
  A dry-run cost computation must behave exactly like a committed one:
  when two components of the same recipe draw from the same ingredient,
  the second must see the lots already depleted by the first. The overlay
  gives the recursion that visibility by buffering every mutation in
  memory while delegating untouched reads to the underlying store.
  Nothing ever reaches the underlying store; dropping the overlay is the
  rollback.

SCOPE:
  Internal to the aggregator. Only the mutations a cost traversal
  performs are supported; anything else fails loudly.
*/
package costing

import (
	"context"
	"errors"
)

var errOverlayReadOnly = errors.New("operation not available during dry-run")

// dryRunOverlay implements Store over a base store with in-memory
// copy-on-write state for lots, stocked items, and consumption records.
type dryRunOverlay struct {
	base Store

	lots         map[LotID]Lot
	items        map[IngredientID]StockedItem
	consumptions []ConsumptionRecord
}

func newDryRunOverlay(base Store) *dryRunOverlay {
	return &dryRunOverlay{
		base:  base,
		lots:  make(map[LotID]Lot),
		items: make(map[IngredientID]StockedItem),
	}
}

// ----- lots ------------------------------------------------------------------

func (o *dryRunOverlay) InsertLot(context.Context, Lot) error { return errOverlayReadOnly }
func (o *dryRunOverlay) DeleteLot(context.Context, LotID) error {
	return errOverlayReadOnly
}

func (o *dryRunOverlay) Lot(ctx context.Context, id LotID) (*Lot, error) {
	if lot, ok := o.lots[id]; ok {
		return &lot, nil
	}
	return o.base.Lot(ctx, id)
}

func (o *dryRunOverlay) LotsByIngredient(ctx context.Context, ingredientID IngredientID) ([]Lot, error) {
	lots, err := o.base.LotsByIngredient(ctx, ingredientID)
	if err != nil {
		return nil, err
	}
	out := make([]Lot, len(lots))
	for i, lot := range lots {
		if modified, ok := o.lots[lot.ID]; ok {
			out[i] = modified
		} else {
			out[i] = lot
		}
	}
	return out, nil
}

func (o *dryRunOverlay) UpdateLotRemaining(ctx context.Context, id LotID, remaining Quantity) error {
	lot, err := o.Lot(ctx, id)
	if err != nil {
		return err
	}
	changed := *lot
	changed.Remaining = remaining
	o.lots[id] = changed
	return nil
}

// ----- consumption records ---------------------------------------------------

func (o *dryRunOverlay) AppendConsumptions(_ context.Context, records []ConsumptionRecord) error {
	o.consumptions = append(o.consumptions, records...)
	return nil
}

func (o *dryRunOverlay) ConsumptionsByProduction(ctx context.Context, ref ProductionRef) ([]ConsumptionRecord, error) {
	stored, err := o.base.ConsumptionsByProduction(ctx, ref)
	if err != nil {
		return nil, err
	}
	for _, r := range o.consumptions {
		if r.ProductionRef == ref {
			stored = append(stored, r)
		}
	}
	return stored, nil
}

func (o *dryRunOverlay) CountConsumptionsByLot(ctx context.Context, id LotID) (int, error) {
	n, err := o.base.CountConsumptionsByLot(ctx, id)
	if err != nil {
		return 0, err
	}
	for _, r := range o.consumptions {
		if r.LotID == id {
			n++
		}
	}
	return n, nil
}

// ----- stocked items ---------------------------------------------------------

func (o *dryRunOverlay) PutStockedItem(_ context.Context, item StockedItem) error {
	o.items[item.IngredientID] = item
	return nil
}

func (o *dryRunOverlay) StockedItem(ctx context.Context, ingredientID IngredientID) (*StockedItem, error) {
	if item, ok := o.items[ingredientID]; ok {
		return &item, nil
	}
	return o.base.StockedItem(ctx, ingredientID)
}

// ----- read-through for everything else --------------------------------------

func (o *dryRunOverlay) EdgesByParent(ctx context.Context, parentID AssemblyID) ([]CompositionEdge, error) {
	return o.base.EdgesByParent(ctx, parentID)
}

func (o *dryRunOverlay) InsertEdge(context.Context, CompositionEdge) error {
	return errOverlayReadOnly
}

func (o *dryRunOverlay) PutIngredient(context.Context, Ingredient) error {
	return errOverlayReadOnly
}

func (o *dryRunOverlay) Ingredient(ctx context.Context, id IngredientID) (*Ingredient, error) {
	return o.base.Ingredient(ctx, id)
}

func (o *dryRunOverlay) Ingredients(ctx context.Context) ([]Ingredient, error) {
	return o.base.Ingredients(ctx)
}

func (o *dryRunOverlay) PutRecipe(context.Context, Recipe) error { return errOverlayReadOnly }

func (o *dryRunOverlay) Recipe(ctx context.Context, id AssemblyID) (*Recipe, error) {
	return o.base.Recipe(ctx, id)
}

func (o *dryRunOverlay) Recipes(ctx context.Context) ([]Recipe, error) {
	return o.base.Recipes(ctx)
}

func (o *dryRunOverlay) SaveSnapshot(context.Context, CostSnapshot) error {
	return errOverlayReadOnly
}

func (o *dryRunOverlay) Snapshot(ctx context.Context, id SnapshotID) (*CostSnapshot, error) {
	return o.base.Snapshot(ctx, id)
}

func (o *dryRunOverlay) SnapshotsByEntity(ctx context.Context, entityID AssemblyID) ([]CostSnapshot, error) {
	return o.base.SnapshotsByEntity(ctx, entityID)
}

func (o *dryRunOverlay) Snapshots(ctx context.Context) ([]CostSnapshot, error) {
	return o.base.Snapshots(ctx)
}
