/*
Package catalog manages the records the costing engine reads: ingredients,
recipes, composition edges, and purchase lots.

PURPOSE:
  The engine treats the catalog as read-only; this package is the write
  side. It owns the invariants that must hold before data reaches the
  engine:
  - composition edges have positive quantities and are cycle-validated
    inside the transaction that persists them
  - lots can only be registered for lot-tracked ingredients
  - a lot referenced by consumption records can never be deleted

SEE ALSO:
  - costing/graph.go: ValidateNoCycle, called here before edge insert
  - production/: the orchestration layer that consumes this catalog
*/
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kentonium3/bake-tracker-sub019/costing"
)

// Service is the catalog management facade.
type Service struct {
	store costing.TxStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store costing.TxStore, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// INGREDIENTS AND RECIPES
// =============================================================================

func (s *Service) CreateIngredient(ctx context.Context, name string, unit costing.Unit, tracking costing.TrackingMode) (*costing.Ingredient, error) {
	if name == "" {
		return nil, fmt.Errorf("ingredient name must not be empty")
	}
	ing := costing.Ingredient{
		ID:        costing.IngredientID(uuid.NewString()),
		Name:      name,
		Unit:      unit,
		Tracking:  tracking,
		CreatedAt: s.now(),
	}
	if err := s.store.PutIngredient(ctx, ing); err != nil {
		return nil, err
	}
	s.log.Info().Str("ingredient", string(ing.ID)).Str("name", name).Str("tracking", string(tracking)).Msg("ingredient created")
	return &ing, nil
}

func (s *Service) CreateRecipe(ctx context.Context, name string, yieldUnit costing.Unit) (*costing.Recipe, error) {
	if name == "" {
		return nil, fmt.Errorf("recipe name must not be empty")
	}
	rec := costing.Recipe{
		ID:        costing.AssemblyID(uuid.NewString()),
		Name:      name,
		YieldUnit: yieldUnit,
		CreatedAt: s.now(),
	}
	if err := s.store.PutRecipe(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info().Str("recipe", string(rec.ID)).Str("name", name).Msg("recipe created")
	return &rec, nil
}

func (s *Service) Ingredient(ctx context.Context, id costing.IngredientID) (*costing.Ingredient, error) {
	return s.store.Ingredient(ctx, id)
}

func (s *Service) Recipe(ctx context.Context, id costing.AssemblyID) (*costing.Recipe, error) {
	return s.store.Recipe(ctx, id)
}

// =============================================================================
// COMPOSITION EDGES
// =============================================================================

// AddComponent persists one parent->component edge. The cycle check runs
// inside the same transaction as the insert, so concurrent edits cannot
// slip a cycle in between validation and persistence.
func (s *Service) AddComponent(ctx context.Context, parentID costing.AssemblyID, component costing.ComponentRef, quantity costing.Quantity, position int) (*costing.CompositionEdge, error) {
	if component.IsZero() {
		return nil, fmt.Errorf("component reference must not be empty")
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: component quantity must be positive, got %v", costing.ErrInvalidQuantity, quantity.Value)
	}

	edge := costing.CompositionEdge{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		Component: component,
		Quantity:  quantity,
		Position:  position,
	}

	err := s.store.WithTx(ctx, func(tx costing.Store) error {
		if _, err := tx.Recipe(ctx, parentID); err != nil {
			return err
		}
		if err := s.componentExists(ctx, tx, component); err != nil {
			return err
		}
		if err := costing.ValidateNoCycle(ctx, tx, parentID, component); err != nil {
			return err
		}
		return tx.InsertEdge(ctx, edge)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("parent", string(parentID)).
		Str("component", component.String()).
		Str("quantity", quantity.Value.String()).
		Msg("component added")
	return &edge, nil
}

func (s *Service) componentExists(ctx context.Context, tx costing.Store, component costing.ComponentRef) error {
	if id, ok := component.Ingredient(); ok {
		_, err := tx.Ingredient(ctx, id)
		return err
	}
	id, _ := component.Assembly()
	_, err := tx.Recipe(ctx, id)
	return err
}

// Components returns the direct components of a recipe.
func (s *Service) Components(ctx context.Context, parentID costing.AssemblyID) ([]costing.CompositionEdge, error) {
	if _, err := s.store.Recipe(ctx, parentID); err != nil {
		return nil, err
	}
	return s.store.EdgesByParent(ctx, parentID)
}

// =============================================================================
// LOTS
// =============================================================================

// RegisterLot records a purchase of a lot-tracked ingredient.
func (s *Service) RegisterLot(ctx context.Context, ingredientID costing.IngredientID, quantity costing.Quantity, unitCost decimal.Decimal, acquiredAt time.Time) (*costing.Lot, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: lot quantity must be positive, got %v", costing.ErrInvalidQuantity, quantity.Value)
	}
	if unitCost.IsNegative() {
		return nil, fmt.Errorf("%w: lot unit cost must not be negative", costing.ErrInvalidQuantity)
	}

	ing, err := s.store.Ingredient(ctx, ingredientID)
	if err != nil {
		return nil, err
	}
	if ing.Tracking != costing.TrackLots {
		return nil, fmt.Errorf("ingredient %s is tracked by weighted average, not lots", ingredientID)
	}
	if acquiredAt.IsZero() {
		acquiredAt = s.now()
	}

	lot := costing.Lot{
		ID:           costing.NewLotID(),
		IngredientID: ingredientID,
		Original:     quantity,
		Remaining:    quantity,
		UnitCost:     unitCost,
		AcquiredAt:   acquiredAt,
	}
	if err := s.store.InsertLot(ctx, lot); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("ingredient", string(ingredientID)).
		Str("lot", string(lot.ID)).
		Str("quantity", quantity.Value.String()).
		Str("unit_cost", unitCost.String()).
		Msg("lot registered")
	return &lot, nil
}

// RemoveLot deletes a lot, refusing while any consumption record still
// references it. History outlives catalog cleanup.
func (s *Service) RemoveLot(ctx context.Context, id costing.LotID) error {
	return s.store.WithTx(ctx, func(tx costing.Store) error {
		n, err := tx.CountConsumptionsByLot(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: lot %s has %d consumption records", costing.ErrLotReferenced, id, n)
		}
		return tx.DeleteLot(ctx, id)
	})
}

// Lots lists the lots of an ingredient, oldest first.
func (s *Service) Lots(ctx context.Context, ingredientID costing.IngredientID) ([]costing.Lot, error) {
	if _, err := s.store.Ingredient(ctx, ingredientID); err != nil {
		return nil, err
	}
	return s.store.LotsByIngredient(ctx, ingredientID)
}
