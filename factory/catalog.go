/*
Package factory converts JSON catalog definitions into live catalog and
stock records.

PURPOSE:
  Demo scenarios and imports describe a bakery in JSON: ingredients with
  their tracking mode and starting stock, recipes with their component
  lists. The factory resolves local keys to generated ids and applies
  everything through the catalog and production services, so every
  invariant (cycle validation, positive quantities, tracking-mode
  checks) still holds.

PARTIAL SUCCESS:
  A component whose reference cannot be resolved is skipped with a
  warning instead of failing the whole load. The skipped entries are
  returned to the caller so the gap is visible, not silent.

JSON SCHEMA:
  {
    "ingredients": [
      {"key": "flour", "name": "Bread flour", "unit": "g", "tracking": "lots",
       "lots": [{"quantity": 5000, "unit_cost": "0.002", "acquired_at": "2026-01-10T00:00:00Z"}]},
      {"key": "sugar", "name": "Sugar", "unit": "g", "tracking": "average",
       "stock": {"quantity": 2000, "unit_cost": "0.0015"}}
    ],
    "recipes": [
      {"key": "sponge", "name": "Sponge", "yield_unit": "each",
       "components": [{"ingredient": "flour", "quantity": 250}]}
    ]
  }
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kentonium3/bake-tracker-sub019/catalog"
	"github.com/kentonium3/bake-tracker-sub019/costing"
	"github.com/kentonium3/bake-tracker-sub019/production"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type CatalogJSON struct {
	Ingredients []IngredientJSON `json:"ingredients"`
	Recipes     []RecipeJSON     `json:"recipes"`
}

type IngredientJSON struct {
	Key      string     `json:"key"`
	Name     string     `json:"name"`
	Unit     string     `json:"unit"`
	Tracking string     `json:"tracking"`
	Lots     []LotJSON  `json:"lots,omitempty"`
	Stock    *StockJSON `json:"stock,omitempty"`
}

type LotJSON struct {
	Quantity   float64 `json:"quantity"`
	UnitCost   string  `json:"unit_cost"`
	AcquiredAt string  `json:"acquired_at,omitempty"`
}

type StockJSON struct {
	Quantity float64 `json:"quantity"`
	UnitCost string  `json:"unit_cost"`
}

type RecipeJSON struct {
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	YieldUnit  string          `json:"yield_unit"`
	Components []ComponentJSON `json:"components"`
}

// ComponentJSON names exactly one of ingredient or recipe by local key.
type ComponentJSON struct {
	Ingredient string  `json:"ingredient,omitempty"`
	Recipe     string  `json:"recipe,omitempty"`
	Quantity   float64 `json:"quantity"`
}

// =============================================================================
// FACTORY
// =============================================================================

type CatalogFactory struct {
	catalog *catalog.Service
	prod    *production.Service
	log     zerolog.Logger
}

func NewCatalogFactory(cat *catalog.Service, prod *production.Service, log zerolog.Logger) *CatalogFactory {
	return &CatalogFactory{catalog: cat, prod: prod, log: log}
}

// LoadResult maps the definition's local keys to the generated ids and
// lists anything that was skipped.
type LoadResult struct {
	Ingredients map[string]costing.IngredientID
	Recipes     map[string]costing.AssemblyID
	Skipped     []string
}

// Load parses a JSON catalog definition and applies it.
func (f *CatalogFactory) Load(ctx context.Context, raw string) (*LoadResult, error) {
	var def CatalogJSON
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, fmt.Errorf("failed to parse catalog definition: %w", err)
	}

	result := &LoadResult{
		Ingredients: make(map[string]costing.IngredientID),
		Recipes:     make(map[string]costing.AssemblyID),
	}

	// Pass 1: ingredients with their starting stock.
	for _, in := range def.Ingredients {
		if err := f.loadIngredient(ctx, in, result); err != nil {
			return nil, err
		}
	}

	// Pass 2: recipe records, so components may reference any recipe
	// regardless of declaration order.
	for _, rj := range def.Recipes {
		rec, err := f.catalog.CreateRecipe(ctx, rj.Name, costing.Unit(rj.YieldUnit))
		if err != nil {
			return nil, err
		}
		result.Recipes[rj.Key] = rec.ID
	}

	// Pass 3: components. Unresolved references are skipped with a
	// warning; the rest of the load proceeds.
	for _, rj := range def.Recipes {
		parentID := result.Recipes[rj.Key]
		for i, cj := range rj.Components {
			ref, ok := resolveComponent(cj, result)
			if !ok {
				msg := fmt.Sprintf("recipe %q component %d: unresolved reference (ingredient=%q recipe=%q)",
					rj.Key, i, cj.Ingredient, cj.Recipe)
				result.Skipped = append(result.Skipped, msg)
				f.log.Warn().Str("recipe", rj.Key).Int("component", i).Msg("skipping unresolved component")
				continue
			}
			unit := f.componentUnit(ctx, ref)
			if _, err := f.catalog.AddComponent(ctx, parentID, ref, costing.NewQuantity(cj.Quantity, unit), i); err != nil {
				return nil, err
			}
		}
	}

	return result, nil
}

func (f *CatalogFactory) loadIngredient(ctx context.Context, in IngredientJSON, result *LoadResult) error {
	tracking := costing.TrackingMode(in.Tracking)
	if tracking != costing.TrackLots && tracking != costing.TrackAverage {
		return fmt.Errorf("ingredient %q: unknown tracking mode %q", in.Key, in.Tracking)
	}

	ing, err := f.catalog.CreateIngredient(ctx, in.Name, costing.Unit(in.Unit), tracking)
	if err != nil {
		return err
	}
	result.Ingredients[in.Key] = ing.ID

	for _, lj := range in.Lots {
		acquiredAt := time.Time{}
		if lj.AcquiredAt != "" {
			acquiredAt, err = time.Parse(time.RFC3339, lj.AcquiredAt)
			if err != nil {
				return fmt.Errorf("ingredient %q: bad acquired_at %q: %w", in.Key, lj.AcquiredAt, err)
			}
		}
		unitCost, err := costing.ParseDecimal(lj.UnitCost)
		if err != nil {
			return fmt.Errorf("ingredient %q: bad unit_cost: %w", in.Key, err)
		}
		_, err = f.catalog.RegisterLot(ctx, ing.ID, costing.NewQuantity(lj.Quantity, ing.Unit), unitCost, acquiredAt)
		if err != nil {
			return err
		}
	}

	if in.Stock != nil {
		unitCost, err := costing.ParseDecimal(in.Stock.UnitCost)
		if err != nil {
			return fmt.Errorf("ingredient %q: bad unit_cost: %w", in.Key, err)
		}
		_, err = f.prod.Acquire(ctx, ing.ID, costing.NewQuantity(in.Stock.Quantity, ing.Unit), unitCost)
		if err != nil {
			return err
		}
	}
	return nil
}

func resolveComponent(cj ComponentJSON, result *LoadResult) (costing.ComponentRef, bool) {
	hasIng := cj.Ingredient != ""
	hasRec := cj.Recipe != ""
	if hasIng == hasRec {
		// Both or neither: not representable as a component.
		return costing.ComponentRef{}, false
	}
	if hasIng {
		id, ok := result.Ingredients[cj.Ingredient]
		if !ok {
			return costing.ComponentRef{}, false
		}
		return costing.IngredientRef(id), true
	}
	id, ok := result.Recipes[cj.Recipe]
	if !ok {
		return costing.ComponentRef{}, false
	}
	return costing.AssemblyRef(id), true
}

func (f *CatalogFactory) componentUnit(ctx context.Context, ref costing.ComponentRef) costing.Unit {
	if id, ok := ref.Ingredient(); ok {
		if ing, err := f.catalog.Ingredient(ctx, id); err == nil {
			return ing.Unit
		}
	}
	if id, ok := ref.Assembly(); ok {
		if rec, err := f.catalog.Recipe(ctx, id); err == nil {
			return rec.YieldUnit
		}
	}
	return costing.UnitEach
}
