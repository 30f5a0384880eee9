/*
scenarios.go - Demo catalog definitions and scenario handlers

PURPOSE:
  Ships a handful of ready-made catalogs so the API can be explored
  without hand-entering ingredients and recipes. Each scenario is a JSON
  catalog definition fed through the factory loader.

SCENARIOS:
  bakery-basics   Flat recipe: cookies from lot-tracked flour and
                  average-tracked butter.
  layered-cake    Nested composition: a cake whose components include a
                  frosting sub-recipe, to exercise recursive costing.
  shortage-demo   Deliberately thin stock, so dry-run feasibility and
                  insufficient-stock handling can be demonstrated.

SEE ALSO:
  - factory/catalog.go: JSON schema and loader
*/
package api

import (
	"encoding/json"
	"net/http"
)

type scenario struct {
	Name        string
	Description string
	Catalog     string
}

var scenarios = []scenario{
	{
		Name:        "bakery-basics",
		Description: "Flour lots at two prices plus average-cost butter, one cookie recipe",
		Catalog: `{
			"ingredients": [
				{
					"key": "flour",
					"name": "All-Purpose Flour",
					"unit": "g",
					"tracking": "lots",
					"lots": [
						{"quantity": 1000, "unit_cost": "0.002", "acquired_at": "2026-01-05T08:00:00Z"},
						{"quantity": 2000, "unit_cost": "0.0025", "acquired_at": "2026-02-10T08:00:00Z"}
					]
				},
				{
					"key": "butter",
					"name": "Unsalted Butter",
					"unit": "g",
					"tracking": "average",
					"stock": {"quantity": 500, "unit_cost": "0.012"}
				},
				{
					"key": "sugar",
					"name": "Granulated Sugar",
					"unit": "g",
					"tracking": "lots",
					"lots": [
						{"quantity": 1500, "unit_cost": "0.003", "acquired_at": "2026-01-20T08:00:00Z"}
					]
				}
			],
			"recipes": [
				{
					"key": "cookies",
					"name": "Chocolate Chip Cookies",
					"yield_unit": "each",
					"components": [
						{"ingredient": "flour", "quantity": 125},
						{"ingredient": "butter", "quantity": 60},
						{"ingredient": "sugar", "quantity": 100}
					]
				}
			]
		}`,
	},
	{
		Name:        "layered-cake",
		Description: "Cake built from a frosting sub-recipe, exercising nested costing",
		Catalog: `{
			"ingredients": [
				{
					"key": "flour",
					"name": "Cake Flour",
					"unit": "g",
					"tracking": "lots",
					"lots": [
						{"quantity": 3000, "unit_cost": "0.0028", "acquired_at": "2026-03-01T08:00:00Z"}
					]
				},
				{
					"key": "eggs",
					"name": "Eggs",
					"unit": "each",
					"tracking": "lots",
					"lots": [
						{"quantity": 24, "unit_cost": "0.35", "acquired_at": "2026-03-05T08:00:00Z"},
						{"quantity": 24, "unit_cost": "0.40", "acquired_at": "2026-03-12T08:00:00Z"}
					]
				},
				{
					"key": "powdered-sugar",
					"name": "Powdered Sugar",
					"unit": "g",
					"tracking": "average",
					"stock": {"quantity": 2000, "unit_cost": "0.004"}
				},
				{
					"key": "cream",
					"name": "Heavy Cream",
					"unit": "ml",
					"tracking": "average",
					"stock": {"quantity": 1000, "unit_cost": "0.006"}
				}
			],
			"recipes": [
				{
					"key": "frosting",
					"name": "Buttercream Frosting",
					"yield_unit": "g",
					"components": [
						{"ingredient": "powdered-sugar", "quantity": 2},
						{"ingredient": "cream", "quantity": 0.5}
					]
				},
				{
					"key": "cake",
					"name": "Layer Cake",
					"yield_unit": "each",
					"components": [
						{"ingredient": "flour", "quantity": 350},
						{"ingredient": "eggs", "quantity": 4},
						{"recipe": "frosting", "quantity": 250}
					]
				}
			]
		}`,
	},
	{
		Name:        "shortage-demo",
		Description: "Thin stock for demonstrating feasibility checks and shortage errors",
		Catalog: `{
			"ingredients": [
				{
					"key": "vanilla",
					"name": "Vanilla Extract",
					"unit": "ml",
					"tracking": "lots",
					"lots": [
						{"quantity": 10, "unit_cost": "0.80", "acquired_at": "2026-04-01T08:00:00Z"}
					]
				},
				{
					"key": "milk",
					"name": "Whole Milk",
					"unit": "ml",
					"tracking": "average",
					"stock": {"quantity": 200, "unit_cost": "0.0015"}
				}
			],
			"recipes": [
				{
					"key": "custard",
					"name": "Vanilla Custard",
					"yield_unit": "ml",
					"components": [
						{"ingredient": "vanilla", "quantity": 0.02},
						{"ingredient": "milk", "quantity": 0.9}
					]
				}
			]
		}`,
	},
}

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = ScenarioDTO{Name: s.Name, Description: s.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario reports the most recently loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": h.currentScenario})
}

// LoadScenario loads a demo catalog into the store. Loading is additive;
// ids are freshly generated on every load.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var found *scenario
	for i := range scenarios {
		if scenarios[i].Name == req.Name {
			found = &scenarios[i]
			break
		}
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "Unknown scenario", nil)
		return
	}

	result, err := h.Factory.Load(r.Context(), found.Catalog)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = found.Name
	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Name:        found.Name,
		Ingredients: len(result.Ingredients),
		Recipes:     len(result.Recipes),
		Skipped:     result.Skipped,
	})
}
