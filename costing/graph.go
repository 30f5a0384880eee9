/*
graph.go - Composition graph: component references, edges, cycle validation

PURPOSE:
  Models the bill-of-materials graph. A recipe is built from components,
  where each component is EITHER a base ingredient OR another recipe.
  The "exactly one" choice is a tagged union with unexported fields, so
  an edge pointing at both (or neither) cannot be constructed.

CYCLE VALIDATION:
  ValidateNoCycle is a pure function over the stored edges. The catalog
  layer calls it inside the same transaction that persists a new edge,
  so a component can never directly or transitively contain its parent.
  The traversal is depth-first over assembly ids - no live object
  references, just map/slice walking over identifiers.

SEE ALSO:
  - aggregate.go: consumes edges during cost traversal
  - catalog/: the write side that calls ValidateNoCycle before persisting
*/
package costing

import (
	"context"
	"encoding/json"
	"fmt"
)

// =============================================================================
// COMPONENT REFERENCE - Tagged union over {ingredient, assembly}
// =============================================================================

type ComponentKind string

const (
	KindIngredient ComponentKind = "ingredient"
	KindAssembly   ComponentKind = "assembly"
)

// ComponentRef points at exactly one ingredient or one assembly.
// Construct only through IngredientRef / AssemblyRef.
type ComponentRef struct {
	kind         ComponentKind
	ingredientID IngredientID
	assemblyID   AssemblyID
}

func IngredientRef(id IngredientID) ComponentRef {
	return ComponentRef{kind: KindIngredient, ingredientID: id}
}

func AssemblyRef(id AssemblyID) ComponentRef {
	return ComponentRef{kind: KindAssembly, assemblyID: id}
}

// ParseComponentRef rebuilds a reference from its stored (kind, id) pair.
func ParseComponentRef(kind ComponentKind, id string) (ComponentRef, error) {
	switch kind {
	case KindIngredient:
		return IngredientRef(IngredientID(id)), nil
	case KindAssembly:
		return AssemblyRef(AssemblyID(id)), nil
	default:
		return ComponentRef{}, fmt.Errorf("unknown component kind %q", kind)
	}
}

func (r ComponentRef) Kind() ComponentKind { return r.kind }
func (r ComponentRef) IsZero() bool        { return r.kind == "" }

// Ingredient returns the ingredient id when the reference is an ingredient.
func (r ComponentRef) Ingredient() (IngredientID, bool) {
	return r.ingredientID, r.kind == KindIngredient
}

// Assembly returns the assembly id when the reference is a sub-assembly.
func (r ComponentRef) Assembly() (AssemblyID, bool) {
	return r.assemblyID, r.kind == KindAssembly
}

// RefID returns the raw identifier regardless of kind, for storage and logs.
func (r ComponentRef) RefID() string {
	if r.kind == KindAssembly {
		return string(r.assemblyID)
	}
	return string(r.ingredientID)
}

func (r ComponentRef) String() string {
	return string(r.kind) + ":" + r.RefID()
}

// componentRefJSON is the stored form of a reference inside snapshot
// breakdowns. Value-copied on purpose: snapshots must survive catalog edits.
type componentRefJSON struct {
	Kind ComponentKind `json:"kind"`
	ID   string        `json:"id"`
}

func (r ComponentRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(componentRefJSON{Kind: r.kind, ID: r.RefID()})
}

func (r *ComponentRef) UnmarshalJSON(data []byte) error {
	var raw componentRefJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ref, err := ParseComponentRef(raw.Kind, raw.ID)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// =============================================================================
// COMPOSITION EDGE - One parent-contains-component row
// =============================================================================

// CompositionEdge is read-only to the engine; the catalog layer creates it.
// Invariant: Quantity is positive, Component is non-zero.
type CompositionEdge struct {
	ID        string
	ParentID  AssemblyID
	Component ComponentRef
	Quantity  Quantity
	Position  int
}

// EdgeReader is the minimal read surface cycle validation and cost
// traversal need. Both the memory and SQLite stores satisfy it.
type EdgeReader interface {
	// EdgesByParent returns the direct components of an assembly,
	// ordered by Position.
	EdgesByParent(ctx context.Context, parentID AssemblyID) ([]CompositionEdge, error)
}

// =============================================================================
// CYCLE VALIDATION
// =============================================================================

// ValidateNoCycle rejects a proposed parent->component edge if the
// component is, or transitively contains, the parent. Call it inside the
// transaction that persists the edge.
func ValidateNoCycle(ctx context.Context, edges EdgeReader, parentID AssemblyID, component ComponentRef) error {
	start, ok := component.Assembly()
	if !ok {
		// Ingredients have no outgoing edges; only self-reference via an
		// assembly component can close a cycle.
		return nil
	}

	if start == parentID {
		return &CycleError{ParentID: parentID, Component: component, Path: []AssemblyID{start}}
	}

	visited := map[AssemblyID]bool{}
	var walk func(current AssemblyID, path []AssemblyID) error
	walk = func(current AssemblyID, path []AssemblyID) error {
		if visited[current] {
			return nil
		}
		visited[current] = true

		children, err := edges.EdgesByParent(ctx, current)
		if err != nil {
			return err
		}
		for _, edge := range children {
			child, ok := edge.Component.Assembly()
			if !ok {
				continue
			}
			next := append(append([]AssemblyID{}, path...), child)
			if child == parentID {
				return &CycleError{ParentID: parentID, Component: component, Path: next}
			}
			if err := walk(child, next); err != nil {
				return err
			}
		}
		return nil
	}

	return walk(start, []AssemblyID{start})
}
