/*
errors.go - Centralized error types for the costing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is against the sentinels; the structured
  variants carry the context needed for actionable messages.

ERROR CATEGORIES:
  1. Stock errors - recoverable by the caller (retry smaller, restock)
  2. Composition errors - catalog configuration problems
  3. Guard errors - defensive failures that indicate a validation gap

PROPAGATION:
  Leaf errors (depletion, acquisition) propagate unmodified through the
  recursive aggregation. The top-level caller owns transactional rollback.
*/
package costing

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientStock is returned when a depletion or consumption
	// requests more than is on hand. Nothing is committed.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidComposition is returned when an assembly cannot be costed
	// because its definition is wrong (e.g., zero components).
	ErrInvalidComposition = errors.New("invalid composition")

	// ErrCycleDetected is returned by edge validation when a proposed
	// component would, directly or transitively, contain its own parent.
	ErrCycleDetected = errors.New("composition cycle detected")

	// ErrDepthExceeded is returned when recursion passes the configured
	// maximum depth. This indicates a cycle that slipped past validation.
	ErrDepthExceeded = errors.New("maximum composition depth exceeded")

	// ErrInvalidQuantity is returned for zero or negative requested
	// quantities, rejected before any traversal begins.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrIngredientNotFound is returned when an ingredient id resolves to
	// nothing.
	ErrIngredientNotFound = errors.New("ingredient not found")

	// ErrAssemblyNotFound is returned when a recipe id resolves to nothing.
	ErrAssemblyNotFound = errors.New("assembly not found")

	// ErrLotNotFound is returned when a lot id resolves to nothing.
	ErrLotNotFound = errors.New("lot not found")

	// ErrSnapshotNotFound is returned when a snapshot id resolves to nothing.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrLotReferenced blocks lot deletion while consumption records
	// still point at the lot.
	ErrLotReferenced = errors.New("lot referenced by consumption records")

	// ErrSnapshotExists is returned when a second snapshot is written for
	// the same production reference. Snapshots are write-once.
	ErrSnapshotExists = errors.New("snapshot already exists for production reference")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports a shortage on a specific resource.
type InsufficientStockError struct {
	IngredientID IngredientID
	Available    Quantity
	Requested    Quantity
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of %s: available %v, requested %v",
		e.IngredientID, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Shortfall is the quantity missing to satisfy the request.
func (e *InsufficientStockError) Shortfall() Quantity {
	return e.Requested.Sub(e.Available)
}

// CompositionError reports a configuration problem on an assembly.
// Distinct from stock errors: the catalog, not the pantry, is wrong.
type CompositionError struct {
	EntityID AssemblyID
	Reason   string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("invalid composition for %s: %s", e.EntityID, e.Reason)
}

func (e *CompositionError) Unwrap() error { return ErrInvalidComposition }

// CycleError reports the edge that would close a cycle, with the path
// that reaches back to the parent.
type CycleError struct {
	ParentID  AssemblyID
	Component ComponentRef
	Path      []AssemblyID
}

func (e *CycleError) Error() string {
	steps := make([]string, 0, len(e.Path))
	for _, id := range e.Path {
		steps = append(steps, string(id))
	}
	return fmt.Sprintf("cycle detected: adding %s to %s reaches parent via [%s]",
		e.Component.RefID(), e.ParentID, strings.Join(steps, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// DepthExceededError is a defensive fatal error: graph validation should
// make it unreachable. Log loudly when seen.
type DepthExceededError struct {
	EntityID AssemblyID
	Depth    int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("depth %d exceeded while costing %s", e.Depth, e.EntityID)
}

func (e *DepthExceededError) Unwrap() error { return ErrDepthExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is recoverable by the caller
// (smaller quantity, restock, fixed input).
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrCycleDetected) ||
		errors.Is(err, ErrLotReferenced)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIngredientNotFound) ||
		errors.Is(err, ErrAssemblyNotFound) ||
		errors.Is(err, ErrLotNotFound) ||
		errors.Is(err, ErrSnapshotNotFound)
}

// IsIntegrityError returns true for developer-facing failures that point
// at a data or validation gap rather than user input.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrDepthExceeded) ||
		errors.Is(err, ErrInvalidComposition) ||
		errors.Is(err, ErrSnapshotExists)
}
