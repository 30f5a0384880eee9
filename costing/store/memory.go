// Package store provides the in-memory Store implementation used by
// tests and development. The SQLite implementation lives in store/sqlite.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kentonium3/bake-tracker-sub019/costing"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements costing.TxStore with mutex-guarded maps. WithTx is
// simulated with a deep state copy restored on error, mirroring the
// rollback semantics of the SQLite store.
type Memory struct {
	mu sync.RWMutex
	st memoryState
}

type memoryState struct {
	seq           int64
	lots          map[costing.LotID]costing.Lot
	lotsByIng     map[costing.IngredientID][]costing.LotID
	consumptions  []costing.ConsumptionRecord
	items         map[costing.IngredientID]costing.StockedItem
	edges         map[costing.AssemblyID][]costing.CompositionEdge
	ingredients   map[costing.IngredientID]costing.Ingredient
	recipes       map[costing.AssemblyID]costing.Recipe
	snapshots     map[costing.SnapshotID]costing.CostSnapshot
	snapshotByRef map[costing.ProductionRef]costing.SnapshotID
}

func NewMemory() *Memory {
	return &Memory{st: newMemoryState()}
}

func newMemoryState() memoryState {
	return memoryState{
		lots:          make(map[costing.LotID]costing.Lot),
		lotsByIng:     make(map[costing.IngredientID][]costing.LotID),
		items:         make(map[costing.IngredientID]costing.StockedItem),
		edges:         make(map[costing.AssemblyID][]costing.CompositionEdge),
		ingredients:   make(map[costing.IngredientID]costing.Ingredient),
		recipes:       make(map[costing.AssemblyID]costing.Recipe),
		snapshots:     make(map[costing.SnapshotID]costing.CostSnapshot),
		snapshotByRef: make(map[costing.ProductionRef]costing.SnapshotID),
	}
}

// =============================================================================
// UNLOCKED OPERATIONS - shared by the public methods and the tx view
// =============================================================================

func (s *memoryState) insertLot(lot costing.Lot) error {
	s.seq++
	lot.Sequence = s.seq
	s.lots[lot.ID] = lot
	s.lotsByIng[lot.IngredientID] = append(s.lotsByIng[lot.IngredientID], lot.ID)
	return nil
}

func (s *memoryState) lot(id costing.LotID) (*costing.Lot, error) {
	lot, ok := s.lots[id]
	if !ok {
		return nil, costing.ErrLotNotFound
	}
	return &lot, nil
}

func (s *memoryState) lotsByIngredient(ingredientID costing.IngredientID) ([]costing.Lot, error) {
	ids := s.lotsByIng[ingredientID]
	lots := make([]costing.Lot, 0, len(ids))
	for _, id := range ids {
		lots = append(lots, s.lots[id])
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].AcquiredAt.Equal(lots[j].AcquiredAt) {
			return lots[i].AcquiredAt.Before(lots[j].AcquiredAt)
		}
		return lots[i].Sequence < lots[j].Sequence
	})
	return lots, nil
}

func (s *memoryState) updateLotRemaining(id costing.LotID, remaining costing.Quantity) error {
	lot, ok := s.lots[id]
	if !ok {
		return costing.ErrLotNotFound
	}
	lot.Remaining = remaining
	s.lots[id] = lot
	return nil
}

func (s *memoryState) deleteLot(id costing.LotID) error {
	lot, ok := s.lots[id]
	if !ok {
		return costing.ErrLotNotFound
	}
	delete(s.lots, id)
	ids := s.lotsByIng[lot.IngredientID]
	for i, lid := range ids {
		if lid == id {
			s.lotsByIng[lot.IngredientID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memoryState) appendConsumptions(records []costing.ConsumptionRecord) error {
	s.consumptions = append(s.consumptions, records...)
	return nil
}

func (s *memoryState) consumptionsByProduction(ref costing.ProductionRef) ([]costing.ConsumptionRecord, error) {
	var out []costing.ConsumptionRecord
	for _, r := range s.consumptions {
		if r.ProductionRef == ref {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryState) countConsumptionsByLot(id costing.LotID) (int, error) {
	n := 0
	for _, r := range s.consumptions {
		if r.LotID == id {
			n++
		}
	}
	return n, nil
}

func (s *memoryState) putStockedItem(item costing.StockedItem) error {
	s.items[item.IngredientID] = item
	return nil
}

func (s *memoryState) stockedItem(id costing.IngredientID) (*costing.StockedItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, costing.ErrIngredientNotFound
	}
	return &item, nil
}

func (s *memoryState) edgesByParent(parentID costing.AssemblyID) ([]costing.CompositionEdge, error) {
	edges := append([]costing.CompositionEdge{}, s.edges[parentID]...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].Position < edges[j].Position })
	return edges, nil
}

func (s *memoryState) insertEdge(edge costing.CompositionEdge) error {
	s.edges[edge.ParentID] = append(s.edges[edge.ParentID], edge)
	return nil
}

func (s *memoryState) putIngredient(ing costing.Ingredient) error {
	s.ingredients[ing.ID] = ing
	return nil
}

func (s *memoryState) ingredient(id costing.IngredientID) (*costing.Ingredient, error) {
	ing, ok := s.ingredients[id]
	if !ok {
		return nil, costing.ErrIngredientNotFound
	}
	return &ing, nil
}

func (s *memoryState) allIngredients() ([]costing.Ingredient, error) {
	out := make([]costing.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		out = append(out, ing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryState) putRecipe(rec costing.Recipe) error {
	s.recipes[rec.ID] = rec
	return nil
}

func (s *memoryState) recipe(id costing.AssemblyID) (*costing.Recipe, error) {
	rec, ok := s.recipes[id]
	if !ok {
		return nil, costing.ErrAssemblyNotFound
	}
	return &rec, nil
}

func (s *memoryState) allRecipes() ([]costing.Recipe, error) {
	out := make([]costing.Recipe, 0, len(s.recipes))
	for _, rec := range s.recipes {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryState) saveSnapshot(snap costing.CostSnapshot) error {
	if _, exists := s.snapshotByRef[snap.ProductionRef]; exists {
		return costing.ErrSnapshotExists
	}
	s.snapshots[snap.ID] = snap
	s.snapshotByRef[snap.ProductionRef] = snap.ID
	return nil
}

func (s *memoryState) snapshot(id costing.SnapshotID) (*costing.CostSnapshot, error) {
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, costing.ErrSnapshotNotFound
	}
	return &snap, nil
}

func (s *memoryState) snapshotsByEntity(entityID costing.AssemblyID) ([]costing.CostSnapshot, error) {
	var out []costing.CostSnapshot
	for _, snap := range s.snapshots {
		if snap.EntityID == entityID {
			out = append(out, snap)
		}
	}
	sortSnapshots(out)
	return out, nil
}

func (s *memoryState) allSnapshots() ([]costing.CostSnapshot, error) {
	out := make([]costing.CostSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	sortSnapshots(out)
	return out, nil
}

func sortSnapshots(snaps []costing.CostSnapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
		}
		return snaps[i].ID < snaps[j].ID
	})
}

// clone deep-copies the state for WithTx rollback.
func (s *memoryState) clone() memoryState {
	c := newMemoryState()
	c.seq = s.seq
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.lotsByIng {
		c.lotsByIng[k] = append([]costing.LotID{}, v...)
	}
	c.consumptions = append([]costing.ConsumptionRecord{}, s.consumptions...)
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.edges {
		c.edges[k] = append([]costing.CompositionEdge{}, v...)
	}
	for k, v := range s.ingredients {
		c.ingredients[k] = v
	}
	for k, v := range s.recipes {
		c.recipes[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	for k, v := range s.snapshotByRef {
		c.snapshotByRef[k] = v
	}
	return c
}

// =============================================================================
// PUBLIC METHODS - lock, then delegate
// =============================================================================

func (m *Memory) InsertLot(_ context.Context, lot costing.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertLot(lot)
}

func (m *Memory) Lot(_ context.Context, id costing.LotID) (*costing.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.lot(id)
}

func (m *Memory) LotsByIngredient(_ context.Context, id costing.IngredientID) ([]costing.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.lotsByIngredient(id)
}

func (m *Memory) UpdateLotRemaining(_ context.Context, id costing.LotID, remaining costing.Quantity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateLotRemaining(id, remaining)
}

func (m *Memory) DeleteLot(_ context.Context, id costing.LotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteLot(id)
}

func (m *Memory) AppendConsumptions(_ context.Context, records []costing.ConsumptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendConsumptions(records)
}

func (m *Memory) ConsumptionsByProduction(_ context.Context, ref costing.ProductionRef) ([]costing.ConsumptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.consumptionsByProduction(ref)
}

func (m *Memory) CountConsumptionsByLot(_ context.Context, id costing.LotID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.countConsumptionsByLot(id)
}

func (m *Memory) PutStockedItem(_ context.Context, item costing.StockedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.putStockedItem(item)
}

func (m *Memory) StockedItem(_ context.Context, id costing.IngredientID) (*costing.StockedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.stockedItem(id)
}

func (m *Memory) EdgesByParent(_ context.Context, parentID costing.AssemblyID) ([]costing.CompositionEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.edgesByParent(parentID)
}

func (m *Memory) InsertEdge(_ context.Context, edge costing.CompositionEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertEdge(edge)
}

func (m *Memory) PutIngredient(_ context.Context, ing costing.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.putIngredient(ing)
}

func (m *Memory) Ingredient(_ context.Context, id costing.IngredientID) (*costing.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ingredient(id)
}

func (m *Memory) Ingredients(_ context.Context) ([]costing.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.allIngredients()
}

func (m *Memory) PutRecipe(_ context.Context, rec costing.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.putRecipe(rec)
}

func (m *Memory) Recipe(_ context.Context, id costing.AssemblyID) (*costing.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.recipe(id)
}

func (m *Memory) Recipes(_ context.Context) ([]costing.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.allRecipes()
}

func (m *Memory) SaveSnapshot(_ context.Context, snap costing.CostSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.saveSnapshot(snap)
}

func (m *Memory) Snapshot(_ context.Context, id costing.SnapshotID) (*costing.CostSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.snapshot(id)
}

func (m *Memory) SnapshotsByEntity(_ context.Context, entityID costing.AssemblyID) ([]costing.CostSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.snapshotsByEntity(entityID)
}

func (m *Memory) Snapshots(_ context.Context) ([]costing.CostSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.allSnapshots()
}

// =============================================================================
// TRANSACTIONS - deep copy, restore on error
// =============================================================================

// WithTx executes fn against a transactional view. The state is cloned
// first and restored if fn fails, so rollback semantics match SQLite.
func (m *Memory) WithTx(_ context.Context, fn func(costing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	backup := m.st.clone()
	if err := fn(&txMemoryView{st: &m.st}); err != nil {
		m.st = backup
		return err
	}
	return nil
}

// txMemoryView operates on the already-locked state.
type txMemoryView struct {
	st *memoryState
}

func (v *txMemoryView) InsertLot(_ context.Context, lot costing.Lot) error { return v.st.insertLot(lot) }
func (v *txMemoryView) Lot(_ context.Context, id costing.LotID) (*costing.Lot, error) {
	return v.st.lot(id)
}
func (v *txMemoryView) LotsByIngredient(_ context.Context, id costing.IngredientID) ([]costing.Lot, error) {
	return v.st.lotsByIngredient(id)
}
func (v *txMemoryView) UpdateLotRemaining(_ context.Context, id costing.LotID, remaining costing.Quantity) error {
	return v.st.updateLotRemaining(id, remaining)
}
func (v *txMemoryView) DeleteLot(_ context.Context, id costing.LotID) error {
	return v.st.deleteLot(id)
}
func (v *txMemoryView) AppendConsumptions(_ context.Context, records []costing.ConsumptionRecord) error {
	return v.st.appendConsumptions(records)
}
func (v *txMemoryView) ConsumptionsByProduction(_ context.Context, ref costing.ProductionRef) ([]costing.ConsumptionRecord, error) {
	return v.st.consumptionsByProduction(ref)
}
func (v *txMemoryView) CountConsumptionsByLot(_ context.Context, id costing.LotID) (int, error) {
	return v.st.countConsumptionsByLot(id)
}
func (v *txMemoryView) PutStockedItem(_ context.Context, item costing.StockedItem) error {
	return v.st.putStockedItem(item)
}
func (v *txMemoryView) StockedItem(_ context.Context, id costing.IngredientID) (*costing.StockedItem, error) {
	return v.st.stockedItem(id)
}
func (v *txMemoryView) EdgesByParent(_ context.Context, parentID costing.AssemblyID) ([]costing.CompositionEdge, error) {
	return v.st.edgesByParent(parentID)
}
func (v *txMemoryView) InsertEdge(_ context.Context, edge costing.CompositionEdge) error {
	return v.st.insertEdge(edge)
}
func (v *txMemoryView) PutIngredient(_ context.Context, ing costing.Ingredient) error {
	return v.st.putIngredient(ing)
}
func (v *txMemoryView) Ingredient(_ context.Context, id costing.IngredientID) (*costing.Ingredient, error) {
	return v.st.ingredient(id)
}
func (v *txMemoryView) Ingredients(_ context.Context) ([]costing.Ingredient, error) {
	return v.st.allIngredients()
}
func (v *txMemoryView) PutRecipe(_ context.Context, rec costing.Recipe) error {
	return v.st.putRecipe(rec)
}
func (v *txMemoryView) Recipe(_ context.Context, id costing.AssemblyID) (*costing.Recipe, error) {
	return v.st.recipe(id)
}
func (v *txMemoryView) Recipes(_ context.Context) ([]costing.Recipe, error) {
	return v.st.allRecipes()
}
func (v *txMemoryView) SaveSnapshot(_ context.Context, snap costing.CostSnapshot) error {
	return v.st.saveSnapshot(snap)
}
func (v *txMemoryView) Snapshot(_ context.Context, id costing.SnapshotID) (*costing.CostSnapshot, error) {
	return v.st.snapshot(id)
}
func (v *txMemoryView) SnapshotsByEntity(_ context.Context, entityID costing.AssemblyID) ([]costing.CostSnapshot, error) {
	return v.st.snapshotsByEntity(entityID)
}
func (v *txMemoryView) Snapshots(_ context.Context) ([]costing.CostSnapshot, error) {
	return v.st.allSnapshots()
}
