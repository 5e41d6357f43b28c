// Package memory provides the in-memory transactional entity store that acts
// as the authoritative local copy of equipment state.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"gearcore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Item aliases domain.Item for in-memory persistence operations.
	Item = domain.Item
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	items map[string]Item
	kits  domain.Composition
}

// Snapshot captures a point-in-time clone of the store state. Kits maps a kit
// id to its ordered children.
type Snapshot struct {
	Items map[string]Item     `json:"items"`
	Kits  map[string][]string `json:"kits"`
}

func newMemoryState() memoryState {
	return memoryState{
		items: make(map[string]Item),
		kits:  domain.NewComposition(),
	}
}

func (s memoryState) clone() memoryState {
	cp := memoryState{
		items: make(map[string]Item, len(s.items)),
		kits:  s.kits.Clone(),
	}
	for k, v := range s.items {
		cp.items[k] = v.Clone()
	}
	return cp
}

// decorate fills the composition projections on a copy of the stored item.
func (s *memoryState) decorate(item Item) Item {
	out := item.Clone()
	out.ChildItemIDs = s.kits.Children(item.ID)
	out.ParentKitID = nil
	if parent, ok := s.kits.Parent(item.ID); ok {
		out.ParentKitID = &parent
	}
	return out
}

// strip removes the composition projections before an item is stored.
func strip(item Item) Item {
	out := item.Clone()
	out.ChildItemIDs = nil
	out.ParentKitID = nil
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Items: make(map[string]Item, len(state.items)),
		Kits:  state.kits.Map(),
	}
	for k, v := range state.items {
		s.Items[k] = state.decorate(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) (memoryState, error) {
	state := newMemoryState()
	kits := s.Kits
	if kits == nil {
		kits = make(map[string][]string)
		for id, item := range s.Items {
			if item.IsKit && len(item.ChildItemIDs) > 0 {
				kits[id] = append([]string(nil), item.ChildItemIDs...)
			}
		}
	}
	for k, v := range s.Items {
		v.ID = k
		state.items[k] = strip(v)
	}
	for kit, children := range kits {
		if _, ok := state.items[kit]; !ok {
			return memoryState{}, fmt.Errorf("kit %q not present in snapshot", kit)
		}
		for _, child := range children {
			if _, ok := state.items[child]; !ok {
				return memoryState{}, fmt.Errorf("kit %q child %q not present in snapshot", kit, child)
			}
		}
	}
	comp, err := domain.CompositionFromMap(kits)
	if err != nil {
		return memoryState{}, err
	}
	state.kits = comp
	return state, nil
}

// Store provides an in-memory transactional store for the equipment domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNowFunc overrides the clock used to stamp CreatedAt/UpdatedAt.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot. The
// current state is kept when the snapshot's kit relation is inconsistent.
func (s *Store) ImportState(snapshot Snapshot) error {
	state, err := memoryStateFromSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction applies fn to a cloned state. The clone replaces the live
// state only when fn succeeds and no blocking rule fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetItem returns a decorated copy of the item.
func (s *Store) GetItem(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.state.items[id]
	if !ok {
		return Item{}, false
	}
	return s.state.decorate(item), true
}

// ListItems returns all items ordered by id.
func (s *Store) ListItems() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listItems(&s.state)
}

func listItems(state *memoryState) []Item {
	out := make([]Item, 0, len(state.items))
	for _, item := range state.items {
		out = append(out, state.decorate(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListItems returns all items within the transaction snapshot.
func (v transactionView) ListItems() []Item {
	return listItems(v.state)
}

// FindItem looks up an item within the transaction snapshot.
func (v transactionView) FindItem(id string) (Item, bool) {
	item, ok := v.state.items[id]
	if !ok {
		return Item{}, false
	}
	return v.state.decorate(item), true
}
