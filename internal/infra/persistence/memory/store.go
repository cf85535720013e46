// Package memory provides the in-memory implementation of the roster
// persistence store. It is the reference backend: durable stores embed it and
// snapshot its state after every successful transaction.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"rostercore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// rosterState holds the insertion-ordered roster plus an ID index. The slice
// is the authoritative order; the index only accelerates lookups.
type rosterState struct {
	people []domain.Person
	index  map[string]int
}

func newRosterState() rosterState {
	return rosterState{index: make(map[string]int)}
}

func (s rosterState) clone() rosterState {
	cloned := rosterState{
		people: make([]domain.Person, len(s.people)),
		index:  make(map[string]int, len(s.index)),
	}
	copy(cloned.people, s.people)
	for k, v := range s.index {
		cloned.index[k] = v
	}
	return cloned
}

func (s *rosterState) reindex() {
	s.index = make(map[string]int, len(s.people))
	for i, p := range s.people {
		s.index[p.ID] = i
	}
}

// Store is a transactional, versioned in-memory roster store. Every committed
// transaction produces a fresh state value and bumps the version, so readers
// can detect change by version comparison alone.
type Store struct {
	mu       sync.RWMutex
	state    rosterState
	version  uint64
	engine   *domain.RulesEngine
	nowFn    func() time.Time
	watchMu  sync.Mutex
	watchers map[int]chan domain.CommitNotice
	watchSeq int
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:    newRosterState(),
		engine:   engine,
		nowFn:    func() time.Time { return time.Now().UTC() },
		watchers: make(map[int]chan domain.CommitNotice),
	}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// SetClock overrides the commit timestamp source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

// transaction is the mutable unit of work handed to RunInTransaction callbacks.
type transaction struct {
	state   rosterState
	changes []domain.Change
	version uint64
	now     time.Time
}

var _ domain.Transaction = (*transaction)(nil)

// view exposes a read-only snapshot to rules and View callers.
type view struct {
	state   *rosterState
	version uint64
}

var (
	_ domain.TransactionView = view{}
	_ domain.RuleView        = view{}
)

// ListPeople returns the roster in insertion order.
func (v view) ListPeople() []domain.Person {
	out := make([]domain.Person, len(v.state.people))
	copy(out, v.state.people)
	return out
}

// FindPerson retrieves a person by ID from the snapshot.
func (v view) FindPerson(id string) (domain.Person, bool) {
	i, ok := v.state.index[id]
	if !ok {
		return domain.Person{}, false
	}
	return v.state.people[i], true
}

// Version reports the commit version the snapshot was taken at.
func (v view) Version() uint64 { return v.version }

// RunInTransaction executes fn within a transactional copy of the store
// state. Registered rules are evaluated against the proposed state; blocking
// violations abort the commit and the store is left untouched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state:   s.state.clone(),
		version: s.version,
		now:     s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state, version: tx.version}, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if len(tx.changes) == 0 {
		return result, nil
	}

	s.state = tx.state
	s.version++
	s.notify(domain.CommitNotice{Version: s.version, Changes: append([]domain.Change(nil), tx.changes...)})
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	version := s.version
	s.mu.RUnlock()
	return fn(view{state: &snapshot, version: version})
}

// Watch registers a commit subscriber. The returned cancel function
// unregisters it and closes the channel. Notifications a slow subscriber
// cannot keep up with are dropped rather than blocking commits.
func (s *Store) Watch(buffer int) (<-chan domain.CommitNotice, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.CommitNotice, buffer)
	s.watchMu.Lock()
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = ch
	s.watchMu.Unlock()
	cancel := func() {
		s.watchMu.Lock()
		if c, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(c)
		}
		s.watchMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(notice domain.CommitNotice) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- notice:
		default:
		}
	}
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// AddPerson appends a new roster record within the transaction.
func (tx *transaction) AddPerson(p domain.Person) (domain.Person, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if _, exists := tx.state.index[p.ID]; exists {
		return domain.Person{}, fmt.Errorf("person %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.people = append(tx.state.people, p)
	tx.state.index[p.ID] = len(tx.state.people) - 1
	tx.recordChange(domain.Change{Entity: domain.EntityPerson, Action: domain.ActionCreate, After: p})
	return p, nil
}

// ReplacePerson overwrites an existing record in place, keeping its position
// and creation timestamp. An absent ID leaves the roster unchanged.
func (tx *transaction) ReplacePerson(p domain.Person) (domain.Person, bool) {
	i, ok := tx.state.index[p.ID]
	if !ok {
		return domain.Person{}, false
	}
	before := tx.state.people[i]
	p.CreatedAt = before.CreatedAt
	p.UpdatedAt = tx.now
	tx.state.people[i] = p
	tx.recordChange(domain.Change{Entity: domain.EntityPerson, Action: domain.ActionUpdate, Before: before, After: p})
	return p, true
}

// RemovePerson deletes the record with the given ID. Removing an absent ID is
// a no-op, so the operation is idempotent.
func (tx *transaction) RemovePerson(id string) bool {
	i, ok := tx.state.index[id]
	if !ok {
		return false
	}
	before := tx.state.people[i]
	tx.state.people = append(tx.state.people[:i], tx.state.people[i+1:]...)
	tx.state.reindex()
	tx.recordChange(domain.Change{Entity: domain.EntityPerson, Action: domain.ActionDelete, Before: before})
	return true
}

// FindPerson retrieves a person by ID from the transaction state.
func (tx *transaction) FindPerson(id string) (domain.Person, bool) {
	i, ok := tx.state.index[id]
	if !ok {
		return domain.Person{}, false
	}
	return tx.state.people[i], true
}

// ListPeople returns the transaction's roster in insertion order.
func (tx *transaction) ListPeople() []domain.Person {
	out := make([]domain.Person, len(tx.state.people))
	copy(out, tx.state.people)
	return out
}

// Read helpers ---------------------------------------------------------------

// GetPerson retrieves a person by ID from committed state.
func (s *Store) GetPerson(id string) (domain.Person, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.state.index[id]
	if !ok {
		return domain.Person{}, false
	}
	return s.state.people[i], true
}

// ListPeople returns all people from committed state in insertion order.
func (s *Store) ListPeople() []domain.Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Person, len(s.state.people))
	copy(out, s.state.people)
	return out
}

// Version returns the current commit version. It starts at zero and
// increases by one per committed transaction.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ExportState captures a snapshot of the committed roster for persistence.
func (s *Store) ExportState() domain.RosterSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	people := make([]domain.Person, len(s.state.people))
	copy(people, s.state.people)
	return domain.RosterSnapshot{People: people, Version: s.version}
}

// ImportState replaces the committed roster with the supplied snapshot.
// Used by durable backends during hydration; watchers are not notified.
func (s *Store) ImportState(snapshot domain.RosterSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = rosterState{people: append([]domain.Person(nil), snapshot.People...)}
	s.state.reindex()
	s.version = snapshot.Version
}
