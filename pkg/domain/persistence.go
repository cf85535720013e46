package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	// AddPerson appends a record to the end of the roster. A missing ID is
	// assigned by the store; supplying an ID that already exists is an error.
	AddPerson(Person) (Person, error)
	// ReplacePerson overwrites the record with a matching ID in place,
	// preserving its position. When no record matches, the roster is left
	// untouched and found is false; this is not an error.
	ReplacePerson(Person) (person Person, found bool)
	// RemovePerson filters the record with the given ID out of the roster.
	// Removing an absent ID is a no-op; removed reports whether anything
	// was deleted.
	RemovePerson(id string) (removed bool)
	FindPerson(id string) (Person, bool)
	ListPeople() []Person
}

// TransactionView provides read-only access to snapshot data for rules and
// callers that only need to observe state.
type TransactionView interface {
	ListPeople() []Person
	FindPerson(id string) (Person, bool)
	Version() uint64
}

// RosterSnapshot captures a point-in-time copy of the roster in insertion
// order along with the commit version that produced it.
type RosterSnapshot struct {
	People  []Person `json:"people"`
	Version uint64   `json:"version"`
}

// CommitNotice is delivered to watchers after every committed transaction.
type CommitNotice struct {
	Version uint64
	Changes []Change
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetPerson(id string) (Person, bool)
	ListPeople() []Person
	Version() uint64
}
