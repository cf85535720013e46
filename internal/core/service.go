package core

import (
	"context"
	"fmt"

	"rostercore/internal/infra/persistence/memory"
	"rostercore/pkg/domain"
)

// Service exposes higher-level transactional CRUD operations for the roster.
// Every operation runs through the same wrapper, which emits log lines, an
// audit entry, a metrics observation, and a trace span.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithClock overrides the service time source.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger overrides the no-op default logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder wires an audit sink.
func WithAuditRecorder(audit AuditRecorder) ServiceOption {
	return func(s *Service) {
		if audit != nil {
			s.audit = audit
		}
	}
}

// WithMetricsRecorder wires a metrics sink.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithTracer wires a tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func defaultService(store PersistentStore) *Service {
	return &Service{
		store:   store,
		clock:   systemClock{},
		logger:  noopLogger{},
		audit:   noopAudit{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	svc := defaultService(store)
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run executes fn within a store transaction and reports the outcome to the
// configured observability sinks. fn returns the ID of the entity it touched.
func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) (string, error)) (Result, error) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	s.logger.Debug("operation started", "op", op)

	var entityID string
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		id, err := fn(tx)
		entityID = id
		return err
	})

	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation:  op,
		Status:     AuditStatusSuccess,
		Entity:     EntityPerson,
		EntityID:   entityID,
		OccurredAt: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("operation failed", "op", op, "error", err)
	} else {
		s.logger.Info("operation completed", "op", op, "entity_id", entityID, "duration", duration)
	}
	s.audit.Record(ctx, entry)

	return res, err
}

// CreatePerson appends a new roster record.
func (s *Service) CreatePerson(ctx context.Context, person Person) (Person, Result, error) {
	var created Person
	res, err := s.run(ctx, "create_person", func(tx Transaction) (string, error) {
		var err error
		created, err = tx.AddPerson(person)
		return created.ID, err
	})
	return created, res, err
}

// ReplacePerson overwrites an existing record wholesale, preserving its
// roster position. The store treats an absent ID as a silent no-op; the
// service surfaces it as ErrNotFound so adapters can report it.
func (s *Service) ReplacePerson(ctx context.Context, person Person) (Person, Result, error) {
	var updated Person
	res, err := s.run(ctx, "replace_person", func(tx Transaction) (string, error) {
		p, found := tx.ReplacePerson(person)
		if !found {
			return person.ID, ErrNotFound{Entity: EntityPerson, ID: person.ID}
		}
		updated = p
		return p.ID, nil
	})
	return updated, res, err
}

// DeletePerson removes a roster record. Deleting an absent ID is not an
// error; removed reports whether a record existed.
func (s *Service) DeletePerson(ctx context.Context, id string) (bool, Result, error) {
	var removed bool
	res, err := s.run(ctx, "delete_person", func(tx Transaction) (string, error) {
		removed = tx.RemovePerson(id)
		return id, nil
	})
	return removed, res, err
}

// GetPerson retrieves a person by ID from committed state.
func (s *Service) GetPerson(_ context.Context, id string) (Person, bool) {
	return s.store.GetPerson(id)
}

// ListPeople returns the committed roster in insertion order.
func (s *Service) ListPeople(_ context.Context) []Person {
	return s.store.ListPeople()
}

// Version returns the committed roster version.
func (s *Service) Version(_ context.Context) uint64 {
	return s.store.Version()
}

// Snapshot returns the roster and version as one consistent view.
func (s *Service) Snapshot(ctx context.Context) (RosterSnapshot, error) {
	var snapshot RosterSnapshot
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		snapshot = RosterSnapshot{People: view.ListPeople(), Version: view.Version()}
		return nil
	})
	return snapshot, err
}

// ErrNotFound is returned when an operation references an absent entity.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
