// Package export provides the asynchronous roster export worker and the HTTP
// adapter exposing roster, export, and headcount operations.
package export

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"rostercore/internal/blob"
	"rostercore/pkg/domain"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Format identifies an export output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Artifact captures a stored export artifact.
type Artifact struct {
	ID          string            `json:"id"`
	Format      Format            `json:"format"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Record tracks an export request and resulting artifacts.
type Record struct {
	ID            string     `json:"id"`
	Formats       []Format   `json:"formats"`
	Status        Status     `json:"status"`
	Error         string     `json:"error,omitempty"`
	Artifacts     []Artifact `json:"artifacts,omitempty"`
	RequestedBy   string     `json:"requested_by"`
	Reason        string     `json:"reason,omitempty"`
	RosterVersion uint64     `json:"roster_version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Input represents an enqueue request for the worker.
type Input struct {
	Formats     []Format
	RequestedBy string
	Reason      string
}

// Scheduler queues roster export requests and exposes status.
type Scheduler interface {
	EnqueueExport(ctx context.Context, input Input) (Record, error)
	GetExport(id string) (Record, bool)
}

// Source supplies the consistent roster snapshot an export renders.
type Source interface {
	Snapshot(ctx context.Context) (domain.RosterSnapshot, error)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor"`
	Status     Status            `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Worker executes roster exports asynchronously.
type Worker struct {
	source Source
	store  blob.Store
	audit  AuditLogger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id string
}

var _ Scheduler = (*Worker)(nil)

// NewWorker constructs an export worker.
func NewWorker(source Source, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input Input) (Record, error) {
	if w.source == nil {
		return Record{}, fmt.Errorf("export source not configured")
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if format != FormatJSON && format != FormatCSV {
			return Record{}, fmt.Errorf("unsupported export format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queuedSnapshot := record.copy()
	w.mu.Unlock()

	w.record(ctx, AuditEntry{
		ID:         newID(),
		Action:     "roster_export",
		Actor:      input.RequestedBy,
		Status:     StatusQueued,
		Reason:     input.Reason,
		OccurredAt: now,
	})

	select {
	case w.queue <- exportTask{id: id}:
	default:
		return Record{}, fmt.Errorf("export queue full")
	}

	return queuedSnapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	w.updateStatus(task.id, StatusRunning, "")

	snapshot, err := w.source.Snapshot(w.ctx)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("roster snapshot failed: %v", err))
		return
	}

	w.mu.Lock()
	if record, ok := w.jobs[task.id]; ok {
		record.RosterVersion = snapshot.Version
	}
	formats := w.formatsFor(task.id)
	w.mu.Unlock()

	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		artifact, payload, err := materialize(format, snapshot)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		if w.store != nil {
			info, err := w.store.Put(w.ctx, artifact.ID, bytes.NewReader(payload), blob.PutOptions{
				ContentType: artifact.ContentType,
				Metadata:    artifact.Metadata,
			})
			if err != nil {
				w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			artifact.SizeBytes = info.Size
			artifact.URL = info.URL
			if !info.LastModified.IsZero() {
				artifact.CreatedAt = info.LastModified
			}
		}
		artifacts = append(artifacts, artifact)
	}

	w.complete(task.id, artifacts)
}

// formatsFor must be called with w.mu held.
func (w *Worker) formatsFor(id string) []Format {
	if record, ok := w.jobs[id]; ok {
		return append([]Format(nil), record.Formats...)
	}
	return nil
}

func (w *Worker) updateStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	actor, reason := "", ""
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
		actor, reason = record.RequestedBy, record.Reason
	}
	w.mu.Unlock()
	entry := AuditEntry{ID: newID(), Action: "roster_export", Actor: actor, Status: status, Reason: reason, OccurredAt: now}
	if message != "" {
		entry.Metadata = map[string]string{"note": message}
	}
	w.record(w.ctx, entry)
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	actor := ""
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor = record.RequestedBy
	}
	w.mu.Unlock()
	w.record(w.ctx, AuditEntry{ID: newID(), Action: "roster_export", Actor: actor, Status: StatusSucceeded, OccurredAt: now})
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	actor := ""
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor = record.RequestedBy
	}
	w.mu.Unlock()
	w.record(w.ctx, AuditEntry{
		ID:         newID(),
		Action:     "roster_export",
		Actor:      actor,
		Status:     StatusFailed,
		Metadata:   map[string]string{"error": reason},
		OccurredAt: now,
	})
}

func (w *Worker) record(ctx context.Context, entry AuditEntry) {
	if w.audit != nil {
		w.audit.Record(ctx, entry)
	}
}

func materialize(format Format, snapshot domain.RosterSnapshot) (Artifact, []byte, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(snapshot)
		if err != nil {
			return Artifact{}, nil, fmt.Errorf("marshal json: %w", err)
		}
		return Artifact{
			ID:          newID(),
			Format:      FormatJSON,
			ContentType: "application/json",
			SizeBytes:   int64(len(payload)),
			Metadata:    exportMetadata(snapshot),
			CreatedAt:   time.Now().UTC(),
		}, payload, nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write([]string{"id", "first_name", "last_name", "created_at", "updated_at"}); err != nil {
			return Artifact{}, nil, err
		}
		for _, person := range snapshot.People {
			row := []string{
				person.ID,
				person.FirstName,
				person.LastName,
				person.CreatedAt.UTC().Format(time.RFC3339),
				person.UpdatedAt.UTC().Format(time.RFC3339),
			}
			if err := writer.Write(row); err != nil {
				return Artifact{}, nil, err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return Artifact{}, nil, err
		}
		payload := buf.Bytes()
		return Artifact{
			ID:          newID(),
			Format:      FormatCSV,
			ContentType: "text/csv",
			SizeBytes:   int64(len(payload)),
			Metadata:    exportMetadata(snapshot),
			CreatedAt:   time.Now().UTC(),
		}, payload, nil
	default:
		return Artifact{}, nil, fmt.Errorf("unsupported export format %s", format)
	}
}

func exportMetadata(snapshot domain.RosterSnapshot) map[string]string {
	return map[string]string{
		"rows":    strconv.Itoa(len(snapshot.People)),
		"version": strconv.FormatUint(snapshot.Version, 10),
	}
}

func (r Record) copy() Record {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
