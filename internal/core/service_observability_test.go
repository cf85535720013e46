package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLogger) log(level, msg string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf("%s %s %v", level, msg, args))
}

func (c *captureLogger) Debug(msg string, args ...any) { c.log("DEBUG", msg, args...) }
func (c *captureLogger) Info(msg string, args ...any)  { c.log("INFO", msg, args...) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.log("WARN", msg, args...) }
func (c *captureLogger) Error(msg string, args ...any) { c.log("ERROR", msg, args...) }

func (c *captureLogger) contains(fragment string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range c.lines {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op {
			if success && record.err == nil {
				return true
			}
			if !success && record.err != nil {
				return true
			}
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func TestServiceEmitsObservabilitySignals(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	clock := &fixedClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}

	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithLogger(logger),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithClock(clock),
	)

	created, _, err := svc.CreatePerson(ctx, Person{FirstName: "Ada", LastName: "Lovelace"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !audit.has("create_person", AuditStatusSuccess, func(entry AuditEntry) bool { return entry.EntityID == created.ID }) {
		t.Fatalf("expected success audit entry for create_person, got %+v", audit.entries)
	}
	if !metrics.has("create_person", true) {
		t.Fatalf("expected success metric for create_person, got %+v", metrics.calls)
	}
	if !tracer.has("create_person", true) {
		t.Fatalf("expected completed span for create_person, got %+v", tracer.ended)
	}
	if !logger.contains("operation completed") {
		t.Fatal("expected completion log line")
	}

	if _, _, err := svc.CreatePerson(ctx, Person{FirstName: "", LastName: "Hopper"}); err == nil {
		t.Fatal("expected validation failure")
	}
	if !audit.has("create_person", AuditStatusError, func(entry AuditEntry) bool { return entry.Error != "" }) {
		t.Fatalf("expected error audit entry, got %+v", audit.entries)
	}
	if !metrics.has("create_person", false) {
		t.Fatalf("expected failure metric, got %+v", metrics.calls)
	}
	if !tracer.has("create_person", false) {
		t.Fatalf("expected errored span, got %+v", tracer.ended)
	}
	if !logger.contains("operation failed") {
		t.Fatal("expected failure log line")
	}

	for _, call := range metrics.calls {
		if call.duration <= 0 {
			t.Fatalf("expected positive duration, got %v", call.duration)
		}
	}
}

func TestServiceOptionsIgnoreNil(t *testing.T) {
	svc := NewInMemoryService(NewRulesEngine(),
		WithLogger(nil),
		WithAuditRecorder(nil),
		WithMetricsRecorder(nil),
		WithTracer(nil),
		WithClock(nil),
	)
	// No-op defaults must survive nil options.
	if _, _, err := svc.CreatePerson(context.Background(), Person{FirstName: "Ada", LastName: "Lovelace"}); err != nil {
		t.Fatalf("create with defaults: %v", err)
	}
}
