// Package upstream tracks the lifecycle of a single outstanding fetch of the
// organization headcount from an upstream HR service.
package upstream

import "sync"

// Status describes the lifecycle stage of the headcount fetch.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// State is the read-only pair exposed to consumers. Value holds the last
// successfully fetched headcount and survives later failed attempts.
type State struct {
	Status Status `json:"status"`
	Value  int64  `json:"value"`
}

// Tracker is a single-slot state machine over one outstanding asynchronous
// retrieval. Begin moves to loading from any state and hands back a
// generation token; completions carry the token so an attempt that has been
// superseded by a newer Begin can never overwrite its result.
type Tracker struct {
	mu         sync.Mutex
	status     Status
	value      int64
	generation uint64
}

// NewTracker returns a tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{status: StatusIdle}
}

// Begin transitions to loading and returns the generation token the eventual
// completion must present.
func (t *Tracker) Begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	t.status = StatusLoading
	return t.generation
}

// Succeed completes the attempt identified by gen with a fetched value.
// It reports false when the tracker is not loading or the attempt was
// superseded, in which case nothing changes.
func (t *Tracker) Succeed(gen uint64, value int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusLoading || gen != t.generation {
		return false
	}
	t.status = StatusSucceeded
	t.value = value
	return true
}

// Fail marks the attempt identified by gen as failed. The previously fetched
// value is retained. Stale or out-of-state completions are ignored.
func (t *Tracker) Fail(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusLoading || gen != t.generation {
		return false
	}
	t.status = StatusFailed
	return true
}

// State returns the current status/value pair.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{Status: t.status, Value: t.value}
}
