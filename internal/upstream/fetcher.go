package upstream

import (
	"context"
	"sync"
	"time"
)

const defaultFetchTimeout = 15 * time.Second

// Fetcher owns a Tracker and a Client and coordinates asynchronous
// refreshes. Refreshes are single-flight: a request issued while a fetch is
// loading coalesces into the in-flight attempt instead of starting a second
// one. The fetcher does not retry; a failed attempt stays failed until the
// next refresh.
type Fetcher struct {
	client  *Client
	tracker *Tracker
	timeout time.Duration

	mu       sync.Mutex
	inflight bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFetcher constructs a fetcher around the given client.
func NewFetcher(client *Client) *Fetcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Fetcher{
		client:  client,
		tracker: NewTracker(),
		timeout: defaultFetchTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Refresh triggers an asynchronous fetch and returns the state as of the
// trigger. started is false when an attempt was already loading and the call
// coalesced into it.
func (f *Fetcher) Refresh() (state State, started bool) {
	f.mu.Lock()
	if f.inflight {
		f.mu.Unlock()
		return f.tracker.State(), false
	}
	f.inflight = true
	gen := f.tracker.Begin()
	f.mu.Unlock()

	f.wg.Add(1)
	go f.fetch(gen)
	return f.tracker.State(), true
}

func (f *Fetcher) fetch(gen uint64) {
	defer f.wg.Done()
	ctx, cancel := context.WithTimeout(f.ctx, f.timeout)
	defer cancel()

	value, err := f.client.FetchValue(ctx)

	f.mu.Lock()
	f.inflight = false
	f.mu.Unlock()

	if err != nil {
		f.tracker.Fail(gen)
		return
	}
	f.tracker.Succeed(gen, value)
}

// State returns the current status/value pair.
func (f *Fetcher) State() State {
	return f.tracker.State()
}

// Stop cancels any in-flight fetch and waits for the worker goroutine,
// honoring the supplied context deadline.
func (f *Fetcher) Stop(ctx context.Context) error {
	f.cancel()
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
