package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// Async forwards events to a Store from a background goroutine. Record never
// blocks; events are dropped when the buffer is full.
type Async struct {
	store   Store
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan domain.DecisionEvent
	done   chan struct{}

	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsync starts a worker forwarding to store. buffer <= 0 defaults to 1024
// and timeout <= 0 (per backend call) to one second.
func NewAsync(store Store, buffer int, timeout time.Duration) *Async {
	if buffer <= 0 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	a := &Async{
		store:   store,
		timeout: timeout,
		queue:   make(chan domain.DecisionEvent, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Record queues ev. Safe on a nil receiver.
func (a *Async) Record(ev domain.DecisionEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded by Record.
func (a *Async) Dropped() int64 {
	if a == nil {
		return 0
	}
	return a.dropped.Load()
}

// Failed returns the number of events the store rejected.
func (a *Async) Failed() int64 {
	if a == nil {
		return 0
	}
	return a.failed.Load()
}

// Close stops accepting events and waits for queued ones to be forwarded or
// for ctx to expire.
func (a *Async) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.store.Record(ctx, ev)
		cancel()
		if err != nil {
			// Warn on the first failure and every 1000th after.
			if a.failed.Add(1)%1000 == 1 {
				log.Warn().Err(err).Int64("failed", a.failed.Load()).Msg("stats backend error")
			}
		}
	}
}
