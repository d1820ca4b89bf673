// Package gatekeeper implements per-client request screening: a fixed-window
// counter store with block/unblock transitions, best-effort client
// identification, a static policy table, a suspicious-pattern scanner, and
// the Screen function that runs them in order for every request.
//
// The package is independent of any HTTP framework. The Gin adapter lives in
// internal/http/middleware.
//
// This file contains Store, the in-memory client state map.
//
// Notes:
//   - State is process-local and lost on restart. Each server instance keeps
//     independent counters.
//   - All state transitions for a key happen under one mutex, so two
//     concurrent requests from the same client can never both observe the
//     pre-increment count.
package gatekeeper

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// Store holds one ClientState per client identifier.
//
// Entries are created lazily by Check or Block and removed by Sweep (the
// janitor) or Remove. The zero value is not usable; construct with NewStore.
//
// This type is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	clients map[string]*domain.ClientState
}

// NewStore returns an empty Store. One Store is created at startup and shared
// by every request.
func NewStore() *Store {
	return &Store{clients: make(map[string]*domain.ClientState)}
}

// Check runs the counter state machine for key under policy p and reports
// whether the request is allowed.
//
// Transitions:
//   - no entry: create {RequestCount: 0, WindowStart: now}.
//   - blocked and now < BlockedUntil: reject without touching the count.
//   - window expired (now - WindowStart > p.Window): reset count and window,
//     clear the block.
//   - increment the count; when it exceeds p.MaxRequests, block until
//     now + p.Window and reject.
//
// The request that pushes the count over the limit is counted and rejected.
func (s *Store) Check(key string, p domain.RateLimitPolicy, now time.Time) bool {
	ok, _ := s.CheckUntil(key, p, now)
	return ok
}

// CheckUntil is Check that also returns, for a rejected request, the
// BlockedUntil read under the same lock. It is zero when the request is
// allowed.
func (s *Store) CheckUntil(key string, p domain.RateLimitPolicy, now time.Time) (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.entry(key, now)
	if st.BlockedAt(now) {
		return false, st.BlockedUntil
	}

	if now.Sub(st.WindowStart) > p.Window {
		st.RequestCount = 0
		st.WindowStart = now
		st.Blocked = false
		st.BlockedUntil = time.Time{}
	}

	st.RequestCount++
	if st.RequestCount > p.MaxRequests {
		st.Blocked = true
		st.BlockedUntil = now.Add(p.Window)
		return false, st.BlockedUntil
	}
	return true, time.Time{}
}

// Block marks key as blocked for d starting at now, creating the entry when
// absent. The existing count and window are kept.
func (s *Store) Block(key string, now time.Time, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.entry(key, now)
	st.Blocked = true
	st.BlockedUntil = now.Add(d)
}

// entry returns the state for key, creating it at now. Caller holds s.mu.
func (s *Store) entry(key string, now time.Time) *domain.ClientState {
	st, ok := s.clients[key]
	if !ok {
		st = &domain.ClientState{WindowStart: now}
		s.clients[key] = st
	}
	return st
}

// Get returns a copy of the state for key.
func (s *Store) Get(key string) (domain.ClientState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.clients[key]
	if !ok {
		return domain.ClientState{}, false
	}
	return *st, true
}

// Remove deletes the entry for key, clearing its counters and any block.
// It reports whether an entry existed.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[key]; !ok {
		return false
	}
	delete(s.clients, key)
	return true
}

// Len returns the number of tracked clients.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Snapshots returns copies of every entry sorted by key.
func (s *Store) Snapshots() []domain.ClientSnapshot {
	s.mu.Lock()
	out := make([]domain.ClientSnapshot, 0, len(s.clients))
	for k, st := range s.clients {
		out = append(out, st.Snapshot(k))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Sweep deletes every entry whose window started more than retention before
// now, regardless of block status, and returns the number removed.
// Sweeping twice at the same instant removes nothing the second time.
func (s *Store) Sweep(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, st := range s.clients {
		if now.Sub(st.WindowStart) > retention {
			delete(s.clients, k)
			n++
		}
	}
	return n
}

// StartJanitor sweeps on a fixed interval until ctx is done. It complements
// the probabilistic trigger in Screen and is a no-op when interval <= 0.
//
// onSweep, when non-nil, receives the number of evicted entries after each
// tick.
func (s *Store) StartJanitor(ctx context.Context, interval, retention time.Duration, now func() time.Time, onSweep func(int)) {
	if interval <= 0 {
		return
	}
	if now == nil {
		now = time.Now
	}

	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n := s.Sweep(now(), retention)
				if onSweep != nil {
					onSweep(n)
				}
			}
		}
	}()
}
