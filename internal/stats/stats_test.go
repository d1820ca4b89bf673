package stats

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

func TestRedisStore_Keys(t *testing.T) {
	s := NewRedisStore(nil, WithPrefix(":gk:stats:"), WithTTL(time.Hour))
	at := time.Date(2026, 7, 8, 9, 10, 59, 0, time.FixedZone("X", 2*3600))

	k := s.keys(domain.DecisionEvent{Outcome: domain.OutcomeRateLimited, Method: "GET", Path: "/api/v1/plans", At: at})
	if k.total != "gk:stats:total" || k.route != "gk:stats:route" {
		t.Fatalf("unexpected hash keys: %+v", k)
	}
	if k.minute != "gk:stats:minute:202607080710" {
		t.Fatalf("minute bucket must use UTC, got %q", k.minute)
	}
	if k.field != "rate_limited" || k.routeField != "GET /api/v1/plans:rate_limited" {
		t.Fatalf("unexpected fields: %+v", k)
	}

	k = s.keys(domain.DecisionEvent{At: at})
	if k.field != "unknown" || k.routeField != "" {
		t.Fatalf("empty event fields: %+v", k)
	}
}

func TestRedisStore_Defaults_And_NilSafe(t *testing.T) {
	s := NewRedisStore(nil, WithPrefix("::"))
	if s.prefix != "gatekeeper:stats" || s.ttl != 24*time.Hour {
		t.Fatalf("defaults: prefix=%q ttl=%v", s.prefix, s.ttl)
	}
	if err := s.Record(context.Background(), domain.DecisionEvent{}); err != nil {
		t.Fatalf("nil client Record: %v", err)
	}
	var nilStore *RedisStore
	if err := nilStore.Record(context.Background(), domain.DecisionEvent{}); err != nil {
		t.Fatalf("nil store Record: %v", err)
	}
}

// TestRedisStore_Integration runs against a live server when TEST_REDIS_ADDR
// is set, e.g. TEST_REDIS_ADDR=localhost:6379.
func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	prefix := "gk-test:" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
	})

	s := NewRedisStore(rdb, WithPrefix(prefix), WithTTL(time.Minute))
	at := time.Now()
	for _, o := range []domain.Outcome{domain.OutcomeAllowed, domain.OutcomeAllowed, domain.OutcomeSuspicious} {
		if err := s.Record(ctx, domain.DecisionEvent{Outcome: o, Method: "GET", Path: "/x", At: at}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := rdb.HGetAll(ctx, prefix+":total").Result()
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if got["allowed"] != "2" || got["suspicious"] != "1" {
		t.Fatalf("totals = %v", got)
	}
	k := s.keys(domain.DecisionEvent{At: at})
	if ttl := rdb.TTL(ctx, k.minute).Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("minute bucket ttl = %v", ttl)
	}
}

// ----- Async -----

type fakeStore struct {
	mu      sync.Mutex
	events  []domain.DecisionEvent
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeStore) Record(_ context.Context, ev domain.DecisionEvent) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func closeAsync(t *testing.T, a *Async) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestAsync_ForwardsAndDrains(t *testing.T) {
	f := &fakeStore{}
	a := NewAsync(f, 16, 0)
	for i := 0; i < 10; i++ {
		a.Record(domain.DecisionEvent{Outcome: domain.OutcomeAllowed})
	}
	closeAsync(t, a)
	closeAsync(t, a) // idempotent
	if f.count() != 10 || a.Dropped() != 0 {
		t.Fatalf("forwarded=%d dropped=%d", f.count(), a.Dropped())
	}

	a.Record(domain.DecisionEvent{})
	if a.Dropped() != 1 {
		t.Fatalf("record after close should drop")
	}
}

func TestAsync_DropsWhenFull(t *testing.T) {
	f := &fakeStore{entered: make(chan struct{}, 4), release: make(chan struct{})}
	a := NewAsync(f, 1, 0)

	a.Record(domain.DecisionEvent{ClientID: "1"})
	<-f.entered // worker blocked in store
	a.Record(domain.DecisionEvent{ClientID: "2"})
	a.Record(domain.DecisionEvent{ClientID: "3"})

	close(f.release)
	closeAsync(t, a)
	if f.count() != 2 || a.Dropped() != 1 {
		t.Fatalf("forwarded=%d dropped=%d; want 2/1", f.count(), a.Dropped())
	}
}

func TestAsync_CountsFailures_NilSafe(t *testing.T) {
	f := &fakeStore{err: errors.New("connection refused")}
	a := NewAsync(f, 4, time.Millisecond)
	a.Record(domain.DecisionEvent{})
	a.Record(domain.DecisionEvent{})
	closeAsync(t, a)
	if a.Failed() != 2 {
		t.Fatalf("failed = %d; want 2", a.Failed())
	}

	var nilAsync *Async
	nilAsync.Record(domain.DecisionEvent{})
	if err := nilAsync.Close(context.Background()); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
