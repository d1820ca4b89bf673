package stats

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// RedisStore keeps decision counters in Redis hashes:
//
//	<prefix>:total                 outcome -> count (no expiry)
//	<prefix>:minute:<yyyymmddhhmm> outcome -> count (expires after ttl)
//	<prefix>:route                 "<METHOD> <route>:<outcome>" -> count
//
// Route values should come from registered routes to keep the hash small.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix. Leading and trailing colons are trimmed.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithTTL sets the lifetime of per-minute buckets. Zero disables expiry.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// NewRedisStore returns a store writing through rdb.
func NewRedisStore(rdb redis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "gatekeeper:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record increments the counters for ev in a single pipeline.
func (s *RedisStore) Record(ctx context.Context, ev domain.DecisionEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	k := s.keys(ev)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, k.total, k.field, 1)
	pipe.HIncrBy(ctx, k.minute, k.field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, k.minute, s.ttl)
	}
	if k.routeField != "" {
		pipe.HIncrBy(ctx, k.route, k.routeField, 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

type redisKeys struct {
	total, minute, route string
	field, routeField    string
}

func (s *RedisStore) keys(ev domain.DecisionEvent) redisKeys {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)
	if field == "" {
		field = "unknown"
	}
	k := redisKeys{
		total:  s.prefix + ":total",
		minute: s.prefix + ":minute:" + at.UTC().Format("200601021504"),
		route:  s.prefix + ":route",
		field:  field,
	}
	if r := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)); r != "" {
		k.routeField = r + ":" + field
	}
	return k
}
