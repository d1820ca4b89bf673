// Package services – AuditService
//
// AuditService persists sampled audit entries off the request path. Enqueue
// never blocks: entries go into a bounded queue and are dropped when it is
// full. A single worker goroutine drains the queue in batches, throttled by a
// token bucket, and prunes rows past the retention window on a ticker. Only
// the worker writes to the database.
package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// AuditRepo defines the repository contract required by AuditService.
type AuditRepo interface {
	// CreateAuditEntries inserts a batch of entries.
	CreateAuditEntries(ctx context.Context, db *gorm.DB, entries []domain.AuditEntry) error

	// CountAuditEntries returns the total number of rows.
	CountAuditEntries(ctx context.Context, db *gorm.DB) (int64, error)

	// ListAuditEntriesPage returns a page of rows, newest first.
	ListAuditEntriesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.AuditEntry, error)

	// PruneAuditEntries deletes rows older than before.
	PruneAuditEntries(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)
}

// AuditOptions tunes the writer. Zero values use the defaults noted per field.
type AuditOptions struct {
	WritesPerSec float64       // rows per second; 50
	Buffer       int           // queue capacity; 1024
	BatchSize    int           // rows per insert, capped by the bucket burst; 50
	Retention    time.Duration // rows older than this are pruned; 720h
	PruneEvery   time.Duration // prune interval; 1h

	Now func() time.Time // test seam
}

// AuditService is a bounded, throttled, asynchronous audit writer.
type AuditService struct {
	db   *gorm.DB
	repo AuditRepo
	opts AuditOptions

	limiter *rate.Limiter
	batch   int

	// throttleCtx is cancelled by Close so a sleeping WaitN returns and the
	// remaining queue drains unthrottled.
	throttleCtx  context.Context
	liftThrottle context.CancelFunc

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	queue  chan domain.AuditEntry
	done   chan struct{}

	dropped atomic.Int64
	written atomic.Int64
}

// NewAuditService starts the worker goroutine. Call Close to stop it.
func NewAuditService(db *gorm.DB, r AuditRepo, opts AuditOptions) *AuditService {
	if opts.WritesPerSec <= 0 {
		opts.WritesPerSec = 50
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * 24 * time.Hour
	}
	if opts.PruneEvery <= 0 {
		opts.PruneEvery = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	burst := int(opts.WritesPerSec)
	if burst < 1 {
		burst = 1
	}
	batch := opts.BatchSize
	if batch > burst {
		batch = burst
	}

	throttleCtx, liftThrottle := context.WithCancel(context.Background())
	s := &AuditService{
		db:      db,
		repo:    r,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.WritesPerSec), burst),
		batch:   batch,
		queue:   make(chan domain.AuditEntry, opts.Buffer),
		done:    make(chan struct{}),

		throttleCtx:  throttleCtx,
		liftThrottle: liftThrottle,
	}
	go s.run()
	return s
}

// Enqueue offers e to the writer. It returns false when the queue is full or
// the service is closed. Safe on a nil receiver.
func (s *AuditService) Enqueue(e domain.AuditEntry) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return false
	}
	select {
	case s.queue <- e:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of entries rejected by Enqueue.
func (s *AuditService) Dropped() int64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// Written returns the number of entries persisted.
func (s *AuditService) Written() int64 {
	if s == nil {
		return 0
	}
	return s.written.Load()
}

// ListPage returns a page of persisted entries and the total count. It
// applies defaults for invalid page/pageSize. A nil service reports
// ErrAuditDisabled.
func (s *AuditService) ListPage(ctx context.Context, page, pageSize int) ([]domain.AuditEntry, int64, error) {
	if s == nil {
		return nil, 0, ErrAuditDisabled
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.repo.CountAuditEntries(ctx, s.db)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AuditEntry{}, 0, nil
	}
	items, err := s.repo.ListAuditEntriesPage(ctx, s.db, offset, pageSize)
	return items, total, err
}

// Prune deletes entries older than the retention window.
func (s *AuditService) Prune(ctx context.Context) (int64, error) {
	return s.repo.PruneAuditEntries(ctx, s.db, s.opts.Now().Add(-s.opts.Retention))
}

// Close stops accepting entries, lifts the throttle and waits for the queue
// to drain or ctx to expire. It is idempotent.
func (s *AuditService) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.liftThrottle()
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AuditService) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.PruneEvery)
	defer ticker.Stop()

	buf := make([]domain.AuditEntry, 0, s.batch)
	for {
		select {
		case e, ok := <-s.queue:
			if !ok {
				return
			}
			buf = append(buf[:0], e)
		fill:
			for len(buf) < s.batch {
				select {
				case e, ok := <-s.queue:
					if !ok {
						break fill
					}
					buf = append(buf, e)
				default:
					break fill
				}
			}
			s.write(buf)

		case <-ticker.C:
			if n, err := s.Prune(context.Background()); err != nil {
				log.Error().Err(err).Msg("audit prune failed")
			} else if n > 0 {
				log.Debug().Int64("pruned", n).Msg("audit prune")
			}
		}
	}
}

func (s *AuditService) write(batch []domain.AuditEntry) {
	ctx := context.Background()
	if err := s.limiter.WaitN(s.throttleCtx, len(batch)); err != nil && s.throttleCtx.Err() == nil {
		log.Error().Err(err).Int("entries", len(batch)).Msg("audit throttle")
		return
	}
	// Copy: the repo assigns IDs in place and buf is reused.
	rows := append([]domain.AuditEntry(nil), batch...)
	if err := s.repo.CreateAuditEntries(ctx, s.db, rows); err != nil {
		log.Error().Err(err).Int("entries", len(rows)).Msg("audit write failed")
		return
	}
	s.written.Add(int64(len(rows)))
}
