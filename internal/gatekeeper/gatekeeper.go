package gatekeeper

import (
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// Rejection messages returned to clients.
const (
	MsgTooManyRequests = "Too many requests. Please try again later."
	MsgSuspicious      = "Suspicious activity detected"
	MsgTooLarge        = "Request payload too large"
)

// Options configures a Gatekeeper. Zero values fall back to the defaults
// noted on each field.
type Options struct {
	Policies           PolicyTable   // DefaultPolicyTable() when zero
	Scanner            *Scanner      // NewScanner() when nil
	SuspiciousBlock    time.Duration // 30m
	MaxBodyBytes       int64         // 50 MiB
	AuditSampleRate    float64       // probability in [0,1]; 0 disables
	JanitorProbability float64       // probability in [0,1]; 0 disables
	ClientRetention    time.Duration // 24h

	// Now and Rand are seams for tests.
	Now  func() time.Time
	Rand func() float64
}

// Verdict is the outcome of screening one request.
//
// For rejections Status, Message and Error carry the HTTP response. Audit is
// non-nil when the request was sampled for the audit log. JanitorRan and
// Evicted describe the opportunistic sweep, if one ran.
type Verdict struct {
	ClientID   string
	Outcome    domain.Outcome
	Policy     domain.RateLimitPolicy
	Status     int
	Message    string
	Error      string
	RetryAfter time.Duration
	Patterns   []Pattern
	Audit      *domain.AuditEntry
	JanitorRan bool
	Evicted    int
}

// Allowed reports whether the request may proceed to the next handler.
func (v Verdict) Allowed() bool { return v.Outcome == domain.OutcomeAllowed }

// Gatekeeper screens requests against a shared Store.
type Gatekeeper struct {
	store *Store
	opts  Options
}

// New returns a Gatekeeper bound to store.
func New(store *Store, opts Options) *Gatekeeper {
	if opts.Policies.Default.Window == 0 {
		opts.Policies = DefaultPolicyTable()
	}
	if opts.Scanner == nil {
		opts.Scanner = NewScanner()
	}
	if opts.SuspiciousBlock <= 0 {
		opts.SuspiciousBlock = 30 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 50 << 20
	}
	if opts.ClientRetention <= 0 {
		opts.ClientRetention = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Gatekeeper{store: store, opts: opts}
}

// Store returns the client state store.
func (g *Gatekeeper) Store() *Store { return g.store }

// Policies returns the policy table.
func (g *Gatekeeper) Policies() PolicyTable { return g.opts.Policies }

// Sweep runs the janitor now and returns the number of evicted entries.
func (g *Gatekeeper) Sweep() int {
	return g.store.Sweep(g.opts.Now(), g.opts.ClientRetention)
}

// Screen runs identification, rate limiting, pattern scanning, the size
// check, audit sampling and the janitor trigger, in that order. The first
// failing check decides the verdict and later steps do not run.
//
// A non-nil error is a processing failure, not a policy decision; callers
// forward it to their error pipeline.
func (g *Gatekeeper) Screen(r domain.Request) (Verdict, error) {
	now := g.opts.Now()
	key := ClientID(r)

	role := ""
	if r.Principal != nil {
		role = r.Principal.Role
	}
	policy := g.opts.Policies.Resolve(r.Path, role)
	v := Verdict{ClientID: key, Policy: policy}

	if ok, until := g.store.CheckUntil(key, policy, now); !ok {
		v.Outcome = domain.OutcomeRateLimited
		v.Status = http.StatusTooManyRequests
		v.Message = MsgTooManyRequests
		v.RetryAfter = until.Sub(now)
		return finish(v), nil
	}

	hits, err := g.opts.Scanner.Scan(r)
	if err != nil {
		v.Outcome = domain.OutcomeError
		return v, err
	}
	if len(hits) > 0 {
		g.store.Block(key, now, g.opts.SuspiciousBlock)
		v.Outcome = domain.OutcomeSuspicious
		v.Status = http.StatusForbidden
		v.Message = MsgSuspicious
		v.Patterns = hits
		return finish(v), nil
	}

	if r.ContentLength > g.opts.MaxBodyBytes {
		v.Outcome = domain.OutcomeTooLarge
		v.Status = http.StatusRequestEntityTooLarge
		v.Message = MsgTooLarge
		return finish(v), nil
	}

	v.Outcome = domain.OutcomeAllowed

	if g.roll(g.opts.AuditSampleRate) {
		v.Audit = &domain.AuditEntry{
			Timestamp:     now,
			ClientID:      key,
			Method:        r.Method,
			Path:          r.Path,
			IP:            sourceAddress(r.RemoteAddr),
			UserAgent:     r.UserAgent,
			Authenticated: r.Principal != nil,
		}
	}

	if g.roll(g.opts.JanitorProbability) {
		v.JanitorRan = true
		v.Evicted = g.store.Sweep(now, g.opts.ClientRetention)
	}

	return v, nil
}

// roll reports true with probability p.
func (g *Gatekeeper) roll(p float64) bool {
	if p <= 0 {
		return false
	}
	return g.opts.Rand() < p
}

// finish fills the error label. 413 uses the RFC 9110 name rather than
// net/http's legacy "Request Entity Too Large".
func finish(v Verdict) Verdict {
	switch v.Status {
	case http.StatusRequestEntityTooLarge:
		v.Error = "Payload Too Large"
	default:
		v.Error = http.StatusText(v.Status)
	}
	return v
}
