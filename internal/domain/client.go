// Package domain defines the core types shared by the gatekeeper, the HTTP
// layer, and the persistence layer: per-client counter state, rate-limit
// policies, the framework-neutral request shape, and audit records.
package domain

import (
	"net/url"
	"time"
)

// ClientState is the counter entry kept for one client identifier.
//
// Fields:
//   - RequestCount: requests seen in the current window.
//   - WindowStart: start of the current counting window.
//   - Blocked: whether the client is currently being rejected.
//   - BlockedUntil: when non-zero and in the future, every request from the
//     client is rejected regardless of RequestCount.
type ClientState struct {
	RequestCount int
	WindowStart  time.Time
	Blocked      bool
	BlockedUntil time.Time
}

// BlockedAt reports whether the entry rejects requests at now.
func (s ClientState) BlockedAt(now time.Time) bool {
	return s.Blocked && !s.BlockedUntil.IsZero() && now.Before(s.BlockedUntil)
}

// ClientSnapshot is a read-only copy of a ClientState tagged with its key.
// It is what the admin API exposes.
type ClientSnapshot struct {
	Key          string     `json:"key"           example:"ip:203.0.113.7:1a2b3c4d"`
	RequestCount int        `json:"request_count" example:"3"`
	WindowStart  time.Time  `json:"window_start"`
	Blocked      bool       `json:"blocked"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// Snapshot copies s into a ClientSnapshot for key.
func (s ClientState) Snapshot(key string) ClientSnapshot {
	out := ClientSnapshot{
		Key:          key,
		RequestCount: s.RequestCount,
		WindowStart:  s.WindowStart,
		Blocked:      s.Blocked,
	}
	if !s.BlockedUntil.IsZero() {
		until := s.BlockedUntil
		out.BlockedUntil = &until
	}
	return out
}

// RateLimitPolicy is a (window, max requests) pair for one route category.
type RateLimitPolicy struct {
	Category    string        `json:"category"     example:"auth"`
	Window      time.Duration `json:"window"       swaggertype:"integer" example:"900000000000"`
	MaxRequests int           `json:"max_requests" example:"5"`
}

// Principal is the authenticated identity supplied by upstream auth.
// Only Role takes part in policy selection.
type Principal struct {
	UserID        string `json:"user_id"`
	Role          string `json:"role"`
	ApplicationID string `json:"application_id"`
}

// Request is the framework-neutral view of an inbound HTTP request. It carries
// exactly the fields the gatekeeper reads.
//
// Body holds at most the scan budget of the request body; ContentLength is
// the declared length (-1 when unknown).
type Request struct {
	Method        string
	URL           string
	Path          string
	Query         url.Values
	Headers       map[string][]string
	Body          []byte
	ContentLength int64
	RemoteAddr    string
	UserAgent     string
	Authorization string
	Principal     *Principal
}
