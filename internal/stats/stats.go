// Package stats aggregates gatekeeper decisions into external counters.
//
// Recording is best effort: a failing backend never affects the request
// being screened. Async decouples the request path from backend latency.
package stats

import (
	"context"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// Store persists decision counters.
type Store interface {
	Record(ctx context.Context, ev domain.DecisionEvent) error
}
