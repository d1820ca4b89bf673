package middleware

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
	"github.com/tbourn/go-request-gatekeeper/internal/gatekeeper"
)

// AuditSink receives sampled audit entries. Enqueue must not block; it
// reports false when the entry was dropped.
type AuditSink interface {
	Enqueue(domain.AuditEntry) bool
}

// DecisionSink receives one event per screened request.
type DecisionSink interface {
	Record(domain.DecisionEvent)
}

// GuardOptions configures Guard.
type GuardOptions struct {
	Gatekeeper *gatekeeper.Gatekeeper

	// ScanBodyBytes caps how much of the body is read for pattern scanning.
	// The body is restored in full for downstream handlers.
	ScanBodyBytes int64

	Audit  AuditSink    // optional
	Stats  DecisionSink // optional
	Tracer trace.Tracer // otel.Tracer("gatekeeper") when nil
}

// RejectionResponse is the body written for rate-limited, suspicious and
// oversized requests.
type RejectionResponse struct {
	StatusCode int    `json:"statusCode" example:"429"`
	Message    string `json:"message" example:"Too many requests. Please try again later."`
	Error      string `json:"error" example:"Too Many Requests"`
}

// Guard screens every request through the gatekeeper. Rejections abort with
// a RejectionResponse; processing failures are attached to the context and
// answered with the generic 500 envelope.
func Guard(opt GuardOptions) gin.HandlerFunc {
	if opt.ScanBodyBytes <= 0 {
		opt.ScanBodyBytes = 1 << 20
	}
	tracer := opt.Tracer
	if tracer == nil {
		tracer = otel.Tracer("gatekeeper")
	}
	gk := opt.Gatekeeper

	return func(c *gin.Context) {
		lg := LoggerFrom(c)
		_, span := tracer.Start(c.Request.Context(), "gatekeeper.screen")

		req, err := buildRequest(c, opt.ScanBodyBytes)
		var v gatekeeper.Verdict
		if err == nil {
			v, err = gk.Screen(req)
		}
		if err != nil {
			err = fmt.Errorf("gatekeeper: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()

			gkDecisions.WithLabelValues(string(domain.OutcomeError)).Inc()
			lg.Error().Err(err).Msg("gatekeeper_error")
			_ = c.Error(err)
			abortInternal(c, RequestIDFrom(c))
			return
		}

		span.SetAttributes(
			attribute.String("gatekeeper.client_id", v.ClientID),
			attribute.String("gatekeeper.outcome", string(v.Outcome)),
			attribute.String("gatekeeper.policy", v.Policy.Category),
		)
		span.End()

		c.Set(clientIDKey, v.ClientID)
		recordVerdict(v, gk.Store().Len())
		if opt.Stats != nil {
			opt.Stats.Record(domain.DecisionEvent{
				ClientID: v.ClientID,
				Outcome:  v.Outcome,
				Method:   req.Method,
				Path:     routeLabel(c),
				At:       time.Now(),
			})
		}

		if !v.Allowed() {
			logRejection(lg, v, req)
			if v.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(v.RetryAfter.Seconds()))))
			}
			c.AbortWithStatusJSON(v.Status, RejectionResponse{
				StatusCode: v.Status,
				Message:    v.Message,
				Error:      v.Error,
			})
			return
		}

		if v.Audit != nil {
			a := v.Audit
			lg.Info().
				Time("timestamp", a.Timestamp).
				Str("client_id", a.ClientID).
				Str("method", a.Method).
				Str("path", a.Path).
				Str("ip", a.IP).
				Str("user_agent", a.UserAgent).
				Bool("authenticated", a.Authenticated).
				Msg("security_audit")
			if opt.Audit != nil && !opt.Audit.Enqueue(*a) {
				lg.Debug().Msg("audit queue full, entry dropped")
			}
		}
		if v.JanitorRan {
			lg.Debug().Int("evicted", v.Evicted).Msg("janitor sweep")
		}

		c.Next()
	}
}

// buildRequest captures the fields the gatekeeper reads. At most limit body
// bytes are buffered; the remainder stays on the wire for the handler.
func buildRequest(c *gin.Context, limit int64) (domain.Request, error) {
	r := c.Request
	req := domain.Request{
		Method:        r.Method,
		URL:           r.URL.RequestURI(),
		Path:          r.URL.Path,
		Query:         r.URL.Query(),
		Headers:       r.Header,
		ContentLength: r.ContentLength,
		RemoteAddr:    r.RemoteAddr,
		UserAgent:     r.UserAgent(),
		Authorization: r.Header.Get("Authorization"),
	}
	if p, ok := PrincipalFrom(c); ok {
		req.Principal = p
	}

	if r.Body != nil && r.Body != http.NoBody {
		buf, err := io.ReadAll(io.LimitReader(r.Body, limit))
		if err != nil {
			return req, fmt.Errorf("read body: %w", err)
		}
		req.Body = buf
		r.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	}
	return req, nil
}

// replayBody serves the buffered prefix followed by the unread original body.
type replayBody struct {
	io.Reader
	io.Closer
}

func logRejection(lg *zerolog.Logger, v gatekeeper.Verdict, r domain.Request) {
	ev := lg.Warn().
		Str("client_id", v.ClientID).
		Str("policy", v.Policy.Category).
		Int("status", v.Status)
	switch v.Outcome {
	case domain.OutcomeRateLimited:
		ev.Dur("retry_after", v.RetryAfter).Msg("rate_limited")
	case domain.OutcomeSuspicious:
		ev.Strs("patterns", gatekeeper.Descriptions(v.Patterns)).Msg("suspicious_request")
	case domain.OutcomeTooLarge:
		ev.Int64("content_length", r.ContentLength).Msg("payload_too_large")
	default:
		ev.Msg("request_rejected")
	}
}

// routeLabel bounds stats cardinality to registered routes.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}
