// Package httpapi wires the HTTP transport (Gin) to the gatekeeper, the admin
// handlers and the cross-cutting middleware: tracing, correlation IDs,
// logging/redaction, panic recovery, security headers, metrics, CORS and
// request screening.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-request-gatekeeper/internal/config"
	"github.com/tbourn/go-request-gatekeeper/internal/domain"
	"github.com/tbourn/go-request-gatekeeper/internal/gatekeeper"
	"github.com/tbourn/go-request-gatekeeper/internal/http/handlers"
	"github.com/tbourn/go-request-gatekeeper/internal/http/middleware"
	"github.com/tbourn/go-request-gatekeeper/internal/observability"
	"github.com/tbourn/go-request-gatekeeper/internal/repo"
	"github.com/tbourn/go-request-gatekeeper/internal/services"
	"github.com/tbourn/go-request-gatekeeper/internal/stats"
)

// auditRepoShim adapts the repository free functions to the
// services.AuditRepo interface.
type auditRepoShim struct{}

// CreateAuditEntries proxies repo.CreateAuditEntries.
func (auditRepoShim) CreateAuditEntries(ctx context.Context, db *gorm.DB, entries []domain.AuditEntry) error {
	return repo.CreateAuditEntries(ctx, db, entries)
}

// CountAuditEntries proxies repo.CountAuditEntries.
func (auditRepoShim) CountAuditEntries(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountAuditEntries(ctx, db)
}

// ListAuditEntriesPage proxies repo.ListAuditEntriesPage.
func (auditRepoShim) ListAuditEntriesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.AuditEntry, error) {
	return repo.ListAuditEntriesPage(ctx, db, offset, limit)
}

// PruneAuditEntries proxies repo.PruneAuditEntries.
func (auditRepoShim) PruneAuditEntries(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	return repo.PruneAuditEntries(ctx, db, before)
}

// NewAuditService builds the audit writer over db using the repo package.
// It returns nil when db is nil (persistence disabled).
func NewAuditService(db *gorm.DB, cfg config.AuditConfig) *services.AuditService {
	if db == nil {
		return nil
	}
	return services.NewAuditService(db, auditRepoShim{}, services.AuditOptions{
		WritesPerSec: cfg.WritesPerSec,
		Buffer:       cfg.Buffer,
		Retention:    cfg.Retention,
	})
}

// NewGatekeeper builds the gatekeeper from configuration over store.
func NewGatekeeper(store *gatekeeper.Store, cfg config.GatekeeperConfig) *gatekeeper.Gatekeeper {
	policy := func(p config.PolicyConfig) domain.RateLimitPolicy {
		return domain.RateLimitPolicy{Window: p.Window, MaxRequests: p.MaxRequests}
	}
	return gatekeeper.New(store, gatekeeper.Options{
		Policies: gatekeeper.NewPolicyTable(
			policy(cfg.AuthPolicy),
			policy(cfg.UploadPolicy),
			policy(cfg.AdminPolicy),
			policy(cfg.DefaultPolicy),
			cfg.AdminRoles,
		),
		SuspiciousBlock:    cfg.SuspiciousBlock,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		AuditSampleRate:    cfg.AuditSampleRate,
		JanitorProbability: cfg.JanitorProbability,
		ClientRetention:    cfg.ClientRetention,
	})
}

// Deps are the long-lived components the router mounts. Audit and Stats may
// be nil.
type Deps struct {
	Gatekeeper *gatekeeper.Gatekeeper
	Audit      *services.AuditService
	Stats      *stats.Async
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Security headers on every response, rejections included
//  6. Metrics
//  7. CORS allow-origin header, so browsers can read rejections
//  8. Principal extraction (identity headers only when trusted)
//  9. Gatekeeper screening, which covers /metrics and preflights
//  10. CORS preflight handling
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Hardening headers
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		HSTSMaxAge:            cfg.Security.HSTSMaxAge,
		ContentSecurityPolicy: cfg.Security.ContentSecurityPolicy,
	}))

	// 6) Prometheus metrics
	r.Use(middleware.Metrics())

	// 7) CORS origin header (allow all if none configured)
	allowOrigin, preflight := corsMiddleware(cfg.CORS.AllowedOrigins)
	r.Use(allowOrigin)

	// 8) Principal from upstream auth, or from identity headers when a
	// trusted proxy sets them
	if cfg.Gatekeeper.TrustIdentityHeaders {
		r.Use(middleware.HeaderPrincipal())
	}

	// 9) Screening
	var auditSink middleware.AuditSink
	if deps.Audit != nil {
		auditSink = deps.Audit
	}
	var statsSink middleware.DecisionSink
	if deps.Stats != nil {
		statsSink = deps.Stats
	}
	r.Use(middleware.Guard(middleware.GuardOptions{
		Gatekeeper:    deps.Gatekeeper,
		ScanBodyBytes: cfg.Gatekeeper.ScanBodyBytes,
		Audit:         auditSink,
		Stats:         statsSink,
		Tracer:        observability.Tracer(),
	}))

	// 10) CORS preflights end here
	r.Use(preflight)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var auditLister handlers.AuditLister
	if deps.Audit != nil {
		auditLister = deps.Audit
	}
	gk := deps.Gatekeeper
	h := handlers.New(gk.Store(), gk, gk.Policies(), auditLister)

	// Admin API
	api := groupWithPrefix(r, cfg.APIBasePath)
	admin := api.Group("/admin",
		gzip.Gzip(gzip.DefaultCompression),
		middleware.RequireRole(cfg.Gatekeeper.AdminRoles...),
	)
	{
		admin.GET("/clients", h.ListClients)
		admin.GET("/clients/:key", h.GetClient)
		admin.DELETE("/clients/:key", h.ResetClient)
		admin.POST("/janitor", h.RunJanitor)
		admin.GET("/policies", h.ListPolicies)
		admin.GET("/audit", h.ListAudit)
	}
}

// corsMiddleware returns the CORS handlers for the allowlist. allowOrigin
// only sets Access-Control-Allow-Origin and never aborts; preflight answers
// OPTIONS preflights. An empty list allows every origin without credentials.
func corsMiddleware(origins []string) (allowOrigin, preflight gin.HandlerFunc) {
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	headers := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderUserRole, middleware.HeaderApplicationID,
	}
	expose := []string{"X-Request-ID", "Content-Length", "Retry-After"}

	if len(origins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		return func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     headers,
				ExposeHeaders:    expose,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			})
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     headers,
			ExposeHeaders:    expose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		})
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
