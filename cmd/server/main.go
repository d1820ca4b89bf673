// Command server runs the request gatekeeper HTTP service.
//
// @title       Request Gatekeeper Admin API
// @version     1.0
// @description Operator endpoints for the request gatekeeper.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-request-gatekeeper/docs"
	"github.com/tbourn/go-request-gatekeeper/internal/config"
	"github.com/tbourn/go-request-gatekeeper/internal/gatekeeper"
	httpapi "github.com/tbourn/go-request-gatekeeper/internal/http"
	"github.com/tbourn/go-request-gatekeeper/internal/http/middleware"
	"github.com/tbourn/go-request-gatekeeper/internal/observability"
	"github.com/tbourn/go-request-gatekeeper/internal/repo"
	"github.com/tbourn/go-request-gatekeeper/internal/stats"
	"github.com/tbourn/go-request-gatekeeper/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stdout, cfg.LogPretty, cfg.LogLevel)
	gin.SetMode(cfg.GinMode)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	// Audit persistence (optional)
	var db *gorm.DB
	if cfg.DBPath != "" {
		db, err = repo.OpenSQLite(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open audit db")
		}
		if err := repo.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrate audit db")
		}
	} else {
		log.Warn().Msg("DB_PATH empty: audit persistence disabled")
	}
	audit := httpapi.NewAuditService(db, cfg.Audit)

	// Decision stats (optional)
	var (
		rdb      *redis.Client
		statsBus *stats.Async
	)
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis stats ping")
		}
		statsBus = stats.NewAsync(
			stats.NewRedisStore(rdb, stats.WithPrefix(cfg.Redis.Prefix), stats.WithTTL(cfg.Redis.TTL)),
			0, 0,
		)
	}

	store := gatekeeper.NewStore()
	gk := httpapi.NewGatekeeper(store, cfg.Gatekeeper)
	if cfg.Gatekeeper.TrustIdentityHeaders {
		log.Warn().Msg("TRUST_IDENTITY_HEADERS on: X-User-ID/X-User-Role are taken as authenticated")
	}
	store.StartJanitor(ctx, cfg.Gatekeeper.JanitorInterval, cfg.Gatekeeper.ClientRetention, nil, func(n int) {
		middleware.RecordEvictions(n, store.Len())
		if n > 0 {
			log.Debug().Int("evicted", n).Msg("janitor sweep")
		}
	})

	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = ver

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{Gatekeeper: gk, Audit: audit, Stats: statsBus}, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().
		Str("addr", srv.Addr).
		Str("version", ver).
		Bool("audit", audit != nil).
		Bool("redis_stats", statsBus != nil).
		Dur("janitor_interval", cfg.Gatekeeper.JanitorInterval).
		Msg("gatekeeper listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	// Drain background writers after the listener is closed.
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := audit.Close(drainCtx); err != nil {
		log.Warn().Err(err).Int64("dropped", audit.Dropped()).Msg("audit drain")
	}
	if err := statsBus.Close(drainCtx); err != nil {
		log.Warn().Err(err).Msg("stats drain")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := repo.Close(db); err != nil {
		log.Warn().Err(err).Msg("audit db close")
	}
	if err := shutdownOTel(drainCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("gatekeeper stopped")
}
