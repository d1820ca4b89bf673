// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the gatekeeper's limits and sampling rates, the audit store,
// decision stats, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines the response hardening headers.
type SecurityConfig struct {
	HSTSMaxAge            time.Duration
	ContentSecurityPolicy string
}

// PolicyConfig is one (window, max requests) pair of the policy table.
type PolicyConfig struct {
	Window      time.Duration
	MaxRequests int
}

// GatekeeperConfig defines request screening behavior.
type GatekeeperConfig struct {
	AuthPolicy    PolicyConfig // RATE_AUTH_WINDOW / RATE_AUTH_MAX
	UploadPolicy  PolicyConfig // RATE_UPLOAD_WINDOW / RATE_UPLOAD_MAX
	AdminPolicy   PolicyConfig // RATE_ADMIN_WINDOW / RATE_ADMIN_MAX
	DefaultPolicy PolicyConfig // RATE_DEFAULT_WINDOW / RATE_DEFAULT_MAX
	AdminRoles    []string     // ADMIN_ROLES (CSV)

	// TrustIdentityHeaders reads the principal from X-User-ID/X-User-Role.
	// Only enable behind a proxy that sets and strips those headers.
	TrustIdentityHeaders bool // TRUST_IDENTITY_HEADERS

	SuspiciousBlock    time.Duration // SUSPICIOUS_BLOCK
	MaxBodyBytes       int64         // MAX_BODY_BYTES
	ScanBodyBytes      int64         // SCAN_BODY_BYTES
	AuditSampleRate    float64       // AUDIT_SAMPLE_RATE in [0..1]
	JanitorProbability float64       // JANITOR_PROBABILITY in [0..1]
	JanitorInterval    time.Duration // JANITOR_INTERVAL (0 = off)
	ClientRetention    time.Duration // CLIENT_RETENTION
}

// AuditConfig defines persistence of sampled audit entries.
type AuditConfig struct {
	WritesPerSec float64       // AUDIT_WRITES_PER_SEC
	Buffer       int           // AUDIT_BUFFER
	Retention    time.Duration // AUDIT_RETENTION
}

// RedisConfig defines the optional Redis decision stats sink.
type RedisConfig struct {
	Enabled  bool          // REDIS_STATS_ENABLED
	Addr     string        // REDIS_ADDR
	Password string        // REDIS_PASSWORD
	DB       int           // REDIS_DB
	Prefix   string        // REDIS_STATS_PREFIX
	TTL      time.Duration // REDIS_STATS_TTL
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for admin API routes

	// Persistence
	DBPath string // SQLite path; empty disables audit persistence

	Gatekeeper GatekeeperConfig
	Audit      AuditConfig
	Redis      RedisConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Persistence (explicit empty DB_PATH disables it)
		DBPath: getenvAllowEmpty("DB_PATH", "audit.db"),

		Gatekeeper: GatekeeperConfig{
			AuthPolicy: PolicyConfig{
				Window:      getdur("RATE_AUTH_WINDOW", 15*time.Minute),
				MaxRequests: getint("RATE_AUTH_MAX", 5),
			},
			UploadPolicy: PolicyConfig{
				Window:      getdur("RATE_UPLOAD_WINDOW", time.Minute),
				MaxRequests: getint("RATE_UPLOAD_MAX", 10),
			},
			AdminPolicy: PolicyConfig{
				Window:      getdur("RATE_ADMIN_WINDOW", time.Minute),
				MaxRequests: getint("RATE_ADMIN_MAX", 200),
			},
			DefaultPolicy: PolicyConfig{
				Window:      getdur("RATE_DEFAULT_WINDOW", time.Minute),
				MaxRequests: getint("RATE_DEFAULT_MAX", 100),
			},
			AdminRoles: splitCSV(getenv("ADMIN_ROLES", "admin,super_admin")),

			TrustIdentityHeaders: getbool("TRUST_IDENTITY_HEADERS", false),

			SuspiciousBlock:    getdur("SUSPICIOUS_BLOCK", 30*time.Minute),
			MaxBodyBytes:       getint64("MAX_BODY_BYTES", 50<<20),
			ScanBodyBytes:      getint64("SCAN_BODY_BYTES", 1<<20),
			AuditSampleRate:    getfloat("AUDIT_SAMPLE_RATE", 0.10),
			JanitorProbability: getfloat("JANITOR_PROBABILITY", 0.01),
			JanitorInterval:    getdur("JANITOR_INTERVAL", 0),
			ClientRetention:    getdur("CLIENT_RETENTION", 24*time.Hour),
		},

		Audit: AuditConfig{
			WritesPerSec: getfloat("AUDIT_WRITES_PER_SEC", 50),
			Buffer:       getint("AUDIT_BUFFER", 1024),
			Retention:    getdur("AUDIT_RETENTION", 30*24*time.Hour),
		},

		Redis: RedisConfig{
			Enabled:  getbool("REDIS_STATS_ENABLED", false),
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
			Prefix:   getenv("REDIS_STATS_PREFIX", "gatekeeper:stats"),
			TTL:      getdur("REDIS_STATS_TTL", 24*time.Hour),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			HSTSMaxAge:            getdur("HSTS_MAX_AGE", 365*24*time.Hour),
			ContentSecurityPolicy: getenv("CONTENT_SECURITY_POLICY", "default-src 'self'"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "request-gatekeeper"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	g := cfg.Gatekeeper
	for name, p := range map[string]PolicyConfig{
		"AUTH":    g.AuthPolicy,
		"UPLOAD":  g.UploadPolicy,
		"ADMIN":   g.AdminPolicy,
		"DEFAULT": g.DefaultPolicy,
	} {
		if p.Window <= 0 {
			return errors.New("RATE_" + name + "_WINDOW must be > 0")
		}
		if p.MaxRequests < 1 {
			return errors.New("RATE_" + name + "_MAX must be >= 1")
		}
	}
	if g.SuspiciousBlock <= 0 {
		return errors.New("SUSPICIOUS_BLOCK must be > 0")
	}
	if g.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be > 0")
	}
	if g.ScanBodyBytes <= 0 {
		return errors.New("SCAN_BODY_BYTES must be > 0")
	}
	if g.AuditSampleRate < 0 || g.AuditSampleRate > 1 {
		return errors.New("AUDIT_SAMPLE_RATE must be in [0,1]")
	}
	if g.JanitorProbability < 0 || g.JanitorProbability > 1 {
		return errors.New("JANITOR_PROBABILITY must be in [0,1]")
	}
	if g.JanitorInterval < 0 {
		return errors.New("JANITOR_INTERVAL must be >= 0")
	}
	if g.ClientRetention <= 0 {
		return errors.New("CLIENT_RETENTION must be > 0")
	}

	if cfg.Audit.WritesPerSec <= 0 {
		return errors.New("AUDIT_WRITES_PER_SEC must be > 0")
	}
	if cfg.Audit.Buffer < 1 {
		return errors.New("AUDIT_BUFFER must be >= 1")
	}
	if cfg.Audit.Retention <= 0 {
		return errors.New("AUDIT_RETENTION must be > 0")
	}

	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("REDIS_ADDR must not be empty when REDIS_STATS_ENABLED")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

// getenvAllowEmpty is getenv but an explicitly empty variable wins over def.
func getenvAllowEmpty(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
