// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation. Metrics() measures HTTP
// traffic; the gatekeeper collectors record screening decisions:
//
//   - http_requests_total{method,path,status}
//   - http_request_duration_seconds{method,path}
//   - http_requests_inflight
//   - http_response_size_bytes{method,path}
//   - gatekeeper_decisions_total{outcome}
//   - gatekeeper_tracked_clients
//   - gatekeeper_janitor_evictions_total
//   - gatekeeper_suspicious_patterns_total{pattern}
//
// The path label is the registered Gin route, or "unmatched" when no route
// matched, so probing traffic cannot inflate label cardinality. Pattern and
// outcome labels come from fixed sets.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-request-gatekeeper/internal/gatekeeper"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is omitted to keep histogram cardinality low.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 2 << 10, 5 << 10,
				10 << 10, 25 << 10, 50 << 10,
				100 << 10, 250 << 10, 500 << 10,
				1 << 20, 2 << 20, 5 << 20,
			},
		},
		[]string{"method", "path"},
	)

	gkDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_decisions_total",
			Help: "Screening decisions by outcome.",
		},
		[]string{"outcome"},
	)

	gkTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatekeeper_tracked_clients",
			Help: "Number of client entries held by the rate limiter.",
		},
	)

	gkEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_janitor_evictions_total",
			Help: "Client entries removed by the janitor.",
		},
	)

	gkPatterns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_suspicious_patterns_total",
			Help: "Suspicious pattern matches by pattern name.",
		},
		[]string{"pattern"},
	)
)

func init() {
	prometheus.MustRegister(
		httpReqs, httpLat, httpInflight, httpRespSize,
		gkDecisions, gkTracked, gkEvictions, gkPatterns,
	)
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
//
//	r := gin.New()
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		dur := time.Since(start).Seconds()
		path := routeLabel(c)
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())
		size := c.Writer.Size() // -1 when nothing was written

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(dur)
		if size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// recordVerdict updates the gatekeeper collectors for one decision.
func recordVerdict(v gatekeeper.Verdict, tracked int) {
	gkDecisions.WithLabelValues(string(v.Outcome)).Inc()
	gkTracked.Set(float64(tracked))
	for _, p := range v.Patterns {
		gkPatterns.WithLabelValues(p.Name).Inc()
	}
	if v.Evicted > 0 {
		gkEvictions.Add(float64(v.Evicted))
	}
}

// RecordEvictions adds n janitor evictions that happened outside the request
// path, e.g. from the fixed-interval janitor or the admin API.
func RecordEvictions(n, tracked int) {
	if n > 0 {
		gkEvictions.Add(float64(n))
	}
	gkTracked.Set(float64(tracked))
}
