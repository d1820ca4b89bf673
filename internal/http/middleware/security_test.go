package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestSecurityHeaders_Defaults_OnEveryResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		// upstream framework leaking itself
		c.Header("X-Powered-By", "Express")
		c.Header("Server", "gin")
		c.Next()
	})
	r.Use(SecurityHeaders(SecurityOptions{}))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/reject", func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"statusCode": 429})
	})

	for _, path := range []string{"/ok", "/reject"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		h := w.Header()

		want := map[string]string{
			"X-Frame-Options":           "DENY",
			"X-Content-Type-Options":    "nosniff",
			"X-XSS-Protection":          "1; mode=block",
			"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
			"Content-Security-Policy":   "default-src 'self'",
			"Referrer-Policy":           "strict-origin-when-cross-origin",
		}
		for k, v := range want {
			if got := h.Get(k); got != v {
				t.Fatalf("%s: %s = %q; want %q", path, k, got, v)
			}
		}
		if h.Get("X-Powered-By") != "" || h.Get("Server") != "" {
			t.Fatalf("%s: framework disclosure headers not removed: %#v", path, h)
		}
		if h.Get("Cache-Control") != "" {
			t.Fatalf("%s: unexpected cache headers", path)
		}
	}
}

func TestSecurityHeaders_CustomValues_NoStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(SecurityOptions{
		HSTSMaxAge:            24 * time.Hour,
		ContentSecurityPolicy: "default-src 'none'",
		NoStore:               true,
	}))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	h := w.Header()
	if h.Get("Strict-Transport-Security") != "max-age=86400; includeSubDomains" {
		t.Fatalf("unexpected HSTS: %q", h.Get("Strict-Transport-Security"))
	}
	if h.Get("Content-Security-Policy") != "default-src 'none'" {
		t.Fatalf("unexpected CSP: %q", h.Get("Content-Security-Policy"))
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("missing cache headers: %#v", h)
	}
}

func TestSecurityHeaders_ExposeRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name, existing, want string
	}{
		{"add when absent", "", "X-Request-ID"},
		{"append to existing", "Foo", "Foo, X-Request-ID"},
		{"no duplicate", "X-Request-ID, Foo", "X-Request-ID, Foo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(func(c *gin.Context) {
				c.Header("X-Request-ID", "rid-123")
				if tc.existing != "" {
					c.Header("Access-Control-Expose-Headers", tc.existing)
				}
				c.Next()
			})
			r.Use(SecurityHeaders(SecurityOptions{}))
			r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
			if got := w.Header().Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("got %q; want %q", got, tc.want)
			}
		})
	}
}
