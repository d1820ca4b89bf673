package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// Header names read by HeaderPrincipal.
const (
	HeaderUserID        = "X-User-ID"
	HeaderUserRole      = "X-User-Role"
	HeaderApplicationID = "X-Application-Id"
)

// PrincipalKey is the Gin context key holding a *domain.Principal. An
// upstream authentication middleware may store one here before
// HeaderPrincipal runs.
const PrincipalKey = "principal"

// HeaderPrincipal derives the authenticated principal from trusted identity
// headers when no principal is present yet. Without X-User-ID the request
// stays anonymous.
func HeaderPrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := PrincipalFrom(c); !ok {
			if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
				c.Set(PrincipalKey, &domain.Principal{
					UserID:        uid,
					Role:          strings.TrimSpace(c.GetHeader(HeaderUserRole)),
					ApplicationID: strings.TrimSpace(c.GetHeader(HeaderApplicationID)),
				})
			}
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal attached to the request, if any.
func PrincipalFrom(c *gin.Context) (*domain.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*domain.Principal)
	return p, ok && p != nil
}

// RequireRole admits only principals whose role is one of roles (case
// insensitive). Anonymous requests get 401 and other roles get 403.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			allowed[r] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "unauthorized",
				"message":    "authentication required",
			})
			return
		}
		if _, ok := allowed[strings.ToLower(p.Role)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "forbidden",
				"message":    "insufficient role",
			})
			return
		}
		c.Next()
	}
}
