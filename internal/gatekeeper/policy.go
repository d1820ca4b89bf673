package gatekeeper

import (
	"strings"
	"time"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// Policy categories.
const (
	CategoryAuth    = "auth"
	CategoryUpload  = "upload"
	CategoryAdmin   = "admin"
	CategoryDefault = "default"
)

// PolicyTable maps a request to its RateLimitPolicy. It holds no mutable
// state; Resolve is a pure function of (path, role).
type PolicyTable struct {
	Auth       domain.RateLimitPolicy
	Upload     domain.RateLimitPolicy
	Admin      domain.RateLimitPolicy
	Default    domain.RateLimitPolicy
	adminRoles map[string]struct{}
}

// DefaultPolicyTable returns the stock limits: auth 5 per 15m, upload 10 per
// minute, administrators 200 per minute, everything else 100 per minute.
func DefaultPolicyTable() PolicyTable {
	return NewPolicyTable(
		domain.RateLimitPolicy{Window: 15 * time.Minute, MaxRequests: 5},
		domain.RateLimitPolicy{Window: time.Minute, MaxRequests: 10},
		domain.RateLimitPolicy{Window: time.Minute, MaxRequests: 200},
		domain.RateLimitPolicy{Window: time.Minute, MaxRequests: 100},
		[]string{"admin", "super_admin"},
	)
}

// NewPolicyTable builds a table from the four category policies. Categories
// are stamped onto the policies; adminRoles match case-insensitively.
func NewPolicyTable(auth, upload, admin, def domain.RateLimitPolicy, adminRoles []string) PolicyTable {
	auth.Category = CategoryAuth
	upload.Category = CategoryUpload
	admin.Category = CategoryAdmin
	def.Category = CategoryDefault

	roles := make(map[string]struct{}, len(adminRoles))
	for _, r := range adminRoles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			roles[r] = struct{}{}
		}
	}
	return PolicyTable{Auth: auth, Upload: upload, Admin: admin, Default: def, adminRoles: roles}
}

// Resolve picks the policy for a request. Evaluation order is fixed and the
// first match wins: auth path, upload path, administrative role, default.
func (t PolicyTable) Resolve(path, role string) domain.RateLimitPolicy {
	switch {
	case strings.Contains(path, "/auth/"):
		return t.Auth
	case strings.Contains(path, "/upload"):
		return t.Upload
	case t.IsAdmin(role):
		return t.Admin
	default:
		return t.Default
	}
}

// IsAdmin reports whether role is one of the administrative roles.
func (t PolicyTable) IsAdmin(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	_, ok := t.adminRoles[role]
	return ok
}

// Policies lists the table in evaluation order.
func (t PolicyTable) Policies() []domain.RateLimitPolicy {
	return []domain.RateLimitPolicy{t.Auth, t.Upload, t.Admin, t.Default}
}
