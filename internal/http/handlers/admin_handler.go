// Admin HTTP handlers.
//
// This file exposes the operator endpoints of the gatekeeper:
//   - GET    /admin/clients          (tracked clients, paginated)
//   - GET    /admin/clients/{key}    (one client)
//   - DELETE /admin/clients/{key}    (reset a client: counters and block)
//   - POST   /admin/janitor          (sweep idle clients now)
//   - GET    /admin/policies         (policy table in evaluation order)
//   - GET    /admin/audit            (persisted audit entries, paginated)
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
	"github.com/tbourn/go-request-gatekeeper/internal/http/middleware"
	"github.com/tbourn/go-request-gatekeeper/internal/services"
	"github.com/tbourn/go-request-gatekeeper/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

//
// Contracts
//

// ClientRegistry is the client state store as seen by the admin API.
// *gatekeeper.Store satisfies it.
type ClientRegistry interface {
	Snapshots() []domain.ClientSnapshot
	Get(key string) (domain.ClientState, bool)
	Remove(key string) bool
	Len() int
}

// Janitor runs an eviction sweep and returns the number of evicted entries.
type Janitor interface {
	Sweep() int
}

// PolicyLister lists the rate-limit policies in evaluation order.
// gatekeeper.PolicyTable satisfies it.
type PolicyLister interface {
	Policies() []domain.RateLimitPolicy
}

// AuditLister pages through persisted audit entries, newest first.
// It returns services.ErrAuditDisabled when persistence is off.
type AuditLister interface {
	ListPage(ctx context.Context, page, pageSize int) ([]domain.AuditEntry, int64, error)
}

// Handlers groups the admin endpoints.
type Handlers struct {
	clients  ClientRegistry
	janitor  Janitor
	policies PolicyLister
	audit    AuditLister
}

// New constructs Handlers. audit may be nil when persistence is disabled.
func New(clients ClientRegistry, janitor Janitor, policies PolicyLister, audit AuditLister) *Handlers {
	return &Handlers{clients: clients, janitor: janitor, policies: policies, audit: audit}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListClientsResponse wraps a page of tracked clients.
type ListClientsResponse struct {
	Clients    []domain.ClientSnapshot `json:"clients"`
	Pagination Pagination              `json:"pagination"`
}

// JanitorResponse reports the result of a manual sweep.
type JanitorResponse struct {
	Evicted   int `json:"evicted"   example:"12"`
	Remaining int `json:"remaining" example:"340"`
}

// ListPoliciesResponse lists the policy table.
type ListPoliciesResponse struct {
	Policies []domain.RateLimitPolicy `json:"policies"`
}

// ListAuditResponse wraps a page of audit entries.
type ListAuditResponse struct {
	Entries    []domain.AuditEntry `json:"entries"`
	Pagination Pagination          `json:"pagination"`
}

func pageOf(c *gin.Context) utils.Page {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
}

func paginationOf(p utils.Page, total int64) Pagination {
	pages := p.TotalPages(total)
	return Pagination{
		Page:       p.Number,
		PageSize:   p.Size,
		Total:      total,
		TotalPages: pages,
		HasNext:    p.Number < pages,
	}
}

//
// Handlers
//

// ListClients godoc
// @ID          listClients
// @Summary     List tracked clients (paginated)
// @Description Returns client counter entries sorted by key.
// @Tags        Admin
// @Produce     json
// @Param       X-User-Role  header  string  true   "Administrative role"  example(admin)
// @Param       page         query   int     false  "Page number (1-based)"  minimum(1) default(1)
// @Param       page_size    query   int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListClientsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /admin/clients [get]
func (h *Handlers) ListClients(c *gin.Context) {
	p := pageOf(c)
	all := h.clients.Snapshots()
	lo, hi := p.Slice(len(all))

	ok(c, http.StatusOK, ListClientsResponse{
		Clients:    all[lo:hi],
		Pagination: paginationOf(p, int64(len(all))),
	})
}

// GetClient godoc
// @ID          getClient
// @Summary     Get one tracked client
// @Tags        Admin
// @Produce     json
// @Param       X-User-Role  header  string  true  "Administrative role"  example(admin)
// @Param       key          path    string  true  "Client identifier"  example(user:user-42)
// @Success     200  {object}  domain.ClientSnapshot
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /admin/clients/{key} [get]
func (h *Handlers) GetClient(c *gin.Context) {
	key := c.Param("key")
	st, found := h.clients.Get(key)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "client not tracked")
		return
	}
	ok(c, http.StatusOK, st.Snapshot(key))
}

// ResetClient godoc
// @ID          resetClient
// @Summary     Reset a tracked client
// @Description Removes the client entry, clearing its counters and any block.
// @Tags        Admin
// @Param       X-User-Role  header  string  true  "Administrative role"  example(admin)
// @Param       key          path    string  true  "Client identifier"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /admin/clients/{key} [delete]
func (h *Handlers) ResetClient(c *gin.Context) {
	key := c.Param("key")
	if !h.clients.Remove(key) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "client not tracked")
		return
	}
	middleware.LoggerFrom(c).Info().Str("client_id", key).Msg("client reset")
	noContent(c)
}

// RunJanitor godoc
// @ID          runJanitor
// @Summary     Sweep idle clients now
// @Tags        Admin
// @Produce     json
// @Param       X-User-Role  header  string  true  "Administrative role"  example(admin)
// @Success     200  {object}  handlers.JanitorResponse
// @Router      /admin/janitor [post]
func (h *Handlers) RunJanitor(c *gin.Context) {
	n := h.janitor.Sweep()
	remaining := h.clients.Len()
	middleware.RecordEvictions(n, remaining)

	ok(c, http.StatusOK, JanitorResponse{Evicted: n, Remaining: remaining})
}

// ListPolicies godoc
// @ID          listPolicies
// @Summary     List rate-limit policies
// @Description Policies in evaluation order: auth, upload, admin, default.
// @Tags        Admin
// @Produce     json
// @Param       X-User-Role  header  string  true  "Administrative role"  example(admin)
// @Success     200  {object}  handlers.ListPoliciesResponse
// @Router      /admin/policies [get]
func (h *Handlers) ListPolicies(c *gin.Context) {
	ok(c, http.StatusOK, ListPoliciesResponse{Policies: h.policies.Policies()})
}

// ListAudit godoc
// @ID          listAudit
// @Summary     List audit entries (paginated)
// @Description Returns sampled audit entries, newest first.
// @Tags        Admin
// @Produce     json
// @Param       X-User-Role  header  string  true   "Administrative role"  example(admin)
// @Param       page         query   int     false  "Page number (1-based)"  minimum(1) default(1)
// @Param       page_size    query   int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListAuditResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Audit persistence disabled"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/audit [get]
func (h *Handlers) ListAudit(c *gin.Context) {
	if h.audit == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, services.ErrAuditDisabled.Error())
		return
	}

	p := pageOf(c)
	items, total, err := h.audit.ListPage(c.Request.Context(), p.Number, p.Size)
	switch {
	case errors.Is(err, services.ErrAuditDisabled):
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list audit entries")
		return
	}
	if items == nil {
		items = []domain.AuditEntry{}
	}

	ok(c, http.StatusOK, ListAuditResponse{
		Entries:    items,
		Pagination: paginationOf(p, total),
	})
}
