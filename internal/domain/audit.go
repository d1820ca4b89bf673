package domain

import "time"

// AuditEntry is a sampled record of a screened request. Entries are written
// asynchronously and pruned after the configured retention.
type AuditEntry struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	Timestamp     time.Time `json:"timestamp"      gorm:"not null;index:idx_audit_ts"`
	ClientID      string    `json:"client_id"      gorm:"type:varchar(128);not null;index"`
	Method        string    `json:"method"         gorm:"type:varchar(16);not null"`
	Path          string    `json:"path"           gorm:"type:text;not null"`
	IP            string    `json:"ip"             gorm:"type:varchar(64)"`
	UserAgent     string    `json:"user_agent"     gorm:"type:text"`
	Authenticated bool      `json:"authenticated"  gorm:"not null"`
}

// TableName returns the database table name for AuditEntry.
func (AuditEntry) TableName() string { return "audit_entries" }

// Outcome labels the result of screening one request.
type Outcome string

const (
	OutcomeAllowed     Outcome = "allowed"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeSuspicious  Outcome = "suspicious"
	OutcomeTooLarge    Outcome = "payload_too_large"
	OutcomeError       Outcome = "error"
)

// DecisionEvent describes one gatekeeper decision for stats sinks.
type DecisionEvent struct {
	ClientID string
	Outcome  Outcome
	Method   string
	Path     string
	At       time.Time
}
