// Package repo implements the audit persistence layer, backed by GORM. This
// file provides repository functions for the AuditEntry model.
//
// All functions are context-aware and accept a *gorm.DB handle. They hold no
// business logic; sampling, throttling and retention policy live in
// services.AuditService.
//
// Functions:
//
//   - CreateAuditEntries(ctx, db, entries) -> error
//     Inserts a batch, assigning UUIDs to rows without one.
//
//   - CountAuditEntries(ctx, db) -> (int64, error)
//
//   - ListAuditEntriesPage(ctx, db, offset, limit) -> []domain.AuditEntry, error
//     Newest first.
//
//   - PruneAuditEntries(ctx, db, before) -> (int64, error)
//     Deletes rows with a timestamp strictly before the cutoff.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// auditBatchSize bounds the number of rows per INSERT statement.
const auditBatchSize = 100

// CreateAuditEntries inserts entries in batches. Entries without an ID get a
// random UUID; zero timestamps are set to now (UTC). An empty slice is a
// no-op.
func CreateAuditEntries(ctx context.Context, db *gorm.DB, entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].Timestamp.IsZero() {
			entries[i].Timestamp = now
		}
	}
	return db.WithContext(ctx).CreateInBatches(entries, auditBatchSize).Error
}

// CountAuditEntries returns the total number of persisted audit rows.
func CountAuditEntries(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.AuditEntry{}).Count(&total).Error
	return total, err
}

// ListAuditEntriesPage returns a page of audit rows ordered by timestamp
// descending, ties broken by id.
func ListAuditEntriesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := db.WithContext(ctx).
		Order("timestamp desc").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// PruneAuditEntries deletes rows older than before and returns how many were
// removed.
func PruneAuditEntries(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&domain.AuditEntry{})
	return res.RowsAffected, res.Error
}
