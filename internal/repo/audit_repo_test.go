package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

func newAuditDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("audit_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Release the file handle before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestCreateAuditEntries_Error_NoTable(t *testing.T) {
	db := newAuditDB(t, false)
	err := CreateAuditEntries(context.Background(), db, []domain.AuditEntry{{ClientID: "c", Method: "GET", Path: "/"}})
	if err == nil {
		t.Fatalf("expected error without table")
	}
}

func TestCreateAuditEntries_EmptyIsNoop(t *testing.T) {
	db := newAuditDB(t, false) // no table: would fail if it touched the DB
	if err := CreateAuditEntries(context.Background(), db, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestCreateAuditEntries_AssignsIDsAndTimestamps(t *testing.T) {
	db := newAuditDB(t, true)
	ctx := context.Background()

	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	in := []domain.AuditEntry{
		{ClientID: "user:1", Method: "GET", Path: "/a", Timestamp: ts, Authenticated: true},
		{ID: "fixed-id", ClientID: "ip:x:0", Method: "POST", Path: "/b"},
	}
	if err := CreateAuditEntries(ctx, db, in); err != nil {
		t.Fatalf("CreateAuditEntries: %v", err)
	}
	if in[0].ID == "" || len(in[0].ID) != 36 {
		t.Fatalf("expected generated uuid, got %q", in[0].ID)
	}
	if in[1].ID != "fixed-id" || in[1].Timestamp.IsZero() {
		t.Fatalf("unexpected second entry: %+v", in[1])
	}

	n, err := CountAuditEntries(ctx, db)
	if err != nil || n != 2 {
		t.Fatalf("CountAuditEntries = %d, %v; want 2", n, err)
	}
}

func TestListAuditEntriesPage_NewestFirst(t *testing.T) {
	db := newAuditDB(t, true)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var in []domain.AuditEntry
	for i := 0; i < 5; i++ {
		in = append(in, domain.AuditEntry{
			ID:        fmt.Sprintf("id-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			ClientID:  "c", Method: "GET", Path: fmt.Sprintf("/%d", i),
		})
	}
	if err := CreateAuditEntries(ctx, db, in); err != nil {
		t.Fatalf("seed: %v", err)
	}

	page, err := ListAuditEntriesPage(ctx, db, 1, 2)
	if err != nil {
		t.Fatalf("ListAuditEntriesPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "id-3" || page[1].ID != "id-2" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestPruneAuditEntries_StrictlyBefore(t *testing.T) {
	db := newAuditDB(t, true)
	ctx := context.Background()

	cut := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	in := []domain.AuditEntry{
		{ID: "old", Timestamp: cut.Add(-time.Hour), ClientID: "c", Method: "GET", Path: "/"},
		{ID: "edge", Timestamp: cut, ClientID: "c", Method: "GET", Path: "/"},
		{ID: "new", Timestamp: cut.Add(time.Hour), ClientID: "c", Method: "GET", Path: "/"},
	}
	if err := CreateAuditEntries(ctx, db, in); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := PruneAuditEntries(ctx, db, cut)
	if err != nil || n != 1 {
		t.Fatalf("PruneAuditEntries = %d, %v; want 1", n, err)
	}
	left, _ := CountAuditEntries(ctx, db)
	if left != 2 {
		t.Fatalf("remaining = %d; want 2", left)
	}
}
