package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSQLiteRunStore_CreatesFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "runs.db")

	s, err := NewSQLiteRunStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file was not created: %v", err)
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %s, want %s", s.Path(), dbPath)
	}
}

func TestSQLiteRunStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := NewSQLiteRunStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	saved, err := s.SaveRun(ctx, Run{Name: "persisted"}, testTable())
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = NewSQLiteRunStore(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	run, err := s.GetRun(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetRun() after reopen error = %v", err)
	}
	if run.Name != "persisted" || run.Rows != 4 {
		t.Errorf("GetRun() after reopen = %+v", run)
	}
}

func TestSQLiteRunStore_DeleteCascades(t *testing.T) {
	s, err := NewSQLiteRunStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	saved, err := s.SaveRun(ctx, Run{}, testTable())
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if err := s.DeleteRun(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM densities`).Scan(&n); err != nil {
		t.Fatalf("count densities: %v", err)
	}
	if n != 0 {
		t.Errorf("expected densities to cascade, %d rows left", n)
	}
}

func TestInitSchema_NewerVersionRejected(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	s, err := NewSQLiteRunStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (99, datetime('now'))`); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	s.Close()

	if _, err := NewSQLiteRunStore(dbPath); err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Errorf("expected a newer-schema error, got %v", err)
	}
}

func TestValidateIntegrity(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "check.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	if err := ValidateIntegrity(ctx, db); err != nil {
		t.Errorf("ValidateIntegrity() on a fresh database = %v", err)
	}
	// A second InitSchema takes the existing-database path.
	if err := InitSchema(ctx, db); err != nil {
		t.Errorf("InitSchema() on an existing database = %v", err)
	}
}
