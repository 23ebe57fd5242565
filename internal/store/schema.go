package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    name TEXT,
    created_at TEXT NOT NULL,
    seed INTEGER NOT NULL,
    replicates INTEGER NOT NULL,
    max_t INTEGER NOT NULL,
    lines TEXT NOT NULL,   -- JSON array of line names
    stages TEXT NOT NULL,  -- JSON array of stage counts
    row_count INTEGER NOT NULL,
    run_file TEXT,         -- YAML run document
    stats TEXT             -- JSON RunStats
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

-- Long-format densities, one row per (rep, time, patch, line, stage)
CREATE TABLE IF NOT EXISTS densities (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    rep INTEGER NOT NULL,
    time INTEGER NOT NULL,
    patch INTEGER NOT NULL,
    line INTEGER NOT NULL,
    stage INTEGER NOT NULL,
    density REAL NOT NULL,
    PRIMARY KEY (run_id, rep, time, patch, line, stage)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema creates the tables of a new database, or checks the integrity
// and version of an existing one.
func InitSchema(ctx context.Context, db *sql.DB) error {
	version, exists, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if !exists {
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if err := ValidateIntegrity(ctx, db); err != nil {
		return fmt.Errorf("database integrity check failed: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	if version < SchemaVersion {
		return fmt.Errorf("no migration path from schema version %d to %d", version, SchemaVersion)
	}
	return nil
}

// schemaVersion reports the highest recorded version, and whether the
// version table exists at all.
func schemaVersion(ctx context.Context, db *sql.DB) (int, bool, error) {
	var tables int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&tables); err != nil {
		return 0, false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	if tables == 0 {
		return 0, false, nil
	}

	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, true, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), true, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []struct {
		what string
		sql  string
		args []any
	}{
		{"create tables", schemaV1, nil},
		{"record schema version", `INSERT INTO schema_version (version, applied_at) VALUES (?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))`, []any{SchemaVersion}},
	} {
		if _, err := tx.ExecContext(ctx, stmt.sql, stmt.args...); err != nil {
			return fmt.Errorf("failed to %s: %w", stmt.what, err)
		}
	}
	return tx.Commit()
}

// ValidateIntegrity runs SQLite's integrity and foreign key checks and
// reports every problem they list.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	problems, err := pragmaRows(ctx, db, "integrity_check", func(rows *sql.Rows) (string, error) {
		var result string
		if err := rows.Scan(&result); err != nil {
			return "", err
		}
		if result == "ok" {
			return "", nil
		}
		return result, nil
	})
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return fmt.Errorf("integrity_check failed: %s", strings.Join(problems, "; "))
	}

	problems, err = pragmaRows(ctx, db, "foreign_key_check", func(rows *sql.Rows) (string, error) {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent), nil
	})
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return fmt.Errorf("foreign_key_check failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// pragmaRows runs PRAGMA name and collects the non-empty strings describe
// returns for its rows.
func pragmaRows(ctx context.Context, db *sql.DB, name string, describe func(*sql.Rows) (string, error)) ([]string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA "+name)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", name, err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		msg, err := describe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s result: %w", name, err)
		}
		if msg != "" {
			problems = append(problems, msg)
		}
	}
	return problems, rows.Err()
}
