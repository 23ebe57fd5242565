package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/clonesim/internal/sim"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunStore implements RunStore on a single SQLite database file.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore opens (creating if needed) the database at dbPath.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string {
	return s.dbPath
}

// SaveRun stores the run and its densities in one transaction.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run Run, table *sim.Table) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Lines = table.Lines
	run.Stages = table.Stages
	run.Rows = len(table.Rows)

	lines, err := json.Marshal(run.Lines)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lines: %w", err)
	}
	stages, err := json.Marshal(run.Stages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stages: %w", err)
	}
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, name, created_at, seed, replicates, max_t, lines, stages, row_count, run_file, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, nullString(run.Name), run.CreatedAt.UTC().Format(timeLayout),
		int64(run.Seed), run.Replicates, run.MaxT,
		string(lines), string(stages), run.Rows,
		nullString(run.RunFile), string(stats))
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO densities (run_id, rep, time, patch, line, stage, density)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare density insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range table.Rows {
		if _, err := stmt.ExecContext(ctx, run.ID, r.Rep, r.Time, r.Patch, r.Line, r.Stage, r.Density); err != nil {
			return nil, fmt.Errorf("failed to insert density row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}
	return &run, nil
}

const runColumns = `id, name, created_at, seed, replicates, max_t, lines, stages, row_count, run_file, stats`

// ListRuns returns all runs, newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun resolves a full identifier or a unique prefix of one.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRunUnlocked(ctx, id)
}

func (s *SQLiteRunStore) getRunUnlocked(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR substr(id, 1, ?) = ? ORDER BY id LIMIT 2`,
		id, len(id), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run.ID == id {
			return run, nil
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
}

// LoadTable returns the density table of a run in canonical row order.
func (s *SQLiteRunStore) LoadTable(ctx context.Context, id string) (*sim.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := s.getRunUnlocked(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rep, time, patch, line, stage, density FROM densities
		WHERE run_id = ?
		ORDER BY rep, time, patch, line, stage`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query densities: %w", err)
	}
	defer rows.Close()

	table := &sim.Table{
		Lines:  run.Lines,
		Stages: run.Stages,
		Rows:   make([]sim.Row, 0, run.Rows),
	}
	for rows.Next() {
		var r sim.Row
		if err := rows.Scan(&r.Rep, &r.Time, &r.Patch, &r.Line, &r.Stage, &r.Density); err != nil {
			return nil, fmt.Errorf("failed to scan density row: %w", err)
		}
		table.Rows = append(table.Rows, r)
	}
	return table, rows.Err()
}

// DeleteRun removes a run; its densities cascade.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.getRunUnlocked(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*Run, error) {
	var (
		run           Run
		name, runFile sql.NullString
		created       string
		seed          int64
		lines, stages string
		statsJSON     sql.NullString
	)
	if err := sc.Scan(&run.ID, &name, &created, &seed, &run.Replicates, &run.MaxT,
		&lines, &stages, &run.Rows, &runFile, &statsJSON); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Name = name.String
	run.RunFile = runFile.String
	run.Seed = uint64(seed)

	var err error
	if run.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("run %s: bad created_at %q: %w", run.ID, created, err)
	}
	if err := json.Unmarshal([]byte(lines), &run.Lines); err != nil {
		return nil, fmt.Errorf("run %s: bad lines: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(stages), &run.Stages); err != nil {
		return nil, fmt.Errorf("run %s: bad stages: %w", run.ID, err)
	}
	if statsJSON.Valid && strings.TrimSpace(statsJSON.String) != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &run.Stats); err != nil {
			return nil, fmt.Errorf("run %s: bad stats: %w", run.ID, err)
		}
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
