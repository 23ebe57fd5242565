package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/clonesim/internal/sim"
)

// InMemoryRunStore implements RunStore without persistence. It backs the
// MCP server when no database is configured.
type InMemoryRunStore struct {
	mu     sync.RWMutex
	runs   map[string]Run
	tables map[string]*sim.Table
}

var _ RunStore = (*InMemoryRunStore)(nil)

// NewInMemoryRunStore creates an empty store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs:   make(map[string]Run),
		tables: make(map[string]*sim.Table),
	}
}

// SaveRun stores a copy of the run and its table.
func (s *InMemoryRunStore) SaveRun(ctx context.Context, run Run, table *sim.Table) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, exists := s.runs[run.ID]; exists {
		return nil, fmt.Errorf("run %s already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Lines = slices.Clone(table.Lines)
	run.Stages = slices.Clone(table.Stages)
	run.Rows = len(table.Rows)

	s.runs[run.ID] = run
	s.tables[run.ID] = &sim.Table{
		Lines:  run.Lines,
		Stages: run.Stages,
		Rows:   slices.Clone(table.Rows),
	}
	return &run, nil
}

// ListRuns returns all runs, newest first.
func (s *InMemoryRunStore) ListRuns(ctx context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	slices.SortFunc(runs, func(a, b Run) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return runs, nil
}

// GetRun resolves a full identifier or a unique prefix of one.
func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(id)
}

func (s *InMemoryRunStore) resolve(id string) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrNotFound)
	}
	if r, ok := s.runs[id]; ok {
		return &r, nil
	}

	var match *Run
	for key, r := range s.runs {
		if !strings.HasPrefix(key, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
		}
		match = &r
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

// LoadTable returns a copy of the stored table.
func (s *InMemoryRunStore) LoadTable(ctx context.Context, id string) (*sim.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	t := s.tables[run.ID]
	return &sim.Table{Lines: t.Lines, Stages: t.Stages, Rows: slices.Clone(t.Rows)}, nil
}

// DeleteRun removes a run.
func (s *InMemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.resolve(id)
	if err != nil {
		return err
	}
	delete(s.runs, run.ID)
	delete(s.tables, run.ID)
	return nil
}

// Close is a no-op.
func (s *InMemoryRunStore) Close() error {
	return nil
}
