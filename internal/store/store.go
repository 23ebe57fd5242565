// Package store persists simulation runs and their result tables.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/clonesim/internal/sim"
)

var (
	// ErrNotFound is returned when no run matches an identifier.
	ErrNotFound = errors.New("run not found")

	// ErrAmbiguous is returned when an identifier prefix matches several runs.
	ErrAmbiguous = errors.New("run identifier is ambiguous")
)

// Run is the metadata of a stored run.
type Run struct {
	ID         string       `json:"id"`
	Name       string       `json:"name,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	Seed       uint64       `json:"seed"`
	Replicates int          `json:"replicates"`
	MaxT       int          `json:"max_t"`
	Lines      []string     `json:"lines"`
	Stages     []int        `json:"stages"`
	Rows       int          `json:"rows"`
	RunFile    string       `json:"run_file,omitempty"`
	Stats      sim.RunStats `json:"stats"`
}

// RunStore stores runs with their density tables.
type RunStore interface {
	// SaveRun stores the run and its table. An empty ID is replaced by a
	// new UUID; the stored run is returned.
	SaveRun(ctx context.Context, run Run, table *sim.Table) (*Run, error)

	// ListRuns returns all runs, newest first.
	ListRuns(ctx context.Context) ([]Run, error)

	// GetRun resolves a full identifier or a unique prefix of one.
	GetRun(ctx context.Context, id string) (*Run, error)

	// LoadTable returns the density table of a run.
	LoadTable(ctx context.Context, id string) (*sim.Table, error)

	// DeleteRun removes a run and its densities.
	DeleteRun(ctx context.Context, id string) error

	Close() error
}
