package sim

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/clonesim/internal/rng"
)

// levelTrace matches logging.LevelTrace.
const levelTrace = slog.LevelDebug - 4

// RunOptions carries the collaborators of a run. The zero value is usable.
type RunOptions struct {
	// Logger receives run-level progress. Nil discards.
	Logger *slog.Logger

	// Events receives lifecycle events from every replicate. Nil discards.
	Events EventSink

	// Progress is called after each replicate completes when
	// Config.ShowProgress is set. It may be called from several goroutines.
	Progress func(done, total int)
}

// RunStats aggregates ReplicateStats over a run.
type RunStats struct {
	Replicates      int
	Workers         int
	EarlyStops      int
	CapClears       int
	DeathClears     int
	ScheduledClears int
	LineExtinctions int
	Elapsed         time.Duration
}

func (s *RunStats) add(r ReplicateStats) {
	s.Replicates++
	if r.EarlyStop {
		s.EarlyStops++
	}
	s.CapClears += r.CapClears
	s.DeathClears += r.DeathClears
	s.ScheduledClears += r.ScheduledClears
	s.LineExtinctions += r.LineExtinctions
}

// Result is the output of Simulate.
type Result struct {
	Table *Table
	Stats RunStats
}

// Workers returns the number of replicates run at once for cfg: NThreads
// bounded by the CPU count and by NReps. NThreads <= 0 means one per CPU.
func Workers(cfg *Config) int {
	n := runtime.NumCPU()
	if cfg.NThreads > 0 {
		n = min(cfg.NThreads, n)
	}
	return max(1, min(n, cfg.NReps))
}

type replicateResult struct {
	rows  []Row
	stats ReplicateStats
}

// Simulate validates cfg and runs its NReps replicates on a bounded worker
// pool. Replicate r always draws from rng.ForReplicate(cfg.Seed, r), so the
// table is the same for any worker count.
//
// Cancelling ctx stops dispatching new replicates; those already running
// finish, and Simulate returns the context error without a table. A
// replicate failing with ErrNonFinite aborts the run the same way.
func Simulate(ctx context.Context, cfg Config, opts RunOptions) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	events := opts.Events
	if events == nil {
		events = discardSink{}
	}

	workers := Workers(&cfg)
	logger.Info("starting simulation",
		"replicates", cfg.NReps,
		"workers", workers,
		"patches", cfg.Patches(),
		"lines", len(cfg.Lines),
		"max_t", cfg.MaxT,
		"seed", cfg.Seed)

	start := time.Now()
	results := make([]replicateResult, cfg.NReps)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

dispatch:
	for rep := 0; rep < cfg.NReps; rep++ {
		select {
		case <-gctx.Done():
			break dispatch
		default:
		}

		g.Go(func() error {
			rows, stats, err := runReplicate(&cfg, rep, rng.ForReplicate(cfg.Seed, rep), events)
			if err != nil {
				return err
			}
			results[rep] = replicateResult{rows: rows, stats: stats}

			n := int(done.Add(1))
			logger.Log(gctx, levelTrace, "replicate done",
				"rep", rep, "steps", stats.Steps, "clears", stats.Clears())
			if cfg.ShowProgress && opts.Progress != nil {
				opts.Progress(n, cfg.NReps)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("simulation aborted: %w", err)
	}
	if err := ctx.Err(); err != nil && int(done.Load()) < cfg.NReps {
		logger.Warn("simulation interrupted", "completed", done.Load(), "replicates", cfg.NReps)
		return nil, fmt.Errorf("simulation interrupted after %d of %d replicates: %w",
			done.Load(), cfg.NReps, err)
	}

	stats := RunStats{Workers: workers}
	total := 0
	for _, r := range results {
		total += len(r.rows)
	}
	rows := make([]Row, 0, total)
	for _, r := range results {
		rows = append(rows, r.rows...)
		stats.add(r.stats)
	}
	sortRows(rows)
	stats.Elapsed = time.Since(start)

	table := &Table{Lines: cfg.LineNames(), Rows: rows}
	for _, l := range cfg.Lines {
		table.Stages = append(table.Stages, l.Stages())
	}

	logger.Info("simulation complete",
		"replicates", stats.Replicates,
		"rows", len(rows),
		"early_stops", stats.EarlyStops,
		"clears", stats.CapClears+stats.DeathClears+stats.ScheduledClears,
		"elapsed", stats.Elapsed)
	return &Result{Table: table, Stats: stats}, nil
}
