package sim

import (
	"fmt"
	"math"

	"github.com/nvandessel/clonesim/internal/rng"
)

// ReplicateStats counts what happened during one replicate.
type ReplicateStats struct {
	// Steps is the last time step simulated.
	Steps int

	// EarlyStop is set when every patch went empty before MaxT.
	EarlyStop bool

	CapClears       int
	DeathClears     int
	ScheduledClears int
	LineExtinctions int
}

func (s *ReplicateStats) countClear(r ClearReason) {
	switch r {
	case ClearCap:
		s.CapClears++
	case ClearDeath:
		s.DeathClears++
	case ClearScheduled:
		s.ScheduledClears++
	}
}

// Clears returns the total number of patch clears.
func (s ReplicateStats) Clears() int {
	return s.CapClears + s.DeathClears + s.ScheduledClears
}

// replicate is one independent realization. It owns its stream, patches and
// scratch space; nothing in it is shared with other replicates.
type replicate struct {
	cfg     *Config
	rep     int
	sink    EventSink
	patches []*Patch

	proj *projector
	disp *disperser
	life *lifecycle

	rows  []Row
	stats ReplicateStats
}

func newReplicate(cfg *Config, rep int, stream *rng.Stream, sink EventSink) *replicate {
	if sink == nil {
		sink = discardSink{}
	}
	r := &replicate{
		cfg:  cfg,
		rep:  rep,
		sink: sink,
		proj: newProjector(cfg, stream),
		disp: newDisperser(cfg, stream),
		life: newLifecycle(cfg, stream),
	}
	r.patches = make([]*Patch, cfg.Patches())
	for i := range r.patches {
		r.patches[i] = newPatch(i, cfg)
	}
	return r
}

// runReplicate simulates replicate rep from t = 0 to MaxT and returns its
// snapshot rows in (time, patch, line, stage) order.
func runReplicate(cfg *Config, rep int, stream *rng.Stream, sink EventSink) ([]Row, ReplicateStats, error) {
	r := newReplicate(cfg, rep, stream, sink)
	if err := r.run(); err != nil {
		return nil, r.stats, err
	}
	r.sink.ReplicateDone(ReplicateEvent{Rep: rep, Stats: r.stats})
	return r.rows, r.stats, nil
}

func (r *replicate) run() error {
	cfg := r.cfg
	for _, p := range r.patches {
		r.life.plant(p, false)
		if err := r.clamp(p, 0); err != nil {
			return err
		}
	}
	r.snapshot(0)

	for t := 1; t <= cfg.MaxT; t++ {
		if err := r.step(t); err != nil {
			return err
		}
		r.stats.Steps = t

		empty := r.empty()
		if t%cfg.SaveEvery == 0 || t == cfg.MaxT || empty {
			r.snapshot(t)
		}
		if empty {
			if t < cfg.MaxT {
				r.stats.EarlyStop = true
			}
			break
		}
	}
	return nil
}

// step advances every patch by one time step: growth, predation, dispersal,
// the extinction floor and finally the plant lifecycle.
func (r *replicate) step(t int) error {
	for _, p := range r.patches {
		r.proj.project(p)
		prey(r.cfg, p)
	}
	r.disp.disperse(r.patches)

	for _, p := range r.patches {
		if err := r.clamp(p, t); err != nil {
			return err
		}
	}

	for _, p := range r.patches {
		age, n := p.Age, p.N
		reason := r.life.step(p, t)
		if reason == ClearNone {
			continue
		}
		r.stats.countClear(reason)
		r.sink.PatchCleared(ClearEvent{
			Rep:    r.rep,
			Time:   t,
			Patch:  p.Index,
			Age:    age,
			N:      n,
			Reason: reason,
			NewK:   p.K,
		})
		if err := r.clamp(p, t); err != nil {
			return err
		}
	}
	return nil
}

// clamp applies the extinction floor to p: a line whose total is below
// ExtinctN is zeroed entirely, then any remaining stage below it is zeroed.
// A line left with nothing is marked extinct until the patch is cleared.
func (r *replicate) clamp(p *Patch, t int) error {
	floor := r.cfg.ExtinctN
	for l, row := range p.Density {
		var total float64
		for s, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: replicate %d, t=%d, patch %d, line %q, stage %d: %g",
					ErrNonFinite, r.rep, t, p.Index, r.cfg.Lines[l].Name, s, v)
			}
			total += v
		}
		survivors := false
		if total < floor {
			clear(row)
		} else {
			for s, v := range row {
				if v < floor {
					row[s] = 0
				} else if v > 0 {
					survivors = true
				}
			}
		}
		// A line with no stage left at or above the floor is extinct on
		// this plant, even when its total was not below the floor.
		if total > 0 && !survivors {
			p.Extinct[l] = true
			r.stats.LineExtinctions++
			r.sink.LineExtinct(ExtinctionEvent{
				Rep:   r.rep,
				Time:  t,
				Patch: p.Index,
				Line:  r.cfg.Lines[l].Name,
				N:     total,
			})
		}
	}
	p.Total()
	return nil
}

func (r *replicate) empty() bool {
	for _, p := range r.patches {
		if !p.Empty() {
			return false
		}
	}
	return true
}

// snapshot appends the full density table at time t.
func (r *replicate) snapshot(t int) {
	for _, p := range r.patches {
		for l, row := range p.Density {
			for s, v := range row {
				r.rows = append(r.rows, Row{
					Rep:     r.rep,
					Time:    t,
					Patch:   p.Index,
					Line:    l,
					Stage:   s,
					Density: v,
				})
			}
		}
	}
}
