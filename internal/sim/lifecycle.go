package sim

import (
	"github.com/nvandessel/clonesim/internal/rng"
)

// lifecycle runs the plant state machine of every patch.
//
// Each step an alive patch draws a death threshold from
// Beta(Shape1DeathMort, Shape2DeathMort) and then checks, first match wins:
//
//	cap        N >= MaxN
//	death      draw > DeathProp
//	scheduled  t is a check_for_clear step and N < ClearMinN
//
// A cleared patch is replanted at once: new K, age 0, reseeded densities.
// Otherwise it ages by one step.
type lifecycle struct {
	cfg       *Config
	stream    *rng.Stream
	scheduled map[int]bool
}

func newLifecycle(cfg *Config, stream *rng.Stream) *lifecycle {
	sched := make(map[int]bool, len(cfg.CheckForClear))
	for _, t := range cfg.CheckForClear {
		sched[t] = true
	}
	return &lifecycle{cfg: cfg, stream: stream, scheduled: sched}
}

// guard returns the reason patch p must be cleared at step t, or ClearNone.
func (lc *lifecycle) guard(p *Patch, t int) ClearReason {
	draw := lc.stream.Beta(lc.cfg.Shape1DeathMort, lc.cfg.Shape2DeathMort)
	switch {
	case p.N >= lc.cfg.MaxN:
		return ClearCap
	case draw > lc.cfg.DeathProp:
		return ClearDeath
	case lc.scheduled[t] && p.N < lc.cfg.ClearMinN:
		return ClearScheduled
	}
	return ClearNone
}

// plant sets up a fresh plant on p: a new carrying capacity, age 0 and
// densities seeded from the initial configuration or left empty.
func (lc *lifecycle) plant(p *Patch, empty bool) {
	p.K = lc.stream.LogNormal(lc.cfg.MeanK, lc.cfg.SdK)
	p.Age = 0
	p.seed(lc.cfg, empty)
	p.State = Alive
}

// step advances the lifecycle of p and returns the clear reason, if any.
func (lc *lifecycle) step(p *Patch, t int) ClearReason {
	if p.State != Alive {
		return ClearNone
	}
	reason := lc.guard(p, t)
	if reason == ClearNone {
		p.Age++
		return ClearNone
	}
	p.State = Cleared
	lc.plant(p, lc.cfg.Reseed == ReseedEmpty)
	return reason
}
