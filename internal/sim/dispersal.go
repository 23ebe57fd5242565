package sim

import (
	"math"

	"github.com/nvandessel/clonesim/internal/leslie"
	"github.com/nvandessel/clonesim/internal/rng"
)

// disperser moves winged morphs between patches. Emigration is computed for
// every patch from the pre-dispersal state before any density changes, so the
// outcome does not depend on the order patches are visited in.
type disperser struct {
	cfg    *Config
	stream *rng.Stream

	// emigrants[p][l][s] holds the density leaving patch p this step.
	emigrants [][][]float64
	noise     []float64
	weights   []float64
	alive     []int
}

func newDisperser(cfg *Config, stream *rng.Stream) *disperser {
	patches := cfg.Patches()
	em := make([][][]float64, patches)
	for p := range em {
		em[p] = make([][]float64, len(cfg.Lines))
		for l, line := range cfg.Lines {
			em[p][l] = make([]float64, line.Stages())
		}
	}
	return &disperser{
		cfg:       cfg,
		stream:    stream,
		emigrants: em,
		noise:     make([]float64, len(cfg.Lines)),
		weights:   make([]float64, patches),
		alive:     make([]int, 0, patches),
	}
}

// alateFraction is the expected share of line density that develops wings,
// given the patch total n and the line's process noise z.
func alateFraction(line *Line, n, sigmaX, z float64) float64 {
	return leslie.InvLogitScalar(line.AlateB0 + line.AlateB1*math.Log(n+1) + sigmaX*z)
}

// disperse runs one dispersal step over all patches.
func (d *disperser) disperse(patches []*Patch) {
	d.alive = d.alive[:0]
	for _, p := range patches {
		if p.State == Alive {
			d.alive = append(d.alive, p.Index)
		}
	}
	if len(d.alive) < 2 {
		return
	}

	for _, pi := range d.alive {
		d.emigrate(patches[pi])
	}
	for _, pi := range d.alive {
		d.settle(patches, pi)
	}
	for _, pi := range d.alive {
		patches[pi].Total()
	}
}

// emigrate fills d.emigrants for patch p and removes them from it.
func (d *disperser) emigrate(p *Patch) {
	cfg := d.cfg
	if cfg.DispError {
		// One shared latent per patch gives the lines correlation rho.
		z0 := d.stream.Normal()
		a, b := math.Sqrt(cfg.Rho), math.Sqrt(1-cfg.Rho)
		for l := range cfg.Lines {
			d.noise[l] = a*z0 + b*d.stream.Normal()
		}
	} else {
		clear(d.noise)
	}

	em := d.emigrants[p.Index]
	for l := range cfg.Lines {
		line := &cfg.Lines[l]
		if p.Age < line.DispStart || line.DispRate == 0 {
			clear(em[l])
			continue
		}
		frac := line.DispRate * alateFraction(line, p.N, cfg.SigmaX, d.noise[l])
		for s, v := range p.Density[l] {
			em[l][s] = frac * v
		}
	}
	for l := range em {
		for s, v := range em[l] {
			p.Density[l][s] -= v
		}
	}
}

// settle distributes the surviving emigrants of patch src over the other
// living patches.
func (d *disperser) settle(patches []*Patch, src int) {
	cfg := d.cfg
	dest := len(d.alive) - 1
	em := d.emigrants[src]

	for l := range cfg.Lines {
		line := &cfg.Lines[l]
		surv := 1 - line.DispMort

		if cfg.DispError {
			d.dirichlet(src)
		}
		for _, pi := range d.alive {
			if pi == src {
				continue
			}
			if patches[pi].Extinct[l] {
				continue
			}
			share := 1 / float64(dest)
			if cfg.DispError {
				share = d.weights[pi]
			}
			row := patches[pi].Density[l]
			for s, v := range em[l] {
				row[s] += surv * v * share
			}
		}
	}
}

// dirichlet fills d.weights for every living patch other than src with a
// flat Dirichlet draw, built from normalized unit exponentials.
func (d *disperser) dirichlet(src int) {
	var sum float64
	for _, pi := range d.alive {
		if pi == src {
			d.weights[pi] = 0
			continue
		}
		w := d.stream.Exp()
		d.weights[pi] = w
		sum += w
	}
	if sum == 0 {
		return
	}
	for _, pi := range d.alive {
		d.weights[pi] /= sum
	}
}
