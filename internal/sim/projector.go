package sim

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nvandessel/clonesim/internal/constants"
	"github.com/nvandessel/clonesim/internal/rng"
)

// projector advances every line of a patch by one step of stage-structured
// growth. It keeps scratch space, so each replicate owns one.
type projector struct {
	cfg     *Config
	stream  *rng.Stream
	scratch []float64
}

func newProjector(cfg *Config, stream *rng.Stream) *projector {
	maxStages := 0
	for _, l := range cfg.Lines {
		maxStages = max(maxStages, l.Stages())
	}
	return &projector{cfg: cfg, stream: stream, scratch: make([]float64, maxStages)}
}

// regulation is the Beverton-Holt factor 1/(1+N/K). An infinite K yields 1.
func regulation(n, k float64) float64 {
	return 1 / (1 + n/k)
}

// project replaces p.Density with S(N,K) * M(age) . density for every line,
// perturbed by demographic noise when enabled. N is taken from the patch
// before any line is projected.
func (pr *projector) project(p *Patch) {
	s := regulation(p.N, p.K)
	age := matrixAge(p.Age, pr.cfg.MaxPlantAge)

	for l, line := range pr.cfg.Lines {
		dens := p.Density[l]
		n := len(dens)
		next := pr.scratch[:n]

		x := mat.NewVecDense(n, dens)
		y := mat.NewVecDense(n, next)
		y.MulVec(line.Matrices[age], x)

		for i, v := range next {
			v *= s
			if pr.cfg.DemogError {
				v = pr.demographicNoise(v)
			}
			dens[i] = v
		}
	}
	p.Total()
}

// demographicNoise draws a realized count with expectation x. Small counts
// are Poisson; large ones use a mean-one log-normal factor with the same
// variance as the Poisson.
func (pr *projector) demographicNoise(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x <= constants.PoissonCutoff {
		return pr.stream.Poisson(x)
	}
	sigma := math.Sqrt(math.Log1p(1 / x))
	return x * pr.stream.MeanOneLogNormal(sigma)
}
