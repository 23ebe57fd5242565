package sim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/nvandessel/clonesim/internal/rng"
)

func TestPrey(t *testing.T) {
	cfg := deterministicConfig(
		Line{Name: "eaten", Matrices: []*mat.Dense{identity(2)}, Initial: [][]float64{{10, 4}}, PredRate: 0.25},
		Line{Name: "spared", Matrices: []*mat.Dense{identity(1)}, Initial: [][]float64{{6}}},
	)
	p := newPatch(0, &cfg)
	p.Density = [][]float64{{10, 4}, {6}}

	prey(&cfg, p)

	if p.Density[0][0] != 7.5 || p.Density[0][1] != 3 {
		t.Errorf("expected every stage of the preyed line scaled by 0.75, got %v", p.Density[0])
	}
	if p.Density[1][0] != 6 {
		t.Errorf("expected a line without predation untouched, got %v", p.Density[1])
	}
	if p.N != 16.5 {
		t.Errorf("expected the patch total refreshed to 16.5, got %g", p.N)
	}
}

func TestRunReplicate_PredationDecay(t *testing.T) {
	cfg := deterministicConfig(Line{
		Name:     "a",
		Matrices: []*mat.Dense{identity(1)},
		Initial:  [][]float64{{100}},
		PredRate: 0.1,
	})
	cfg.MaxT = 8

	rows, _, err := runReplicate(&cfg, 0, rng.ForReplicate(cfg.Seed, 0), nil)
	if err != nil {
		t.Fatalf("runReplicate: %v", err)
	}
	for step := 0; step <= cfg.MaxT; step++ {
		got := densities(rows, 0, step, 0, 0)
		want := 100 * math.Pow(0.9, float64(step))
		if len(got) != 1 || !closeRel(got[0], want, 1e-12) {
			t.Errorf("t=%d: got %v, want %g", step, got, want)
		}
	}
}
