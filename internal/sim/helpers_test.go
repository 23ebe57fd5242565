package sim

import (
	"math"
	"sync"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// deterministicConfig returns a one-replicate run with regulation, plant
// death and the extinction floor all switched off.
func deterministicConfig(lines ...Line) Config {
	return Config{
		NReps:           1,
		MaxPlantAge:     0,
		MaxN:            1e12,
		MaxT:            10,
		SaveEvery:       1,
		MeanK:           math.Inf(1),
		SdK:             0,
		DeathProp:       1,
		Shape1DeathMort: 1,
		Shape2DeathMort: 1,
		ExtinctN:        0,
		Reseed:          ReseedInitial,
		Lines:           lines,
		NThreads:        1,
		Seed:            7,
	}
}

// stochasticConfig returns a multi-patch, two-line run with every source of
// noise enabled.
func stochasticConfig() Config {
	fast := mat.NewDense(3, 3, []float64{
		0, 1.2, 2.5,
		0.8, 0, 0,
		0, 0.85, 0.8,
	})
	slow := mat.NewDense(2, 2, []float64{
		0.3, 1.8,
		0.7, 0.75,
	})
	return Config{
		NReps:           6,
		MaxPlantAge:     2,
		MaxN:            900,
		CheckForClear:   []int{10, 20, 30},
		ClearMinN:       25,
		MaxT:            40,
		SaveEvery:       3,
		MeanK:           2000,
		SdK:             500,
		DeathProp:       0.8,
		Shape1DeathMort: 2,
		Shape2DeathMort: 6,
		DispError:       true,
		DemogError:      true,
		SigmaX:          0.6,
		Rho:             0.4,
		ExtinctN:        1,
		Reseed:          ReseedInitial,
		Lines: []Line{
			{
				Name:     "fast",
				Matrices: stack(fast, 2),
				Initial:  [][]float64{{20, 5, 5}, {0, 0, 0}, {10, 2, 1}, {4, 4, 4}},
				AlateB0:  -3,
				AlateB1:  0.5,
				DispRate: 0.6,
				DispMort: 0.2,
				PredRate: 0.05,
			},
			{
				Name:      "slow",
				Matrices:  stack(slow, 2),
				Initial:   [][]float64{{3, 3}, {30, 10}, {0, 0}, {6, 1}},
				AlateB0:   -2,
				AlateB1:   0.3,
				DispRate:  0.4,
				DispMort:  0.1,
				DispStart: 2,
				PredRate:  0.02,
			},
		},
		NThreads: 1,
		Seed:     2024,
	}
}

func stack(m *mat.Dense, maxAge int) []*mat.Dense {
	out := make([]*mat.Dense, maxAge+1)
	for i := range out {
		out[i] = mat.DenseCopyOf(m)
	}
	return out
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// densities extracts the stage vector of (rep, time, patch, line) from rows.
func densities(rows []Row, rep, time, patch, line int) []float64 {
	var out []float64
	for _, r := range rows {
		if r.Rep == rep && r.Time == time && r.Patch == patch && r.Line == line {
			out = append(out, r.Density)
		}
	}
	return out
}

func closeRel(a, b, tol float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= tol*math.Max(math.Abs(a), math.Abs(b))
}

// recordingSink collects every event it receives.
type recordingSink struct {
	mu          sync.Mutex
	clears      []ClearEvent
	extinctions []ExtinctionEvent
	done        []ReplicateEvent
}

func (s *recordingSink) PatchCleared(e ClearEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears = append(s.clears, e)
}

func (s *recordingSink) LineExtinct(e ExtinctionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extinctions = append(s.extinctions, e)
}

func (s *recordingSink) ReplicateDone(e ReplicateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, e)
}

func mustSimulate(t *testing.T, cfg Config, opts RunOptions) *Result {
	t.Helper()
	res, err := Simulate(t.Context(), cfg, opts)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	return res
}
