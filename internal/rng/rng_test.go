package rng

import (
	"math"
	"testing"
)

func TestForReplicate_Deterministic(t *testing.T) {
	a := ForReplicate(42, 7)
	b := ForReplicate(42, 7)
	for i := 0; i < 100; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("draw %d differs: %g vs %g", i, x, y)
		}
	}
}

func TestForReplicate_DistinctStreams(t *testing.T) {
	a := ForReplicate(42, 0)
	b := ForReplicate(42, 1)
	c := ForReplicate(43, 0)

	same := 0
	for i := 0; i < 50; i++ {
		x, y, z := a.Float64(), b.Float64(), c.Float64()
		if x == y || x == z {
			same++
		}
	}
	if same > 0 {
		t.Errorf("expected independent streams, found %d identical draws", same)
	}
}

func TestLogNormal_ZeroSD(t *testing.T) {
	s := New(1, 2)
	if got := s.LogNormal(250, 0); got != 250 {
		t.Errorf("expected exact mean with zero sd, got %g", got)
	}
	if got := s.LogNormal(math.Inf(1), 0); !math.IsInf(got, 1) {
		t.Errorf("expected +Inf to pass through, got %g", got)
	}
}

func TestLogNormal_Moments(t *testing.T) {
	s := New(3, 4)
	const n = 200000
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		x := s.LogNormal(100, 20)
		if x <= 0 {
			t.Fatalf("log-normal draw must be positive, got %g", x)
		}
		sum += x
		sumSq += x * x
	}
	mean := sum / n
	sd := math.Sqrt(sumSq/n - mean*mean)
	if math.Abs(mean-100) > 1 {
		t.Errorf("expected mean near 100, got %g", mean)
	}
	if math.Abs(sd-20) > 1 {
		t.Errorf("expected sd near 20, got %g", sd)
	}
}

func TestBeta_InUnitInterval(t *testing.T) {
	s := New(5, 6)
	var sum float64
	const n = 50000
	for i := 0; i < n; i++ {
		x := s.Beta(2, 6)
		if x < 0 || x > 1 {
			t.Fatalf("beta draw out of range: %g", x)
		}
		sum += x
	}
	if mean := sum / n; math.Abs(mean-0.25) > 0.01 {
		t.Errorf("expected mean near 0.25, got %g", mean)
	}
}

func TestPoisson(t *testing.T) {
	s := New(7, 8)
	if got := s.Poisson(0); got != 0 {
		t.Errorf("expected 0 for zero mean, got %g", got)
	}

	var sum float64
	const n = 50000
	for i := 0; i < n; i++ {
		x := s.Poisson(4.5)
		if x != math.Trunc(x) || x < 0 {
			t.Fatalf("poisson draw must be a non-negative integer, got %g", x)
		}
		sum += x
	}
	if mean := sum / n; math.Abs(mean-4.5) > 0.1 {
		t.Errorf("expected mean near 4.5, got %g", mean)
	}
}

func TestMeanOneLogNormal(t *testing.T) {
	s := New(9, 10)
	if got := s.MeanOneLogNormal(0); got != 1 {
		t.Errorf("expected exactly 1 for zero sigma, got %g", got)
	}

	var sum float64
	const n = 200000
	for i := 0; i < n; i++ {
		sum += s.MeanOneLogNormal(0.3)
	}
	if mean := sum / n; math.Abs(mean-1) > 0.01 {
		t.Errorf("expected mean near 1, got %g", mean)
	}
}
