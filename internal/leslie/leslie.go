// Package leslie builds stage-structured projection matrices and provides the
// numerical helpers that go with them: the stable stage distribution and the
// logit transforms used by the dispersal model.
//
// Every function in this package is pure; none of them touch shared state.
package leslie

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimension is returned when parameter vectors disagree in length.
	ErrDimension = errors.New("leslie: dimension mismatch")

	// ErrInvalidParameter is returned for out-of-range survival, reproduction
	// or instar values.
	ErrInvalidParameter = errors.New("leslie: invalid parameter")

	// ErrDegenerate is returned when a matrix has no real positive dominant
	// eigenvalue or its dominant eigenvector carries no positive mass.
	ErrDegenerate = errors.New("leslie: degenerate projection matrix")

	// ErrNoConvergence is returned when the eigen-decomposition fails.
	ErrNoConvergence = errors.New("leslie: eigen-decomposition did not converge")
)

// BuildProjection constructs a stage-structured projection matrix.
//
// Juveniles pass through sum(instarDays) day-classes, each advancing to the
// next with probability survJuv; the last juvenile class advances into the
// first adult stage. Adult stage j advances to stage j+1 with survAdult[j],
// except the terminal adult stage which remains in place with survAdult[last].
// Adult stage j puts repro[j] offspring into stage 0.
func BuildProjection(instarDays []int, survJuv float64, survAdult, repro []float64) (*mat.Dense, error) {
	if len(survAdult) != len(repro) {
		return nil, fmt.Errorf("%w: surv_adult has %d entries, repro has %d",
			ErrDimension, len(survAdult), len(repro))
	}
	if len(survAdult) == 0 {
		return nil, fmt.Errorf("%w: at least one adult stage is required", ErrDimension)
	}
	if survJuv < 0 || survJuv > 1 {
		return nil, fmt.Errorf("%w: surv_juv must be in [0,1], got %g", ErrInvalidParameter, survJuv)
	}

	nJuv := 0
	for i, d := range instarDays {
		if d < 1 {
			return nil, fmt.Errorf("%w: instar_days[%d] must be positive, got %d", ErrInvalidParameter, i, d)
		}
		nJuv += d
	}
	for i := range survAdult {
		if survAdult[i] < 0 || survAdult[i] > 1 {
			return nil, fmt.Errorf("%w: surv_adult[%d] must be in [0,1], got %g", ErrInvalidParameter, i, survAdult[i])
		}
		if repro[i] < 0 {
			return nil, fmt.Errorf("%w: repro[%d] must be non-negative, got %g", ErrInvalidParameter, i, repro[i])
		}
	}

	nAdult := len(survAdult)
	n := nJuv + nAdult
	m := mat.NewDense(n, n, nil)

	for i := 0; i < nJuv; i++ {
		m.Set(i+1, i, survJuv)
	}
	for j := 0; j < nAdult; j++ {
		stage := nJuv + j
		if j < nAdult-1 {
			m.Set(stage+1, stage, survAdult[j])
		} else {
			m.Set(stage, stage, survAdult[j])
		}
		// Add rather than set: with no juvenile classes the first adult
		// stage is stage 0 and its survival already sits on this row.
		m.Set(0, stage, m.At(0, stage)+repro[j])
	}

	return m, nil
}

// AgeStack returns one projection matrix per plant age 0..maxAge, all equal
// to m. Each entry is an independent copy so callers may adjust individual
// ages afterwards.
func AgeStack(m *mat.Dense, maxAge int) []*mat.Dense {
	if maxAge < 0 {
		return nil
	}
	stack := make([]*mat.Dense, maxAge+1)
	for a := range stack {
		stack[a] = mat.DenseCopyOf(m)
	}
	return stack
}
