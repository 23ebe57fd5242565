package leslie

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/nvandessel/clonesim/internal/constants"
)

// dominant factorizes m and returns the index of its dominant eigenvalue
// together with the decomposition. Dominance is by modulus; ties go to the
// eigenvalue with the larger real part, so a periodic matrix still reports its
// positive root.
func dominant(m mat.Matrix) (int, []complex128, *mat.Eigen, error) {
	r, c := m.Dims()
	if r != c || r == 0 {
		return 0, nil, nil, fmt.Errorf("%w: projection matrix must be square and non-empty, got %dx%d", ErrDimension, r, c)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(m, mat.EigenRight); !ok {
		return 0, nil, nil, ErrNoConvergence
	}
	values := eig.Values(nil)

	best := 0
	for i := 1; i < len(values); i++ {
		mi, mb := cmplx.Abs(values[i]), cmplx.Abs(values[best])
		switch {
		case mi > mb*(1+constants.EigenTieTolerance):
			best = i
		case mi >= mb*(1-constants.EigenTieTolerance) && real(values[i]) > real(values[best]):
			best = i
		}
	}

	lambda := values[best]
	if math.Abs(imag(lambda)) > constants.EigenImagTolerance || real(lambda) <= 0 {
		return 0, nil, nil, fmt.Errorf("%w: dominant eigenvalue %v is not real and positive", ErrDegenerate, lambda)
	}
	return best, values, &eig, nil
}

// DominantEigenvalue returns the asymptotic growth rate of a projection matrix.
func DominantEigenvalue(m mat.Matrix) (float64, error) {
	idx, values, _, err := dominant(m)
	if err != nil {
		return 0, err
	}
	return real(values[idx]), nil
}

// StableDistribution returns the stable stage distribution of m: the real
// part of the dominant right eigenvector, sign-normalized, with negative
// round-off clamped to zero and scaled to sum to one.
func StableDistribution(m mat.Matrix) ([]float64, error) {
	idx, _, eig, err := dominant(m)
	if err != nil {
		return nil, err
	}

	var vecs mat.CDense
	eig.VectorsTo(&vecs)
	n, _ := vecs.Dims()

	v := make([]float64, n)
	var sum float64
	for i := 0; i < n; i++ {
		v[i] = real(vecs.At(i, idx))
		sum += v[i]
	}
	// Eigenvectors are defined up to sign.
	if sum < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}

	sum = 0
	for i := range v {
		if v[i] < 0 {
			v[i] = 0
		}
		sum += v[i]
	}
	if sum <= 0 || math.IsNaN(sum) {
		return nil, fmt.Errorf("%w: dominant eigenvector has no positive mass", ErrDegenerate)
	}
	for i := range v {
		v[i] /= sum
	}
	return v, nil
}
