package leslie

import "math"

// Logit returns log(p/(1-p)) for every element of p.
func Logit(p []float64) []float64 {
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = LogitScalar(v)
	}
	return out
}

// InvLogit returns 1/(1+exp(-a)) for every element of a.
func InvLogit(a []float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = InvLogitScalar(v)
	}
	return out
}

// LogitScalar is the scalar form of Logit.
func LogitScalar(p float64) float64 {
	return math.Log(p / (1 - p))
}

// InvLogitScalar is the scalar form of InvLogit. The two branches keep exp
// from overflowing for large |a|.
func InvLogitScalar(a float64) float64 {
	if a >= 0 {
		return 1 / (1 + math.Exp(-a))
	}
	e := math.Exp(a)
	return e / (1 + e)
}
