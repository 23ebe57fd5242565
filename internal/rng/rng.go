// Package rng provides the per-replicate random streams used by the
// simulator. A stream is a deterministic function of the top-level seed and
// the replicate index, so a replicate draws the same numbers no matter which
// worker runs it or in what order.
package rng

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Stream is a seeded random stream owned by exactly one replicate.
// It is not safe for concurrent use.
type Stream struct {
	src *rand.PCG
	r   *rand.Rand
}

// New creates a stream from a two-word PCG seed.
func New(seed1, seed2 uint64) *Stream {
	src := rand.NewPCG(seed1, seed2)
	return &Stream{src: src, r: rand.New(src)}
}

// ForReplicate derives the stream of replicate rep from the top-level seed.
func ForReplicate(seed uint64, rep int) *Stream {
	return New(seed, splitmix64(uint64(rep)+1))
}

// splitmix64 scrambles consecutive replicate indices into well separated
// stream selectors.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Source exposes the underlying generator for gonum distributions.
func (s *Stream) Source() rand.Source { return s.src }

// Float64 returns a uniform value in [0, 1).
func (s *Stream) Float64() float64 { return s.r.Float64() }

// Normal returns a standard normal value.
func (s *Stream) Normal() float64 { return s.r.NormFloat64() }

// Exp returns a unit-rate exponential value.
func (s *Stream) Exp() float64 { return s.r.ExpFloat64() }

// Beta draws from Beta(alpha, beta).
func (s *Stream) Beta(alpha, beta float64) float64 {
	return distuv.Beta{Alpha: alpha, Beta: beta, Src: s.src}.Rand()
}

// Poisson draws a count with the given mean. A non-positive mean yields 0.
func (s *Stream) Poisson(lambda float64) float64 {
	if lambda <= 0 {
		return 0
	}
	return distuv.Poisson{Lambda: lambda, Src: s.src}.Rand()
}

// LogNormal draws from the log-normal distribution whose natural-scale mean
// and standard deviation are mean and sd. With sd == 0 it returns mean
// exactly, which also lets an infinite mean pass through untouched.
func (s *Stream) LogNormal(mean, sd float64) float64 {
	if sd == 0 {
		return mean
	}
	sigma2 := math.Log1p(sd * sd / (mean * mean))
	return distuv.LogNormal{
		Mu:    math.Log(mean) - sigma2/2,
		Sigma: math.Sqrt(sigma2),
		Src:   s.src,
	}.Rand()
}

// MeanOneLogNormal returns exp(sigma*Z - sigma^2/2), a multiplicative noise
// factor with expectation one.
func (s *Stream) MeanOneLogNormal(sigma float64) float64 {
	if sigma == 0 {
		return 1
	}
	return math.Exp(sigma*s.r.NormFloat64() - sigma*sigma/2)
}
