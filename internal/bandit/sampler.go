package bandit

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultEpsilon is the floor applied to alpha and beta before sampling.
const DefaultEpsilon = 1e-3

// Sampler draws from a Beta distribution.
type Sampler interface {
	Beta(alpha, beta float64) float64
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(alpha, beta float64) float64

func (f SamplerFunc) Beta(alpha, beta float64) float64 { return f(alpha, beta) }

type gonumSampler struct{}

func (gonumSampler) Beta(alpha, beta float64) float64 {
	return distuv.Beta{Alpha: alpha, Beta: beta}.Rand()
}

// DefaultSampler draws using gonum's Beta distribution over the global source.
func DefaultSampler() Sampler { return gonumSampler{} }

// clampParam floors malformed parameters (NaN, Inf, <= 0) to eps.
// The clamped value is only used for the draw and is never written back.
func clampParam(v, eps float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < eps {
		return eps
	}
	return v
}
