// Package rng provides the per-run seeded random source. Every stochastic
// draw of a run goes through one Source; sources are never shared between runs.
package rng

import "math/rand"

// Source is a seeded generator owned by a single run. Not safe for
// concurrent use.
type Source struct {
	seed int64
	r    *rand.Rand
}

// New returns a source seeded with seed.
func New(seed int64) *Source {
	return &Source{seed: seed, r: rand.New(rand.NewSource(seed))}
}

// Seed returns the seed the source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// Float64 returns a uniform draw in [0, 1).
func (s *Source) Float64() float64 {
	return s.r.Float64()
}

// Uniform returns a uniform draw in [lo, hi).
func (s *Source) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.r.Float64()
}

// Normal returns a Gaussian draw with the given mean and standard deviation.
func (s *Source) Normal(mean, std float64) float64 {
	return mean + std*s.r.NormFloat64()
}

// Intn returns a uniform integer in [0, n). n must be positive.
func (s *Source) Intn(n int) int {
	return s.r.Intn(n)
}

// Bernoulli returns true with probability p.
func (s *Source) Bernoulli(p float64) bool {
	return s.r.Float64() < p
}

// Choice returns an index drawn according to weights. Weights need not be
// normalized; zero total returns the last index.
func (s *Source) Choice(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	u := s.r.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if u < acc {
			return i
		}
	}
	return len(weights) - 1
}

// Shuffle permutes n elements using swap.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	s.r.Shuffle(n, swap)
}
