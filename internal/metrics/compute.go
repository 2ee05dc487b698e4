// Package metrics computes distribution statistics over ensemble runs and
// rank consistency of parameter orderings.
package metrics

import (
	"errors"
	"math"
	"sort"
)

// ErrNoSamples is returned when a statistic is requested over no values.
var ErrNoSamples = errors.New("no samples")

// cvMeanFloor keeps the coefficient of variation finite near zero mean.
const cvMeanFloor = 1e-9

// Distribution summarizes one metric over a set of runs.
type Distribution struct {
	Samples int
	Mean    float64
	Std     float64 // sample (n-1)
	P5      float64
	P50     float64
	P95     float64
	Min     float64
	Max     float64
	CV      float64
}

// Describe computes the distribution of values. values is not modified.
func Describe(values []float64) (Distribution, error) {
	n := len(values)
	if n == 0 {
		return Distribution{}, ErrNoSamples
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	mean := computeMean(values)
	std := computeStddev(values, mean)
	return Distribution{
		Samples: n,
		Mean:    mean,
		Std:     std,
		P5:      computePercentile(sorted, 0.05),
		P50:     computePercentile(sorted, 0.50),
		P95:     computePercentile(sorted, 0.95),
		Min:     sorted[0],
		Max:     sorted[n-1],
		CV:      CV(std, mean),
	}, nil
}

// Mean returns the arithmetic mean.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoSamples
	}
	return computeMean(values), nil
}

// Stddev returns the sample standard deviation (n-1 denominator).
// A single sample has zero deviation.
func Stddev(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoSamples
	}
	return computeStddev(values, computeMean(values)), nil
}

// Percentile returns the p-th percentile (0.05 = 5th) with linear
// interpolation. values need not be sorted.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoSamples
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return computePercentile(sorted, p), nil
}

// CV returns std / |mean|, with the mean floored away from zero.
func CV(std, mean float64) float64 {
	return std / math.Max(math.Abs(mean), cvMeanFloor)
}

// computeMean calculates arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// IQR returns the 25th and 75th percentiles.
func IQR(values []float64) (float64, float64, error) {
	if len(values) == 0 {
		return 0, 0, ErrNoSamples
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return computePercentile(sorted, 0.25), computePercentile(sorted, 0.75), nil
}
