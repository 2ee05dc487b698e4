package rng

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_SameSeedSameSequence(t *testing.T) {
	a := New(42)
	b := New(42)

	for i := 0; i < 1000; i++ {
		require.Equal(t, a.Normal(0, 1), b.Normal(0, 1), "draw %d diverged", i)
		require.Equal(t, a.Intn(100), b.Intn(100), "draw %d diverged", i)
	}
}

func TestSource_DifferentSeedsDiverge(t *testing.T) {
	a := New(1)
	b := New(2)

	same := 0
	for i := 0; i < 100; i++ {
		if a.Float64() == b.Float64() {
			same++
		}
	}
	assert.Less(t, same, 5)
}

func TestSource_NormalMoments(t *testing.T) {
	s := New(7)
	const n = 200_000
	sum, sumSq := 0.0, 0.0
	for i := 0; i < n; i++ {
		x := s.Normal(3, 0.5)
		sum += x
		sumSq += x * x
	}
	mean := sum / n
	std := math.Sqrt(sumSq/n - mean*mean)

	assert.InDelta(t, 3.0, mean, 0.01)
	assert.InDelta(t, 0.5, std, 0.01)
}

func TestSource_Choice(t *testing.T) {
	s := New(11)
	weights := []float64{0.5, 0.35, 0.15}
	counts := make([]int, len(weights))
	const n = 100_000
	for i := 0; i < n; i++ {
		counts[s.Choice(weights)]++
	}
	for i, w := range weights {
		assert.InDelta(t, w, float64(counts[i])/n, 0.01, "weight %d", i)
	}
}

func TestSource_ChoiceZeroWeights(t *testing.T) {
	s := New(1)
	assert.Equal(t, 2, s.Choice([]float64{0, 0, 0}))
}

func TestSource_Uniform(t *testing.T) {
	s := New(3)
	for i := 0; i < 1000; i++ {
		x := s.Uniform(0.1, 0.3)
		require.GreaterOrEqual(t, x, 0.1)
		require.Less(t, x, 0.3)
	}
}
