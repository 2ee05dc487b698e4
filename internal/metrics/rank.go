package metrics

import (
	"fmt"
	"sort"
)

// DefaultStabilityThreshold is the minimum per-value rank consistency for
// an ordering to count as structural.
const DefaultStabilityThreshold = 0.60

// Verdict classifies a parameter ordering.
type Verdict string

// Verdicts.
const (
	VerdictStructural    Verdict = "STRUCTURAL"
	VerdictPathDependent Verdict = "PATH_DEPENDENT"
)

// Observation is the score of one parameter value on one seed. Higher
// scores rank better.
type Observation struct {
	Seed  int64
	Value float64
	Score float64
}

// ValueConsistency is the rank agreement of one parameter value.
type ValueConsistency struct {
	Value       float64
	ModalRank   float64
	Consistency float64 // fraction of seeds at the modal rank
}

// RankConsistency reports how stable the ordering of parameter values is
// across seeds.
type RankConsistency struct {
	Parameter      string
	Seeds          int
	Values         []ValueConsistency // ordered by parameter value
	MinConsistency float64
	ModalTop       float64 // most frequent top-ranked value
	TopAgreement   float64 // fraction of seeds whose top value is ModalTop
	Threshold      float64
	Verdict        Verdict
}

// ComputeRankConsistency ranks the values on every seed (rank 1 = highest
// score, ties share their average rank), finds the modal rank of each value
// (ties go to the smallest rank) and the fraction of seeds agreeing with it.
// Seeds missing any value are skipped. The ordering is structural when the
// minimum per-value consistency is at least threshold.
func ComputeRankConsistency(parameter string, obs []Observation, threshold float64) (*RankConsistency, error) {
	bySeed := make(map[int64]map[float64]float64)
	valueSet := make(map[float64]struct{})
	for _, o := range obs {
		if bySeed[o.Seed] == nil {
			bySeed[o.Seed] = make(map[float64]float64)
		}
		bySeed[o.Seed][o.Value] = o.Score
		valueSet[o.Value] = struct{}{}
	}

	values := make([]float64, 0, len(valueSet))
	for v := range valueSet {
		values = append(values, v)
	}
	sort.Float64s(values)
	if len(values) < 2 {
		return nil, fmt.Errorf("%w: rank consistency needs at least two values of %s", ErrNoSamples, parameter)
	}

	seeds := make([]int64, 0, len(bySeed))
	for s, scores := range bySeed {
		if len(scores) == len(values) {
			seeds = append(seeds, s)
		}
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: no seed covers every value of %s", ErrNoSamples, parameter)
	}

	// ranks[i][j] is the rank of values[j] on seeds[i].
	ranks := make([][]float64, len(seeds))
	tops := make([]float64, len(seeds))
	for i, s := range seeds {
		scores := make([]float64, len(values))
		for j, v := range values {
			scores[j] = bySeed[s][v]
		}
		ranks[i] = averageRanksDesc(scores)
		tops[i] = values[argMax(scores)]
	}

	rc := &RankConsistency{
		Parameter:      parameter,
		Seeds:          len(seeds),
		Values:         make([]ValueConsistency, len(values)),
		MinConsistency: 1,
		Threshold:      threshold,
	}
	n := float64(len(seeds))
	for j, v := range values {
		column := make([]float64, len(seeds))
		for i := range seeds {
			column[i] = ranks[i][j]
		}
		modal := mode(column)
		agree := 0
		for _, r := range column {
			if r == modal {
				agree++
			}
		}
		c := float64(agree) / n
		rc.Values[j] = ValueConsistency{Value: v, ModalRank: modal, Consistency: c}
		if c < rc.MinConsistency {
			rc.MinConsistency = c
		}
	}

	rc.ModalTop = mode(tops)
	agree := 0
	for _, top := range tops {
		if top == rc.ModalTop {
			agree++
		}
	}
	rc.TopAgreement = float64(agree) / n

	rc.Verdict = VerdictPathDependent
	if rc.MinConsistency >= threshold {
		rc.Verdict = VerdictStructural
	}
	return rc, nil
}

// averageRanksDesc ranks scores descending (1 = highest); tied scores
// share the mean of the ranks they span.
func averageRanksDesc(scores []float64) []float64 {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	ranks := make([]float64, len(scores))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && scores[idx[end]] == scores[idx[start]] {
			end++
		}
		avg := float64(start+end+1) / 2 // mean of ranks start+1 .. end
		for k := start; k < end; k++ {
			ranks[idx[k]] = avg
		}
		start = end
	}
	return ranks
}

// argMax returns the first index of the largest value.
func argMax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}

// mode returns the most frequent value; ties go to the smallest.
func mode(xs []float64) float64 {
	counts := make(map[float64]int, len(xs))
	for _, x := range xs {
		counts[x]++
	}
	best, bestCount := 0.0, -1
	for x, c := range counts {
		if c > bestCount || (c == bestCount && x < best) {
			best, bestCount = x, c
		}
	}
	return best
}
