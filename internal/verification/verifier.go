// Package verification replays stored runs from their configuration and
// checks that the outputs are reproduced.
package verification

import (
	"context"
	"math"

	"meshnet-sim/internal/domain"
)

// FloatTolerance is the relative tolerance of float comparisons, scaled by
// max(1, |stored|).
const FloatTolerance = 1e-9

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Timestep int         // -1 for summary fields
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single run.
type VerificationResult struct {
	RunID            string            // verified run ID
	Match            bool              // true if all fields match
	TimestepsChecked int               // stored timestep records compared
	Divergences      []FieldDivergence // list of divergent fields
}

// VerificationReport contains results for an experiment.
type VerificationReport struct {
	TotalRuns     int                  // runs verified
	MatchedRuns   int                  // runs that matched
	DivergentRuns int                  // runs with divergences
	Results       []VerificationResult // individual results
}

// Verifier checks stored runs against replays.
type Verifier interface {
	// VerifyRun replays one stored run and compares its outputs.
	VerifyRun(ctx context.Context, experimentID, runID string) (*VerificationResult, error)

	// VerifyAll verifies every run of an experiment.
	VerifyAll(ctx context.Context, experimentID string) (*VerificationReport, error)
}

type floatField struct {
	name string
	get  func(*domain.TimestepRecord) float64
}

var timestepFloatFields = []floatField{
	{"emission", func(r *domain.TimestepRecord) float64 { return r.Emission }},
	{"burn", func(r *domain.TimestepRecord) float64 { return r.Burn }},
	{"daily_fee", func(r *domain.TimestepRecord) float64 { return r.DailyFee }},
	{"price", func(r *domain.TimestepRecord) float64 { return r.Price }},
	{"total_supply", func(r *domain.TimestepRecord) float64 { return r.TotalSupply }},
	{"circulating", func(r *domain.TimestepRecord) float64 { return r.Circulating }},
	{"treasury", func(r *domain.TimestepRecord) float64 { return r.Treasury }},
	{"slashed", func(r *domain.TimestepRecord) float64 { return r.Slashed }},
	{"slashed_total", func(r *domain.TimestepRecord) float64 { return r.SlashedTotal }},
	{"subsidy", func(r *domain.TimestepRecord) float64 { return r.Subsidy }},
	{"fraud_captured_pct", func(r *domain.TimestepRecord) float64 { return r.FraudCapturedPct }},
	{"bme", func(r *domain.TimestepRecord) float64 { return r.BME }},
	{"integral", func(r *domain.TimestepRecord) float64 { return r.Integral }},
}

// CompareTimestepRecords compares two records of the same run and step.
func CompareTimestepRecords(stored, replayed *domain.TimestepRecord) []FieldDivergence {
	var divergences []FieldDivergence
	t := stored.Timestep

	if stored.RunID != replayed.RunID {
		divergences = append(divergences, FieldDivergence{t, "run_id", stored.RunID, replayed.RunID})
	}
	if stored.Timestep != replayed.Timestep {
		divergences = append(divergences, FieldDivergence{t, "timestep", stored.Timestep, replayed.Timestep})
	}
	if stored.Nodes != replayed.Nodes {
		divergences = append(divergences, FieldDivergence{t, "nodes", stored.Nodes, replayed.Nodes})
	}
	for _, f := range timestepFloatFields {
		a, b := f.get(stored), f.get(replayed)
		if !floatEquals(a, b) {
			divergences = append(divergences, FieldDivergence{t, f.name, a, b})
		}
	}
	return divergences
}

// CompareSummaries compares the terminal statistics of two runs.
func CompareSummaries(stored, replayed *domain.RunSummary) []FieldDivergence {
	var divergences []FieldDivergence
	add := func(field string, expected, actual interface{}) {
		divergences = append(divergences, FieldDivergence{-1, field, expected, actual})
	}

	if stored.RunID != replayed.RunID {
		add("run_id", stored.RunID, replayed.RunID)
	}
	if stored.FinalNodes != replayed.FinalNodes {
		add("final_nodes", stored.FinalNodes, replayed.FinalNodes)
	}
	if stored.Adjustments != replayed.Adjustments {
		add("adjustments", stored.Adjustments, replayed.Adjustments)
	}
	if stored.ShockResponseDays != replayed.ShockResponseDays {
		add("shock_response_days", stored.ShockResponseDays, replayed.ShockResponseDays)
	}
	for _, metric := range domain.GroupMetrics {
		a, _ := stored.MetricValue(metric)
		b, _ := replayed.MetricValue(metric)
		if !floatEquals(a, b) {
			add(metric, a, b)
		}
	}
	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= FloatTolerance*math.Max(1, math.Abs(a))
}
