package decision

import (
	"fmt"

	"meshnet-sim/internal/metrics"
)

// Default thresholds.
const (
	DefaultMinSeeds          = 30
	DefaultWindupDeviation   = 0.40
	DefaultOrderingThreshold = metrics.DefaultStabilityThreshold
)

// Evaluator checks claims against ensemble statistics.
type Evaluator struct {
	MinSeeds        int     // smallest ensemble accepted as evidence
	WindupDeviation float64 // deviation that counts as stress
}

// NewEvaluator creates a new evaluator with the default thresholds.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		MinSeeds:        DefaultMinSeeds,
		WindupDeviation: DefaultWindupDeviation,
	}
}

// EvaluateVariance checks that the PID policy has a lower coefficient of
// variation than the static policy on an ensemble of at least MinSeeds.
// A single seed is never accepted, whatever its terminal counts.
func (e *Evaluator) EvaluateVariance(in VarianceInput) *ClaimResult {
	criteria := []CriterionResult{
		{
			Name:      "Ensemble size",
			Threshold: fmt.Sprintf(">= %d seeds", e.MinSeeds),
			Actual:    fmt.Sprintf("%d", in.Seeds),
			Pass:      in.Seeds >= e.MinSeeds,
		},
		{
			Name:      "Terminal N coefficient of variation",
			Threshold: "PID < static",
			Actual:    fmt.Sprintf("PID=%.4f, static=%.4f", in.PIDCV, in.StaticCV),
			Pass:      in.PIDCV < in.StaticCV,
		},
	}
	return &ClaimResult{
		Claim:    ClaimVarianceReduction,
		Subject:  in.Scenario,
		Verdict:  supported(criteria),
		Criteria: criteria,
	}
}

// EvaluateWindup checks that the stress run fails the way wind-up predicts:
// a large deviation from target while emitting more than the baseline.
func (e *Evaluator) EvaluateWindup(in WindupInput) *ClaimResult {
	criteria := []CriterionResult{
		{
			Name:      "Terminal deviation from target",
			Threshold: fmt.Sprintf("> %.0f%%", e.WindupDeviation*100),
			Actual:    fmt.Sprintf("%.1f%%", in.PIDDeviation*100),
			Pass:      in.PIDDeviation > e.WindupDeviation,
		},
		{
			Name:      "Total emission",
			Threshold: "PID > static",
			Actual:    fmt.Sprintf("PID=%.0f, static=%.0f", in.PIDEmission, in.StaticEmission),
			Pass:      in.PIDEmission > in.StaticEmission,
		},
	}
	return &ClaimResult{
		Claim:    ClaimWindup,
		Subject:  in.Scenario,
		Verdict:  supported(criteria),
		Criteria: criteria,
	}
}

// EvaluateOrdering turns a rank consistency result into a claim. A
// path-dependent ordering is reported, not an error.
func (e *Evaluator) EvaluateOrdering(rc *metrics.RankConsistency) *ClaimResult {
	criteria := []CriterionResult{
		{
			Name:      "Minimum per-value rank consistency",
			Threshold: fmt.Sprintf(">= %.2f", rc.Threshold),
			Actual:    fmt.Sprintf("%.2f", rc.MinConsistency),
			Pass:      rc.Verdict == metrics.VerdictStructural,
		},
	}
	return &ClaimResult{
		Claim:    ClaimOrdering,
		Subject:  fmt.Sprintf("%s (modal top %g, agreement %.2f)", rc.Parameter, rc.ModalTop, rc.TopAgreement),
		Verdict:  supported(criteria),
		Criteria: criteria,
	}
}
