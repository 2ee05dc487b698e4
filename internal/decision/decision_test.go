package decision

import (
	"errors"
	"strings"
	"testing"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/metrics"
)

func TestEvaluateVariance(t *testing.T) {
	e := NewEvaluator()

	r := e.EvaluateVariance(VarianceInput{Scenario: "competitor", Seeds: 30, PIDCV: 0.05, StaticCV: 0.12})
	if r.Verdict != VerdictSupported {
		t.Errorf("expected SUPPORTED, got %s", r.Verdict)
	}

	// A higher static mean does not matter; dispersion does.
	r = e.EvaluateVariance(VarianceInput{Scenario: "competitor", Seeds: 30, PIDCV: 0.2, StaticCV: 0.1, PIDMean: 8000, StaticMean: 9500})
	if r.Verdict != VerdictNotSupported {
		t.Errorf("expected NOT SUPPORTED, got %s", r.Verdict)
	}

	// One seed is never evidence.
	r = e.EvaluateVariance(VarianceInput{Scenario: "competitor", Seeds: 1, PIDCV: 0, StaticCV: 0.1})
	if r.Verdict != VerdictNotSupported {
		t.Errorf("single seed must not be supported")
	}
	if r.Criteria[0].Pass {
		t.Errorf("ensemble size criterion should fail")
	}
}

func TestEvaluateWindup(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name string
		in   WindupInput
		want Verdict
	}{
		{"wound up", WindupInput{PIDDeviation: 0.7, PIDEmission: 5e8, StaticEmission: 1.8e8}, VerdictSupported},
		{"deviation at threshold", WindupInput{PIDDeviation: 0.4, PIDEmission: 5e8, StaticEmission: 1.8e8}, VerdictNotSupported},
		{"emitted less", WindupInput{PIDDeviation: 0.7, PIDEmission: 1e8, StaticEmission: 1.8e8}, VerdictNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.EvaluateWindup(tt.in).Verdict; got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEvaluateOrdering(t *testing.T) {
	e := NewEvaluator()
	rc := &metrics.RankConsistency{Parameter: "ki@bear", MinConsistency: 0.4, Threshold: 0.6, Verdict: metrics.VerdictPathDependent}
	r := e.EvaluateOrdering(rc)
	if r.Verdict != VerdictNotSupported {
		t.Errorf("path-dependent ordering should not be supported")
	}
	if !strings.HasPrefix(r.Subject, "ki@bear") {
		t.Errorf("unexpected subject %q", r.Subject)
	}
}

func groupStats(scenario string, kind domain.ControllerKind, metric string, samples int, mean, cv float64) *domain.GroupStats {
	return &domain.GroupStats{Scenario: scenario, Controller: kind, Metric: metric, Samples: samples, Mean: mean, CV: cv}
}

func TestBuilder(t *testing.T) {
	stats := []*domain.GroupStats{
		groupStats("competitor", domain.ControllerPID, domain.MetricFinalNodes, 30, 9000, 0.04),
		groupStats("competitor", domain.ControllerStatic, domain.MetricFinalNodes, 29, 9600, 0.09),
		groupStats("competitor", domain.ControllerPID, domain.MetricDeviation, 30, 0.1, 0),
		groupStats("competitor", domain.ControllerPID, domain.MetricTotalEmission, 30, 3e8, 0),
		groupStats("competitor", domain.ControllerStatic, domain.MetricTotalEmission, 29, 2e8, 0),
	}
	b := NewBuilder(stats)

	if !b.HasScenario("competitor") || b.HasScenario("bull") {
		t.Fatalf("HasScenario mismatch")
	}

	v, err := b.BuildVariance("competitor")
	if err != nil {
		t.Fatalf("BuildVariance: %v", err)
	}
	if v.Seeds != 29 || v.PIDCV != 0.04 || v.StaticMean != 9600 {
		t.Errorf("unexpected variance input %+v", v)
	}

	w, err := b.BuildWindup("competitor")
	if err != nil {
		t.Fatalf("BuildWindup: %v", err)
	}
	if w.PIDDeviation != 0.1 || w.PIDEmission != 3e8 || w.StaticEmission != 2e8 {
		t.Errorf("unexpected windup input %+v", w)
	}

	if _, err := b.BuildVariance("bull"); !errors.Is(err, ErrMissingGroup) {
		t.Errorf("expected ErrMissingGroup, got %v", err)
	}
}

func TestRenderMarkdown(t *testing.T) {
	e := NewEvaluator()
	md := RenderMarkdown([]*ClaimResult{
		e.EvaluateVariance(VarianceInput{Scenario: "competitor", Seeds: 30, PIDCV: 0.05, StaticCV: 0.12}),
		e.EvaluateWindup(WindupInput{Scenario: "sustained_contraction", PIDDeviation: 0.1}),
	})

	for _, want := range []string{
		"# Claims",
		"1/2 claims supported",
		"## PID reduces terminal node variance: competitor",
		"Verdict: **SUPPORTED**",
		"Verdict: **NOT SUPPORTED**",
		"| 1 | Ensemble size | >= 30 seeds | 30 | PASS |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}
