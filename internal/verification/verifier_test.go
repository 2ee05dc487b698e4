package verification

import (
	"context"
	"errors"
	"math"
	"testing"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/simulation"
	"meshnet-sim/internal/storage/memory"
)

func TestCompareTimestepRecords(t *testing.T) {
	rec := &domain.TimestepRecord{RunID: "r", Timestep: 3, Nodes: 100, Emission: 1e5, Price: 0.1, Circulating: 2e8}

	same := *rec
	same.Circulating += 1e-3 // within relative tolerance at 2e8
	if d := CompareTimestepRecords(rec, &same); len(d) != 0 {
		t.Errorf("expected no divergences, got %+v", d)
	}

	other := *rec
	other.Nodes = 101
	other.Price = 0.1000001
	d := CompareTimestepRecords(rec, &other)
	if len(d) != 2 {
		t.Fatalf("expected 2 divergences, got %+v", d)
	}
	if d[0].Field != "nodes" || d[1].Field != "price" || d[0].Timestep != 3 {
		t.Errorf("unexpected divergences %+v", d)
	}
}

func TestFloatEquals(t *testing.T) {
	tests := []struct {
		a, b float64
		want bool
	}{
		{1, 1, true},
		{0, 1e-10, true},
		{0, 1e-8, false},
		{1e9, 1e9 + 0.5, true},
		{1e9, 1e9 + 2, false},
		{math.NaN(), math.NaN(), true},
		{math.NaN(), 0, false},
	}
	for _, tt := range tests {
		if got := floatEquals(tt.a, tt.b); got != tt.want {
			t.Errorf("floatEquals(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func storeRun(t *testing.T, runs *memory.RunSummaryStore, steps *memory.TimestepStore, cfg domain.RunConfig) *simulation.Result {
	t.Helper()
	res, err := simulation.NewRunner(simulation.RunnerOptions{}).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	res.Summary.ExperimentID = "exp"
	if err := runs.Insert(context.Background(), res.Summary); err != nil {
		t.Fatalf("Insert summary failed: %v", err)
	}
	if err := steps.InsertBulk(context.Background(), res.Records); err != nil {
		t.Fatalf("Insert records failed: %v", err)
	}
	return res
}

func TestReplayVerifier_Match(t *testing.T) {
	runs := memory.NewRunSummaryStore()
	steps := memory.NewTimestepStore()

	cfg := domain.DefaultRunConfig(domain.ScenarioConfigCompetitor, domain.ControllerPID, 42)
	cfg.Horizon = 200
	res := storeRun(t, runs, steps, cfg)

	v := NewReplayVerifier(ReplayVerifierOptions{RunStore: runs, TimestepStore: steps})
	result, err := v.VerifyRun(context.Background(), "exp", res.Summary.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}
	if !result.Match {
		t.Errorf("expected match, got divergences %+v", result.Divergences)
	}
	if result.TimestepsChecked != cfg.Horizon {
		t.Errorf("TimestepsChecked = %d, want %d", result.TimestepsChecked, cfg.Horizon)
	}
}

func TestReplayVerifier_DetectsTampering(t *testing.T) {
	runs := memory.NewRunSummaryStore()
	steps := memory.NewTimestepStore()

	cfg := domain.DefaultRunConfig(domain.ScenarioConfigBull, domain.ControllerStatic, 7)
	cfg.Horizon = 50
	res := storeRun(t, runs, steps, cfg)

	// A second run stored under the same ID with a doctored summary.
	forged := *res.Summary
	forged.ExperimentID = "forged"
	forged.FinalNodes++
	if err := runs.Insert(context.Background(), &forged); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	v := NewReplayVerifier(ReplayVerifierOptions{RunStore: runs})
	result, err := v.VerifyRun(context.Background(), "forged", forged.RunID)
	if err != nil {
		t.Fatalf("VerifyRun failed: %v", err)
	}
	if result.Match {
		t.Fatalf("expected divergence")
	}
	if result.Divergences[0].Field != "final_nodes" || result.Divergences[0].Timestep != -1 {
		t.Errorf("unexpected divergence %+v", result.Divergences[0])
	}
}

func TestReplayVerifier_VerifyAll(t *testing.T) {
	runs := memory.NewRunSummaryStore()
	steps := memory.NewTimestepStore()
	for _, seed := range []int64{1, 2} {
		cfg := domain.DefaultRunConfig(domain.ScenarioConfigRegulatory, domain.ControllerPID, seed)
		cfg.Horizon = 40
		storeRun(t, runs, steps, cfg)
	}

	v := NewReplayVerifier(ReplayVerifierOptions{RunStore: runs, TimestepStore: steps})
	report, err := v.VerifyAll(context.Background(), "exp")
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}
	if report.TotalRuns != 2 || report.MatchedRuns != 2 || report.DivergentRuns != 0 {
		t.Errorf("unexpected report %+v", report)
	}

	if _, err := v.VerifyRun(context.Background(), "exp", "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}
