package metrics

import (
	"context"
	"errors"
	"testing"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
	"meshnet-sim/internal/storage/memory"
)

func testSummary(run, scenario string, kind domain.ControllerKind, seed int64, nodes int) *domain.RunSummary {
	return &domain.RunSummary{
		ExperimentID: "exp",
		RunID:        run,
		Scenario:     scenario,
		Controller:   kind,
		Seed:         seed,
		FinalNodes:   nodes,
		Deviation:    float64(10000-nodes) / 10000,
	}
}

func TestComputeGroupStats(t *testing.T) {
	summaries := []*domain.RunSummary{
		testSummary("a", "bull", domain.ControllerStatic, 1, 9000),
		testSummary("b", "bull", domain.ControllerPID, 1, 9900),
		testSummary("c", "bull", domain.ControllerPID, 2, 10100),
		testSummary("d", "bull", domain.ControllerStatic, 2, 11000),
	}
	stats, err := ComputeGroupStats("exp", summaries)
	if err != nil {
		t.Fatalf("ComputeGroupStats failed: %v", err)
	}
	if len(stats) != 2*len(domain.GroupMetrics) {
		t.Fatalf("expected %d rows, got %d", 2*len(domain.GroupMetrics), len(stats))
	}

	first := stats[0]
	if first.Controller != domain.ControllerPID || first.Metric != domain.MetricFinalNodes {
		t.Fatalf("unexpected first row %+v", first)
	}
	if first.Samples != 2 || first.Mean != 10000 || first.Min != 9900 || first.Max != 10100 {
		t.Errorf("unexpected pid stats %+v", first)
	}

	static := stats[len(domain.GroupMetrics)]
	if static.Controller != domain.ControllerStatic || static.CV <= first.CV {
		t.Errorf("static CV %.4f should exceed pid CV %.4f", static.CV, first.CV)
	}

	if _, err := ComputeGroupStats("exp", nil); !errors.Is(err, ErrNoSamples) {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}
}

func TestAggregator_ComputeAndStore(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewRunSummaryStore()
	stats := memory.NewGroupStatsStore()

	err := runs.InsertBulk(ctx, []*domain.RunSummary{
		testSummary("a", "bear", domain.ControllerPID, 1, 8000),
		testSummary("b", "bear", domain.ControllerPID, 2, 8400),
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	agg := NewAggregator(runs, stats)
	got, err := agg.ComputeAndStore(ctx, "exp")
	if err != nil {
		t.Fatalf("ComputeAndStore failed: %v", err)
	}
	if len(got) != len(domain.GroupMetrics) {
		t.Errorf("expected %d rows, got %d", len(domain.GroupMetrics), len(got))
	}

	row, err := stats.GetByKey(ctx, "exp", "bear", domain.ControllerPID, domain.MetricFinalNodes)
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if row.Mean != 8200 {
		t.Errorf("Mean = %v, want 8200", row.Mean)
	}

	// Append-only: a second pass is rejected.
	if _, err := agg.ComputeAndStore(ctx, "exp"); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := agg.ComputeExperiment(ctx, "empty"); !errors.Is(err, ErrNoSamples) {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}
}
