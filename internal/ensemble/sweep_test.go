package ensemble

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/metrics"
	"meshnet-sim/internal/simulation"
)

func TestApplyAxis(t *testing.T) {
	cfg := domain.DefaultRunConfig(domain.ScenarioConfigBull, domain.ControllerPID, 1)

	require.NoError(t, ApplyAxis(&cfg, AxisKi, 0.3))
	require.NoError(t, ApplyAxis(&cfg, AxisCadence, 7))
	require.NoError(t, ApplyAxis(&cfg, AxisCatchRate, 0.5))
	require.NoError(t, ApplyAxis(&cfg, AxisSlashFraud, 0.5))
	assert.Equal(t, 0.3, cfg.Controller.Ki)
	assert.Equal(t, 7, cfg.Controller.CadenceDays)
	assert.Equal(t, 0.5, cfg.Economy.CatchRate)
	assert.Equal(t, 0.5, cfg.Economy.SlashFraud)

	assert.ErrorIs(t, ApplyAxis(&cfg, AxisCadence, 7.5), domain.ErrInvalidConfig)
	assert.ErrorIs(t, ApplyAxis(&cfg, "gamma", 1), domain.ErrInvalidConfig)
}

func TestSweepSpec_Jobs(t *testing.T) {
	spec := SweepSpec{
		Experiment: "grid",
		Axes: []Axis{
			{Name: AxisKi, Values: []float64{0.05, 0.15}},
			{Name: AxisKd, Values: []float64{0, 0.2, 0.4}},
		},
		Scenarios: []domain.ScenarioConfig{domain.ScenarioConfigBear},
		Seeds:     Seeds(1, 2),
		Base:      shortBase(20),
	}
	jobs, err := spec.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 2*3*2)

	assert.Equal(t, "ki=0.05,kd=0", jobs[0].Point)
	assert.Equal(t, 0.05, jobs[0].Config.Controller.Ki)
	assert.Equal(t, "ki=0.15,kd=0.4", jobs[11].Point)
	assert.Equal(t, 0.4, jobs[11].Config.Controller.Kd)
	assert.Equal(t, domain.ScenarioBear, jobs[11].Config.Scenario.Name)

	assert.Equal(t, spec.ID(), spec.ID())
	other := spec
	other.Experiment = "grid-2"
	assert.NotEqual(t, spec.ID(), other.ID())

	_, err = SweepSpec{Scenarios: spec.Scenarios, Seeds: spec.Seeds}.Jobs()
	assert.ErrorIs(t, err, ErrNoRuns)
	_, err = SweepSpec{Axes: []Axis{{Name: AxisKp}}, Scenarios: spec.Scenarios, Seeds: spec.Seeds}.Jobs()
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestHarness_SingleAxisSweep(t *testing.T) {
	spec := SweepSpec{
		Experiment: "kd",
		Axes:       []Axis{{Name: AxisKd, Values: []float64{0.1, 0.4}}},
		Scenarios:  []domain.ScenarioConfig{domain.ScenarioConfigCompetitor, domain.ScenarioConfigBull},
		Seeds:      Seeds(10, 3),
		Base:       shortBase(60),
	}
	res, err := New(Options{Workers: 4}).Sweep(context.Background(), spec)
	require.NoError(t, err)

	require.Len(t, res.Records, 2*2*3)
	for _, r := range res.Records {
		assert.Equal(t, res.SweepID, r.SweepID)
		assert.Contains(t, r.Values, AxisKd)
	}

	require.Len(t, res.Ranks, 2)
	assert.Equal(t, "kd@bull", res.Ranks[0].Parameter)
	assert.Equal(t, "kd@competitor", res.Ranks[1].Parameter)
	for _, rc := range res.Ranks {
		assert.Equal(t, 3, rc.Seeds)
		assert.Equal(t, metrics.DefaultStabilityThreshold, rc.Threshold)
	}
}

func TestHarness_SweepRejectsBadSpecBeforeRunning(t *testing.T) {
	var runs atomic.Int64
	h := New(Options{Workers: 2, OnResult: func(*simulation.Result) error {
		runs.Add(1)
		return nil
	}})

	base := SweepSpec{
		Experiment: "bad",
		Scenarios:  []domain.ScenarioConfig{domain.ScenarioConfigBear},
		Seeds:      Seeds(1, 3),
		Base:       shortBase(20),
	}
	tests := map[string][]Axis{
		"single value":  {{Name: AxisKi, Values: []float64{0.15}}},
		"negative gain": {{Name: AxisKp, Values: []float64{-1, 0.5}}},
		"zero cadence":  {{Name: AxisCadence, Values: []float64{0, 14}}},
		"unknown axis":  {{Name: "kpp", Values: []float64{0.1, 0.2}}},
	}
	for name, axes := range tests {
		t.Run(name, func(t *testing.T) {
			spec := base
			spec.Axes = axes
			assert.ErrorIs(t, spec.Validate(), domain.ErrInvalidConfig)

			res, err := h.Sweep(context.Background(), spec)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
			assert.Nil(t, res)
		})
	}
	assert.Zero(t, runs.Load())

	spec := base
	spec.Axes = []Axis{
		{Name: AxisKi, Values: []float64{0.15}},
		{Name: AxisKd, Values: []float64{0.1, 0.2}},
	}
	assert.NoError(t, spec.Validate(), "single values are fine on a grid")
}

func TestRankByScenario(t *testing.T) {
	rec := func(scenario string, seed int64, v float64, n int) *domain.SweepRecord {
		return &domain.SweepRecord{Scenario: scenario, Seed: seed, Values: map[string]float64{AxisKi: v}, FinalNodes: n}
	}
	records := []*domain.SweepRecord{
		rec("bear", 1, 0.1, 900), rec("bear", 1, 0.2, 800),
		rec("bear", 2, 0.1, 910), rec("bear", 2, 0.2, 810),
		rec("bear", 3, 0.1, 700), rec("bear", 3, 0.2, 820),
	}
	out, err := RankByScenario(AxisKi, records, 0.6)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 2.0/3, out[0].MinConsistency, 1e-12)
	assert.Equal(t, metrics.VerdictStructural, out[0].Verdict)
}
