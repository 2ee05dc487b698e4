package ensemble

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/simulation"
)

var bothKinds = []domain.ControllerKind{domain.ControllerPID, domain.ControllerStatic}

func shortBase(horizon int) domain.RunConfig {
	cfg := domain.DefaultRunConfig(domain.ScenarioConfigBull, domain.ControllerPID, 0)
	cfg.Horizon = horizon
	return cfg
}

func TestSeeds(t *testing.T) {
	assert.Equal(t, []int64{1000, 1001, 1002}, Seeds(DefaultBaseSeed, 3))
	assert.Empty(t, Seeds(5, 0))
}

func TestJobs_CartesianOrder(t *testing.T) {
	scenarios := []domain.ScenarioConfig{domain.ScenarioConfigBull, domain.ScenarioConfigBear}
	jobs := Jobs(shortBase(10), scenarios, bothKinds, Seeds(1, 3))
	require.Len(t, jobs, 12)

	assert.Equal(t, domain.ScenarioBull, jobs[0].Config.Scenario.Name)
	assert.Equal(t, domain.ControllerPID, jobs[0].Config.Controller.Kind)
	assert.Equal(t, int64(1), jobs[0].Config.Seed)
	assert.Equal(t, domain.ControllerStatic, jobs[3].Config.Controller.Kind)
	assert.Equal(t, domain.ScenarioBear, jobs[11].Config.Scenario.Name)
	assert.Equal(t, int64(3), jobs[11].Config.Seed)
}

func TestHarness_RunErrors(t *testing.T) {
	h := New(Options{Workers: 2})

	_, err := h.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoRuns)

	jobs := Jobs(shortBase(10), []domain.ScenarioConfig{domain.ScenarioConfigBull}, bothKinds, Seeds(1, 2))
	jobs[3].Config.Controller.TargetNodes = -1
	calls := 0
	h = New(Options{Workers: 2, OnResult: func(*simulation.Result) error { calls++; return nil }})
	_, err = h.Run(context.Background(), jobs)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Zero(t, calls, "no run may start when any job is misconfigured")
}

func TestHarness_ResultsIndependentOfWorkers(t *testing.T) {
	jobs := Jobs(shortBase(120), domain.CoreScenarios(), bothKinds, Seeds(7, 2))

	serial, err := New(Options{Workers: 1}).Run(context.Background(), jobs)
	require.NoError(t, err)
	parallel, err := New(Options{Workers: 8}).Run(context.Background(), jobs)
	require.NoError(t, err)

	require.Len(t, parallel, len(jobs))
	for i := range jobs {
		assert.Equal(t, jobs[i].Config.Seed, parallel[i].Summary.Seed)
		assert.Equal(t, serial[i].Summary, parallel[i].Summary, "job %d", i)
	}
}

func TestHarness_OnResultCalledPerRun(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	h := New(Options{Workers: 4, OnResult: func(r *simulation.Result) error {
		mu.Lock()
		defer mu.Unlock()
		seen[r.Summary.RunID] = true
		return nil
	}})
	jobs := Jobs(shortBase(30), []domain.ScenarioConfig{domain.ScenarioConfigRegulatory}, bothKinds, Seeds(1, 3))
	_, err := h.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Len(t, seen, len(jobs))
}

func TestHarness_EnsembleStats(t *testing.T) {
	jobs := Jobs(shortBase(90), []domain.ScenarioConfig{domain.ScenarioConfigBear}, bothKinds, Seeds(1, 4))
	res, err := New(Options{}).Ensemble(context.Background(), "exp-1", jobs)
	require.NoError(t, err)

	require.Len(t, res.Summaries, 8)
	for _, s := range res.Summaries {
		assert.Equal(t, "exp-1", s.ExperimentID)
	}
	assert.Len(t, res.Stats, 2*len(domain.GroupMetrics))

	st := res.Stat(domain.ScenarioBear, domain.ControllerPID, domain.MetricFinalNodes)
	require.NotNil(t, st)
	assert.Equal(t, 4, st.Samples)
	assert.LessOrEqual(t, st.P5, st.P50)
	assert.LessOrEqual(t, st.P50, st.P95)
	assert.Nil(t, res.Stat("nope", domain.ControllerPID, domain.MetricFinalNodes))
}

// PID must cut ensemble dispersion of the terminal node count under an
// operator-poach shock. A single seed proves nothing, so this uses 30.
func TestEnsemble_PIDReducesVarianceUnderPoach(t *testing.T) {
	if testing.Short() {
		t.Skip("30-seed ensemble")
	}
	base := domain.DefaultRunConfig(domain.ScenarioConfigCompetitor, domain.ControllerPID, 0)
	jobs := Jobs(base, []domain.ScenarioConfig{domain.ScenarioConfigCompetitor}, bothKinds, Seeds(DefaultBaseSeed, DefaultSize))

	res, err := New(Options{}).Ensemble(context.Background(), "variance", jobs)
	require.NoError(t, err)

	pid := res.Stat(domain.ScenarioCompetitor, domain.ControllerPID, domain.MetricFinalNodes)
	static := res.Stat(domain.ScenarioCompetitor, domain.ControllerStatic, domain.MetricFinalNodes)
	require.NotNil(t, pid)
	require.NotNil(t, static)
	require.Equal(t, DefaultSize, pid.Samples)
	t.Logf("CV pid=%.4f static=%.4f mean pid=%.0f static=%.0f", pid.CV, static.CV, pid.Mean, static.Mean)
	assert.Less(t, pid.CV, static.CV)
}

func TestEnsemble_UnclampedIntegralWindsUp(t *testing.T) {
	if testing.Short() {
		t.Skip("full-horizon stress runs")
	}
	base := domain.DefaultRunConfig(domain.ScenarioConfigSustainedContraction, domain.ControllerPID, 0)
	base.Controller.IntegralClamp = domain.IntegralUnclamped
	jobs := Jobs(base, []domain.ScenarioConfig{domain.ScenarioConfigSustainedContraction}, bothKinds, Seeds(42, 1))

	runs, err := New(Options{}).Run(context.Background(), jobs)
	require.NoError(t, err)
	pid, static := runs[0].Summary, runs[1].Summary

	assert.Greater(t, pid.Deviation, 0.40)
	assert.Greater(t, pid.TotalEmission, static.TotalEmission)
	assert.Greater(t, pid.FinalIntegral, domain.DefaultControllerConfig().IntegralClamp)
}

func TestEnsemble_BullPinnedByEntryCap(t *testing.T) {
	if testing.Short() {
		t.Skip("full-horizon runs")
	}
	base := domain.DefaultRunConfig(domain.ScenarioConfigBull, domain.ControllerPID, 0)
	jobs := Jobs(base, []domain.ScenarioConfig{domain.ScenarioConfigBull}, bothKinds, []int64{42})

	runs, err := New(Options{}).Run(context.Background(), jobs)
	require.NoError(t, err)

	target := float64(base.Controller.TargetNodes)
	pid, static := float64(runs[0].Summary.FinalNodes), float64(runs[1].Summary.FinalNodes)
	for _, n := range []float64{pid, static} {
		assert.GreaterOrEqual(t, n, 0.85*target)
		assert.LessOrEqual(t, n, 1.2*target+float64(base.Economy.EntryCapAbs))
	}
	assert.LessOrEqual(t, math.Abs(pid-static), 0.15*target)
}
