package simulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshnet-sim/internal/domain"
)

func shortConfig(sc domain.ScenarioConfig, kind domain.ControllerKind, seed int64) domain.RunConfig {
	cfg := domain.DefaultRunConfig(sc, kind, seed)
	cfg.Horizon = 400
	return cfg
}

func runOnce(t *testing.T, cfg domain.RunConfig) *Result {
	t.Helper()
	res, err := NewRunner(RunnerOptions{}).Run(context.Background(), cfg)
	require.NoError(t, err)
	return res
}

func TestRun_ConservationAndBounds(t *testing.T) {
	for _, sc := range domain.CoreScenarios() {
		for _, kind := range []domain.ControllerKind{domain.ControllerPID, domain.ControllerStatic} {
			t.Run(sc.Name+"/"+string(kind), func(t *testing.T) {
				cfg := shortConfig(sc, kind, 42)
				res := runOnce(t, cfg)
				require.Len(t, res.Records, cfg.Horizon)

				prevS := cfg.Initial.TotalSupply
				for i, r := range res.Records {
					require.Equal(t, i, r.Timestep)
					require.InDelta(t, prevS+r.Emission-r.Burn, r.TotalSupply, 1e-9*math.Max(1, prevS), "t=%d", i)
					require.GreaterOrEqual(t, r.Circulating, 0.0)
					require.LessOrEqual(t, r.Circulating, r.TotalSupply)
					require.Greater(t, r.Price, 0.0)
					require.Greater(t, r.DailyFee, 0.0)
					require.GreaterOrEqual(t, r.Treasury, 0.0)
					if kind == domain.ControllerPID {
						require.GreaterOrEqual(t, r.Emission, cfg.Controller.Floor()-1e-6)
						require.LessOrEqual(t, r.Emission, cfg.Controller.Ceiling()+1e-6)
					}
					prevS = r.TotalSupply
				}

				s := res.Summary
				assert.Equal(t, cfg.Horizon, s.Horizon)
				assert.Equal(t, res.Records[cfg.Horizon-1].Nodes, s.FinalNodes)
				assert.InDelta(t, cfg.Initial.TotalSupply+s.TotalEmission-s.TotalBurned, s.FinalTotalSupply, 1e-3)
				assert.InDelta(t, cfg.Initial.Treasury+s.TotalSlashed-s.TotalSubsidy, s.FinalTreasury, 1e-3)
			})
		}
	}
}

func TestRun_ExtremeGainsStayWithinBounds(t *testing.T) {
	cfg := shortConfig(domain.ScenarioConfigCompetitor, domain.ControllerPID, 7)
	cfg.Controller.Kp = 50
	cfg.Controller.Ki = 20
	cfg.Controller.Kd = 30
	cfg.Controller.CadenceDays = 1

	res := runOnce(t, cfg)
	for _, r := range res.Records {
		require.GreaterOrEqual(t, r.Emission, cfg.Controller.Floor()-1e-6)
		require.LessOrEqual(t, r.Emission, cfg.Controller.Ceiling()+1e-6)
	}
	assert.Positive(t, res.Summary.FloorSteps+res.Summary.CeilingSteps)
}

func TestRun_Deterministic(t *testing.T) {
	cfg := shortConfig(domain.ScenarioConfigBear, domain.ControllerPID, 42)

	a := runOnce(t, cfg)
	b := runOnce(t, cfg)
	require.Equal(t, a.Records, b.Records)
	assert.Equal(t, a.Summary, b.Summary)

	cfg.Seed = 43
	c := runOnce(t, cfg)
	assert.NotEqual(t, a.Records, c.Records)
	assert.NotEqual(t, a.Summary.RunID, c.Summary.RunID)
}

func TestRunID_CoversEveryParameter(t *testing.T) {
	base := domain.DefaultRunConfig(domain.ScenarioConfigBear, domain.ControllerPID, 42)
	id := RunID(base)

	same := domain.DefaultRunConfig(domain.ScenarioConfigBear, domain.ControllerPID, 42)
	assert.Equal(t, id, RunID(same))

	variants := map[string]func(*domain.RunConfig){
		"base emission":    func(c *domain.RunConfig) { c.Controller.BaseEmission = 50_000 },
		"opportunity cost": func(c *domain.RunConfig) { c.Economy.OpportunityCost = 8 },
		"operating cost":   func(c *domain.RunConfig) { c.Economy.OperatingCost = 4 },
		"initial nodes":    func(c *domain.RunConfig) { c.Initial.Nodes = 2_500 },
		"initial price":    func(c *domain.RunConfig) { c.Initial.Price = 0.2 },
	}
	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			cfg := domain.DefaultRunConfig(domain.ScenarioConfigBear, domain.ControllerPID, 42)
			mutate(&cfg)
			// None of these appear in the readable key.
			assert.Equal(t, base.ParamKey(), cfg.ParamKey())
			assert.NotEqual(t, id, RunID(cfg))
		})
	}
}

func TestRun_ConfigErrorBeforeAnyStep(t *testing.T) {
	calls := 0
	r := NewRunner(RunnerOptions{Observer: func(*domain.TimestepRecord) { calls++ }})

	cfg := shortConfig(domain.ScenarioConfigBull, domain.ControllerPID, 1)
	cfg.Controller.TargetNodes = 0
	_, err := r.Run(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg = shortConfig(domain.ScenarioConfigBull, domain.ControllerPID, 1)
	cfg.Economy.InitialMix = domain.ProfileMix{HighCommitment: 0.5, Casual: 0.2}
	_, err = r.Run(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	assert.Zero(t, calls)
}

func TestRun_InvariantViolationAborts(t *testing.T) {
	// Everything already circulates, so the first subsidy pushes C above S.
	cfg := shortConfig(domain.ScenarioConfigBull, domain.ControllerPID, 1)
	cfg.Initial.TotalSupply = 1e9
	cfg.Initial.Circulating = 1e9
	cfg.Controller.BaseEmission = 1
	cfg.Economy.SlashDowntime = 0
	cfg.Economy.SlashFraud = 0

	_, err := NewRunner(RunnerOptions{}).Run(context.Background(), cfg)
	require.ErrorIs(t, err, ErrInvariantViolation)

	var inv *InvariantError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 0, inv.Timestep)
	assert.Equal(t, InvariantCirculatingRange, inv.InvariantName())
	assert.Greater(t, inv.State.Circulating, inv.State.TotalSupply)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(RunnerOptions{}).Run(ctx, shortConfig(domain.ScenarioConfigBull, domain.ControllerStatic, 1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_SummaryOnlyAndObserver(t *testing.T) {
	var seen []int
	r := NewRunner(RunnerOptions{
		SummaryOnly: true,
		Observer:    func(rec *domain.TimestepRecord) { seen = append(seen, rec.Timestep) },
	})
	cfg := shortConfig(domain.ScenarioConfigRegulatory, domain.ControllerStatic, 3)
	res, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Empty(t, res.Records)
	assert.Len(t, seen, cfg.Horizon)
	assert.NotNil(t, res.Summary)
	assert.Len(t, res.Governance, 6)
}

func TestCheckInvariants(t *testing.T) {
	base := func() *domain.SimulationState {
		return &domain.SimulationState{
			TotalSupply: 1000 + 10 - 4,
			Circulating: 500,
			Treasury:    100,
			Price:       0.1,
			Emission:    10,
			Burn:        4,
		}
	}
	b := &bounds{lo: 5, hi: 20}

	tests := []struct {
		name   string
		mutate func(*domain.SimulationState)
		want   string
	}{
		{"valid", func(*domain.SimulationState) {}, ""},
		{"supply drift", func(s *domain.SimulationState) { s.TotalSupply += 1 }, InvariantSupplyConservation},
		{"nan supply", func(s *domain.SimulationState) { s.TotalSupply = math.NaN() }, InvariantSupplyConservation},
		{"negative circulating", func(s *domain.SimulationState) { s.Circulating = -1 }, InvariantCirculatingRange},
		{"circulating above supply", func(s *domain.SimulationState) { s.Circulating = 2000 }, InvariantCirculatingRange},
		{"zero price", func(s *domain.SimulationState) { s.Price = 0 }, InvariantPricePositive},
		{"negative treasury", func(s *domain.SimulationState) { s.Treasury = -0.5 }, InvariantTreasuryNonNeg},
		{"emission above ceiling", func(s *domain.SimulationState) { s.Emission = 21; s.TotalSupply = 1000 + 21 - 4 }, InvariantEmissionBounds},
		{"emission below floor", func(s *domain.SimulationState) { s.Emission = 4; s.TotalSupply = 1000 }, InvariantEmissionBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := checkInvariants(9, 1000, s, b)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			var inv *InvariantError
			require.ErrorAs(t, err, &inv)
			assert.Equal(t, tt.want, inv.Invariant)
			assert.Equal(t, 9, inv.Timestep)
		})
	}

	// Static runs pass nil bounds.
	s := base()
	s.Emission, s.TotalSupply = 100, 1096
	assert.NoError(t, checkInvariants(0, 1000, s, nil))
}

func TestShockResponseDays(t *testing.T) {
	tests := []struct {
		name  string
		onset int
		nodes []int
		want  int
	}{
		{"no shock", -1, []int{100, 100, 100}, -1},
		{"never left band", 2, []int{100, 100, 95, 105, 100}, 0},
		{"recovers", 2, []int{100, 100, 70, 80, 92, 100}, 2},
		{"never recovers", 2, []int{100, 100, 70, 75, 80}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pathStats{onset: tt.onset, nodes: tt.nodes}
			assert.Equal(t, tt.want, p.shockResponseDays())
		})
	}
}

func TestS2RBenchmark(t *testing.T) {
	cal := domain.DefaultCalibration()
	assert.InDelta(t, cal.S2RL/2, S2RBenchmark(cal, cal.S2RT0), 1e-12)
	assert.Less(t, S2RBenchmark(cal, 1), S2RBenchmark(cal, 60))
}

func TestRun_UnencodableConfigFailsBeforeAnyStep(t *testing.T) {
	calls := 0
	r := NewRunner(RunnerOptions{Observer: func(*domain.TimestepRecord) { calls++ }})

	cfg := shortConfig(domain.ScenarioConfigBull, domain.ControllerPID, 1)
	cfg.Calibration.BenchmarkGini = math.NaN()
	require.NoError(t, cfg.Validate())

	res, err := r.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Zero(t, calls)

	_, err = ConfigJSON(cfg)
	assert.Error(t, err)
}

func TestRun_SummaryCarriesReplayableConfig(t *testing.T) {
	cfg := shortConfig(domain.ScenarioConfigCompetitor, domain.ControllerStatic, 5)
	res := runOnce(t, cfg)

	require.NotEmpty(t, res.Summary.ConfigJSON)
	got, err := ParseConfigJSON(res.Summary.ConfigJSON)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestConfigJSON_RoundTrip(t *testing.T) {
	cfg := domain.DefaultRunConfig(domain.ScenarioConfigCompetitor, domain.ControllerPID, 99)
	cfg.Controller.IntegralClamp = domain.IntegralUnclamped

	s, err := ConfigJSON(cfg)
	require.NoError(t, err)
	got, err := ParseConfigJSON(s)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Equal(t, RunID(cfg), RunID(got))

	_, err = ParseConfigJSON("{")
	assert.Error(t, err)
}
