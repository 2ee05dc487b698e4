package washtrade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshnet-sim/internal/domain"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Nodes = 200
	cfg.Days = 60
	cfg.Runs = 4
	return cfg
}

func TestRun_Deterministic(t *testing.T) {
	cfg := smallConfig()
	assert.Equal(t, Run(cfg, 5000, true), Run(cfg, 5000, true))
	assert.NotEqual(t, Run(cfg, 5000, false).FraudRatePct, Run(cfg, 5001, false).FraudRatePct)
}

func TestRun_NoPoCNeverSlashes(t *testing.T) {
	r := Run(smallConfig(), 1, false)
	assert.Zero(t, r.TotalSlashed)
	assert.Equal(t, 30, r.SurvivingMercenaries)
	assert.Equal(t, 170, r.SurvivingHonest)
	assert.Positive(t, r.FraudRatePct)
}

func TestRun_FullSlashRemovesCaughtFraudsters(t *testing.T) {
	cfg := smallConfig()
	cfg.Days = 365
	cfg.SlashFraction = 1
	cfg.CatchRate = 1
	r := Run(cfg, 9, true)
	assert.Zero(t, r.FraudRatePct)
	assert.Zero(t, r.SurvivingMercenaries)
	assert.InDelta(t, 30*cfg.InitialStake, r.TotalSlashed, 1e-6)
}

func TestRun_HonestNetwork(t *testing.T) {
	cfg := smallConfig()
	cfg.MercenaryFraction = 0
	r := Run(cfg, 3, true)
	assert.Zero(t, r.FraudRatePct)
	assert.InDelta(t, 0, r.HonestYieldImpactPct, 1e-9)
}

func TestMonteCarlo_Layout(t *testing.T) {
	cfg := smallConfig()
	res, err := MonteCarlo(context.Background(), cfg, 3)
	require.NoError(t, err)
	require.Len(t, res.Runs, 2*cfg.Runs)

	assert.True(t, res.Runs[0].PoC)
	assert.Equal(t, cfg.BaseSeed, res.Runs[0].Seed)
	assert.False(t, res.Runs[cfg.Runs].PoC)
	assert.Equal(t, cfg.BaseSeed, res.Runs[cfg.Runs].Seed)
	assert.Equal(t, Run(cfg, cfg.BaseSeed+2, false), res.Runs[cfg.Runs+2])

	assert.LessOrEqual(t, res.NoPoC.FraudRateP25, res.NoPoC.FraudRateMedian)
	assert.LessOrEqual(t, res.NoPoC.FraudRateMedian, res.NoPoC.FraudRateP75)
	assert.Less(t, res.WithPoC.FraudRateMean, res.NoPoC.FraudRateMean)
}

func TestMonteCarlo_InvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.CatchRate = 1.5
	_, err := MonteCarlo(context.Background(), cfg, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

// Proof-of-coverage at 97% cuts captured emissions from about 3% to about
// 0.09% over 100 runs per arm.
func TestMonteCarlo_ReferenceBands(t *testing.T) {
	if testing.Short() {
		t.Skip("200-run Monte Carlo")
	}
	res, err := MonteCarlo(context.Background(), DefaultConfig(), 0)
	require.NoError(t, err)

	t.Logf("without PoC %.3f%%, with PoC %.4f%%", res.NoPoC.FraudRateMean, res.WithPoC.FraudRateMean)
	assert.InDelta(t, 3.0, res.NoPoC.FraudRateMean, 0.3)
	assert.GreaterOrEqual(t, res.WithPoC.FraudRateMean, 0.07)
	assert.LessOrEqual(t, res.WithPoC.FraudRateMean, 0.11)
	assert.Equal(t, 100, res.WithPoC.Runs)
}
