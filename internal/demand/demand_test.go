package demand

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"meshnet-sim/internal/domain"
)

func TestCoverageFactor_Regimes(t *testing.T) {
	m := DefaultModel()

	tests := []struct {
		name  string
		ratio float64
		want  float64
	}{
		{"empty network", 0, 0},
		{"linear regime", 0.2, 0.2},
		{"middle band", 0.5, math.Pow(0.5, 1.3)},
		{"at target", 1.0, 1.0},
		{"above target", 1.2, math.Pow(1.2, 1.5)},
		{"capped", 3.0, 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, m.CoverageFactor(tt.ratio), 1e-12)
		})
	}
}

func TestDailyGrowth_CompoundsToAnnual(t *testing.T) {
	for _, annual := range []float64{0.30, -0.15, 0} {
		d := DailyGrowth(annual)
		assert.InDelta(t, 1+annual, math.Pow(1+d, 365), 1e-9)
	}
}

func TestDailyFee_NoShockNoNoise(t *testing.T) {
	m := DefaultModel()
	sc := domain.ScenarioConfigBull

	got := m.DailyFee(1.0, sc, 365, 0)
	assert.InDelta(t, 1000*1.30, got, 1e-6)
}

func TestDailyFee_DemandContraction(t *testing.T) {
	m := DefaultModel()
	sc := domain.ScenarioConfigBear // onset day 360, 2%/month
	sc.DemandGrowth = 0

	before := m.DailyFee(1.0, sc, 360, 0)
	assert.InDelta(t, 1000.0, before, 1e-9, "onset day itself is not shocked")

	sixMonths := m.DailyFee(1.0, sc, 360+180, 0)
	assert.InDelta(t, 1000*(1-0.02*6), sixMonths, 1e-9)

	// floored at 0.3x
	late := m.DailyFee(1.0, sc, 360+30*100, 0)
	assert.InDelta(t, 300.0, late, 1e-9)
}

func TestDailyFee_CostIncrease(t *testing.T) {
	m := DefaultModel()
	sc := domain.ScenarioConfigRegulatory
	sc.DemandGrowth = 0

	got := m.DailyFee(1.0, sc, sc.Shock.OnsetDay()+1, 0)
	assert.InDelta(t, 1000/1.30, got, 1e-9)
}

func TestDailyFee_PoachRampsAndCaps(t *testing.T) {
	m := DefaultModel()
	sc := domain.ScenarioConfigCompetitor
	sc.DemandGrowth = 0
	onset := sc.Shock.OnsetDay()

	assert.InDelta(t, 1000*(1-0.10), m.DailyFee(1.0, sc, onset+60, 0), 1e-9)
	assert.InDelta(t, 1000*(1-0.30), m.DailyFee(1.0, sc, onset+600, 0), 1e-9)
}

func TestDailyFee_NeverBelowFloor(t *testing.T) {
	m := DefaultModel()
	sc := domain.ScenarioConfigSustainedContraction

	for _, noise := range []float64{-30, -5, 0, 5} {
		got := m.DailyFee(0, sc, 1800, noise)
		assert.GreaterOrEqual(t, got, m.RevenueFloor)
		assert.Greater(t, got, 0.0)
	}
}

func TestCostMultiplier(t *testing.T) {
	sc := domain.ScenarioConfigRegulatory
	onset := sc.Shock.OnsetDay()

	assert.Equal(t, 1.0, CostMultiplier(sc, onset-1))
	assert.Equal(t, 1.30, CostMultiplier(sc, onset))
	assert.Equal(t, 1.0, CostMultiplier(domain.ScenarioConfigBull, 1000))
}
