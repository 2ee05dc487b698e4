// Package demand converts network coverage and scenario conditions into
// daily fee revenue. Demand is an aggregate flow, not individual users.
package demand

import (
	"math"

	"meshnet-sim/internal/domain"
)

// Model parameters. Defaults come from DefaultModel.
type Model struct {
	BaseRevenue   float64 // USD/day at full coverage, t=0
	LowCoverage   float64 // below: linear regime
	HighCoverage  float64 // above: ratio^1.5 regime
	MidExponent   float64
	HighExponent  float64
	CoverageCap   float64 // max coverage factor
	NoiseStd      float64 // multiplicative Gaussian noise
	RevenueFloor  float64 // revenue never falls below this
	ContractFloor float64 // demand contraction multiplier floor
	PoachLossCap  float64 // max demand loss after an operator-poach shock
	PoachLossRate float64 // demand loss per month after an operator-poach shock
}

// DefaultModel returns the reference demand model.
func DefaultModel() Model {
	return Model{
		BaseRevenue:   1000,
		LowCoverage:   0.3,
		HighCoverage:  0.8,
		MidExponent:   1.3,
		HighExponent:  1.5,
		CoverageCap:   2.0,
		NoiseStd:      0.05,
		RevenueFloor:  50,
		ContractFloor: 0.3,
		PoachLossCap:  0.30,
		PoachLossRate: 0.05,
	}
}

// CoverageFactor maps coverage ratio N/N* to the superlinear demand unlock.
func (m Model) CoverageFactor(ratio float64) float64 {
	switch {
	case ratio < m.LowCoverage:
		return ratio
	case ratio < m.HighCoverage:
		return math.Pow(ratio, m.MidExponent)
	default:
		return math.Min(math.Pow(ratio, m.HighExponent), m.CoverageCap)
	}
}

// DailyGrowth converts an annual growth rate into a compounding daily rate.
func DailyGrowth(annual float64) float64 {
	return math.Pow(1+annual, 1.0/365) - 1
}

// CostMultiplier returns the operating-cost multiplier in force at t. A
// cost-increase shock applies from its onset day inclusive.
func CostMultiplier(sc domain.ScenarioConfig, t int) float64 {
	if sc.HasShock(domain.ShockCostIncrease) && t >= sc.Shock.OnsetDay() {
		return sc.Shock.Magnitude
	}
	return 1.0
}

// DailyFee returns fee revenue for timestep t. noise is a standard normal
// draw supplied by the caller's random source.
func (m Model) DailyFee(coverageRatio float64, sc domain.ScenarioConfig, t int, noise float64) float64 {
	base := m.BaseRevenue * m.CoverageFactor(coverageRatio) * math.Pow(1+DailyGrowth(sc.DemandGrowth), float64(t))
	base *= m.shockFactor(sc, t)
	return math.Max(m.RevenueFloor, base*(1+m.NoiseStd*noise))
}

// shockFactor is the revenue multiplier of the scenario shock at t.
func (m Model) shockFactor(sc domain.ScenarioConfig, t int) float64 {
	if !sc.ShockStarted(t) {
		return 1.0
	}
	months := sc.MonthsSinceShock(t)
	switch sc.Shock.Type {
	case domain.ShockDemandContraction:
		return math.Max(m.ContractFloor, 1-sc.Shock.Magnitude*months)
	case domain.ShockCostIncrease:
		return 1 / sc.Shock.Magnitude
	case domain.ShockOperatorPoach:
		return 1 - math.Min(m.PoachLossCap, m.PoachLossRate*months)
	}
	return 1.0
}
