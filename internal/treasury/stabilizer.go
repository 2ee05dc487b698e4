// Package treasury implements the subsidy circuit breaker that pays
// operators out of the treasury when yield collapses.
package treasury

import (
	"math"

	"meshnet-sim/internal/domain"
)

// minPrice floors the USD-to-token conversion.
const minPrice = 0.001

// Stabilizer decides whether and how much to subsidize on one timestep.
type Stabilizer struct {
	OpportunityCost float64 // USD/day
	Trigger         float64 // fires when yield < Trigger x OpportunityCost
	ReserveFloor    float64 // tokens; treasury must exceed this
	DailyCap        float64 // fraction of treasury payable per day
}

// NewStabilizer builds a stabilizer from economy parameters. The reserve
// floor is a fixed fraction of the initial total supply.
func NewStabilizer(cfg domain.EconomyConfig, totalSupply float64) *Stabilizer {
	return &Stabilizer{
		OpportunityCost: cfg.OpportunityCost,
		Trigger:         cfg.SubsidyTrigger,
		ReserveFloor:    totalSupply * cfg.ReserveFraction,
		DailyCap:        cfg.DailyCap,
	}
}

// MaybeSubsidize returns the tokens to move from treasury to circulation.
// It returns zero unless per-operator USD yield is below the trigger and
// the treasury is above its reserve floor. The payment covers the
// per-operator deficit for every active operator, capped at DailyCap of
// the treasury.
func (s *Stabilizer) MaybeSubsidize(yieldUSD float64, active int, treasury, price float64) float64 {
	threshold := s.Trigger * s.OpportunityCost
	if active <= 0 || yieldUSD >= threshold || treasury <= s.ReserveFloor {
		return 0
	}
	deficit := threshold - yieldUSD
	want := deficit / math.Max(price, minPrice) * float64(active)
	return math.Min(want, treasury*s.DailyCap)
}
