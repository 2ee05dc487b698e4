package agents

import (
	"math"

	"meshnet-sim/internal/domain"
)

// ReputationLedger applies seasonal reputation decay and accrual.
//
// Decay for missed seasons is applied in closed form, (1-decay)^missed, so
// the cost of settling an operator does not depend on how long it has been
// inactive. Settling twice within one season is a no-op.
type ReputationLedger struct {
	seasonDays    int
	decay         float64
	accrue        float64
	max           float64
	accrualUptime float64
}

// NewReputationLedger builds a ledger from the economy parameters.
func NewReputationLedger(cfg domain.EconomyConfig) *ReputationLedger {
	return &ReputationLedger{
		seasonDays:    cfg.SeasonDays,
		decay:         cfg.ReputationDecay,
		accrue:        cfg.ReputationAccrue,
		max:           cfg.ReputationMax,
		accrualUptime: cfg.AccrualUptime,
	}
}

// Season returns the season index containing timestep t.
func (l *ReputationLedger) Season(t int) int {
	return t / l.seasonDays
}

// IsBoundary reports whether t closes a season.
func (l *ReputationLedger) IsBoundary(t int) bool {
	return t > 0 && t%l.seasonDays == 0
}

// UpdateSeason settles op at timestep t: decay for every season since its
// last update, then accrual if it is active with uptime above threshold.
func (l *ReputationLedger) UpdateSeason(op *Operator, t int) {
	season := l.Season(t)
	missed := season - op.LastSeason
	if missed <= 0 {
		return
	}
	op.Reputation = l.decayed(op.Reputation, missed)
	op.LastSeason = season

	if !op.Active {
		return
	}
	op.SeasonsActive++
	if op.Uptime > l.accrualUptime {
		op.Reputation += l.accrue
	}
	op.Reputation = math.Min(op.Reputation, l.max)
}

// ReputationAt returns op's reputation as of timestep t without mutating it.
// Inactive operators are settled lazily through this path.
func (l *ReputationLedger) ReputationAt(op *Operator, t int) float64 {
	missed := l.Season(t) - op.LastSeason
	if missed <= 0 {
		return op.Reputation
	}
	return l.decayed(op.Reputation, missed)
}

func (l *ReputationLedger) decayed(rep float64, seasons int) float64 {
	return rep * math.Pow(1-l.decay, float64(seasons))
}
