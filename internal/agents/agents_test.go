package agents

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/rng"
)

func newTestPopulation(t *testing.T, initial int) *Population {
	t.Helper()
	cfg := domain.DefaultEconomyConfig()
	require.NoError(t, cfg.Validate())
	return NewPopulation(cfg, 10000, initial, 1e9, rng.New(42))
}

func TestReputation_ClosedFormDecay(t *testing.T) {
	ledger := NewReputationLedger(domain.DefaultEconomyConfig())

	for _, k := range []int{1, 2, 7, 40, 1000} {
		op := &Operator{Reputation: 4.0, LastSeason: 0, Active: false}
		ledger.UpdateSeason(op, k*90)

		assert.InDelta(t, 4.0*math.Pow(0.85, float64(k)), op.Reputation, 1e-12, "k=%d", k)
		assert.Equal(t, k, op.LastSeason)
		assert.Equal(t, 0, op.SeasonsActive)
	}
}

func TestReputation_Idempotent(t *testing.T) {
	ledger := NewReputationLedger(domain.DefaultEconomyConfig())
	op := &Operator{Reputation: 2.0, Uptime: 0.999, Active: true}

	ledger.UpdateSeason(op, 90)
	once := *op
	ledger.UpdateSeason(op, 90)
	ledger.UpdateSeason(op, 135)

	assert.Equal(t, once, *op)
	assert.InDelta(t, 2.0*0.85+1.0, op.Reputation, 1e-12)
	assert.Equal(t, 1, op.SeasonsActive)
}

func TestReputation_AccrualRequiresUptimeAndCap(t *testing.T) {
	ledger := NewReputationLedger(domain.DefaultEconomyConfig())

	low := &Operator{Reputation: 1.0, Uptime: 0.98, Active: true}
	ledger.UpdateSeason(low, 90)
	assert.InDelta(t, 0.85, low.Reputation, 1e-12)

	high := &Operator{Reputation: 5.0, Uptime: 1.0, Active: true}
	ledger.UpdateSeason(high, 90)
	assert.Equal(t, 5.0, high.Reputation)
}

func TestReputation_LazyMatchesEager(t *testing.T) {
	ledger := NewReputationLedger(domain.DefaultEconomyConfig())
	lazy := &Operator{Reputation: 3.0, LastSeason: 2}
	eager := *lazy

	got := ledger.ReputationAt(lazy, 9*90+10)
	ledger.UpdateSeason(&eager, 9*90)

	assert.InDelta(t, eager.Reputation, got, 1e-12)
	assert.Equal(t, 3.0, lazy.Reputation, "ReputationAt must not mutate")
}

func TestNewPopulation_MixAndWhales(t *testing.T) {
	p := newTestPopulation(t, 2000)

	require.Equal(t, 2000, p.ActiveCount())
	require.Equal(t, 2000, p.Size())

	counts := map[domain.Profile]int{}
	for id := 0; id < p.Size(); id++ {
		op, ok := p.Operator(id)
		require.True(t, ok)
		counts[op.Profile]++
		assert.GreaterOrEqual(t, op.Stake, 10000.0)
		assert.Less(t, op.Stake, 30000.0)
		assert.LessOrEqual(t, op.Uptime, 1.0)
	}
	assert.Equal(t, 800, counts[domain.ProfileHighCommitment])
	assert.Equal(t, 300, counts[domain.ProfileMercenary])
	assert.Equal(t, 900, counts[domain.ProfileCasual])

	whales := p.whales
	require.Len(t, whales, 5)
	for _, w := range whales {
		assert.GreaterOrEqual(t, w.Balance, 0.02e9-1)
		assert.LessOrEqual(t, w.Balance, 0.05e9)
	}
}

func TestOperate_EmptySetIsSafe(t *testing.T) {
	p := newTestPopulation(t, 0)

	out := p.Operate(StepInput{Emission: 109589, DailyFee: 500, Price: 0.1, CostMultiplier: 1})
	assert.Equal(t, 0, out.ActiveBefore)
	assert.False(t, math.IsNaN(out.PerOpEmission))
	assert.False(t, math.IsInf(out.PerOpEmission, 0))
	assert.Equal(t, 0, p.Admit(out.YieldUSD, 1))
	assert.Equal(t, 0, p.Poach(0.5))
	assert.Empty(t, p.Holders(1))
}

func TestOperate_DowntimeSlashGoesToOutcome(t *testing.T) {
	cfg := domain.DefaultEconomyConfig()
	cfg.UptimeJitter = 0
	cfg.Profiles[domain.ProfileCasual] = domain.ProfileParams{ExitThreshold: 0, UptimeBase: 0.6, FraudProb: 0}
	cfg.InitialMix = domain.ProfileMix{Casual: 1}
	cfg.InitialUptimeNoise = 0

	p := NewPopulation(cfg, 10000, 10, 1e9, rng.New(1))
	stakes := 0.0
	for id := 0; id < p.Size(); id++ {
		op, _ := p.Operator(id)
		stakes += math.Floor(op.Stake * 0.10)
	}

	out := p.Operate(StepInput{Emission: 1e6, DailyFee: 500, Price: 1, CostMultiplier: 1})
	assert.Equal(t, stakes, out.Slashed)
	assert.Equal(t, 10, p.ActiveCount())
}

func TestOperate_FraudFullForfeitureDeactivates(t *testing.T) {
	cfg := domain.DefaultEconomyConfig()
	cfg.Profiles[domain.ProfileMercenary] = domain.ProfileParams{ExitThreshold: 0, UptimeBase: 1, FraudProb: 1}
	cfg.InitialMix = domain.ProfileMix{Mercenary: 1}
	cfg.CatchRate = 1

	p := NewPopulation(cfg, 10000, 20, 1e9, rng.New(3))
	out := p.Operate(StepInput{Emission: 1e6, DailyFee: 500, Price: 1, CostMultiplier: 1})

	assert.Equal(t, 20, out.Insolvent)
	assert.Equal(t, 0, p.ActiveCount())
	assert.Greater(t, out.Slashed, 20*9999.0)
	assert.Equal(t, 0.0, out.FraudCaptured)

	// inactive operators are untouched on the next step
	again := p.Operate(StepInput{Emission: 1e6, DailyFee: 500, Price: 1, CostMultiplier: 1})
	assert.Equal(t, 0.0, again.Slashed)
}

func TestOperate_UncaughtFraudIsAuditedNotPaid(t *testing.T) {
	cfg := domain.DefaultEconomyConfig()
	cfg.Profiles[domain.ProfileMercenary] = domain.ProfileParams{ExitThreshold: 0, UptimeBase: 1, FraudProb: 1}
	cfg.InitialMix = domain.ProfileMix{Mercenary: 1}
	cfg.CatchRate = 0

	p := NewPopulation(cfg, 10000, 10, 1e9, rng.New(3))
	before, _ := p.Operator(0)
	out := p.Operate(StepInput{Emission: 1000, DailyFee: 500, Price: 1, CostMultiplier: 1})
	after, _ := p.Operator(0)

	assert.InDelta(t, 10*100*0.1, out.FraudCaptured, 1e-9)
	assert.Equal(t, before.Stake, after.Stake)
}

func TestEntryCount_CapsAndTaper(t *testing.T) {
	cfg := domain.DefaultEconomyConfig()

	small := NewPopulation(cfg, 10000, 500, 1e9, rng.New(1))
	assert.Equal(t, 0, small.EntryCount(10.0), "yield must exceed 2x opportunity cost")
	assert.Equal(t, 15, small.EntryCount(10.01))

	large := NewPopulation(cfg, 10000, 5000, 1e9, rng.New(1))
	assert.Equal(t, 30, large.EntryCount(100))

	over := NewPopulation(cfg, 1000, 1100, 1e9, rng.New(1))
	assert.Equal(t, 15, over.EntryCount(100), "half way to 1.2 N* halves entry")

	saturated := NewPopulation(cfg, 1000, 1200, 1e9, rng.New(1))
	assert.Equal(t, 0, saturated.EntryCount(100))
}

func TestAdmit_AddsActiveOperators(t *testing.T) {
	p := newTestPopulation(t, 1000)

	n := p.Admit(100, 200)
	assert.Equal(t, 30, n)
	assert.Equal(t, 1030, p.ActiveCount())

	op, ok := p.Operator(1029)
	require.True(t, ok)
	assert.True(t, op.Active)
	assert.Equal(t, 2, op.LastSeason)
}

func TestPoach_ExcludesHighCommitment(t *testing.T) {
	p := newTestPopulation(t, 2000)

	removed := p.Poach(0.25)
	assert.Equal(t, 500, removed)
	assert.Equal(t, 1500, p.ActiveCount())

	for id := 0; id < p.Size(); id++ {
		op, _ := p.Operator(id)
		if op.Profile == domain.ProfileHighCommitment {
			assert.True(t, op.Active, "operator %d", id)
		}
	}
}

func TestPoach_QuotaLimitedByEligible(t *testing.T) {
	p := newTestPopulation(t, 100)

	removed := p.Poach(0.9)
	assert.Equal(t, 60, removed, "only casual and mercenary operators can be poached")
	assert.Equal(t, 40, p.ActiveCount())
}

func TestSeasonBoundary(t *testing.T) {
	p := newTestPopulation(t, 50)

	assert.False(t, p.SeasonBoundary(0))
	assert.False(t, p.SeasonBoundary(89))
	assert.True(t, p.SeasonBoundary(90))

	for id := 0; id < p.Size(); id++ {
		op, _ := p.Operator(id)
		assert.Equal(t, 1, op.SeasonsActive)
		assert.Equal(t, 1, op.LastSeason)
	}
}
