package agents

import (
	"math"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/governance"
	"meshnet-sim/internal/rng"
)

// Uptime bounds applied after every jitter.
const (
	minUptime = 0.5
	maxUptime = 1.0
)

// minDenominator guards per-operator shares against an empty active set.
const minDenominator = 1

// StepInput is the market context operators react to on one timestep.
type StepInput struct {
	Timestep       int
	Emission       float64 // tokens/day
	DailyFee       float64 // USD/day
	Price          float64 // USD/token
	CostMultiplier float64
}

// StepOutcome reports what the population did on one timestep.
type StepOutcome struct {
	ActiveBefore  int
	PerOpEmission float64 // tokens
	PerOpFee      float64 // tokens
	OperatingCost float64 // USD, shared draw for the step
	YieldUSD      float64 // gross per-operator yield before operating cost
	Slashed       float64 // tokens moved to treasury
	FraudCaptured float64 // uncaught fraud yield, audit only
	Exited        int
	Insolvent     int
}

// Population owns every operator of one run. Not safe for concurrent use;
// each run has its own.
type Population struct {
	cfg    domain.EconomyConfig
	target int
	src    *rng.Source
	ledger *ReputationLedger

	ops    []Operator
	active int
	// whales consume their draws at start-up so the operator stream that
	// follows matches across model versions. They hold no stake and are
	// not governance holders.
	whales []Whale
}

// NewPopulation creates the initial operators and whales. Draw order is
// fixed (operators, then whales) so runs are reproducible from the seed.
func NewPopulation(cfg domain.EconomyConfig, target, initial int, totalSupply float64, src *rng.Source) *Population {
	p := &Population{
		cfg:    cfg,
		target: target,
		src:    src,
		ledger: NewReputationLedger(cfg),
		ops:    make([]Operator, 0, initial+initial/2),
	}

	high := int(float64(initial) * cfg.InitialMix.HighCommitment)
	merc := int(float64(initial) * cfg.InitialMix.Mercenary)
	casual := initial - high - merc

	for _, block := range []struct {
		profile domain.Profile
		count   int
	}{
		{domain.ProfileHighCommitment, high},
		{domain.ProfileCasual, casual},
		{domain.ProfileMercenary, merc},
	} {
		for i := 0; i < block.count; i++ {
			p.add(block.profile, cfg.InitialUptimeNoise, 0)
		}
	}

	p.whales = make([]Whale, cfg.WhaleCount)
	for i := range p.whales {
		pct := cfg.WhaleMinPct + src.Float64()*(cfg.WhaleMaxPct-cfg.WhaleMinPct)
		p.whales[i] = Whale{ID: i, Balance: math.Floor(totalSupply * pct)}
	}
	return p
}

// add appends an active operator drawn from the profile table.
func (p *Population) add(profile domain.Profile, uptimeNoise float64, t int) {
	params := p.cfg.Profiles[profile]
	uptime := clampUptime(params.UptimeBase + p.src.Normal(0, uptimeNoise))
	stake := float64(p.cfg.StakeMin + p.src.Intn(p.cfg.StakeSpread))

	p.ops = append(p.ops, Operator{
		ID:            len(p.ops),
		Profile:       profile,
		Stake:         stake,
		Uptime:        uptime,
		FraudProb:     params.FraudProb,
		ExitThreshold: params.ExitThreshold,
		LastSeason:    p.ledger.Season(t),
		Active:        true,
	})
	p.active++
}

// ActiveCount returns the number of active operators.
func (p *Population) ActiveCount() int {
	return p.active
}

// Size returns the number of operators ever created.
func (p *Population) Size() int {
	return len(p.ops)
}

// Operator returns a copy of the operator with the given ID.
func (p *Population) Operator(id int) (Operator, bool) {
	if id < 0 || id >= len(p.ops) {
		return Operator{}, false
	}
	return p.ops[id], true
}

// Ledger returns the reputation ledger used by the population.
func (p *Population) Ledger() *ReputationLedger {
	return p.ledger
}

// Operate runs uptime jitter, downtime slashing, fraud, exit, and insolvency
// for every active operator. Inactive operators are skipped.
func (p *Population) Operate(in StepInput) StepOutcome {
	out := StepOutcome{ActiveBefore: p.active}
	if p.active == 0 {
		return out
	}

	denom := float64(max(p.active, minDenominator))
	out.PerOpEmission = in.Emission / denom
	out.PerOpFee = in.DailyFee * (1 - p.cfg.ProtocolFee) / denom
	out.OperatingCost = (p.cfg.OperatingCost + p.src.Normal(0, p.cfg.OperatingCostStd)) * in.CostMultiplier
	out.YieldUSD = (out.PerOpEmission + out.PerOpFee) * in.Price
	netYield := out.YieldUSD - out.OperatingCost

	for i := range p.ops {
		op := &p.ops[i]
		if !op.Active {
			continue
		}

		op.Uptime = clampUptime(op.Uptime + p.src.Normal(0, p.cfg.UptimeJitter))

		if op.Uptime < p.cfg.DowntimeThreshold {
			out.Slashed += p.slash(op, p.cfg.SlashDowntime)
		}

		if op.FraudProb > 0 && p.src.Bernoulli(op.FraudProb) {
			if p.src.Bernoulli(p.cfg.CatchRate) {
				out.Slashed += p.slash(op, p.cfg.SlashFraud)
			} else {
				out.FraudCaptured += out.PerOpEmission * p.cfg.FraudCapture
			}
		}

		if netYield < op.ExitThreshold*p.cfg.OpportunityCost && p.src.Bernoulli(p.exitProb(op)) {
			p.deactivate(op)
			out.Exited++
			continue
		}

		if op.Stake <= 0 {
			p.deactivate(op)
			out.Insolvent++
		}
	}
	return out
}

// slash removes a whole-token fraction of stake and returns the amount.
func (p *Population) slash(op *Operator, fraction float64) float64 {
	amount := math.Floor(op.Stake * fraction)
	op.Stake -= amount
	return amount
}

func (p *Population) exitProb(op *Operator) float64 {
	if op.SeasonsActive >= p.cfg.VeteranSeasons {
		return p.cfg.ExitProbVeteran
	}
	return p.cfg.ExitProbBase
}

func (p *Population) deactivate(op *Operator) {
	if !op.Active {
		return
	}
	op.Active = false
	p.active--
}

// EntryCount returns how many operators join given the gross per-operator
// yield. Entry needs yield above EntryYieldMult x opportunity cost; the rate
// is capped proportionally and absolutely, and tapers linearly to zero as
// the active count rises from N* to (1 + taper width) N*.
func (p *Population) EntryCount(yieldUSD float64) int {
	if yieldUSD <= p.cfg.EntryYieldMult*p.cfg.OpportunityCost {
		return 0
	}
	factor := 1.0
	if p.active > p.target {
		excess := float64(p.active-p.target) / (float64(p.target) * p.cfg.EntryTaperWidth)
		factor = math.Max(0, 1-excess)
	}
	base := min(int(float64(p.active)*p.cfg.EntryRate), p.cfg.EntryCapAbs)
	return max(0, int(float64(base)*factor))
}

// Admit adds entrants for timestep t and returns how many joined.
func (p *Population) Admit(yieldUSD float64, t int) int {
	n := p.EntryCount(yieldUSD)
	weights := make([]float64, len(domain.Profiles))
	for i, prof := range domain.Profiles {
		weights[i] = p.cfg.EntrantMix.Weight(prof)
	}
	for i := 0; i < n; i++ {
		p.add(domain.Profiles[p.src.Choice(weights)], p.cfg.EntrantUptimeNoise, t)
	}
	return n
}

// Poach deactivates int(rate x active) operators, taking only
// non-high-commitment operators in ID order. Returns how many were removed.
func (p *Population) Poach(rate float64) int {
	quota := int(float64(p.active) * rate)
	removed := 0
	for i := range p.ops {
		if removed >= quota {
			break
		}
		op := &p.ops[i]
		if op.Active && op.Profile != domain.ProfileHighCommitment {
			p.deactivate(op)
			removed++
		}
	}
	return removed
}

// SeasonBoundary settles reputation for active operators when t closes a
// season. Inactive operators are settled lazily by ReputationAt.
func (p *Population) SeasonBoundary(t int) bool {
	if !p.ledger.IsBoundary(t) {
		return false
	}
	for i := range p.ops {
		if p.ops[i].Active {
			p.ledger.UpdateSeason(&p.ops[i], t)
		}
	}
	return true
}

// Holders returns active operators as governance holders at timestep t.
func (p *Population) Holders(t int) []governance.Holder {
	holders := make([]governance.Holder, 0, p.active)
	for i := range p.ops {
		op := &p.ops[i]
		if !op.Active {
			continue
		}
		holders = append(holders, governance.Holder{
			Balance:    op.Stake,
			Reputation: p.ledger.ReputationAt(op, t),
		})
	}
	return holders
}

func clampUptime(u float64) float64 {
	return math.Max(minUptime, math.Min(maxUptime, u))
}
