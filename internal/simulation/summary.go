package simulation

import (
	"math"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/governance"
	"meshnet-sim/internal/idhash"
	"meshnet-sim/internal/metrics"
)

// boundSlack is how close E must be to a bound to count as saturated.
const boundSlack = 1.0

// responseBand is the relative band N must re-enter after a shock.
const responseBand = 0.10

// pathStats accumulates path metrics while the run progresses.
type pathStats struct {
	target  float64
	floor   float64
	ceiling float64
	onset   int // -1 without shock

	nodes     []int
	emissions []float64

	sumAbsDev    float64
	minNodes     int
	maxNodes     int
	maxBME       float64
	floorSteps   int
	ceilingSteps int
	adjustments  int
}

func newPathStats(cfg domain.RunConfig) pathStats {
	onset := -1
	if cfg.Scenario.Shock != nil {
		onset = cfg.Scenario.Shock.OnsetDay()
	}
	return pathStats{
		target:    float64(cfg.Controller.TargetNodes),
		floor:     cfg.Controller.Floor(),
		ceiling:   cfg.Controller.Ceiling(),
		onset:     onset,
		nodes:     make([]int, 0, cfg.Horizon),
		emissions: make([]float64, 0, cfg.Horizon),
		minNodes:  math.MaxInt,
	}
}

func (p *pathStats) observe(rec *domain.TimestepRecord) {
	if n := len(p.emissions); n > 0 && rec.Emission != p.emissions[n-1] {
		p.adjustments++
	}
	p.nodes = append(p.nodes, rec.Nodes)
	p.emissions = append(p.emissions, rec.Emission)

	p.sumAbsDev += math.Abs(float64(rec.Nodes)-p.target) / p.target
	p.minNodes = min(p.minNodes, rec.Nodes)
	p.maxNodes = max(p.maxNodes, rec.Nodes)
	p.maxBME = math.Max(p.maxBME, rec.BME)

	if rec.Emission <= p.floor+boundSlack {
		p.floorSteps++
	}
	if rec.Emission >= p.ceiling-boundSlack {
		p.ceilingSteps++
	}
}

// shockResponseDays returns the days from onset until N is back within
// the response band of its pre-shock value, 0 if it never left the band,
// or -1 if there is no shock or N never recovered.
func (p *pathStats) shockResponseDays() int {
	if p.onset < 1 || p.onset >= len(p.nodes) {
		return -1
	}
	pre := float64(p.nodes[p.onset-1])
	within := func(n int) bool {
		return math.Abs(float64(n)-pre) <= responseBand*math.Max(pre, 1)
	}

	left := false
	for t := p.onset; t < len(p.nodes); t++ {
		in := within(p.nodes[t])
		if !in {
			left = true
			continue
		}
		if left {
			return t - p.onset
		}
	}
	if !left {
		return 0
	}
	return -1
}

// S2RBenchmark evaluates the calibrated logistic burn-mint curve at month.
func S2RBenchmark(cal domain.Calibration, month float64) float64 {
	return cal.S2RL / (1 + math.Exp(-cal.S2RK*(month-cal.S2RT0)))
}

func (rn *run) summarize() (*domain.RunSummary, []governance.Report) {
	cfg := rn.cfg
	st := rn.state
	p := &rn.path
	horizon := len(p.nodes)
	final := p.nodes[horizon-1]

	holders := rn.pop.Holders(horizon - 1)
	reports := governance.ExponentSweep(holders, governance.DefaultSweepFormulas(), cfg.Initial.TotalSupply)
	atDefault := governance.Concentration(holders, governance.PowerFormula(governance.DefaultExponent), cfg.Initial.TotalSupply)

	emissionStd, _ := metrics.Stddev(p.emissions)

	s := &domain.RunSummary{
		RunID:      rn.runID,
		ShortID:    idhash.ShortID(rn.runID),
		Scenario:   cfg.Scenario.Name,
		Controller: cfg.Controller.Kind,
		Seed:       cfg.Seed,
		ParamKey:   cfg.ParamKey(),
		ConfigJSON: rn.configJSON,
		Horizon:    horizon,

		FinalNodes:       final,
		Deviation:        math.Abs(float64(final)-p.target) / p.target,
		MeanAbsDeviation: p.sumAbsDev / float64(horizon),
		MinNodes:         p.minNodes,
		MaxNodes:         p.maxNodes,

		TotalEmission:    st.EmittedTotal,
		TotalBurned:      st.BurnedTotal,
		TotalSlashed:     st.SlashedTotal,
		TotalSubsidy:     st.SubsidyTotal,
		FinalTotalSupply: st.TotalSupply,
		FinalCirculating: st.Circulating,
		FinalTreasury:    st.Treasury,
		FinalPrice:       st.Price,
		FraudCapturedPct: fraudCapturedPct(st.FraudCaptured, st.EmittedTotal),

		MaxBME:       p.maxBME,
		FinalBME:     st.Burn / math.Max(st.Emission, 1),
		S2RBenchmark: S2RBenchmark(cfg.Calibration, float64(horizon)/domain.DaysPerMonth),

		FloorSteps:        p.floorSteps,
		CeilingSteps:      p.ceilingSteps,
		Adjustments:       p.adjustments,
		EmissionStd:       emissionStd,
		FinalIntegral:     st.Integral,
		ShockResponseDays: p.shockResponseDays(),

		GovernanceGini:    atDefault.Gini,
		GovernanceTop1:    atDefault.Top1Share,
		WhaleCaptureShare: atDefault.WhaleCaptureShare,
	}
	return s, reports
}
