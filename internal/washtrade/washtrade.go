// Package washtrade runs the wash-trading Monte Carlo: a fixed network where
// mercenary operators submit fabricated coverage claims, simulated with and
// without proof-of-coverage challenges.
package washtrade

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/metrics"
	"meshnet-sim/internal/rng"
)

// Config holds the Monte Carlo parameters.
type Config struct {
	Nodes             int     `yaml:"nodes" json:"nodes"`
	Days              int     `yaml:"days" json:"days"`
	DailyEmission     float64 `yaml:"daily_emission" json:"daily_emission"`
	MercenaryFraction float64 `yaml:"mercenary_fraction" json:"mercenary_fraction"`
	FraudProbMin      float64 `yaml:"fraud_prob_min" json:"fraud_prob_min"`
	FraudProbMax      float64 `yaml:"fraud_prob_max" json:"fraud_prob_max"`
	InitialStake      float64 `yaml:"initial_stake" json:"initial_stake"`
	CatchRate         float64 `yaml:"catch_rate" json:"catch_rate"`
	SlashFraction     float64 `yaml:"slash_fraction" json:"slash_fraction"`
	Runs              int     `yaml:"runs" json:"runs"` // per arm
	BaseSeed          int64   `yaml:"base_seed" json:"base_seed"`
}

// DefaultConfig returns the reference Monte Carlo setup.
func DefaultConfig() Config {
	return Config{
		Nodes:             1000,
		Days:              365,
		DailyEmission:     109_589,
		MercenaryFraction: 0.15,
		FraudProbMin:      0.1,
		FraudProbMax:      0.3,
		InitialStake:      20_000,
		CatchRate:         0.97,
		SlashFraction:     0.50,
		Runs:              100,
		BaseSeed:          5000,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Nodes <= 0 || c.Days <= 0 || c.Runs <= 0 {
		return fmt.Errorf("%w: nodes, days and runs must be positive", domain.ErrInvalidConfig)
	}
	if c.DailyEmission <= 0 || c.InitialStake <= 0 {
		return fmt.Errorf("%w: emission and stake must be positive", domain.ErrInvalidConfig)
	}
	for name, v := range map[string]float64{
		"mercenary_fraction": c.MercenaryFraction,
		"catch_rate":         c.CatchRate,
		"slash_fraction":     c.SlashFraction,
		"fraud_prob_min":     c.FraudProbMin,
		"fraud_prob_max":     c.FraudProbMax,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be in [0, 1], got %v", domain.ErrInvalidConfig, name, v)
		}
	}
	if c.FraudProbMax < c.FraudProbMin {
		return fmt.Errorf("%w: fraud probability range is inverted", domain.ErrInvalidConfig)
	}
	return nil
}

// RunResult is the outcome of one Monte Carlo run.
type RunResult struct {
	Seed                 int64   `json:"seed"`
	PoC                  bool    `json:"poc"`
	FraudRatePct         float64 `json:"fraud_rate_pct"` // fraudulent / total emission
	TotalSlashed         float64 `json:"total_slashed"`
	HonestYieldImpactPct float64 `json:"honest_yield_impact_pct"`
	SurvivingMercenaries int     `json:"surviving_mercenaries"`
	SurvivingHonest      int     `json:"surviving_honest"`
}

type operator struct {
	mercenary bool
	fraudProb float64
	stake     float64
	active    bool
}

// Run simulates one network for cfg.Days.
func Run(cfg Config, seed int64, withPoC bool) RunResult {
	src := rng.New(seed)

	mercs := int(float64(cfg.Nodes) * cfg.MercenaryFraction)
	ops := make([]operator, cfg.Nodes)
	for i := range ops {
		ops[i] = operator{mercenary: i < mercs, stake: cfg.InitialStake, active: true}
	}
	src.Shuffle(len(ops), func(i, j int) { ops[i], ops[j] = ops[j], ops[i] })
	for i := range ops {
		if ops[i].mercenary {
			ops[i].fraudProb = src.Uniform(cfg.FraudProbMin, cfg.FraudProbMax)
		}
	}

	var emitted, fraudulent, slashed, honestEarnings float64
	active := cfg.Nodes
	for day := 0; day < cfg.Days && active > 0; day++ {
		perOp := cfg.DailyEmission / float64(active)
		for i := range ops {
			op := &ops[i]
			if !op.active {
				continue
			}
			if op.mercenary && src.Bernoulli(op.fraudProb) {
				if withPoC && src.Bernoulli(cfg.CatchRate) {
					amount := op.stake * cfg.SlashFraction
					op.stake -= amount
					slashed += amount
					if op.stake <= 0 {
						op.active = false
						active--
					}
					continue
				}
				fraudulent += perOp
				emitted += perOp
				continue
			}
			emitted += perOp
			if !op.mercenary {
				honestEarnings += perOp
			}
		}
	}

	honest := cfg.Nodes - mercs
	expectedHonest := cfg.DailyEmission * float64(cfg.Days) * float64(honest) / float64(cfg.Nodes)
	res := RunResult{
		Seed:                 seed,
		PoC:                  withPoC,
		FraudRatePct:         fraudulent / math.Max(emitted, 1) * 100,
		TotalSlashed:         slashed,
		HonestYieldImpactPct: (honestEarnings - expectedHonest) / math.Max(expectedHonest, 1) * 100,
	}
	for _, op := range ops {
		switch {
		case !op.active:
		case op.mercenary:
			res.SurvivingMercenaries++
		default:
			res.SurvivingHonest++
		}
	}
	return res
}

// ArmSummary aggregates one arm (with or without PoC).
type ArmSummary struct {
	PoC                bool    `json:"poc"`
	Runs               int     `json:"runs"`
	FraudRateMean      float64 `json:"fraud_rate_mean"`
	FraudRateMedian    float64 `json:"fraud_rate_median"`
	FraudRateP25       float64 `json:"fraud_rate_p25"`
	FraudRateP75       float64 `json:"fraud_rate_p75"`
	FraudRateMin       float64 `json:"fraud_rate_min"`
	FraudRateMax       float64 `json:"fraud_rate_max"`
	SlashedMean        float64 `json:"slashed_mean"`
	HonestImpactMean   float64 `json:"honest_impact_mean"`
	SurvivingMercsMean float64 `json:"surviving_mercs_mean"`
}

// Result holds both arms of a Monte Carlo.
type Result struct {
	Config  Config      `json:"config"`
	Runs    []RunResult `json:"runs"` // PoC arm first, each in seed order
	WithPoC ArmSummary  `json:"with_poc"`
	NoPoC   ArmSummary  `json:"without_poc"`
}

// MonteCarlo runs cfg.Runs seeds per arm on up to workers goroutines
// (<= 0 uses GOMAXPROCS). Arms share seeds BaseSeed..BaseSeed+Runs-1.
func MonteCarlo(ctx context.Context, cfg Config, workers int) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	runs := make([]RunResult, 2*cfg.Runs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range runs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			withPoC := i < cfg.Runs
			runs[i] = Run(cfg, cfg.BaseSeed+int64(i%cfg.Runs), withPoC)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	withPoC, err := summarize(runs[:cfg.Runs], true)
	if err != nil {
		return nil, err
	}
	noPoC, err := summarize(runs[cfg.Runs:], false)
	if err != nil {
		return nil, err
	}
	return &Result{Config: cfg, Runs: runs, WithPoC: withPoC, NoPoC: noPoC}, nil
}

func summarize(runs []RunResult, poc bool) (ArmSummary, error) {
	rates := make([]float64, len(runs))
	var slashed, impact, mercs []float64
	for i, r := range runs {
		rates[i] = r.FraudRatePct
		slashed = append(slashed, r.TotalSlashed)
		impact = append(impact, r.HonestYieldImpactPct)
		mercs = append(mercs, float64(r.SurvivingMercenaries))
	}
	d, err := metrics.Describe(rates)
	if err != nil {
		return ArmSummary{}, err
	}
	p25, p75, err := metrics.IQR(rates)
	if err != nil {
		return ArmSummary{}, err
	}
	s := ArmSummary{
		PoC:             poc,
		Runs:            len(runs),
		FraudRateMean:   d.Mean,
		FraudRateMedian: d.P50,
		FraudRateP25:    p25,
		FraudRateP75:    p75,
		FraudRateMin:    d.Min,
		FraudRateMax:    d.Max,
	}
	s.SlashedMean, _ = metrics.Mean(slashed)
	s.HonestImpactMean, _ = metrics.Mean(impact)
	s.SurvivingMercsMean, _ = metrics.Mean(mercs)
	return s, nil
}
