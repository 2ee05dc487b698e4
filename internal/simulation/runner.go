// Package simulation runs one scenario trajectory: it composes demand, the
// emission controller, the operator population, the treasury stabilizer and
// the price process, and owns the supply bookkeeping.
package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"

	"github.com/dustin/go-humanize"

	"meshnet-sim/internal/agents"
	"meshnet-sim/internal/controller"
	"meshnet-sim/internal/demand"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/governance"
	"meshnet-sim/internal/idhash"
	"meshnet-sim/internal/price"
	"meshnet-sim/internal/rng"
	"meshnet-sim/internal/treasury"
)

// minBurnPrice floors the USD-to-token conversion of burns.
const minBurnPrice = 0.001

// daysPerYear is the progress logging period.
const daysPerYear = 365

// Runner executes scenario runs. A Runner holds no per-run state and may
// be used from several goroutines; each Run builds its own state and
// random source.
type Runner struct {
	demand      demand.Model
	logger      *log.Logger
	verbose     bool
	observer    func(*domain.TimestepRecord)
	summaryOnly bool
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Demand      *demand.Model                // nil uses demand.DefaultModel
	Logger      *log.Logger                  // nil uses the standard logger
	Verbose     bool                         // log one line per simulated year
	Observer    func(*domain.TimestepRecord) // called after every step, on the run's goroutine
	SummaryOnly bool                         // drop per-step records from the result
}

// NewRunner creates a scenario runner.
func NewRunner(opts RunnerOptions) *Runner {
	m := demand.DefaultModel()
	if opts.Demand != nil {
		m = *opts.Demand
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		demand:      m,
		logger:      logger,
		verbose:     opts.Verbose,
		observer:    opts.Observer,
		summaryOnly: opts.SummaryOnly,
	}
}

// Result is the output of one run.
type Result struct {
	Config     domain.RunConfig
	Summary    *domain.RunSummary
	Records    []*domain.TimestepRecord // empty when SummaryOnly
	Governance []governance.Report      // exponent sweep over the final population
}

// run holds the exclusively owned state of one trajectory.
type run struct {
	cfg        domain.RunConfig
	runID      string
	configJSON string

	src        *rng.Source
	ctl        controller.Controller
	pid        *controller.PID // nil for the static policy
	pop        *agents.Population
	stabilizer *treasury.Stabilizer
	price      *price.Process
	state      *domain.SimulationState

	path pathStats
}

// Run executes one trajectory. Configuration errors are returned before
// any step is computed. An invariant violation aborts the run with an
// *InvariantError; the partial result is discarded.
func (r *Runner) Run(ctx context.Context, cfg domain.RunConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}
	ctl, err := controller.New(cfg.Controller)
	if err != nil {
		return nil, err
	}
	// A summary without its config cannot be replayed.
	configJSON, err := ConfigJSON(cfg)
	if err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}

	src := rng.New(cfg.Seed)
	rn := &run{
		cfg:        cfg,
		runID:      RunID(cfg),
		configJSON: configJSON,
		src:        src,
		ctl:        ctl,
		pop:        agents.NewPopulation(cfg.Economy, cfg.Controller.TargetNodes, cfg.Initial.Nodes, cfg.Initial.TotalSupply, src),
		stabilizer: treasury.NewStabilizer(cfg.Economy, cfg.Initial.TotalSupply),
		price:      price.NewProcess(cfg.Calibration),
		state:      domain.NewSimulationState(cfg.Initial, cfg.Controller.BaseEmission),
	}
	rn.pid, _ = ctl.(*controller.PID)
	rn.path = newPathStats(cfg)

	var records []*domain.TimestepRecord
	if !r.summaryOnly {
		records = make([]*domain.TimestepRecord, 0, cfg.Horizon)
	}

	var emissionBounds *bounds
	if cfg.Controller.Kind == domain.ControllerPID {
		emissionBounds = &bounds{lo: cfg.Controller.Floor(), hi: cfg.Controller.Ceiling()}
	}

	for t := 0; t < cfg.Horizon; t++ {
		if t%daysPerYear == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := rn.step(r.demand, t, emissionBounds)
		if err != nil {
			return nil, err
		}
		rn.path.observe(rec)

		if r.verbose && t%daysPerYear == 0 {
			r.logger.Printf("[%s/%s] year %d: N=%s P=$%.4f C=%s",
				cfg.Scenario.Name, cfg.Controller.Kind, t/daysPerYear,
				humanize.Comma(int64(rec.Nodes)), rec.Price, humanize.Comma(int64(rec.Circulating)))
		}
		if r.observer != nil {
			r.observer(rec)
		}
		if !r.summaryOnly {
			records = append(records, rec)
		}
	}

	summary, reports := rn.summarize()
	return &Result{Config: cfg, Summary: summary, Records: records, Governance: reports}, nil
}

// step advances the run by one day and returns the record for t.
func (rn *run) step(dm demand.Model, t int, emissionBounds *bounds) (*domain.TimestepRecord, error) {
	cfg := rn.cfg
	sc := cfg.Scenario
	eco := cfg.Economy
	st := rn.state

	costMult := demand.CostMultiplier(sc, t)

	coverage := float64(st.ActiveNodes) / float64(cfg.Controller.TargetNodes)
	st.DailyFee = dm.DailyFee(coverage, sc, t, rn.src.Normal(0, 1))

	st.Emission = rn.ctl.Evaluate(st.ActiveNodes, t)
	if rn.pid != nil {
		st.Integral = rn.pid.Integral()
		st.PrevError = rn.pid.PrevError()
	}

	st.Burn = st.DailyFee * eco.ProtocolFee / math.Max(st.Price, minBurnPrice)

	out := rn.pop.Operate(agents.StepInput{
		Timestep:       t,
		Emission:       st.Emission,
		DailyFee:       st.DailyFee,
		Price:          st.Price,
		CostMultiplier: costMult,
	})
	subsidy := rn.stabilizer.MaybeSubsidize(out.YieldUSD, out.ActiveBefore, st.Treasury, st.Price)

	if sc.HasShock(domain.ShockOperatorPoach) && t == sc.Shock.OnsetDay() {
		rn.pop.Poach(sc.Shock.Magnitude)
	}
	rn.pop.Admit(out.YieldUSD, t)
	rn.pop.SeasonBoundary(t)

	// Price reacts to the circulating supply before this step's flows.
	nextPrice := rn.price.Step(st.Price, st.DailyFee, st.Circulating, sc.PriceDrift, rn.src.Normal(0, 1))

	prevSupply := st.TotalSupply
	st.TotalSupply = prevSupply + st.Emission - st.Burn
	st.Circulating = st.Circulating + st.Emission - st.Burn - out.Slashed + subsidy
	st.Treasury = st.Treasury + out.Slashed - subsidy
	st.Price = nextPrice
	st.ActiveNodes = rn.pop.ActiveCount()

	st.EmittedTotal += st.Emission
	st.BurnedTotal += st.Burn
	st.SlashedTotal += out.Slashed
	st.SubsidyTotal += subsidy
	st.FraudCaptured += out.FraudCaptured

	if err := checkInvariants(t, prevSupply, st, emissionBounds); err != nil {
		return nil, err
	}

	return &domain.TimestepRecord{
		RunID:            rn.runID,
		Scenario:         sc.Name,
		Controller:       cfg.Controller.Kind,
		Seed:             cfg.Seed,
		Timestep:         t,
		Nodes:            st.ActiveNodes,
		Emission:         st.Emission,
		Burn:             st.Burn,
		DailyFee:         st.DailyFee,
		Price:            st.Price,
		TotalSupply:      st.TotalSupply,
		Circulating:      st.Circulating,
		Treasury:         st.Treasury,
		Slashed:          out.Slashed,
		SlashedTotal:     st.SlashedTotal,
		Subsidy:          subsidy,
		FraudCapturedPct: fraudCapturedPct(st.FraudCaptured, st.EmittedTotal),
		BME:              st.Burn / math.Max(st.Emission, 1),
		Integral:         st.Integral,
	}, nil
}

// fraudCapturedPct is uncaught fraud yield as a percentage of emissions.
func fraudCapturedPct(captured, emitted float64) float64 {
	return captured / math.Max(emitted, 1) * 100
}

// RunID derives the deterministic run ID of a configuration.
func RunID(cfg domain.RunConfig) string {
	return idhash.ComputeRunID(cfg.Scenario.Name, string(cfg.Controller.Kind), cfg.Fingerprint(), cfg.Seed)
}

// ConfigJSON serializes a run configuration for storage and replay.
func ConfigJSON(cfg domain.RunConfig) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal run config: %w", err)
	}
	return string(b), nil
}

// ParseConfigJSON is the inverse of ConfigJSON.
func ParseConfigJSON(s string) (domain.RunConfig, error) {
	var cfg domain.RunConfig
	if err := json.Unmarshal([]byte(s), &cfg); err != nil {
		return domain.RunConfig{}, fmt.Errorf("unmarshal run config: %w", err)
	}
	return cfg, nil
}
