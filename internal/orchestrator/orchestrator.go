// Package orchestrator runs a whole experiment end to end.
// It coordinates: ensemble -> statistics -> windup -> sweeps -> wash trading -> verdicts -> report
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"meshnet-sim/internal/config"
	"meshnet-sim/internal/decision"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/ensemble"
	"meshnet-sim/internal/governance"
	"meshnet-sim/internal/metrics"
	"meshnet-sim/internal/observability"
	"meshnet-sim/internal/reporting"
	"meshnet-sim/internal/simulation"
	"meshnet-sim/internal/storage"
	"meshnet-sim/internal/washtrade"
)

// Phase names saved in the progress store.
const (
	PhaseEnsemble  = "ensemble"
	PhaseStats     = "stats"
	PhaseWindup    = "windup"
	PhaseSweeps    = "sweeps"
	PhaseWashTrade = "washtrade"
	PhaseReport    = "report"
)

// Orchestrator coordinates the execution of one experiment.
type Orchestrator struct {
	cfg *config.Config

	// Stores
	runStore      storage.RunSummaryStore
	timestepStore storage.TimestepStore
	sweepStore    storage.SweepRecordStore
	statsStore    storage.GroupStatsStore
	progressStore storage.ExperimentProgressStore

	// Options
	workers int
	verbose bool
	logger  *log.Logger
	now     func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	Config *config.Config

	// Required stores
	RunStore   storage.RunSummaryStore
	SweepStore storage.SweepRecordStore
	StatsStore storage.GroupStatsStore

	// Optional stores
	TimestepStore storage.TimestepStore            // nil keeps summaries only
	ProgressStore storage.ExperimentProgressStore // nil disables resume

	Workers int // 0 uses the experiment setting
	Verbose bool
	Logger  *log.Logger      // nil uses the standard logger
	Clock   func() time.Time // nil uses time.Now in UTC
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	workers := opts.Workers
	if workers == 0 && opts.Config != nil {
		workers = opts.Config.Ensemble.Workers
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		cfg:           opts.Config,
		runStore:      opts.RunStore,
		timestepStore: opts.TimestepStore,
		sweepStore:    opts.SweepStore,
		statsStore:    opts.StatsStore,
		progressStore: opts.ProgressStore,
		workers:       workers,
		verbose:       opts.Verbose,
		logger:        logger,
		now:           now,
	}
}

// RunResult contains the outcome of an orchestrated experiment.
type RunResult struct {
	ExperimentID  string
	RunsExecuted  int // simulated in this invocation
	RunsSkipped   int // already completed by an earlier invocation
	StatsCreated  int
	SweepsCreated int
	Claims        []*decision.ClaimResult
	Report        *reporting.Report

	// Rendered artifacts
	ReportMarkdown string
	ClaimsMarkdown string
	StatsCSV       string
	SweepCSV       map[string]string // by sweep name
}

// Run executes every phase of the experiment.
// Completed runs and stored sweeps are skipped, so an interrupted experiment
// can be resumed against the same stores.
func (o *Orchestrator) Run(ctx context.Context) (_ *RunResult, err error) {
	if o.cfg == nil {
		return nil, fmt.Errorf("%w: orchestrator needs an experiment config", domain.ErrInvalidConfig)
	}
	if o.runStore == nil || o.statsStore == nil || o.sweepStore == nil {
		return nil, fmt.Errorf("%w: run, stats and sweep stores are required", domain.ErrInvalidConfig)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	expID := o.cfg.ExperimentID
	result := &RunResult{ExperimentID: expID, SweepCSV: make(map[string]string)}
	evaluator := decision.NewEvaluator()

	var (
		phase      string
		phaseStart time.Time
	)
	begin := func(p string) { phase, phaseStart = p, time.Now() }
	finish := func() error {
		observability.RecordPipelineRun(phase, "success", time.Since(phaseStart).Seconds())
		return o.saveProgress(ctx, phase, result.RunsExecuted+result.RunsSkipped)
	}
	defer func() {
		if err != nil && phase != "" {
			observability.RecordPipelineRun(phase, "error", time.Since(phaseStart).Seconds())
		}
	}()

	// Phase 1: ensemble
	begin(PhaseEnsemble)
	o.log("Phase 1: ensemble (%d scenarios x %d controllers x %d seeds)",
		len(o.cfg.Scenarios), len(o.cfg.Controllers), o.cfg.Ensemble.Size)
	reports, err := o.runEnsemble(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("ensemble: %w", err)
	}
	o.log("Executed %d runs, skipped %d", result.RunsExecuted, result.RunsSkipped)
	if err := finish(); err != nil {
		return nil, err
	}

	// Phase 2: statistics
	begin(PhaseStats)
	o.log("Phase 2: group statistics")
	stats, err := o.computeStats(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if err := finish(); err != nil {
		return nil, err
	}

	// Phase 3: windup stress test
	if o.cfg.Windup != nil {
		begin(PhaseWindup)
		o.log("Phase 3: windup on %s (%d seeds)", o.cfg.Windup.Scenario, o.cfg.Windup.Seeds)
		claim, err := o.runWindup(ctx, evaluator)
		if err != nil {
			return nil, fmt.Errorf("windup: %w", err)
		}
		result.Claims = append(result.Claims, claim)
		if err := finish(); err != nil {
			return nil, err
		}
	}

	// Phase 4: sweeps
	var refs []reporting.SweepRef
	if len(o.cfg.Sweeps) > 0 {
		begin(PhaseSweeps)
		o.log("Phase 4: %d sweeps", len(o.cfg.Sweeps))
		refs, err = o.runSweeps(ctx, result)
		if err != nil {
			return nil, fmt.Errorf("sweeps: %w", err)
		}
		if err := finish(); err != nil {
			return nil, err
		}
	}

	// Phase 5: wash trading
	var wash *washtrade.Result
	if o.cfg.WashTrade != nil {
		begin(PhaseWashTrade)
		o.log("Phase 5: wash-trading Monte Carlo (%d runs per arm)", o.cfg.WashTrade.Runs)
		wash, err = washtrade.MonteCarlo(ctx, *o.cfg.WashTrade, o.workers)
		if err != nil {
			return nil, fmt.Errorf("washtrade: %w", err)
		}
		if err := finish(); err != nil {
			return nil, err
		}
	}

	// Phase 6: verdicts
	begin(PhaseReport)
	o.log("Phase 6: verdicts")
	variance, err := VarianceClaims(evaluator, stats, o.cfg.Scenarios)
	if err != nil {
		return nil, err
	}
	result.Claims = append(variance, result.Claims...)

	// Phase 7: report
	o.log("Phase 7: report")
	gen := reporting.NewGenerator(o.runStore, o.statsStore, o.sweepStore).WithClock(o.now)
	report, err := gen.Generate(ctx, expID, refs)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	report.Claims = result.Claims
	report.WashTrade = wash
	report.Governance = reports
	result.Report = report
	result.ReportMarkdown = reporting.RenderMarkdown(report)
	result.ClaimsMarkdown = decision.RenderMarkdown(result.Claims)
	result.StatsCSV = reporting.RenderCSV(report.Stats)
	for _, ref := range refs {
		records, err := o.sweepStore.GetBySweepID(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("load sweep %s: %w", ref.Name, err)
		}
		result.SweepCSV[ref.Name] = reporting.RenderSweepCSV(records)
	}
	if err := finish(); err != nil {
		return nil, err
	}

	observability.RecordReportGenerated()
	observability.RecordExperimentCompleted()
	o.log("Done: %d claims", len(result.Claims))
	return result, nil
}

// runEnsemble simulates every (scenario, controller, seed) not yet completed
// and persists each summary as soon as its run finishes. It returns the
// governance sweep of the reference run (first scenario, first controller,
// base seed) when that run executes in this invocation.
func (o *Orchestrator) runEnsemble(ctx context.Context, result *RunResult) ([]governance.Report, error) {
	scenarios, err := o.cfg.ScenarioConfigs(o.cfg.Scenarios)
	if err != nil {
		return nil, err
	}
	base := o.cfg.BaseRunConfig()
	jobs := ensemble.Jobs(base, scenarios, o.cfg.Controllers,
		ensemble.Seeds(o.cfg.Ensemble.BaseSeed, o.cfg.Ensemble.Size))

	pending, err := o.pendingJobs(ctx, jobs)
	if err != nil {
		return nil, err
	}
	result.RunsSkipped = len(jobs) - len(pending)
	if len(pending) == 0 {
		return nil, nil
	}

	refID := simulation.RunID(jobs[0].Config)
	expID := o.cfg.ExperimentID
	var (
		mu      sync.Mutex
		reports []governance.Report
	)
	onResult := func(res *simulation.Result) error {
		s := res.Summary
		s.ExperimentID = expID
		if err := o.runStore.Insert(ctx, s); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("insert summary %s: %w", s.ShortID, err)
		}
		if o.timestepStore != nil && len(res.Records) > 0 {
			if err := o.timestepStore.InsertBulk(ctx, res.Records); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("insert timesteps %s: %w", s.ShortID, err)
			}
		}
		// Trajectories are persisted; drop them so a large ensemble does
		// not hold every day of every run.
		res.Records = nil
		if o.progressStore != nil {
			if err := o.progressStore.MarkRunCompleted(ctx, expID, s.RunID); err != nil {
				return fmt.Errorf("mark run %s: %w", s.ShortID, err)
			}
		}
		if s.RunID == refID {
			mu.Lock()
			reports = res.Governance
			mu.Unlock()
		}
		return nil
	}

	runner := simulation.NewRunner(simulation.RunnerOptions{
		Logger:      o.logger,
		SummaryOnly: o.timestepStore == nil,
	})
	h := ensemble.New(ensemble.Options{
		Workers:  o.workers,
		Logger:   o.logger,
		Verbose:  o.verbose,
		Runner:   runner,
		OnResult: onResult,
	})
	if _, err := h.Run(ctx, pending); err != nil {
		return nil, err
	}
	result.RunsExecuted = len(pending)
	return reports, nil
}

// pendingJobs drops jobs whose run is already stored.
func (o *Orchestrator) pendingJobs(ctx context.Context, jobs []ensemble.Job) ([]ensemble.Job, error) {
	done := make(map[string]bool)
	if o.progressStore != nil {
		ids, err := o.progressStore.LoadCompletedRuns(ctx, o.cfg.ExperimentID)
		if err != nil {
			return nil, fmt.Errorf("load completed runs: %w", err)
		}
		for _, id := range ids {
			done[id] = true
		}
	} else {
		stored, err := o.runStore.GetByExperiment(ctx, o.cfg.ExperimentID)
		if err != nil {
			return nil, fmt.Errorf("load run summaries: %w", err)
		}
		for _, s := range stored {
			done[s.RunID] = true
		}
	}

	pending := make([]ensemble.Job, 0, len(jobs))
	for _, j := range jobs {
		if !done[simulation.RunID(j.Config)] {
			pending = append(pending, j)
		}
	}
	return pending, nil
}

// computeStats aggregates and stores the group statistics, or loads them if
// an earlier invocation already stored them.
func (o *Orchestrator) computeStats(ctx context.Context, result *RunResult) ([]*domain.GroupStats, error) {
	agg := metrics.NewAggregator(o.runStore, o.statsStore)
	stats, err := agg.ComputeAndStore(ctx, o.cfg.ExperimentID)
	if errors.Is(err, storage.ErrDuplicateKey) {
		o.log("Group statistics already stored, loading")
		return o.statsStore.GetByExperiment(ctx, o.cfg.ExperimentID)
	}
	if err != nil {
		return nil, err
	}
	result.StatsCreated = len(stats)
	o.log("Stored %d group statistics", len(stats))
	return stats, nil
}

// runWindup runs a loosely clamped PID against the static baseline. Its
// runs are evidence for the claim only and are not persisted.
func (o *Orchestrator) runWindup(ctx context.Context, evaluator *decision.Evaluator) (*decision.ClaimResult, error) {
	w := o.cfg.Windup
	sc, err := domain.ScenarioByName(w.Scenario)
	if err != nil {
		return nil, err
	}
	base := o.cfg.BaseRunConfig()
	clamp := w.IntegralClamp
	if clamp == 0 {
		clamp = domain.IntegralUnclamped
	}
	base.Controller.IntegralClamp = clamp

	jobs := ensemble.Jobs(base, []domain.ScenarioConfig{sc},
		[]domain.ControllerKind{domain.ControllerPID, domain.ControllerStatic},
		ensemble.Seeds(o.cfg.Ensemble.BaseSeed, w.Seeds))
	h := ensemble.New(ensemble.Options{Workers: o.workers, Logger: o.logger, Verbose: o.verbose})
	res, err := h.Ensemble(ctx, o.cfg.ExperimentID+"-windup", jobs)
	if err != nil {
		return nil, err
	}

	in, err := decision.NewBuilder(res.Stats).BuildWindup(sc.Name)
	if err != nil {
		return nil, err
	}
	var integral float64
	var n int
	for _, s := range res.Summaries {
		if s.Controller == domain.ControllerPID {
			integral += s.FinalIntegral
			n++
		}
	}
	if n > 0 {
		in.PIDFinalIntegral = integral / float64(n)
	}
	in.IntegralClampUsed = w.IntegralClamp
	return evaluator.EvaluateWindup(*in), nil
}

// runSweeps runs every configured sweep on the PID policy. Sweeps already in
// the store are reused.
func (o *Orchestrator) runSweeps(ctx context.Context, result *RunResult) ([]reporting.SweepRef, error) {
	evaluator := decision.NewEvaluator()
	h := ensemble.New(ensemble.Options{Workers: o.workers, Logger: o.logger, Verbose: o.verbose})
	specs, err := SweepSpecs(o.cfg)
	if err != nil {
		return nil, err
	}

	refs := make([]reporting.SweepRef, 0, len(specs))
	for i, spec := range specs {
		sc := o.cfg.Sweeps[i]
		axes := spec.Axes
		id := spec.ID()
		refs = append(refs, reporting.SweepRef{Name: sc.Name, ID: id})

		stored, err := o.sweepStore.GetBySweepID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load sweep %s: %w", sc.Name, err)
		}

		var ranks []*metrics.RankConsistency
		if len(stored) > 0 {
			o.log("Sweep %s already stored (%d rows)", sc.Name, len(stored))
			if len(axes) == 1 {
				ranks, err = ensemble.RankByScenario(axes[0].Name, stored, metrics.DefaultStabilityThreshold)
				if err != nil {
					return nil, fmt.Errorf("rank sweep %s: %w", sc.Name, err)
				}
			}
		} else {
			res, err := h.Sweep(ctx, spec)
			if err != nil {
				return nil, fmt.Errorf("sweep %s: %w", sc.Name, err)
			}
			if err := o.sweepStore.InsertBulk(ctx, res.Records); err != nil {
				return nil, fmt.Errorf("store sweep %s: %w", sc.Name, err)
			}
			result.SweepsCreated++
			o.log("Sweep %s: %d rows", sc.Name, len(res.Records))
			ranks = res.Ranks
		}

		for _, rc := range ranks {
			result.Claims = append(result.Claims, evaluator.EvaluateOrdering(rc))
		}
	}
	return refs, nil
}

// SweepSpecs builds the sweeps of an experiment, in file order. Every sweep
// runs the PID policy on the experiment's base parameters.
func SweepSpecs(cfg *config.Config) ([]ensemble.SweepSpec, error) {
	specs := make([]ensemble.SweepSpec, 0, len(cfg.Sweeps))
	for _, sc := range cfg.Sweeps {
		scenarios, err := cfg.ScenarioConfigs(sc.Scenarios)
		if err != nil {
			return nil, fmt.Errorf("sweep %s: %w", sc.Name, err)
		}
		specs = append(specs, cfg.SweepSpec(sc, scenarios))
	}
	return specs, nil
}

// SweepRefs names the stored sweeps of an experiment for reporting.
func SweepRefs(cfg *config.Config) ([]reporting.SweepRef, error) {
	specs, err := SweepSpecs(cfg)
	if err != nil {
		return nil, err
	}
	refs := make([]reporting.SweepRef, len(specs))
	for i, spec := range specs {
		refs[i] = reporting.SweepRef{Name: cfg.Sweeps[i].Name, ID: spec.ID()}
	}
	return refs, nil
}

// VarianceClaims evaluates PID variance reduction for every scenario that
// has both policies in stats.
func VarianceClaims(evaluator *decision.Evaluator, stats []*domain.GroupStats, scenarios []string) ([]*decision.ClaimResult, error) {
	builder := decision.NewBuilder(stats)
	var claims []*decision.ClaimResult
	for _, name := range scenarios {
		if !builder.HasScenario(name) {
			continue
		}
		in, err := builder.BuildVariance(name)
		if err != nil {
			return nil, fmt.Errorf("verdict %s: %w", name, err)
		}
		claims = append(claims, evaluator.EvaluateVariance(*in))
	}
	return claims, nil
}

func (o *Orchestrator) saveProgress(ctx context.Context, phase string, runs int) error {
	if o.progressStore == nil {
		return nil
	}
	err := o.progressStore.SetProgress(ctx, &storage.ExperimentProgress{
		ExperimentID:  o.cfg.ExperimentID,
		Phase:         phase,
		CompletedRuns: runs,
	})
	if err != nil {
		return fmt.Errorf("save progress %s: %w", phase, err)
	}
	return nil
}

// log prints if verbose mode is enabled.
func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		o.logger.Printf("[orchestrator] "+format, args...)
	}
}
