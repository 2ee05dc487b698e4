// Package ensemble executes many independent scenario runs in parallel and
// aggregates them into distributional statistics and sensitivity sweeps.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/metrics"
	"meshnet-sim/internal/observability"
	"meshnet-sim/internal/simulation"
)

// ErrNoRuns is returned when an ensemble or sweep has nothing to execute.
var ErrNoRuns = errors.New("ensemble has no runs")

// DefaultBaseSeed and DefaultSize are the reference ensemble seeds 1000..1029.
const (
	DefaultBaseSeed int64 = 1000
	DefaultSize           = 30
)

// Job is one run of an ensemble or sweep.
type Job struct {
	Config domain.RunConfig
	Point  string             // sweep point label, empty for ensembles
	Values map[string]float64 // sweep axis values, nil for ensembles
}

// Options configures a Harness.
type Options struct {
	Workers int                // <= 0 uses GOMAXPROCS
	Logger  *log.Logger        // nil discards
	Verbose bool               // log progress every few runs
	Runner  *simulation.Runner // nil uses a summary-only runner
	// OnResult is called once per finished run from worker goroutines;
	// it must be safe for concurrent use.
	OnResult func(*simulation.Result) error
}

// progressEvery is how often (in completed runs) progress is logged.
const progressEvery = 10

// Harness runs jobs on a bounded worker pool. Runs share nothing; results
// do not depend on scheduling.
type Harness struct {
	workers  int
	logger   *log.Logger
	verbose  bool
	runner   *simulation.Runner
	onResult func(*simulation.Result) error
}

// New creates a Harness.
func New(opts Options) *Harness {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	runner := opts.Runner
	if runner == nil {
		runner = simulation.NewRunner(simulation.RunnerOptions{SummaryOnly: true})
	}
	return &Harness{
		workers:  workers,
		logger:   logger,
		verbose:  opts.Verbose,
		runner:   runner,
		onResult: opts.OnResult,
	}
}

// Seeds returns n consecutive seeds starting at base.
func Seeds(base int64, n int) []int64 {
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = base + int64(i)
	}
	return seeds
}

// Jobs builds the Cartesian product scenarios x controllers x seeds. base
// supplies everything else; its scenario, controller kind and seed are
// overwritten per job.
func Jobs(base domain.RunConfig, scenarios []domain.ScenarioConfig, kinds []domain.ControllerKind, seeds []int64) []Job {
	jobs := make([]Job, 0, len(scenarios)*len(kinds)*len(seeds))
	for _, sc := range scenarios {
		for _, kind := range kinds {
			for _, seed := range seeds {
				cfg := base
				cfg.Scenario = sc
				cfg.Controller = base.Controller.WithKind(kind)
				cfg.Seed = seed
				jobs = append(jobs, Job{Config: cfg})
			}
		}
	}
	return jobs
}

// Run executes every job and returns results in job order. Configuration
// errors are checked for all jobs before any run starts. The first run
// error cancels the remaining runs.
func (h *Harness) Run(ctx context.Context, jobs []Job) ([]*simulation.Result, error) {
	if len(jobs) == 0 {
		return nil, ErrNoRuns
	}
	for i := range jobs {
		if err := jobs[i].Config.Validate(); err != nil {
			return nil, fmt.Errorf("job %d (%s/%s seed %d): %w", i,
				jobs[i].Config.Scenario.Name, jobs[i].Config.Controller.Kind, jobs[i].Config.Seed, err)
		}
	}

	results := make([]*simulation.Result, len(jobs))
	var done atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for i := range jobs {
		g.Go(func() error {
			cfg := jobs[i].Config
			scenario, kind := cfg.Scenario.Name, string(cfg.Controller.Kind)

			observability.RecordRunStarted(scenario, kind)
			t0 := time.Now()
			res, err := h.runner.Run(gctx, cfg)
			observability.RecordRunFinished(scenario, kind, cfg.Horizon, time.Since(t0).Seconds(), err)
			if err != nil {
				return fmt.Errorf("run %s/%s seed %d: %w", scenario, kind, cfg.Seed, err)
			}
			results[i] = res

			if h.onResult != nil {
				if err := h.onResult(res); err != nil {
					return err
				}
			}
			if n := done.Add(1); h.verbose && (n%progressEvery == 0 || int(n) == len(jobs)) {
				h.logger.Printf("[ensemble] %s/%s runs done (%s)",
					humanize.Comma(n), humanize.Comma(int64(len(jobs))), time.Since(start).Round(time.Millisecond))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Result is an executed ensemble.
type Result struct {
	ExperimentID string
	Runs         []*simulation.Result
	Summaries    []*domain.RunSummary
	Stats        []*domain.GroupStats
}

// Ensemble runs the jobs and aggregates group statistics.
func (h *Harness) Ensemble(ctx context.Context, experimentID string, jobs []Job) (*Result, error) {
	runs, err := h.Run(ctx, jobs)
	if err != nil {
		return nil, err
	}
	summaries := make([]*domain.RunSummary, len(runs))
	for i, r := range runs {
		r.Summary.ExperimentID = experimentID
		summaries[i] = r.Summary
	}
	stats, err := metrics.ComputeGroupStats(experimentID, summaries)
	if err != nil {
		return nil, err
	}
	observability.RecordEnsembleCompleted()
	return &Result{ExperimentID: experimentID, Runs: runs, Summaries: summaries, Stats: stats}, nil
}

// Stat returns the statistics of one metric for one group, or nil.
func (r *Result) Stat(scenario string, kind domain.ControllerKind, metric string) *domain.GroupStats {
	for _, s := range r.Stats {
		if s.Scenario == scenario && s.Controller == kind && s.Metric == metric {
			return s
		}
	}
	return nil
}
