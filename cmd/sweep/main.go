// Command sweep runs a one-off sensitivity sweep and prints rank consistency.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"meshnet-sim/internal/config"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/ensemble"
	"meshnet-sim/internal/reporting"
	"meshnet-sim/internal/storage/backend"
)

// axisFlags collects repeated --axis name=v1,v2,... flags.
type axisFlags []ensemble.Axis

func (a *axisFlags) String() string {
	parts := make([]string, len(*a))
	for i, ax := range *a {
		parts[i] = ax.Name
	}
	return strings.Join(parts, ",")
}

func (a *axisFlags) Set(value string) error {
	axis, err := parseAxis(value)
	if err != nil {
		return err
	}
	*a = append(*a, axis)
	return nil
}

func parseAxis(value string) (ensemble.Axis, error) {
	name, list, ok := strings.Cut(value, "=")
	if !ok || name == "" || list == "" {
		return ensemble.Axis{}, fmt.Errorf("axis must look like name=v1,v2: %q", value)
	}
	axis := ensemble.Axis{Name: strings.TrimSpace(name)}
	for _, raw := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return ensemble.Axis{}, fmt.Errorf("axis %s: %w", axis.Name, err)
		}
		axis.Values = append(axis.Values, v)
	}
	return axis, nil
}

func main() {
	// Parse flags
	var axes axisFlags
	flag.Var(&axes, "axis", "Swept parameter as name=v1,v2,... (repeatable; kp, ki, kd, slash_downtime, slash_fraud, cadence, catch_rate)")
	configPath := flag.String("config", "", "Experiment YAML supplying base parameters (optional)")
	name := flag.String("name", "adhoc", "Sweep name, part of the sweep ID")
	scenarios := flag.String("scenarios", domain.ScenarioCompetitor, "Comma-separated scenarios")
	controller := flag.String("controller", string(domain.ControllerPID), "Emission policy")
	seeds := flag.Int("seeds", 30, "Seeds per point")
	baseSeed := flag.Int64("base-seed", 1000, "First seed")
	horizon := flag.Int("horizon", 0, "Timesteps in days (0 uses the config value)")
	threshold := flag.Float64("threshold", 0, "Rank stability threshold (0 uses 0.60)")
	workers := flag.Int("workers", 0, "Parallel runs (0 uses GOMAXPROCS)")
	csvPath := flag.String("csv", "", "Write sweep rows as CSV to this path")
	backendName := flag.String("backend", "", "Also persist rows to this backend (memory, postgres, sqlite)")
	verbose := flag.Bool("verbose", false, "Log progress")
	flag.Parse()

	logger := log.New(os.Stderr, "[sweep] ", log.LstdFlags)
	if len(axes) == 0 {
		logger.Fatal("at least one --axis is required")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("load config: %v", err)
		}
	}
	scs, err := cfg.ScenarioConfigs(strings.Split(*scenarios, ","))
	if err != nil {
		logger.Fatal(err)
	}
	base := cfg.BaseRunConfig()
	base.Controller = cfg.Controller.WithKind(domain.ControllerKind(*controller))
	if *horizon > 0 {
		base.Horizon = *horizon
	}

	spec := ensemble.SweepSpec{
		Experiment: cfg.ExperimentID + "-" + *name,
		Axes:       axes,
		Scenarios:  scs,
		Seeds:      ensemble.Seeds(*baseSeed, *seeds),
		Base:       base,
		Threshold:  *threshold,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := ensemble.New(ensemble.Options{Workers: *workers, Logger: logger, Verbose: *verbose})
	start := time.Now()
	res, err := h.Sweep(ctx, spec)
	if err != nil {
		logger.Fatalf("sweep: %v", err)
	}
	fmt.Printf("Sweep %s: %s runs in %v\n\n", res.SweepID,
		humanize.Comma(int64(len(res.Records))), time.Since(start).Round(time.Millisecond))

	if *backendName != "" {
		stores, err := backend.Open(ctx, config.StorageConfig{Backend: *backendName})
		if err != nil {
			logger.Fatalf("open %s storage: %v", *backendName, err)
		}
		defer stores.Close()
		if err := stores.Sweeps.InsertBulk(ctx, res.Records); err != nil {
			logger.Fatalf("store sweep rows: %v", err)
		}
		logger.Printf("Stored %d rows in %s", len(res.Records), *backendName)
	}

	if *csvPath != "" {
		if err := os.WriteFile(*csvPath, []byte(reporting.RenderSweepCSV(res.Records)), 0644); err != nil {
			logger.Fatalf("write csv: %v", err)
		}
		logger.Printf("Wrote %s", *csvPath)
	}

	if len(res.Ranks) == 0 {
		fmt.Println("Rank consistency is computed for single-axis sweeps only.")
		return
	}
	fmt.Println("| Parameter | Seeds | Min consistency | Modal top | Top agreement | Verdict |")
	fmt.Println("|-----------|-------|-----------------|-----------|---------------|---------|")
	for _, rc := range res.Ranks {
		fmt.Printf("| %s | %d | %.2f | %g | %.2f | %s |\n",
			rc.Parameter, rc.Seeds, rc.MinConsistency, rc.ModalTop, rc.TopAgreement, rc.Verdict)
	}
}
