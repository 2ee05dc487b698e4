// Command simulate runs one scenario under one policy and prints its summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"meshnet-sim/internal/config"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/reporting"
	"meshnet-sim/internal/simulation"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Experiment YAML supplying parameters (optional)")
	scenario := flag.String("scenario", domain.ScenarioBull, "Scenario name")
	controller := flag.String("controller", string(domain.ControllerPID), "Emission policy (pid, static)")
	seed := flag.Int64("seed", 1000, "Random seed")
	horizon := flag.Int("horizon", 0, "Timesteps in days (0 uses the config value)")
	kp := flag.Float64("kp", 0, "Override proportional gain")
	ki := flag.Float64("ki", 0, "Override integral gain")
	kd := flag.Float64("kd", 0, "Override derivative gain")
	csvPath := flag.String("csv", "", "Write the trajectory as CSV to this path")
	outputJSON := flag.Bool("json", false, "Print the summary as JSON")
	verbose := flag.Bool("verbose", false, "Log one line per simulated year")
	flag.Parse()

	logger := log.New(os.Stderr, "[simulate] ", log.LstdFlags)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("load config: %v", err)
		}
	}

	sc, err := domain.ScenarioByName(*scenario)
	if err != nil {
		logger.Fatal(err)
	}
	run := cfg.BaseRunConfig()
	run.Scenario = sc
	run.Controller = cfg.Controller.WithKind(domain.ControllerKind(*controller))
	run.Seed = *seed
	if *horizon > 0 {
		run.Horizon = *horizon
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "kp":
			run.Controller.Kp = *kp
		case "ki":
			run.Controller.Ki = *ki
		case "kd":
			run.Controller.Kd = *kd
		}
	})
	if err := run.Validate(); err != nil {
		logger.Fatalf("invalid run: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := simulation.NewRunner(simulation.RunnerOptions{
		Logger:      log.New(os.Stderr, "", log.LstdFlags),
		Verbose:     *verbose,
		SummaryOnly: *csvPath == "",
	})
	start := time.Now()
	res, err := runner.Run(ctx, run)
	if err != nil {
		logger.Fatalf("run failed: %v", err)
	}
	elapsed := time.Since(start)

	if *csvPath != "" {
		if err := os.WriteFile(*csvPath, []byte(reporting.RenderTimestepCSV(res.Records)), 0644); err != nil {
			logger.Fatalf("write csv: %v", err)
		}
		logger.Printf("Wrote %s rows to %s", humanize.Comma(int64(len(res.Records))), *csvPath)
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Summary); err != nil {
			logger.Fatalf("encode summary: %v", err)
		}
		return
	}
	printSummary(res.Summary, elapsed)
}

func printSummary(s *domain.RunSummary, elapsed time.Duration) {
	fmt.Printf("Run %s (%s/%s seed %d, %d days) in %v\n\n",
		s.ShortID, s.Scenario, s.Controller, s.Seed, s.Horizon, elapsed.Round(time.Millisecond))
	fmt.Printf("  Final nodes:        %s (min %s, max %s)\n",
		humanize.Comma(int64(s.FinalNodes)), humanize.Comma(int64(s.MinNodes)), humanize.Comma(int64(s.MaxNodes)))
	fmt.Printf("  Deviation:          %.2f%% (mean abs %.2f%%)\n", s.Deviation*100, s.MeanAbsDeviation*100)
	fmt.Printf("  Total emission:     %s\n", humanize.Comma(int64(s.TotalEmission)))
	fmt.Printf("  Total burned:       %s\n", humanize.Comma(int64(s.TotalBurned)))
	fmt.Printf("  Total slashed:      %s\n", humanize.Comma(int64(s.TotalSlashed)))
	fmt.Printf("  Treasury subsidy:   %s\n", humanize.Comma(int64(s.TotalSubsidy)))
	fmt.Printf("  Circulating:        %s\n", humanize.Comma(int64(s.FinalCirculating)))
	fmt.Printf("  Treasury:           %s\n", humanize.Comma(int64(s.FinalTreasury)))
	fmt.Printf("  Final price:        $%.4f\n", s.FinalPrice)
	fmt.Printf("  BME max/final:      %.3f / %.3f (S2R benchmark %.3f)\n", s.MaxBME, s.FinalBME, s.S2RBenchmark)
	fmt.Printf("  Uncaught fraud:     %.3f%%\n", s.FraudCapturedPct)
	fmt.Printf("  Floor/ceiling days: %d / %d\n", s.FloorSteps, s.CeilingSteps)
	fmt.Printf("  Adjustments:        %d\n", s.Adjustments)
	if s.ShockResponseDays >= 0 {
		fmt.Printf("  Shock response:     %d days\n", s.ShockResponseDays)
	} else {
		fmt.Printf("  Shock response:     not recovered\n")
	}
	fmt.Printf("  Governance Gini:    %.4f (whale capture %.2f%%)\n", s.GovernanceGini, s.WhaleCaptureShare*100)
	fmt.Printf("\nRun ID: %s\n", s.RunID)
}
