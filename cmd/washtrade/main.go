// Command washtrade runs the wash-trading Monte Carlo with and without
// proof-of-coverage and prints both arms.
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

	"meshnet-sim/internal/washtrade"
)

func main() {
	def := washtrade.DefaultConfig()

	// Parse flags
	runs := flag.Int("runs", def.Runs, "Runs per arm")
	nodes := flag.Int("nodes", def.Nodes, "Operators")
	days := flag.Int("days", def.Days, "Days simulated")
	mercs := flag.Float64("mercenary-fraction", def.MercenaryFraction, "Share of mercenary operators")
	catchRate := flag.Float64("catch-rate", def.CatchRate, "Proof-of-coverage catch probability")
	slash := flag.Float64("slash-fraction", def.SlashFraction, "Stake share slashed per catch")
	baseSeed := flag.Int64("base-seed", def.BaseSeed, "First seed")
	workers := flag.Int("workers", 0, "Parallel runs (0 uses GOMAXPROCS)")
	outputJSON := flag.Bool("json", false, "Print the full result as JSON")
	flag.Parse()

	logger := log.New(os.Stderr, "[washtrade] ", log.LstdFlags)

	cfg := def
	cfg.Runs = *runs
	cfg.Nodes = *nodes
	cfg.Days = *days
	cfg.MercenaryFraction = *mercs
	cfg.CatchRate = *catchRate
	cfg.SlashFraction = *slash
	cfg.BaseSeed = *baseSeed
	if err := cfg.Validate(); err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	res, err := washtrade.MonteCarlo(ctx, cfg, *workers)
	if err != nil {
		logger.Fatalf("monte carlo: %v", err)
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			logger.Fatalf("encode result: %v", err)
		}
		return
	}

	fmt.Printf("%s runs per arm, %s nodes, %d days in %v\n\n",
		humanize.Comma(int64(cfg.Runs)), humanize.Comma(int64(cfg.Nodes)), cfg.Days,
		time.Since(start).Round(time.Millisecond))
	fmt.Println("| Arm | Fraud % mean | Median | IQR | Min | Max | Slashed | Honest impact % | Surviving mercenaries |")
	fmt.Println("|-----|--------------|--------|-----|-----|-----|---------|-----------------|-----------------------|")
	for _, arm := range []washtrade.ArmSummary{res.NoPoC, res.WithPoC} {
		label := "without PoC"
		if arm.PoC {
			label = "with PoC"
		}
		fmt.Printf("| %s | %.4f | %.4f | %.4f-%.4f | %.4f | %.4f | %s | %.4f | %.1f |\n",
			label, arm.FraudRateMean, arm.FraudRateMedian, arm.FraudRateP25, arm.FraudRateP75,
			arm.FraudRateMin, arm.FraudRateMax,
			humanize.Comma(int64(arm.SlashedMean)), arm.HonestImpactMean, arm.SurvivingMercsMean)
	}
}
