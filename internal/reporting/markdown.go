package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Experiment Report: %s\n\n", r.ExperimentID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Runs: %s | Scenarios: %d\n\n", humanize.Comma(int64(r.RunCount)), r.ScenarioCount))

	// Claims
	if len(r.Claims) > 0 {
		sb.WriteString("## Claims\n\n")
		sb.WriteString("| Claim | Subject | Verdict |\n")
		sb.WriteString("|-------|---------|---------|\n")
		for _, c := range r.Claims {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", c.Claim, c.Subject, c.Verdict))
		}
		sb.WriteString("\n")
	}

	// Ensemble groups
	sb.WriteString("## Ensemble Results\n\n")
	if len(r.Groups) > 0 {
		sb.WriteString("| Scenario | Policy | Seeds | N mean | N p5 | N p95 | N CV | Deviation | Price | Treasury | Emission | Fraud % |\n")
		sb.WriteString("|----------|--------|-------|--------|------|-------|------|-----------|-------|----------|----------|---------|\n")
		for _, g := range r.Groups {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.0f | %.0f | %.0f | %.4f | %.4f | %.4f | %s | %s | %.3f |\n",
				g.Scenario, g.Controller, g.Seeds,
				g.FinalNodesMean, g.FinalNodesP5, g.FinalNodesP95, g.FinalNodesCV,
				g.DeviationMean, g.FinalPrice,
				humanize.Comma(int64(g.Treasury)), humanize.Comma(int64(g.Emission)), g.FraudPct))
		}
	} else {
		sb.WriteString("No ensemble statistics available.\n")
	}
	sb.WriteString("\n")

	// Policy comparison
	sb.WriteString("## PID vs Static\n\n")
	if len(r.Comparisons) > 0 {
		sb.WriteString("| Scenario | PID CV | Static CV | Variance reduction % | PID N | Static N | PID emission | Static emission |\n")
		sb.WriteString("|----------|--------|-----------|----------------------|-------|----------|--------------|-----------------|\n")
		for _, c := range r.Comparisons {
			sb.WriteString(fmt.Sprintf("| %s | %.4f | %.4f | %.1f | %.0f | %.0f | %s | %s |\n",
				c.Scenario, c.PIDCV, c.StaticCV, c.VarianceRedPct,
				c.PIDMeanNodes, c.StaticMeanNodes,
				humanize.Comma(int64(c.PIDEmission)), humanize.Comma(int64(c.StaticEmission))))
		}
	} else {
		sb.WriteString("No policy comparison available.\n")
	}
	sb.WriteString("\n")

	// Sweeps
	for _, s := range r.Sweeps {
		sb.WriteString(fmt.Sprintf("## Sweep: %s\n\n", s.Name))
		sb.WriteString(fmt.Sprintf("Sweep ID: `%s`\n\n", s.SweepID))
		sb.WriteString("| Point | Scenario | Seeds | N mean | N CV | Deviation | Adjustments | Shock response (days) |\n")
		sb.WriteString("|-------|----------|-------|--------|------|-----------|-------------|-----------------------|\n")
		for _, p := range s.Points {
			response := "n/a"
			if p.ShockResponseMean >= 0 {
				response = fmt.Sprintf("%.1f", p.ShockResponseMean)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.0f | %.4f | %.4f | %.1f | %s |\n",
				p.Point, p.Scenario, p.Seeds, p.FinalNodesMean, p.FinalNodesCV,
				p.DeviationMean, p.AdjustmentsMean, response))
		}
		sb.WriteString("\n")

		if len(s.Ranks) > 0 {
			sb.WriteString("| Parameter | Seeds | Min consistency | Modal top | Top agreement | Verdict |\n")
			sb.WriteString("|-----------|-------|-----------------|-----------|---------------|---------|\n")
			for _, rc := range s.Ranks {
				sb.WriteString(fmt.Sprintf("| %s | %d | %.2f | %g | %.2f | %s |\n",
					rc.Parameter, rc.Seeds, rc.MinConsistency, rc.ModalTop, rc.TopAgreement, rc.Verdict))
			}
			sb.WriteString("\n")
		}
	}

	// Governance
	if len(r.Governance) > 0 {
		sb.WriteString("## Governance Concentration\n\n")
		sb.WriteString("| Formula | Holders | Gini | HHI | Top 1% | Top 10% | Whale capture |\n")
		sb.WriteString("|---------|---------|------|-----|--------|---------|---------------|\n")
		for _, g := range r.Governance {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
				g.Formula, g.Holders, g.Gini, g.HHI, g.Top1Share, g.Top10Share, g.WhaleCaptureShare))
		}
		sb.WriteString("\n")
	}

	// Wash trading
	if w := r.WashTrade; w != nil {
		sb.WriteString("## Wash-Trading Monte Carlo\n\n")
		sb.WriteString(fmt.Sprintf("%d runs per arm, %d nodes, %d days, catch rate %.2f\n\n",
			w.Config.Runs, w.Config.Nodes, w.Config.Days, w.Config.CatchRate))
		sb.WriteString("| Arm | Fraud % mean | Median | IQR | Min | Max | Slashed | Surviving mercenaries |\n")
		sb.WriteString("|-----|--------------|--------|-----|-----|-----|---------|-----------------------|\n")
		for _, a := range [...]struct {
			name string
			poc  bool
		}{{"with PoC", true}, {"without PoC", false}} {
			s := w.NoPoC
			if a.poc {
				s = w.WithPoC
			}
			sb.WriteString(fmt.Sprintf("| %s | %.3f | %.3f | %.3f-%.3f | %.3f | %.3f | %s | %.1f |\n",
				a.name, s.FraudRateMean, s.FraudRateMedian, s.FraudRateP25, s.FraudRateP75,
				s.FraudRateMin, s.FraudRateMax, humanize.Comma(int64(s.SlashedMean)), s.SurvivingMercsMean))
		}
		sb.WriteString("\n")
	}

	// Replay References
	sb.WriteString("## Replay References\n\n")
	if len(r.ReplayReferences) > 0 {
		sb.WriteString("| Scenario | Policy | Seed | Short ID | Run ID |\n")
		sb.WriteString("|----------|--------|------|----------|--------|\n")
		for _, ref := range r.ReplayReferences {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | `%s` |\n",
				ref.Scenario, ref.Controller, ref.Seed, ref.ShortID, ref.RunID))
		}
	} else {
		sb.WriteString("No replay references available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
