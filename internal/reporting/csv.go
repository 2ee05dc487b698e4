package reporting

import (
	"fmt"
	"sort"
	"strings"

	"meshnet-sim/internal/domain"
)

// RenderCSV renders group statistics as CSV string.
func RenderCSV(stats []*domain.GroupStats) string {
	var sb strings.Builder

	// Header
	sb.WriteString("experiment_id,scenario,controller,metric,samples,")
	sb.WriteString("mean,std,p5,p50,p95,min,max,cv\n")

	// Rows
	for _, s := range stats {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f\n",
			s.ExperimentID,
			s.Scenario,
			s.Controller,
			s.Metric,
			s.Samples,
			s.Mean,
			s.Std,
			s.P5,
			s.P50,
			s.P95,
			s.Min,
			s.Max,
			s.CV,
		))
	}

	return sb.String()
}

// RenderSweepCSV renders sweep rows as CSV, one column per swept axis
// before the outcome columns.
func RenderSweepCSV(records []*domain.SweepRecord) string {
	axisSet := make(map[string]struct{})
	for _, r := range records {
		for name := range r.Values {
			axisSet[name] = struct{}{}
		}
	}
	axes := make([]string, 0, len(axisSet))
	for name := range axisSet {
		axes = append(axes, name)
	}
	sort.Strings(axes)

	var sb strings.Builder
	sb.WriteString("sweep_id,point,")
	for _, a := range axes {
		sb.WriteString(a + ",")
	}
	sb.WriteString("scenario,seed,run_id,final_nodes,deviation,mean_abs_deviation,total_emission,total_slashed,")
	sb.WriteString("final_circulating,final_treasury,final_price,floor_steps,ceiling_steps,adjustments,emission_std,shock_response_days\n")

	for _, r := range records {
		sb.WriteString(fmt.Sprintf("%s,%q,", r.SweepID, r.Point))
		for _, a := range axes {
			sb.WriteString(fmt.Sprintf("%g,", r.Values[a]))
		}
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%d,%.6f,%.6f,%.2f,%.2f,%.2f,%.2f,%.6f,%d,%d,%d,%.2f,%d\n",
			r.Scenario, r.Seed, r.RunID, r.FinalNodes, r.Deviation, r.MeanAbsDeviation,
			r.TotalEmission, r.TotalSlashed, r.FinalCirculating, r.FinalTreasury, r.FinalPrice,
			r.FloorSteps, r.CeilingSteps, r.Adjustments, r.EmissionStd, r.ShockResponseDays))
	}
	return sb.String()
}

// RenderTimestepCSV renders one trajectory as CSV, one row per day.
func RenderTimestepCSV(records []*domain.TimestepRecord) string {
	var sb strings.Builder
	sb.WriteString("run_id,scenario,controller,seed,timestep,nodes,emission,burn,daily_fee,price,")
	sb.WriteString("total_supply,circulating,treasury,slashed,slashed_total,subsidy,fraud_captured_pct,bme,integral\n")

	for _, r := range records {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%d,%d,%.4f,%.4f,%.4f,%.6f,%.2f,%.2f,%.2f,%.4f,%.4f,%.4f,%.6f,%.6f,%.6f\n",
			r.RunID, r.Scenario, r.Controller, r.Seed, r.Timestep, r.Nodes,
			r.Emission, r.Burn, r.DailyFee, r.Price,
			r.TotalSupply, r.Circulating, r.Treasury,
			r.Slashed, r.SlashedTotal, r.Subsidy, r.FraudCapturedPct, r.BME, r.Integral))
	}
	return sb.String()
}
