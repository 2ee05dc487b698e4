package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/ensemble"
	"meshnet-sim/internal/metrics"
	"meshnet-sim/internal/storage"
)

// SweepRef names a stored sweep to include in a report.
type SweepRef struct {
	Name string
	ID   string
}

// Generator produces reports from stored data.
type Generator struct {
	runStore   storage.RunSummaryStore
	statsStore storage.GroupStatsStore
	sweepStore storage.SweepRecordStore // may be nil when no sweeps are reported
	threshold  float64
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	runStore storage.RunSummaryStore,
	statsStore storage.GroupStatsStore,
	sweepStore storage.SweepRecordStore,
) *Generator {
	return &Generator{
		runStore:   runStore,
		statsStore: statsStore,
		sweepStore: sweepStore,
		threshold:  metrics.DefaultStabilityThreshold,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report of one experiment and the given sweeps.
func (g *Generator) Generate(ctx context.Context, experimentID string, sweeps []SweepRef) (*Report, error) {
	stats, err := g.statsStore.GetByExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load group stats: %w", err)
	}
	summaries, err := g.runStore.GetByExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load run summaries: %w", err)
	}

	groups := generateGroups(stats)
	scenarios := make(map[string]struct{})
	for _, row := range groups {
		scenarios[row.Scenario] = struct{}{}
	}

	r := &Report{
		ExperimentID:     experimentID,
		GeneratedAt:      g.now(),
		RunCount:         len(summaries),
		ScenarioCount:    len(scenarios),
		Groups:           groups,
		Comparisons:      generateComparisons(groups),
		Stats:            stats,
		ReplayReferences: generateReplayReferences(summaries),
	}

	for _, ref := range sweeps {
		if g.sweepStore == nil {
			return nil, fmt.Errorf("sweep %s: no sweep store", ref.Name)
		}
		records, err := g.sweepStore.GetBySweepID(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("load sweep %s: %w", ref.Name, err)
		}
		section, err := g.generateSweep(ref, records)
		if err != nil {
			return nil, err
		}
		r.Sweeps = append(r.Sweeps, section)
	}
	return r, nil
}

// generateGroups builds one headline row per (scenario, controller).
func generateGroups(stats []*domain.GroupStats) []GroupRow {
	byKey := make(map[metrics.GroupKey]*GroupRow)
	var keys []metrics.GroupKey
	for _, s := range stats {
		k := metrics.GroupKey{Scenario: s.Scenario, Controller: s.Controller}
		row, ok := byKey[k]
		if !ok {
			row = &GroupRow{Scenario: s.Scenario, Controller: s.Controller}
			byKey[k] = row
			keys = append(keys, k)
		}
		switch s.Metric {
		case domain.MetricFinalNodes:
			row.Seeds = s.Samples
			row.FinalNodesMean = s.Mean
			row.FinalNodesP5 = s.P5
			row.FinalNodesP95 = s.P95
			row.FinalNodesCV = s.CV
		case domain.MetricDeviation:
			row.DeviationMean = s.Mean
		case domain.MetricFinalPrice:
			row.FinalPrice = s.Mean
		case domain.MetricFinalTreasury:
			row.Treasury = s.Mean
		case domain.MetricTotalEmission:
			row.Emission = s.Mean
		case domain.MetricFraudCaptured:
			row.FraudPct = s.Mean
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Scenario != keys[j].Scenario {
			return keys[i].Scenario < keys[j].Scenario
		}
		return keys[i].Controller < keys[j].Controller
	})

	rows := make([]GroupRow, len(keys))
	for i, k := range keys {
		rows[i] = *byKey[k]
	}
	return rows
}

// generateComparisons pairs the PID and static rows of each scenario.
// Scenarios missing either policy are skipped.
func generateComparisons(groups []GroupRow) []PolicyComparisonRow {
	pid := make(map[string]GroupRow)
	static := make(map[string]GroupRow)
	var scenarios []string
	for _, g := range groups {
		switch g.Controller {
		case domain.ControllerPID:
			pid[g.Scenario] = g
			scenarios = append(scenarios, g.Scenario)
		case domain.ControllerStatic:
			static[g.Scenario] = g
		}
	}

	var rows []PolicyComparisonRow
	for _, sc := range scenarios {
		p, s := pid[sc], static[sc]
		if _, ok := static[sc]; !ok {
			continue
		}
		row := PolicyComparisonRow{
			Scenario:        sc,
			PIDCV:           p.FinalNodesCV,
			StaticCV:        s.FinalNodesCV,
			PIDMeanNodes:    p.FinalNodesMean,
			StaticMeanNodes: s.FinalNodesMean,
			PIDEmission:     p.Emission,
			StaticEmission:  s.Emission,
		}
		if s.FinalNodesCV > 0 {
			row.VarianceRedPct = (s.FinalNodesCV - p.FinalNodesCV) / s.FinalNodesCV * 100
		}
		rows = append(rows, row)
	}
	return rows
}

// generateSweep averages sweep rows per (point, scenario) cell and, for
// single-axis sweeps, adds rank consistency per scenario.
func (g *Generator) generateSweep(ref SweepRef, records []*domain.SweepRecord) (SweepSection, error) {
	type cell struct{ point, scenario string }
	grouped := make(map[cell][]*domain.SweepRecord)
	var cells []cell
	axes := make(map[string]struct{})
	for _, r := range records {
		c := cell{r.Point, r.Scenario}
		if _, ok := grouped[c]; !ok {
			cells = append(cells, c)
		}
		grouped[c] = append(grouped[c], r)
		for name := range r.Values {
			axes[name] = struct{}{}
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].point != cells[j].point {
			return cells[i].point < cells[j].point
		}
		return cells[i].scenario < cells[j].scenario
	})

	section := SweepSection{Name: ref.Name, SweepID: ref.ID}
	for _, c := range cells {
		section.Points = append(section.Points, sweepPointRow(c.point, c.scenario, grouped[c]))
	}

	if len(axes) == 1 {
		var axis string
		for name := range axes {
			axis = name
		}
		ranks, err := ensemble.RankByScenario(axis, records, g.threshold)
		if err != nil {
			return SweepSection{}, fmt.Errorf("rank sweep %s: %w", ref.Name, err)
		}
		section.Ranks = ranks
	}
	return section, nil
}

func sweepPointRow(point, scenario string, rows []*domain.SweepRecord) SweepPointRow {
	nodes := make([]float64, len(rows))
	devs := make([]float64, len(rows))
	adjs := make([]float64, len(rows))
	var responses []float64
	for i, r := range rows {
		nodes[i] = float64(r.FinalNodes)
		devs[i] = r.Deviation
		adjs[i] = float64(r.Adjustments)
		if r.ShockResponseDays >= 0 {
			responses = append(responses, float64(r.ShockResponseDays))
		}
	}
	d, _ := metrics.Describe(nodes)
	row := SweepPointRow{
		Point:             point,
		Scenario:          scenario,
		Seeds:             len(rows),
		FinalNodesMean:    d.Mean,
		FinalNodesCV:      d.CV,
		ShockResponseMean: -1,
	}
	row.DeviationMean, _ = metrics.Mean(devs)
	row.AdjustmentsMean, _ = metrics.Mean(adjs)
	if len(responses) > 0 {
		row.ShockResponseMean, _ = metrics.Mean(responses)
	}
	return row
}

// generateReplayReferences lists the lowest-seed run of each group.
func generateReplayReferences(summaries []*domain.RunSummary) []ReplayReferenceRow {
	first := make(map[metrics.GroupKey]*domain.RunSummary)
	for _, s := range summaries {
		k := metrics.GroupKey{Scenario: s.Scenario, Controller: s.Controller}
		if cur, ok := first[k]; !ok || s.Seed < cur.Seed {
			first[k] = s
		}
	}

	refs := make([]ReplayReferenceRow, 0, len(first))
	for k, s := range first {
		refs = append(refs, ReplayReferenceRow{
			Scenario:   k.Scenario,
			Controller: k.Controller,
			Seed:       s.Seed,
			ShortID:    s.ShortID,
			RunID:      s.RunID,
		})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Scenario != refs[j].Scenario {
			return refs[i].Scenario < refs[j].Scenario
		}
		return refs[i].Controller < refs[j].Controller
	})
	return refs
}
