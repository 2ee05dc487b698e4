package reporting

import (
	"time"

	"meshnet-sim/internal/decision"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/governance"
	"meshnet-sim/internal/metrics"
	"meshnet-sim/internal/washtrade"
)

// Report is the experiment report structure.
type Report struct {
	// Metadata
	ExperimentID  string
	GeneratedAt   time.Time
	RunCount      int
	ScenarioCount int

	// Ensemble tables (sorted by scenario, controller)
	Groups      []GroupRow
	Comparisons []PolicyComparisonRow // PID vs static per scenario
	Stats       []*domain.GroupStats  // every metric, for CSV export

	Sweeps []SweepSection

	// Optional sections, attached by the caller.
	Governance []governance.Report
	WashTrade  *washtrade.Result
	Claims     []*decision.ClaimResult

	// One run per group, for replay.
	ReplayReferences []ReplayReferenceRow
}

// GroupRow is the headline row of one (scenario, controller) group.
type GroupRow struct {
	Scenario       string
	Controller     domain.ControllerKind
	Seeds          int
	FinalNodesMean float64
	FinalNodesP5   float64
	FinalNodesP95  float64
	FinalNodesCV   float64
	DeviationMean  float64
	FinalPrice     float64 // mean
	Treasury       float64 // mean final treasury
	Emission       float64 // mean total emission
	FraudPct       float64 // mean uncaught fraud share of emissions
}

// PolicyComparisonRow compares both policies on one scenario.
type PolicyComparisonRow struct {
	Scenario        string
	PIDCV           float64
	StaticCV        float64
	VarianceRedPct  float64 // (static - pid) / static * 100, 0 if static CV is 0
	PIDMeanNodes    float64
	StaticMeanNodes float64
	PIDEmission     float64
	StaticEmission  float64
}

// SweepSection holds one sweep's table and rank verdicts.
type SweepSection struct {
	Name    string
	SweepID string
	Points  []SweepPointRow // sorted by point, scenario
	Ranks   []*metrics.RankConsistency
}

// SweepPointRow averages the seeds of one (point, scenario) cell.
type SweepPointRow struct {
	Point             string
	Scenario          string
	Seeds             int
	FinalNodesMean    float64
	FinalNodesCV      float64
	DeviationMean     float64
	AdjustmentsMean   float64
	ShockResponseMean float64 // over recovered runs; -1 if none recovered
}

// ReplayReferenceRow lists replay identifiers.
type ReplayReferenceRow struct {
	Scenario   string
	Controller domain.ControllerKind
	Seed       int64
	ShortID    string
	RunID      string
}
