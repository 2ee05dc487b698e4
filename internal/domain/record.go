package domain

// TimestepRecord is one row of run output, keyed by (run_id, timestep).
// This is the sole contract consumed by downstream reporting.
type TimestepRecord struct {
	RunID      string         `json:"run_id"`
	Scenario   string         `json:"scenario"`
	Controller ControllerKind `json:"controller"`
	Seed       int64          `json:"seed"`
	Timestep   int            `json:"timestep"`

	Nodes            int     `json:"nodes"`
	Emission         float64 `json:"emission"`
	Burn             float64 `json:"burn"`
	DailyFee         float64 `json:"daily_fee"`
	Price            float64 `json:"price"`
	TotalSupply      float64 `json:"total_supply"`
	Circulating      float64 `json:"circulating"`
	Treasury         float64 `json:"treasury"`
	Slashed          float64 `json:"slashed"`       // this step
	SlashedTotal     float64 `json:"slashed_total"` // cumulative
	Subsidy          float64 `json:"subsidy"`       // this step
	FraudCapturedPct float64 `json:"fraud_captured_pct"`
	BME              float64 `json:"bme"` // burn / emission
	Integral         float64 `json:"integral"`
}

// RunSummary holds terminal and path statistics of one run. Keyed by
// (experiment_id, run_id); the run ID alone is derived from the config.
type RunSummary struct {
	ExperimentID string         `json:"experiment_id"`
	RunID        string         `json:"run_id"`   // SHA-256 hex
	ShortID      string         `json:"short_id"` // base58 prefix
	Scenario     string         `json:"scenario"`
	Controller   ControllerKind `json:"controller"`
	Seed         int64          `json:"seed"`
	ParamKey     string         `json:"param_key"`
	ConfigJSON   string         `json:"config_json"` // full RunConfig for replay
	Horizon      int            `json:"horizon"`

	// Node count
	FinalNodes       int     `json:"final_nodes"`
	Deviation        float64 `json:"deviation"` // |N - N*| / N*
	MeanAbsDeviation float64 `json:"mean_abs_deviation"`
	MinNodes         int     `json:"min_nodes"`
	MaxNodes         int     `json:"max_nodes"`

	// Token flows
	TotalEmission    float64 `json:"total_emission"`
	TotalBurned      float64 `json:"total_burned"`
	TotalSlashed     float64 `json:"total_slashed"`
	TotalSubsidy     float64 `json:"total_subsidy"`
	FinalTotalSupply float64 `json:"final_total_supply"`
	FinalCirculating float64 `json:"final_circulating"`
	FinalTreasury    float64 `json:"final_treasury"`
	FinalPrice       float64 `json:"final_price"`
	FraudCapturedPct float64 `json:"fraud_captured_pct"`

	// Burn-mint equilibrium
	MaxBME       float64 `json:"max_bme"`
	FinalBME     float64 `json:"final_bme"`
	S2RBenchmark float64 `json:"s2r_benchmark"` // calibrated curve at the final month

	// Controller behaviour
	FloorSteps        int     `json:"floor_steps"`
	CeilingSteps      int     `json:"ceiling_steps"`
	Adjustments       int     `json:"adjustments"`
	EmissionStd       float64 `json:"emission_std"`
	FinalIntegral     float64 `json:"final_integral"`
	ShockResponseDays int     `json:"shock_response_days"` // -1 if never recovered or no shock

	// Governance concentration at p=2 over the final active population
	GovernanceGini    float64 `json:"governance_gini"`
	GovernanceTop1    float64 `json:"governance_top1"`
	WhaleCaptureShare float64 `json:"whale_capture_share"`
}

// SweepRecord is one row of sensitivity output: one parameter point, one
// scenario, one seed.
type SweepRecord struct {
	SweepID  string             `json:"sweep_id"`
	Point    string             `json:"point"` // e.g. "ki=0.1,kd=0.2"
	Values   map[string]float64 `json:"values"`
	Scenario string             `json:"scenario"`
	Seed     int64              `json:"seed"`
	RunID    string             `json:"run_id"`

	FinalNodes        int     `json:"final_nodes"`
	Deviation         float64 `json:"deviation"`
	MeanAbsDeviation  float64 `json:"mean_abs_deviation"`
	TotalEmission     float64 `json:"total_emission"`
	TotalSlashed      float64 `json:"total_slashed"`
	FinalCirculating  float64 `json:"final_circulating"`
	FinalTreasury     float64 `json:"final_treasury"`
	FinalPrice        float64 `json:"final_price"`
	FloorSteps        int     `json:"floor_steps"`
	CeilingSteps      int     `json:"ceiling_steps"`
	Adjustments       int     `json:"adjustments"`
	EmissionStd       float64 `json:"emission_std"`
	ShockResponseDays int     `json:"shock_response_days"`
}

// NewSweepRecord copies the sweep-relevant fields of a run summary.
func NewSweepRecord(sweepID, point string, values map[string]float64, s *RunSummary) *SweepRecord {
	v := make(map[string]float64, len(values))
	for k, x := range values {
		v[k] = x
	}
	return &SweepRecord{
		SweepID:           sweepID,
		Point:             point,
		Values:            v,
		Scenario:          s.Scenario,
		Seed:              s.Seed,
		RunID:             s.RunID,
		FinalNodes:        s.FinalNodes,
		Deviation:         s.Deviation,
		MeanAbsDeviation:  s.MeanAbsDeviation,
		TotalEmission:     s.TotalEmission,
		TotalSlashed:      s.TotalSlashed,
		FinalCirculating:  s.FinalCirculating,
		FinalTreasury:     s.FinalTreasury,
		FinalPrice:        s.FinalPrice,
		FloorSteps:        s.FloorSteps,
		CeilingSteps:      s.CeilingSteps,
		Adjustments:       s.Adjustments,
		EmissionStd:       s.EmissionStd,
		ShockResponseDays: s.ShockResponseDays,
	}
}

// GroupStats is the distribution of one metric over the seeds of a
// (scenario, controller) group. Keyed by (experiment, scenario, controller, metric).
type GroupStats struct {
	ExperimentID string         `json:"experiment_id"`
	Scenario     string         `json:"scenario"`
	Controller   ControllerKind `json:"controller"`
	Metric       string         `json:"metric"`

	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"` // sample stddev
	P5      float64 `json:"p5"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	CV      float64 `json:"cv"` // std / max(mean, floor)
}

// Metric names aggregated per group.
const (
	MetricFinalNodes       = "final_nodes"
	MetricDeviation        = "deviation"
	MetricFinalPrice       = "final_price"
	MetricFinalCirculating = "final_circulating"
	MetricFinalTreasury    = "final_treasury"
	MetricTotalEmission    = "total_emission"
	MetricTotalBurned      = "total_burned"
	MetricTotalSlashed     = "total_slashed"
	MetricMaxBME           = "max_bme"
	MetricFraudCaptured    = "fraud_captured_pct"
)

// GroupMetrics lists metrics in report order.
var GroupMetrics = []string{
	MetricFinalNodes,
	MetricDeviation,
	MetricFinalPrice,
	MetricFinalCirculating,
	MetricFinalTreasury,
	MetricTotalEmission,
	MetricTotalBurned,
	MetricTotalSlashed,
	MetricMaxBME,
	MetricFraudCaptured,
}

// MetricValue extracts a named metric from a summary.
func (s *RunSummary) MetricValue(metric string) (float64, bool) {
	switch metric {
	case MetricFinalNodes:
		return float64(s.FinalNodes), true
	case MetricDeviation:
		return s.Deviation, true
	case MetricFinalPrice:
		return s.FinalPrice, true
	case MetricFinalCirculating:
		return s.FinalCirculating, true
	case MetricFinalTreasury:
		return s.FinalTreasury, true
	case MetricTotalEmission:
		return s.TotalEmission, true
	case MetricTotalBurned:
		return s.TotalBurned, true
	case MetricTotalSlashed:
		return s.TotalSlashed, true
	case MetricMaxBME:
		return s.MaxBME, true
	case MetricFraudCaptured:
		return s.FraudCapturedPct, true
	}
	return 0, false
}
