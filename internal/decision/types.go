package decision

// Verdict is the outcome of checking one claim against ensemble evidence.
type Verdict string

const (
	VerdictSupported    Verdict = "SUPPORTED"
	VerdictNotSupported Verdict = "NOT SUPPORTED"
)

// Claim names.
const (
	ClaimVarianceReduction = "PID reduces terminal node variance"
	ClaimWindup            = "Integral wind-up is reproducible"
	ClaimOrdering          = "Parameter ordering is structural"
)

// VarianceInput compares ensemble dispersion of the terminal node count.
type VarianceInput struct {
	Scenario   string
	Seeds      int // runs per group, the smaller of the two
	PIDCV      float64
	StaticCV   float64
	PIDMean    float64
	StaticMean float64
}

// WindupInput compares a loosely clamped PID run group against the static
// baseline under a demand-side stress scenario.
type WindupInput struct {
	Scenario          string
	PIDDeviation      float64 // mean |N - N*| / N*
	PIDEmission       float64 // mean total emission
	StaticEmission    float64
	PIDFinalIntegral  float64 // informational
	IntegralClampUsed float64 // informational
}

// CriterionResult represents pass/fail for one criterion.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// ClaimResult holds the checklist behind one verdict.
type ClaimResult struct {
	Claim    string
	Subject  string // scenario or parameter
	Verdict  Verdict
	Criteria []CriterionResult
}

// supported is true when every criterion passes.
func supported(criteria []CriterionResult) Verdict {
	for _, c := range criteria {
		if !c.Pass {
			return VerdictNotSupported
		}
	}
	return VerdictSupported
}
