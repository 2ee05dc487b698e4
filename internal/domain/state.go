package domain

// SimulationState is the mutable state of one run. It is owned by exactly one
// scenario runner and never shared.
type SimulationState struct {
	TotalSupply float64 // S
	Circulating float64 // C
	Treasury    float64 // T
	ActiveNodes int     // N
	DailyFee    float64 // F, USD/day
	Price       float64 // P, USD/token
	Emission    float64 // E, tokens/day
	Burn        float64 // B, tokens/day

	// Controller memory, normalized units.
	Integral  float64
	PrevError float64

	// Cumulative totals.
	EmittedTotal  float64
	BurnedTotal   float64
	SlashedTotal  float64
	SubsidyTotal  float64
	FraudCaptured float64 // uncaught fraud yield, audit only
}

// NewSimulationState builds the t=0 state.
func NewSimulationState(init InitialState, baseEmission float64) *SimulationState {
	return &SimulationState{
		TotalSupply: init.TotalSupply,
		Circulating: init.Circulating,
		Treasury:    init.Treasury,
		ActiveNodes: init.Nodes,
		DailyFee:    init.DailyFee,
		Price:       init.Price,
		Emission:    baseEmission,
	}
}
