package domain

import "fmt"

// DaysPerMonth converts shock onset months to timesteps.
const DaysPerMonth = 30

// ShockType identifies a scripted scenario shock.
type ShockType string

// Shock types.
const (
	ShockDemandContraction ShockType = "demand_contraction"
	ShockOperatorPoach     ShockType = "operator_poach"
	ShockCostIncrease      ShockType = "cost_increase"
)

// Shock describes a one-off disturbance applied from its onset month onwards.
type Shock struct {
	Type       ShockType `yaml:"type" json:"type"`
	OnsetMonth int       `yaml:"onset_month" json:"onset_month"`
	// Magnitude depends on Type:
	//   demand_contraction: revenue lost per month since onset (floored at 0.3x)
	//   operator_poach:     fraction of non-high-commitment operators removed at onset
	//   cost_increase:      operating cost multiplier
	Magnitude float64 `yaml:"magnitude" json:"magnitude"`
}

// OnsetDay returns the timestep at which the shock begins.
func (s Shock) OnsetDay() int {
	return s.OnsetMonth * DaysPerMonth
}

// ScenarioConfig is the exogenous environment of one run. Immutable for a run.
type ScenarioConfig struct {
	Name         string  `yaml:"name" json:"name"`
	DemandGrowth float64 `yaml:"demand_growth" json:"demand_growth"` // annualized
	PriceDrift   float64 `yaml:"price_drift" json:"price_drift"`     // per step, log space
	Shock        *Shock  `yaml:"shock,omitempty" json:"shock,omitempty"`
}

// HasShock reports whether the scenario carries a shock of the given type.
func (c ScenarioConfig) HasShock(t ShockType) bool {
	return c.Shock != nil && c.Shock.Type == t
}

// ShockStarted reports whether timestep t is strictly past the shock onset.
func (c ScenarioConfig) ShockStarted(t int) bool {
	return c.Shock != nil && t > c.Shock.OnsetDay()
}

// MonthsSinceShock returns fractional months elapsed since onset, 0 before it.
func (c ScenarioConfig) MonthsSinceShock(t int) float64 {
	if !c.ShockStarted(t) {
		return 0
	}
	return float64(t-c.Shock.OnsetDay()) / DaysPerMonth
}

// Validate checks the scenario for configuration errors.
func (c ScenarioConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: scenario name is empty", ErrInvalidConfig)
	}
	if c.DemandGrowth <= -1 {
		return fmt.Errorf("%w: scenario %s: demand growth %.3f must be > -1", ErrInvalidConfig, c.Name, c.DemandGrowth)
	}
	if c.Shock == nil {
		return nil
	}
	if c.Shock.OnsetMonth < 0 {
		return fmt.Errorf("%w: scenario %s: negative shock onset", ErrInvalidConfig, c.Name)
	}
	switch c.Shock.Type {
	case ShockDemandContraction:
		if c.Shock.Magnitude <= 0 {
			return fmt.Errorf("%w: scenario %s: contraction rate must be positive", ErrInvalidConfig, c.Name)
		}
	case ShockOperatorPoach:
		if c.Shock.Magnitude <= 0 || c.Shock.Magnitude > 1 {
			return fmt.Errorf("%w: scenario %s: poach rate must be in (0, 1]", ErrInvalidConfig, c.Name)
		}
	case ShockCostIncrease:
		if c.Shock.Magnitude <= 0 {
			return fmt.Errorf("%w: scenario %s: cost multiplier must be positive", ErrInvalidConfig, c.Name)
		}
	default:
		return fmt.Errorf("%w: scenario %s: unknown shock type %q", ErrInvalidConfig, c.Name, c.Shock.Type)
	}
	return nil
}

// Scenario names in the built-in catalog.
const (
	ScenarioBull                 = "bull"
	ScenarioBear                 = "bear"
	ScenarioCompetitor           = "competitor"
	ScenarioRegulatory           = "regulatory"
	ScenarioSustainedContraction = "sustained_contraction"
)

// Predefined scenarios.
var (
	ScenarioConfigBull = ScenarioConfig{
		Name:         ScenarioBull,
		DemandGrowth: 0.30,
		PriceDrift:   0.002,
	}

	ScenarioConfigBear = ScenarioConfig{
		Name:         ScenarioBear,
		DemandGrowth: -0.15,
		PriceDrift:   -0.001,
		Shock:        &Shock{Type: ShockDemandContraction, OnsetMonth: 12, Magnitude: 0.02},
	}

	ScenarioConfigCompetitor = ScenarioConfig{
		Name:         ScenarioCompetitor,
		DemandGrowth: -0.10,
		PriceDrift:   -0.001,
		Shock:        &Shock{Type: ShockOperatorPoach, OnsetMonth: 18, Magnitude: 0.25},
	}

	ScenarioConfigRegulatory = ScenarioConfig{
		Name:         ScenarioRegulatory,
		DemandGrowth: -0.05,
		PriceDrift:   -0.001,
		Shock:        &Shock{Type: ShockCostIncrease, OnsetMonth: 18, Magnitude: 1.30},
	}

	// ScenarioConfigSustainedContraction is a demand-side stress case the
	// emission lever cannot fix; used to reproduce integral wind-up.
	ScenarioConfigSustainedContraction = ScenarioConfig{
		Name:         ScenarioSustainedContraction,
		DemandGrowth: -0.30,
		PriceDrift:   -0.002,
		Shock:        &Shock{Type: ShockDemandContraction, OnsetMonth: 3, Magnitude: 0.05},
	}
)

// CoreScenarios returns the four headline scenarios in catalog order.
func CoreScenarios() []ScenarioConfig {
	return []ScenarioConfig{
		ScenarioConfigBull,
		ScenarioConfigBear,
		ScenarioConfigCompetitor,
		ScenarioConfigRegulatory,
	}
}

// ScenarioByName returns a copy of a catalog scenario.
func ScenarioByName(name string) (ScenarioConfig, error) {
	var sc ScenarioConfig
	switch name {
	case ScenarioBull:
		sc = ScenarioConfigBull
	case ScenarioBear:
		sc = ScenarioConfigBear
	case ScenarioCompetitor:
		sc = ScenarioConfigCompetitor
	case ScenarioRegulatory:
		sc = ScenarioConfigRegulatory
	case ScenarioSustainedContraction:
		sc = ScenarioConfigSustainedContraction
	default:
		return ScenarioConfig{}, fmt.Errorf("%w: unknown scenario %q", ErrInvalidConfig, name)
	}
	if sc.Shock != nil {
		shock := *sc.Shock
		sc.Shock = &shock
	}
	return sc, nil
}

// ScenarioNames lists every catalog scenario.
func ScenarioNames() []string {
	return []string{
		ScenarioBull,
		ScenarioBear,
		ScenarioCompetitor,
		ScenarioRegulatory,
		ScenarioSustainedContraction,
	}
}
