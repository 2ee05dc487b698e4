package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// InitialState seeds the supply and market variables of a run.
type InitialState struct {
	TotalSupply float64 `yaml:"total_supply" json:"total_supply"`
	Circulating float64 `yaml:"circulating" json:"circulating"`
	Treasury    float64 `yaml:"treasury" json:"treasury"`
	Nodes       int     `yaml:"nodes" json:"nodes"`
	DailyFee    float64 `yaml:"daily_fee" json:"daily_fee"`
	Price       float64 `yaml:"price" json:"price"`
}

// DefaultInitialState returns the reference starting point.
func DefaultInitialState() InitialState {
	return InitialState{
		TotalSupply: 1_000_000_000,
		Circulating: 200_000_000,
		Treasury:    150_000_000,
		Nodes:       2_000,
		DailyFee:    500,
		Price:       0.10,
	}
}

// Validate checks the initial state is consistent.
func (s InitialState) Validate() error {
	if s.TotalSupply <= 0 {
		return fmt.Errorf("%w: total supply must be positive", ErrInvalidConfig)
	}
	if s.Circulating < 0 || s.Circulating > s.TotalSupply {
		return fmt.Errorf("%w: circulating supply must be in [0, total supply]", ErrInvalidConfig)
	}
	if s.Treasury < 0 {
		return fmt.Errorf("%w: treasury must be non-negative", ErrInvalidConfig)
	}
	if s.Nodes < 0 {
		return fmt.Errorf("%w: initial node count must be non-negative", ErrInvalidConfig)
	}
	if s.Price <= 0 {
		return fmt.Errorf("%w: initial price must be positive", ErrInvalidConfig)
	}
	return nil
}

// DefaultHorizon is five years of daily steps.
const DefaultHorizon = 1825

// RunConfig fully determines one trajectory: identical configs reproduce
// identical outputs.
type RunConfig struct {
	Scenario    ScenarioConfig
	Controller  ControllerConfig
	Economy     EconomyConfig
	Calibration Calibration
	Initial     InitialState
	Horizon     int
	Seed        int64
}

// DefaultRunConfig returns the reference run for a scenario and policy.
func DefaultRunConfig(sc ScenarioConfig, kind ControllerKind, seed int64) RunConfig {
	return RunConfig{
		Scenario:    sc,
		Controller:  DefaultControllerConfig().WithKind(kind),
		Economy:     DefaultEconomyConfig(),
		Calibration: DefaultCalibration(),
		Initial:     DefaultInitialState(),
		Horizon:     DefaultHorizon,
		Seed:        seed,
	}
}

// Validate runs every sub-validation. Called before any computation.
func (c RunConfig) Validate() error {
	if c.Horizon <= 0 {
		return fmt.Errorf("%w: horizon must be positive, got %d", ErrInvalidConfig, c.Horizon)
	}
	if err := c.Scenario.Validate(); err != nil {
		return err
	}
	if err := c.Controller.Validate(); err != nil {
		return err
	}
	if err := c.Economy.Validate(); err != nil {
		return err
	}
	if err := c.Calibration.Validate(); err != nil {
		return err
	}
	return c.Initial.Validate()
}

// Fingerprint hashes every field except the seed, so two configs share a
// fingerprint only when they would run the same model.
func (c RunConfig) Fingerprint() string {
	c.Seed = 0
	b, err := json.Marshal(c)
	if err != nil {
		// Only non-finite floats fail to marshal.
		var shock Shock
		if c.Scenario.Shock != nil {
			shock = *c.Scenario.Shock
		}
		c.Scenario.Shock = nil
		b = []byte(fmt.Sprintf("%+v|%+v", c, shock))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ParamKey is a readable summary of the swept parameters, stored with run
// summaries. It is not unique per config; see Fingerprint.
func (c RunConfig) ParamKey() string {
	ctl := c.Controller
	eco := c.Economy
	return fmt.Sprintf("kp=%g,ki=%g,kd=%g,cad=%d,clamp=%g,floor=%g,ceil=%g,decay=%g,sd=%g,sf=%g,catch=%g,n*=%d,h=%d",
		ctl.Kp, ctl.Ki, ctl.Kd, ctl.CadenceDays, ctl.IntegralClamp, ctl.FloorMult, ctl.CeilingMult, ctl.StaticDecay,
		eco.SlashDowntime, eco.SlashFraud, eco.CatchRate, ctl.TargetNodes, c.Horizon)
}
