package domain

import "fmt"

// EconomyConfig holds operator economics, penalty, and treasury parameters.
type EconomyConfig struct {
	// Fees
	ProtocolFee float64 `yaml:"protocol_fee" json:"protocol_fee"` // share of fee revenue burned

	// Slashing and proof-of-coverage
	SlashDowntime     float64 `yaml:"slash_downtime" json:"slash_downtime"`         // fraction of stake
	SlashFraud        float64 `yaml:"slash_fraud" json:"slash_fraud"`               // fraction of stake
	DowntimeThreshold float64 `yaml:"downtime_threshold" json:"downtime_threshold"` // uptime below this is slashed
	CatchRate         float64 `yaml:"catch_rate" json:"catch_rate"`                 // proof-of-coverage detection
	FraudCapture      float64 `yaml:"fraud_capture" json:"fraud_capture"`           // x per-operator emission when uncaught

	// Operator yield
	OpportunityCost  float64 `yaml:"opportunity_cost" json:"opportunity_cost"` // USD/day
	OperatingCost    float64 `yaml:"operating_cost" json:"operating_cost"`     // USD/day mean
	OperatingCostStd float64 `yaml:"operating_cost_std" json:"operating_cost_std"`

	// Exit and entry
	ExitProbBase       float64 `yaml:"exit_prob_base" json:"exit_prob_base"`
	ExitProbVeteran    float64 `yaml:"exit_prob_veteran" json:"exit_prob_veteran"`
	VeteranSeasons     int     `yaml:"veteran_seasons" json:"veteran_seasons"`
	EntryYieldMult     float64 `yaml:"entry_yield_mult" json:"entry_yield_mult"`   // x opportunity cost
	EntryRate          float64 `yaml:"entry_rate" json:"entry_rate"`               // x active count per day
	EntryCapAbs        int     `yaml:"entry_cap_abs" json:"entry_cap_abs"`         // per day
	EntryTaperWidth    float64 `yaml:"entry_taper_width" json:"entry_taper_width"` // x target above target
	StakeMin           int     `yaml:"stake_min" json:"stake_min"`
	StakeSpread        int     `yaml:"stake_spread" json:"stake_spread"`
	UptimeJitter       float64 `yaml:"uptime_jitter" json:"uptime_jitter"`
	InitialUptimeNoise float64 `yaml:"initial_uptime_noise" json:"initial_uptime_noise"`
	EntrantUptimeNoise float64 `yaml:"entrant_uptime_noise" json:"entrant_uptime_noise"`

	// Reputation
	SeasonDays       int     `yaml:"season_days" json:"season_days"`
	ReputationDecay  float64 `yaml:"reputation_decay" json:"reputation_decay"`
	ReputationAccrue float64 `yaml:"reputation_accrue" json:"reputation_accrue"`
	ReputationMax    float64 `yaml:"reputation_max" json:"reputation_max"`
	AccrualUptime    float64 `yaml:"accrual_uptime" json:"accrual_uptime"`

	// Treasury stabilizer
	SubsidyTrigger  float64 `yaml:"subsidy_trigger" json:"subsidy_trigger"`   // x opportunity cost
	ReserveFraction float64 `yaml:"reserve_fraction" json:"reserve_fraction"` // x total supply
	DailyCap        float64 `yaml:"daily_cap" json:"daily_cap"`               // x treasury per day

	Profiles    ProfileTable `yaml:"-" json:"profiles"`
	InitialMix  ProfileMix   `yaml:"initial_mix" json:"initial_mix"`
	EntrantMix  ProfileMix   `yaml:"entrant_mix" json:"entrant_mix"`
	WhaleCount  int          `yaml:"whale_count" json:"whale_count"`
	WhaleMinPct float64      `yaml:"whale_min_pct" json:"whale_min_pct"` // of total supply
	WhaleMaxPct float64      `yaml:"whale_max_pct" json:"whale_max_pct"`
}

// DefaultEconomyConfig returns the reference economics.
func DefaultEconomyConfig() EconomyConfig {
	return EconomyConfig{
		ProtocolFee: 0.30,

		SlashDowntime:     0.10,
		SlashFraud:        1.00,
		DowntimeThreshold: 0.90,
		CatchRate:         0.97,
		FraudCapture:      0.1,

		OpportunityCost:  5.0,
		OperatingCost:    3.0,
		OperatingCostStd: 0.5,

		ExitProbBase:       0.008,
		ExitProbVeteran:    0.003,
		VeteranSeasons:     2,
		EntryYieldMult:     2.0,
		EntryRate:          0.03,
		EntryCapAbs:        30,
		EntryTaperWidth:    0.2,
		StakeMin:           10_000,
		StakeSpread:        20_000,
		UptimeJitter:       0.005,
		InitialUptimeNoise: 0.01,
		EntrantUptimeNoise: 0.02,

		SeasonDays:       90,
		ReputationDecay:  0.15,
		ReputationAccrue: 1.0,
		ReputationMax:    5.0,
		AccrualUptime:    0.99,

		SubsidyTrigger:  0.5,
		ReserveFraction: 0.02,
		DailyCap:        0.01,

		Profiles:    DefaultProfileTable(),
		InitialMix:  DefaultInitialMix(),
		EntrantMix:  DefaultEntrantMix(),
		WhaleCount:  5,
		WhaleMinPct: 0.02,
		WhaleMaxPct: 0.05,
	}
}

// Validate checks the economics for configuration errors.
func (e EconomyConfig) Validate() error {
	fractions := []struct {
		name string
		v    float64
	}{
		{"protocol_fee", e.ProtocolFee},
		{"slash_downtime", e.SlashDowntime},
		{"slash_fraud", e.SlashFraud},
		{"downtime_threshold", e.DowntimeThreshold},
		{"catch_rate", e.CatchRate},
		{"exit_prob_base", e.ExitProbBase},
		{"exit_prob_veteran", e.ExitProbVeteran},
		{"entry_rate", e.EntryRate},
		{"reputation_decay", e.ReputationDecay},
		{"reserve_fraction", e.ReserveFraction},
		{"daily_cap", e.DailyCap},
	}
	for _, f := range fractions {
		if f.v < 0 || f.v > 1 {
			return fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrInvalidConfig, f.name, f.v)
		}
	}
	if e.OpportunityCost <= 0 {
		return fmt.Errorf("%w: opportunity cost must be positive", ErrInvalidConfig)
	}
	if e.EntryCapAbs < 0 || e.StakeMin <= 0 || e.StakeSpread <= 0 {
		return fmt.Errorf("%w: entry cap and stake range must be positive", ErrInvalidConfig)
	}
	if e.EntryTaperWidth <= 0 {
		return fmt.Errorf("%w: entry taper width must be positive", ErrInvalidConfig)
	}
	if e.SeasonDays <= 0 {
		return fmt.Errorf("%w: season length must be positive", ErrInvalidConfig)
	}
	if e.ReputationMax <= 0 {
		return fmt.Errorf("%w: reputation cap must be positive", ErrInvalidConfig)
	}
	if e.WhaleCount < 0 || e.WhaleMinPct < 0 || e.WhaleMaxPct < e.WhaleMinPct {
		return fmt.Errorf("%w: whale holdings range is invalid", ErrInvalidConfig)
	}
	if err := e.Profiles.Validate(); err != nil {
		return err
	}
	if err := e.InitialMix.Validate(); err != nil {
		return fmt.Errorf("initial mix: %w", err)
	}
	if err := e.EntrantMix.Validate(); err != nil {
		return fmt.Errorf("entrant mix: %w", err)
	}
	return nil
}
