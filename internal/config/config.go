// Package config loads experiment files: which scenarios, policies, seeds
// and sweeps to run, with parameter overrides on top of the defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"meshnet-sim/internal/calibration"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/ensemble"
	"meshnet-sim/internal/washtrade"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config is the on-disk experiment shape (YAML). Keys left out keep their
// default values.
type Config struct {
	ExperimentID string `yaml:"experiment_id"`
	Horizon      int    `yaml:"horizon"`

	// Optional: calibration constants from a separate YAML file, resolved
	// relative to the experiment file.
	CalibrationFile string `yaml:"calibration_file"`

	Scenarios   []string                `yaml:"scenarios"`
	Controllers []domain.ControllerKind `yaml:"controllers"`
	Ensemble    EnsembleConfig          `yaml:"ensemble"`

	Controller domain.ControllerConfig         `yaml:"controller"`
	Economy    domain.EconomyConfig            `yaml:"economy"`
	Profiles   map[string]domain.ProfileParams `yaml:"profiles"` // by profile name
	Initial    domain.InitialState             `yaml:"initial"`

	Windup    *WindupConfig     `yaml:"windup"`
	Sweeps    []SweepConfig     `yaml:"sweeps"`
	WashTrade *washtrade.Config `yaml:"washtrade"`

	Storage StorageConfig `yaml:"storage"`
	Report  ReportConfig  `yaml:"report"`

	// Calibration is filled from CalibrationFile, or the defaults.
	Calibration domain.Calibration `yaml:"-"`
}

// EnsembleConfig sets the seeds of every (scenario, controller) group.
type EnsembleConfig struct {
	BaseSeed int64 `yaml:"base_seed"`
	Size     int   `yaml:"size"`
	Workers  int   `yaml:"workers"` // 0 uses GOMAXPROCS
}

// WindupConfig is the stress experiment: a loosely clamped PID against the
// static baseline on a demand-side scenario.
type WindupConfig struct {
	Scenario      string  `yaml:"scenario"`
	IntegralClamp float64 `yaml:"integral_clamp"` // 0 means unclamped
	Seeds         int     `yaml:"seeds"`
}

// SweepConfig is one sensitivity sweep.
type SweepConfig struct {
	Name      string      `yaml:"name"`
	Axes      []AxisValue `yaml:"axes"`
	Scenarios []string    `yaml:"scenarios"` // empty uses the experiment scenarios
	Seeds     int         `yaml:"seeds"`     // empty uses the ensemble size
}

// AxisValue names a swept parameter and its values.
type AxisValue struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values"`
}

// StorageConfig selects where results go. DSNs may be left empty and
// supplied by the binary from the environment.
type StorageConfig struct {
	Backend        string `yaml:"backend"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	ClickHouseDSN  string `yaml:"clickhouse_dsn"`
	SQLitePath     string `yaml:"sqlite_path"`
	StoreTimesteps bool   `yaml:"store_timesteps"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// Default returns the reference experiment: the four core scenarios under
// both policies, 30 seeds each, in memory.
func Default() *Config {
	names := make([]string, 0, 4)
	for _, sc := range domain.CoreScenarios() {
		names = append(names, sc.Name)
	}
	return &Config{
		ExperimentID: "default",
		Horizon:      domain.DefaultHorizon,
		Scenarios:    names,
		Controllers:  []domain.ControllerKind{domain.ControllerPID, domain.ControllerStatic},
		Ensemble:     EnsembleConfig{BaseSeed: 1000, Size: 30},
		Controller:   domain.DefaultControllerConfig(),
		Economy:      domain.DefaultEconomyConfig(),
		Initial:      domain.DefaultInitialState(),
		Storage:      StorageConfig{Backend: BackendMemory},
		Report:       ReportConfig{OutputDir: "reports"},
		Calibration:  domain.DefaultCalibration(),
	}
}

// Load reads, defaults and validates an experiment file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if c.CalibrationFile != "" {
		calPath := c.CalibrationFile
		if !filepath.IsAbs(calPath) {
			// Prefer paths relative to the experiment file, falling back to cwd.
			cand := filepath.Join(filepath.Dir(path), calPath)
			if _, err := os.Stat(cand); err == nil {
				calPath = cand
			}
		}
		cal, err := calibration.Load(calPath)
		if err != nil {
			return nil, err
		}
		c.Calibration = cal
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes YAML on top of Default and applies defaults. It does not
// load the calibration file or validate.
func Parse(raw []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse experiment: %w", err)
	}
	if err := c.ApplyDefaults(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyDefaults fills values that depend on other settings and merges
// per-profile overrides into the economy.
func (c *Config) ApplyDefaults() error {
	if c.Ensemble.Size == 0 {
		c.Ensemble.Size = 30
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	if c.Windup != nil {
		if c.Windup.Scenario == "" {
			c.Windup.Scenario = domain.ScenarioSustainedContraction
		}
		if c.Windup.Seeds == 0 {
			c.Windup.Seeds = c.Ensemble.Size
		}
	}
	for i := range c.Sweeps {
		if len(c.Sweeps[i].Scenarios) == 0 {
			c.Sweeps[i].Scenarios = c.Scenarios
		}
		if c.Sweeps[i].Seeds == 0 {
			c.Sweeps[i].Seeds = c.Ensemble.Size
		}
	}

	if len(c.Profiles) > 0 {
		table := make(domain.ProfileTable, len(c.Economy.Profiles))
		for p, params := range c.Economy.Profiles {
			table[p] = params
		}
		for name, params := range c.Profiles {
			p, err := domain.ParseProfile(name)
			if err != nil {
				return err
			}
			table[p] = params
		}
		c.Economy.Profiles = table
	}
	return nil
}

// Validate checks the experiment before anything runs.
func (c *Config) Validate() error {
	if c.ExperimentID == "" {
		return fmt.Errorf("%w: experiment_id is required", domain.ErrInvalidConfig)
	}
	if len(c.Scenarios) == 0 || len(c.Controllers) == 0 {
		return fmt.Errorf("%w: at least one scenario and one controller are required", domain.ErrInvalidConfig)
	}
	if c.Ensemble.Size < 1 {
		return fmt.Errorf("%w: ensemble size must be positive", domain.ErrInvalidConfig)
	}
	if _, err := c.ScenarioConfigs(c.Scenarios); err != nil {
		return err
	}
	for _, kind := range c.Controllers {
		if err := c.Controller.WithKind(kind).Validate(); err != nil {
			return err
		}
	}
	if err := c.BaseRunConfig().Validate(); err != nil {
		return err
	}
	if c.Windup != nil {
		if _, err := domain.ScenarioByName(c.Windup.Scenario); err != nil {
			return fmt.Errorf("windup: %w", err)
		}
		if c.Windup.IntegralClamp < 0 {
			return fmt.Errorf("%w: windup integral_clamp must be non-negative", domain.ErrInvalidConfig)
		}
	}
	for _, s := range c.Sweeps {
		if s.Name == "" || len(s.Axes) == 0 {
			return fmt.Errorf("%w: sweep needs a name and at least one axis", domain.ErrInvalidConfig)
		}
		if s.Seeds < 1 {
			return fmt.Errorf("%w: sweep %s needs at least one seed", domain.ErrInvalidConfig, s.Name)
		}
		for _, a := range s.Axes {
			if len(a.Values) == 0 {
				return fmt.Errorf("%w: sweep %s axis %q has no values", domain.ErrInvalidConfig, s.Name, a.Name)
			}
		}
		scenarios, err := c.ScenarioConfigs(s.Scenarios)
		if err != nil {
			return fmt.Errorf("sweep %s: %w", s.Name, err)
		}
		if err := c.SweepSpec(s, scenarios).Validate(); err != nil {
			return fmt.Errorf("sweep %s: %w", s.Name, err)
		}
	}
	if c.WashTrade != nil {
		if err := c.WashTrade.Validate(); err != nil {
			return fmt.Errorf("washtrade: %w", err)
		}
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("%w: unknown storage backend %q", domain.ErrInvalidConfig, c.Storage.Backend)
	}
	return nil
}

// SweepSpec builds the runnable form of sweep s. Sweeps run the PID policy
// on the experiment's base parameters.
func (c *Config) SweepSpec(s SweepConfig, scenarios []domain.ScenarioConfig) ensemble.SweepSpec {
	base := c.BaseRunConfig()
	base.Controller = base.Controller.WithKind(domain.ControllerPID)

	axes := make([]ensemble.Axis, len(s.Axes))
	for i, a := range s.Axes {
		axes[i] = ensemble.Axis{Name: a.Name, Values: a.Values}
	}
	return ensemble.SweepSpec{
		Experiment: c.ExperimentID + "-" + s.Name,
		Axes:       axes,
		Scenarios:  scenarios,
		Seeds:      ensemble.Seeds(c.Ensemble.BaseSeed, s.Seeds),
		Base:       base,
	}
}

// ScenarioConfigs resolves catalog scenario names.
func (c *Config) ScenarioConfigs(names []string) ([]domain.ScenarioConfig, error) {
	out := make([]domain.ScenarioConfig, 0, len(names))
	for _, name := range names {
		sc, err := domain.ScenarioByName(name)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// BaseRunConfig returns the run template shared by every job; scenario,
// controller kind and seed are set per job.
func (c *Config) BaseRunConfig() domain.RunConfig {
	sc, _ := domain.ScenarioByName(c.Scenarios[0])
	return domain.RunConfig{
		Scenario:    sc,
		Controller:  c.Controller.WithKind(c.Controllers[0]),
		Economy:     c.Economy,
		Calibration: c.Calibration,
		Initial:     c.Initial,
		Horizon:     c.Horizon,
		Seed:        c.Ensemble.BaseSeed,
	}
}
