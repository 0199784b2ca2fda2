// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Plot       PlotConfig       `yaml:"plot"`
	Light      LightConfig      `yaml:"light"`
	Population PopulationConfig `yaml:"population"`
	Species    []SpeciesConfig  `yaml:"species"`
	Behaviors  []BehaviorConfig `yaml:"behaviors"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Storage    StorageConfig    `yaml:"storage"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// RunConfig holds run length and timestep settings.
type RunConfig struct {
	Timesteps        int   `yaml:"timesteps"`
	YearsPerTimestep int   `yaml:"years_per_timestep"`
	Seed             int64 `yaml:"seed"` // 0 = time-based
}

// PlotConfig holds plot dimensions and the climate schedule.
type PlotConfig struct {
	LenX     float64       `yaml:"len_x"`    // m
	LenY     float64       `yaml:"len_y"`    // m
	Latitude float64       `yaml:"latitude"` // degrees
	Climate  ClimateConfig `yaml:"climate"`
}

// ClimateConfig is a per-timestep climate schedule. Each series is indexed by timestep
// (1-based step n reads element n-1); the last element repeats once a series runs out.
// Long-term means default to the mean of the series when not given.
type ClimateConfig struct {
	Temp           []float64 `yaml:"temp"`
	Precip         []float64 `yaml:"precip"`
	SeasonalPrecip []float64 `yaml:"seasonal_precip"`
	WaterDeficit   []float64 `yaml:"water_deficit"`
	NDep           []float64 `yaml:"n_dep"`

	LongTermTemp         *float64 `yaml:"long_term_temp"`
	LongTermPrecip       *float64 `yaml:"long_term_precip"`
	LongTermSeasonal     *float64 `yaml:"long_term_seasonal_precip"`
	LongTermWaterDeficit *float64 `yaml:"long_term_water_deficit"`
	LongTermNDep         *float64 `yaml:"long_term_n_dep"`
}

// LightConfig holds the sky-brightness model shared by every GLI behavior.
type LightConfig struct {
	BeamFraction         float64 `yaml:"beam_fraction"`          // fraction of growing-season radiation that is direct beam
	ClearSkyTransmission float64 `yaml:"clear_sky_transmission"` // atmospheric transmission coefficient
	FirstDayOfGrowth     int     `yaml:"first_day_of_growth"`    // julian day
	LastDayOfGrowth      int     `yaml:"last_day_of_growth"`     // julian day
	SunSampleMinutes     float64 `yaml:"sun_sample_minutes"`     // sun-track resolution
}

// PopulationConfig holds population and initial-stand settings.
type PopulationConfig struct {
	GridCellSize   float64       `yaml:"grid_cell_size"`  // m
	SeedlingHeight float64       `yaml:"seedling_height"` // m; seedlings at or above become saplings
	Initial        []StandConfig `yaml:"initial"`
	Clumping       ClumpConfig   `yaml:"clumping"`
}

// StandConfig describes the initial trees of one species and type.
type StandConfig struct {
	Species string  `yaml:"species"`
	Type    string  `yaml:"type"`
	Density float64 `yaml:"density"` // stems/ha
	MinDiam float64 `yaml:"min_diam"`
	MaxDiam float64 `yaml:"max_diam"`
}

// ClumpConfig controls noise-driven clumping of the initial stand.
type ClumpConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Scale    float64 `yaml:"scale"`    // noise frequency, 1/m
	Contrast float64 `yaml:"contrast"` // exponent applied to the acceptance probability
}

// SpeciesConfig holds one species' allometry and light parameters.
type SpeciesConfig struct {
	Name            string          `yaml:"name"`
	Allometry       AllometryConfig `yaml:"allometry"`
	LightExtinction float64         `yaml:"light_extinction"` // fraction of light transmitted through the crown
}

// AllometryConfig holds per-species size relationships.
type AllometryConfig struct {
	MaxHeight       float64 `yaml:"max_height"`   // m
	HeightSlope     float64 `yaml:"height_slope"` // Chapman-Richards slope
	CrownRadiusC1   float64 `yaml:"crown_radius_c1"`
	CrownRadiusC2   float64 `yaml:"crown_radius_c2"`
	MaxCrownRadius  float64 `yaml:"max_crown_radius"` // m
	CrownDepthC1    float64 `yaml:"crown_depth_c1"`
	CrownDepthC2    float64 `yaml:"crown_depth_c2"`
	Diam10Slope     float64 `yaml:"diam10_slope"` // DBH = intercept + slope * diam10
	Diam10Intercept float64 `yaml:"diam10_intercept"`
	SeedlingHeightC float64 `yaml:"seedling_height_c"` // seedling height (cm) per cm diam10
	MaxSaplingDBH   float64 `yaml:"max_sapling_dbh"`   // cm; saplings at or above become adults
}

// ComboConfig names a species/type combination a behavior applies to.
type ComboConfig struct {
	Species string `yaml:"species"`
	Type    string `yaml:"type"`
}

// BehaviorConfig describes one behavior in run order.
type BehaviorConfig struct {
	Name    string            `yaml:"name"`
	Kind    string            `yaml:"kind"`
	Applies []ComboConfig     `yaml:"applies"`
	Terms   map[string]string `yaml:"terms"` // slot -> variant, e.g. crowding: temperature_dependent
	Params  ParamBlock        `yaml:"params"`
	Points  []PointConfig     `yaml:"points"` // gli_points only

	Epiphyte string `yaml:"epiphyte,omitempty"` // epiphytic_establishment only
}

// PointConfig is a fixed GLI evaluation point.
type PointConfig struct {
	Name   string  `yaml:"name"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Height float64 `yaml:"height"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfCollectorWindow int  `yaml:"perf_collector_window"`
	WriteGLIMap         bool `yaml:"write_gli_map"`
}

// StorageConfig holds run-store parameters.
type StorageConfig struct {
	Path          string `yaml:"path"`           // empty = disabled
	SnapshotEvery int    `yaml:"snapshot_every"` // timesteps between tree snapshots
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	SpeciesIndex map[string]int // name -> index
	SpeciesNames []string
	NumSpecies   int
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse builds a configuration from YAML bytes merged over the embedded defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	if c.Run.YearsPerTimestep < 1 {
		c.Run.YearsPerTimestep = 1
	}
	if c.Population.SeedlingHeight == 0 {
		c.Population.SeedlingHeight = 1.35
	}
	if c.Plot.LenX <= 0 || c.Plot.LenY <= 0 {
		return fmt.Errorf("plot dimensions must be positive, got %vx%v", c.Plot.LenX, c.Plot.LenY)
	}

	c.Derived.SpeciesIndex = make(map[string]int, len(c.Species))
	c.Derived.SpeciesNames = make([]string, len(c.Species))
	for i, sp := range c.Species {
		if _, dup := c.Derived.SpeciesIndex[sp.Name]; dup {
			return fmt.Errorf("duplicate species %q", sp.Name)
		}
		c.Derived.SpeciesIndex[sp.Name] = i
		c.Derived.SpeciesNames[i] = sp.Name
	}
	c.Derived.NumSpecies = len(c.Species)

	// Long-term climate defaults to the mean of each schedule
	cl := &c.Plot.Climate
	cl.LongTermTemp = defaultMean(cl.LongTermTemp, cl.Temp)
	cl.LongTermPrecip = defaultMean(cl.LongTermPrecip, cl.Precip)
	cl.LongTermSeasonal = defaultMean(cl.LongTermSeasonal, cl.SeasonalPrecip)
	cl.LongTermWaterDeficit = defaultMean(cl.LongTermWaterDeficit, cl.WaterDeficit)
	cl.LongTermNDep = defaultMean(cl.LongTermNDep, cl.NDep)

	return nil
}

func defaultMean(v *float64, series []float64) *float64 {
	if v != nil {
		return v
	}
	var m float64
	for _, s := range series {
		m += s
	}
	if len(series) > 0 {
		m /= float64(len(series))
	}
	return &m
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Behavior returns the named behavior config, if present.
func (c *Config) Behavior(name string) (*BehaviorConfig, bool) {
	for i := range c.Behaviors {
		if c.Behaviors[i].Name == name {
			return &c.Behaviors[i], true
		}
	}
	return nil, false
}
