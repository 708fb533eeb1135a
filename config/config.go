// Package config provides configuration loading and validation for the
// simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Domain     DomainConfig     `yaml:"domain"`
	Simulation SimulationConfig `yaml:"simulation"`
	Force      ForceConfig      `yaml:"force"`
	Growth     GrowthConfig     `yaml:"growth"`
	Seeding    SeedingConfig    `yaml:"seeding"`
	Output     OutputConfig     `yaml:"output"`
	Store      StoreConfig      `yaml:"store"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// DomainConfig describes the leaf rectangle and its voxel partition.
type DomainConfig struct {
	Width     float64 `yaml:"width"`      // leaf extent along X
	Height    float64 `yaml:"height"`     // leaf extent along Y
	VoxelSize float64 `yaml:"voxel_size"` // voxel edge; must cover the interaction reach
}

// SimulationConfig holds stepping and scheduling parameters.
type SimulationConfig struct {
	DT      float64 `yaml:"dt"`      // fixed step size in simulation time
	Steps   int     `yaml:"steps"`   // default run length for the CLI
	Seed    uint64  `yaml:"seed"`    // run seed; roots every agent's random stream
	Workers int     `yaml:"workers"` // subdomain count; 0 = one per CPU, capped at voxel columns
	Mass    float64 `yaml:"mass"`    // agent mass for integration
	Damping float64 `yaml:"damping"` // viscous damping rate (per time unit)
	Debug   bool    `yaml:"debug"`   // fail loudly on state inconsistencies
}

// ForceConfig holds the pairwise contact law parameters.
type ForceConfig struct {
	Repulsion      float64 `yaml:"repulsion"`       // spring constant against overlap
	Adhesion       float64 `yaml:"adhesion"`        // adhesive tent slope; 0 disables the band
	AdhesionFactor float64 `yaml:"adhesion_factor"` // outer reach as a multiple of the radius sum
}

// GrowthConfig holds the growth, division, and differentiation
// parameters consumed by the default rules.
type GrowthConfig struct {
	Rate                    float64 `yaml:"rate"`                     // radius gain per time unit at zero crowding
	MaxRadius               float64 `yaml:"max_radius"`               // radius at which growth stalls
	CrowdRadius             float64 `yaml:"crowd_radius"`             // neighborhood radius for crowding
	CrowdThreshold          int     `yaml:"crowd_threshold"`          // neighbors before growth slows
	CrowdSaturation         int     `yaml:"crowd_saturation"`         // neighbors at which growth stops
	DivisionRadius          float64 `yaml:"division_radius"`          // minimum radius to divide
	DivisionProgress        float64 `yaml:"division_progress"`        // progress required to divide
	DifferentiationProgress float64 `yaml:"differentiation_progress"` // progress at which differentiation starts
	DwellTime               float64 `yaml:"dwell_time"`               // time spent differentiating before the fate call
	TipProbability          float64 `yaml:"tip_probability"`          // chance a differentiating cell becomes a trichome tip
	MarginWidth             float64 `yaml:"margin_width"`             // leaf-edge band that forces the tip fate; 0 disables
}

// SeedingConfig describes the hexagonal initial population.
type SeedingConfig struct {
	Rings   int     `yaml:"rings"`   // hexagonal rings around the center cell
	Spacing float64 `yaml:"spacing"` // lattice constant
	Radius  float64 `yaml:"radius"`  // initial cell radius
	Jitter  float64 `yaml:"jitter"`  // positional noise as a fraction of spacing
}

// OutputConfig holds telemetry and snapshot output parameters.
type OutputConfig struct {
	Dir           string `yaml:"dir"`            // run directories are created under this root
	SnapshotEvery int    `yaml:"snapshot_every"` // steps between JSON snapshots; 0 disables
	StatsWindow   int    `yaml:"stats_window"`   // steps aggregated per stats row
	PerfWindow    int    `yaml:"perf_window"`    // samples kept per perf phase
}

// StoreConfig holds the optional SQLite run store settings.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // database file; empty means <output dir>/runs.db
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	MaxReach float64 // largest center distance at which two agents interact
	Columns  int     // whole voxel columns across the domain
	Rows     int     // whole voxel rows across the domain
}

// Load loads configuration from a YAML file, merging with embedded
// defaults. If path is empty, only embedded defaults are used.
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
		// Unmarshal into the same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	return cfg, nil
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	factor := c.Force.AdhesionFactor
	if factor < 1 {
		factor = 1
	}
	c.Derived.MaxReach = 2 * c.Growth.MaxRadius * factor

	if c.Domain.VoxelSize > 0 {
		c.Derived.Columns = int(math.Ceil(c.Domain.Width / c.Domain.VoxelSize))
		c.Derived.Rows = int(math.Ceil(c.Domain.Height / c.Domain.VoxelSize))
	}
}

// Validate checks the configuration for values the engine cannot run
// with. All violations are reported, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Simulation.DT <= 0 {
		errs = append(errs, fmt.Errorf("simulation.dt must be positive, got %g", c.Simulation.DT))
	}
	if c.Simulation.Mass <= 0 {
		errs = append(errs, fmt.Errorf("simulation.mass must be positive, got %g", c.Simulation.Mass))
	}
	if c.Simulation.Damping < 0 {
		errs = append(errs, fmt.Errorf("simulation.damping must not be negative, got %g", c.Simulation.Damping))
	}
	if c.Simulation.Workers < 0 {
		errs = append(errs, fmt.Errorf("simulation.workers must not be negative, got %d", c.Simulation.Workers))
	}

	if c.Domain.Width <= 0 || c.Domain.Height <= 0 {
		errs = append(errs, fmt.Errorf("domain must have positive extent, got %gx%g", c.Domain.Width, c.Domain.Height))
	}
	reach := 2 * c.Growth.MaxRadius * math.Max(c.Force.AdhesionFactor, 1)
	if c.Domain.VoxelSize <= 0 {
		errs = append(errs, fmt.Errorf("domain.voxel_size must be positive, got %g", c.Domain.VoxelSize))
	} else if c.Domain.VoxelSize < reach {
		errs = append(errs, fmt.Errorf("domain.voxel_size %g is smaller than the maximum interaction reach %g; neighbor pairs would be missed",
			c.Domain.VoxelSize, reach))
	}

	if c.Force.AdhesionFactor < 1 {
		errs = append(errs, fmt.Errorf("force.adhesion_factor must be at least 1, got %g", c.Force.AdhesionFactor))
	}
	if c.Force.Repulsion < 0 {
		errs = append(errs, fmt.Errorf("force.repulsion must not be negative, got %g", c.Force.Repulsion))
	}

	if c.Growth.MaxRadius <= 0 {
		errs = append(errs, fmt.Errorf("growth.max_radius must be positive, got %g", c.Growth.MaxRadius))
	}
	if c.Domain.VoxelSize > 0 && c.Growth.CrowdRadius > c.Domain.VoxelSize {
		errs = append(errs, fmt.Errorf("growth.crowd_radius %g exceeds domain.voxel_size %g; crowding queries would leave the ghost band",
			c.Growth.CrowdRadius, c.Domain.VoxelSize))
	}
	if c.Growth.CrowdSaturation < c.Growth.CrowdThreshold {
		errs = append(errs, fmt.Errorf("growth.crowd_saturation %d is below growth.crowd_threshold %d",
			c.Growth.CrowdSaturation, c.Growth.CrowdThreshold))
	}
	if c.Growth.TipProbability < 0 || c.Growth.TipProbability > 1 {
		errs = append(errs, fmt.Errorf("growth.tip_probability must be in [0,1], got %g", c.Growth.TipProbability))
	}

	return errors.Join(errs...)
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
