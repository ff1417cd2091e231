// Package config loads the simulator's run configuration from a YAML file.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every external input and option enumerated in SPEC_FULL.md
// §D / spec.md §6.
type Config struct {
	// Required inputs.
	PassengerFile         string `mapstructure:"passenger_file"`
	MapFile               string `mapstructure:"map_file"`
	ShortestPathTimeFile  string `mapstructure:"shortest_path_time_file"`
	ShortestPathDistFile  string `mapstructure:"shortest_path_distance_file"`
	VehicleFile           string `mapstructure:"vehicle_file"`

	// Demand shaping (SPEC_FULL.md §C.2).
	DemandFraction    float64 `mapstructure:"demand_fraction"`
	DemandWindowHours float64 `mapstructure:"demand_window_hours"`
	DemandShiftHours  float64 `mapstructure:"demand_shift_hours"`

	// Simulation control.
	Seed              int64   `mapstructure:"seed"`
	AssignIntervalSec float64 `mapstructure:"assign_interval_sec"`
	MPCIntervalSec    float64 `mapstructure:"mpc_interval_sec"`
	MPCHorizonSteps   int     `mapstructure:"mpc_horizon_steps"`
	MPCControlSteps   int     `mapstructure:"mpc_control_steps"`
	MPCStepSec        float64 `mapstructure:"mpc_step_sec"`

	// Optional state dimensions / sinks.
	EnergyEnabled    bool   `mapstructure:"energy_enabled"`
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	KafkaBrokers     string `mapstructure:"kafka_brokers"`
	KafkaTopic       string `mapstructure:"kafka_topic"`
	MonitorAddr      string `mapstructure:"monitor_addr"`
	OutputDir        string `mapstructure:"output_dir"`
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"`
}

// Load reads path as YAML, applying defaults for everything not present,
// following the scoped-viper-instance pattern (avoids viper's package-level
// singleton statefulness across repeated Load calls in tests).
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))

	vp.SetDefault("demand_fraction", 1.0)
	vp.SetDefault("demand_window_hours", 18.0)
	vp.SetDefault("demand_shift_hours", 20.0)
	vp.SetDefault("seed", int64(42))
	vp.SetDefault("assign_interval_sec", 30.0)
	vp.SetDefault("mpc_interval_sec", 300.0)
	vp.SetDefault("mpc_horizon_steps", 12)
	vp.SetDefault("mpc_control_steps", 4)
	vp.SetDefault("mpc_step_sec", 300.0)
	vp.SetDefault("energy_enabled", false)
	vp.SetDefault("output_dir", "out")
	vp.SetDefault("log_level", "info")
	vp.SetDefault("log_format", "text")

	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := vp.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PassengerFile == "" {
		return fmt.Errorf("config: passenger_file is required")
	}
	if c.MapFile == "" {
		return fmt.Errorf("config: map_file is required")
	}
	if c.ShortestPathTimeFile == "" {
		return fmt.Errorf("config: shortest_path_time_file is required")
	}
	if c.MPCHorizonSteps <= 0 || c.MPCControlSteps <= 0 || c.MPCControlSteps > c.MPCHorizonSteps {
		return fmt.Errorf("config: mpc_control_steps must be in (0, mpc_horizon_steps]")
	}
	return nil
}

// MPCStepDuration returns the MPC discretisation step as a time.Duration.
func (c *Config) MPCStepDuration() time.Duration {
	return time.Duration(c.MPCStepSec * float64(time.Second))
}
