// Package config loads netsize run settings from YAML files and the
// environment.
package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/CraigKelly/netsize/analysis"
	"github.com/CraigKelly/netsize/model"
	"github.com/CraigKelly/netsize/sampler"
	"github.com/CraigKelly/netsize/simulate"
)

// Config contains every setting of an experiment run
type Config struct {
	// Seed is the master seed for the simulation and every chain
	Seed int64 `json:"seed" yaml:"seed"`

	Simulation simulate.Params `json:"simulation" yaml:"simulation"`

	// Known is how many leading subgroups get a tight prior on their truth
	Known int `json:"known" yaml:"known"`

	// Prune is the zero-variance filter axis: individuals, subgroups or none
	Prune string `json:"prune" yaml:"prune"`

	Sampler  sampler.Settings `json:"sampler" yaml:"sampler"`
	Analysis AnalysisConfig   `json:"analysis" yaml:"analysis"`
	Logging  LoggingConfig    `json:"logging" yaml:"logging"`
}

// AnalysisConfig controls post-processing
type AnalysisConfig struct {
	// RhatLimit fails the run if any split R-hat is above it; 0 disables
	RhatLimit float64 `json:"rhat_limit" yaml:"rhat_limit"`

	// Full includes every per-parameter row in text reports
	Full bool `json:"full" yaml:"full"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	// Level is debug, info (default), warn or error
	Level string `json:"level" yaml:"level"`
}

// Default returns the recovery scenario with four NUTS chains
func Default() *Config {
	return &Config{
		Seed:       1,
		Simulation: simulate.DefaultParams(),
		Known:      model.DefaultKnown,
		Prune:      simulate.PruneIndividuals.String(),
		Sampler:    sampler.DefaultSettings(),
		Analysis: AnalysisConfig{
			RhatLimit: analysis.DefaultRhatLimit,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// not empty) and then the environment
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "loading config file")
		}
		config = fileConfig
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Unset keys keep
// their defaults; unknown keys are an error.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	defer f.Close()

	config := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parsing config file")
	}

	return config, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.Simulation.Check(); err != nil {
		return err
	}
	if c.Known < 1 {
		return errors.Errorf("known must be >= 1, got %d", c.Known)
	}
	if _, err := simulate.ParsePrunePolicy(c.Prune); err != nil {
		return err
	}
	if err := c.Sampler.Check(); err != nil {
		return err
	}
	if c.Analysis.RhatLimit < 0 {
		return errors.Errorf("rhat_limit must be non-negative, got %v", c.Analysis.RhatLimit)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel is the slog level named by Logging.Level. Empty means info.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Logging.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo, errors.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	return lvl, nil
}

// Experiment returns the experiment the configuration describes
func (c *Config) Experiment() (*analysis.Experiment, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	prune, err := simulate.ParsePrunePolicy(c.Prune)
	if err != nil {
		return nil, err
	}

	s := c.Sampler
	s.Seed = c.Seed

	return &analysis.Experiment{
		Simulation: c.Simulation,
		Known:      c.Known,
		Prune:      prune,
		Sampler:    s,
		RhatLimit:  c.Analysis.RhatLimit,
	}, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("NETSIZE_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Seed = n
		}
	}

	if v := os.Getenv("NETSIZE_CHAINS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Sampler.Chains = n
		}
	}

	if v := os.Getenv("NETSIZE_KERNEL"); v != "" {
		config.Sampler.Kernel = strings.ToLower(v)
	}

	if v := os.Getenv("NETSIZE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
