package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridmesh/p2p-market/internal/engine"
	"github.com/gridmesh/p2p-market/internal/model"
)

// Defaults for optional fields.
const (
	DefaultPort            = "8080"
	DefaultMechanism       = engine.MechanismCDA
	DefaultInfoSet         = string(model.InfoSetBook)
	DefaultPriceResolution = 0.1
	DefaultIntervalMinutes = 5
	DefaultIntervals       = 288 // one simulated day
	DefaultSeed            = 42
)

// DefaultAgents is the roster used when none is configured.
var DefaultAgents = []string{"zic:2", "satisficer:2", "optimizer:2", "learner:2"}

// Load reads a YAML config file and expands ${VAR} environment
// variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns the full default configuration, used when no config
// file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Market.Mechanism == "" {
		c.Market.Mechanism = DefaultMechanism
	}
	if c.Market.InfoSet == "" {
		c.Market.InfoSet = DefaultInfoSet
	}
	if c.Market.PriceResolution == 0 {
		c.Market.PriceResolution = DefaultPriceResolution
	}
	if c.Market.IntervalMinutes == 0 {
		c.Market.IntervalMinutes = DefaultIntervalMinutes
	}
	if c.Market.TieRule == "" {
		c.Market.TieRule = string(engine.TieMidpoint)
	}
	if c.Run.Intervals == 0 {
		c.Run.Intervals = DefaultIntervals
	}
	if c.Run.Seed == 0 {
		c.Run.Seed = DefaultSeed
	}
	if len(c.Run.Agents) == 0 {
		c.Run.Agents = append([]string{}, DefaultAgents...)
	}
}
