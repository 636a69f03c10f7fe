// Package config loads the simulator's YAML configuration with
// environment-variable expansion, defaults, and validation.
package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gridmesh/p2p-market/internal/engine"
	"github.com/gridmesh/p2p-market/internal/feeder"
	"github.com/gridmesh/p2p-market/internal/market"
	"github.com/gridmesh/p2p-market/internal/model"
)

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Market   MarketConfig   `yaml:"market"`
	Run      RunConfig      `yaml:"run"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// MarketConfig selects the clearing mechanism and its parameters for
// new market instances.
type MarketConfig struct {
	Mechanism       string  `yaml:"mechanism"`        // cda | call
	InfoSet         string  `yaml:"info_set"`         // book | ticker
	PriceResolution float64 `yaml:"price_resolution"` // c/kWh tick
	FeederCapKW     float64 `yaml:"feeder_cap_kw"`    // 0 = unlimited
	PersistResting  bool    `yaml:"persist_resting"`
	IntervalMinutes int     `yaml:"interval_minutes"`
	TieRule         string  `yaml:"tie_rule"` // midpoint | low | high
}

// RunConfig shapes default simulation runs.
type RunConfig struct {
	Intervals int      `yaml:"intervals"`
	Seed      int64    `yaml:"seed"`
	Agents    []string `yaml:"agents"` // roster specs, e.g. "zic:4"
}

// DatabaseConfig points at the trade/welfare archive.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig enables the read-through result cache.
type RedisConfig struct {
	URL        string `yaml:"url"`
	CacheTTLMS int    `yaml:"cache_ttl_ms"`
}

// MarketConfig converts the document section into the core's
// configuration, including the feeder power-to-energy conversion.
func (m MarketConfig) MarketConfig() market.Config {
	cfg := market.Config{
		Mechanism:       m.Mechanism,
		InfoSet:         model.InfoSet(m.InfoSet),
		PersistResting:  m.PersistResting,
		IntervalMinutes: m.IntervalMinutes,
		TieRule:         engine.TieRule(m.TieRule),
	}
	if m.PriceResolution > 0 {
		cfg.PriceResolution = decimal.NewFromFloat(m.PriceResolution)
	}
	if m.FeederCapKW > 0 {
		minutes := m.IntervalMinutes
		if minutes <= 0 {
			minutes = 5
		}
		cfg.Feeder = feeder.FromKW(decimal.NewFromFloat(m.FeederCapKW), minutes)
	}
	return cfg
}

// Validate rejects values the core cannot honor.
func (c *Config) Validate() error {
	switch c.Market.Mechanism {
	case engine.MechanismCDA, engine.MechanismCall:
	default:
		return fmt.Errorf("config: unknown mechanism %q", c.Market.Mechanism)
	}
	switch model.InfoSet(c.Market.InfoSet) {
	case model.InfoSetBook, model.InfoSetTicker:
	default:
		return fmt.Errorf("config: unknown info_set %q", c.Market.InfoSet)
	}
	if c.Run.Intervals <= 0 {
		return fmt.Errorf("config: run.intervals must be positive, got %d", c.Run.Intervals)
	}
	if c.Market.PriceResolution < 0 || c.Market.FeederCapKW < 0 {
		return fmt.Errorf("config: negative market parameter")
	}
	return nil
}
