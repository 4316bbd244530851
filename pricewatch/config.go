package pricewatch

import (
	"fmt"
	"os"
	"slices"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pricewatch/browser"
	"github.com/hazyhaar/pricewatch/history"
	"github.com/hazyhaar/pricewatch/scrape"
	"github.com/hazyhaar/pricewatch/shield"
	"github.com/hazyhaar/pricewatch/vision"
)

// Config holds all pricewatch configuration.
type Config struct {
	DBPath      string                `yaml:"db_path"`
	HTTP        scrape.HTTPConfig     `yaml:"http"`
	Browser     browser.Config        `yaml:"browser"`
	Proxies     []string              `yaml:"proxies"`
	Vision      VisionConfig          `yaml:"vision"`
	Tiers       TiersConfig           `yaml:"tiers"`
	History     HistoryConfig         `yaml:"history"`
	Events      []history.EventConfig `yaml:"events"`
	Concurrency ConcurrencyConfig     `yaml:"concurrency"`
	Shield      shield.Config         `yaml:"shield"`
}

// VisionConfig enables the vision fallback tier.
type VisionConfig struct {
	Enabled       bool `yaml:"enabled"`
	vision.Config `yaml:",inline"`
}

// TiersConfig overrides per-tier costs and turns tiers off.
type TiersConfig struct {
	Costs    map[scrape.TierName]float64 `yaml:"costs"`
	Disabled []scrape.TierName          `yaml:"disabled"`
}

// HistoryConfig controls write suppression and event tagging.
type HistoryConfig struct {
	Staleness   time.Duration `yaml:"staleness"`
	EventWindow time.Duration `yaml:"event_window"`
}

// ConcurrencyConfig bounds TrackBatch.
type ConcurrencyConfig struct {
	Global    int `yaml:"global"`
	PerDomain int `yaml:"per_domain"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "pricewatch.db"
	}
	if c.Tiers.Costs == nil {
		c.Tiers.Costs = make(map[scrape.TierName]float64, len(scrape.DefaultCosts))
	}
	for name, cost := range scrape.DefaultCosts {
		if c.Tiers.Costs[name] <= 0 {
			c.Tiers.Costs[name] = cost
		}
	}
	if c.History.Staleness <= 0 {
		c.History.Staleness = history.DefaultStaleness
	}
	if c.History.EventWindow <= 0 {
		c.History.EventWindow = history.DefaultEventWindow
	}
	if c.Concurrency.Global <= 0 {
		c.Concurrency.Global = 8
	}
	if c.Concurrency.PerDomain <= 0 {
		c.Concurrency.PerDomain = 2
	}
	if c.Shield.MaxBodyBytes <= 0 {
		c.Shield.MaxBodyBytes = shield.DefaultMaxBodyBytes
	}
	if c.Shield.RateLimits == nil {
		c.Shield.RateLimits = shield.DefaultConfig().RateLimits
	}
}

// DefaultConfig returns the configuration used for every unset field.
func DefaultConfig() Config {
	var c Config
	c.defaults()
	return c
}

func (c *Config) validate() error {
	for name := range c.Tiers.Costs {
		if !name.Valid() {
			return fmt.Errorf("pricewatch: config: unknown tier %q in tiers.costs", name)
		}
	}
	for _, name := range c.Tiers.Disabled {
		if !name.Valid() {
			return fmt.Errorf("pricewatch: config: unknown tier %q in tiers.disabled", name)
		}
	}
	for _, raw := range c.Proxies {
		if _, err := browser.ParseProxy(raw); err != nil {
			return fmt.Errorf("pricewatch: config: proxies: %w", err)
		}
	}
	for i, ev := range c.Events {
		if _, err := ev.Event(); err != nil {
			return fmt.Errorf("pricewatch: config: events[%d]: %w", i, err)
		}
	}
	if c.Concurrency.PerDomain > c.Concurrency.Global {
		return fmt.Errorf("pricewatch: config: per_domain concurrency %d exceeds global %d",
			c.Concurrency.PerDomain, c.Concurrency.Global)
	}
	return nil
}

// LoadConfigFile reads a YAML config file. Fields left out of the file take
// their value from DefaultConfig.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("pricewatch: parse %s: %w", path, err)
	}
	if err := mergo.Merge(cfg, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("pricewatch: merge defaults: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) enabled(name scrape.TierName) bool {
	return !slices.Contains(c.Tiers.Disabled, name)
}
