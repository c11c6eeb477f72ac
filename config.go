package botledger

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers understood by StoreConfig.
const (
	DriverMemory   = "memory"
	DriverJSONFile = "jsonfile"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config is the top-level ledger configuration.
type Config struct {
	Store        StoreConfig `yaml:"store"`
	DefaultTier  string      `yaml:"default_tier"`
	DefaultModel string      `yaml:"default_model"`
	HistoryLimit int         `yaml:"history_limit"`
	SessionTTL   Duration    `yaml:"session_ttl"`
	Tiers        Tiers       `yaml:"tiers"`
	Models       Catalog     `yaml:"models"`

	Generator GeneratorConfig `yaml:"generator"`
}

// StoreConfig selects and configures the store driver.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`         // jsonfile
	URL         string `yaml:"url"`          // redis, postgres
	KeyPrefix   string `yaml:"key_prefix"`   // redis
	TablePrefix string `yaml:"table_prefix"` // postgres
}

// GeneratorConfig configures the text backend. Name "gemini" selects the
// Gemini API; anything else is an OpenAI-compatible endpoint at BaseURL.
type GeneratorConfig struct {
	Name      string            `yaml:"name"`
	BaseURL   string            `yaml:"base_url"`
	APIKey    string            `yaml:"api_key"`
	Models    map[string]string `yaml:"models"`     // ledger key -> upstream model id
	RateLimit float64           `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int               `yaml:"burst"`
}

// Duration is a time.Duration that unmarshals from strings like "12h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns the configuration used when no file is given:
// a user_data.json file next to the process, built-in tiers and models.
func DefaultConfig() Config {
	return Config{
		Store:        StoreConfig{Driver: DriverJSONFile, Path: "user_data.json"},
		DefaultTier:  TierFree,
		DefaultModel: "text",
		HistoryLimit: DefaultHistoryLimit,
		SessionTTL:   Duration(DefaultSessionTTL),
		Generator: GeneratorConfig{
			Name:    "nvidia",
			BaseURL: "https://integrate.api.nvidia.com/v1",
			Burst:   1,
		},
	}
}

// LoadConfig reads and parses a YAML config file on top of DefaultConfig.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("botledger: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("botledger: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverJSONFile:
		if c.Store.Path == "" {
			return fmt.Errorf("botledger: config: store.path is required for the jsonfile driver")
		}
	case DriverRedis, DriverPostgres:
		if c.Store.URL == "" {
			return fmt.Errorf("botledger: config: store.url is required for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("botledger: config: unknown store.driver %q", c.Store.Driver)
	}

	if c.HistoryLimit < 2 || c.HistoryLimit%2 != 0 {
		return fmt.Errorf("botledger: config: history_limit must be an even number >= 2, got %d", c.HistoryLimit)
	}

	tiers := c.tiers()
	if _, ok := tiers[c.DefaultTier]; !ok {
		return fmt.Errorf("botledger: config: default_tier %q is not defined", c.DefaultTier)
	}
	for name, def := range tiers {
		for model, n := range def.Limits {
			if n < 0 {
				return fmt.Errorf("botledger: config: tiers.%s.limits.%s: negative quota %d", name, model, n)
			}
		}
	}

	if c.Generator.RateLimit < 0 {
		return fmt.Errorf("botledger: config: generator.rate_limit must not be negative")
	}

	keys := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Key == "" {
			return fmt.Errorf("botledger: config: models[%d]: key is required", i)
		}
		if keys[m.Key] {
			return fmt.Errorf("botledger: config: duplicate model key %q", m.Key)
		}
		keys[m.Key] = true
		if m.Kind != KindText && m.Kind != KindImage {
			return fmt.Errorf("botledger: config: models[%d] (%s): invalid kind %q", i, m.Key, m.Kind)
		}
	}

	return nil
}

// LedgerOptions turns the config into Ledger options.
func (c Config) LedgerOptions() []Option {
	opts := []Option{
		WithTiers(c.tiers()),
		WithDefaultTier(c.DefaultTier),
		WithHistoryLimit(c.HistoryLimit),
	}
	if len(c.Models) > 0 {
		opts = append(opts, WithCatalog(c.Models))
	}
	return opts
}

// NewSessionTracker builds a SessionTracker from the config.
func (c Config) NewSessionTracker() *SessionTracker {
	return NewSessionTracker(c.DefaultModel, time.Duration(c.SessionTTL))
}

// tiers returns the configured tiers, or the built-in ones with the
// unlimited tier extended to models added under models:.
func (c Config) tiers() Tiers {
	if len(c.Tiers) > 0 {
		return c.Tiers
	}
	if len(c.Models) > 0 {
		return DefaultTiersFor(c.Models)
	}
	return DefaultTiers()
}
