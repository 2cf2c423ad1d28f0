// Package config loads engine configuration from a YAML or JSON file with
// environment overrides for secrets and deployment knobs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration parses "5s" / "2m" style strings from YAML and JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the complete engine configuration.
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Oracle  OracleConfig  `json:"oracle" yaml:"oracle"`
	Loops   LoopsConfig   `json:"loops" yaml:"loops"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Feeds   FeedsConfig   `json:"feeds" yaml:"feeds"`
	Events  EventsConfig  `json:"events" yaml:"events"`
}

// AccountConfig contains account provisioning parameters.
type AccountConfig struct {
	StartingBalance float64 `json:"starting_balance" yaml:"starting_balance"`
}

// EngineConfig contains execution limits.
type EngineConfig struct {
	MaxLeverage int `json:"max_leverage" yaml:"max_leverage"`
}

// OracleConfig contains price cache parameters.
type OracleConfig struct {
	TTL          Duration `json:"ttl" yaml:"ttl"`
	FetchTimeout Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
}

// LoopsConfig contains the background loop intervals. The trigger sweep
// should run at least as often as the oracle TTL so forced closes act on
// near-fresh prices.
type LoopsConfig struct {
	PriceRefresh Duration `json:"price_refresh" yaml:"price_refresh"`
	TriggerSweep Duration `json:"trigger_sweep" yaml:"trigger_sweep"`
	Snapshot     Duration `json:"snapshot" yaml:"snapshot"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `json:"backend" yaml:"backend"` // "sqlite" or "postgres"
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// FeedsConfig toggles the external price sources.
type FeedsConfig struct {
	Alpaca        bool `json:"alpaca" yaml:"alpaca"`
	BinanceStream bool `json:"binance_stream" yaml:"binance_stream"`
}

// EventsConfig controls where executed trades are published.
type EventsConfig struct {
	HubAddr      string   `json:"hub_addr,omitempty" yaml:"hub_addr,omitempty"`
	KafkaBrokers []string `json:"kafka_brokers,omitempty" yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `json:"kafka_topic,omitempty" yaml:"kafka_topic,omitempty"`
}

// envOverrides holds secrets and deployment knobs that never belong in the
// config file. A .env file is loaded first if present.
type envOverrides struct {
	DatabaseURL  string `env:"DATABASE_URL"`
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC"`
	HubAddr      string `env:"HUB_ADDR"`
}

// LoadFromFile loads configuration from a YAML or JSON file, applies
// environment overrides, and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if yamlErr := yaml.Unmarshal(data, cfg); yamlErr != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", yamlErr)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load returns the default configuration with environment overrides, for
// running without a config file.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	// Missing .env is fine; real env vars still apply.
	_ = godotenv.Load()

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if ov.DatabaseURL != "" {
		c.Store.Backend = "postgres"
		c.Store.DSN = ov.DatabaseURL
	}
	if ov.KafkaBrokers != "" {
		c.Events.KafkaBrokers = strings.Split(ov.KafkaBrokers, ",")
	}
	if ov.KafkaTopic != "" {
		c.Events.KafkaTopic = ov.KafkaTopic
	}
	if ov.HubAddr != "" {
		c.Events.HubAddr = ov.HubAddr
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Account.StartingBalance <= 0 {
		return fmt.Errorf("account.starting_balance must be positive")
	}
	if c.Engine.MaxLeverage < 1 {
		return fmt.Errorf("engine.max_leverage must be at least 1")
	}
	if c.Oracle.TTL <= 0 {
		return fmt.Errorf("oracle.ttl must be positive")
	}
	if c.Oracle.FetchTimeout <= 0 {
		return fmt.Errorf("oracle.fetch_timeout must be positive")
	}
	if c.Loops.PriceRefresh <= 0 || c.Loops.TriggerSweep <= 0 || c.Loops.Snapshot <= 0 {
		return fmt.Errorf("loop intervals must be positive")
	}
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path required for sqlite backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn required for postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'sqlite' or 'postgres'")
	}
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		return fmt.Errorf("events.kafka_topic required when brokers are set")
	}
	return nil
}

// SaveToFile writes the configuration, picking the format by extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{StartingBalance: 10000.00},
		Engine:  EngineConfig{MaxLeverage: 5},
		Oracle: OracleConfig{
			TTL:          Duration(5 * time.Second),
			FetchTimeout: Duration(5 * time.Second),
		},
		Loops: LoopsConfig{
			PriceRefresh: Duration(30 * time.Second),
			TriggerSweep: Duration(5 * time.Second),
			Snapshot:     Duration(5 * time.Minute),
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "./papertrader.db",
		},
		Events: EventsConfig{
			HubAddr: ":8090",
		},
	}
}
