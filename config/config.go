// Package config loads Paychan runtime configuration from a YAML file with
// environment variable overrides. A .env file, when present, is folded into
// the process environment before overrides are applied.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NetworkConfig describes one ledger network endpoint.
type NetworkConfig struct {
	// Endpoint is the websocket URL of the network node.
	Endpoint string `yaml:"endpoint"`

	// Asset is the settlement asset amounts on this network are
	// denominated in, e.g. "xrp".
	Asset string `yaml:"asset"`
}

// Config is the full Paychan runtime configuration.
type Config struct {
	// DatabaseURL selects the postgres store when set; the in-memory store
	// is used otherwise.
	DatabaseURL string `yaml:"database_url"`

	// Networks maps network name ("testnet", "mainnet") to its endpoint.
	Networks map[string]NetworkConfig `yaml:"networks"`

	// ClaimTimeout bounds how long a claim waits for the external signer.
	ClaimTimeout time.Duration `yaml:"claim_timeout"`

	// FundingToleranceDrops is the acceptable gap between the expected
	// deposit and the observed on-chain funding amount, in smallest units.
	FundingToleranceDrops int64 `yaml:"funding_tolerance_drops"`

	// EventQueueSize is the per-monitor bounded queue capacity.
	EventQueueSize int `yaml:"event_queue_size"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Networks: map[string]NetworkConfig{
			"testnet": {Endpoint: "wss://s.altnet.rippletest.net:51233", Asset: "xrp"},
		},
		ClaimTimeout:   120 * time.Second,
		EventQueueSize: 256,
		LogLevel:       "info",
	}
}

// Load reads the YAML file at path, folds in a .env file if one exists in
// the working directory, and applies PAYCHAN_* environment overrides.
// A missing config file is not an error; defaults are used.
func Load(path string) (Config, error) {
	// Ignore a missing .env; it is optional in every environment.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PAYCHAN_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("PAYCHAN_CLAIM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ClaimTimeout = d
		}
	}
	if v := os.Getenv("PAYCHAN_FUNDING_TOLERANCE_DROPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.FundingToleranceDrops = n
		}
	}
	if v := os.Getenv("PAYCHAN_EVENT_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventQueueSize = n
		}
	}
	if v := os.Getenv("PAYCHAN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func (c Config) validate() error {
	if c.ClaimTimeout <= 0 {
		return fmt.Errorf("config: claim_timeout must be positive, got %s", c.ClaimTimeout)
	}
	if c.FundingToleranceDrops < 0 {
		return fmt.Errorf("config: funding_tolerance_drops must not be negative, got %d", c.FundingToleranceDrops)
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("config: event_queue_size must be positive, got %d", c.EventQueueSize)
	}
	for name, n := range c.Networks {
		if n.Endpoint == "" {
			return fmt.Errorf("config: network %q has no endpoint", name)
		}
		if n.Asset == "" {
			return fmt.Errorf("config: network %q has no asset", name)
		}
	}
	return nil
}
