// Package config loads the bank server configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// CustodyMode selects the custody adapter implementation.
const (
	CustodyVault = "vault"
	CustodyRPC   = "rpc"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr    string  `yaml:"listen_addr"`
	DatabaseURL   string  `yaml:"database_url"`
	MigrationsDir string  `yaml:"migrations_dir"`
	Administrator string  `yaml:"administrator"`
	JWTSecret     string  `yaml:"jwt_secret"`
	LogLevel      string  `yaml:"log_level"`
	Custody       Custody `yaml:"custody"`
	RateLimit     Rate    `yaml:"rate_limit"`
	// ReconcileSchedule is a cron expression for the custody reconciliation
	// sweep. Empty disables the sweep.
	ReconcileSchedule string `yaml:"reconcile_schedule"`
}

// Custody configures the external asset adapter.
type Custody struct {
	Mode   string `yaml:"mode"`
	RPCURL string `yaml:"rpc_url"`
}

// Rate configures per-caller request limiting.
type Rate struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr:        ":8080",
		MigrationsDir:     "migrations",
		LogLevel:          "info",
		Custody:           Custody{Mode: CustodyVault},
		RateLimit:         Rate{RequestsPerSecond: 50, Burst: 100},
		ReconcileSchedule: "@every 1m",
	}
}

// Load reads the configuration from path and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, falling back to defaults plus
// environment overrides when the file does not exist.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = Default()
		cfg.applyEnv()
	}
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BANK_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("BANK_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("BANK_ADMINISTRATOR"); v != "" {
		c.Administrator = v
	}
	if v := os.Getenv("BANK_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("BANK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BANK_CUSTODY_MODE"); v != "" {
		c.Custody.Mode = v
	}
	if v := os.Getenv("BANK_CUSTODY_RPC_URL"); v != "" {
		c.Custody.RPCURL = v
	}
	if v := os.Getenv("BANK_RATE_LIMIT_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RequestsPerSecond = n
		}
	}
	if v := os.Getenv("BANK_RECONCILE_SCHEDULE"); v != "" {
		c.ReconcileSchedule = v
	}
}

func (c *Config) validate() error {
	switch c.Custody.Mode {
	case CustodyVault:
	case CustodyRPC:
		if c.Custody.RPCURL == "" {
			return fmt.Errorf("custody mode %q requires rpc_url", c.Custody.Mode)
		}
	default:
		return fmt.Errorf("unknown custody mode %q", c.Custody.Mode)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must be non-negative")
	}
	return nil
}
