// File: internal/config/config.go
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Sampling bool   `yaml:"sampling"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxConns     int32  `yaml:"max_conns"`
	MigrationDir string `yaml:"migration_dir"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type HTTPConfig struct {
	Port        int    `yaml:"port"`
	AdminAPIKey string `yaml:"admin_api_key"`
}

type BillingConfig struct {
	BaseCurrency    string        `yaml:"base_currency"`
	DemoMode        bool          `yaml:"demo_mode"`
	AutoActivate    bool          `yaml:"auto_activate"`
	GatewayTimeout  time.Duration `yaml:"gateway_timeout"`
	RateAPIURL      string        `yaml:"rate_api_url"`
	RateAPITimeout  time.Duration `yaml:"rate_api_timeout"`
	RateCacheTTL    time.Duration `yaml:"rate_cache_ttl"`
	ExpirySweep     time.Duration `yaml:"expiry_sweep_interval"`
	RateRefresh     time.Duration `yaml:"rate_refresh_interval"`
	RenewalInterval time.Duration `yaml:"renewal_interval"`
	RenewalWindow   time.Duration `yaml:"renewal_window"`
	// ReconcileInterval is how often stale pending payments are re-checked
	// at their gateway; PendingAge is how old they must be to qualify.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	PendingAge        time.Duration `yaml:"pending_age"`
}

type Config struct {
	Log      LogConfig                    `yaml:"log"`
	Database DatabaseConfig               `yaml:"database"`
	Redis    RedisConfig                  `yaml:"redis"`
	HTTP     HTTPConfig                   `yaml:"http"`
	Billing  BillingConfig                `yaml:"billing"`
	Gateways map[string]map[string]string `yaml:"gateways"`
}

// LoadConfig parses -config and -dev flags, reads the YAML file and applies defaults.
func LoadConfig() (*Config, bool, error) {
	path := flag.String("config", "config.yaml", "path to the YAML config file")
	dev := flag.Bool("dev", false, "run in development mode")
	flag.Parse()

	cfg, err := Load(*path)
	if err != nil {
		return nil, false, err
	}
	return cfg, *dev, nil
}

// Load reads and validates a config file without touching flags.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("config: database.url is required")
	}
	if cfg.Billing.BaseCurrency == "" {
		return nil, fmt.Errorf("config: billing.base_currency is required")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			MaxConns:     8,
			MigrationDir: "migrations",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		HTTP:  HTTPConfig{Port: 8080},
		Billing: BillingConfig{
			BaseCurrency:    "USD",
			GatewayTimeout:  10 * time.Second,
			RateAPITimeout:  5 * time.Second,
			RateCacheTTL:    15 * time.Minute,
			ExpirySweep:     time.Hour,
			RateRefresh:     6 * time.Hour,
			RenewalInterval: time.Hour,
			RenewalWindow:   24 * time.Hour,

			ReconcileInterval: 15 * time.Minute,
			PendingAge:        30 * time.Minute,
		},
	}
}
