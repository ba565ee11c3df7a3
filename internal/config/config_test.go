// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/billing
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Billing.BaseCurrency != "USD" {
		t.Errorf("base currency = %q, want USD", cfg.Billing.BaseCurrency)
	}
	if cfg.Billing.GatewayTimeout != 10*time.Second {
		t.Errorf("gateway timeout = %s, want 10s", cfg.Billing.GatewayTimeout)
	}
	if cfg.Billing.RenewalWindow != 24*time.Hour {
		t.Errorf("renewal window = %s, want 24h", cfg.Billing.RenewalWindow)
	}
	if cfg.Billing.ReconcileInterval != 15*time.Minute {
		t.Errorf("reconcile interval = %s, want 15m", cfg.Billing.ReconcileInterval)
	}
	if cfg.Billing.PendingAge != 30*time.Minute {
		t.Errorf("pending age = %s, want 30m", cfg.Billing.PendingAge)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/billing
  max_conns: 32
http:
  port: 9090
billing:
  base_currency: ZWL
  demo_mode: true
  rate_cache_ttl: 5m
gateways:
  stripe:
    api_key: sk_test_abc
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.MaxConns != 32 || cfg.HTTP.Port != 9090 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Billing.BaseCurrency != "ZWL" || !cfg.Billing.DemoMode {
		t.Errorf("billing overrides not applied: %+v", cfg.Billing)
	}
	if cfg.Billing.RateCacheTTL != 5*time.Minute {
		t.Errorf("rate cache ttl = %s, want 5m", cfg.Billing.RateCacheTTL)
	}
	if cfg.Gateways["stripe"]["api_key"] != "sk_test_abc" {
		t.Errorf("gateway config not parsed: %+v", cfg.Gateways)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9090
`)
	if _, err := Load(path); err == nil {
		t.Fatal("missing database.url accepted")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
