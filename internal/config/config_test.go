package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.Custody.Mode != CustodyVault {
		t.Fatalf("custody mode = %q", cfg.Custody.Mode)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen_addr: ":9090"
administrator: admin-key
custody:
  mode: rpc
  rpc_url: http://localhost:10332
rate_limit:
  requests_per_second: 10
  burst: 20
reconcile_schedule: "@every 5m"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9090" || cfg.Administrator != "admin-key" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Custody.Mode != CustodyRPC || cfg.Custody.RPCURL != "http://localhost:10332" {
		t.Fatalf("custody config: %+v", cfg.Custody)
	}
	if cfg.RateLimit.RequestsPerSecond != 10 || cfg.RateLimit.Burst != 20 {
		t.Fatalf("rate limit config: %+v", cfg.RateLimit)
	}
	// Unset fields keep their defaults.
	if cfg.MigrationsDir != "migrations" {
		t.Fatalf("migrations dir = %q", cfg.MigrationsDir)
	}
}

func TestLoadRejectsBadCustodyMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("custody:\n  mode: teleport\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("unknown custody mode accepted")
	}
}

func TestLoadRejectsRPCWithoutURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("custody:\n  mode: rpc\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("rpc custody without url accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BANK_LISTEN_ADDR", ":7070")
	t.Setenv("BANK_ADMINISTRATOR", "env-admin")

	cfg := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.ListenAddr != ":7070" || cfg.Administrator != "env-admin" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}
