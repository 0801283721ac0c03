package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mode != "serve" {
		t.Errorf("Expected default mode %q, got %q", "serve", cfg.Mode)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Expected default max_retries 3, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BackoffBase.Duration != time.Second {
		t.Errorf("Expected default backoff_base 1s, got %v", cfg.Retry.BackoffBase.Duration)
	}
	if cfg.Snapshot.Backend != "file" {
		t.Errorf("Expected default snapshot backend %q, got %q", "file", cfg.Snapshot.Backend)
	}
	if cfg.Payment.FeeBufferLamports != 10_000 {
		t.Errorf("Expected default fee buffer 10000, got %d", cfg.Payment.FeeBufferLamports)
	}
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "recover"
log_level = "debug"

[payment]
currencies = ["SOL"]
confirm_timeout = "90s"
fee_buffer_lamports = 20000

[retry]
max_retries = 5
backoff_base = "500ms"
backoff_cap = "10s"

[server]
enabled = false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mode != "recover" {
		t.Errorf("Expected mode %q, got %q", "recover", cfg.Mode)
	}
	if cfg.Payment.ConfirmTimeout.Duration != 90*time.Second {
		t.Errorf("Expected confirm_timeout 90s, got %v", cfg.Payment.ConfirmTimeout.Duration)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("Expected max_retries 5, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BackoffBase.Duration != 500*time.Millisecond {
		t.Errorf("Expected backoff_base 500ms, got %v", cfg.Retry.BackoffBase.Duration)
	}
	if cfg.Server.Enabled {
		t.Error("Expected server disabled")
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Expected default postgres port 5432, got %d", cfg.Postgres.Port)
	}
}

func TestLoadEnvOverridesTOML(t *testing.T) {
	path := writeConfig(t, `
[solana]
endpoint = "https://from-file.example"

[redis]
enabled = false
`)

	t.Setenv("SOLADIA_SOLANA_ENDPOINT", "https://from-env.example")
	t.Setenv("SOLADIA_REDIS_ENABLED", "true")
	t.Setenv("SOLADIA_WALLET_PRIVATE_KEY", "env-secret")
	t.Setenv("SOLADIA_PAYMENT_CURRENCIES", "SOL, USDC , BONK")
	t.Setenv("SOLADIA_RETRY_BACKOFF_CAP", "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Solana.Endpoint != "https://from-env.example" {
		t.Errorf("Expected env endpoint to win, got %q", cfg.Solana.Endpoint)
	}
	if !cfg.Redis.Enabled {
		t.Error("Expected redis enabled via env")
	}
	if cfg.Wallet.PrivateKey != "env-secret" {
		t.Errorf("Expected wallet key from env, got %q", cfg.Wallet.PrivateKey)
	}
	want := []string{"SOL", "USDC", "BONK"}
	if len(cfg.Payment.Currencies) != len(want) {
		t.Fatalf("Expected %d currencies, got %v", len(want), cfg.Payment.Currencies)
	}
	for i, c := range want {
		if cfg.Payment.Currencies[i] != c {
			t.Errorf("Expected currency %q at %d, got %q", c, i, cfg.Payment.Currencies[i])
		}
	}
	if cfg.Retry.BackoffCap.Duration != 2*time.Minute {
		t.Errorf("Expected backoff_cap 2m, got %v", cfg.Retry.BackoffCap.Duration)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := writeConfig(t, `mode = [unclosed`)
	if _, err := Load(path); err == nil {
		t.Error("Expected an error for malformed TOML, got nil")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Wallet.PrivateKey = "key"
		return cfg
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantErr  bool
		fragment string
	}{
		{"defaults with wallet key", func(c *Config) {}, false, ""},
		{"missing wallet key", func(c *Config) { c.Wallet.PrivateKey = "" }, true, "private_key"},
		{"unknown mode", func(c *Config) { c.Mode = "replay" }, true, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, true, "log_level"},
		{"bad commitment", func(c *Config) { c.Solana.Commitment = "instant" }, true, "commitment"},
		{"bad snapshot backend", func(c *Config) { c.Snapshot.Backend = "ftp" }, true, "backend"},
		{"s3 backend needs bucket", func(c *Config) {
			c.Snapshot.Backend = "s3"
			c.Snapshot.Bucket = ""
		}, true, "bucket"},
		{"redis enabled needs addr", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, true, "addr"},
		{"backoff cap below base", func(c *Config) {
			c.Retry.BackoffBase = duration{time.Minute}
			c.Retry.BackoffCap = duration{time.Second}
		}, true, "backoff_cap"},
		{"pool min above max", func(c *Config) {
			c.Postgres.PoolMinConns = 20
			c.Postgres.PoolMaxConns = 10
		}, true, "pool_min_conns"},
		{"no currencies", func(c *Config) { c.Payment.Currencies = nil }, true, "currencies"},
		{"bad server port ignored when disabled", func(c *Config) {
			c.Server.Enabled = false
			c.Server.Port = 0
		}, false, ""},
		{"dsn skips host checks", func(c *Config) {
			c.Postgres.DSN = "postgres://u:p@db:5432/soladia"
			c.Postgres.Host = ""
			c.Postgres.Port = 0
			c.Postgres.Database = ""
		}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected a validation error, got nil")
				}
				if !strings.Contains(err.Error(), tt.fragment) {
					t.Errorf("Expected error mentioning %q, got %q", tt.fragment, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}
