// Package config defines the top-level configuration for the marketplace
// transaction daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SOLADIA_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Solana   SolanaConfig   `toml:"solana"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Payment  PaymentConfig  `toml:"payment"`
	Retry    RetryConfig    `toml:"retry"`
	Escrow   EscrowConfig   `toml:"escrow"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the service wallet credentials.
type WalletConfig struct {
	// PrivateKey is a base58-encoded ed25519 seed or 64-byte private key.
	PrivateKey string `toml:"private_key"`
}

// SolanaConfig holds RPC endpoint and chain parameters.
type SolanaConfig struct {
	Endpoint   string   `toml:"endpoint"`
	Commitment string   `toml:"commitment"`
	Timeout    duration `toml:"timeout"`
	// EscrowAuthorityKey signs escrow release/refund transfers.
	EscrowAuthorityKey string `toml:"escrow_authority_key"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// Enabled selects the Redis-backed event bus, locks, and rate limiter.
	// When false the daemon runs single-instance with in-process equivalents.
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// SnapshotConfig selects where state snapshots are persisted.
type SnapshotConfig struct {
	// Backend is "file" or "s3".
	Backend string `toml:"backend"`
	// Path is the snapshot file location for the file backend.
	Path string `toml:"path"`

	// S3-compatible storage parameters for the s3 backend.
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Key            string `toml:"key"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PaymentConfig holds payment processing parameters.
type PaymentConfig struct {
	// Currencies is the accepted currency allow-list.
	Currencies []string `toml:"currencies"`
	// ConfirmTimeout bounds a single submit-and-confirm attempt.
	ConfirmTimeout duration `toml:"confirm_timeout"`
	// StatusPollInterval is the confirmation polling cadence.
	StatusPollInterval duration `toml:"status_poll_interval"`
	// FeeBufferLamports is added to the amount for the balance check.
	FeeBufferLamports int64 `toml:"fee_buffer_lamports"`
	// SubmitRatePerSec bounds outbound RPC submissions; 0 disables the check.
	SubmitRatePerSec int `toml:"submit_rate_per_sec"`
}

// RetryConfig holds retry scheduler parameters.
type RetryConfig struct {
	// MaxRetries caps automatic resubmissions after the initial attempt.
	MaxRetries int `toml:"max_retries"`
	// BackoffBase is the delay before the first retry; doubled per retry.
	BackoffBase duration `toml:"backoff_base"`
	// BackoffCap bounds the doubled delay.
	BackoffCap duration `toml:"backoff_cap"`
}

// EscrowConfig holds escrow settlement parameters.
type EscrowConfig struct {
	// ConfirmTimeout bounds release/refund transfer confirmation.
	ConfirmTimeout duration `toml:"confirm_timeout"`
	// StatusPollInterval is the confirmation polling cadence.
	StatusPollInterval duration `toml:"status_poll_interval"`
	// LockTTL bounds cross-process lock tenure.
	LockTTL duration `toml:"lock_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards mutating endpoints when set; empty disables auth.
	APIKey string `toml:"api_key"`
	// RatePerMinute bounds per-client API traffic; 0 disables the check.
	RatePerMinute int `toml:"rate_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			Endpoint:   "https://api.devnet.solana.com",
			Commitment: "confirmed",
			Timeout:    duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "soladia",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Snapshot: SnapshotConfig{
			Backend: "file",
			Path:    "data/snapshot.json",
			Region:  "us-east-1",
			Key:     "soladia/snapshot.json",
		},
		Payment: PaymentConfig{
			Currencies:         []string{"SOL", "USDC"},
			ConfirmTimeout:     duration{60 * time.Second},
			StatusPollInterval: duration{2 * time.Second},
			FeeBufferLamports:  10_000,
			SubmitRatePerSec:   10,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BackoffBase: duration{time.Second},
			BackoffCap:  duration{30 * time.Second},
		},
		Escrow: EscrowConfig{
			ConfirmTimeout:     duration{60 * time.Second},
			StatusPollInterval: duration{2 * time.Second},
			LockTTL:            duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled:       true,
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			RatePerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"payment.failed", "escrow.released", "escrow.cancelled", "auction.ended"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"recover": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, recover)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet
	if c.Wallet.PrivateKey == "" {
		errs = append(errs, "wallet: private_key must be set")
	}

	// Solana
	if c.Solana.Endpoint == "" {
		errs = append(errs, "solana: endpoint must not be empty")
	}
	switch c.Solana.Commitment {
	case "", "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Sprintf("solana: commitment must be processed, confirmed, or finalized, got %q", c.Solana.Commitment))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Snapshot
	switch c.Snapshot.Backend {
	case "file":
		if c.Snapshot.Path == "" {
			errs = append(errs, "snapshot: path must not be empty for the file backend")
		}
	case "s3":
		if c.Snapshot.Bucket == "" {
			errs = append(errs, "snapshot: bucket must not be empty for the s3 backend")
		}
		if c.Snapshot.Region == "" {
			errs = append(errs, "snapshot: region must not be empty for the s3 backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("snapshot: backend must be file or s3, got %q", c.Snapshot.Backend))
	}

	// Payment
	if len(c.Payment.Currencies) == 0 {
		errs = append(errs, "payment: currencies must not be empty")
	}
	if c.Payment.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "payment: confirm_timeout must be > 0")
	}
	if c.Payment.FeeBufferLamports < 0 {
		errs = append(errs, "payment: fee_buffer_lamports must be >= 0")
	}

	// Retry
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry: max_retries must be >= 0")
	}
	if c.Retry.BackoffBase.Duration <= 0 {
		errs = append(errs, "retry: backoff_base must be > 0")
	}
	if c.Retry.BackoffCap.Duration < c.Retry.BackoffBase.Duration {
		errs = append(errs, "retry: backoff_cap must be >= backoff_base")
	}

	// Escrow
	if c.Escrow.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "escrow: confirm_timeout must be > 0")
	}
	if c.Escrow.LockTTL.Duration <= 0 {
		errs = append(errs, "escrow: lock_ttl must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
