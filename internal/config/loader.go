package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SOLADIA_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SOLADIA_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SOLADIA_WALLET_PRIVATE_KEY")

	// ── Solana ──
	setStr(&cfg.Solana.Endpoint, "SOLADIA_SOLANA_ENDPOINT")
	setStr(&cfg.Solana.Commitment, "SOLADIA_SOLANA_COMMITMENT")
	setDuration(&cfg.Solana.Timeout, "SOLADIA_SOLANA_TIMEOUT")
	setStr(&cfg.Solana.EscrowAuthorityKey, "SOLADIA_SOLANA_ESCROW_AUTHORITY_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SOLADIA_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SOLADIA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SOLADIA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SOLADIA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SOLADIA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SOLADIA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SOLADIA_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SOLADIA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SOLADIA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SOLADIA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SOLADIA_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SOLADIA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOLADIA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOLADIA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SOLADIA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SOLADIA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SOLADIA_REDIS_TLS_ENABLED")

	// ── Snapshot ──
	setStr(&cfg.Snapshot.Backend, "SOLADIA_SNAPSHOT_BACKEND")
	setStr(&cfg.Snapshot.Path, "SOLADIA_SNAPSHOT_PATH")
	setStr(&cfg.Snapshot.Endpoint, "SOLADIA_SNAPSHOT_ENDPOINT")
	setStr(&cfg.Snapshot.Region, "SOLADIA_SNAPSHOT_REGION")
	setStr(&cfg.Snapshot.Bucket, "SOLADIA_SNAPSHOT_BUCKET")
	setStr(&cfg.Snapshot.Key, "SOLADIA_SNAPSHOT_KEY")
	setStr(&cfg.Snapshot.AccessKey, "SOLADIA_SNAPSHOT_ACCESS_KEY")
	setStr(&cfg.Snapshot.SecretKey, "SOLADIA_SNAPSHOT_SECRET_KEY")
	setBool(&cfg.Snapshot.ForcePathStyle, "SOLADIA_SNAPSHOT_FORCE_PATH_STYLE")

	// ── Payment ──
	setStringSlice(&cfg.Payment.Currencies, "SOLADIA_PAYMENT_CURRENCIES")
	setDuration(&cfg.Payment.ConfirmTimeout, "SOLADIA_PAYMENT_CONFIRM_TIMEOUT")
	setDuration(&cfg.Payment.StatusPollInterval, "SOLADIA_PAYMENT_STATUS_POLL_INTERVAL")
	setInt64(&cfg.Payment.FeeBufferLamports, "SOLADIA_PAYMENT_FEE_BUFFER_LAMPORTS")
	setInt(&cfg.Payment.SubmitRatePerSec, "SOLADIA_PAYMENT_SUBMIT_RATE_PER_SEC")

	// ── Retry ──
	setInt(&cfg.Retry.MaxRetries, "SOLADIA_RETRY_MAX_RETRIES")
	setDuration(&cfg.Retry.BackoffBase, "SOLADIA_RETRY_BACKOFF_BASE")
	setDuration(&cfg.Retry.BackoffCap, "SOLADIA_RETRY_BACKOFF_CAP")

	// ── Escrow ──
	setDuration(&cfg.Escrow.ConfirmTimeout, "SOLADIA_ESCROW_CONFIRM_TIMEOUT")
	setDuration(&cfg.Escrow.StatusPollInterval, "SOLADIA_ESCROW_STATUS_POLL_INTERVAL")
	setDuration(&cfg.Escrow.LockTTL, "SOLADIA_ESCROW_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SOLADIA_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SOLADIA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SOLADIA_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SOLADIA_SERVER_API_KEY")
	setInt(&cfg.Server.RatePerMinute, "SOLADIA_SERVER_RATE_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SOLADIA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SOLADIA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SOLADIA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SOLADIA_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOLADIA_MODE")
	setStr(&cfg.LogLevel, "SOLADIA_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
