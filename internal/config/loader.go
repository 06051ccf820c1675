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
// built-in defaults, applies ORACLED_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORACLED_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Owner, "ORACLED_LEDGER_OWNER")
	setStr(&cfg.Ledger.Overflow, "ORACLED_LEDGER_OVERFLOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ORACLED_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ORACLED_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ORACLED_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ORACLED_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ORACLED_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ORACLED_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ORACLED_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ORACLED_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ORACLED_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ORACLED_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ORACLED_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORACLED_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORACLED_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORACLED_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORACLED_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORACLED_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ORACLED_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORACLED_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORACLED_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORACLED_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORACLED_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ORACLED_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ORACLED_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ORACLED_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ORACLED_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.LookbackDays, "ORACLED_ARCHIVE_LOOKBACK_DAYS")
	setInt(&cfg.Archive.RetentionDays, "ORACLED_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "ORACLED_SERVER_PORT")
	setStr(&cfg.Server.AdminKey, "ORACLED_SERVER_ADMIN_KEY")
	setStr(&cfg.Server.AdminKeyFile, "ORACLED_SERVER_ADMIN_KEY_FILE")
	setStr(&cfg.Server.AdminKeyPassword, "ORACLED_SERVER_ADMIN_KEY_PASSWORD")
	setDuration(&cfg.Server.SignatureSkew, "ORACLED_SERVER_SIGNATURE_SKEW")
	setInt(&cfg.Server.RateLimit, "ORACLED_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ORACLED_SERVER_RATE_WINDOW")
	if v := os.Getenv("ORACLED_SERVER_CORS_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		cfg.Server.CORSOrigins = origins
	}

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ORACLED_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORACLED_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORACLED_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Top level ──
	setStr(&cfg.Mode, "ORACLED_MODE")
	setStr(&cfg.LogLevel, "ORACLED_LOG_LEVEL")
}

func setStr(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
