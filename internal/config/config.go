// Package config defines the top-level configuration for the oracle ledger
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ORACLED_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds the settlement-ledger parameters.
type LedgerConfig struct {
	// Owner is the initial owner address. On first boot the owner also holds
	// the oracle role until it is rotated.
	Owner string `toml:"owner"`

	// Overflow selects the confidential-addition overflow behavior:
	// "wrap" (default) or "saturate".
	Overflow string `toml:"overflow"`
}

// PostgresConfig holds PostgreSQL connection parameters. When no DSN and no
// host are configured the daemon falls back to in-memory stores.
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

// Enabled reports whether a PostgreSQL endpoint is configured.
func (c PostgresConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != "" || strings.TrimSpace(c.Host) != ""
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// Enabled reports whether a Redis endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// S3Config holds S3-compatible object storage parameters for the day-close
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Enabled reports whether object storage is configured.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// ArchiveConfig controls the day-close ledger archiver.
type ArchiveConfig struct {
	Enabled  bool          `toml:"enabled"`
	Interval time.Duration `toml:"interval"`

	// LookbackDays bounds how many already-closed days one sweep revisits.
	LookbackDays int `toml:"lookback_days"`

	// RetentionDays prunes archive objects older than this many days after a
	// sweep. Zero keeps archives forever.
	RetentionDays int `toml:"retention_days"`
}

// ServerConfig holds the HTTP API server configuration.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// AdminKey guards the admin endpoints. It may be given inline or via an
	// encrypted key file plus password.
	AdminKey         string `toml:"admin_key"`
	AdminKeyFile     string `toml:"admin_key_file"`
	AdminKeyPassword string `toml:"admin_key_password"`

	// SignatureSkew is the maximum accepted age of a signed request.
	SignatureSkew time.Duration `toml:"signature_skew"`

	// RateLimit bounds requests per client IP per RateWindow. Zero disables
	// rate limiting; a limit requires Redis to be configured.
	RateLimit  int           `toml:"rate_limit"`
	RateWindow time.Duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config pre-populated with sane defaults.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			Overflow: "wrap",
		},
		Postgres: PostgresConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 8,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 8,
		},
		Archive: ArchiveConfig{
			Interval:     time.Hour,
			LookbackDays: 7,
		},
		Server: ServerConfig{
			Port:          8080,
			SignatureSkew: 5 * time.Minute,
			RateWindow:    time.Minute,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// Validate checks the configuration for structural problems. It is meant to
// be called once after Load.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "serve", "archive":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if strings.TrimSpace(c.Ledger.Owner) == "" {
		return fmt.Errorf("config: ledger.owner is required")
	}
	if !common.IsHexAddress(c.Ledger.Owner) {
		return fmt.Errorf("config: ledger.owner %q is not a hex address", c.Ledger.Owner)
	}
	if common.HexToAddress(c.Ledger.Owner) == (common.Address{}) {
		return fmt.Errorf("config: ledger.owner must not be the zero address")
	}

	switch c.Ledger.Overflow {
	case "", "wrap", "saturate":
	default:
		return fmt.Errorf("config: ledger.overflow %q is not wrap or saturate", c.Ledger.Overflow)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.SignatureSkew <= 0 {
		return fmt.Errorf("config: server.signature_skew must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("config: server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		return fmt.Errorf("config: server.rate_window must be positive when rate_limit is set")
	}
	if c.Server.RateLimit > 0 && !c.Redis.Enabled() {
		return fmt.Errorf("config: server.rate_limit requires redis")
	}

	if strings.ToLower(c.Mode) == "archive" && !c.S3.Enabled() {
		return fmt.Errorf("config: archive mode requires s3.bucket")
	}
	if c.Archive.Enabled && !c.S3.Enabled() {
		return fmt.Errorf("config: archive.enabled requires s3.bucket")
	}
	if c.Archive.Enabled && c.Archive.Interval <= 0 {
		return fmt.Errorf("config: archive.interval must be positive")
	}
	if c.Archive.RetentionDays < 0 {
		return fmt.Errorf("config: archive.retention_days must not be negative")
	}

	return nil
}

// OwnerAddress returns the parsed initial owner address. Call Validate first.
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Ledger.Owner)
}
