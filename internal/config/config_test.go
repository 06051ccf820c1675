package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const ownerAddr = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oracled.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[ledger]
owner = "`+ownerAddr+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.SignatureSkew != 5*time.Minute {
		t.Errorf("signature_skew = %v, want 5m", cfg.Server.SignatureSkew)
	}
	if cfg.Ledger.Overflow != "wrap" {
		t.Errorf("overflow = %q, want wrap", cfg.Ledger.Overflow)
	}
	if cfg.Archive.LookbackDays != 7 {
		t.Errorf("lookback_days = %d, want 7", cfg.Archive.LookbackDays)
	}
	if cfg.Mode != "serve" {
		t.Errorf("mode = %q, want serve", cfg.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "archive"
log_level = "debug"

[ledger]
owner = "`+ownerAddr+`"
overflow = "saturate"

[server]
port = 9090
rate_limit = 120
rate_window = "30s"

[redis]
addr = "localhost:6379"

[s3]
bucket = "ledger-archive"
region = "us-east-1"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "archive" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Ledger.Overflow != "saturate" {
		t.Errorf("overflow = %q", cfg.Ledger.Overflow)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.RateLimit != 120 || cfg.Server.RateWindow != 30*time.Second {
		t.Errorf("rate limit = %d/%v", cfg.Server.RateLimit, cfg.Server.RateWindow)
	}
	if !cfg.S3.Enabled() {
		t.Error("s3 not enabled despite bucket")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, `
[ledger]
owner = "0x0000000000000000000000000000000000000001"

[server]
port = 9090
`)

	t.Setenv("ORACLED_LEDGER_OWNER", ownerAddr)
	t.Setenv("ORACLED_SERVER_PORT", "7070")
	t.Setenv("ORACLED_SERVER_SIGNATURE_SKEW", "90s")
	t.Setenv("ORACLED_REDIS_ADDR", "redis:6379")
	t.Setenv("ORACLED_POSTGRES_RUN_MIGRATIONS", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Ledger.Owner != ownerAddr {
		t.Errorf("owner = %q", cfg.Ledger.Owner)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.SignatureSkew != 90*time.Second {
		t.Errorf("signature_skew = %v", cfg.Server.SignatureSkew)
	}
	if !cfg.Redis.Enabled() {
		t.Error("redis not enabled despite env addr")
	}
	if !cfg.Postgres.RunMigrations {
		t.Error("run_migrations not set from env")
	}
}

func TestValidateRejections(t *testing.T) {
	base := func() Config {
		cfg := Defaults()
		cfg.Ledger.Owner = ownerAddr
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unsupported mode", func(c *Config) { c.Mode = "replay" }},
		{"missing owner", func(c *Config) { c.Ledger.Owner = "" }},
		{"non-hex owner", func(c *Config) { c.Ledger.Owner = "not-an-address" }},
		{"zero owner", func(c *Config) {
			c.Ledger.Owner = "0x0000000000000000000000000000000000000000"
		}},
		{"bad overflow", func(c *Config) { c.Ledger.Overflow = "panic" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"zero skew", func(c *Config) { c.Server.SignatureSkew = 0 }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
		{"negative retention", func(c *Config) { c.Archive.RetentionDays = -1 }},
		{"rate limit without redis", func(c *Config) { c.Server.RateLimit = 10 }},
		{"archive mode without s3", func(c *Config) { c.Mode = "archive" }},
		{"archiver without s3", func(c *Config) { c.Archive.Enabled = true }},
		{"archiver without interval", func(c *Config) {
			c.Archive.Enabled = true
			c.S3.Bucket = "ledger-archive"
			c.Archive.Interval = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}
