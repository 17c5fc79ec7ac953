package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ezlist.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
[list]
address = "list@example.com"

[imap]
addr = "imap.example.com:993"
username = "list@example.com"
password = "secret"

[smtp]
addr = "smtp.example.com:587"
username = "list@example.com"
password = "secret"
`

func TestLoad(t *testing.T) {
	t.Run("minimal config keeps defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalConfig))
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}

		if cfg.List.Address != "list@example.com" {
			t.Errorf("List.Address = %q", cfg.List.Address)
		}
		if cfg.List.SubjectPrefix != "[List]" {
			t.Errorf("List.SubjectPrefix = %q", cfg.List.SubjectPrefix)
		}
		if !cfg.List.SkipSender || !cfg.List.ManageSubscriptions {
			t.Error("expected skip_sender and manage_subscriptions to default to true")
		}
		if cfg.IMAP.Mailbox != "INBOX" || cfg.IMAP.Security != "tls" {
			t.Errorf("IMAP defaults = %q, %q", cfg.IMAP.Mailbox, cfg.IMAP.Security)
		}
		if cfg.SMTP.Security != "starttls" {
			t.Errorf("SMTP.Security = %q", cfg.SMTP.Security)
		}
		if cfg.Storage.Backend != "memory" {
			t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
		}
		if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
			t.Errorf("Logging defaults = %q, %q", cfg.Logging.Level, cfg.Logging.Format)
		}

		interval, err := cfg.List.GetPollInterval()
		if err != nil || interval != 30*time.Second {
			t.Errorf("GetPollInterval() = %v, %v", interval, err)
		}
	})

	t.Run("explicit values override defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalConfig+`
[storage]
backend = "redis"

[storage.redis]
addr = "localhost:6379"
key_prefix = "mylist:"

[logging]
level = "debug"
format = "json"

[telemetry]
metrics = true
`))
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}

		if cfg.Storage.Backend != "redis" {
			t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
		}
		if cfg.Storage.Redis.Addr != "localhost:6379" || cfg.Storage.Redis.KeyPrefix != "mylist:" {
			t.Errorf("Redis config = %+v", cfg.Storage.Redis)
		}
		if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
			t.Errorf("Logging = %+v", cfg.Logging)
		}
		if !cfg.Telemetry.Metrics || cfg.Telemetry.Tracing {
			t.Errorf("Telemetry = %+v", cfg.Telemetry)
		}
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, minimalConfig+`
[list2]
address = "typo@example.com"
`))
		if err == nil || !strings.Contains(err.Error(), "unknown configuration keys") {
			t.Errorf("expected an unknown key error, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected an error for a missing file")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.List.Address = "list@example.com"
		cfg.IMAP.Addr = "imap.example.com:993"
		cfg.SMTP.Addr = "smtp.example.com:587"
		return cfg
	}

	base := valid()
	if err := base.Validate(); err != nil {
		t.Fatalf("expected the base config to validate, got %v", err)
	}

	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing list address",
			mutate: func(c *Config) { c.List.Address = "" },
			want:   "list.address",
		},
		{
			name:   "bad poll interval",
			mutate: func(c *Config) { c.List.PollInterval = "soon" },
			want:   "poll_interval",
		},
		{
			name:   "missing imap addr",
			mutate: func(c *Config) { c.IMAP.Addr = "" },
			want:   "imap.addr",
		},
		{
			name:   "bad imap security",
			mutate: func(c *Config) { c.IMAP.Security = "ssl" },
			want:   "imap.security",
		},
		{
			name:   "missing smtp addr",
			mutate: func(c *Config) { c.SMTP.Addr = "" },
			want:   "smtp.addr",
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Storage.Backend = "sqlite" },
			want:   "storage.backend",
		},
		{
			name:   "postgres backend without dsn",
			mutate: func(c *Config) { c.Storage.Backend = "postgres" },
			want:   "storage.postgres.dsn",
		},
		{
			name:   "mongo backend without uri",
			mutate: func(c *Config) { c.Storage.Backend = "mongo" },
			want:   "storage.mongo.uri",
		},
		{
			name:   "redis backend without addr",
			mutate: func(c *Config) { c.Storage.Backend = "redis" },
			want:   "storage.redis.addr",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
			want:   "logging.level",
		},
		{
			name:   "unknown log format",
			mutate: func(c *Config) { c.Logging.Format = "xml" },
			want:   "logging.format",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tc.want)
			}
		})
	}
}
