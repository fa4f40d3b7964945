package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
log_level = "debug"

[server]
port = 9090

[oracle]
api_key = "test-key"
timeout = "3s"

[trading]
starting_balance = "2500.00"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Oracle.Timeout.Duration != 3*time.Second {
		t.Errorf("Oracle.Timeout = %v, want 3s", cfg.Oracle.Timeout.Duration)
	}
	if cfg.Trading.StartingBalance != "2500.00" {
		t.Errorf("Trading.StartingBalance = %q, want %q", cfg.Trading.StartingBalance, "2500.00")
	}

	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port = %d, want default 5432", cfg.Postgres.Port)
	}
	if cfg.Trading.CommitRetries != 3 {
		t.Errorf("Trading.CommitRetries = %d, want default 3", cfg.Trading.CommitRetries)
	}
	if cfg.Session.TTL.Duration != 24*time.Hour {
		t.Errorf("Session.TTL = %v, want default 24h", cfg.Session.TTL.Duration)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
[oracle]
api_key = "file-key"
`)

	t.Setenv("PAPERTRADE_ORACLE_API_KEY", "env-key")
	t.Setenv("PAPERTRADE_SERVER_PORT", "7777")
	t.Setenv("PAPERTRADE_SESSION_TTL", "90m")
	t.Setenv("PAPERTRADE_POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("PAPERTRADE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Oracle.APIKey != "env-key" {
		t.Errorf("Oracle.APIKey = %q, want %q", cfg.Oracle.APIKey, "env-key")
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Session.TTL.Duration != 90*time.Minute {
		t.Errorf("Session.TTL = %v, want 90m", cfg.Session.TTL.Duration)
	}
	if cfg.Postgres.RunMigrations {
		t.Error("Postgres.RunMigrations = true, want false")
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load with missing file succeeded, want error")
	}
}

func TestValidateDefaultsNeedAPIKey(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate on bare defaults succeeded, want error")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Errorf("Validate error = %v, want mention of api_key", err)
	}

	cfg.Oracle.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	cfg.Redis.Addr = ""
	cfg.Trading.CommitRetries = 0
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate succeeded, want error")
	}
	for _, want := range []string{"server: port", "redis: addr", "commit_retries", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error missing %q: %v", want, err)
		}
	}
}
