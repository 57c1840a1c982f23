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
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Setenv("TEST_DB_URL", "postgres://localhost/rdvwatcher")

	path := writeConfig(t, `
server:
  port: 9090
service:
  base_url: https://example.test/api
  site_check_url: https://example.test/
engine:
  monitoring_interval: 10m
  min_member_delay: 3s
  max_member_delay: 9
  backoff_429: 20s
  max_retries: 5
logging:
  level: debug
database:
  url: ${TEST_DB_URL}
documents:
  base_dir: /var/lib/rdvwatcher/docs
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Service.BaseURL != "https://example.test/api" {
		t.Errorf("base_url = %q", cfg.Service.BaseURL)
	}
	if cfg.Database.URL != "postgres://localhost/rdvwatcher" {
		t.Errorf("database url = %q, env var not expanded", cfg.Database.URL)
	}
	if cfg.Engine.MonitoringInterval.Std() != 10*time.Minute {
		t.Errorf("monitoring_interval = %v", cfg.Engine.MonitoringInterval.Std())
	}
	// Bare numbers are seconds.
	if cfg.Engine.MaxMemberDelay.Std() != 9*time.Second {
		t.Errorf("max_member_delay = %v", cfg.Engine.MaxMemberDelay.Std())
	}
	if cfg.Engine.Backoff429.Std() != 20*time.Second {
		t.Errorf("backoff_429 = %v", cfg.Engine.Backoff429.Std())
	}
	if cfg.Engine.MaxRetries != 5 {
		t.Errorf("max_retries = %d", cfg.Engine.MaxRetries)
	}
	// Unset knobs fall back to defaults.
	if cfg.Engine.BackoffGeneral.Std() != 2*time.Second {
		t.Errorf("backoff_general default = %v", cfg.Engine.BackoffGeneral.Std())
	}
	if cfg.Documents.BaseDir != "/var/lib/rdvwatcher/docs" {
		t.Errorf("base_dir = %q", cfg.Documents.BaseDir)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
service:
  base_url: https://example.test/api
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	def := DefaultEngineSettings()
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Engine != def {
		t.Errorf("engine = %+v, want defaults %+v", cfg.Engine, def)
	}
	if cfg.Documents.BaseDir != "documents" {
		t.Errorf("default base_dir = %q", cfg.Documents.BaseDir)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
engine:
  monitoring_interval: soon
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
