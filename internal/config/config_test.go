package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Addr() != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr())
	}
	if cfg.Dispatch.Interval != time.Minute {
		t.Errorf("interval = %v, want 1m", cfg.Dispatch.Interval)
	}
	if cfg.Dispatch.SendTimeout != 10*time.Second {
		t.Errorf("send_timeout = %v, want 10s", cfg.Dispatch.SendTimeout)
	}
	if cfg.Dispatch.SnoozeMinutes != 10 {
		t.Errorf("snooze_minutes = %d, want 10", cfg.Dispatch.SnoozeMinutes)
	}
	if cfg.Backup.Interval != 24*time.Hour {
		t.Errorf("backup interval = %v, want 24h", cfg.Backup.Interval)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
server:
  port: 9000
  log_level: debug
database:
  path: /tmp/test-chime.db
dispatch:
  interval: 30s
email:
  smtp_host: smtp.example.com
  from: alerts@example.com
`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Database.Path != "/tmp/test-chime.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Dispatch.Interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", cfg.Dispatch.Interval)
	}
	if cfg.Email.SMTPHost != "smtp.example.com" {
		t.Errorf("smtp_host = %q", cfg.Email.SMTPHost)
	}
	// Unset keys keep their defaults.
	if cfg.Email.SMTPPort != 587 {
		t.Errorf("smtp_port = %d, want 587", cfg.Email.SMTPPort)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHIME_PORT", "9100")
	t.Setenv("CHIME_DB_PATH", "/tmp/env-chime.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/env-chime.db" {
		t.Errorf("db path = %q, want /tmp/env-chime.db", cfg.Database.Path)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for explicit missing config file")
	}
}
