package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"max below min audio", func(c *Config) { c.Audio.MaxBufferedBytes = c.Audio.MinBufferedBytes - 1 }},
		{"zero grace window", func(c *Config) { c.Cleanup.GraceWindow = 0 }},
		{"zero code ttl", func(c *Config) { c.Codes.TTL = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimit.MaxMessages = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("LINGOCAST_HTTP_PORT", "9090")
	t.Setenv("LINGOCAST_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("LINGOCAST_CLEANUP_GRACE_WINDOW", "3m")
	t.Setenv("LINGOCAST_AUDIO_MIN_BUFFERED_BYTES", "4096")

	cfg := LoadFromEnv()
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("expected env database path, got %s", cfg.Database.Path)
	}
	if cfg.Cleanup.GraceWindow != 3*time.Minute {
		t.Errorf("expected 3m grace window, got %s", cfg.Cleanup.GraceWindow)
	}
	if cfg.Audio.MinBufferedBytes != 4096 {
		t.Errorf("expected 4096 min buffered bytes, got %d", cfg.Audio.MinBufferedBytes)
	}
}

func TestLoadFromEnv_IgnoresUnparseableValues(t *testing.T) {
	t.Setenv("LINGOCAST_HTTP_PORT", "not-a-port")

	cfg := LoadFromEnv()
	if cfg.HTTP.Port != DefaultConfig().HTTP.Port {
		t.Errorf("unparseable value must keep the default, got %d", cfg.HTTP.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
http:
  port: 9999
cleanup:
  grace_window: 5m
  teacher_wait: 20m
codes:
  ttl: 30m
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.HTTP.Port)
	}
	if cfg.Cleanup.GraceWindow != 5*time.Minute {
		t.Errorf("expected 5m grace window, got %s", cfg.Cleanup.GraceWindow)
	}
	if cfg.Cleanup.TeacherWait != 20*time.Minute {
		t.Errorf("expected 20m teacher wait, got %s", cfg.Cleanup.TeacherWait)
	}
	if cfg.Codes.TTL != 30*time.Minute {
		t.Errorf("expected 30m code ttl, got %s", cfg.Codes.TTL)
	}
	// Untouched sections keep their defaults.
	if cfg.Audio.MinBufferedBytes != DefaultConfig().Audio.MinBufferedBytes {
		t.Errorf("unset file sections must keep defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config must validate: %v", err)
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadWithPrecedence_FileWinsOverEnv(t *testing.T) {
	t.Setenv("LINGOCAST_HTTP_PORT", "9090")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 7777\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := LoadWithPrecedence(path)
	if cfg.HTTP.Port != 7777 {
		t.Errorf("file must win over environment, got %d", cfg.HTTP.Port)
	}

	// Without a file the environment applies.
	cfg = LoadWithPrecedence("")
	if cfg.HTTP.Port != 9090 {
		t.Errorf("environment must apply without a file, got %d", cfg.HTTP.Port)
	}
}
