package offq

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offq.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func mustLoadConfig(t *testing.T, path string) *Config {
	t.Helper()
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := mustLoadConfig(t, "")

	if cfg.ListenAddr != "127.0.0.1:8787" {
		t.Errorf("expected 127.0.0.1:8787, got %s", cfg.ListenAddr)
	}
	if cfg.Store != "sqlite" || cfg.SQLitePath == "" {
		t.Errorf("expected sqlite store with a path, got %s %q", cfg.Store, cfg.SQLitePath)
	}
	if cfg.QueueKey != DefaultQueueKey {
		t.Errorf("expected %s, got %s", DefaultQueueKey, cfg.QueueKey)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.RequestTimeout)
	}
	if cfg.ConnectivitySubject != SubjectConnectivity {
		t.Errorf("expected %s, got %s", SubjectConnectivity, cfg.ConnectivitySubject)
	}
	if cfg.ProbePath != "/health" || cfg.ProbeInterval != 0 {
		t.Errorf("expected probing off on /health, got %s every %v", cfg.ProbePath, cfg.ProbeInterval)
	}
	if cfg.PublishEvents {
		t.Error("expected events off by default")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
base_url: https://api.example.com
store: memory
max_queue_len: 500
request_timeout: 10s
probe_interval: 15s
publish_events: true
nats_url: nats://localhost:4222
`)
	cfg := mustLoadConfig(t, path)

	if cfg.BaseURL != "https://api.example.com" {
		t.Errorf("expected base url from file, got %s", cfg.BaseURL)
	}
	if cfg.Store != "memory" || cfg.MaxQueueLen != 500 {
		t.Errorf("expected memory store capped at 500, got %s %d", cfg.Store, cfg.MaxQueueLen)
	}
	if cfg.RequestTimeout != 10*time.Second || cfg.ProbeInterval != 15*time.Second {
		t.Errorf("unexpected durations: timeout=%v probe=%v", cfg.RequestTimeout, cfg.ProbeInterval)
	}
	if !cfg.PublishEvents {
		t.Error("expected events on")
	}
	// Unset keys keep their defaults.
	if cfg.ListenAddr != "127.0.0.1:8787" {
		t.Errorf("expected default listen addr, got %s", cfg.ListenAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "base_url: https://file.example.com\nmax_queue_len: 5\n")

	t.Setenv("OFFQ_BASE_URL", "https://env.example.com")
	t.Setenv("OFFQ_MAX_QUEUE_LEN", "7")
	t.Setenv("OFFQ_EVENTS", "true")
	t.Setenv("OFFQ_PROBE_INTERVAL", "5s")
	t.Setenv("OFFQ_TOKEN_REFRESH_PATH", "/auth/refresh")

	cfg := mustLoadConfig(t, path)

	if cfg.BaseURL != "https://env.example.com" {
		t.Errorf("expected env base url, got %s", cfg.BaseURL)
	}
	if cfg.MaxQueueLen != 7 {
		t.Errorf("expected 7, got %d", cfg.MaxQueueLen)
	}
	if !cfg.PublishEvents {
		t.Error("expected events on")
	}
	if cfg.ProbeInterval != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.ProbeInterval)
	}
	if cfg.TokenRefresh != "/auth/refresh" {
		t.Errorf("expected /auth/refresh, got %s", cfg.TokenRefresh)
	}
}

func TestLoadConfig_BadEnvKeepsFallback(t *testing.T) {
	t.Setenv("OFFQ_MAX_QUEUE_LEN", "lots")
	t.Setenv("OFFQ_REQUEST_TIMEOUT", "soon")

	cfg := mustLoadConfig(t, "")
	if cfg.MaxQueueLen != 0 {
		t.Errorf("expected 0, got %d", cfg.MaxQueueLen)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.RequestTimeout)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := LoadConfig(writeConfig(t, "store: [unclosed")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := DefaultConfig()
		c.BaseURL = "https://api.example.com"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing base url", func(c *Config) { c.BaseURL = "" }, "OFFQ_BASE_URL"},
		{"unknown store", func(c *Config) { c.Store = "redis" }, "unknown store"},
		{"sqlite without path", func(c *Config) { c.SQLitePath = "" }, "OFFQ_SQLITE_PATH"},
		{"postgres without url", func(c *Config) { c.Store = "postgres" }, "DATABASE_URL"},
		{"postgres with url", func(c *Config) { c.Store = "postgres"; c.DatabaseURL = "postgres://x" }, ""},
		{"memory", func(c *Config) { c.Store = "memory" }, ""},
		{"events without nats", func(c *Config) { c.PublishEvents = true }, "NATS_URL"},
		{"negative max", func(c *Config) { c.MaxQueueLen = -1 }, "OFFQ_MAX_QUEUE_LEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
