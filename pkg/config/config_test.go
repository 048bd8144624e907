package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got error: %v", err)
	}
	if cfg.Call.RingTimeout != 30*time.Second {
		t.Fatalf("expected 30s ring timeout, got %v", cfg.Call.RingTimeout)
	}
	if len(cfg.WebRTC.ICEServers) < 2 {
		t.Fatalf("expected at least two default STUN servers, got %d", len(cfg.WebRTC.ICEServers))
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "ring timeout must be > 0",
			mutate: func(c *Config) {
				c.Call.RingTimeout = 0
			},
		},
		{
			name: "tick interval must be > 0",
			mutate: func(c *Config) {
				c.Call.TickInterval = -time.Second
			},
		},
		{
			name: "server address must not be empty",
			mutate: func(c *Config) {
				c.Server.Address = ""
			},
		},
		{
			name: "jwt secret must not be empty",
			mutate: func(c *Config) {
				c.Auth.JWTSecret = ""
			},
		},
		{
			name: "recording dir required when enabled",
			mutate: func(c *Config) {
				c.Recording.Enabled = true
				c.Recording.Dir = ""
			},
		},
		{
			name: "redis address required when enabled",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
		},
		{
			name: "http rps must be > 0 when rate limiting enabled",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
		{
			name: "ice server urls must not be empty",
			mutate: func(c *Config) {
				c.WebRTC.ICEServers[0].URLs = nil
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("expected default server address, got %s", cfg.Server.Address)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("call:\n  ring_timeout: 10s\nlogging:\n  level: debug\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Call.RingTimeout != 10*time.Second {
		t.Fatalf("expected 10s ring timeout, got %v", cfg.Call.RingTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %s", cfg.Logging.Level)
	}
	// untouched sections keep defaults
	if cfg.Call.TickInterval != time.Second {
		t.Fatalf("expected default tick interval, got %v", cfg.Call.TickInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RINGLINK_LOG_LEVEL", "warn")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected env override to win, got %s", cfg.Logging.Level)
	}
}
