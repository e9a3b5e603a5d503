package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// No config file at all: defaults apply
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Resolver.BaseURL != "https://api.web3.bio" {
		t.Errorf("base_url = %q", cfg.Resolver.BaseURL)
	}
	if cfg.Resolver.BatchSize != 25 {
		t.Errorf("batch_size = %d, want 25", cfg.Resolver.BatchSize)
	}
	if cfg.Cache.MaxSize != 1000 {
		t.Errorf("cache.max_size = %d, want 1000", cfg.Cache.MaxSize)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("cache.ttl = %s, want 5m", cfg.Cache.TTL)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled by default")
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("http.port = %d, want 8080", cfg.HTTP.Port)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
resolver:
  base_url: https://example.test
  api_key: secret
  batch_size: 5
cache:
  max_size: 10
  ttl: 30s
http:
  port: 9000
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Resolver.BaseURL != "https://example.test" {
		t.Errorf("base_url = %q", cfg.Resolver.BaseURL)
	}
	if cfg.Resolver.APIKey != "secret" {
		t.Errorf("api_key = %q", cfg.Resolver.APIKey)
	}
	if cfg.Resolver.BatchSize != 5 {
		t.Errorf("batch_size = %d", cfg.Resolver.BatchSize)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("ttl = %s", cfg.Cache.TTL)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}

	// Unset sections keep their defaults
	if cfg.Observability.Logging.Level != "info" {
		t.Errorf("logging level = %q, want info", cfg.Observability.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Resolver.BaseURL = "" }},
		{"zero batch size", func(c *Config) { c.Resolver.BatchSize = 0 }},
		{"negative batch size", func(c *Config) { c.Resolver.BatchSize = -1 }},
		{"zero cache size", func(c *Config) { c.Cache.MaxSize = 0 }},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }},
		{"redis enabled without address", func(c *Config) { c.Redis.Enabled = true; c.Redis.Address = "" }},
		{"bad http port", func(c *Config) { c.HTTP.Port = 0 }},
		{"bad metrics port", func(c *Config) { c.Observability.Metrics.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}
