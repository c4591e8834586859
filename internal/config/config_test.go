// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "dashboard.yaml", `
server:
  http_addr: "0.0.0.0:3000"

database:
  path: "./test.db"

auth:
  jwt_secret: "`+testSecret+`"
  token_ttl: "12h"

gateway:
  url: "ws://127.0.0.1:18789"
  token: "gw-token"
  session_key: "desk"
  message_timeout: "45s"
  reconnect_delay: "1s"

briefing:
  user_name: "Ada"
  cache_window: "10m"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:3000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:3000")
	}
	if cfg.Gateway.SessionKey != "desk" {
		t.Errorf("Gateway.SessionKey = %q, want %q", cfg.Gateway.SessionKey, "desk")
	}
	if cfg.Gateway.MessageTimeout != 45*time.Second {
		t.Errorf("Gateway.MessageTimeout = %v, want %v", cfg.Gateway.MessageTimeout, 45*time.Second)
	}
	if cfg.Gateway.ReconnectDelay != time.Second {
		t.Errorf("Gateway.ReconnectDelay = %v, want %v", cfg.Gateway.ReconnectDelay, time.Second)
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want %v", cfg.Auth.TokenTTL, 12*time.Hour)
	}
	if cfg.Briefing.UserName != "Ada" {
		t.Errorf("Briefing.UserName = %q, want %q", cfg.Briefing.UserName, "Ada")
	}
	if cfg.Briefing.CacheWindow != 10*time.Minute {
		t.Errorf("Briefing.CacheWindow = %v, want %v", cfg.Briefing.CacheWindow, 10*time.Minute)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics = %+v, want enabled at %s", cfg.Metrics, DefaultMetricsPath)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "dashboard.yaml", `
server:
  http_addr: "localhost:3000"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
gateway:
  url: "ws://localhost:18789"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"reconnect_delay", cfg.Gateway.ReconnectDelay, 3 * time.Second},
		{"message_timeout", cfg.Gateway.MessageTimeout, 90 * time.Second},
		{"list_timeout", cfg.Gateway.ListTimeout, 10 * time.Second},
		{"spawn_timeout", cfg.Gateway.SpawnTimeout, 30 * time.Second},
		{"kill_timeout", cfg.Gateway.KillTimeout, 10 * time.Second},
		{"logs_timeout", cfg.Gateway.LogsTimeout, 10 * time.Second},
		{"memory_timeout", cfg.Gateway.MemoryTimeout, 15 * time.Second},
		{"cache_window", cfg.Briefing.CacheWindow, 30 * time.Minute},
		{"sessions_interval", cfg.Poller.SessionsInterval, 30 * time.Second},
		{"token_ttl", cfg.Auth.TokenTTL, 24 * time.Hour},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if cfg.Gateway.SessionKey != "main" {
		t.Errorf("Gateway.SessionKey = %q, want main", cfg.Gateway.SessionKey)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DASHBOARD_SECRET", testSecret)
	t.Setenv("TEST_GATEWAY_TOKEN", "from-env")

	path := writeConfig(t, "dashboard.yaml", `
server:
  http_addr: "localhost:3000"
database:
  path: "./test.db"
auth:
  jwt_secret: "${TEST_DASHBOARD_SECRET}"
gateway:
  url: "ws://localhost:18789"
  token: "${TEST_GATEWAY_TOKEN}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Token != "from-env" {
		t.Errorf("Gateway.Token = %q, want from-env", cfg.Gateway.Token)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret not expanded")
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "dashboard.toml", `
[server]
http_addr = "localhost:3000"

[database]
path = "./test.db"

[auth]
jwt_secret = "`+testSecret+`"

[gateway]
url = "wss://gateway.example.com/ws"
list_timeout = "5s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.URL != "wss://gateway.example.com/ws" {
		t.Errorf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.ListTimeout != 5*time.Second {
		t.Errorf("Gateway.ListTimeout = %v, want 5s", cfg.Gateway.ListTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "dashboard.yaml", `
server:
  http_addr: "localhost:3000"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
gateway:
  url: "ws://localhost:18789"
  message_timeout: "soon"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail for an invalid duration")
	}
	if !strings.Contains(err.Error(), "gateway.message_timeout") {
		t.Errorf("error %q should name the field", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Server:   ServerConfig{HTTPAddr: "localhost:3000"},
			Database: DatabaseConfig{Path: "./test.db"},
			Auth:     AuthConfig{JWTSecret: testSecret},
			Gateway:  GatewayConfig{URL: "ws://localhost:18789"},
		}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"tailscale without hostname", func(c *Config) { c.Tailscale.Enabled = true }, "tailscale.hostname"},
		{"tailscale replaces http addr", func(c *Config) {
			c.Server.HTTPAddr = ""
			c.Tailscale.Enabled = true
			c.Tailscale.Hostname = "dashboard"
		}, ""},
		{"missing database", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
		{"missing gateway url", func(c *Config) { c.Gateway.URL = "" }, "gateway.url"},
		{"http gateway url", func(c *Config) { c.Gateway.URL = "http://localhost:18789" }, "ws://"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("COVEN_DASHBOARD_CONFIG", "/etc/coven/custom.yaml")
	if got := DefaultPath(); got != "/etc/coven/custom.yaml" {
		t.Errorf("DefaultPath() = %q, want env override", got)
	}

	t.Setenv("COVEN_DASHBOARD_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultPath(); got != filepath.Join("/tmp/xdg", "coven", "dashboard.yaml") {
		t.Errorf("DefaultPath() = %q, want XDG location", got)
	}
}
