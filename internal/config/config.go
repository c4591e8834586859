// ABOUTME: Configuration loading and parsing for coven-dashboard
// ABOUTME: Supports YAML (or TOML) files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-dashboard configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Gateway   GatewayConfig   `yaml:"gateway" toml:"gateway"`
	Briefing  BriefingConfig  `yaml:"briefing" toml:"briefing"`
	Poller    PollerConfig    `yaml:"poller" toml:"poller"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the HTTP listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel, implies HTTPS
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds login token configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-" toml:"-"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// GatewayConfig describes the external agent gateway connection
type GatewayConfig struct {
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	SessionKey    string `yaml:"session_key" toml:"session_key"`
	ClientID      string `yaml:"client_id" toml:"client_id"`
	ClientVersion string `yaml:"client_version" toml:"client_version"`

	ReconnectDelay   time.Duration `yaml:"-" toml:"-"`
	HandshakeTimeout time.Duration `yaml:"-" toml:"-"`
	MessageTimeout   time.Duration `yaml:"-" toml:"-"`
	ListTimeout      time.Duration `yaml:"-" toml:"-"`
	SpawnTimeout     time.Duration `yaml:"-" toml:"-"`
	KillTimeout      time.Duration `yaml:"-" toml:"-"`
	LogsTimeout      time.Duration `yaml:"-" toml:"-"`
	MemoryTimeout    time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ReconnectDelayRaw   string `yaml:"reconnect_delay" toml:"reconnect_delay"`
	HandshakeTimeoutRaw string `yaml:"handshake_timeout" toml:"handshake_timeout"`
	MessageTimeoutRaw   string `yaml:"message_timeout" toml:"message_timeout"`
	ListTimeoutRaw      string `yaml:"list_timeout" toml:"list_timeout"`
	SpawnTimeoutRaw     string `yaml:"spawn_timeout" toml:"spawn_timeout"`
	KillTimeoutRaw      string `yaml:"kill_timeout" toml:"kill_timeout"`
	LogsTimeoutRaw      string `yaml:"logs_timeout" toml:"logs_timeout"`
	MemoryTimeoutRaw    string `yaml:"memory_timeout" toml:"memory_timeout"`
}

// BriefingConfig holds daily briefing settings
type BriefingConfig struct {
	UserName    string        `yaml:"user_name" toml:"user_name"`
	CacheWindow time.Duration `yaml:"-" toml:"-"`
	AITimeout   time.Duration `yaml:"-" toml:"-"`

	CacheWindowRaw string `yaml:"cache_window" toml:"cache_window"`
	AITimeoutRaw   string `yaml:"ai_timeout" toml:"ai_timeout"`
}

// PollerConfig holds the session status polling interval
type PollerConfig struct {
	SessionsInterval time.Duration `yaml:"-" toml:"-"`

	SessionsIntervalRaw string `yaml:"sessions_interval" toml:"sessions_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default values applied by ApplyDefaults.
const (
	DefaultSessionKey       = "main"
	DefaultClientID         = "coven-dashboard"
	DefaultClientVersion    = "1.0.0"
	DefaultReconnectDelay   = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMessageTimeout   = 90 * time.Second
	DefaultListTimeout      = 10 * time.Second
	DefaultSpawnTimeout     = 30 * time.Second
	DefaultKillTimeout      = 10 * time.Second
	DefaultLogsTimeout      = 10 * time.Second
	DefaultMemoryTimeout    = 15 * time.Second
	DefaultCacheWindow      = 30 * time.Minute
	DefaultAITimeout        = 30 * time.Second
	DefaultSessionsInterval = 30 * time.Second
	DefaultTokenTTL         = 24 * time.Hour
	DefaultMetricsPath      = "/metrics"
	DefaultUserName         = "there"
)

// MinJWTSecretLength is the shortest accepted auth.jwt_secret.
const MinJWTSecretLength = 32

// DefaultPath returns $COVEN_DASHBOARD_CONFIG when set, otherwise
// dashboard.yaml under $XDG_CONFIG_HOME/coven or ~/.config/coven.
func DefaultPath() string {
	if p := os.Getenv("COVEN_DASHBOARD_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "dashboard.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "coven", "dashboard.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw config bytes, applies defaults and validates the result.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	g := &c.Gateway
	setString(&g.SessionKey, DefaultSessionKey)
	setString(&g.ClientID, DefaultClientID)
	setString(&g.ClientVersion, DefaultClientVersion)
	setDuration(&g.ReconnectDelay, DefaultReconnectDelay)
	setDuration(&g.HandshakeTimeout, DefaultHandshakeTimeout)
	setDuration(&g.MessageTimeout, DefaultMessageTimeout)
	setDuration(&g.ListTimeout, DefaultListTimeout)
	setDuration(&g.SpawnTimeout, DefaultSpawnTimeout)
	setDuration(&g.KillTimeout, DefaultKillTimeout)
	setDuration(&g.LogsTimeout, DefaultLogsTimeout)
	setDuration(&g.MemoryTimeout, DefaultMemoryTimeout)

	setString(&c.Briefing.UserName, DefaultUserName)
	setDuration(&c.Briefing.CacheWindow, DefaultCacheWindow)
	setDuration(&c.Briefing.AITimeout, DefaultAITimeout)

	setDuration(&c.Poller.SessionsInterval, DefaultSessionsInterval)
	setDuration(&c.Auth.TokenTTL, DefaultTokenTTL)
	setString(&c.Metrics.Path, DefaultMetricsPath)
	setString(&c.Logging.Level, "info")
	setString(&c.Logging.Format, "text")
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return fmt.Errorf("gateway.url is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("gateway.url must use ws:// or wss://, got %q", u.Scheme)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// durationField pairs a raw string with its parsed destination.
type durationField struct {
	name string
	raw  string
	dst  *time.Duration
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	g := &cfg.Gateway
	fields := []durationField{
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"gateway.reconnect_delay", g.ReconnectDelayRaw, &g.ReconnectDelay},
		{"gateway.handshake_timeout", g.HandshakeTimeoutRaw, &g.HandshakeTimeout},
		{"gateway.message_timeout", g.MessageTimeoutRaw, &g.MessageTimeout},
		{"gateway.list_timeout", g.ListTimeoutRaw, &g.ListTimeout},
		{"gateway.spawn_timeout", g.SpawnTimeoutRaw, &g.SpawnTimeout},
		{"gateway.kill_timeout", g.KillTimeoutRaw, &g.KillTimeout},
		{"gateway.logs_timeout", g.LogsTimeoutRaw, &g.LogsTimeout},
		{"gateway.memory_timeout", g.MemoryTimeoutRaw, &g.MemoryTimeout},
		{"briefing.cache_window", cfg.Briefing.CacheWindowRaw, &cfg.Briefing.CacheWindow},
		{"briefing.ai_timeout", cfg.Briefing.AITimeoutRaw, &cfg.Briefing.AITimeout},
		{"poller.sessions_interval", cfg.Poller.SessionsIntervalRaw, &cfg.Poller.SessionsInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
