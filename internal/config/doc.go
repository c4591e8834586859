// Package config handles configuration loading for coven-dashboard.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML when the file name ends
// in .toml) with environment variable expansion. Missing values receive
// defaults before validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_DASHBOARD_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/dashboard.yaml
//  3. ~/.config/coven/dashboard.yaml
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${COVEN_DASHBOARD_JWT_SECRET}"
//	gateway:
//	  token: "${CLAWDBOT_TOKEN}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:3000"
//
//	database:
//	  path: "~/.local/share/coven/dashboard.db"
//
//	gateway:
//	  url: "ws://127.0.0.1:18789"
//	  session_key: "main"
//	  reconnect_delay: "3s"     # fixed, not exponential
//	  message_timeout: "90s"
//	  list_timeout: "10s"
//	  spawn_timeout: "30s"
//
//	briefing:
//	  user_name: "Ada"
//	  cache_window: "30m"
//
//	poller:
//	  sessions_interval: "30s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Validation
//
// Validate reports the first of: missing http_addr (unless tailscale is
// enabled), missing tailscale hostname, missing database path, a JWT secret
// shorter than 32 bytes, a gateway URL that is not ws:// or wss://, or an
// unknown log format.
package config
