// Package config loads runtime configuration for the CourierDesk client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the backend HTTP API
//	-t int      request timeout (seconds)
//	-d string   path of the local session database
//	-r string   credential recovery mode (none|substitute)
//	-f string   fallback credential for the substitute mode
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "10s" or integer nanoseconds:
//
//	{
//	  "base_url": "http://127.0.0.1:8080",
//	  "request_timeout": "10s",
//	  "session_ttl": "24h",
//	  "inactivity_limit": "120h",
//	  "recovery": "none",
//	  "database_path": "courierdesk.db"
//	}
//
// Primary API
//
//   - type Config                     — holds the client runtime settings
//   - func LoadConfig() *Config       — builds Config by applying defaults, JSON, then flags
//   - func (*Config) LoadDefaults()   — sets sensible defaults
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
