package config

import "time"

// Config holds runtime settings for the CourierDesk client.
//
// Fields:
//   - BaseURL: base URL of the backend HTTP API.
//   - RequestTimeout: per-request deadline for the API pipeline.
//   - SessionTTL: sliding lifetime of a stored session record.
//   - InactivityLimit: ceiling on time since last activity before a
//     session is discarded regardless of its expiry.
//   - Recovery: credential recovery mode, "none" or "substitute".
//   - FallbackCredential: credential used by the "substitute" mode.
//   - DatabasePath: path of the local sqlite session database.
type Config struct {
	BaseURL            string
	RequestTimeout     time.Duration
	SessionTTL         time.Duration
	InactivityLimit    time.Duration
	Recovery           string
	FallbackCredential string
	DatabasePath       string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "http://127.0.0.1:8080"
	c.RequestTimeout = 10 * time.Second
	c.SessionTTL = 24 * time.Hour
	c.InactivityLimit = 5 * 24 * time.Hour
	c.Recovery = "none"
	c.FallbackCredential = ""
	c.DatabasePath = "courierdesk.db"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
