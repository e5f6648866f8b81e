package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mbelkin/courierdesk/internal/flagx"
	"github.com/mbelkin/courierdesk/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "10s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	BaseURL            string         `json:"base_url"`
	RequestTimeout     timex.Duration `json:"request_timeout"`
	SessionTTL         timex.Duration `json:"session_ttl"`
	InactivityLimit    timex.Duration `json:"inactivity_limit"`
	Recovery           string         `json:"recovery"`
	FallbackCredential string         `json:"fallback_credential"`
	DatabasePath       string         `json:"database_path"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Behavior:
//   - Reads and unmarshals the JSON into JsonConfig.
//   - Copies set fields into the provided Config; fields absent from the
//     JSON keep their earlier values.
//   - Panics on read or unmarshal errors (caller should recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.BaseURL != "" {
		cfg.BaseURL = jc.BaseURL
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
	if jc.SessionTTL.Duration != 0 {
		cfg.SessionTTL = time.Duration(jc.SessionTTL.Duration)
	}
	if jc.InactivityLimit.Duration != 0 {
		cfg.InactivityLimit = time.Duration(jc.InactivityLimit.Duration)
	}
	if jc.Recovery != "" {
		cfg.Recovery = jc.Recovery
	}
	if jc.FallbackCredential != "" {
		cfg.FallbackCredential = jc.FallbackCredential
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
}
