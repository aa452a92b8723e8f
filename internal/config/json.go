package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/minichat/internal/flagx"
	"github.com/dmitrijs2005/minichat/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations use
// timex.Duration so they may be written as "15m" or as nanoseconds.
type JsonConfig struct {
	BackendType           string         `json:"backend_type"`
	FallbackToMemory      bool           `json:"fallback_to_memory"`
	DatabaseURL           string         `json:"database_url"`
	InteractiveFallback   bool           `json:"interactive_fallback"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	SettingsFile          string         `json:"settings_file"`
	LogLevel              string         `json:"log_level"`
	LogFormat             string         `json:"log_format"`
	MinServerVersion      int            `json:"min_server_version"`
	BcryptCost            int            `json:"bcrypt_cost"`
}

// parseJson overlays config with the file named by -c/-config. Without the
// flag nothing is loaded. Read or decode errors panic.
//
// Only keys present in the file are applied, so a partial file keeps the
// defaults for everything else.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		panic(err)
	}

	has := func(key string) bool {
		_, ok := present[key]
		return ok
	}

	if has("backend_type") {
		config.BackendType = c.BackendType
	}
	if has("fallback_to_memory") {
		config.FallbackToMemory = c.FallbackToMemory
	}
	if has("database_url") {
		config.DatabaseURL = c.DatabaseURL
	}
	if has("interactive_fallback") {
		config.InteractiveFallback = c.InteractiveFallback
	}
	if has("secret_key") {
		config.SecretKey = c.SecretKey
	}
	if has("token_validity_duration") {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	if has("settings_file") {
		config.SettingsFile = c.SettingsFile
	}
	if has("log_level") {
		config.LogLevel = c.LogLevel
	}
	if has("log_format") {
		config.LogFormat = c.LogFormat
	}
	if has("min_server_version") {
		config.MinServerVersion = c.MinServerVersion
	}
	if has("bcrypt_cost") {
		config.BcryptCost = c.BcryptCost
	}
}
