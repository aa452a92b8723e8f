package config

import (
	"github.com/caarlos0/env/v11"
)

// parseEnv overlays config with the MINICHAT_* variables (and DATABASE_URL)
// declared in the Config struct tags. Unset variables leave fields untouched.
// Malformed values panic, like malformed flags.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
