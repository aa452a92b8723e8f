package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	full := writeTempJSON(t, dir, "full.json", map[string]any{
		"backend_type":            "memory",
		"fallback_to_memory":      true,
		"database_url":            "postgres://x",
		"interactive_fallback":    true,
		"secret_key":              "k",
		"token_validity_duration": "15m",
		"settings_file":           "s.env",
		"log_level":               "debug",
		"log_format":              "json",
		"min_server_version":      130000,
		"bcrypt_cost":             4,
	})

	t.Run("loads every key", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", full}

		var c Config
		c.LoadDefaults()
		require.NotPanics(t, func() { parseJson(&c) })

		assert.Equal(t, Config{
			BackendType:           "memory",
			FallbackToMemory:      true,
			DatabaseURL:           "postgres://x",
			InteractiveFallback:   true,
			SecretKey:             "k",
			TokenValidityDuration: 15 * time.Minute,
			SettingsFile:          "s.env",
			LogLevel:              "debug",
			LogFormat:             "json",
			MinServerVersion:      130000,
			BcryptCost:            4,
		}, c)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"backend_type": "durable"})
		os.Args = []string{"testbin", "-c", partial}

		var c Config
		c.LoadDefaults()
		parseJson(&c)

		assert.Equal(t, "durable", c.BackendType)
		assert.Equal(t, "secretKey", c.SecretKey)
		assert.Equal(t, 24*time.Hour, c.TokenValidityDuration)
	})

	t.Run("no flag is a no-op", func(t *testing.T) {
		os.Args = []string{"testbin", "-b", "memory"}

		var c Config
		c.LoadDefaults()
		want := c
		parseJson(&c)

		assert.Equal(t, want, c)
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "nope.json")}
		assert.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("malformed file panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
		os.Args = []string{"testbin", "-c", bad}
		assert.Panics(t, func() { parseJson(&Config{}) })
	})
}
