package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_parseEnv(t *testing.T) {
	t.Setenv("MINICHAT_DB_BACKEND", "memory")
	t.Setenv("MINICHAT_FALLBACK_TO_MEMORY", "true")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("MINICHAT_TOKEN_VALIDITY", "2h")
	t.Setenv("MINICHAT_SESSION_TOKEN", "tok")
	t.Setenv("MINICHAT_BCRYPT_COST", "12")

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, "memory", c.BackendType)
	assert.True(t, c.FallbackToMemory)
	assert.Equal(t, "postgres://env", c.DatabaseURL)
	assert.Equal(t, 2*time.Hour, c.TokenValidityDuration)
	assert.Equal(t, "tok", c.SessionToken)
	assert.Equal(t, 12, c.BcryptCost)

	// untouched
	assert.Equal(t, "secretKey", c.SecretKey)
	assert.Equal(t, "text", c.LogFormat)
}

func Test_parseEnv_Malformed(t *testing.T) {
	t.Setenv("MINICHAT_BCRYPT_COST", "lots")

	var c Config
	assert.Panics(t, func() { parseEnv(&c) })
}
