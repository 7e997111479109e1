package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.Auth.OTPTTL)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "uploads", cfg.Uploads.Dir)
	assert.Equal(t, uint(1280), cfg.Uploads.MaxWidth)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("OTP_TTL", "2m")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Auth.OTPTTL)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
}

func TestLoadRequiresTokenSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "TOKEN_SECRET")
}
