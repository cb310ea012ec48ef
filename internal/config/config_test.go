package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")
	t.Setenv("TUNEUP_API_KEY", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, int64(32768), cfg.ReadLimit)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "test-secret", cfg.APIKey)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "prefer", cfg.Database.SSLMode)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")
	t.Setenv("TUNEUP_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}
