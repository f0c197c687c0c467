package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkx401/pulse/cmd/dashboard/config"
)

// These tests touch the process environment and cannot run in parallel.

func TestLoad(t *testing.T) {
	t.Run("it applies defaults", func(t *testing.T) {
		// Arrange
		clearEnv(t, "PULSE_HTTP_PORT", "PULSE_DATA_SOURCE", "PULSE_POLL_INTERVAL", "PULSE_REDIS_URL", "PULSE_CACHE_TTL")

		// Act
		cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.HTTPPort)
		assert.Equal(t, config.ModeMock, cfg.Mode)
		assert.Equal(t, 30*time.Second, cfg.PollInterval)
		assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
		assert.Empty(t, cfg.RedisURL)
	})

	t.Run("it reads values from a dotenv file", func(t *testing.T) {
		// Arrange
		clearEnv(t, "PULSE_HTTP_PORT", "PULSE_DATA_SOURCE", "PULSE_POLL_INTERVAL")
		file := writeDotEnv(t, "PULSE_HTTP_PORT=9090\nPULSE_DATA_SOURCE=live\nPULSE_POLL_INTERVAL=15s\n")

		// Act
		cfg, err := config.Load(file)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "9090", cfg.HTTPPort)
		assert.Equal(t, config.ModeLive, cfg.Mode)
		assert.Equal(t, 15*time.Second, cfg.PollInterval)
	})

	t.Run("it prefers the environment over the dotenv file", func(t *testing.T) {
		// Arrange
		clearEnv(t, "PULSE_HTTP_PORT")
		t.Setenv("PULSE_HTTP_PORT", "7070")
		file := writeDotEnv(t, "PULSE_HTTP_PORT=9090\n")

		// Act
		cfg, err := config.Load(file)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "7070", cfg.HTTPPort)
	})

	t.Run("it rejects an unknown data source", func(t *testing.T) {
		t.Setenv("PULSE_DATA_SOURCE", "replay")

		_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))

		require.ErrorIs(t, err, config.ErrEnvironment)
		assert.ErrorContains(t, err, "unknown data source mode")
	})

	t.Run("it rejects a malformed duration", func(t *testing.T) {
		t.Setenv("PULSE_POLL_INTERVAL", "soon")

		_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))

		require.ErrorIs(t, err, config.ErrEnvironment)
	})

	t.Run("it reports an unreadable dotenv file", func(t *testing.T) {
		file := writeDotEnv(t, "PULSE_HTTP_PORT='unterminated\n")

		_, err := config.Load(file)

		require.ErrorIs(t, err, config.ErrDotEnv)
	})
}

// clearEnv unsets keys for the duration of the test
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()

	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeDotEnv(t *testing.T, content string) string {
	t.Helper()

	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}
