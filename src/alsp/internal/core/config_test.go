package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Run("base only", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, _configBase, "logging:\n  level: info\n")
		t.Setenv(_configDirEnv, dir)

		provider, err := NewConfig()
		require.NoError(t, err)

		var level string
		require.NoError(t, provider.Get("logging.level").Populate(&level))
		assert.Equal(t, "info", level)
	})

	t.Run("local override wins", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, _configBase, "logging:\n  level: info\n")
		writeConfigFile(t, dir, _configOverride, "logging:\n  level: debug\n")
		t.Setenv(_configDirEnv, dir)

		provider, err := NewConfig()
		require.NoError(t, err)

		var level string
		require.NoError(t, provider.Get("logging.level").Populate(&level))
		assert.Equal(t, "debug", level)
	})

	t.Run("environment expansion", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, _configBase, "credentials:\n  apiKey: ${TEST_ALSP_KEY:\"\"}\n")
		t.Setenv(_configDirEnv, dir)
		t.Setenv("TEST_ALSP_KEY", "secret")

		provider, err := NewConfig()
		require.NoError(t, err)

		var key string
		require.NoError(t, provider.Get("credentials.apiKey").Populate(&key))
		assert.Equal(t, "secret", key)
	})

	t.Run("missing base configuration", func(t *testing.T) {
		t.Setenv(_configDirEnv, t.TempDir())

		_, err := NewConfig()
		assert.Error(t, err)
	})
}

func writeConfigFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
}
