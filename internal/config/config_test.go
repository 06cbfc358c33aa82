package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "headlines.db", cfg.DBPath)
	assert.Equal(t, 30*time.Minute, cfg.Refresh.DefaultInterval)
	assert.Equal(t, 5, cfg.Refresh.BatchSize)
	assert.Equal(t, 24*time.Hour, cfg.Notify.SessionTTL)
	assert.Equal(t, -1, cfg.Items.BoringThreshold)
	assert.Empty(t, cfg.EnvFiles)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "listen: \":9090\"\ndb:\n  path: /tmp/feeds.db\nrefresh:\n  batch_size: 9\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("HEADLINES_REFRESH_BATCH_SIZE", "2")
	t.Setenv("HEADLINES_BEACON_INTERVAL", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "/tmp/feeds.db", cfg.DBPath)
	assert.Equal(t, 2, cfg.Refresh.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Beacon.Interval)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("HEADLINES_LOG_LEVEL=debug\n"), 0o600))

	t.Chdir(dir)
	// godotenv never overrides variables that are already set; register the
	// key with t.Setenv first so it is restored after the test, then unset it.
	t.Setenv("HEADLINES_LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("HEADLINES_LOG_LEVEL"))

	cfg, err := Load("", envPath, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{envPath}, cfg.EnvFiles)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HEADLINES_REFRESH_BATCH_SIZE", "0")

	_, err := Load("")
	require.ErrorIs(t, err, errBadBatchSize)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
