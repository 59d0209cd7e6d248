package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("CREDGATE_LISTEN_ADDR", "")
	t.Setenv("CREDGATE_NONCE_TTL", "")
	t.Setenv("CREDGATE_SESSION_TTL", "")
	t.Setenv("POSTGRES_DSN", "")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.NonceTTL)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Empty(t, cfg.DatabaseDSN)
}

func TestLoadServerOverrides(t *testing.T) {
	t.Setenv("CREDGATE_LISTEN_ADDR", ":8088")
	t.Setenv("CREDGATE_NONCE_TTL", "90s")
	t.Setenv("CREDGATE_SESSION_TTL", "2h")
	t.Setenv("POSTGRES_DSN", "postgres://credgate@db/credgate")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, ":8088", cfg.ListenAddr)
	assert.Equal(t, 90*time.Second, cfg.NonceTTL)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "postgres://credgate@db/credgate", cfg.DatabaseDSN)
}

func TestLoadServerInvalidDuration(t *testing.T) {
	t.Setenv("CREDGATE_NONCE_TTL", "soon")
	_, err := LoadServer()
	assert.ErrorContains(t, err, "CREDGATE_NONCE_TTL")

	t.Setenv("CREDGATE_NONCE_TTL", "-1m")
	_, err = LoadServer()
	assert.Error(t, err)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("CREDGATE_BACKEND_URL", "https://gate.example")
	t.Setenv("CREDGATE_SESSION_FILE", "/tmp/session.yaml")
	t.Setenv("CREDGATE_FROM_BLOCK", "1200")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "https://gate.example", cfg.BackendURL)
	assert.Equal(t, "/tmp/session.yaml", cfg.SessionFile)
	assert.Equal(t, uint64(1200), cfg.FromBlock)

	t.Setenv("CREDGATE_FROM_BLOCK", "latest")
	_, err = LoadClient()
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CREDGATE_TEST_VALUE=from-file\n"), 0o600))
	t.Setenv("CREDGATE_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("CREDGATE_TEST_VALUE"))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-file", os.Getenv("CREDGATE_TEST_VALUE"))

	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}
