package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-jobboard-client/internal/config"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, "DEV", cfg.GetEnv())
	require.Equal(t, ":8080", cfg.GetPort())
	require.Equal(t, "http://localhost:8000", cfg.GetAPIBaseURL())
	require.Equal(t, 2, cfg.GetRefreshMaxAttempts())
	require.Equal(t, 200*time.Millisecond, cfg.GetRefreshBackoff())
	require.Equal(t, 5*time.Second, cfg.GetRefreshTimeout())
	require.Equal(t, config.TokenStoreFile, cfg.GetTokenStore())
	require.Equal(t, "jobboard.auth", cfg.GetStorageKey())
	require.Empty(t, cfg.GetSealKey())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
app:
  env: prod
  port: ":9090"
backend:
  api_base_url: "https://api.jobs.example.com/"
  refresh_timeout: 3s
refresh:
  max_attempts: 4
storage:
  token_store: redis
  storage_key: custom.key
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "PROD", cfg.GetEnv())
	require.Equal(t, ":9090", cfg.GetPort())
	require.Equal(t, "https://api.jobs.example.com", cfg.GetAPIBaseURL())
	require.Equal(t, 3*time.Second, cfg.GetRefreshTimeout())
	require.Equal(t, 4, cfg.GetRefreshMaxAttempts())
	require.Equal(t, config.TokenStoreRedis, cfg.GetTokenStore())
	require.Equal(t, "custom.key", cfg.GetStorageKey())
}

func TestLoad_EnvOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
backend:
  api_base_url: "https://file.example.com"
`)
	t.Setenv("API_BASE_URL", "https://env.example.com")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://env.example.com", cfg.GetAPIBaseURL())
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	path := writeConfig(t, `
app:
  name: "From CONFIG_PATH"
`)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "From CONFIG_PATH", cfg.GetAppName())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "stat failed")
}

func TestRefreshMaxAttemptsFloor(t *testing.T) {
	require.Equal(t, 1, config.Refresh{MaxAttempts: 0}.GetRefreshMaxAttempts())
}
