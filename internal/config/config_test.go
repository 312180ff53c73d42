package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, "http://localhost:5000", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Workflow.PollInterval)
	assert.True(t, cfg.Workflow.AutoTrain)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Storage.DataDirectory)
	assert.Equal(t, filepath.Join(dir, "data", "staging"), cfg.Storage.StagingDirectory)
	assert.Equal(t, "127.0.0.1:8090", cfg.GetServerAddr())

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := `
backend:
  base_url: https://pangan.example.org
workflow:
  poll_interval: 2s
  auto_train: false
storage:
  data_directory: /srv/pangan
  state_directory: /var/lib/pangan
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://pangan.example.org", cfg.Backend.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Workflow.PollInterval)
	assert.False(t, cfg.Workflow.AutoTrain)
	assert.True(t, cfg.Workflow.AutoPreprocess, "unset keys keep defaults")
	assert.Equal(t, "/srv/pangan/staging", cfg.Storage.StagingDirectory)
	assert.Equal(t, "/var/lib/pangan", cfg.Storage.StateDirectory)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PANGAN_API_BASE_URL", "http://backend:5000")
	t.Setenv("PORT", "9999")
	t.Setenv("PANGAN_POLL_INTERVAL", "750ms")
	t.Setenv("PANGAN_AUTO_TRAIN", "false")
	t.Setenv("PANGAN_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)

	assert.Equal(t, "http://backend:5000", cfg.Backend.BaseURL)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 750*time.Millisecond, cfg.Workflow.PollInterval)
	assert.False(t, cfg.Workflow.AutoTrain)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		content string
	}{
		{name: "bad port", env: map[string]string{"PORT": "http"}},
		{name: "bad interval", env: map[string]string{"PANGAN_POLL_INTERVAL": "soon"}},
		{name: "bad bool", env: map[string]string{"PANGAN_AUTO_TRAIN": "maybe"}},
		{name: "bad yaml", content: "backend: [\n"},
		{name: "zero interval", content: "workflow:\n  poll_interval: 0s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), FileName)
			if tt.content != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			}
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PANGAN_TEST_VALUE=from-file\n"), 0644))
	t.Setenv("PANGAN_TEST_VALUE", "")
	os.Unsetenv("PANGAN_TEST_VALUE")

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("PANGAN_TEST_VALUE"))
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.resolvePaths(t.TempDir())

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.Storage.StagingDirectory)
	assert.DirExists(t, cfg.Storage.StateDirectory)
}
