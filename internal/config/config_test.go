package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultsync/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "http://localhost:8585", cfg.API.BaseURL)
	assert.Equal(t, ":8585", cfg.Server.Addr)
	assert.Equal(t, "disk", cfg.Server.Backend)
	assert.Equal(t, int64(100*1024*1024), cfg.Server.MaxUploadSize)
	assert.Equal(t, 5, cfg.Server.MaxConcurrent)
	assert.Equal(t, 3, cfg.Server.RetryAttempts)
	assert.Equal(t, 5, cfg.Server.MaxBackups)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.PushDebounce)

	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing base url",
			mutate:  func(c *config.Config) { c.API.BaseURL = "" },
			wantErr: "base_url",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *config.Config) { c.API.Timeout = 0 },
			wantErr: "timeout",
		},
		{
			name:    "bad backend",
			mutate:  func(c *config.Config) { c.Server.Backend = "ftp" },
			wantErr: "backend",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *config.Config) { c.Server.Backend = "s3" },
			wantErr: "s3_bucket",
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Log.Level = "verbose" },
			wantErr: "log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *config.Config) { c.Log.Format = "xml" },
			wantErr: "log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
        "api": {"base_url": "https://vault.example.com"},
        "server": {"addr": ":9999"},
        "log": {"level": "debug"}
    }`), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://vault.example.com", cfg.API.BaseURL)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unspecified settings keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "disk", cfg.Server.Backend)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8585", cfg.API.BaseURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VAULTSYNC_API_BASE_URL", "https://env.example.com")
	t.Setenv("VAULTSYNC_LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log": {"level": "bogus"}}`), 0600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.DBFile = filepath.Join(dir, "data", "vault.db")
	cfg.Server.DataDir = filepath.Join(dir, "server")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.Storage.DataDir)
	assert.DirExists(t, cfg.Server.DataDir)
}
