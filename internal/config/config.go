package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// API configuration (client side)
	API APIConfig `json:"api" mapstructure:"api"`

	// Server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Storage paths (client side)
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Sync behavior
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL      string        `json:"base_url" mapstructure:"base_url"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	ProbeTimeout time.Duration `json:"probe_timeout" mapstructure:"probe_timeout"`
	UserAgent    string        `json:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig for the vault file server.
type ServerConfig struct {
	Addr          string        `json:"addr" mapstructure:"addr"`
	DataDir       string        `json:"data_dir" mapstructure:"data_dir"`
	Backend       string        `json:"backend" mapstructure:"backend"` // disk, s3
	S3Bucket      string        `json:"s3_bucket" mapstructure:"s3_bucket"`
	S3Prefix      string        `json:"s3_prefix" mapstructure:"s3_prefix"`
	MaxUploadSize int64         `json:"max_upload_size" mapstructure:"max_upload_size"`
	MaxConcurrent int           `json:"max_concurrent" mapstructure:"max_concurrent"`
	RetryAttempts int           `json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
	MaxBackups    int           `json:"max_backups" mapstructure:"max_backups"`
}

// StorageConfig for local client paths.
type StorageConfig struct {
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
	DBFile  string `json:"db_file" mapstructure:"db_file"`
}

// SyncConfig for synchronization behavior.
type SyncConfig struct {
	// PushDebounce coalesces rapid mutations into one snapshot push.
	PushDebounce time.Duration `json:"push_debounce" mapstructure:"push_debounce"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // empty = stdout
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".vaultsync"

	return &Config{
		API: APIConfig{
			BaseURL:      "http://localhost:8585",
			Timeout:      30 * time.Second,
			ProbeTimeout: 3 * time.Second,
			UserAgent:    "vaultsync/1.0",
		},
		Server: ServerConfig{
			Addr:          ":8585",
			DataDir:       filepath.Join(dataDir, "server"),
			Backend:       "disk",
			MaxUploadSize: 100 * 1024 * 1024, // 100MB
			MaxConcurrent: 5,
			RetryAttempts: 3,
			RetryDelay:    100 * time.Millisecond,
			MaxBackups:    5,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			DBFile:  filepath.Join(dataDir, "vault.db"),
		},
		Sync: SyncConfig{
			PushDebounce: 250 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.API.ProbeTimeout <= 0 {
		return errors.New("api.probe_timeout must be positive")
	}

	if c.Server.MaxUploadSize <= 0 {
		return errors.New("server.max_upload_size must be positive")
	}

	if c.Server.MaxConcurrent <= 0 {
		return errors.New("server.max_concurrent must be positive")
	}

	if c.Server.RetryAttempts <= 0 {
		return errors.New("server.retry_attempts must be positive")
	}

	switch c.Server.Backend {
	case "disk":
	case "s3":
		if c.Server.S3Bucket == "" {
			return errors.New("server.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid server backend: %s", c.Server.Backend)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		filepath.Dir(c.Storage.DBFile),
	}

	if c.Server.Backend == "disk" {
		dirs = append(dirs, c.Server.DataDir)
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
