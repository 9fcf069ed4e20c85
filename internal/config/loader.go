package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional file plus VAULTSYNC_ prefixed
// environment variables, layered over the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("VAULTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("vaultsync")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "vaultsync"))
		}
		// Missing file is fine, defaults apply.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// AutomaticEnv does not feed Unmarshal for unset keys; pick up the
	// handful of env overrides explicitly.
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VAULTSYNC_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("VAULTSYNC_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("VAULTSYNC_SERVER_DATA_DIR"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("VAULTSYNC_SERVER_BACKEND"); v != "" {
		cfg.Server.Backend = v
	}
	if v := os.Getenv("VAULTSYNC_SERVER_S3_BUCKET"); v != "" {
		cfg.Server.S3Bucket = v
	}
	if v := os.Getenv("VAULTSYNC_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
		cfg.Storage.DBFile = filepath.Join(v, "vault.db")
	}
	if v := os.Getenv("VAULTSYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VAULTSYNC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
