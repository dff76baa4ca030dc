// Package config loads runtime settings for the PocketLedger CLI from, in
// order of precedence: defaults, a config.yaml in the config directory, and
// POCKETLEDGER_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BackupConfig points at the S3-compatible bucket for snapshot backups.
// Empty bucket disables the backup commands.
type BackupConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Config holds runtime settings for the PocketLedger CLI.
type Config struct {
	// ServerURL is the base URL of the remote API, no trailing slash.
	ServerURL string `mapstructure:"server_url"`
	// DatabasePath is the sqlite file of the local store.
	DatabasePath string `mapstructure:"database_path"`
	// SyncInterval is how often a background sync pass runs while online.
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	// ProbeInterval is how often server reachability is checked.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	// CacheTTL bounds how long a cached API response may be served.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// RetryCap is the total delivery attempts per queued mutation.
	RetryCap int `mapstructure:"retry_cap"`

	Backup BackupConfig `mapstructure:"backup"`
}

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "POCKETLEDGER"
)

// DefaultDir returns the per-user config directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(base, "pocketledger"), nil
}

// Load reads the configuration rooted at dir, creating the directory on first
// run. A missing config.yaml is not an error; defaults and environment
// variables still apply.
func Load(dir string) (*Config, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}

	v := viper.New()
	v.SetDefault("server_url", "http://localhost:3000")
	v.SetDefault("database_path", filepath.Join(dir, "ledger.db"))
	v.SetDefault("sync_interval", 5*time.Minute)
	v.SetDefault("probe_interval", 10*time.Second)
	v.SetDefault("cache_ttl", 24*time.Hour)
	v.SetDefault("retry_cap", 3)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url must not be empty")
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")
	if c.RetryCap < 1 {
		return fmt.Errorf("retry_cap must be at least 1, got %d", c.RetryCap)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL)
	}
	return nil
}
