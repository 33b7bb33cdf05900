// Package config loads runtime configuration for the sync core.
//
// Values come from, lowest precedence first: built-in defaults, an optional
// config file (any format viper reads), a .env file in the working directory
// and FOMO_-prefixed environment variables. Nested keys map to environment
// names by upper-casing and replacing dots with underscores, so
// sync.max_retries is FOMO_SYNC_MAX_RETRIES.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FOMO"

type Config struct {
	Store        StoreConfig        `mapstructure:"store"`
	API          APIConfig          `mapstructure:"api"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type StoreConfig struct {
	// Path of the SQLite database file.
	Path string `mapstructure:"path"`
}

type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	HealthPath string        `mapstructure:"health_path"`
}

type SyncConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseRetryDelay time.Duration `mapstructure:"base_retry_delay"`
	MaxRetryDelay  time.Duration `mapstructure:"max_retry_delay"`
	Interval       time.Duration `mapstructure:"interval"`
	MaxErrors      int           `mapstructure:"max_errors"`
	SweepTimeout   time.Duration `mapstructure:"sweep_timeout"`
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

var defaults = map[string]interface{}{
	"store.path": "fomo-sync.db",

	"api.base_url":    "http://localhost:8080",
	"api.token":       "",
	"api.timeout":     10 * time.Second,
	"api.health_path": "/api/health",

	"sync.max_retries":      5,
	"sync.base_retry_delay": time.Second,
	"sync.max_retry_delay":  60 * time.Second,
	"sync.interval":         60 * time.Second,
	"sync.max_errors":       50,
	"sync.sweep_timeout":    5 * time.Minute,

	"connectivity.probe_interval": 30 * time.Second,
	"connectivity.probe_timeout":  5 * time.Second,

	"logging.level":        "info",
	"logging.format":       "json",
	"logging.file":         "",
	"logging.max_size_mb":  10,
	"logging.max_backups":  3,
	"logging.max_age_days": 28,
}

// Load reads the configuration. path names an optional config file; an
// empty path skips it. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, fmt.Sprintf("failed to read config file %s", path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the sync core cannot use.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Store.Path) == "" {
		problems = append(problems, "store.path is required")
	}

	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("api.base_url %q is not an http(s) URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		problems = append(problems, "api.timeout must be positive")
	}
	if !strings.HasPrefix(c.API.HealthPath, "/") {
		problems = append(problems, "api.health_path must start with /")
	}

	if c.Sync.MaxRetries < 1 {
		problems = append(problems, "sync.max_retries must be at least 1")
	}
	if c.Sync.BaseRetryDelay <= 0 || c.Sync.MaxRetryDelay < c.Sync.BaseRetryDelay {
		problems = append(problems, "sync retry delays must be positive with max_retry_delay >= base_retry_delay")
	}
	if c.Sync.Interval < time.Second {
		problems = append(problems, "sync.interval must be at least 1s")
	}
	if c.Sync.MaxErrors < 1 {
		problems = append(problems, "sync.max_errors must be at least 1")
	}
	if c.Sync.SweepTimeout <= 0 {
		problems = append(problems, "sync.sweep_timeout must be positive")
	}

	if c.Connectivity.ProbeInterval <= 0 || c.Connectivity.ProbeTimeout <= 0 {
		problems = append(problems, "connectivity probe interval and timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is unknown", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be json or console", c.Logging.Format))
	}

	if len(problems) > 0 {
		return apperrors.New(apperrors.ErrInvalid, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}
