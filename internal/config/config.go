// Package config loads doclink settings from doclink.yaml, DOCLINK_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/doclink/internal/metadata"
)

// EnvPrefix prefixes every environment variable ("DOCLINK_URI").
const EnvPrefix = "DOCLINK"

// FileName is the config file looked up in the working directory when no
// explicit path is given.
const FileName = "doclink"

// ErrNoRemote is returned by RequireRemote when no stack URI is configured.
var ErrNoRemote = errors.New("config.uri is required")

// Config models doclink.yaml.
type Config struct {
	URI          string        `mapstructure:"uri"`
	Token        string        `mapstructure:"token"`
	SchemaPath   string        `mapstructure:"schema"`
	SnapshotPath string        `mapstructure:"snapshot"`
	App          AppConfig     `mapstructure:"app"`
	Retry        RetryConfig   `mapstructure:"retry"`
	Tracing      TracingConfig `mapstructure:"tracing"`
}

// AppConfig is the application identity stamped into document metadata.
type AppConfig struct {
	Slug          string `mapstructure:"slug"`
	Version       string `mapstructure:"version"`
	SourceAccount string `mapstructure:"source_account"`
}

// RetryConfig tunes transport retries.
type RetryConfig struct {
	Max     int           `mapstructure:"max"`
	WaitMin time.Duration `mapstructure:"wait_min"`
	WaitMax time.Duration `mapstructure:"wait_max"`
}

// TracingConfig enables the tracing link.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Defaults applied before the file and the environment.
var defaults = map[string]any{
	"uri":                  "",
	"token":                "",
	"schema":               "",
	"snapshot":             "",
	"app.slug":             "doclink",
	"app.version":          "",
	"app.source_account":   "",
	"retry.max":            2,
	"retry.wait_min":       100 * time.Millisecond,
	"retry.wait_max":       time.Second,
	"tracing.enabled":      false,
	"tracing.service_name": "doclink",
	"tracing.sample_ratio": 1.0,
}

// New returns a viper instance with defaults and environment binding set.
// Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path into v and decodes the result.
// With an empty path, ./doclink.yaml is used when present.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. Required fields are checked by the
// commands that need them.
func (c *Config) Validate() error {
	if c.Retry.Max < 0 {
		return fmt.Errorf("config.retry.max must not be negative")
	}
	if c.Retry.WaitMin < 0 || c.Retry.WaitMax < 0 {
		return fmt.Errorf("config.retry wait durations must not be negative")
	}
	if c.Retry.WaitMax < c.Retry.WaitMin {
		return fmt.Errorf("config.retry.wait_max must be at least wait_min")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("config.tracing.sample_ratio must be within [0, 1]")
	}
	return nil
}

// RequireRemote returns ErrNoRemote when no stack URI is set.
func (c *Config) RequireRemote() error {
	if c.URI == "" {
		return ErrNoRemote
	}
	return nil
}

// Identity returns the application identity for document metadata.
func (c *Config) Identity() metadata.Identity {
	return metadata.Identity{
		Slug:          c.App.Slug,
		Version:       c.App.Version,
		SourceAccount: c.App.SourceAccount,
	}
}
