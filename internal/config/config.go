// Package config handles configuration loading and management for Hummingbird.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	defaultConfig "github.com/hummingbird-labs/hummingbird/config"
	"github.com/hummingbird-labs/hummingbird/internal/appdir"
)

// APIConfig describes where the backend lives and how to reach it.
type APIConfig struct {
	// Host is the backend host[:port] override. Empty means "use the page origin's host".
	Host string `yaml:"host"`
	// PageOrigin is the origin the widget is served from (scheme://host[:port]).
	PageOrigin string `yaml:"page_origin"`
	// ProductionHosts lists host glob patterns that always use secure schemes.
	ProductionHosts []string `yaml:"production_hosts"`
}

// StreamConfig tunes the log stream connection.
type StreamConfig struct {
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// MaxRetryAttempts is the retry ceiling after which the stream is Failed.
	MaxRetryAttempts int `yaml:"max_retry_attempts"`
	// BaseDelay is the first reconnect delay; each further retry doubles it.
	BaseDelay time.Duration `yaml:"base_delay"`
}

// ProductsConfig tunes the recommendation fetch.
type ProductsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// DevServerConfig configures the local development backend.
type DevServerConfig struct {
	Addr string `yaml:"addr"`
	// Catalog is an optional YAML catalog file; it is watched and reloaded on change.
	Catalog string `yaml:"catalog"`
	// AccessLog is an optional request log file, rotated by size.
	AccessLog         string        `yaml:"access_log"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	LogIntervalMin    time.Duration `yaml:"log_interval_min"`
	LogIntervalMax    time.Duration `yaml:"log_interval_max"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// Config represents the complete Hummingbird configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Stream    StreamConfig    `yaml:"stream"`
	Products  ProductsConfig  `yaml:"products"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// ConfigSource indicates where the configuration was loaded from.
type ConfigSource int

const (
	// ConfigSourceEmbeddedDefaults indicates only the embedded defaults were used.
	ConfigSourceEmbeddedDefaults ConfigSource = iota
	// ConfigSourceUserFile indicates $HUMMINGBIRD_DIR/config.yaml was loaded.
	ConfigSourceUserFile
	// ConfigSourceCustomFile indicates a file given with --config was loaded.
	ConfigSourceCustomFile
)

func (s ConfigSource) String() string {
	switch s {
	case ConfigSourceUserFile:
		return "user-file"
	case ConfigSourceCustomFile:
		return "custom-file"
	default:
		return "embedded-defaults"
	}
}

// LoadResult contains the loaded configuration and metadata about its source.
type LoadResult struct {
	Config *Config
	Source ConfigSource
	// SourcePath is the file that was loaded (empty for embedded defaults).
	SourcePath string
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultConfig.DefaultConfigYAML, cfg); err != nil {
		// The embedded file is part of the build; failing here is a programming error.
		panic(fmt.Sprintf("invalid embedded default config: %v", err))
	}
	return cfg
}

// Load reads and parses the configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data on top of the embedded defaults.
// Keys missing from data keep their default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadWithFallback loads configuration using the hierarchy:
//  1. explicitPath (the --config flag), when non-empty
//  2. $HUMMINGBIRD_DIR/config.yaml, when it exists
//  3. embedded defaults
//
// Environment overrides are applied afterwards and the result is validated.
func LoadWithFallback(explicitPath string) (*LoadResult, error) {
	var result *LoadResult

	switch {
	case explicitPath != "":
		cfg, err := Load(explicitPath)
		if err != nil {
			return nil, err
		}
		result = &LoadResult{Config: cfg, Source: ConfigSourceCustomFile, SourcePath: explicitPath}

	default:
		userPath, err := appdir.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(userPath); statErr == nil {
				cfg, err := Load(userPath)
				if err != nil {
					return nil, err
				}
				result = &LoadResult{Config: cfg, Source: ConfigSourceUserFile, SourcePath: userPath}
			}
		}
		if result == nil {
			result = &LoadResult{Config: Default(), Source: ConfigSourceEmbeddedDefaults}
		}
	}

	if err := result.Config.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := result.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return result, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	var errs []error

	if c.API.PageOrigin != "" {
		u, err := url.Parse(c.API.PageOrigin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("api.page_origin %q is not an absolute URL", c.API.PageOrigin))
		}
	}
	if c.API.Host == "" && c.API.PageOrigin == "" {
		errs = append(errs, errors.New("either api.host or api.page_origin must be set"))
	}
	if c.Stream.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("stream.connect_timeout must be > 0"))
	}
	if c.Stream.MaxRetryAttempts < 0 {
		errs = append(errs, errors.New("stream.max_retry_attempts must be >= 0"))
	}
	if c.Stream.BaseDelay <= 0 {
		errs = append(errs, errors.New("stream.base_delay must be > 0"))
	}
	if c.Products.Timeout <= 0 {
		errs = append(errs, errors.New("products.timeout must be > 0"))
	}
	if c.DevServer.LogIntervalMin > c.DevServer.LogIntervalMax {
		errs = append(errs, errors.New("devserver.log_interval_min must not exceed log_interval_max"))
	}

	return errors.Join(errs...)
}
