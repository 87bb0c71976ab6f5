package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables recognised by ApplyEnv.
const (
	EnvAPIHost = "HUMMINGBIRD_API_HOST"
	// EnvAPIHostVite is accepted for parity with the web build's variable.
	EnvAPIHostVite      = "VITE_API_HOST"
	EnvPageOrigin       = "HUMMINGBIRD_PAGE_ORIGIN"
	EnvConnectTimeout   = "HUMMINGBIRD_CONNECT_TIMEOUT"
	EnvMaxRetryAttempts = "HUMMINGBIRD_MAX_RETRY_ATTEMPTS"
	EnvBaseDelay        = "HUMMINGBIRD_BASE_DELAY"
	EnvDevServerAddr    = "HUMMINGBIRD_DEVSERVER_ADDR"
	EnvDevServerCatalog = "HUMMINGBIRD_DEVSERVER_CATALOG"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment. Files that do not exist are skipped; variables already set in
// the environment are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files %v: %w", existing, err)
	}
	return nil
}

// ApplyEnv overrides configuration values from environment variables.
func (c *Config) ApplyEnv() error {
	if v := firstEnv(EnvAPIHost, EnvAPIHostVite); v != "" {
		c.API.Host = v
	}
	if v, ok := os.LookupEnv(EnvPageOrigin); ok {
		c.API.PageOrigin = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvDevServerAddr); ok && v != "" {
		c.DevServer.Addr = v
	}
	if v, ok := os.LookupEnv(EnvDevServerCatalog); ok {
		c.DevServer.Catalog = v
	}

	var err error
	if c.Stream.ConnectTimeout, err = envDuration(EnvConnectTimeout, c.Stream.ConnectTimeout); err != nil {
		return err
	}
	if c.Stream.BaseDelay, err = envDuration(EnvBaseDelay, c.Stream.BaseDelay); err != nil {
		return err
	}
	if c.Stream.MaxRetryAttempts, err = envInt(EnvMaxRetryAttempts, c.Stream.MaxRetryAttempts); err != nil {
		return err
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
