// Package config provides embedded default configuration for Hummingbird.
package config

import (
	_ "embed"
)

// DefaultConfigYAML contains the embedded default configuration in YAML format.
// It is used when no config file is found and as the base every file is merged onto.
//
//go:embed hummingbird.default.yaml
var DefaultConfigYAML []byte

// DefaultCatalogYAML is the recommendation catalog served by the development
// backend when no catalog file is configured.
//
//go:embed catalog.default.yaml
var DefaultCatalogYAML []byte
