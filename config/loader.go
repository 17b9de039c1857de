package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory.
const DefaultConfigFile = ".catalogscrape.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadFile overlays the YAML document at path onto a copy of base.
// Keys absent from the file keep the value from base.
func LoadFile(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if base == nil {
		base = DefaultConfig()
	}
	cfg := *base
	cfg.RetryHTTPCodes = append([]int(nil), base.RetryHTTPCodes...)
	cfg.UserAgents = append([]string(nil), base.UserAgents...)

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// FindConfigFile resolves the configuration file to use:
// an explicit path, then ./.catalogscrape.yaml, then the XDG config home.
// It returns an empty string when nothing is found.
func FindConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if candidate, err := xdg.SearchConfigFile(filepath.Join("go-scrape-catalog", "config.yaml")); err == nil {
		return candidate
	}
	return ""
}
