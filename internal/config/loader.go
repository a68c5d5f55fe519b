package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name looked up in the current
// directory.
const DefaultConfigFile = "portscout.yaml"

// xdgConfigFile is the configuration file path relative to the XDG config
// directories.
var xdgConfigFile = filepath.Join(AppName, "config.yaml")

// LoadConfigFile loads the YAML configuration document at path.
// If the file does not exist, it returns ErrConfigNotFound. Unknown keys are
// rejected so that typos do not silently fall back to defaults.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cf File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfigFile, path, err)
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
//  1. If configPath is specified, use it directly
//  2. Look for portscout.yaml in the current directory
//  3. Look for portscout/config.yaml in the XDG config directories
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if path, err := xdg.SearchConfigFile(xdgConfigFile); err == nil {
		return path
	}
	return ""
}

// DefaultConfigPath is where "portscout init" writes the configuration
// template when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigDir(), "config.yaml")
}
