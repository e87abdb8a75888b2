// Package config resolves server settings from defaults, an optional YAML
// file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load
const (
	EnvPort        = "PORT"
	EnvDatabaseURL = "DATABASE_URL"
	EnvDriver      = "TODOS_DRIVER"
)

// Config holds the settings needed to start the service
type Config struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	Driver      string `yaml:"driver"`
}

// Default returns the built-in settings
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Addr:        ":3000",
		DatabaseURL: filepath.Join(home, ".todos", "todos.db"),
		Driver:      "sqlite3",
	}
}

// Load builds a Config. path may be empty; a missing file is an error only
// when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if port, ok := lookup(EnvPort); ok && port != "" {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, port, err)
		}
		c.Addr = ":" + port
	}
	if url, ok := lookup(EnvDatabaseURL); ok && url != "" {
		c.DatabaseURL = url
	}
	if driver, ok := lookup(EnvDriver); ok && driver != "" {
		c.Driver = driver
	}
	return nil
}

// Validate checks that every field is usable
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("database_url is empty"))
	}
	switch c.Driver {
	case "sqlite3", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// EnsureDir creates the parent directory of a file-path database URL.
// In-memory and "file:" URIs are left alone.
func (c Config) EnsureDir() error {
	if c.DatabaseURL == ":memory:" || strings.HasPrefix(c.DatabaseURL, "file:") {
		return nil
	}
	dir := filepath.Dir(c.DatabaseURL)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	return nil
}
