// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "PURPLE_MATRIX_CONFIG"

// Keyring backends.
const (
	// BackendSystem stores session records in the desktop Secret
	// Service (or the platform equivalent).
	BackendSystem = "system"

	// BackendSealed stores them in an age-encrypted vault file, for
	// headless hosts without a session bus.
	BackendSealed = "sealed"
)

// Config is the host configuration.
type Config struct {
	// DataRoot is the parent of the matrix_rust_data directory that
	// holds one working directory per account.
	DataRoot string `yaml:"data_root"`

	// Homeserver is the default homeserver for accounts whose name
	// carries no server (or names matrix.org). Empty means derive from
	// the account name.
	Homeserver string `yaml:"homeserver"`

	// DeviceDisplayName is sent with password and token logins.
	DeviceDisplayName string `yaml:"device_display_name"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Keyring KeyringConfig `yaml:"keyring"`
	SSO     SSOConfig     `yaml:"sso"`
}

// KeyringConfig selects where session records are kept.
type KeyringConfig struct {
	Backend string `yaml:"backend"`

	// VaultPath and KeyPath are used by the sealed backend. The key is
	// generated on first use.
	VaultPath string `yaml:"vault_path"`
	KeyPath   string `yaml:"key_path"`
}

// SSOConfig tunes the loopback callback listener.
type SSOConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataRoot:          "${XDG_DATA_HOME:-${HOME}/.local/share}/purple",
		DeviceDisplayName: "purple-matrix",
		LogLevel:          "info",
		Keyring: KeyringConfig{
			Backend:   BackendSystem,
			VaultPath: "${HOME}/.config/purple-matrix/vault.age",
			KeyPath:   "${HOME}/.config/purple-matrix/vault.key",
		},
		SSO: SSOConfig{
			Timeout:      180 * time.Second,
			PollInterval: time.Second,
		},
	}
}

// Load resolves path, falling back to PURPLE_MATRIX_CONFIG, and loads
// it. Both empty yields Default with variables expanded.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvironmentVariable)
	}
	if path == "" {
		config := Default()
		config.expandVariables()
		return config, config.Validate()
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults, expands variables, and
// validates.
func LoadFile(path string) (*Config, error) {
	config := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	config.expandVariables()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return config, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DataRoot == "" {
		errs = append(errs, fmt.Errorf("data_root is required"))
	}
	switch c.Keyring.Backend {
	case BackendSystem:
	case BackendSealed:
		if c.Keyring.VaultPath == "" || c.Keyring.KeyPath == "" {
			errs = append(errs, fmt.Errorf("keyring.vault_path and keyring.key_path are required for the sealed backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("keyring.backend must be %q or %q, got %q", BackendSystem, BackendSealed, c.Keyring.Backend))
	}
	if c.SSO.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sso.timeout must be positive"))
	}
	if c.SSO.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("sso.poll_interval must be positive"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func (c *Config) expandVariables() {
	c.DataRoot = expandVars(c.DataRoot)
	c.Keyring.VaultPath = expandVars(c.Keyring.VaultPath)
	c.Keyring.KeyPath = expandVars(c.Keyring.KeyPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-((?:[^{}]|\$\{[^}]*\})*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. A default may itself
// contain one level of ${VAR}.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return expandVars(parts[2])
	})
}
