// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/persona-chat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete persona-chat configuration.
type Config struct {
	Version string `toml:"version"`

	// Backend configuration
	Backend BackendConfig `toml:"backend"`

	// UI configuration
	UI UIConfig `toml:"ui"`

	// Memory configuration
	Memory MemoryConfig `toml:"memory"`

	// Log configuration
	Log LogConfig `toml:"log"`
}

// BackendConfig contains backend server configuration.
type BackendConfig struct {
	// URL is the base URL of the persona backend server
	URL string `toml:"url"`
	// RequestTimeoutSecs is the timeout for non-streaming requests in seconds
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
	// RateLimit is the allowed requests per second (0 = library default)
	RateLimit float64 `toml:"rate_limit"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// RenderThreshold is the message count at which the chat log switches
	// from flat rendering to windowed rendering
	RenderThreshold int `toml:"render_threshold"`
	// ItemHeight is the fixed row height (in terminal rows) used for
	// windowed rendering math
	ItemHeight int `toml:"item_height"`
	// Overscan is the number of extra rows rendered above and below the
	// visible window
	Overscan int `toml:"overscan"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode"`
}

// MemoryConfig contains in-memory session cache configuration.
type MemoryConfig struct {
	// Retention is the number of recent messages retained per cached session
	Retention int `toml:"retention"`
	// MaxSessions is the maximum number of sessions kept in memory
	MaxSessions int `toml:"max_sessions"`
	// SweepIntervalMins is how often the background cleanup sweep runs, in minutes
	SweepIntervalMins int `toml:"sweep_interval_mins"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error"
	Level string `toml:"level"`
	// Format is the log output format: "text" or "json"
	Format string `toml:"format"`
	// File is the log file path (empty = stderr)
	File string `toml:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Backend: BackendConfig{
			URL:                "http://127.0.0.1:8787",
			RequestTimeoutSecs: 30,
			RateLimit:          0,
		},

		UI: UIConfig{
			Theme:           "dark",
			RenderThreshold: 50,
			ItemHeight:      3,
			Overscan:        5,
			CompactMode:     false,
		},

		Memory: MemoryConfig{
			Retention:         10,
			MaxSessions:       20,
			SweepIntervalMins: 5,
		},

		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the persona-chat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".persona-chat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.persona-chat/config.toml, falling back to
// defaults when the file is absent. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML config %s: %w", path, err)
	}

	cfg.SetDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SetDefaults fills in any missing or zero-value configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	// Backend
	if c.Backend.URL == "" {
		c.Backend.URL = defaults.Backend.URL
	}
	if c.Backend.RequestTimeoutSecs == 0 {
		c.Backend.RequestTimeoutSecs = defaults.Backend.RequestTimeoutSecs
	}

	// UI
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.UI.RenderThreshold == 0 {
		c.UI.RenderThreshold = defaults.UI.RenderThreshold
	}
	if c.UI.ItemHeight == 0 {
		c.UI.ItemHeight = defaults.UI.ItemHeight
	}
	if c.UI.Overscan == 0 {
		c.UI.Overscan = defaults.UI.Overscan
	}

	// Memory
	if c.Memory.Retention == 0 {
		c.Memory.Retention = defaults.Memory.Retention
	}
	if c.Memory.MaxSessions == 0 {
		c.Memory.MaxSessions = defaults.Memory.MaxSessions
	}
	if c.Memory.SweepIntervalMins == 0 {
		c.Memory.SweepIntervalMins = defaults.Memory.SweepIntervalMins
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# persona-chat configuration file")
	fmt.Fprintln(&buf, "# Generated by persona-chat - edit with care")
	fmt.Fprintln(&buf, "")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Backend
	if c.Backend.URL != "" {
		if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "backend.url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Backend.URL),
			})
		}
	}
	if c.Backend.RequestTimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.request_timeout_secs",
			Message: "must be non-negative",
		})
	}
	if c.Backend.RateLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.rate_limit",
			Message: "must be non-negative",
		})
	}

	// UI
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}
	if c.UI.RenderThreshold < 1 {
		errs = append(errs, ValidationError{
			Field:   "ui.render_threshold",
			Message: "must be at least 1",
		})
	}
	if c.UI.ItemHeight < 1 {
		errs = append(errs, ValidationError{
			Field:   "ui.item_height",
			Message: "must be at least 1",
		})
	}
	if c.UI.Overscan < 0 {
		errs = append(errs, ValidationError{
			Field:   "ui.overscan",
			Message: "must be non-negative",
		})
	}

	// Memory
	if c.Memory.Retention < 1 {
		errs = append(errs, ValidationError{
			Field:   "memory.retention",
			Message: "must be at least 1",
		})
	}
	if c.Memory.MaxSessions < 1 {
		errs = append(errs, ValidationError{
			Field:   "memory.max_sessions",
			Message: "must be at least 1",
		})
	}
	if c.Memory.SweepIntervalMins < 1 {
		errs = append(errs, ValidationError{
			Field:   "memory.sweep_interval_mins",
			Message: "must be at least 1",
		})
	}

	// Log
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: text, json", c.Log.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - PERSONA_CHAT_BACKEND_URL: overrides backend.url
//   - PERSONA_CHAT_THEME: overrides ui.theme
//   - PERSONA_CHAT_LOG_LEVEL: overrides log.level
//   - PERSONA_CHAT_LOG_FORMAT: overrides log.format
//   - PERSONA_CHAT_RETENTION: overrides memory.retention
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("PERSONA_CHAT_BACKEND_URL"); u != "" {
		c.Backend.URL = u
	}
	if theme := os.Getenv("PERSONA_CHAT_THEME"); theme != "" {
		c.UI.Theme = theme
	}
	if level := os.Getenv("PERSONA_CHAT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("PERSONA_CHAT_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	if retention := os.Getenv("PERSONA_CHAT_RETENTION"); retention != "" {
		if n, err := strconv.Atoi(retention); err == nil && n > 0 {
			c.Memory.Retention = n
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// RequestTimeout returns the backend request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSecs) * time.Second
}

// SweepInterval returns the memory sweep interval as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Memory.SweepIntervalMins) * time.Minute
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
