// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// DEFAULTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Backend.URL != "http://127.0.0.1:8787" {
		t.Errorf("Backend.URL = %q, want http://127.0.0.1:8787", cfg.Backend.URL)
	}
	if cfg.UI.RenderThreshold != 50 {
		t.Errorf("UI.RenderThreshold = %d, want 50", cfg.UI.RenderThreshold)
	}
	if cfg.Memory.Retention != 10 {
		t.Errorf("Memory.Retention = %d, want 10", cfg.Memory.Retention)
	}
	if cfg.Memory.MaxSessions != 20 {
		t.Errorf("Memory.MaxSessions = %d, want 20", cfg.Memory.MaxSessions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
version = "1.0.0"

[backend]
url = "http://localhost:9999"

[ui]
theme = "light"
render_threshold = 100

[memory]
retention = 25
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Backend.URL != "http://localhost:9999" {
		t.Errorf("Backend.URL = %q, want http://localhost:9999", cfg.Backend.URL)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("UI.Theme = %q, want light", cfg.UI.Theme)
	}
	if cfg.UI.RenderThreshold != 100 {
		t.Errorf("UI.RenderThreshold = %d, want 100", cfg.UI.RenderThreshold)
	}
	if cfg.Memory.Retention != 25 {
		t.Errorf("Memory.Retention = %d, want 25", cfg.Memory.Retention)
	}

	// Omitted fields fall back to defaults
	if cfg.UI.ItemHeight != 3 {
		t.Errorf("UI.ItemHeight = %d, want default 3", cfg.UI.ItemHeight)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want default info", cfg.Log.Level)
	}
}

func TestLoadFromPathInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadFromPath(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestSaveTOMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.UI.Theme = "light"
	cfg.Memory.Retention = 15

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.UI.Theme != "light" {
		t.Errorf("Theme = %q, want light", loaded.UI.Theme)
	}
	if loaded.Memory.Retention != 15 {
		t.Errorf("Retention = %d, want 15", loaded.Memory.Retention)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"bad url", func(c *Config) { c.Backend.URL = "::not-a-url" }, "backend.url"},
		{"zero threshold", func(c *Config) { c.UI.RenderThreshold = 0 }, "ui.render_threshold"},
		{"negative overscan", func(c *Config) { c.UI.Overscan = -1 }, "ui.overscan"},
		{"zero retention", func(c *Config) { c.Memory.Retention = 0 }, "memory.retention"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q should mention field %q", err.Error(), tt.field)
			}
		})
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PERSONA_CHAT_BACKEND_URL", "http://10.0.0.5:8787")
	t.Setenv("PERSONA_CHAT_LOG_LEVEL", "debug")
	t.Setenv("PERSONA_CHAT_RETENTION", "30")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Backend.URL != "http://10.0.0.5:8787" {
		t.Errorf("Backend.URL = %q, want env override", cfg.Backend.URL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Memory.Retention != 30 {
		t.Errorf("Memory.Retention = %d, want 30", cfg.Memory.Retention)
	}
}

func TestEnvOverrideIgnoresBadRetention(t *testing.T) {
	t.Setenv("PERSONA_CHAT_RETENTION", "banana")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Memory.Retention != 10 {
		t.Errorf("Memory.Retention = %d, want default 10", cfg.Memory.Retention)
	}
}

// =============================================================================
// WATCHER
// =============================================================================

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := SaveTOML(Default(), path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	cfg := Default()
	cfg.UI.Theme = "light"
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	select {
	case got := <-reloaded:
		if got.UI.Theme != "light" {
			t.Errorf("reloaded Theme = %q, want light", got.UI.Theme)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
