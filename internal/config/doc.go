// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// persona-chat.
//
// Configuration comes from ~/.persona-chat/config.toml with environment
// variable overrides and built-in defaults. A fsnotify-based watcher
// supports hot reload of UI tunables while the app runs.
package config
