// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the plain-terminal REPL used when stdout is not
// a TTY capable of running the full TUI, or when --plain is given.
//
// The REPL drives the same session store as the TUI; streamed reply
// deltas are printed as they arrive.
package cli
