// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the interactive chat TUI built on Bubble Tea.
//
// The model subscribes to the session store and redraws from published
// snapshots; it never mutates session state directly. Streamed deltas
// are batched through a StreamingBuffer so the viewport repaints at a
// capped frame rate instead of once per token.
package chat
