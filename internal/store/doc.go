// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store is the session orchestrator: it owns the active session,
// its message log, and the streaming lifecycle, and publishes immutable
// snapshots to subscribers after every state change.
//
// All commands are safe for concurrent use. At most one reply stream is
// active at a time; commands that would start a second stream are
// rejected with ErrStreamBusy.
package store
