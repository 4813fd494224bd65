// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// A Session is one persisted conversation between a user and a
// persona-configured assistant. The message log is an ordered,
// append-mostly sequence owned by the session store; this package only
// defines the shapes and the small helpers that operate on them.
//
// StreamingState tracks the lifecycle of a single in-flight assistant
// reply. Its invariants are enforced by the store, but Validate is
// provided here so tests can assert them on any snapshot.
package model
