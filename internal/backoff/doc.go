// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backoff implements the retry delay policy used for backend
// requests and stream reconnection.
//
// Two independently-owned Controller instances exist in the runtime: a
// request controller (few retries, short base delay) and a stream
// reconnection controller (more retries, longer base delay, gentler
// multiplier). They never share attempt-count state.
package backoff
