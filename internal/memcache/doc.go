// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package memcache bounds the message data retained for sessions visited
// during one run of the application.
//
// The manager keeps a side-cache of the most recent messages per tracked
// session and evicts least-recently-touched sessions beyond a capacity.
// It never touches the session store's live log; the backend remains the
// durable store.
package memcache
