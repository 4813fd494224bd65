// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the persona backend.
//
// The backend owns durable sessions and messages; this package consumes
// its CRUD surface and the streaming /chat endpoint. Streamed replies
// arrive as SSE-style lines ("data: <json>", terminated by
// "data: [DONE]") which the Decoder turns into a sequence of typed
// events. Malformed lines are skipped, never fatal.
package backend
