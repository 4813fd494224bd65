// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render decides how a message history is drawn.
//
// Short logs render flat; once the log crosses a fixed message-count
// threshold the selector switches to fixed-row-height windowed rendering
// with overscan, so rendering cost stays bounded no matter how long a
// session runs. Log changes and viewport resizes are independent
// signals: the first produces auto-scroll commands, the second only
// recomputes the visible window.
package render
