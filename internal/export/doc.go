// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders sessions to downloadable formats: a JSON
// envelope for re-import, Markdown for sharing, and standalone HTML with
// highlighted code blocks.
package export
