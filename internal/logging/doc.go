// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging wires logrus for the whole application. Init is called
// once from main; package-level helpers are safe to call before Init and
// simply drop output.
package logging
