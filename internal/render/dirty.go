// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// =============================================================================
// DIRTY TRACKER
// =============================================================================

// DirtyTracker skips redundant redraws during streaming. Deltas can
// arrive far faster than the screen needs repainting; a content hash
// detects whether the rendered history actually changed.
//
// Thread-safety: all operations are protected by a mutex.
type DirtyTracker struct {
	mu       sync.Mutex
	lastHash string
	updates  uint64
	skips    uint64
}

// NewDirtyTracker creates a tracker. The first ShouldRedraw call always
// returns true.
func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{}
}

// ShouldRedraw reports whether the content differs from the last redraw.
func (d *DirtyTracker) ShouldRedraw(content string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.updates++

	hash := hashContent(content)
	if d.updates > 1 && hash == d.lastHash {
		d.skips++
		return false
	}
	d.lastHash = hash
	return true
}

// Force makes the next ShouldRedraw return true regardless of content.
// Use after a resize, where the same content needs a fresh layout.
func (d *DirtyTracker) Force() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastHash = ""
}

// Stats returns total update attempts and how many were skipped.
func (d *DirtyTracker) Stats() (updates, skips uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updates, d.skips
}

// hashContent hashes rendered content for change detection.
func hashContent(content string) string {
	if content == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
