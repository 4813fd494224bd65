// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import "sync"

const (
	// DefaultThreshold is the message count at which rendering switches
	// from flat to windowed. The boundary is inclusive on the windowed
	// side: a log of exactly DefaultThreshold messages is windowed.
	DefaultThreshold = 50

	// DefaultItemHeight is the fixed row height per message.
	DefaultItemHeight = 3

	// DefaultOverscan is the number of extra rows rendered outside the
	// viewport to mask scroll latency.
	DefaultOverscan = 5
)

// =============================================================================
// MODE
// =============================================================================

// Mode is the selected rendering strategy.
type Mode int

const (
	// ModeFlat renders the full log directly.
	ModeFlat Mode = iota

	// ModeWindowed renders only the visible window plus overscan.
	ModeWindowed
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeWindowed {
		return "windowed"
	}
	return "flat"
}

// =============================================================================
// SELECTOR
// =============================================================================

// Window is the half-open range [Start, End) of message indices to
// render.
type Window struct {
	Start int
	End   int
}

// ScrollCommand instructs the environment to scroll so the row at
// TargetOffset is visible. Issued on every append and on every delta
// folded into the streaming message.
type ScrollCommand struct {
	TargetOffset int
}

// Selector owns the rendering decision and the incremental window
// state. The threshold decision depends purely on message count;
// viewport geometry only affects which window is visible.
type Selector struct {
	mu         sync.Mutex
	threshold  int
	itemHeight int
	overscan   int

	viewportHeight int
	scrollTop      int
	contentRows    int
}

// NewSelector creates a selector. Non-positive parameters fall back to
// the defaults.
func NewSelector(threshold, itemHeight, overscan int) *Selector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if itemHeight <= 0 {
		itemHeight = DefaultItemHeight
	}
	if overscan < 0 {
		overscan = DefaultOverscan
	}
	return &Selector{
		threshold:  threshold,
		itemHeight: itemHeight,
		overscan:   overscan,
	}
}

// Decide picks the rendering mode for a log of the given size.
func (s *Selector) Decide(messageCount int) Mode {
	if messageCount >= s.threshold {
		return ModeWindowed
	}
	return ModeFlat
}

// ItemHeight returns the fixed row height per message.
func (s *Selector) ItemHeight() int {
	return s.itemHeight
}

// =============================================================================
// SIGNALS
// =============================================================================

// Resize handles the viewport-size-changed signal. It never changes the
// threshold decision, only the visible window.
func (s *Selector) Resize(height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if height < 0 {
		height = 0
	}
	s.viewportHeight = height
	s.clampScrollLocked()
}

// Scroll records a user scroll position (in rows from the top).
func (s *Selector) Scroll(top int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollTop = top
	s.clampScrollLocked()
}

// LogChanged handles the log-changed signal: appends and per-delta
// updates both land here. It scrolls to the end and returns the
// auto-scroll command targeting the last message's row offset.
func (s *Selector) LogChanged(messageCount int) ScrollCommand {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contentRows = messageCount * s.itemHeight
	s.scrollTop = s.contentRows - s.viewportHeight
	if s.scrollTop < 0 {
		s.scrollTop = 0
	}

	target := 0
	if messageCount > 0 {
		target = (messageCount - 1) * s.itemHeight
	}
	return ScrollCommand{TargetOffset: target}
}

// VisibleWindow computes the message-index window to render for the
// current scroll position and viewport height. Flat mode always renders
// the whole log.
func (s *Selector) VisibleWindow(messageCount int) Window {
	if s.Decide(messageCount) == ModeFlat {
		return Window{Start: 0, End: messageCount}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.scrollTop / s.itemHeight
	visible := s.viewportHeight / s.itemHeight
	if s.viewportHeight%s.itemHeight != 0 {
		visible++
	}

	start := first - s.overscan
	if start < 0 {
		start = 0
	}
	end := first + visible + s.overscan
	if end > messageCount {
		end = messageCount
	}
	if start > end {
		start = end
	}
	return Window{Start: start, End: end}
}

// clampScrollLocked keeps the scroll position within the known content
// extent. Before any log change the extent is unknown and only the lower
// bound applies.
func (s *Selector) clampScrollLocked() {
	if s.scrollTop < 0 {
		s.scrollTop = 0
	}
	if s.contentRows == 0 {
		return
	}
	max := s.contentRows - s.viewportHeight
	if max < 0 {
		max = 0
	}
	if s.scrollTop > max {
		s.scrollTop = max
	}
}
