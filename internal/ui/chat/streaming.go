// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// STREAMING BUFFER
// =============================================================================

// StreamingBuffer batches streamed reply deltas between repaints.
// Deltas accumulate until either the batch size threshold is reached or
// enough time has passed since the last flush, capping the repaint rate
// during fast streams while keeping slow streams visually live.
//
// Write happens on the store's stream goroutine; Flush happens on the
// Bubble Tea loop. All operations are mutex-protected.
type StreamingBuffer struct {
	mu         sync.Mutex
	buffer     strings.Builder
	deltaCount int
	lastFlush  time.Time

	batchSize   int
	minFlushGap time.Duration
}

// NewStreamingBuffer creates a buffer with default settings: flush
// every 15 deltas or every ~33ms (30fps), whichever comes first.
func NewStreamingBuffer() *StreamingBuffer {
	return NewStreamingBufferWithConfig(15, 30)
}

// NewStreamingBufferWithConfig creates a buffer with a custom batch
// size and frame-rate cap. Out-of-range values fall back to defaults.
func NewStreamingBufferWithConfig(batchSize, maxFPS int) *StreamingBuffer {
	if batchSize <= 0 {
		batchSize = 15
	}
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = 30
	}
	return &StreamingBuffer{
		batchSize:   batchSize,
		minFlushGap: time.Duration(1000/maxFPS) * time.Millisecond,
		lastFlush:   time.Now(),
	}
}

// Write adds a streamed delta to the buffer.
func (sb *StreamingBuffer) Write(delta string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.WriteString(delta)
	sb.deltaCount++
}

// Flush returns accumulated content if a repaint is due. Returns
// ("", false) when the buffer is empty or neither threshold has been
// reached yet.
func (sb *StreamingBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !sb.shouldFlushLocked() {
		return "", false
	}

	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.deltaCount = 0
	sb.lastFlush = time.Now()
	return content, true
}

// Drain returns everything in the buffer regardless of thresholds.
// Called when a stream ends so no trailing content is left behind.
func (sb *StreamingBuffer) Drain() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.deltaCount = 0
	sb.lastFlush = time.Now()
	return content
}

// Pending reports whether the buffer holds unflushed content.
func (sb *StreamingBuffer) Pending() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buffer.Len() > 0
}

func (sb *StreamingBuffer) shouldFlushLocked() bool {
	if sb.buffer.Len() == 0 {
		return false
	}
	if sb.deltaCount >= sb.batchSize {
		return true
	}
	return time.Since(sb.lastFlush) >= sb.minFlushGap
}
