// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"
)

// =============================================================================
// STREAMING BUFFER TESTS
// =============================================================================

func TestBufferFlushesAtBatchSize(t *testing.T) {
	sb := NewStreamingBufferWithConfig(3, 30)

	sb.Write("a")
	sb.Write("b")
	if _, ok := sb.Flush(); ok {
		t.Error("flushed before batch size reached")
	}

	sb.Write("c")
	content, ok := sb.Flush()
	if !ok {
		t.Fatal("expected flush at batch size")
	}
	if content != "abc" {
		t.Errorf("content = %q, want abc", content)
	}
}

func TestBufferFlushesAfterInterval(t *testing.T) {
	sb := NewStreamingBufferWithConfig(100, 60)

	sb.Write("slow token")
	if _, ok := sb.Flush(); ok {
		t.Error("flushed immediately")
	}

	time.Sleep(25 * time.Millisecond)
	content, ok := sb.Flush()
	if !ok {
		t.Fatal("expected time-based flush")
	}
	if content != "slow token" {
		t.Errorf("content = %q", content)
	}
}

func TestBufferEmptyNeverFlushes(t *testing.T) {
	sb := NewStreamingBuffer()
	time.Sleep(40 * time.Millisecond)
	if _, ok := sb.Flush(); ok {
		t.Error("empty buffer flushed")
	}
	if sb.Pending() {
		t.Error("empty buffer reports pending content")
	}
}

func TestBufferDrainIgnoresThresholds(t *testing.T) {
	sb := NewStreamingBufferWithConfig(100, 1)
	sb.Write("tail")

	if got := sb.Drain(); got != "tail" {
		t.Errorf("Drain = %q, want tail", got)
	}
	if sb.Pending() {
		t.Error("buffer still pending after drain")
	}
}

func TestBufferResetsAfterFlush(t *testing.T) {
	sb := NewStreamingBufferWithConfig(2, 30)
	sb.Write("a")
	sb.Write("b")
	if _, ok := sb.Flush(); !ok {
		t.Fatal("expected flush")
	}

	sb.Write("c")
	if _, ok := sb.Flush(); ok {
		t.Error("single token flushed right after reset")
	}
}

func TestBufferConfigFallbacks(t *testing.T) {
	sb := NewStreamingBufferWithConfig(-1, 500)
	if sb.batchSize != 15 {
		t.Errorf("batchSize = %d, want default 15", sb.batchSize)
	}
	if sb.minFlushGap != time.Duration(1000/30)*time.Millisecond {
		t.Errorf("minFlushGap = %v, want 30fps default", sb.minFlushGap)
	}
}

func TestBufferConcurrentWrites(t *testing.T) {
	sb := NewStreamingBufferWithConfig(10, 60)
	done := make(chan struct{})

	go func() {
		for i := 0; i < 500; i++ {
			sb.Write("x")
		}
		close(done)
	}()

	total := 0
	for {
		if content, ok := sb.Flush(); ok {
			total += len(content)
		}
		select {
		case <-done:
			total += len(sb.Drain())
			if total != 500 {
				t.Errorf("flushed %d bytes, want 500", total)
			}
			return
		default:
		}
	}
}
