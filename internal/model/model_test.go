// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("hello", nil)

	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("ID should start with 'msg_', got %q", msg.ID)
	}
	if msg.Role != RoleUser {
		t.Errorf("Role = %v, want user", msg.Role)
	}
	if msg.Content != "hello" {
		t.Errorf("Content = %q, want 'hello'", msg.Content)
	}
	if msg.IsStreaming {
		t.Error("user messages should never be streaming")
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestNewAssistantPlaceholder(t *testing.T) {
	msg := NewAssistantPlaceholder(nil)

	if msg.Role != RoleAssistant {
		t.Errorf("Role = %v, want assistant", msg.Role)
	}
	if msg.Content != "" {
		t.Errorf("placeholder content should be empty, got %q", msg.Content)
	}
	if !msg.IsStreaming {
		t.Error("placeholder should start streaming")
	}
}

func TestAppendDelta(t *testing.T) {
	msg := NewAssistantPlaceholder(nil)

	msg.AppendDelta("Hello")
	msg.AppendDelta(" there!")

	if msg.Content != "Hello there!" {
		t.Errorf("Content = %q, want 'Hello there!'", msg.Content)
	}
}

func TestReplaceContentOverridesDeltas(t *testing.T) {
	msg := NewAssistantPlaceholder(nil)

	msg.AppendDelta("partial")
	msg.ReplaceContent("complete")

	if msg.Content != "complete" {
		t.Errorf("Content = %q, want 'complete'", msg.Content)
	}
}

func TestContentFrozenAfterFinalize(t *testing.T) {
	msg := NewAssistantPlaceholder(nil)
	msg.AppendDelta("done")
	msg.FinalizeStream()

	msg.AppendDelta(" more")
	msg.ReplaceContent("other")

	if msg.Content != "done" {
		t.Errorf("finalized content mutated: %q", msg.Content)
	}
}

func TestPreview(t *testing.T) {
	msg := NewUserMessage("short", nil)
	if got := msg.Preview(50); got != "short" {
		t.Errorf("Preview = %q, want 'short'", got)
	}

	msg = NewUserMessage(strings.Repeat("a", 100), nil)
	got := msg.Preview(10)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated preview should end with ellipsis, got %q", got)
	}
	if len(got) > 10 {
		t.Errorf("Preview exceeded width: %q", got)
	}
}

// =============================================================================
// LOG HELPER TESTS
// =============================================================================

func TestFindMessage(t *testing.T) {
	log := []*Message{
		NewUserMessage("a", nil),
		NewUserMessage("b", nil),
	}

	if idx := FindMessage(log, log[1].ID); idx != 1 {
		t.Errorf("FindMessage = %d, want 1", idx)
	}
	if idx := FindMessage(log, "missing"); idx != -1 {
		t.Errorf("FindMessage(missing) = %d, want -1", idx)
	}
}

func TestNearestPrecedingUser(t *testing.T) {
	user := NewUserMessage("question", nil)
	assistant := NewAssistantPlaceholder(nil)
	log := []*Message{user, assistant}

	if got := NearestPrecedingUser(log, 1); got != user {
		t.Error("should find the user message before index 1")
	}
	if got := NearestPrecedingUser(log, 0); got != nil {
		t.Error("no user message precedes index 0")
	}
}

func TestNearestPrecedingUserNoneExists(t *testing.T) {
	log := []*Message{NewAssistantPlaceholder(nil)}
	if got := NearestPrecedingUser(log, 1); got != nil {
		t.Error("log with only assistant messages has no preceding user")
	}
}

func TestCloneLogIsIndependent(t *testing.T) {
	log := []*Message{NewUserMessage("original", nil)}
	cloned := CloneLog(log)

	cloned[0].Content = "mutated"
	if log[0].Content != "original" {
		t.Error("clone mutation leaked into original log")
	}
}

// =============================================================================
// STREAMING STATE TESTS
// =============================================================================

func TestStreamingStateValidate(t *testing.T) {
	st := NewStreamingState()
	if err := st.Validate(); err != nil {
		t.Errorf("initial state should be valid: %v", err)
	}

	st.IsStreaming = true
	if err := st.Validate(); err == nil {
		t.Error("streaming without message id should be invalid")
	}

	st.StreamingMessageID = "msg_x"
	if err := st.Validate(); err != nil {
		t.Errorf("streaming with message id should be valid: %v", err)
	}

	st.IsStreaming = false
	if err := st.Validate(); err == nil {
		t.Error("idle state with lingering message id should be invalid")
	}
}
