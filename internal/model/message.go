// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a session's log.
//
// Content is mutable only while the owning stream is active; once the
// stream finishes the content is frozen until the message is deleted or
// regenerated.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// PersonaSnapshot is the persona the message was generated against.
	// Opaque to the runtime; the backend defines its shape.
	PersonaSnapshot json.RawMessage `json:"persona_snapshot,omitempty"`

	// IsStreaming marks an assistant placeholder whose content is still
	// being folded from deltas. Not persisted.
	IsStreaming bool `json:"-"`
}

// NewUserMessage creates a user message with a generated ID.
func NewUserMessage(content string, persona json.RawMessage) *Message {
	return &Message{
		ID:              "msg_" + uuid.NewString(),
		Role:            RoleUser,
		Content:         content,
		Timestamp:       time.Now(),
		PersonaSnapshot: persona,
	}
}

// NewAssistantPlaceholder creates an empty assistant message that a
// stream will fold deltas into.
func NewAssistantPlaceholder(persona json.RawMessage) *Message {
	return &Message{
		ID:              "msg_" + uuid.NewString(),
		Role:            RoleAssistant,
		Timestamp:       time.Now(),
		PersonaSnapshot: persona,
		IsStreaming:     true,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendDelta appends streamed content to an in-progress message.
// No-op once the stream has finished.
func (m *Message) AppendDelta(delta string) {
	if m.IsStreaming {
		m.Content += delta
	}
}

// ReplaceContent installs the server's canonical final text, discarding
// any client-accumulated deltas. No-op once the stream has finished.
func (m *Message) ReplaceContent(content string) {
	if m.IsStreaming {
		m.Content = content
	}
}

// FinalizeStream freezes the message content.
func (m *Message) FinalizeStream() {
	m.IsStreaming = false
}

// Preview returns a display-width-bounded preview of the content, with
// an ellipsis when truncated. Width is measured in terminal cells so
// wide runes count correctly.
func (m *Message) Preview(maxWidth int) string {
	if runewidth.StringWidth(m.Content) <= maxWidth {
		return m.Content
	}
	return runewidth.Truncate(m.Content, maxWidth, "...")
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Clone returns a copy of the message. Subscribers receive clones so
// they can never mutate the store's log.
func (m *Message) Clone() *Message {
	cp := *m
	return &cp
}

// =============================================================================
// LOG HELPERS
// =============================================================================

// CloneLog deep-copies a message log for read-only snapshots.
func CloneLog(log []*Message) []*Message {
	out := make([]*Message, len(log))
	for i, msg := range log {
		out[i] = msg.Clone()
	}
	return out
}

// FindMessage returns the index of the message with the given ID, or -1.
func FindMessage(log []*Message, id string) int {
	for i, msg := range log {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// NearestPrecedingUser returns the closest user message strictly before
// index idx, or nil if none exists.
func NearestPrecedingUser(log []*Message, idx int) *Message {
	if idx > len(log) {
		idx = len(log)
	}
	for i := idx - 1; i >= 0; i-- {
		if log[i].Role == RoleUser {
			return log[i]
		}
	}
	return nil
}
