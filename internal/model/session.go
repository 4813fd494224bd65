// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds the metadata for one persisted conversation. The backend
// is the source of truth; the runtime treats the ID as opaque.
type Session struct {
	ID              string          `json:"id"`
	Name            string          `json:"name,omitempty"`
	PersonaID       string          `json:"persona_id,omitempty"`
	PersonaSnapshot json.RawMessage `json:"persona_snapshot,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	MessageCount    int             `json:"message_count"`
}

// NewSession creates a session with a generated ID. Used when the
// backend does not assign one (tests, offline mode).
func NewSession(persona json.RawMessage, name string) *Session {
	now := time.Now()
	return &Session{
		ID:              "sess_" + uuid.NewString(),
		Name:            name,
		PersonaSnapshot: persona,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Title returns the session name or a default.
func (s *Session) Title() string {
	if s.Name != "" {
		return s.Name
	}
	return "New Conversation"
}

// Touch updates the modification timestamp and message count.
func (s *Session) Touch(messageCount int) {
	s.UpdatedAt = time.Now()
	s.MessageCount = messageCount
}
