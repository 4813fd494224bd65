// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/persona-chat/internal/model"
)

// EnvelopeVersion identifies the JSON export format revision.
const EnvelopeVersion = 1

// =============================================================================
// JSON EXPORTER
// =============================================================================

// Envelope is the JSON export shape. It always includes the complete
// session data so the export can be re-imported faithfully.
type Envelope struct {
	Version    int              `json:"version"`
	Session    *model.Session   `json:"session"`
	Messages   []*model.Message `json:"messages"`
	ExportedAt time.Time        `json:"exportedAt"`
}

// JSONExporter exports sessions to the JSON envelope format.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Export renders a session to an indented JSON envelope.
func (e *JSONExporter) Export(sess *model.Session, messages []*model.Message) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if messages == nil {
		messages = []*model.Message{}
	}

	return json.MarshalIndent(Envelope{
		Version:    EnvelopeVersion,
		Session:    sess,
		Messages:   messages,
		ExportedAt: time.Now().UTC(),
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
