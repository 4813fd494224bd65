// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/jeranaias/persona-chat/internal/model"
)

// fixtureSession returns a session with a short user/assistant exchange.
func fixtureSession() (*model.Session, []*model.Message) {
	sess := model.NewSession(nil, "Test Chat")
	user := model.NewUserMessage("Hello", nil)
	assistant := model.NewAssistantPlaceholder(nil)
	assistant.AppendDelta("Hello there!")
	assistant.FinalizeStream()
	return sess, []*model.Message{user, assistant}
}

// =============================================================================
// JSON EXPORT TESTS
// =============================================================================

func TestJSONEnvelope(t *testing.T) {
	sess, messages := fixtureSession()

	data, err := NewJSONExporter().Export(sess, messages)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("exported JSON does not round-trip: %v", err)
	}
	if env.Version != EnvelopeVersion {
		t.Errorf("version = %d, want %d", env.Version, EnvelopeVersion)
	}
	if env.Session.ID != sess.ID {
		t.Errorf("session id = %q", env.Session.ID)
	}
	if len(env.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(env.Messages))
	}
	if env.ExportedAt.IsZero() {
		t.Error("exportedAt not set")
	}
}

func TestJSONExportNilSession(t *testing.T) {
	if _, err := NewJSONExporter().Export(nil, nil); err == nil {
		t.Error("nil session should fail")
	}
}

// =============================================================================
// MARKDOWN EXPORT TESTS
// =============================================================================

func TestMarkdownSections(t *testing.T) {
	sess, messages := fixtureSession()

	data, err := NewMarkdownExporter(nil).Export(sess, messages)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	md := string(data)

	if !strings.Contains(md, "# Test Chat") {
		t.Error("missing title")
	}
	if !strings.Contains(md, "## User\n\nHello") {
		t.Error("missing user section")
	}
	if !strings.Contains(md, "## Assistant\n\nHello there!") {
		t.Error("missing assistant section")
	}

	// Each section is followed by its timestamp.
	if strings.Count(md, "*"+messages[0].Timestamp.Format("2006-01-02")) == 0 {
		t.Error("missing per-message timestamps")
	}
}

func TestMarkdownWithoutTimestamps(t *testing.T) {
	sess, messages := fixtureSession()
	opts := DefaultOptions()
	opts.IncludeTimestamps = false

	data, _ := NewMarkdownExporter(opts).Export(sess, messages)
	if strings.Contains(string(data), messages[0].Timestamp.Format("15:04:05")) {
		t.Error("timestamps present despite option")
	}
}

// =============================================================================
// HTML EXPORT TESTS
// =============================================================================

func TestHTMLExport(t *testing.T) {
	sess, _ := fixtureSession()
	assistant := model.NewAssistantPlaceholder(nil)
	assistant.AppendDelta("Use this:\n\n```go\nfmt.Println(\"hi\")\n```\n")
	assistant.FinalizeStream()
	messages := []*model.Message{assistant}

	data, err := NewHTMLExporter(nil).Export(sess, messages)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	page := string(data)

	if !strings.Contains(page, "<!DOCTYPE html>") {
		t.Error("not a standalone page")
	}
	if !strings.Contains(page, "code-block") {
		t.Error("code block not rendered")
	}
	if strings.Contains(page, "```") {
		t.Error("raw fences leaked into output")
	}
}

func TestHTMLEscapesContent(t *testing.T) {
	sess, _ := fixtureSession()
	msg := model.NewUserMessage("<script>alert(1)</script>", nil)

	data, _ := NewHTMLExporter(nil).Export(sess, []*model.Message{msg})
	if strings.Contains(string(data), "<script>alert") {
		t.Error("content not escaped")
	}
}

// =============================================================================
// FILE EXPORT TESTS
// =============================================================================

func TestExportToFile(t *testing.T) {
	sess, messages := fixtureSession()
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()

	path, err := ExportToFile(sess, messages, NewJSONExporter(), opts)
	if err != nil {
		t.Fatalf("ExportToFile: %v", err)
	}
	if !strings.HasSuffix(path, ".json") {
		t.Errorf("path = %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("exported file missing: %v", err)
	}
}
