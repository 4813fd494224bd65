// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/persona-chat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports sessions to Markdown: one "## User" or
// "## Assistant" section per message, each followed by its timestamp.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export renders a session to Markdown.
func (e *MarkdownExporter) Export(sess *model.Session, messages []*model.Message) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", sess.Title()))
	sb.WriteString(fmt.Sprintf("- **Created**: %s\n", sess.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("- **Messages**: %d\n\n", len(messages)))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleUser:
			sb.WriteString("## User\n\n")
		case model.RoleAssistant:
			sb.WriteString("## Assistant\n\n")
		default:
			sb.WriteString(fmt.Sprintf("## %s\n\n", msg.Role))
		}

		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")

		if e.options.IncludeTimestamps {
			sb.WriteString(fmt.Sprintf("*%s*\n\n", msg.Timestamp.Format("2006-01-02 15:04:05")))
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}
