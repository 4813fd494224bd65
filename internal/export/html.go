// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	htmlformatter "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromastyles "github.com/alecthomas/chroma/v2/styles"

	"github.com/jeranaias/persona-chat/internal/model"
)

// codeBlockRegex matches fenced code blocks with an optional language.
var codeBlockRegex = regexp.MustCompile("```([a-zA-Z0-9_+-]*)\n([\\s\\S]*?)```")

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports sessions to a standalone HTML page with
// chroma-highlighted code blocks.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export renders a session to HTML.
func (e *HTMLExporter) Export(sess *model.Session, messages []*model.Message) ([]byte, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	sb.WriteString(fmt.Sprintf("<title>%s</title>\n", html.EscapeString(sess.Title())))
	sb.WriteString("<meta charset=\"utf-8\">\n<style>\n")
	sb.WriteString(pageCSS)
	sb.WriteString("</style>\n</head>\n<body>\n")

	sb.WriteString(fmt.Sprintf("<h1>%s</h1>\n", html.EscapeString(sess.Title())))
	sb.WriteString(fmt.Sprintf("<p class=\"meta\">Created %s &middot; %d messages</p>\n",
		sess.CreatedAt.Format(time.RFC3339), len(messages)))

	for _, msg := range messages {
		class := "user"
		if msg.Role == model.RoleAssistant {
			class = "assistant"
		}
		sb.WriteString(fmt.Sprintf("<div class=\"message %s\">\n", class))
		sb.WriteString(fmt.Sprintf("<div class=\"role\">%s</div>\n", html.EscapeString(msg.Role.DisplayName())))
		sb.WriteString(e.formatContent(msg.Content))
		if e.options.IncludeTimestamps {
			sb.WriteString(fmt.Sprintf("<div class=\"timestamp\">%s</div>\n",
				msg.Timestamp.Format("2006-01-02 15:04:05")))
		}
		sb.WriteString("</div>\n")
	}

	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

// formatContent escapes message text and replaces fenced code blocks
// with chroma-highlighted HTML.
func (e *HTMLExporter) formatContent(content string) string {
	var sb strings.Builder

	last := 0
	for _, loc := range codeBlockRegex.FindAllStringSubmatchIndex(content, -1) {
		sb.WriteString(textToHTML(content[last:loc[0]]))

		lang := content[loc[2]:loc[3]]
		code := content[loc[4]:loc[5]]
		sb.WriteString(highlightBlock(code, lang))

		last = loc[1]
	}
	sb.WriteString(textToHTML(content[last:]))

	return sb.String()
}

// textToHTML escapes plain text and converts newlines to paragraphs.
func textToHTML(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	var sb strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		escaped := html.EscapeString(para)
		escaped = strings.ReplaceAll(escaped, "\n", "<br>\n")
		sb.WriteString("<p>" + escaped + "</p>\n")
	}
	return sb.String()
}

// highlightBlock renders one code block with chroma. Falls back to an
// escaped <pre> when highlighting fails.
func highlightBlock(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromastyles.Get("monokai")
	if style == nil {
		style = chromastyles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "<pre><code>" + html.EscapeString(code) + "</code></pre>\n"
	}

	formatter := htmlformatter.New(htmlformatter.WithClasses(false), htmlformatter.Standalone(false))
	var sb strings.Builder
	if err := formatter.Format(&sb, style, iterator); err != nil {
		return "<pre><code>" + html.EscapeString(code) + "</code></pre>\n"
	}
	return "<div class=\"code-block\">" + sb.String() + "</div>\n"
}

// pageCSS is the embedded stylesheet for exported pages.
const pageCSS = `
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; background: #1e1e2e; color: #cdd6f4; }
h1 { border-bottom: 1px solid #45475a; padding-bottom: 0.5rem; }
.meta { color: #7f849c; font-size: 0.9rem; }
.message { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 8px; }
.message.user { background: #313244; }
.message.assistant { background: #1e2030; border: 1px solid #45475a; }
.role { font-weight: 600; margin-bottom: 0.5rem; color: #89b4fa; }
.message.user .role { color: #a6e3a1; }
.timestamp { margin-top: 0.5rem; color: #7f849c; font-size: 0.8rem; }
.code-block { margin: 0.5rem 0; border-radius: 6px; overflow-x: auto; }
.code-block pre { margin: 0; padding: 0.75rem; }
`
