// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/persona-chat/internal/model"
	"github.com/jeranaias/persona-chat/internal/render"
)

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Starting persona-chat..."
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	b.WriteString(inputBorderStyle.Width(m.width - 2).Render(m.input.View()))
	b.WriteByte('\n')
	b.WriteString(m.statusView())
	return b.String()
}

func (m Model) headerView() string {
	title := "persona-chat"
	if m.snap.Session != nil {
		title = m.snap.Session.Title()
	}
	status := statusLabel(m.snap.Streaming.ConnectionStatus.String())
	if m.snap.Streaming.IsStreaming {
		status = m.spin.View() + status
	}
	return headerStyle.Render(title) + statusStyle.Render(status)
}

func (m Model) statusView() string {
	if m.statusMsg != "" {
		return errorStyle.Render(m.statusMsg)
	}

	parts := []string{
		fmt.Sprintf("%d messages", len(m.snap.Log)),
		m.sel.Decide(len(m.snap.Log)).String(),
		"enter send · esc cancel · ctrl+r regen · ctrl+y copy · ctrl+c quit",
	}
	return statusStyle.Render(strings.Join(parts, "  │  "))
}

// =============================================================================
// LOG RENDERING
// =============================================================================

// refreshViewport re-renders the log into the viewport. The dirty
// tracker skips the SetContent when nothing visible changed.
func (m *Model) refreshViewport(scrollToEnd bool) {
	content := m.renderLog()
	if m.dirty.ShouldRedraw(content) {
		m.viewport.SetContent(content)
	}
	if scrollToEnd {
		m.viewport.GotoBottom()
		m.sel.LogChanged(len(m.snap.Log))
	}
}

// renderLog renders the visible slice of the message log. Below the
// windowing threshold the whole log is rendered; above it only the
// visible window plus overscan.
func (m *Model) renderLog() string {
	log := m.snap.Log
	if len(log) == 0 {
		return streamingStyle.Render("No messages yet. Say something.")
	}

	win := m.sel.VisibleWindow(len(log))

	var b strings.Builder
	if win.Start > 0 {
		b.WriteString(timestampStyle.Render(fmt.Sprintf("··· %d earlier messages ···", win.Start)))
		b.WriteString("\n\n")
	}
	for i := win.Start; i < win.End; i++ {
		b.WriteString(m.renderMessage(log[i]))
		b.WriteByte('\n')
	}
	if win.End < len(log) {
		b.WriteString(timestampStyle.Render(fmt.Sprintf("··· %d later messages ···", len(log)-win.End)))
		b.WriteByte('\n')
	}
	return b.String()
}

// renderMessage renders one message: label line, then content.
// Finished assistant replies go through the markdown renderer; a reply
// still streaming is shown raw so partial markdown doesn't glitch.
func (m *Model) renderMessage(msg *model.Message) string {
	label := userLabelStyle.Render(msg.Role.DisplayName())
	if msg.Role == model.RoleAssistant {
		label = assistantLabelStyle.Render(msg.Role.DisplayName())
	}
	ts := timestampStyle.Render(msg.Timestamp.Format("15:04"))

	var body string
	switch {
	case msg.IsStreaming && msg.Content == "":
		body = streamingStyle.Render(m.spin.View() + " thinking...")
	case msg.IsStreaming:
		body = streamingStyle.Render(msg.Content + "▌")
	case msg.Role == model.RoleAssistant:
		body = m.renderMarkdown(msg)
	default:
		body = msg.Content
	}

	return label + " " + ts + "\n" + body + "\n"
}

// renderMarkdown renders assistant markdown with a per-message cache;
// frozen content renders identically every frame.
func (m *Model) renderMarkdown(msg *model.Message) string {
	if m.md == nil {
		return msg.Content
	}
	key := msg.ID + ":" + strconv.Itoa(len(msg.Content))
	if cached, ok := m.mdCache[key]; ok {
		return cached
	}
	out, err := m.md.Render(msg.Content)
	if err != nil {
		return msg.Content
	}
	out = strings.TrimRight(out, "\n")
	m.mdCache[key] = out
	return out
}

// RenderMode exposes the active render strategy for the status line.
func (m Model) RenderMode() render.Mode {
	return m.sel.Decide(len(m.snap.Log))
}
