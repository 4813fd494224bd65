// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/persona-chat/internal/logging"
	"github.com/jeranaias/persona-chat/internal/model"
	"github.com/jeranaias/persona-chat/internal/render"
	"github.com/jeranaias/persona-chat/internal/store"
)

// =============================================================================
// MESSAGES
// =============================================================================

// snapshotMsg delivers a store snapshot to the Bubble Tea loop.
type snapshotMsg store.Snapshot

// flushTickMsg drives the streaming repaint cadence.
type flushTickMsg struct{}

// commandErrMsg carries a failed store command's error.
type commandErrMsg struct{ err error }

// =============================================================================
// MODEL
// =============================================================================

// Model is the chat TUI. It renders store snapshots and translates key
// presses into store commands; all session state lives in the store.
type Model struct {
	store *store.Store
	sel   *render.Selector

	input    textarea.Model
	viewport viewport.Model
	spin     spinner.Model
	keys     keyMap

	buf     *StreamingBuffer
	dirty   *render.DirtyTracker
	md      *glamour.TermRenderer
	mdCache map[string]string

	snaps chan store.Snapshot
	unsub func()

	snap        store.Snapshot
	streamedLen int

	width  int
	height int
	ready  bool

	statusMsg string
}

// NewModel creates the chat TUI bound to a store.
func NewModel(s *store.Store, sel *render.Selector) Model {
	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.SetHeight(3)
	input.CharLimit = 0
	input.ShowLineNumbers = false
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = assistantLabelStyle

	snaps := make(chan store.Snapshot, 8)
	unsub := s.Subscribe(func(sn store.Snapshot) {
		// Keep only the freshest snapshot when the UI falls behind.
		for {
			select {
			case snaps <- sn:
				return
			default:
				select {
				case <-snaps:
				default:
				}
			}
		}
	})

	return Model{
		store:   s,
		sel:     sel,
		input:   input,
		spin:    spin,
		keys:    defaultKeyMap(),
		buf:     NewStreamingBuffer(),
		dirty:   render.NewDirtyTracker(),
		mdCache: make(map[string]string),
		snaps:   snaps,
		unsub:   unsub,
		snap:    s.Snapshot(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spin.Tick,
		waitSnapshot(m.snaps),
		flushTick(),
	)
}

func waitSnapshot(snaps chan store.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-snaps)
	}
}

func flushTick() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(time.Time) tea.Msg {
		return flushTickMsg{}
	})
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refreshViewport(true)

	case snapshotMsg:
		m.applySnapshot(store.Snapshot(msg))
		cmds = append(cmds, waitSnapshot(m.snaps))

	case flushTickMsg:
		if _, ok := m.buf.Flush(); ok {
			m.refreshViewport(true)
		}
		cmds = append(cmds, flushTick())

	case commandErrMsg:
		m.statusMsg = commandErrText(msg.err)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		handled, cmd := m.handleKey(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		if handled {
			return m, tea.Batch(cmds...)
		}
	}

	// Forward remaining messages to the focused widgets.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.sel.Scroll(m.viewport.YOffset)

	return m, tea.Batch(cmds...)
}

// handleKey dispatches a key press. Returns handled=true when the key
// was consumed as a command and must not reach the input widget.
func (m *Model) handleKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	streaming := m.snap.Streaming.IsStreaming

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.unsub()
		return true, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if streaming {
			s := m.store
			return true, func() tea.Msg {
				s.CancelStream()
				return nil
			}
		}
		m.statusMsg = ""
		return true, nil

	case key.Matches(msg, m.keys.Send):
		content := strings.TrimSpace(m.input.Value())
		if content == "" {
			return true, nil
		}
		m.input.Reset()
		m.statusMsg = ""
		s := m.store
		return true, func() tea.Msg {
			if err := s.SendMessage(context.Background(), content); err != nil {
				return commandErrMsg{err}
			}
			return nil
		}

	case key.Matches(msg, m.keys.Regenerate):
		id := lastAssistantID(m.snap.Log)
		if id == "" {
			m.statusMsg = "nothing to regenerate"
			return true, nil
		}
		s := m.store
		return true, func() tea.Msg {
			if err := s.RegenerateMessage(context.Background(), id); err != nil {
				return commandErrMsg{err}
			}
			return nil
		}

	case key.Matches(msg, m.keys.Copy):
		id := lastAssistantID(m.snap.Log)
		if id == "" {
			m.statusMsg = "nothing to copy"
			return true, nil
		}
		if err := m.store.CopyMessage(id); err != nil {
			m.statusMsg = commandErrText(err)
		} else {
			m.statusMsg = "copied reply"
		}
		return true, nil

	case key.Matches(msg, m.keys.Delete):
		if len(m.snap.Log) == 0 {
			return true, nil
		}
		id := m.snap.Log[len(m.snap.Log)-1].ID
		if err := m.store.DeleteMessage(id); err != nil {
			m.statusMsg = commandErrText(err)
		}
		return true, nil

	case key.Matches(msg, m.keys.Clear):
		if err := m.store.ClearSession(); err != nil {
			m.statusMsg = commandErrText(err)
		}
		return true, nil

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.sel.Scroll(m.viewport.YOffset)
		return true, cmd
	}

	return false, nil
}

// applySnapshot folds a store snapshot into the UI. Streamed deltas go
// through the buffer; everything else repaints immediately.
func (m *Model) applySnapshot(snap store.Snapshot) {
	wasStreaming := m.snap.Streaming.IsStreaming
	m.snap = snap

	if snap.Streaming.IsStreaming {
		content := snap.Streaming.CurrentStreamContent
		if len(content) >= m.streamedLen {
			m.buf.Write(content[m.streamedLen:])
			m.streamedLen = len(content)
		} else {
			// Final replaced the accumulated deltas; repaint now.
			m.streamedLen = len(content)
			m.buf.Drain()
			m.refreshViewport(true)
			return
		}
		if _, ok := m.buf.Flush(); ok {
			m.refreshViewport(true)
		}
		return
	}

	// Stream ended or a non-streaming change landed.
	m.streamedLen = 0
	m.buf.Drain()
	if wasStreaming && snap.Streaming.LastError != "" {
		m.statusMsg = snap.Streaming.LastError
	}
	m.refreshViewport(true)
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.ready = true

	inputHeight := 5 // textarea + border
	chromeHeight := 3 // header + status line
	vpHeight := height - inputHeight - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if m.viewport.Width == 0 {
		m.viewport = viewport.New(width, vpHeight)
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(width - 4)
	m.sel.Resize(vpHeight)

	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		logging.Warnf("markdown renderer unavailable: %v", err)
	} else {
		m.md = md
		m.mdCache = make(map[string]string)
	}
	m.dirty.Force()
}

// lastAssistantID returns the id of the most recent finished assistant
// message, or "".
func lastAssistantID(log []*model.Message) string {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Role == model.RoleAssistant && !log[i].IsStreaming {
			return log[i].ID
		}
	}
	return ""
}

// commandErrText maps store errors to short status-line text.
func commandErrText(err error) string {
	switch {
	case errors.Is(err, store.ErrStreamBusy):
		return "wait for the current reply to finish"
	case errors.Is(err, store.ErrNoActiveSession):
		return "no active session"
	case errors.Is(err, store.ErrNoPriorUserMessage):
		return "nothing to resend from"
	case errors.Is(err, store.ErrMessageNotFound):
		return "message is gone"
	default:
		return err.Error()
	}
}
