// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/persona-chat/internal/backend"
	"github.com/jeranaias/persona-chat/internal/config"
	"github.com/jeranaias/persona-chat/internal/export"
	"github.com/jeranaias/persona-chat/internal/memcache"
	"github.com/jeranaias/persona-chat/internal/model"
	"github.com/jeranaias/persona-chat/internal/store"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("213")).
			Bold(true)
)

// =============================================================================
// REPL
// =============================================================================

// REPL is the plain-terminal chat loop.
type REPL struct {
	store  *store.Store
	cache  *memcache.Manager
	cfg    *config.Config
	client *backend.Client
	input  *Input

	// printedLen tracks how much of the current streamed reply has been
	// written to stdout. Reset before each send; the snapshot
	// subscription prints the suffix past this point.
	printedLen int
}

// NewREPL creates a REPL over the given store.
func NewREPL(s *store.Store, cache *memcache.Manager, cfg *config.Config) *REPL {
	return &REPL{store: s, cache: cache, cfg: cfg}
}

// WithClient attaches a backend client for session management commands
// that bypass the store (/sessions, /delete, /rename).
func (r *REPL) WithClient(c *backend.Client) *REPL {
	r.client = c
	return r
}

// Run starts the REPL and blocks until the user exits.
func (r *REPL) Run(ctx context.Context) error {
	r.input = NewInput()
	defer r.input.Close()

	fmt.Println(assistantStyle.Render("persona-chat"))
	if r.cfg != nil {
		fmt.Println(infoStyle.Render("backend: " + r.cfg.Backend.URL))
	}
	fmt.Println(infoStyle.Render("Type a message, /help for commands, /quit to exit."))
	fmt.Println()

	if _, err := r.store.CreateSession(ctx, nil, ""); err != nil {
		return fmt.Errorf("could not create session: %w", err)
	}

	// Print streamed reply deltas as they arrive.
	unsub := r.store.Subscribe(func(snap store.Snapshot) {
		if !snap.Streaming.IsStreaming {
			return
		}
		content := snap.Streaming.CurrentStreamContent
		if len(content) > r.printedLen {
			fmt.Print(content[r.printedLen:])
			r.printedLen = len(content)
		}
	})
	defer unsub()

	for {
		line, err := r.input.ReadLine(promptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C or Ctrl+D exit cleanly.
			if err == liner.ErrPromptAborted || errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.runCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		r.printedLen = 0
		fmt.Print(assistantStyle.Render("assistant> "))
		if err := r.store.SendMessage(ctx, line); err != nil {
			fmt.Println(errStyle.Render(err.Error()))
			continue
		}
		r.waitForReply()
		fmt.Println()
	}
}

// waitForReply blocks until the in-flight stream settles, then reports
// a terminal error if one occurred.
func (r *REPL) waitForReply() {
	done := make(chan struct{})
	unsub := r.store.Subscribe(func(snap store.Snapshot) {
		if !snap.Streaming.IsStreaming {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer unsub()

	// Handle the race where the stream settled before we subscribed.
	if !r.store.StreamingState().IsStreaming {
		r.reportStreamError()
		return
	}
	<-done
	r.reportStreamError()
}

func (r *REPL) reportStreamError() {
	st := r.store.StreamingState()
	if st.ConnectionStatus == model.StatusError && st.LastError != "" {
		fmt.Println()
		fmt.Println(errStyle.Render("stream failed: " + st.LastError))
	} else {
		fmt.Println()
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// parseCommand splits "/cmd arg rest" into its command and argument.
func parseCommand(line string) (cmd, arg string) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 2)
	cmd = strings.ToLower(parts[0])
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}

// runCommand executes a slash command. Returns true when the REPL
// should exit.
func (r *REPL) runCommand(ctx context.Context, line string) bool {
	cmd, arg := parseCommand(line)

	switch cmd {
	case "/quit", "/q", "/exit":
		return true

	case "/help", "/h":
		r.printHelp()

	case "/new":
		if _, err := r.store.CreateSession(ctx, nil, arg); err != nil {
			fmt.Println(errStyle.Render(err.Error()))
		} else {
			fmt.Println(infoStyle.Render("started a new session"))
		}

	case "/load":
		if arg == "" {
			fmt.Println(errStyle.Render("usage: /load <session-id>"))
			break
		}
		if err := r.store.LoadSession(ctx, arg); err != nil {
			fmt.Println(errStyle.Render(err.Error()))
		} else {
			snap := r.store.Snapshot()
			fmt.Println(infoStyle.Render(fmt.Sprintf("loaded %q (%d messages)", snap.Session.Title(), len(snap.Log))))
		}

	case "/sessions":
		r.listSessions(ctx)

	case "/delete":
		if arg == "" {
			fmt.Println(errStyle.Render("usage: /delete <session-id>"))
			break
		}
		r.deleteSession(ctx, arg)

	case "/rename":
		if arg == "" {
			fmt.Println(errStyle.Render("usage: /rename <name>"))
			break
		}
		r.renameSession(ctx, arg)

	case "/clear", "/c":
		if err := r.store.ClearSession(); err != nil {
			fmt.Println(errStyle.Render(err.Error()))
		} else {
			fmt.Println(infoStyle.Render("conversation cleared"))
		}

	case "/regen", "/r":
		r.regenerate(ctx)

	case "/copy":
		r.copyLast()

	case "/history":
		r.printHistory()

	case "/stats", "/s":
		r.printStats()

	case "/export":
		r.export(arg)

	default:
		fmt.Println(errStyle.Render("unknown command " + cmd + " (try /help)"))
	}
	return false
}

func (r *REPL) printHelp() {
	fmt.Println(infoStyle.Render(strings.TrimSpace(`
/help, /h        show this help
/new [name]      start a new session
/load <id>       load a session from the backend
/sessions        list sessions on the backend
/delete <id>     delete a session on the backend
/rename <name>   rename the current session
/clear, /c       clear the conversation
/regen, /r       regenerate the last reply
/copy            copy the last reply to the clipboard
/history         print the conversation so far
/stats, /s       show memory cache statistics
/export <fmt>    export the session (json, markdown, html)
/quit, /q        exit`)))
}

func (r *REPL) regenerate(ctx context.Context) {
	snap := r.store.Snapshot()
	var id string
	for i := len(snap.Log) - 1; i >= 0; i-- {
		if snap.Log[i].Role == model.RoleAssistant {
			id = snap.Log[i].ID
			break
		}
	}
	if id == "" {
		fmt.Println(errStyle.Render("nothing to regenerate"))
		return
	}

	r.printedLen = 0
	fmt.Print(assistantStyle.Render("assistant> "))
	if err := r.store.RegenerateMessage(ctx, id); err != nil {
		fmt.Println(errStyle.Render(err.Error()))
		return
	}
	r.waitForReply()
	fmt.Println()
}

func (r *REPL) copyLast() {
	snap := r.store.Snapshot()
	for i := len(snap.Log) - 1; i >= 0; i-- {
		if snap.Log[i].Role == model.RoleAssistant {
			if err := r.store.CopyMessage(snap.Log[i].ID); err != nil {
				fmt.Println(errStyle.Render(err.Error()))
			} else {
				fmt.Println(infoStyle.Render("copied"))
			}
			return
		}
	}
	fmt.Println(errStyle.Render("nothing to copy"))
}

func (r *REPL) printHistory() {
	snap := r.store.Snapshot()
	if len(snap.Log) == 0 {
		fmt.Println(infoStyle.Render("no messages yet"))
		return
	}
	for _, msg := range snap.Log {
		fmt.Printf("%s %s\n", promptStyle.Render(msg.Role.DisplayName()+":"), msg.Preview(100))
	}
}

func (r *REPL) printStats() {
	if r.cache == nil {
		fmt.Println(infoStyle.Render("memory cache disabled"))
		return
	}
	stats := r.cache.Stats()
	fmt.Println(infoStyle.Render(fmt.Sprintf("cached sessions: %d, cached messages: %d",
		stats.TotalSessions, stats.TotalMessages)))
}

func (r *REPL) export(format string) {
	snap := r.store.Snapshot()
	if snap.Session == nil {
		fmt.Println(errStyle.Render("no active session"))
		return
	}

	opts := export.DefaultOptions()
	var exporter export.Exporter
	switch strings.ToLower(format) {
	case "json":
		exporter = export.NewJSONExporter()
	case "markdown", "md":
		exporter = export.NewMarkdownExporter(opts)
	case "html":
		exporter = export.NewHTMLExporter(opts)
	default:
		fmt.Println(errStyle.Render("usage: /export json|markdown|html"))
		return
	}

	path, err := export.ExportToFile(snap.Session, snap.Log, exporter, opts)
	if err != nil {
		fmt.Println(errStyle.Render("export failed: " + err.Error()))
		return
	}
	fmt.Println(infoStyle.Render("exported to " + path))
}

func (r *REPL) listSessions(ctx context.Context) {
	if r.client == nil {
		fmt.Println(errStyle.Render("no backend client configured"))
		return
	}
	sessions, err := r.client.ListSessions(ctx)
	if err != nil {
		fmt.Println(errStyle.Render(err.Error()))
		return
	}
	if len(sessions) == 0 {
		fmt.Println(infoStyle.Render("no sessions on the backend"))
		return
	}
	for _, sess := range sessions {
		fmt.Printf("%s  %s (%d messages)\n",
			promptStyle.Render(sess.ID), sess.Title(), sess.MessageCount)
	}
}

func (r *REPL) deleteSession(ctx context.Context, id string) {
	if r.client == nil {
		fmt.Println(errStyle.Render("no backend client configured"))
		return
	}
	if err := r.client.DeleteSession(ctx, id); err != nil {
		fmt.Println(errStyle.Render(err.Error()))
		return
	}
	// Deleting the active session leaves the log on screen; the backend
	// copy is gone but the in-memory conversation stays inspectable.
	if r.cache != nil {
		r.cache.UnregisterSession(id)
	}
	fmt.Println(infoStyle.Render("deleted " + id))
}

func (r *REPL) renameSession(ctx context.Context, name string) {
	if r.client == nil {
		fmt.Println(errStyle.Render("no backend client configured"))
		return
	}
	snap := r.store.Snapshot()
	if snap.Session == nil {
		fmt.Println(errStyle.Render("no active session"))
		return
	}
	if err := r.client.RenameSession(ctx, snap.Session.ID, name); err != nil {
		fmt.Println(errStyle.Render(err.Error()))
		return
	}
	fmt.Println(infoStyle.Render("renamed to " + name))
}
