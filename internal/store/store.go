// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/atotto/clipboard"

	"github.com/jeranaias/persona-chat/internal/backend"
	"github.com/jeranaias/persona-chat/internal/backoff"
	"github.com/jeranaias/persona-chat/internal/logging"
	"github.com/jeranaias/persona-chat/internal/memcache"
	"github.com/jeranaias/persona-chat/internal/model"
	"github.com/jeranaias/persona-chat/internal/render"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoActiveSession is returned by commands that require a session
	// before one has been created or loaded.
	ErrNoActiveSession = errors.New("no active session")

	// ErrStreamBusy is returned when a command would start a second
	// concurrent reply stream.
	ErrStreamBusy = errors.New("a reply stream is already in progress")

	// ErrMessageNotFound is returned when a command targets a message id
	// that is not in the active log.
	ErrMessageNotFound = errors.New("message not found in session log")

	// ErrNotAssistant is returned when regeneration targets a message
	// that is not an assistant reply.
	ErrNotAssistant = errors.New("only assistant messages can be regenerated")

	// ErrNoPriorUserMessage is returned when regeneration cannot find a
	// user message preceding the target to resend from.
	ErrNoPriorUserMessage = errors.New("no prior user message to regenerate from")
)

// =============================================================================
// SNAPSHOT / SUBSCRIPTIONS
// =============================================================================

// Snapshot is an immutable view of the store published to subscribers.
// The log is a deep copy; subscribers may retain it across updates.
type Snapshot struct {
	Session   *model.Session
	Log       []*model.Message
	Streaming model.StreamingState
}

// Subscriber receives a snapshot after every state change. Subscribers
// run on the goroutine that performed the change; keep them fast.
type Subscriber func(Snapshot)

// ClipboardFunc writes text to the system clipboard. Injectable so
// tests do not touch the real clipboard.
type ClipboardFunc func(string) error

// =============================================================================
// STORE
// =============================================================================

// Store owns the active session, its message log, and the streaming
// lifecycle.
type Store struct {
	mu sync.Mutex

	client   *backend.Client
	cache    *memcache.Manager
	selector *render.Selector
	clip     ClipboardFunc

	session   *model.Session
	log       []*model.Message
	streaming model.StreamingState

	// retry governs reconnect pacing for reply streams. Reset exactly
	// once per successful connection.
	retry *backoff.Controller

	cancelStream context.CancelFunc
	streamDone   chan struct{}

	subs    map[int]Subscriber
	nextSub int
}

// New creates a store backed by the given client.
func New(client *backend.Client) *Store {
	return &Store{
		client:    client,
		clip:      clipboard.WriteAll,
		streaming: model.NewStreamingState(),
		retry:     backoff.NewController(backoff.StreamPolicy()),
		subs:      make(map[int]Subscriber),
	}
}

// WithCache attaches a memory cleanup manager that is kept in sync with
// the active log.
func (s *Store) WithCache(m *memcache.Manager) *Store {
	s.cache = m
	return s
}

// WithSelector attaches a render strategy selector that is notified on
// every log change.
func (s *Store) WithSelector(sel *render.Selector) *Store {
	s.selector = sel
	return s
}

// WithClipboard overrides the clipboard writer.
func (s *Store) WithClipboard(fn ClipboardFunc) *Store {
	s.clip = fn
	return s
}

// WithStreamRetry overrides the stream reconnect controller.
func (s *Store) WithStreamRetry(c *backoff.Controller) *Store {
	s.retry = c
	return s
}

// Subscribe registers a subscriber and returns an unsubscribe func.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// StreamingState returns the current streaming state.
func (s *Store) StreamingState() model.StreamingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Session:   s.session,
		Log:       model.CloneLog(s.log),
		Streaming: s.streaming,
	}
}

// publish delivers the current snapshot to every subscriber.
func (s *Store) publish() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// logChangedLocked propagates a log mutation to the cache and the
// render selector. Caller holds s.mu.
func (s *Store) logChangedLocked() {
	if s.session != nil {
		s.session.Touch(len(s.log))
		if s.cache != nil {
			s.cache.UpdateSession(s.session.ID, s.log)
		}
	}
	if s.selector != nil {
		s.selector.LogChanged(len(s.log))
	}
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

// CreateSession creates a new session on the backend and makes it
// active. Any in-flight stream is cancelled.
func (s *Store) CreateSession(ctx context.Context, persona json.RawMessage, name string) (*model.Session, error) {
	s.CancelStream()

	sess, err := s.client.CreateSession(ctx, persona, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = sess
	s.log = nil
	s.streaming = model.NewStreamingState()
	s.retry.Reset()
	if s.cache != nil {
		s.cache.RegisterSession(sess.ID, nil)
	}
	if s.selector != nil {
		s.selector.LogChanged(0)
	}
	s.mu.Unlock()

	s.publish()
	return sess, nil
}

// LoadSession fetches a session and its message log from the backend
// and makes it active. Any in-flight stream is cancelled.
func (s *Store) LoadSession(ctx context.Context, id string) error {
	s.CancelStream()

	sess, err := s.client.GetSession(ctx, id)
	if err != nil {
		return err
	}
	messages, err := s.client.GetSessionMessages(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.session = sess
	s.log = messages
	s.streaming = model.NewStreamingState()
	s.retry.Reset()
	if s.cache != nil {
		s.cache.RegisterSession(sess.ID, messages)
	}
	if s.selector != nil {
		s.selector.LogChanged(len(messages))
	}
	s.mu.Unlock()

	s.publish()
	return nil
}

// ClearSession removes every message from the active log and drops the
// session from the memory cleanup cache. The session itself stays
// active; the next send re-registers it. Any in-flight stream is
// cancelled.
func (s *Store) ClearSession() error {
	s.CancelStream()

	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	s.log = nil
	s.streaming = model.NewStreamingState()
	s.session.Touch(0)
	if s.cache != nil {
		s.cache.UnregisterSession(s.session.ID)
	}
	if s.selector != nil {
		s.selector.LogChanged(0)
	}
	s.mu.Unlock()

	s.publish()
	return nil
}

// =============================================================================
// MESSAGE COMMANDS
// =============================================================================

// SendMessage appends the user's message optimistically, opens a reply
// stream, and folds the reply into an assistant placeholder. Returns
// ErrStreamBusy while a previous reply is still streaming.
//
// The optimistic user message is kept even when the stream fails, so
// the user can retry without retyping.
func (s *Store) SendMessage(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	if s.streaming.IsStreaming {
		s.mu.Unlock()
		return ErrStreamBusy
	}

	persona := s.session.PersonaSnapshot
	user := model.NewUserMessage(content, persona)
	s.log = append(s.log, user)

	// Wire payload excludes the placeholder appended below.
	wire := backend.ToChatMessages(s.log)

	placeholder := model.NewAssistantPlaceholder(persona)
	s.log = append(s.log, placeholder)

	s.streaming = model.StreamingState{
		IsStreaming:        true,
		StreamingMessageID: placeholder.ID,
		ConnectionStatus:   model.StatusConnecting,
	}
	s.retry.Reset()
	s.logChangedLocked()

	streamCtx, cancel := context.WithCancel(ctx)
	s.cancelStream = cancel
	done := make(chan struct{})
	s.streamDone = done
	s.mu.Unlock()

	s.publish()

	go func() {
		defer close(done)
		s.runStream(streamCtx, placeholder.ID, wire, persona)
	}()
	return nil
}

// RegenerateMessage replaces an assistant reply with a fresh one,
// resending the conversation up to the nearest preceding user message.
// The reply is replaced in place rather than deleted and re-sent; the
// log keeps its order and the prompting user message is not duplicated.
func (s *Store) RegenerateMessage(ctx context.Context, messageID string) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	if s.streaming.IsStreaming {
		s.mu.Unlock()
		return ErrStreamBusy
	}

	idx := model.FindMessage(s.log, messageID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	target := s.log[idx]
	if target.Role != model.RoleAssistant {
		s.mu.Unlock()
		return ErrNotAssistant
	}
	if model.NearestPrecedingUser(s.log, idx) == nil {
		s.mu.Unlock()
		return ErrNoPriorUserMessage
	}

	persona := s.session.PersonaSnapshot
	wire := backend.ToChatMessages(s.log[:idx])

	placeholder := model.NewAssistantPlaceholder(persona)
	s.log[idx] = placeholder

	s.streaming = model.StreamingState{
		IsStreaming:        true,
		StreamingMessageID: placeholder.ID,
		ConnectionStatus:   model.StatusConnecting,
	}
	s.retry.Reset()
	s.logChangedLocked()

	streamCtx, cancel := context.WithCancel(ctx)
	s.cancelStream = cancel
	done := make(chan struct{})
	s.streamDone = done
	s.mu.Unlock()

	s.publish()

	go func() {
		defer close(done)
		s.runStream(streamCtx, placeholder.ID, wire, persona)
	}()
	return nil
}

// DeleteMessage removes a message from the active log. Deleting an id
// that is not in the log is a no-op. Rejected while a reply is
// streaming.
func (s *Store) DeleteMessage(messageID string) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	if s.streaming.IsStreaming {
		s.mu.Unlock()
		return ErrStreamBusy
	}

	idx := model.FindMessage(s.log, messageID)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	s.log = append(s.log[:idx], s.log[idx+1:]...)
	s.logChangedLocked()
	s.mu.Unlock()

	s.publish()
	return nil
}

// CopyMessage writes a message's content to the system clipboard.
// Clipboard failures are logged, not returned; the message stays on
// screen either way.
func (s *Store) CopyMessage(messageID string) error {
	s.mu.Lock()
	idx := model.FindMessage(s.log, messageID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	content := s.log[idx].Content
	clip := s.clip
	s.mu.Unlock()

	if err := clip(content); err != nil {
		logging.Warnf("clipboard write failed: %v", err)
	}
	return nil
}

// =============================================================================
// STREAM CONTROL
// =============================================================================

// CancelStream cancels the in-flight reply stream, if any, and waits
// for it to finish. The partial reply is frozen as-is.
func (s *Store) CancelStream() {
	s.mu.Lock()
	cancel := s.cancelStream
	done := s.streamDone
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// Close cancels any in-flight stream and drops all subscribers.
func (s *Store) Close() {
	s.CancelStream()
	s.mu.Lock()
	s.subs = make(map[int]Subscriber)
	s.mu.Unlock()
}
