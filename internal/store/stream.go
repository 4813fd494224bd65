// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"encoding/json"

	"github.com/jeranaias/persona-chat/internal/backend"
	"github.com/jeranaias/persona-chat/internal/logging"
	"github.com/jeranaias/persona-chat/internal/model"
)

// =============================================================================
// STREAM LIFECYCLE
// =============================================================================

// runStream opens a reply stream and folds it into the placeholder
// message, reconnecting under backoff until the controller is
// exhausted.
func (s *Store) runStream(ctx context.Context, msgID string, wire []backend.ChatMessage, persona json.RawMessage) {
	for {
		events, err := s.client.ChatStream(ctx, wire, persona)
		if err != nil {
			if ctx.Err() != nil {
				s.settleStream(msgID, "", false)
				return
			}
			logging.Warnf("stream connect failed: %v", err)
			if waitErr := s.retry.Wait(ctx); waitErr != nil {
				s.settleStream(msgID, err.Error(), true)
				return
			}
			s.noteReconnect(msgID)
			continue
		}

		s.markConnected(msgID)
		s.consume(ctx, msgID, events)
		return
	}
}

// noteReconnect records a reconnect attempt in the streaming state.
func (s *Store) noteReconnect(msgID string) {
	s.mu.Lock()
	if s.streaming.StreamingMessageID == msgID {
		s.streaming.ReconnectAttempts = s.retry.Attempts()
		s.streaming.ConnectionStatus = model.StatusConnecting
	}
	s.mu.Unlock()
	s.publish()
}

// markConnected transitions Connecting -> Connected. The reconnect
// controller resets here and only here: a successful connection earns
// back the full retry budget.
func (s *Store) markConnected(msgID string) {
	s.mu.Lock()
	if s.streaming.StreamingMessageID == msgID {
		s.streaming.ConnectionStatus = model.StatusConnected
	}
	s.retry.Reset()
	s.mu.Unlock()
	s.publish()
}

// consume folds decoded stream events into the placeholder until the
// stream terminates.
func (s *Store) consume(ctx context.Context, msgID string, events <-chan backend.StreamEvent) {
	for ev := range events {
		if ev.Err != nil {
			if ctx.Err() != nil {
				s.settleStream(msgID, "", false)
				return
			}
			s.settleStream(msgID, ev.Err.Error(), true)
			return
		}

		switch ev.Kind {
		case backend.EventDelta:
			s.foldDelta(msgID, ev.Content)

		case backend.EventFinal:
			s.foldFinal(msgID, ev.Content)

		case backend.EventParseSkip:
			logging.Debugf("skipped malformed stream line")

		case backend.EventStreamError:
			s.settleStream(msgID, ev.Message, true)
			return

		case backend.EventDone:
			s.finishStream(msgID)
			return
		}
	}

	// Channel closed without a Done event: the stream was cancelled
	// mid-read. Freeze the partial reply and return to idle.
	s.settleStream(msgID, "", false)
}

// =============================================================================
// EVENT FOLDING
// =============================================================================

func (s *Store) foldDelta(msgID, content string) {
	s.mu.Lock()
	if idx := model.FindMessage(s.log, msgID); idx >= 0 {
		s.log[idx].AppendDelta(content)
	}
	if s.streaming.StreamingMessageID == msgID {
		s.streaming.CurrentStreamContent += content
	}
	s.logChangedLocked()
	s.mu.Unlock()
	s.publish()
}

// foldFinal replaces all accumulated deltas with the server's canonical
// text.
func (s *Store) foldFinal(msgID, content string) {
	s.mu.Lock()
	if idx := model.FindMessage(s.log, msgID); idx >= 0 {
		s.log[idx].ReplaceContent(content)
	}
	if s.streaming.StreamingMessageID == msgID {
		s.streaming.CurrentStreamContent = content
	}
	s.logChangedLocked()
	s.mu.Unlock()
	s.publish()
}

// finishStream transitions Connected -> Idle after a clean termination.
func (s *Store) finishStream(msgID string) {
	s.mu.Lock()
	if idx := model.FindMessage(s.log, msgID); idx >= 0 {
		s.log[idx].FinalizeStream()
	}
	if s.streaming.StreamingMessageID == msgID {
		s.streaming = model.NewStreamingState()
	}
	s.cancelStream = nil
	s.logChangedLocked()
	s.mu.Unlock()
	s.publish()
}

// settleStream freezes the partial reply and leaves streaming mode,
// either into the Error state (isError) or back to idle after a user
// cancel. The optimistic user message stays in the log.
func (s *Store) settleStream(msgID, errMsg string, isError bool) {
	s.mu.Lock()
	if idx := model.FindMessage(s.log, msgID); idx >= 0 {
		s.log[idx].FinalizeStream()
	}
	if s.streaming.StreamingMessageID == msgID {
		st := model.NewStreamingState()
		if isError {
			st.ConnectionStatus = model.StatusError
			st.LastError = errMsg
			st.ReconnectAttempts = s.retry.Attempts()
		}
		s.streaming = st
	}
	s.cancelStream = nil
	s.logChangedLocked()
	s.mu.Unlock()

	if isError {
		logging.Errorf("reply stream failed: %s", errMsg)
	}
	s.publish()
}
