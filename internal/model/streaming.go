// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "errors"

// =============================================================================
// CONNECTION STATUS
// =============================================================================

// ConnectionStatus describes the transport state of the active stream.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// String returns the string representation of the status.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// =============================================================================
// STREAMING STATE
// =============================================================================

// StreamingState tracks the lifecycle of a single in-flight assistant
// reply. At most one stream is active per session at a time.
type StreamingState struct {
	IsStreaming          bool             `json:"is_streaming"`
	StreamingMessageID   string           `json:"streaming_message_id,omitempty"`
	CurrentStreamContent string           `json:"current_stream_content,omitempty"`
	ConnectionStatus     ConnectionStatus `json:"connection_status"`
	ReconnectAttempts    int              `json:"reconnect_attempts"`
	LastError            string           `json:"last_error,omitempty"`
}

// NewStreamingState returns the initial (idle) streaming state.
func NewStreamingState() StreamingState {
	return StreamingState{ConnectionStatus: StatusDisconnected}
}

// Validate checks the streaming state invariants:
//   - isStreaming=false implies no streaming message and no partial content
//   - isStreaming=true requires a streaming message ID
func (st *StreamingState) Validate() error {
	if !st.IsStreaming {
		if st.StreamingMessageID != "" {
			return errors.New("streaming message id set while not streaming")
		}
		if st.CurrentStreamContent != "" {
			return errors.New("partial stream content retained while not streaming")
		}
		return nil
	}
	if st.StreamingMessageID == "" {
		return errors.New("streaming without a streaming message id")
	}
	return nil
}
