// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"strings"
)

// doneToken is the literal termination sentinel sent by the backend.
const doneToken = "[DONE]"

// dataPrefix marks the payload lines of the chunked stream. Other SSE
// fields (event:, id:, comments) are ignored.
const dataPrefix = "data: "

// MaxLineSize is the maximum allowed size for a single buffered line
// (64KB). A line that grows past this is discarded as malformed.
const MaxLineSize = 64 * 1024

// =============================================================================
// EVENTS
// =============================================================================

// EventKind discriminates the events a decoded stream can produce.
type EventKind int

const (
	// EventDelta carries incremental content to append.
	EventDelta EventKind = iota

	// EventFinal carries full replacement content. The server's canonical
	// text wins over client-accumulated deltas.
	EventFinal

	// EventParseSkip marks a malformed payload line that was discarded
	// without terminating the stream.
	EventParseSkip

	// EventStreamError carries a server-reported error. The stream is
	// finished after this event.
	EventStreamError

	// EventDone is the termination sentinel.
	EventDone
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventFinal:
		return "final"
	case EventParseSkip:
		return "parse-skip"
	case EventStreamError:
		return "stream-error"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is one decoded element of a reply stream.
type Event struct {
	Kind EventKind

	// Content holds delta or final text.
	Content string

	// Message holds the server-supplied error text for EventStreamError.
	Message string
}

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope is the JSON payload of one stream line. All fields are
// optional; an empty envelope is a valid keep-alive.
type Envelope struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DecodeEnvelope parses a payload line into an Envelope. The second
// return value is false when the line is not valid JSON for the expected
// shape; callers treat that as skip-and-continue, not as failure.
func DecodeEnvelope(line string) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return Envelope{}, false
	}
	return env, true
}

// IsDone reports whether the envelope signals completion.
func (e Envelope) IsDone() bool {
	return e.Done || e.Type == "done"
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns raw chunked-transport bytes into stream events. Chunks
// carry no line-alignment guarantee, so a rolling buffer holds the
// current partial line across Feed calls. The decoder is purely
// synchronous; it owns no I/O.
type Decoder struct {
	buf      strings.Builder
	finished bool
}

// NewDecoder creates a decoder for one reply stream.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Finished reports whether a terminal event has been emitted. Feed is a
// no-op afterwards.
func (d *Decoder) Finished() bool {
	return d.finished
}

// Feed consumes the next transport chunk and returns the events it
// completes. Partial trailing lines are buffered for the next call.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.finished {
		return nil
	}

	d.buf.Write(chunk)
	data := d.buf.String()

	idx := strings.LastIndexByte(data, '\n')
	if idx < 0 {
		// No complete line yet. Guard against a runaway line.
		if d.buf.Len() > MaxLineSize {
			d.buf.Reset()
			return []Event{{Kind: EventParseSkip}}
		}
		return nil
	}

	complete, rest := data[:idx], data[idx+1:]
	d.buf.Reset()
	d.buf.WriteString(rest)

	var events []Event
	for _, line := range strings.Split(complete, "\n") {
		events = append(events, d.decodeLine(line)...)
		if d.finished {
			break
		}
	}
	return events
}

// Flush processes any buffered partial line at end of input. Call when
// the transport reports EOF.
func (d *Decoder) Flush() []Event {
	if d.finished || d.buf.Len() == 0 {
		return nil
	}
	line := d.buf.String()
	d.buf.Reset()
	return d.decodeLine(line)
}

// decodeLine turns one raw line into zero or more events.
func (d *Decoder) decodeLine(line string) []Event {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return nil
	}

	if !strings.HasPrefix(line, dataPrefix) {
		// Not a payload line; ignore other SSE fields and comments.
		return nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" {
		return nil
	}

	if payload == doneToken {
		d.finished = true
		return []Event{{Kind: EventDone}}
	}

	env, ok := DecodeEnvelope(payload)
	if !ok {
		// Malformed payload never terminates an otherwise-healthy stream.
		return []Event{{Kind: EventParseSkip}}
	}

	if env.Error != "" {
		d.finished = true
		return []Event{{Kind: EventStreamError, Message: env.Error}}
	}

	if env.IsDone() {
		d.finished = true
		if env.Content != "" {
			return []Event{
				{Kind: EventFinal, Content: env.Content},
				{Kind: EventDone},
			}
		}
		return []Event{{Kind: EventDone}}
	}

	if env.Content != "" {
		return []Event{{Kind: EventDelta, Content: env.Content}}
	}

	// Keep-alive envelope with no payload.
	return nil
}
