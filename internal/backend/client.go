// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/persona-chat/internal/backoff"
	"github.com/jeranaias/persona-chat/internal/logging"
	"github.com/jeranaias/persona-chat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSessionNotFound is returned for CRUD calls against an unknown
	// session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrCorruptedSession is returned when a loaded session's message
	// list is null or malformed. Callers can offer "start a new session"
	// instead of crashing.
	ErrCorruptedSession = errors.New("corrupted session data")
)

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// Is maps 404 responses onto ErrSessionNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrSessionNotFound && e.Status == http.StatusNotFound
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is the wire shape of one log entry sent to /chat.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Messages []ChatMessage   `json:"messages"`
	Persona  json.RawMessage `json:"persona,omitempty"`
	Stream   bool            `json:"stream"`
}

// createSessionRequest is the body of POST /sessions.
type createSessionRequest struct {
	Persona json.RawMessage `json:"persona,omitempty"`
	Name    string          `json:"name,omitempty"`
}

// renameSessionRequest is the body of PATCH /sessions/{id}.
type renameSessionRequest struct {
	Name string `json:"name"`
}

// ToChatMessages converts a message log to the wire shape, dropping
// empty placeholder content.
func ToChatMessages(log []*model.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(log))
	for _, msg := range log {
		if msg.Content == "" {
			continue
		}
		out = append(out, ChatMessage{Role: msg.Role.String(), Content: msg.Content})
	}
	return out
}

// =============================================================================
// CLIENT
// =============================================================================

// sharedClient is the pooled HTTP client for CRUD requests.
//
// PERFORMANCE: connection pooling avoids per-request TCP/TLS setup.
var sharedClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	},
}

// sharedStreamingClient has no overall timeout; stream lifetime is
// bounded by the caller's context instead.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Client talks to the persona backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	streaming  *http.Client
	limiter    *rate.Limiter
	retry      *backoff.Controller
}

// NewClient creates a client for the backend at baseURL. Requests are
// rate limited to keep a misbehaving UI loop from hammering the local
// backend, and CRUD requests retry transient failures with the request
// backoff policy.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: sharedClient,
		streaming:  sharedStreamingClient,
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		retry:      backoff.NewController(backoff.RequestPolicy()),
	}
}

// WithHTTPClient overrides both HTTP clients. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streaming = hc
	return c
}

// WithTimeout overrides the overall timeout for CRUD requests. The
// streaming client is untouched; a stream's lifetime is bounded by the
// caller's context, not a fixed timeout. The shared pooled client is
// copied, not mutated.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d <= 0 {
		return c
	}
	hc := *c.httpClient
	hc.Timeout = d
	c.httpClient = &hc
	return c
}

// WithRateLimit overrides the request rate limit.
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

// setHeaders applies the headers common to every request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// =============================================================================
// SESSION CRUD
// =============================================================================

// CreateSession creates a session on the backend.
func (c *Client) CreateSession(ctx context.Context, persona json.RawMessage, name string) (*model.Session, error) {
	var sess model.Session
	err := c.doJSON(ctx, http.MethodPost, "/sessions", createSessionRequest{Persona: persona, Name: name}, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns all persisted sessions.
func (c *Client) ListSessions(ctx context.Context) ([]*model.Session, error) {
	var sessions []*model.Session
	if err := c.doJSON(ctx, http.MethodGet, "/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession fetches one session's metadata.
func (c *Client) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	if err := c.doJSON(ctx, http.MethodGet, "/sessions/"+id, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSessionMessages fetches a session's message log. A null or
// undecodable list surfaces as ErrCorruptedSession.
func (c *Client) GetSessionMessages(ctx context.Context, id string) ([]*model.Message, error) {
	body, err := c.doRaw(ctx, http.MethodGet, "/sessions/"+id+"/messages", nil)
	if err != nil {
		return nil, err
	}

	var messages []*model.Message
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedSession, err)
	}
	if messages == nil {
		return nil, ErrCorruptedSession
	}
	for _, msg := range messages {
		if msg == nil || msg.ID == "" {
			return nil, ErrCorruptedSession
		}
	}
	return messages, nil
}

// DeleteSession removes a session from the backend.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/sessions/"+id, nil, nil)
}

// RenameSession updates a session's name.
func (c *Client) RenameSession(ctx context.Context, id, name string) error {
	return c.doJSON(ctx, http.MethodPatch, "/sessions/"+id, renameSessionRequest{Name: name}, nil)
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// doJSON performs a request and decodes the JSON response into out (nil
// to discard).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	data, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRaw performs a request with rate limiting and bounded retry.
// Transient failures (network errors, 5xx) retry under the request
// backoff policy; 4xx responses surface immediately.
func (c *Client) doRaw(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	c.retry.Reset()
	var lastErr error
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return data, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			return nil, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		lastErr = err
		logging.Warnf("backend %s %s failed, retrying: %v", method, path, err)
		if waitErr := c.retry.Wait(ctx); waitErr != nil {
			if errors.Is(waitErr, backoff.ErrExhausted) {
				return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
			}
			return nil, waitErr
		}
	}
}

// doOnce performs a single HTTP exchange.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// errorMessage extracts a backend error string from a response body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return ""
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream POSTs the trailing context to /chat and returns a channel
// of decoded events. The channel closes after a terminal event. The
// stream is cancelled through ctx; cancelling releases the transport
// read.
//
// Transport failures mid-stream arrive as an event with Err set; server
// error envelopes arrive as EventStreamError with Message set.
func (c *Client) ChatStream(ctx context.Context, messages []ChatMessage, persona json.RawMessage) (<-chan StreamEvent, error) {
	body, err := json.Marshal(ChatRequest{Messages: messages, Persona: persona, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streaming.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	events := make(chan StreamEvent, 64)
	go c.readStream(ctx, resp.Body, events)
	return events, nil
}

// StreamEvent is one element of a live reply stream: either a decoded
// Event or a transport error.
type StreamEvent struct {
	Event

	// Err is set for transport-level read failures. Terminal.
	Err error
}

// readStream pumps the response body through a Decoder onto the channel.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	dec := NewDecoder()
	buf := make([]byte, 4096)

	emit := func(evs []Event) bool {
		for _, ev := range evs {
			select {
			case events <- StreamEvent{Event: ev}:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			events <- StreamEvent{Err: ctx.Err()}
			return
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			if !emit(dec.Feed(buf[:n])) {
				return
			}
			if dec.Finished() {
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				if !emit(dec.Flush()) {
					return
				}
				if !dec.Finished() {
					// Connection closed without a sentinel; the last
					// folded delta stands.
					emit([]Event{{Kind: EventDone}})
				}
				return
			}
			select {
			case events <- StreamEvent{Err: fmt.Errorf("stream read failed: %w", err)}:
			case <-ctx.Done():
			}
			return
		}
	}
}
