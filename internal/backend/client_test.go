// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeranaias/persona-chat/internal/backoff"
	"github.com/jeranaias/persona-chat/internal/model"
)

// newTestClient builds a client against a httptest server with a high
// rate limit so tests never stall on the limiter.
func newTestClient(server *httptest.Server) *Client {
	return NewClient(server.URL).
		WithHTTPClient(server.Client()).
		WithRateLimit(1000, 1000)
}

// newFastRetry returns a request retry controller with millisecond
// delays so retry tests stay fast.
func newFastRetry() *backoff.Controller {
	return backoff.NewController(backoff.Policy{
		BaseDelay:  time.Millisecond,
		Multiplier: 2,
		MaxRetries: 3,
	})
}

// =============================================================================
// CLIENT OPTION TESTS
// =============================================================================

func TestWithTimeout(t *testing.T) {
	c := NewClient("http://localhost:8787")
	shared := c.httpClient
	streaming := c.streaming

	c = c.WithTimeout(5 * time.Second)

	if c.httpClient.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.httpClient.Timeout)
	}
	if c.httpClient == shared {
		t.Error("WithTimeout must copy the pooled client, not mutate it")
	}
	if shared.Timeout != 30*time.Second {
		t.Errorf("shared client timeout changed to %v", shared.Timeout)
	}
	if c.streaming != streaming {
		t.Error("streaming client must keep its context-bound lifetime")
	}
}

func TestWithTimeoutIgnoresNonPositive(t *testing.T) {
	c := NewClient("http://localhost:8787")
	before := c.httpClient
	if c.WithTimeout(0).httpClient != before {
		t.Error("zero timeout should leave the client unchanged")
	}
}

// =============================================================================
// SESSION CRUD TESTS
// =============================================================================

func TestCreateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req createSessionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Name != "test chat" {
			t.Errorf("name = %q", req.Name)
		}
		json.NewEncoder(w).Encode(model.Session{ID: "sess_1", Name: req.Name})
	}))
	defer server.Close()

	sess, err := newTestClient(server).CreateSession(context.Background(), json.RawMessage(`{"tone":"friendly"}`), "test chat")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID != "sess_1" {
		t.Errorf("session id = %q", sess.ID)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such session"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).GetSession(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestGetSessionMessagesCorrupted(t *testing.T) {
	for _, body := range []string{"null", `{"oops":true}`, `[{"role":"user"}]`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		_, err := newTestClient(server).GetSessionMessages(context.Background(), "sess_1")
		if !errors.Is(err, ErrCorruptedSession) {
			t.Errorf("body %q: err = %v, want ErrCorruptedSession", body, err)
		}
		server.Close()
	}
}

func TestGetSessionMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/sess_1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"id":"msg_1","role":"user","content":"hi","timestamp":"2025-01-01T00:00:00Z"}]`))
	}))
	defer server.Close()

	messages, err := newTestClient(server).GetSessionMessages(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("GetSessionMessages: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != model.RoleUser {
		t.Errorf("messages = %+v", messages)
	}
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server)
	// Shrink the retry delays so the test stays fast.
	client.retry = newFastRetry()

	_, err := client.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server)
	client.retry = newFastRetry()

	err := client.DeleteSession(context.Background(), "sess_1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Errorf("err = %v, want APIError 400", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (4xx is not retried)", attempts)
	}
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestChatStreamEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream flag not set")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range []string{
			`data: {"content":"Hello"}`,
			`data: {"content":" there!"}`,
			`data: {"content":"","done":true}`,
			`data: [DONE]`,
		} {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}))
	defer server.Close()

	events, err := newTestClient(server).ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "Hello"}}, nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var content string
	sawDone := false
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("transport error: %v", ev.Err)
		}
		switch ev.Kind {
		case EventDelta:
			content += ev.Content
		case EventFinal:
			content = ev.Content
		case EventDone:
			sawDone = true
		}
	}

	if content != "Hello there!" {
		t.Errorf("content = %q, want 'Hello there!'", content)
	}
	if !sawDone {
		t.Error("no done event")
	}
}

func TestChatStreamServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"backend down"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).ChatStream(context.Background(), nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Errorf("err = %v, want APIError 503", err)
	}
}

func TestChatStreamEOFWithoutSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"content\":\"partial\"}\n")
	}))
	defer server.Close()

	events, err := newTestClient(server).ChatStream(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var content string
	sawDone := false
	for ev := range events {
		if ev.Kind == EventDelta {
			content += ev.Content
		}
		if ev.Kind == EventDone {
			sawDone = true
		}
	}

	// The last folded delta stands; EOF still terminates cleanly.
	if content != "partial" || !sawDone {
		t.Errorf("content = %q, done = %v", content, sawDone)
	}
}

func TestChatStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"content\":\"x\"}\n")
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := newTestClient(server).ChatStream(ctx, nil, nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return // channel closed promptly after cancel
			}
		case <-deadline:
			t.Fatal("stream did not terminate after cancellation")
		}
	}
}
