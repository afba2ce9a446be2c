// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/telemetry"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// createSSEStream joins data payloads into SSE records.
func createSSEStream(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	return b.String()
}

// newTestService starts a server running handler and returns a Service
// pointed at it.
func newTestService(t *testing.T, idle time.Duration, handler http.HandlerFunc) (*Service, *telemetry.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	metrics := telemetry.NewMetrics()
	client := apiclient.New(apiclient.Config{BaseURL: srv.URL, Metrics: metrics})
	return NewService(Config{Client: client, IdleTimeout: idle}), metrics
}

func sseHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}
}

func countErrors(events []ux.StreamEvent) int {
	n := 0
	for _, e := range events {
		if e.Type == ux.StreamEventError {
			n++
		}
	}
	return n
}

// =============================================================================
// Stream Tests
// =============================================================================

func TestService_Chat_AccumulatesChunks(t *testing.T) {
	var gotBody ChatRequest
	svc, metrics := newTestService(t, 0, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != EndpointChat {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, createSSEStream(
			`{"type":"assistant_chunk","content":"Hi"}`,
			`{"type":"assistant_chunk","content":" there"}`,
			`{"type":"complete","message_id":"m-1","timing":{"total_ms":42}}`,
		))
	})

	renderer := ux.NewBufferStreamRenderer()
	result, err := svc.Chat(context.Background(), ChatRequest{
		Message:        "Hello",
		ConversationID: "c-1",
		Provider:       "openai",
	}, renderer)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	if result.Content != "Hi there" {
		t.Errorf("Content = %q, want %q", result.Content, "Hi there")
	}
	if !result.Completed || result.MessageID != "m-1" {
		t.Errorf("Completed=%v MessageID=%q", result.Completed, result.MessageID)
	}
	if result.Timing == nil || result.Timing.TotalMs != 42 {
		t.Errorf("Timing = %+v", result.Timing)
	}
	if gotBody.Message != "Hello" || gotBody.ConversationID != "c-1" {
		t.Errorf("request body = %+v", gotBody)
	}
	if got := testutil.ToFloat64(metrics.StreamEventsTotal.WithLabelValues("assistant_chunk")); got != 2 {
		t.Errorf("chunk events metric = %v", got)
	}
	if n := testutil.CollectAndCount(metrics.StreamDuration); n != 1 {
		t.Errorf("stream duration series = %d", n)
	}
}

func TestService_Stream_CompleteWithoutChunks(t *testing.T) {
	svc, _ := newTestService(t, 0, sseHandler(createSSEStream(`{"type":"complete"}`)))

	result, err := svc.Stream(context.Background(), EndpointChat, ChatRequest{Message: "x"}, ux.NewBufferStreamRenderer())
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if result.Content != "" || !result.Completed {
		t.Errorf("got content %q completed %v", result.Content, result.Completed)
	}
}

func TestService_Stream_StructuredResult(t *testing.T) {
	svc, _ := newTestService(t, 0, sseHandler(createSSEStream(
		`{"type":"assistant_chunk","content":"thinking..."}`,
		`{"type":"structured_result","result":{"title":"Candidate fit","score":0.82,"items":["Go","SQL"]}}`,
		`{"type":"complete"}`,
	)))

	result, err := svc.Stream(context.Background(), EndpointToolChat, StreamingRequest{ToolType: "hr", Message: "x"}, ux.NewBufferStreamRenderer())
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if result.Structured == nil || result.Structured.Title != "Candidate fit" {
		t.Fatalf("Structured = %+v", result.Structured)
	}
	if result.Structured.Score == nil || *result.Structured.Score != 0.82 {
		t.Errorf("Score = %v", result.Structured.Score)
	}
}

func TestService_Stream_ErrorEvent(t *testing.T) {
	svc, _ := newTestService(t, 0, sseHandler(createSSEStream(
		`{"type":"assistant_chunk","content":"partial"}`,
		`{"type":"error","error":"quota exceeded"}`,
		`{"type":"assistant_chunk","content":"never seen"}`,
	)))

	renderer := ux.NewBufferStreamRenderer()
	result, err := svc.Stream(context.Background(), EndpointChat, ChatRequest{Message: "x"}, renderer)
	if !errors.Is(err, ux.ErrStreamError) {
		t.Fatalf("expected ErrStreamError, got %v", err)
	}
	if result.Error != "quota exceeded" || result.Content != "partial" {
		t.Errorf("result = %+v", result)
	}
	if n := countErrors(renderer.Events()); n != 1 {
		t.Errorf("OnError called %d times, want 1", n)
	}
}

func TestService_Stream_NonOKStatus(t *testing.T) {
	svc, _ := newTestService(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"detail":"model overloaded"}`)
	})

	renderer := ux.NewBufferStreamRenderer()
	result, err := svc.Stream(context.Background(), EndpointChat, ChatRequest{Message: "x"}, renderer)

	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Fatalf("expected 503 APIError, got %v", err)
	}
	if result == nil || !strings.Contains(result.Error, "model overloaded") {
		t.Errorf("result = %+v", result)
	}
	if n := countErrors(renderer.Events()); n != 1 {
		t.Errorf("OnError called %d times, want 1", n)
	}
}

func TestService_Stream_NetworkFailureSurfacesOnce(t *testing.T) {
	client := apiclient.New(apiclient.Config{BaseURL: "http://127.0.0.1:1"})
	svc := NewService(Config{Client: client})

	renderer := ux.NewBufferStreamRenderer()
	_, err := svc.Stream(context.Background(), EndpointChat, ChatRequest{Message: "x"}, renderer)
	if err == nil {
		t.Fatal("expected network error")
	}
	if n := countErrors(renderer.Events()); n != 1 {
		t.Errorf("OnError called %d times, want 1", n)
	}
}

func TestService_Stream_Cancelled(t *testing.T) {
	release := make(chan struct{})
	svc, metrics := newTestService(t, 0, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, createSSEStream(`{"type":"assistant_chunk","content":"Hel"}`))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	renderer := ux.NewBufferStreamRenderer()

	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) && renderer.Result().TotalChunks == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	result, err := svc.Stream(ctx, EndpointChat, ChatRequest{Message: "x"}, renderer)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrCancelled wrapping context.Canceled, got %v", err)
	}
	if !result.Cancelled || result.Content != "Hel" {
		t.Errorf("result = %+v", result)
	}
	if n := countErrors(renderer.Events()); n != 0 {
		t.Errorf("cancellation should not be reported as an error, got %d", n)
	}
	if n := testutil.CollectAndCount(metrics.StreamDuration); n != 1 {
		t.Errorf("stream duration series = %d", n)
	}
}

func TestService_Stream_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	svc, _ := newTestService(t, 50*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, createSSEStream(`{"type":"assistant_chunk","content":"A"}`))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	renderer := ux.NewBufferStreamRenderer()
	start := time.Now()
	result, err := svc.Stream(context.Background(), EndpointChat, ChatRequest{Message: "x"}, renderer)
	if !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("expected ErrIdleTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("idle timeout took %v", time.Since(start))
	}
	if result.Cancelled {
		t.Error("idle timeout is not a user cancellation")
	}
	if result.Content != "A" {
		t.Errorf("partial content lost: %q", result.Content)
	}
	if n := countErrors(renderer.Events()); n != 1 {
		t.Errorf("OnError called %d times, want 1", n)
	}
}

func TestService_Classify(t *testing.T) {
	svc := NewService(Config{Client: apiclient.New(apiclient.Config{BaseURL: "http://127.0.0.1:0"}), IdleTimeout: time.Second})

	idle, fire := context.WithCancelCause(context.Background())
	fire(ErrIdleTimeout)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	readErr := errors.New("read: connection reset")

	tests := []struct {
		name        string
		ctx         context.Context
		streamCtx   context.Context
		err         error
		wantOutcome string
		wantErr     error
	}{
		{"clean end", context.Background(), context.Background(), nil, telemetry.OutcomeSuccess, nil},
		{"watchdog fired after a clean end", context.Background(), idle, nil, telemetry.OutcomeSuccess, nil},
		{"watchdog cut the read", context.Background(), idle, context.Canceled, telemetry.OutcomeTimeout, ErrIdleTimeout},
		{"caller cancelled", cancelled, idle, context.Canceled, telemetry.OutcomeCancelled, ErrCancelled},
		{"transport failure", context.Background(), context.Background(), readErr, telemetry.OutcomeError, readErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := svc.classify(tt.ctx, tt.streamCtx, tt.err)
			if outcome != tt.wantOutcome {
				t.Errorf("outcome = %q, want %q", outcome, tt.wantOutcome)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_Stream_UnknownEventIgnored(t *testing.T) {
	svc, _ := newTestService(t, 0, sseHandler(createSSEStream(
		`{"type":"heartbeat"}`,
		`{"type":"assistant_chunk","content":"ok"}`,
		`{"type":"complete"}`,
	)))

	result, err := svc.Stream(context.Background(), EndpointChat, ChatRequest{Message: "x"}, ux.NewBufferStreamRenderer())
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if result.Content != "ok" {
		t.Errorf("Content = %q", result.Content)
	}
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestRequests_Validate(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"chat ok", ChatRequest{Message: "hi"}.Validate(), false},
		{"chat blank", ChatRequest{Message: "  "}.Validate(), true},
		{"chat bad conversation id", ChatRequest{Message: "hi", ConversationID: "../x"}.Validate(), true},
		{"chat bad language", ChatRequest{Message: "hi", Language: "de"}.Validate(), true},
		{"tool ok", StreamingRequest{ToolType: "hr", Message: "hi"}.Validate(), false},
		{"tool missing type", StreamingRequest{Message: "hi"}.Validate(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", tt.err, tt.wantErr)
			}
			if tt.err != nil && !errors.Is(tt.err, validation.ErrInvalid) {
				t.Errorf("error should match ErrInvalid: %v", tt.err)
			}
		})
	}
}

func TestService_Chat_RejectsInvalidBeforeSending(t *testing.T) {
	called := false
	svc, _ := newTestService(t, 0, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := svc.Chat(context.Background(), ChatRequest{Message: ""}, ux.NewBufferStreamRenderer())
	if !errors.Is(err, validation.ErrInvalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if called {
		t.Error("request should not be sent")
	}
}

// =============================================================================
// Session Tests
// =============================================================================

func TestService_Sessions(t *testing.T) {
	var deleted string
	svc, _ := newTestService(t, 0, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == EndpointSession:
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			fmt.Fprintf(w, `{"session_id":"sess-%s"}`, body["tool_type"])
		case r.Method == http.MethodDelete && r.URL.Path == EndpointSession+"/sess-hr":
			deleted = "sess-hr"
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	id, err := svc.CreateSession(ctx, "hr")
	if err != nil || id != "sess-hr" {
		t.Fatalf("CreateSession() = %q, %v", id, err)
	}
	if err := svc.EndSession(ctx, id); err != nil {
		t.Fatalf("EndSession() error: %v", err)
	}
	if deleted != "sess-hr" {
		t.Error("DELETE not sent")
	}
	if err := svc.EndSession(ctx, "sess-gone"); err != nil {
		t.Errorf("EndSession on unknown session should be nil, got %v", err)
	}
	if err := svc.EndSession(ctx, "../etc"); !errors.Is(err, validation.ErrInvalid) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_CreateSession_MissingID(t *testing.T) {
	svc, _ := newTestService(t, 0, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	if _, err := svc.CreateSession(context.Background(), "hr"); !errors.Is(err, validation.ErrInvalid) {
		t.Errorf("expected validation error for missing session_id, got %v", err)
	}
}
