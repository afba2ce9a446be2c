// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package streaming is the one streaming chat client used by every command
// that talks to an SSE endpoint.
//
// It follows the layered streaming architecture:
//
//	HTTP Response Body → SSEParser → SSEStreamReader → StreamRenderer → StreamResult
//
// Plain chat goes to /chat/stream; agent tools go to /streaming/chat with a
// tool session created through /streaming/session. There is no retry and no
// reconnection: a failed turn surfaces once and the user resends.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/telemetry"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// Endpoints.
const (
	EndpointChat     = "/chat/stream"
	EndpointToolChat = "/streaming/chat"
	EndpointSession  = "/streaming/session"
)

// DefaultIdleTimeout applies when Config.IdleTimeout is zero.
const DefaultIdleTimeout = 2 * time.Minute

var (
	// ErrCancelled is returned when the caller's context ends mid-stream. The
	// partial result is returned alongside it with Cancelled set.
	ErrCancelled = errors.New("stream cancelled")

	// ErrIdleTimeout is returned when no bytes arrive for the idle window.
	ErrIdleTimeout = errors.New("stream idle timeout")
)

// =============================================================================
// REQUESTS
// =============================================================================

// StreamingRequest is the body of a tool stream on /streaming/chat.
type StreamingRequest struct {
	ToolType  string         `json:"tool_type" validate:"required"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message" validate:"notblank,maxbytes"`
	Language  string         `json:"language,omitempty" validate:"omitempty,oneof=en vi es"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (r StreamingRequest) Validate() error {
	return validation.Struct("streaming request", r)
}

// ChatRequest is the body of a plain chat stream on /chat/stream.
type ChatRequest struct {
	Message        string `json:"message" validate:"notblank,maxbytes"`
	ConversationID string `json:"conversation_id,omitempty" validate:"omitempty,pathsafe"`
	Provider       string `json:"provider,omitempty"`
	Model          string `json:"model,omitempty"`
	Language       string `json:"language,omitempty" validate:"omitempty,oneof=en vi es"`
}

func (r ChatRequest) Validate() error {
	return validation.Struct("chat request", r)
}

// =============================================================================
// SERVICE
// =============================================================================

type Config struct {
	// Client is the transport rooted at the streaming base URL (required).
	Client *apiclient.Client

	// IdleTimeout bounds the silence between two reads. Negative disables it.
	IdleTimeout time.Duration
}

// Service runs streaming turns. Safe for concurrent use; each call to Stream
// is independent and cancelling one does not affect another.
type Service struct {
	client  *apiclient.Client
	reader  ux.StreamReader
	idle    time.Duration
	metrics *telemetry.Metrics
}

func NewService(cfg Config) *Service {
	idle := cfg.IdleTimeout
	if idle == 0 {
		idle = DefaultIdleTimeout
	}
	return &Service{
		client:  cfg.Client,
		reader:  ux.NewSSEStreamReader(ux.NewSSEParser()),
		idle:    idle,
		metrics: cfg.Client.Metrics(),
	}
}

// Chat streams one plain chat turn.
func (s *Service) Chat(ctx context.Context, req ChatRequest, renderer ux.StreamRenderer) (*ux.StreamResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.Stream(ctx, EndpointChat, req, renderer)
}

// Tool streams one agent tool turn.
func (s *Service) Tool(ctx context.Context, req StreamingRequest, renderer ux.StreamRenderer) (*ux.StreamResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.Stream(ctx, EndpointToolChat, req, renderer)
}

// Stream POSTs body to endpoint and feeds every event to renderer.
//
// # Outputs
//
//   - *ux.StreamResult: always non-nil once the request was attempted,
//     holding whatever arrived
//   - error: nil on a clean end of stream; ErrCancelled when ctx ended;
//     ErrIdleTimeout when the backend went silent; ux.ErrStreamError when the
//     backend sent an error event; the transport error otherwise
//
// Transport failures and timeouts are reported to renderer.OnError exactly
// once. Stream error events reach OnError through ux.Dispatch. Cancellation
// is not an error from the renderer's point of view.
func (s *Service) Stream(ctx context.Context, endpoint string, body any, renderer ux.StreamRenderer) (*ux.StreamResult, error) {
	start := time.Now()
	streamCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	err := s.run(streamCtx, cancel, endpoint, body, renderer)

	outcome, err := s.classify(ctx, streamCtx, err)
	if outcome == telemetry.OutcomeTimeout || outcome == telemetry.OutcomeError {
		renderer.OnError(ctx, err)
	}
	renderer.Finalize()

	result := renderer.Result()
	if outcome == telemetry.OutcomeCancelled {
		result.Cancelled = true
	}
	if err == nil && result.HasError() {
		outcome = telemetry.OutcomeError
		err = fmt.Errorf("%w: %s", ux.ErrStreamError, result.Error)
	}

	s.metrics.RecordStream(endpoint, outcome, time.Since(start), result.TimeToFirstChunk())
	slog.Debug("stream finished",
		"endpoint", endpoint,
		"outcome", outcome,
		"chunks", result.TotalChunks,
		"message_id", result.MessageID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, err
}

// classify maps the result of run to a stream outcome. A watchdog that fires
// after the body was fully read does not turn a clean end into a timeout.
func (s *Service) classify(ctx, streamCtx context.Context, err error) (string, error) {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess, nil
	case ctx.Err() != nil:
		return telemetry.OutcomeCancelled, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case errors.Is(context.Cause(streamCtx), ErrIdleTimeout):
		return telemetry.OutcomeTimeout, fmt.Errorf("%w: no data for %s", ErrIdleTimeout, s.idle)
	}
	return telemetry.OutcomeError, err
}

// run opens the stream and reads it. A transport error is returned without
// being reported; Stream decides how to surface it.
func (s *Service) run(ctx context.Context, cancel context.CancelCauseFunc, endpoint string, body any, renderer ux.StreamRenderer) error {
	resp, err := s.client.Stream(ctx, endpoint, body)
	if err != nil {
		return err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			slog.Debug("failed to close stream body", "error", err)
		}
	}(resp.Body)

	source := io.Reader(resp.Body)
	if s.idle > 0 {
		watchdog := newIdleReader(resp.Body, s.idle, func() { cancel(ErrIdleTimeout) })
		defer watchdog.stop()
		source = watchdog
	}

	return s.reader.Read(ctx, source, func(event ux.StreamEvent) error {
		s.metrics.RecordStreamEvent(string(event.Type))
		if !event.Type.IsKnown() {
			slog.Debug("ignoring unknown stream event", "type", event.Type, "index", event.Index)
		}
		ux.Dispatch(ctx, renderer, event)
		return nil
	})
}

// =============================================================================
// SESSIONS
// =============================================================================

type sessionResponse struct {
	SessionID string `json:"session_id" validate:"required"`
}

// CreateSession opens a tool session for toolType.
func (s *Service) CreateSession(ctx context.Context, toolType string) (string, error) {
	if err := validation.Var("tool_type", toolType, "required"); err != nil {
		return "", err
	}
	var out sessionResponse
	if err := s.client.Post(ctx, EndpointSession, map[string]string{"tool_type": toolType}, &out); err != nil {
		return "", fmt.Errorf("create streaming session: %w", err)
	}
	if err := validation.Struct("streaming session", out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// EndSession closes a tool session. A session the backend no longer knows
// is treated as already closed.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	if err := validation.ValidateID(sessionID); err != nil {
		return err
	}
	err := s.client.Do(ctx, http.MethodDelete, EndpointSession+"/"+sessionID, nil, nil)
	if errors.Is(err, apiclient.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("end streaming session %s: %w", sessionID, err)
	}
	return nil
}

// =============================================================================
// IDLE WATCHDOG
// =============================================================================

// idleReader fires onIdle when no Read returns data within window.
type idleReader struct {
	r      io.Reader
	window time.Duration
	timer  *time.Timer
	once   sync.Once
}

func newIdleReader(r io.Reader, window time.Duration, onIdle func()) *idleReader {
	return &idleReader{r: r, window: window, timer: time.AfterFunc(window, onIdle)}
}

func (i *idleReader) Read(p []byte) (int, error) {
	n, err := i.r.Read(p)
	if n > 0 {
		i.timer.Reset(i.window)
	}
	return n, err
}

func (i *idleReader) stop() {
	i.once.Do(func() { i.timer.Stop() })
}
