// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrStreamError is wrapped by errors built from a stream "error" event.
var ErrStreamError = errors.New("stream error")

// =============================================================================
// Event Types
// =============================================================================

// StreamEventType discriminates the JSON payload of a "data:" record.
type StreamEventType string

const (
	// StreamEventChunk carries incremental assistant text in Content.
	StreamEventChunk StreamEventType = "assistant_chunk"

	// StreamEventStructured carries a terminal structured payload that
	// replaces the raw streamed text view.
	StreamEventStructured StreamEventType = "structured_result"

	// StreamEventComplete marks the message finished.
	StreamEventComplete StreamEventType = "complete"

	// StreamEventError carries a user-visible error and halts the stream.
	StreamEventError StreamEventType = "error"

	// StreamEventToolCall announces a backend tool invocation.
	StreamEventToolCall StreamEventType = "tool_call"

	// StreamEventToolResult carries the output of a tool invocation.
	StreamEventToolResult StreamEventType = "tool_result"

	// StreamEventStatus is progress text shown while waiting for the first chunk.
	StreamEventStatus StreamEventType = "status"
)

// String returns the wire name of the event type.
func (t StreamEventType) String() string {
	return string(t)
}

// IsTerminal reports whether the stream ends after this event.
func (t StreamEventType) IsTerminal() bool {
	return t == StreamEventComplete || t == StreamEventError
}

// IsKnown reports whether the type is one this package understands.
func (t StreamEventType) IsKnown() bool {
	switch t {
	case StreamEventChunk, StreamEventStructured, StreamEventComplete,
		StreamEventError, StreamEventToolCall, StreamEventToolResult, StreamEventStatus:
		return true
	}
	return false
}

// =============================================================================
// Payloads
// =============================================================================

// StructuredResult is the agent's structured answer (report, analysis, scorecard).
type StructuredResult struct {
	Title    string              `json:"title,omitempty"`
	Summary  string              `json:"summary,omitempty"`
	Sections []StructuredSection `json:"sections,omitempty"`
	Items    []string            `json:"items,omitempty"`
	Score    *float64            `json:"score,omitempty"`
}

// StructuredSection is one heading of a StructuredResult.
type StructuredSection struct {
	Heading string   `json:"heading,omitempty"`
	Content string   `json:"content,omitempty"`
	Items   []string `json:"items,omitempty"`
}

// IsEmpty reports whether the result has nothing to display.
func (r *StructuredResult) IsEmpty() bool {
	return r == nil || (r.Title == "" && r.Summary == "" && len(r.Sections) == 0 && len(r.Items) == 0 && r.Score == nil)
}

// Timing is the optional metadata carried by a complete event.
type Timing struct {
	TotalMs      int64 `json:"total_ms,omitempty"`
	FirstChunkMs int64 `json:"first_chunk_ms,omitempty"`
	Tokens       int   `json:"tokens,omitempty"`
}

// ToolCall records a tool_call event and, once seen, its tool_result.
type ToolCall struct {
	ID     string          `json:"id,omitempty"`
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args,omitempty"`
	Output string          `json:"output,omitempty"`
}

// =============================================================================
// StreamEvent
// =============================================================================

// StreamEvent is one parsed SSE record.
type StreamEvent struct {
	// Type discriminates the remaining fields.
	Type StreamEventType

	// Index is the 0-based position of the event within its stream.
	Index int

	// ReceivedAt is when the event was parsed.
	ReceivedAt time.Time

	Content    string
	Message    string
	Structured *StructuredResult
	MessageID  string
	SessionID  string
	Provider   string
	Model      string
	Timing     *Timing
	Error      string

	ToolName   string
	ToolCallID string
	ToolArgs   json.RawMessage
	ToolOutput string

	// Synthetic is set when the event was built from a record that was not
	// valid JSON rather than sent by the server.
	Synthetic bool

	// Raw is the joined data payload of the record.
	Raw string
}

// IsTerminal reports whether the stream ends after this event.
func (e StreamEvent) IsTerminal() bool {
	return e.Type.IsTerminal()
}

// =============================================================================
// StreamResult
// =============================================================================

// StreamResult aggregates a whole stream.
type StreamResult struct {
	// Content is the in-order concatenation of assistant_chunk contents.
	Content string

	// Structured is the last structured_result payload, if any.
	Structured *StructuredResult

	MessageID string
	SessionID string
	Provider  string
	Model     string
	Timing    *Timing
	ToolCalls []ToolCall

	// Error is the message of a terminal error event. A stream that ends
	// with an error event is not a transport failure; callers check HasError.
	Error string

	// Completed is true once a complete event was seen.
	Completed bool

	// Cancelled is true when the caller's context ended the stream.
	Cancelled bool

	TotalChunks  int
	TotalEvents  int
	StartedAt    time.Time
	FirstChunkAt time.Time
	CompletedAt  time.Time
}

// HasError reports whether the stream ended with an error event.
func (r *StreamResult) HasError() bool {
	return r != nil && r.Error != ""
}

// Duration is the time from start to completion, or zero if unknown.
func (r *StreamResult) Duration() time.Duration {
	if r == nil || r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// TimeToFirstChunk is the latency of the first assistant_chunk, or zero.
func (r *StreamResult) TimeToFirstChunk() time.Duration {
	if r == nil || r.StartedAt.IsZero() || r.FirstChunkAt.IsZero() {
		return 0
	}
	return r.FirstChunkAt.Sub(r.StartedAt)
}

// Apply folds one event into the result.
//
// This is the single accumulation rule shared by ReadAll and the terminal
// renderer, so both agree on what a stream produced.
func (r *StreamResult) Apply(event StreamEvent) {
	r.TotalEvents++

	switch event.Type {
	case StreamEventChunk:
		if r.FirstChunkAt.IsZero() {
			r.FirstChunkAt = event.ReceivedAt
		}
		r.Content += event.Content
		r.TotalChunks++

	case StreamEventStructured:
		r.Structured = event.Structured

	case StreamEventToolCall:
		r.ToolCalls = append(r.ToolCalls, ToolCall{
			ID:   event.ToolCallID,
			Name: event.ToolName,
			Args: event.ToolArgs,
		})

	case StreamEventToolResult:
		for i := len(r.ToolCalls) - 1; i >= 0; i-- {
			if r.ToolCalls[i].ID == event.ToolCallID || (event.ToolCallID == "" && r.ToolCalls[i].Name == event.ToolName) {
				r.ToolCalls[i].Output = event.ToolOutput
				break
			}
		}

	case StreamEventComplete:
		r.Completed = true
		r.CompletedAt = event.ReceivedAt
		if event.Timing != nil {
			r.Timing = event.Timing
		}
		if event.Structured != nil {
			r.Structured = event.Structured
		}

	case StreamEventError:
		r.Error = event.Error
		r.CompletedAt = event.ReceivedAt
	}

	if event.MessageID != "" {
		r.MessageID = event.MessageID
	}
	if event.SessionID != "" {
		r.SessionID = event.SessionID
	}
	if event.Provider != "" {
		r.Provider = event.Provider
	}
	if event.Model != "" {
		r.Model = event.Model
	}
}
