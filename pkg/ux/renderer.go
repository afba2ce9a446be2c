// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains stream renderers that display streaming events to
// various outputs (terminal, buffer, etc.).
//
// Single Responsibility:
//
//	Renderers ONLY render. They do not parse, read, or manage HTTP.
//	Each method handles exactly one event type, enabling clean composition.
//
// Renderer Types:
//
//   - TerminalStreamRenderer: Interactive terminal with spinners and colors,
//     or KEY: value lines in machine personality
//   - BufferStreamRenderer: In-memory buffer for testing
package ux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Stream Renderer Interface
// =============================================================================

// StreamRenderer renders streaming events to an output destination.
//
// Each method handles exactly one event type. The renderer owns all
// output-related state (spinners, buffers, formatters). Callers should
// invoke methods in the order events are received; Dispatch does that
// routing for a parsed StreamEvent.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent calls.
//
// Lifecycle:
//
//  1. Create renderer with New*StreamRenderer()
//  2. Call On* methods (or Dispatch) as events arrive
//  3. Call Finalize() when stream ends (always, even on error)
//  4. Call Result() to get aggregated result
type StreamRenderer interface {
	// OnStatus renders a progress message (e.g., "Analyzing candidate...").
	// In interactive mode this starts or updates a spinner.
	OnStatus(ctx context.Context, message string)

	// OnChunk renders one assistant_chunk. Chunks are printed as they
	// arrive in interactive mode and buffered in machine mode.
	OnChunk(ctx context.Context, content string)

	// OnStructured renders a structured result. It replaces the raw text
	// view: the box is printed below whatever was streamed.
	OnStructured(ctx context.Context, result *StructuredResult)

	// OnToolCall renders a tool invocation announcement.
	OnToolCall(ctx context.Context, call ToolCall)

	// OnToolResult renders the output of a tool invocation.
	OnToolResult(ctx context.Context, call ToolCall)

	// OnComplete signals stream completion. The event carries the
	// message id and optional timing metadata.
	OnComplete(ctx context.Context, event StreamEvent)

	// OnError renders a stream or transport error. After OnError only
	// Finalize and Result should be called.
	OnError(ctx context.Context, err error)

	// Finalize stops spinners and freezes the result. Safe to call
	// multiple times.
	Finalize()

	// Result returns a copy of the accumulated result.
	Result() *StreamResult
}

// Dispatch routes a parsed event to the matching renderer method.
// Unknown event types are ignored.
func Dispatch(ctx context.Context, r StreamRenderer, event StreamEvent) {
	switch event.Type {
	case StreamEventStatus:
		r.OnStatus(ctx, firstNonEmpty(event.Message, event.Content))
	case StreamEventChunk:
		r.OnChunk(ctx, event.Content)
	case StreamEventStructured:
		r.OnStructured(ctx, event.Structured)
	case StreamEventToolCall:
		r.OnToolCall(ctx, ToolCall{ID: event.ToolCallID, Name: event.ToolName, Args: event.ToolArgs})
	case StreamEventToolResult:
		r.OnToolResult(ctx, ToolCall{ID: event.ToolCallID, Name: event.ToolName, Output: event.ToolOutput})
	case StreamEventComplete:
		r.OnComplete(ctx, event)
	case StreamEventError:
		r.OnError(ctx, fmt.Errorf("%w: %s", ErrStreamError, event.Error))
	}
}

// errorText strips the ErrStreamError prefix so the user sees the
// backend's message as-is.
func errorText(err error) string {
	msg := err.Error()
	if errors.Is(err, ErrStreamError) {
		msg = strings.TrimPrefix(msg, ErrStreamError.Error()+": ")
	}
	return msg
}

// =============================================================================
// Terminal Stream Renderer
// =============================================================================

// terminalStreamRenderer renders streaming events to an interactive terminal.
//
// Personality Modes:
//
//   - PersonalityFull/Standard: spinner, streamed text, boxed structured results
//   - PersonalityMinimal: streamed text, plain structured results
//   - PersonalityMachine: buffered KEY: value lines for scripting
type terminalStreamRenderer struct {
	writer      io.Writer
	personality PersonalityLevel
	spinner     *Spinner
	result      *StreamResult
	mu          sync.Mutex

	hasWrittenChunk bool
	finalized       bool
}

// NewTerminalStreamRenderer creates a renderer for interactive terminal output.
//
// If w is nil, output goes to os.Stdout.
//
// Example:
//
//	renderer := NewTerminalStreamRenderer(os.Stdout, GetPersonality().Level)
//	defer renderer.Finalize()
func NewTerminalStreamRenderer(w io.Writer, personality PersonalityLevel) StreamRenderer {
	if w == nil {
		w = os.Stdout
	}
	return &terminalStreamRenderer{
		writer:      w,
		personality: personality,
		result:      &StreamResult{StartedAt: time.Now()},
	}
}

func (r *terminalStreamRenderer) stopSpinner() bool {
	if r.spinner == nil {
		return false
	}
	r.spinner.Stop()
	r.spinner = nil
	return true
}

func (r *terminalStreamRenderer) OnStatus(ctx context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.Apply(StreamEvent{Type: StreamEventStatus, Message: message, ReceivedAt: time.Now()})

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "STATUS: %s\n", message)
		return
	}

	// Status after text has started would garble the stream.
	if r.hasWrittenChunk {
		return
	}

	if r.spinner == nil {
		r.spinner = NewSpinner(message).WithWriter(r.writer)
		r.spinner.Start()
	} else {
		r.spinner.UpdateMessage(message)
	}
}

func (r *terminalStreamRenderer) OnChunk(ctx context.Context, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.Apply(StreamEvent{Type: StreamEventChunk, Content: content, ReceivedAt: time.Now()})

	if r.personality == PersonalityMachine {
		return
	}

	if !r.hasWrittenChunk {
		r.hasWrittenChunk = true
		r.stopSpinner()
	}

	fmt.Fprint(r.writer, content)
}

func (r *terminalStreamRenderer) OnStructured(ctx context.Context, result *StructuredResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.Apply(StreamEvent{Type: StreamEventStructured, Structured: result, ReceivedAt: time.Now()})

	if result.IsEmpty() {
		return
	}

	if r.personality == PersonalityMachine {
		// Printed on completion so the final payload wins.
		return
	}

	r.stopSpinner()
	if r.hasWrittenChunk {
		fmt.Fprintln(r.writer)
	}
	fmt.Fprintln(r.writer, RenderStructured(result, r.personality))
}

func (r *terminalStreamRenderer) OnToolCall(ctx context.Context, call ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.Apply(StreamEvent{
		Type:       StreamEventToolCall,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		ToolArgs:   call.Args,
		ReceivedAt: time.Now(),
	})

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "TOOL: %s\n", call.Name)
		return
	}

	if r.spinner != nil {
		r.spinner.UpdateMessage(fmt.Sprintf("Running %s...", call.Name))
		return
	}
	fmt.Fprintf(r.writer, "\n%s %s\n", IconArrow.Render(), Styles.Muted.Render("tool: "+call.Name))
}

func (r *terminalStreamRenderer) OnToolResult(ctx context.Context, call ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.Apply(StreamEvent{
		Type:       StreamEventToolResult,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		ToolOutput: call.Output,
		ReceivedAt: time.Now(),
	})

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "TOOL_RESULT: %s\n", call.Name)
	}
}

func (r *terminalStreamRenderer) OnComplete(ctx context.Context, event StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	event.Type = StreamEventComplete
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	r.result.Apply(event)
	r.stopSpinner()

	if r.personality == PersonalityMachine {
		if r.result.Content != "" {
			fmt.Fprintf(r.writer, "ANSWER: %s\n", r.result.Content)
		}
		if s := r.result.Structured; !s.IsEmpty() {
			fmt.Fprintln(r.writer, RenderStructured(s, PersonalityMachine))
		}
		if r.result.MessageID != "" {
			fmt.Fprintf(r.writer, "MESSAGE: %s\n", r.result.MessageID)
		}
		if r.result.SessionID != "" {
			fmt.Fprintf(r.writer, "SESSION: %s\n", r.result.SessionID)
		}
		fmt.Fprintln(r.writer, "DONE")
		return
	}

	if r.result.Content != "" && !strings.HasSuffix(r.result.Content, "\n") {
		fmt.Fprintln(r.writer)
	}
}

func (r *terminalStreamRenderer) OnError(ctx context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	msg := errorText(err)
	r.result.Apply(StreamEvent{Type: StreamEventError, Error: msg, ReceivedAt: time.Now()})
	r.stopSpinner()

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "ERROR: %s\n", msg)
		return
	}
	fmt.Fprintf(r.writer, "\n%s %s\n", IconError.Render(), Styles.Error.Render(msg))
}

func (r *terminalStreamRenderer) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}
	r.finalized = true
	r.stopSpinner()

	if r.result.CompletedAt.IsZero() {
		r.result.CompletedAt = time.Now()
	}
}

func (r *terminalStreamRenderer) Result() *StreamResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := *r.result
	result.ToolCalls = append([]ToolCall(nil), r.result.ToolCalls...)
	return &result
}

// =============================================================================
// Buffer Stream Renderer (for testing)
// =============================================================================

// BufferStreamRenderer captures events without producing output.
type BufferStreamRenderer struct {
	result    *StreamResult
	events    []StreamEvent
	mu        sync.Mutex
	finalized bool
}

// NewBufferStreamRenderer creates a renderer that buffers events to memory.
func NewBufferStreamRenderer() *BufferStreamRenderer {
	return &BufferStreamRenderer{
		result: &StreamResult{StartedAt: time.Now()},
		events: make([]StreamEvent, 0),
	}
}

func (r *BufferStreamRenderer) record(event StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	event.Index = len(r.events)
	r.events = append(r.events, event)
	r.result.Apply(event)
}

func (r *BufferStreamRenderer) OnStatus(ctx context.Context, message string) {
	r.record(StreamEvent{Type: StreamEventStatus, Message: message})
}

func (r *BufferStreamRenderer) OnChunk(ctx context.Context, content string) {
	r.record(StreamEvent{Type: StreamEventChunk, Content: content})
}

func (r *BufferStreamRenderer) OnStructured(ctx context.Context, result *StructuredResult) {
	r.record(StreamEvent{Type: StreamEventStructured, Structured: result})
}

func (r *BufferStreamRenderer) OnToolCall(ctx context.Context, call ToolCall) {
	r.record(StreamEvent{Type: StreamEventToolCall, ToolName: call.Name, ToolCallID: call.ID, ToolArgs: call.Args})
}

func (r *BufferStreamRenderer) OnToolResult(ctx context.Context, call ToolCall) {
	r.record(StreamEvent{Type: StreamEventToolResult, ToolName: call.Name, ToolCallID: call.ID, ToolOutput: call.Output})
}

func (r *BufferStreamRenderer) OnComplete(ctx context.Context, event StreamEvent) {
	event.Type = StreamEventComplete
	r.record(event)
}

func (r *BufferStreamRenderer) OnError(ctx context.Context, err error) {
	r.record(StreamEvent{Type: StreamEventError, Error: errorText(err)})
}

func (r *BufferStreamRenderer) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}
	r.finalized = true
	if r.result.CompletedAt.IsZero() {
		r.result.CompletedAt = time.Now()
	}
}

func (r *BufferStreamRenderer) Result() *StreamResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := *r.result
	result.ToolCalls = append([]ToolCall(nil), r.result.ToolCalls...)
	return &result
}

// Events returns a copy of all captured events in order.
func (r *BufferStreamRenderer) Events() []StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]StreamEvent, len(r.events))
	copy(events, r.events)
	return events
}

// =============================================================================
// Structured Result Rendering
// =============================================================================

// RenderStructured formats a structured result for the given personality.
// Machine output is one KEY: value line per field.
func RenderStructured(res *StructuredResult, personality PersonalityLevel) string {
	if res.IsEmpty() {
		return ""
	}

	var b strings.Builder

	if personality == PersonalityMachine {
		if res.Title != "" {
			fmt.Fprintf(&b, "TITLE: %s\n", res.Title)
		}
		if res.Summary != "" {
			fmt.Fprintf(&b, "SUMMARY: %s\n", res.Summary)
		}
		if res.Score != nil {
			fmt.Fprintf(&b, "SCORE: %.1f\n", *res.Score)
		}
		for _, sec := range res.Sections {
			fmt.Fprintf(&b, "SECTION: %s\n", sec.Heading)
			if sec.Content != "" {
				fmt.Fprintf(&b, "CONTENT: %s\n", sec.Content)
			}
			for _, item := range sec.Items {
				fmt.Fprintf(&b, "ITEM: %s\n", item)
			}
		}
		for _, item := range res.Items {
			fmt.Fprintf(&b, "ITEM: %s\n", item)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	plain := personality == PersonalityMinimal
	heading := func(s string) string {
		if plain {
			return s
		}
		return Styles.Subtitle.Render(s)
	}

	if res.Summary != "" {
		b.WriteString(res.Summary)
		b.WriteString("\n")
	}
	if res.Score != nil {
		fmt.Fprintf(&b, "%s %.1f\n", heading("Score:"), *res.Score)
	}
	for _, sec := range res.Sections {
		b.WriteString("\n")
		b.WriteString(heading(sec.Heading))
		b.WriteString("\n")
		if sec.Content != "" {
			b.WriteString(sec.Content)
			b.WriteString("\n")
		}
		for _, item := range sec.Items {
			fmt.Fprintf(&b, "  %s %s\n", IconBullet, item)
		}
	}
	if len(res.Items) > 0 {
		b.WriteString("\n")
		for _, item := range res.Items {
			fmt.Fprintf(&b, "  %s %s\n", IconBullet, item)
		}
	}

	body := strings.TrimRight(b.String(), "\n")
	title := res.Title
	if title == "" {
		title = "Result"
	}

	if plain {
		return title + "\n" + body
	}
	return Styles.InfoBox.Width(72).Render(Styles.Title.Render(title) + "\n" + body)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// RenderStream reads source with reader and dispatches every event to
// renderer. The renderer is finalized before returning.
func RenderStream(ctx context.Context, reader StreamReader, source io.Reader, renderer StreamRenderer) (*StreamResult, error) {
	defer renderer.Finalize()

	err := reader.Read(ctx, source, func(event StreamEvent) error {
		Dispatch(ctx, renderer, event)
		return nil
	})

	result := renderer.Result()
	if err != nil && ctx.Err() != nil {
		result.Cancelled = true
	}
	return result, err
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var _ StreamRenderer = (*terminalStreamRenderer)(nil)
var _ StreamRenderer = (*BufferStreamRenderer)(nil)
