// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// =============================================================================
// Terminal Renderer Tests
// =============================================================================

func TestTerminalStreamRenderer_Machine(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	r := NewTerminalStreamRenderer(&buf, PersonalityMachine)

	r.OnStatus(ctx, "Analyzing")
	r.OnChunk(ctx, "Hello")
	r.OnChunk(ctx, " there")
	r.OnComplete(ctx, StreamEvent{MessageID: "m-1"})
	r.Finalize()

	out := buf.String()
	for _, want := range []string{"STATUS: Analyzing\n", "ANSWER: Hello there\n", "MESSAGE: m-1\n", "DONE\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
	if strings.Index(out, "ANSWER:") > strings.Index(out, "DONE") {
		t.Error("ANSWER must precede DONE")
	}

	result := r.Result()
	if result.Content != "Hello there" || !result.Completed || result.MessageID != "m-1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestTerminalStreamRenderer_Minimal_StreamsChunks(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	r := NewTerminalStreamRenderer(&buf, PersonalityMinimal)

	r.OnChunk(ctx, "one ")
	r.OnChunk(ctx, "two")
	r.OnComplete(ctx, StreamEvent{})
	r.Finalize()

	if buf.String() != "one two\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestTerminalStreamRenderer_StreamErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	r := NewTerminalStreamRenderer(&buf, PersonalityMachine)

	r.OnError(ctx, fmt.Errorf("%w: %s", ErrStreamError, "quota exceeded"))
	r.Finalize()

	if !strings.Contains(buf.String(), "ERROR: quota exceeded\n") {
		t.Errorf("expected backend message without prefix, got %q", buf.String())
	}
	if r.Result().Error != "quota exceeded" {
		t.Errorf("Result().Error = %q", r.Result().Error)
	}
}

func TestTerminalStreamRenderer_IgnoresAfterFinalize(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	r := NewTerminalStreamRenderer(&buf, PersonalityMinimal)

	r.OnChunk(ctx, "kept")
	r.Finalize()
	r.Finalize()
	r.OnChunk(ctx, "dropped")
	r.OnError(ctx, errors.New("late"))

	if r.Result().Content != "kept" {
		t.Errorf("Content = %q", r.Result().Content)
	}
	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("output after Finalize: %q", buf.String())
	}
}

func TestTerminalStreamRenderer_StructuredMachineOnComplete(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	r := NewTerminalStreamRenderer(&buf, PersonalityMachine)

	score := 7.5
	r.OnStructured(ctx, &StructuredResult{Title: "Budget", Score: &score})
	if buf.Len() != 0 {
		t.Fatalf("machine mode should defer structured output, got %q", buf.String())
	}
	r.OnComplete(ctx, StreamEvent{})

	out := buf.String()
	if !strings.Contains(out, "TITLE: Budget") || !strings.Contains(out, "SCORE: 7.5") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTerminalStreamRenderer_Tools(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	r := NewTerminalStreamRenderer(&buf, PersonalityMachine)

	r.OnToolCall(ctx, ToolCall{ID: "t1", Name: "web_search"})
	r.OnToolResult(ctx, ToolCall{ID: "t1", Name: "web_search", Output: "5 results"})

	if !strings.Contains(buf.String(), "TOOL: web_search") {
		t.Errorf("unexpected output %q", buf.String())
	}
	calls := r.Result().ToolCalls
	if len(calls) != 1 || calls[0].Output != "5 results" {
		t.Errorf("unexpected tool calls %+v", calls)
	}
}

// =============================================================================
// Buffer Renderer / Dispatch Tests
// =============================================================================

func TestDispatch_RoutesAllEventTypes(t *testing.T) {
	ctx := context.Background()
	r := NewBufferStreamRenderer()

	events := []StreamEvent{
		{Type: StreamEventStatus, Message: "working"},
		{Type: StreamEventToolCall, ToolName: "lookup", ToolCallID: "t1"},
		{Type: StreamEventToolResult, ToolCallID: "t1", ToolOutput: "ok"},
		{Type: StreamEventChunk, Content: "An"},
		{Type: StreamEventChunk, Content: "swer"},
		{Type: StreamEventStructured, Structured: &StructuredResult{Title: "T"}},
		{Type: StreamEventType("heartbeat")},
		{Type: StreamEventComplete, MessageID: "m-3"},
	}
	for _, e := range events {
		Dispatch(ctx, r, e)
	}
	r.Finalize()

	got := r.Events()
	if len(got) != len(events)-1 {
		t.Fatalf("expected %d events (unknown dropped), got %d", len(events)-1, len(got))
	}
	for i, e := range got {
		if e.Index != i {
			t.Errorf("event %d has index %d", i, e.Index)
		}
	}

	result := r.Result()
	if result.Content != "Answer" || result.MessageID != "m-3" || result.Structured == nil {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestDispatch_ErrorWrapsSentinel(t *testing.T) {
	r := NewBufferStreamRenderer()
	Dispatch(context.Background(), r, StreamEvent{Type: StreamEventError, Error: "bad key"})

	if r.Result().Error != "bad key" {
		t.Errorf("Error = %q", r.Result().Error)
	}
}

func TestRenderStream(t *testing.T) {
	reader := NewSSEStreamReader(NewSSEParser())
	r := NewBufferStreamRenderer()

	result, err := RenderStream(context.Background(), reader, strings.NewReader(sseBody(
		`data: {"type":"assistant_chunk","content":"x"}`,
		`data: {"type":"complete","message_id":"m"}`,
	)), r)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "x" || !result.Completed {
		t.Errorf("unexpected result %+v", result)
	}
}

// =============================================================================
// RenderStructured Tests
// =============================================================================

func TestRenderStructured(t *testing.T) {
	score := 8.0
	res := &StructuredResult{
		Title:   "Candidate Review",
		Summary: "Good fit",
		Score:   &score,
		Sections: []StructuredSection{
			{Heading: "Strengths", Items: []string{"Go", "Kubernetes"}},
		},
	}

	machine := RenderStructured(res, PersonalityMachine)
	wantLines := []string{
		"TITLE: Candidate Review",
		"SUMMARY: Good fit",
		"SCORE: 8.0",
		"SECTION: Strengths",
		"ITEM: Go",
		"ITEM: Kubernetes",
	}
	if machine != strings.Join(wantLines, "\n") {
		t.Errorf("machine output = %q", machine)
	}

	minimal := RenderStructured(res, PersonalityMinimal)
	if !strings.HasPrefix(minimal, "Candidate Review\n") || !strings.Contains(minimal, "• Kubernetes") {
		t.Errorf("minimal output = %q", minimal)
	}

	full := RenderStructured(res, PersonalityFull)
	if !strings.Contains(full, "Candidate Review") || !strings.Contains(full, "Strengths") {
		t.Errorf("full output = %q", full)
	}

	if RenderStructured(nil, PersonalityFull) != "" {
		t.Error("nil result should render empty")
	}
}
