// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/streaming"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// ErrEmptyReply is returned when a REST agent answered without content.
var ErrEmptyReply = errors.New("agent returned an empty reply")

// ToolStreamer is the subset of streaming.Service used by streaming agents.
type ToolStreamer interface {
	CreateSession(ctx context.Context, toolType string) (string, error)
	EndSession(ctx context.Context, sessionID string) error
	Tool(ctx context.Context, req streaming.StreamingRequest, renderer ux.StreamRenderer) (*ux.StreamResult, error)
}

// Poster is the subset of apiclient.Client used by REST agents.
type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}

// Runner executes agents against the backend.
type Runner struct {
	Streamer ToolStreamer
	REST     Poster
	Language string
}

// Run sends prompt to agent with the given settings.
//
// # Description
//
// Settings are validated and defaulted first. Streaming agents open a tool
// session, stream the reply through renderer and always end the session,
// even when ctx was cancelled. REST agents post one request; the reply is
// replayed to renderer as a structured result or a single chunk followed by
// a complete event, so callers render both kinds the same way.
//
// # Outputs
//
//   - *ux.StreamResult: what the renderer accumulated
//   - error: a *validation.Error, streaming.ErrCancelled, ux.ErrStreamError,
//     ErrEmptyReply, or a transport error
func (r *Runner) Run(ctx context.Context, agent Agent, prompt string, values map[string]string, renderer ux.StreamRenderer) (*ux.StreamResult, error) {
	if err := validation.Var("prompt", prompt, "notblank,maxbytes"); err != nil {
		return nil, err
	}
	settings, err := agent.Validate(values)
	if err != nil {
		return nil, err
	}

	slog.Debug("running agent", "agent", agent.Slug, "streaming", agent.Streaming)
	if agent.Streaming {
		return r.stream(ctx, agent, prompt, settings, renderer)
	}
	return r.post(ctx, agent, prompt, settings, renderer)
}

func (r *Runner) stream(ctx context.Context, agent Agent, prompt string, settings map[string]string, renderer ux.StreamRenderer) (*ux.StreamResult, error) {
	if r.Streamer == nil {
		return nil, fmt.Errorf("agent %s: no streaming client configured", agent.Slug)
	}
	sessionID, err := r.Streamer.CreateSession(ctx, agent.ToolType)
	if err != nil {
		return nil, fmt.Errorf("start %s session: %w", agent.Slug, err)
	}
	defer func() {
		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := r.Streamer.EndSession(endCtx, sessionID); err != nil {
			slog.Warn("failed to end agent session", "agent", agent.Slug, "session_id", sessionID, "error", err)
		}
	}()

	metadata := make(map[string]any, len(settings))
	for k, v := range settings {
		metadata[k] = v
	}
	return r.Streamer.Tool(ctx, streaming.StreamingRequest{
		ToolType:  agent.ToolType,
		SessionID: sessionID,
		Message:   prompt,
		Language:  r.Language,
		Metadata:  metadata,
	}, renderer)
}

// restReply accepts the field names the analysis endpoints use.
type restReply struct {
	Result           json.RawMessage      `json:"result"`
	Content          string               `json:"content"`
	Output           string               `json:"output"`
	StructuredResult *ux.StructuredResult `json:"structured_result"`
	MessageID        string               `json:"message_id"`
}

func (r *Runner) post(ctx context.Context, agent Agent, prompt string, settings map[string]string, renderer ux.StreamRenderer) (*ux.StreamResult, error) {
	if r.REST == nil {
		return nil, fmt.Errorf("agent %s: no api client configured", agent.Slug)
	}
	finish := func() *ux.StreamResult {
		renderer.Finalize()
		return renderer.Result()
	}

	body := make(map[string]any, len(settings)+2)
	for k, v := range settings {
		body[k] = v
	}
	body["prompt"] = prompt
	if r.Language != "" {
		body["language"] = r.Language
	}

	renderer.OnStatus(ctx, agent.Title+" is working...")
	var reply restReply
	if err := r.REST.Post(ctx, agent.Endpoint, body, &reply); err != nil {
		if ctx.Err() != nil {
			res := finish()
			res.Cancelled = true
			return res, fmt.Errorf("%w: %w", streaming.ErrCancelled, ctx.Err())
		}
		renderer.OnError(ctx, err)
		return finish(), fmt.Errorf("agent %s: %w", agent.Slug, err)
	}

	text, structured := reply.decode()
	switch {
	case !structured.IsEmpty():
		ux.Dispatch(ctx, renderer, ux.StreamEvent{Type: ux.StreamEventStructured, Structured: structured})
	case text != "":
		ux.Dispatch(ctx, renderer, ux.StreamEvent{Type: ux.StreamEventChunk, Content: text})
	default:
		renderer.OnError(ctx, ErrEmptyReply)
		return finish(), fmt.Errorf("agent %s: %w", agent.Slug, ErrEmptyReply)
	}
	ux.Dispatch(ctx, renderer, ux.StreamEvent{Type: ux.StreamEventComplete, MessageID: reply.MessageID})
	return finish(), nil
}

// decode picks the reply text and structured result. "result" may be a
// string or a structured object; content and output win over an object in
// an unknown shape.
func (r restReply) decode() (string, *ux.StructuredResult) {
	structured := r.StructuredResult
	var text, dump string

	raw := bytes.TrimSpace(r.Result)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		_ = json.Unmarshal(raw, &text)
	case raw[0] == '{' && structured.IsEmpty():
		var s ux.StructuredResult
		if err := json.Unmarshal(raw, &s); err != nil {
			slog.Debug("unreadable structured agent result", "error", err)
		}
		if !s.IsEmpty() {
			structured = &s
			break
		}
		var pretty bytes.Buffer
		if json.Indent(&pretty, raw, "", "  ") == nil {
			dump = pretty.String()
		}
	}
	return firstNonEmpty(text, r.Content, r.Output, dump), structured
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
