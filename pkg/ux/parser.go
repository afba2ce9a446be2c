// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides the streaming and terminal presentation layer for the
// Nexira CLI.
//
// This file contains the SSE record parser. A record is the text between two
// blank lines of a text/event-stream body:
//
//	data: {"type":"assistant_chunk","content":"Hi"}
//
//	data: {"type":"complete","message_id":"m-1"}
//
// The parser turns one record into one StreamEvent. It does not do I/O;
// framing is the StreamReader's job.
package ux

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// doneSentinel is the OpenAI-style end marker some backends emit.
const doneSentinel = "[DONE]"

// =============================================================================
// Parser Interface
// =============================================================================

// SSEParser converts SSE records into events.
type SSEParser interface {
	// ParseRecord parses one record (lines between blank-line separators).
	//
	// Returns (nil, nil) for records with nothing to dispatch: comments,
	// records with no data field, and JSON-looking data that fails to decode.
	// Data that is not JSON at all becomes a synthetic error event.
	ParseRecord(record string) (*StreamEvent, error)

	// ParseData parses an already-extracted data payload.
	ParseData(data string) (*StreamEvent, error)
}

// =============================================================================
// Implementation
// =============================================================================

type sseParser struct {
	now func() time.Time
}

// NewSSEParser returns the default SSE parser.
func NewSSEParser() SSEParser {
	return &sseParser{now: time.Now}
}

// wireEvent is the JSON shape of a data payload. Field aliases cover the
// variations seen across backend endpoints.
type wireEvent struct {
	Type      string          `json:"type"`
	Content   string          `json:"content"`
	Delta     string          `json:"delta"`
	Text      string          `json:"text"`
	Message   string          `json:"message"`
	Result    json.RawMessage `json:"result"`
	Data      json.RawMessage `json:"data"`
	MessageID json.RawMessage `json:"message_id"`
	ID        json.RawMessage `json:"id"`
	SessionID string          `json:"session_id"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Timing    *Timing         `json:"timing"`
	Error     json.RawMessage `json:"error"`
	Detail    string          `json:"detail"`

	ToolName   string          `json:"tool_name"`
	Name       string          `json:"name"`
	ToolCallID string          `json:"tool_call_id"`
	Args       json.RawMessage `json:"args"`
	Arguments  json.RawMessage `json:"arguments"`
	Output     json.RawMessage `json:"output"`
}

// lineEndings folds CRLF and lone CR terminators into LF.
var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func (p *sseParser) ParseRecord(record string) (*StreamEvent, error) {
	var dataLines []string

	for _, line := range strings.Split(lineEndings.Replace(record), "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			// A bare line is a field name with an empty value per the
			// event-stream grammar. Only "data" matters.
			if line == "data" {
				dataLines = append(dataLines, "")
			}
			continue
		}
		value = strings.TrimPrefix(value, " ")

		if field == "data" {
			dataLines = append(dataLines, value)
		}
	}

	if len(dataLines) == 0 {
		return nil, nil
	}

	return p.ParseData(strings.Join(dataLines, "\n"))
}

func (p *sseParser) ParseData(data string) (*StreamEvent, error) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return nil, nil
	}

	if trimmed == doneSentinel {
		return &StreamEvent{
			Type:       StreamEventComplete,
			ReceivedAt: p.now(),
			Raw:        data,
		}, nil
	}

	var raw wireEvent
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		if looksLikeJSON(trimmed) {
			slog.Warn("skipping unparsable SSE data",
				"error", err,
				"data_length", len(trimmed),
			)
			return nil, nil
		}
		slog.Warn("promoting non-JSON SSE data to error event",
			"data_length", len(trimmed),
		)
		return &StreamEvent{
			Type:       StreamEventError,
			Error:      trimmed,
			ReceivedAt: p.now(),
			Synthetic:  true,
			Raw:        data,
		}, nil
	}

	return p.fromWire(raw, data), nil
}

func (p *sseParser) fromWire(raw wireEvent, data string) *StreamEvent {
	event := &StreamEvent{
		Type:       StreamEventType(raw.Type),
		Content:    firstNonEmpty(raw.Content, raw.Delta, raw.Text),
		Message:    raw.Message,
		MessageID:  firstNonEmpty(rawToText(raw.MessageID), rawToText(raw.ID)),
		SessionID:  raw.SessionID,
		Provider:   raw.Provider,
		Model:      raw.Model,
		Timing:     raw.Timing,
		ToolName:   firstNonEmpty(raw.ToolName, raw.Name),
		ToolCallID: raw.ToolCallID,
		ToolArgs:   firstRaw(raw.Args, raw.Arguments),
		ReceivedAt: p.now(),
		Raw:        data,
	}

	if s := decodeStructured(raw.Result); s != nil {
		event.Structured = s
	} else if event.Type == StreamEventStructured {
		event.Structured = decodeStructured(raw.Data)
	}

	if len(raw.Output) > 0 {
		event.ToolOutput = rawToText(raw.Output)
	}

	if event.Type == StreamEventError {
		event.Error = firstNonEmpty(rawToText(raw.Error), raw.Message, raw.Detail, raw.Content)
		if event.Error == "" {
			event.Error = "unknown stream error"
		}
	}

	return event
}

// =============================================================================
// Helpers
// =============================================================================

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstRaw(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

// decodeStructured returns nil unless raw is a JSON object.
func decodeStructured(raw json.RawMessage) *StructuredResult {
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var s StructuredResult
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

// rawToText renders a JSON value as display text: strings unquoted,
// objects with a "message" field reduced to it, anything else compact JSON.
func rawToText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

var _ SSEParser = (*sseParser)(nil)
