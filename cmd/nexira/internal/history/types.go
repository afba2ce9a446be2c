// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// =============================================================================
// IDS
// =============================================================================

// ID is a backend identifier coerced to a plain string.
//
// The chat-history backend is Mongo-backed and, depending on the endpoint,
// returns ids as strings, numbers, {"$oid": "..."} objects, or objects
// wrapping another id under "id" or "_id". All of them decode to the same
// string. Any other shape decodes to its compact JSON text.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(data []byte) error {
	s, err := normalizeID(data, 0)
	if err != nil {
		return err
	}
	*id = ID(s)
	return nil
}

// maxIDDepth bounds {"id": {"_id": {...}}} nesting.
const maxIDDepth = 4

func normalizeID(data []byte, depth int) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if depth > maxIDDepth {
		return compactJSON(data), nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return "", err
		}
		for _, key := range []string{"$oid", "id", "_id", "$id"} {
			if raw, ok := obj[key]; ok {
				return normalizeID(raw, depth+1)
			}
		}
		return compactJSON(data), nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return compactJSON(data), nil
		}
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		return n.String(), nil
	}
}

func compactJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGES & CONVERSATIONS
// =============================================================================

// Message is one persisted chat message.
type Message struct {
	ID        ID              `json:"id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Timestamp strfmt.DateTime `json:"timestamp"`
	Provider  string          `json:"provider,omitempty"`
	Model     string          `json:"model,omitempty"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID        ID     `json:"id"`
		MongoID   ID     `json:"_id"`
		Role      Role   `json:"role"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
		CreatedAt string `json:"created_at"`
		Provider  string `json:"provider"`
		Model     string `json:"model"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	ts := firstNonEmpty(wire.Timestamp, wire.CreatedAt)
	parsed, err := parseTime(ts)
	if err != nil {
		return fmt.Errorf("message timestamp: %w", err)
	}

	*m = Message{
		ID:        firstID(wire.ID, wire.MongoID),
		Role:      Role(strings.ToLower(string(wire.Role))),
		Content:   wire.Content,
		Timestamp: parsed,
		Provider:  wire.Provider,
		Model:     wire.Model,
	}
	return nil
}

// Conversation is a persisted, ordered list of messages. Messages is empty
// in list responses; MessageCount carries the size instead.
type Conversation struct {
	ID           ID              `json:"id"`
	Title        string          `json:"title"`
	Messages     []Message       `json:"messages,omitempty"`
	CreatedAt    strfmt.DateTime `json:"created_at"`
	UpdatedAt    strfmt.DateTime `json:"updated_at"`
	Archived     bool            `json:"archived"`
	MessageCount int             `json:"message_count"`
}

func (c *Conversation) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID             ID        `json:"id"`
		MongoID        ID        `json:"_id"`
		ConversationID ID        `json:"conversation_id"`
		Title          string    `json:"title"`
		Messages       []Message `json:"messages"`
		CreatedAt      string    `json:"created_at"`
		UpdatedAt      string    `json:"updated_at"`
		Archived       bool      `json:"archived"`
		IsArchived     bool      `json:"is_archived"`
		MessageCount   *int      `json:"message_count"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	created, err := parseTime(wire.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation created_at: %w", err)
	}
	updated, err := parseTime(wire.UpdatedAt)
	if err != nil {
		return fmt.Errorf("conversation updated_at: %w", err)
	}

	count := len(wire.Messages)
	if wire.MessageCount != nil {
		count = *wire.MessageCount
	}

	*c = Conversation{
		ID:           firstID(wire.ID, wire.MongoID, wire.ConversationID),
		Title:        wire.Title,
		Messages:     wire.Messages,
		CreatedAt:    created,
		UpdatedAt:    updated,
		Archived:     wire.Archived || wire.IsArchived,
		MessageCount: count,
	}
	return nil
}

// LastMessage returns the newest message, or nil.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// ConversationList is one page of conversations.
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// UnmarshalJSON accepts a bare array or an object wrapping the array under
// conversations, items, or data. An entry that fails to decode is skipped
// so one bad record does not hide the rest of the page.
func (l *ConversationList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return err
		}
		convs := decodeConversations(raws)
		*l = ConversationList{Conversations: convs, Total: len(convs)}
		return nil
	}

	var wire struct {
		Conversations []json.RawMessage `json:"conversations"`
		Items         []json.RawMessage `json:"items"`
		Data          []json.RawMessage `json:"data"`
		Results       []json.RawMessage `json:"results"`
		Total         *int              `json:"total"`
	}
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return err
	}

	raws := wire.Conversations
	for _, alt := range [][]json.RawMessage{wire.Items, wire.Data, wire.Results} {
		if raws == nil {
			raws = alt
		}
	}
	convs := decodeConversations(raws)
	total := len(convs)
	if wire.Total != nil {
		total = *wire.Total
	}
	*l = ConversationList{Conversations: convs, Total: total}
	return nil
}

func decodeConversations(raws []json.RawMessage) []Conversation {
	if raws == nil {
		return nil
	}
	convs := make([]Conversation, 0, len(raws))
	for i, raw := range raws {
		var conv Conversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			slog.Warn("skipping undecodable conversation", "index", i, "error", err)
			continue
		}
		convs = append(convs, conv)
	}
	return convs
}

// =============================================================================
// HELPERS
// =============================================================================

// naiveLayouts covers Python isoformat() output without a zone, which
// strfmt does not accept. Such times are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(s string) (strfmt.DateTime, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return strfmt.DateTime{}, nil
	}
	if dt, err := strfmt.ParseDateTime(s); err == nil {
		return dt, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return strfmt.DateTime(t), nil
		}
	}
	return strfmt.DateTime{}, fmt.Errorf("unrecognised time %q", s)
}

func firstID(ids ...ID) ID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
