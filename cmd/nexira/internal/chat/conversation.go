// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chat holds the local state of a conversation and drives the send
// sequence: create the conversation if needed, persist the user message,
// stream the reply, persist it, then reload from the backend.
package chat

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a local message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOK        Status = "ok"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a message in this state accepts no more events.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Message is one message as the user sees it.
type Message struct {
	ID         string
	Role       history.Role
	Content    string
	Timestamp  time.Time
	Status     Status
	Error      string
	Provider   string
	Model      string
	Structured *ux.StructuredResult

	// ServerID is the backend message id once known.
	ServerID string
}

// Conversation is the local, ordered view of one conversation. Safe for
// concurrent use: a stream may write into it while the UI reads it.
type Conversation struct {
	mu       sync.RWMutex
	id       string
	title    string
	messages []Message
}

func NewConversation(id, title string) *Conversation {
	return &Conversation{id: id, title: title}
}

// FromHistory builds local state from a fetched conversation. Every
// persisted message is ok.
func FromHistory(h *history.Conversation) *Conversation {
	c := NewConversation(string(h.ID), h.Title)
	c.messages = fromHistory(h.Messages)
	return c
}

func fromHistory(msgs []history.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{
			ID:        string(m.ID),
			ServerID:  string(m.ID),
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: time.Time(m.Timestamp),
			Status:    StatusOK,
			Provider:  m.Provider,
			Model:     m.Model,
		})
	}
	return out
}

func (c *Conversation) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *Conversation) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.title
}

func (c *Conversation) setID(id, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	if title != "" {
		c.title = title
	}
}

// Messages returns a copy of the messages in order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.messages)
}

// Message returns a copy of the message with id.
func (c *Conversation) Message(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.messages[i], true
	}
	return Message{}, false
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// AddUser appends a user message and returns its local id. It stays
// pending until Complete (persisted) or Fail.
func (c *Conversation) AddUser(content string) string {
	return c.add(Message{Role: history.RoleUser, Content: content, Status: StatusPending})
}

// AddPendingAssistant appends an empty assistant message that stream events
// will fill in.
func (c *Conversation) AddPendingAssistant(provider, model string) string {
	return c.add(Message{Role: history.RoleAssistant, Status: StatusPending, Provider: provider, Model: model})
}

func (c *Conversation) add(m Message) string {
	m.ID = uuid.NewString()
	m.Timestamp = time.Now()
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
	return m.ID
}

// Apply folds one stream event into the message with id and reports
// whether it changed anything.
//
// # Description
//
// Chunks append to Content, a structured result replaces the structured
// view, complete marks the message ok and an error event marks it failed.
// A message that has left the pending state is frozen: late events for a
// cancelled or finished message are dropped. Events for an id that is not
// in this conversation are dropped too, so a stream that outlives a
// conversation switch cannot write into the wrong conversation.
func (c *Conversation) Apply(id string, event ux.StreamEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 || c.messages[i].Status.Terminal() {
		return false
	}
	m := &c.messages[i]

	switch event.Type {
	case ux.StreamEventChunk:
		m.Content += event.Content
	case ux.StreamEventStructured:
		m.Structured = event.Structured
	case ux.StreamEventComplete:
		m.Status = StatusOK
		if event.Structured != nil {
			m.Structured = event.Structured
		}
	case ux.StreamEventError:
		m.Status = StatusError
		m.Error = event.Error
	default:
		return false
	}

	if event.MessageID != "" {
		m.ServerID = event.MessageID
	}
	if event.Provider != "" {
		m.Provider = event.Provider
	}
	if event.Model != "" {
		m.Model = event.Model
	}
	return true
}

// Cancel freezes a pending message as cancelled, keeping the partial
// content.
func (c *Conversation) Cancel(id string) bool {
	return c.finish(id, StatusCancelled, "cancelled")
}

// Fail freezes a pending message as failed.
func (c *Conversation) Fail(id string, err error) bool {
	return c.finish(id, StatusError, fmt.Sprint(err))
}

// Complete marks a pending message ok: a user message once persisted, or an
// assistant message whose stream ended cleanly without a complete event.
func (c *Conversation) Complete(id string) bool {
	return c.finish(id, StatusOK, "")
}

func (c *Conversation) finish(id string, status Status, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 || c.messages[i].Status.Terminal() {
		return false
	}
	c.messages[i].Status = status
	if status != StatusOK {
		c.messages[i].Error = reason
	}
	return true
}

// Reconcile replaces local messages with the persisted ones. Local
// messages that were never persisted (cancelled or failed turns) are kept
// after them so the user still sees what happened.
func (c *Conversation) Reconcile(h *history.Conversation) {
	persisted := fromHistory(h.Messages)

	c.mu.Lock()
	defer c.mu.Unlock()

	if h.Title != "" {
		c.title = h.Title
	}
	if len(persisted) == 0 && len(c.messages) > 0 {
		// The backend has not caught up; keep what we have.
		return
	}

	seen := make(map[string]bool, len(persisted))
	for _, m := range persisted {
		seen[m.ServerID] = true
	}
	for _, m := range c.messages {
		if m.Status == StatusCancelled || m.Status == StatusError {
			if m.ServerID == "" || !seen[m.ServerID] {
				persisted = append(persisted, m)
			}
		}
	}
	c.messages = persisted
}

// Clear drops every local message. The conversation id is kept.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

func (c *Conversation) indexOf(id string) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}
