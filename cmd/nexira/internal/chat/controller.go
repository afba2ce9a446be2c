// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/streaming"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// HistoryAPI is the subset of the history client the controller needs.
type HistoryAPI interface {
	CreateConversation(ctx context.Context, title string) (*history.Conversation, error)
	GetConversation(ctx context.Context, id string) (*history.Conversation, error)
	AddMessage(ctx context.Context, id string, role history.Role, content, provider, model string) (*history.Message, error)
}

// Streamer runs one plain chat stream.
type Streamer interface {
	Chat(ctx context.Context, req streaming.ChatRequest, renderer ux.StreamRenderer) (*ux.StreamResult, error)
}

// Config wires a Controller.
type Config struct {
	History  HistoryAPI
	Streamer Streamer

	// Provider and Model are sent with every turn and stored on the
	// assistant message. Empty lets the backend choose.
	Provider string
	Model    string
	Language string

	// OnConversation is called with the new current conversation id after a
	// create, switch, or reset ("" on reset). Used to persist
	// nexira_current_conversation.
	OnConversation func(id string)
}

// Turn is the outcome of one Send.
type Turn struct {
	ConversationID     string
	UserMessageID      string
	AssistantMessageID string
	Result             *ux.StreamResult
}

// Controller owns the current conversation and sends turns into it.
//
// Send is sequential: a second Send waits for the first. Switching
// conversations while a turn is streaming is allowed; the running turn
// keeps writing into the conversation it started in.
type Controller struct {
	cfg Config

	sendMu sync.Mutex

	mu      sync.Mutex
	current *Conversation
}

func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg, current: NewConversation("", "")}
}

// Current returns the conversation new turns go into.
func (c *Controller) Current() *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Send runs one chat turn.
//
// # Description
//
// The sequence is: ensure a conversation exists (creating one titled after
// the first message), persist the user message, stream the reply into a
// pending assistant message, persist the reply, and re-fetch the
// conversation to reconcile local state with the backend.
//
// # Inputs
//
//   - ctx: cancelling it cancels the stream; the assistant message is then
//     marked cancelled and not persisted
//   - text: the user's message
//   - renderer: receives every stream event (terminal output, buffer)
//
// # Outputs
//
//   - *Turn: the ids involved and the stream result; non-nil whenever the
//     user message was added locally
//   - error: streaming.ErrCancelled, ux.ErrStreamError, a transport error,
//     or a history error from persisting the user message
//
// # Limitations
//
// There is no transaction across the calls. If the reply cannot be
// persisted the turn still succeeds locally and a warning is logged; the
// next reload shows what the backend actually stored.
func (c *Controller) Send(ctx context.Context, text string, renderer ux.StreamRenderer) (*Turn, error) {
	if err := validation.Var("message", text, "notblank,maxbytes"); err != nil {
		return nil, err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	conv, err := c.ensureConversation(ctx, text)
	if err != nil {
		return nil, err
	}
	convID := conv.ID()

	turn := &Turn{ConversationID: convID}
	turn.UserMessageID = conv.AddUser(text)
	if _, err := c.cfg.History.AddMessage(ctx, convID, history.RoleUser, text, "", ""); err != nil {
		conv.Fail(turn.UserMessageID, err)
		return turn, fmt.Errorf("save message: %w", err)
	}
	conv.Complete(turn.UserMessageID)

	turn.AssistantMessageID = conv.AddPendingAssistant(c.cfg.Provider, c.cfg.Model)
	adapter := &conversationRenderer{inner: renderer, conv: conv, messageID: turn.AssistantMessageID}

	result, err := c.cfg.Streamer.Chat(ctx, streaming.ChatRequest{
		Message:        text,
		ConversationID: convID,
		Provider:       c.cfg.Provider,
		Model:          c.cfg.Model,
		Language:       c.cfg.Language,
	}, adapter)
	turn.Result = result

	switch {
	case errors.Is(err, streaming.ErrCancelled):
		conv.Cancel(turn.AssistantMessageID)
		return turn, err
	case err != nil:
		conv.Fail(turn.AssistantMessageID, err)
		return turn, err
	}
	conv.Complete(turn.AssistantMessageID)

	c.persistReply(ctx, conv, turn)
	c.reload(ctx, conv)
	return turn, nil
}

func (c *Controller) persistReply(ctx context.Context, conv *Conversation, turn *Turn) {
	msg, ok := conv.Message(turn.AssistantMessageID)
	if !ok {
		return
	}
	content := msg.Content
	if strings.TrimSpace(content) == "" && msg.Structured != nil {
		content = ux.RenderStructured(msg.Structured, ux.PersonalityMinimal)
	}
	if strings.TrimSpace(content) == "" {
		slog.Debug("empty reply not persisted", "conversation_id", turn.ConversationID)
		return
	}
	if _, err := c.cfg.History.AddMessage(ctx, turn.ConversationID, history.RoleAssistant, content, msg.Provider, msg.Model); err != nil {
		slog.Warn("failed to save assistant reply",
			"conversation_id", turn.ConversationID,
			"error", err,
		)
	}
}

func (c *Controller) reload(ctx context.Context, conv *Conversation) {
	fresh, err := c.cfg.History.GetConversation(ctx, conv.ID())
	if err != nil {
		slog.Warn("failed to reload conversation",
			"conversation_id", conv.ID(),
			"error", err,
		)
		return
	}
	conv.Reconcile(fresh)
}

func (c *Controller) ensureConversation(ctx context.Context, firstMessage string) (*Conversation, error) {
	conv := c.Current()
	if conv.ID() != "" {
		return conv, nil
	}

	created, err := c.cfg.History.CreateConversation(ctx, titleFrom(firstMessage))
	if err != nil {
		return nil, err
	}
	conv.setID(string(created.ID), created.Title)
	c.announce(string(created.ID))
	return conv, nil
}

// Switch loads conversation id and makes it current.
func (c *Controller) Switch(ctx context.Context, id string) (*Conversation, error) {
	fetched, err := c.cfg.History.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	conv := FromHistory(fetched)

	c.mu.Lock()
	c.current = conv
	c.mu.Unlock()
	c.announce(conv.ID())
	return conv, nil
}

// New starts a fresh conversation. Nothing is created on the backend until
// the first Send.
func (c *Controller) New() *Conversation {
	conv := NewConversation("", "")
	c.mu.Lock()
	c.current = conv
	c.mu.Unlock()
	c.announce("")
	return conv
}

// Clear drops the current conversation's local messages.
func (c *Controller) Clear() {
	c.Current().Clear()
}

func (c *Controller) announce(id string) {
	if c.cfg.OnConversation != nil {
		c.cfg.OnConversation(id)
	}
}

// maxTitleRunes bounds titles derived from the first message.
const maxTitleRunes = 60

func titleFrom(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleRunes-3])) + "..."
}

// =============================================================================
// RENDERER ADAPTER
// =============================================================================

// conversationRenderer forwards every event to inner and folds it into one
// message of conv.
type conversationRenderer struct {
	inner     ux.StreamRenderer
	conv      *Conversation
	messageID string
}

func (r *conversationRenderer) OnStatus(ctx context.Context, message string) {
	r.inner.OnStatus(ctx, message)
}

func (r *conversationRenderer) OnChunk(ctx context.Context, content string) {
	r.conv.Apply(r.messageID, ux.StreamEvent{Type: ux.StreamEventChunk, Content: content})
	r.inner.OnChunk(ctx, content)
}

func (r *conversationRenderer) OnStructured(ctx context.Context, result *ux.StructuredResult) {
	r.conv.Apply(r.messageID, ux.StreamEvent{Type: ux.StreamEventStructured, Structured: result})
	r.inner.OnStructured(ctx, result)
}

func (r *conversationRenderer) OnToolCall(ctx context.Context, call ux.ToolCall) {
	r.inner.OnToolCall(ctx, call)
}

func (r *conversationRenderer) OnToolResult(ctx context.Context, call ux.ToolCall) {
	r.inner.OnToolResult(ctx, call)
}

func (r *conversationRenderer) OnComplete(ctx context.Context, event ux.StreamEvent) {
	event.Type = ux.StreamEventComplete
	r.conv.Apply(r.messageID, event)
	r.inner.OnComplete(ctx, event)
}

func (r *conversationRenderer) OnError(ctx context.Context, err error) {
	msg := err.Error()
	if errors.Is(err, ux.ErrStreamError) {
		msg = strings.TrimPrefix(msg, ux.ErrStreamError.Error()+": ")
	}
	r.conv.Apply(r.messageID, ux.StreamEvent{Type: ux.StreamEventError, Error: msg})
	r.inner.OnError(ctx, err)
}

func (r *conversationRenderer) Finalize() { r.inner.Finalize() }

func (r *conversationRenderer) Result() *ux.StreamResult { return r.inner.Result() }

var _ ux.StreamRenderer = (*conversationRenderer)(nil)
