// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history is the chat-history REST client.
//
// Every call goes through apiclient, which injects the identity headers
// (user-id, user-name-b64, login-provider) the backend uses to scope
// conversations to a user. Calls are independent: sending a message is
// several requests with no transaction spanning them, and callers
// reconcile by re-fetching.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/pkg/validation"
)

const (
	conversationsPath = "/chat-history/conversations"
	searchPath        = "/chat-history/search"
)

// DefaultPageSize is used when GetConversations is called with limit <= 0.
const DefaultPageSize = 50

// Client wraps the /chat-history endpoints.
type Client struct {
	api *apiclient.Client
}

func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// =============================================================================
// REQUESTS
// =============================================================================

type createRequest struct {
	Title string `json:"title,omitempty" validate:"max=200"`
}

// MessageRequest is the body of an add-message call.
type MessageRequest struct {
	Role     Role   `json:"role" validate:"required,oneof=user assistant system"`
	Content  string `json:"content" validate:"notblank,maxbytes"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

type titleRequest struct {
	Title string `json:"title" validate:"notblank,max=200"`
}

type archiveRequest struct {
	Archived bool `json:"archived"`
}

// =============================================================================
// OPERATIONS
// =============================================================================

// CreateConversation creates an empty conversation. An empty title lets the
// backend choose one.
func (c *Client) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	req := createRequest{Title: title}
	if err := validation.Struct("create conversation", req); err != nil {
		return nil, err
	}

	var conv Conversation
	if err := c.api.Post(ctx, conversationsPath, req, &conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if err := requireID("create conversation", conv.ID); err != nil {
		return nil, err
	}
	slog.Debug("conversation created", "conversation_id", conv.ID)
	return &conv, nil
}

// GetConversations returns one page of conversation summaries.
//
// # Description
//
// Ids are normalized to strings whatever shape the backend sends. Entries
// without any id cannot be addressed afterwards and are dropped with a
// warning.
//
// # Inputs
//
//   - limit: page size; DefaultPageSize when <= 0
//   - offset: number of conversations to skip
//
// # Outputs
//
//   - *ConversationList: the page, newest first as the backend orders it
//   - error: *apiclient.APIError on a non-2xx response
func (c *Client) GetConversations(ctx context.Context, limit, offset int) (*ConversationList, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var list ConversationList
	if err := c.api.Get(ctx, conversationsPath+"?"+q.Encode(), &list); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	list.Conversations = dropUnaddressable(list.Conversations)
	return &list, nil
}

// GetConversation returns one conversation with its messages.
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if err := validation.ValidateID(id); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	var conv Conversation
	if err := c.api.Get(ctx, conversationPath(id), &conv); err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	if conv.ID == "" {
		conv.ID = ID(id)
	}
	return &conv, nil
}

func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	if err := validation.ValidateID(id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := c.api.Delete(ctx, conversationPath(id)); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	slog.Debug("conversation deleted", "conversation_id", id)
	return nil
}

// AddMessage appends a message to a conversation. The backend may answer
// with the stored message, the whole conversation, or nothing; the returned
// Message always carries at least what was sent.
func (c *Client) AddMessage(ctx context.Context, id string, role Role, content, provider, model string) (*Message, error) {
	if err := validation.ValidateID(id); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	req := MessageRequest{Role: role, Content: content, Provider: provider, Model: model}
	if err := validation.Struct("add message", req); err != nil {
		return nil, err
	}

	var msg Message
	if err := c.api.Post(ctx, conversationPath(id)+"/messages", req, &msg); err != nil {
		return nil, fmt.Errorf("add message to %s: %w", id, err)
	}
	if msg.Role == "" {
		msg.Role = role
	}
	if msg.Content == "" {
		msg.Content = content
	}
	if msg.Provider == "" {
		msg.Provider = provider
	}
	if msg.Model == "" {
		msg.Model = model
	}
	return &msg, nil
}

// SearchConversations runs a backend full-text search over titles and
// message content.
func (c *Client) SearchConversations(ctx context.Context, query string) ([]Conversation, error) {
	if err := validation.Var("query", query, "notblank"); err != nil {
		return nil, err
	}

	var list ConversationList
	if err := c.api.Get(ctx, searchPath+"?q="+url.QueryEscape(query), &list); err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	return dropUnaddressable(list.Conversations), nil
}

func (c *Client) UpdateTitle(ctx context.Context, id, title string) error {
	if err := validation.ValidateID(id); err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	req := titleRequest{Title: title}
	if err := validation.Struct("update title", req); err != nil {
		return err
	}
	if err := c.api.Put(ctx, conversationPath(id)+"/title", req, nil); err != nil {
		return fmt.Errorf("update title of %s: %w", id, err)
	}
	return nil
}

// SuggestTitle asks the backend to generate a title from the conversation
// content. The suggestion is returned, not applied.
func (c *Client) SuggestTitle(ctx context.Context, id string) (string, error) {
	if err := validation.ValidateID(id); err != nil {
		return "", fmt.Errorf("suggest title: %w", err)
	}

	var out struct {
		Title          string `json:"title"`
		SuggestedTitle string `json:"suggested_title"`
	}
	if err := c.api.Post(ctx, conversationPath(id)+"/suggest-title", nil, &out); err != nil {
		return "", fmt.Errorf("suggest title for %s: %w", id, err)
	}
	title := firstNonEmpty(out.SuggestedTitle, out.Title)
	if err := validation.Var("title", title, "notblank"); err != nil {
		return "", err
	}
	return title, nil
}

func (c *Client) ArchiveConversation(ctx context.Context, id string, archived bool) error {
	if err := validation.ValidateID(id); err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	if err := c.api.Put(ctx, conversationPath(id)+"/archive", archiveRequest{Archived: archived}, nil); err != nil {
		return fmt.Errorf("archive conversation %s: %w", id, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func conversationPath(id string) string {
	return conversationsPath + "/" + url.PathEscape(id)
}

func requireID(subject string, id ID) error {
	return validation.Var(subject+" id", string(id), "required")
}

func dropUnaddressable(convs []Conversation) []Conversation {
	out := convs[:0]
	for _, conv := range convs {
		if conv.ID == "" {
			slog.Warn("dropping conversation without id", "title", conv.Title)
			continue
		}
		out = append(out, conv)
	}
	return out
}
