// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tickets is the client for the support-ticket service: listing,
// detail, creation, assignment, status changes, and responses with file
// attachments uploaded through presigned object-storage URLs.
package tickets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-openapi/strfmt"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/telemetry"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// Endpoints.
const (
	pathMyTickets       = "/ticket/my_tickets"
	pathAllTickets      = "/ticket/all_tickets"
	pathTicket          = "/ticket/"
	pathCreate          = "/ticket/create"
	pathAssign          = "/ticket/assign"
	pathUpdateStatus    = "/ticket/update_status"
	pathAddResponse     = "/ticket/add_response"
	pathPresignUpload   = "/ticket/file_presign_upload"
	pathPresignDownload = "/ticket/file_presign_download"
)

// Scope selects which tickets ListTickets returns.
type Scope string

const (
	// ScopeMine is the tickets the current user opened.
	ScopeMine Scope = "mine"

	// ScopeAll is every ticket; staff only.
	ScopeAll Scope = "all"
)

// DefaultUploadConcurrency bounds parallel presigned uploads.
const DefaultUploadConcurrency = 4

// Client talks to the ticket service. Safe for concurrent use.
type Client struct {
	api     *apiclient.Client
	metrics *telemetry.Metrics

	// UploadConcurrency overrides DefaultUploadConcurrency when positive.
	UploadConcurrency int
}

func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api, metrics: api.Metrics()}
}

// =============================================================================
// READS
// =============================================================================

// ListTickets returns the tickets in scope. Entries that fail validation
// are dropped with a warning rather than failing the whole list.
func (c *Client) ListTickets(ctx context.Context, scope Scope) ([]Ticket, error) {
	path := pathMyTickets
	switch scope {
	case ScopeMine, "":
	case ScopeAll:
		path = pathAllTickets
	default:
		return nil, fmt.Errorf("%w: unknown ticket scope %q", validation.ErrInvalid, scope)
	}

	var raw json.RawMessage
	if err := c.api.Get(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	list, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}

	out := make([]Ticket, 0, len(list))
	for _, t := range list {
		if err := t.Validate(); err != nil {
			slog.Warn("dropping malformed ticket",
				"ticket_number", t.TicketNumber,
				"error", err,
			)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTicket fetches one ticket with its responses.
func (c *Client) GetTicket(ctx context.Context, ticketNumber string) (*Ticket, error) {
	if err := validation.ValidateID(ticketNumber); err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	var raw json.RawMessage
	if err := c.api.Get(ctx, pathTicket+url.PathEscape(ticketNumber), &raw); err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", ticketNumber, err)
	}
	return decodeTicket(raw)
}

// =============================================================================
// WRITES
// =============================================================================

// CreateRequest is the body of a new ticket.
type CreateRequest struct {
	Subject       string       `json:"subject" validate:"notblank,max=200"`
	Description   string       `json:"description" validate:"notblank,maxbytes"`
	Priority      Priority     `json:"priority" validate:"required,oneof=low medium high urgent"`
	Category      Category     `json:"category" validate:"required,oneof=technical billing account feature_request general"`
	CustomerName  string       `json:"customer_name,omitempty"`
	CustomerEmail strfmt.Email `json:"customer_email,omitempty" validate:"omitempty,email"`
}

// CreateTicket opens a ticket. The backend may answer with the full ticket
// or only its number; in the latter case the ticket is fetched.
func (c *Client) CreateTicket(ctx context.Context, req CreateRequest) (*Ticket, error) {
	if err := validation.Struct("create ticket", req); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.api.Post(ctx, pathCreate, req, &raw); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	created, err := decodeTicket(raw)
	if err == nil {
		return created, nil
	}
	var ack struct {
		TicketNumber string `json:"ticket_number"`
		NumberCamel  string `json:"ticketNumber"`
	}
	if jsonErr := json.Unmarshal(raw, &ack); jsonErr != nil || firstNonEmpty(ack.TicketNumber, ack.NumberCamel) == "" {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return c.GetTicket(ctx, firstNonEmpty(ack.TicketNumber, ack.NumberCamel))
}

type assignRequest struct {
	TicketNumber string `json:"ticket_number"`
	AssignedTo   string `json:"assigned_to" validate:"notblank"`
}

// AssignTicket replaces the assignee and returns the refreshed ticket.
func (c *Client) AssignTicket(ctx context.Context, ticketNumber, assignee string) (*Ticket, error) {
	if err := validation.ValidateID(ticketNumber); err != nil {
		return nil, fmt.Errorf("assign ticket: %w", err)
	}
	req := assignRequest{TicketNumber: ticketNumber, AssignedTo: strings.TrimSpace(assignee)}
	if err := validation.Struct("assign ticket", req); err != nil {
		return nil, err
	}
	if err := c.api.Post(ctx, pathAssign, req, nil); err != nil {
		return nil, fmt.Errorf("assign ticket %s: %w", ticketNumber, err)
	}
	return c.GetTicket(ctx, ticketNumber)
}

type statusRequest struct {
	TicketNumber string `json:"ticket_number"`
	Status       Status `json:"status"`
}

// UpdateStatus moves a ticket to status and returns the refreshed ticket.
func (c *Client) UpdateStatus(ctx context.Context, ticketNumber string, status Status) (*Ticket, error) {
	if err := validation.ValidateID(ticketNumber); err != nil {
		return nil, fmt.Errorf("update ticket status: %w", err)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown ticket status %q", validation.ErrInvalid, status)
	}
	if err := c.api.Post(ctx, pathUpdateStatus, statusRequest{TicketNumber: ticketNumber, Status: status}, nil); err != nil {
		return nil, fmt.Errorf("update ticket %s status: %w", ticketNumber, err)
	}
	return c.GetTicket(ctx, ticketNumber)
}

// =============================================================================
// DOWNLOADS
// =============================================================================

type presignDownloadResponse struct {
	URL         string `json:"url"`
	DownloadURL string `json:"download_url"`
}

// DownloadURL returns a short-lived URL for the attachment s3Key.
func (c *Client) DownloadURL(ctx context.Context, s3Key string) (string, error) {
	if err := validation.ValidateS3Key(s3Key); err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	var out presignDownloadResponse
	if err := c.api.Get(ctx, pathPresignDownload+"?s3_key="+url.QueryEscape(s3Key), &out); err != nil {
		return "", fmt.Errorf("presign download %s: %w", s3Key, err)
	}
	link := firstNonEmpty(out.URL, out.DownloadURL)
	if err := validation.Var("url", link, "required,http_url"); err != nil {
		return "", fmt.Errorf("presign download %s: %w", s3Key, err)
	}
	return link, nil
}

// =============================================================================
// DECODING
// =============================================================================

func decodeTicket(raw json.RawMessage) (*Ticket, error) {
	var envelope struct {
		Ticket json.RawMessage `json:"ticket"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Ticket) > 0 && envelope.Ticket[0] == '{' {
		raw = envelope.Ticket
	}
	var t Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeList(raw json.RawMessage) ([]Ticket, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []Ticket
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode tickets: %w", err)
		}
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode tickets: %w", err)
	}
	for _, key := range []string{"tickets", "items", "data", "results"} {
		if inner, ok := obj[key]; ok {
			return decodeList(inner)
		}
	}
	return nil, fmt.Errorf("decode tickets: no ticket list in response")
}
