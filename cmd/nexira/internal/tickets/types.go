// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tickets

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-openapi/strfmt"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/i18n"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// =============================================================================
// ENUMS
// =============================================================================

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusWaiting    Status = "waiting"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusWaiting, StatusResolved, StatusClosed}

var statusAliases = map[string]Status{
	"new":     StatusOpen,
	"pending": StatusWaiting,
	"done":    StatusResolved,
}

var statusColors = map[Status]lipgloss.Color{
	StatusOpen:       lipgloss.Color("#2563EB"),
	StatusInProgress: lipgloss.Color("#D97706"),
	StatusWaiting:    lipgloss.Color("#7C3AED"),
	StatusResolved:   lipgloss.Color("#059669"),
	StatusClosed:     lipgloss.Color("#6B7280"),
}

// ParseStatus accepts the canonical names plus the spellings the backend
// has used ("In Progress", "in-progress", "pending").
func ParseStatus(s string) (Status, error) {
	key := enumKey(s)
	if alias, ok := statusAliases[key]; ok {
		return alias, nil
	}
	st := Status(key)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown ticket status %q", validation.ErrInvalid, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := statusColors[s]
	return ok
}

func (s Status) Label(tr *i18n.Translator) string { return tr.T("ticket.status." + string(s)) }

func (s Status) Color() lipgloss.Color { return colorOr(statusColors[s]) }

// Priority is the urgency of a ticket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

var priorityColors = map[Priority]lipgloss.Color{
	PriorityLow:    lipgloss.Color("#6B7280"),
	PriorityMedium: lipgloss.Color("#2563EB"),
	PriorityHigh:   lipgloss.Color("#D97706"),
	PriorityUrgent: lipgloss.Color("#DC2626"),
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(enumKey(s))
	if p == "critical" {
		p = PriorityUrgent
	}
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown ticket priority %q", validation.ErrInvalid, s)
	}
	return p, nil
}

func (p Priority) Valid() bool {
	_, ok := priorityColors[p]
	return ok
}

func (p Priority) Label(tr *i18n.Translator) string { return tr.T("ticket.priority." + string(p)) }

func (p Priority) Color() lipgloss.Color { return colorOr(priorityColors[p]) }

// Category routes a ticket to a support queue.
type Category string

const (
	CategoryTechnical      Category = "technical"
	CategoryBilling        Category = "billing"
	CategoryAccount        Category = "account"
	CategoryFeatureRequest Category = "feature_request"
	CategoryGeneral        Category = "general"
)

var Categories = []Category{CategoryTechnical, CategoryBilling, CategoryAccount, CategoryFeatureRequest, CategoryGeneral}

func ParseCategory(s string) (Category, error) {
	c := Category(enumKey(s))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown ticket category %q", validation.ErrInvalid, s)
	}
	return c, nil
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) Label(tr *i18n.Translator) string { return tr.T("ticket.category." + string(c)) }

func enumKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func colorOr(c lipgloss.Color) lipgloss.Color {
	if c == "" {
		return lipgloss.Color("#6B7280")
	}
	return c
}

// =============================================================================
// TICKETS
// =============================================================================

// AttachmentMeta describes one file stored next to a ticket or response.
type AttachmentMeta struct {
	S3Key     string `json:"s3_key" validate:"required"`
	Filename  string `json:"filename" validate:"required"`
	Mime      string `json:"mime"`
	SizeBytes int64  `json:"size_bytes" validate:"gte=0"`
	SHA256    string `json:"sha256,omitempty"`
}

// Response is one reply on a ticket. Responses are append-only.
type Response struct {
	ID            history.ID       `json:"id"`
	Author        string           `json:"author"`
	Message       string           `json:"message"`
	CreatedAt     strfmt.DateTime  `json:"created_at"`
	IsStaff       bool             `json:"is_staff"`
	AttachedFiles []AttachmentMeta `json:"attached_files,omitempty"`
}

// Ticket is a support ticket as shown to the user.
type Ticket struct {
	TicketNumber  string           `json:"ticket_number" validate:"required"`
	Subject       string           `json:"subject" validate:"required"`
	Description   string           `json:"description"`
	Priority      Priority         `json:"priority"`
	Status        Status           `json:"status" validate:"required,oneof=open in_progress waiting resolved closed"`
	Category      Category         `json:"category"`
	CustomerName  string           `json:"customer_name"`
	CustomerEmail strfmt.Email     `json:"customer_email"`
	AssignedTo    string           `json:"assigned_to,omitempty"`
	Responses     []Response       `json:"responses"`
	AttachedFiles []AttachmentMeta `json:"attached_files"`
	CreatedAt     strfmt.DateTime  `json:"created_at"`
	UpdatedAt     strfmt.DateTime  `json:"updated_at"`
}

// Validate fails fast on a payload without the fields every view relies on.
func (t *Ticket) Validate() error {
	return validation.Struct("ticket", t)
}

// Sanitized returns a copy whose free text has markup stripped.
func (t Ticket) Sanitized() Ticket {
	t.Subject = Sanitize(t.Subject)
	t.Description = Sanitize(t.Description)
	responses := make([]Response, len(t.Responses))
	for i, r := range t.Responses {
		r.Message = Sanitize(r.Message)
		r.Author = Sanitize(r.Author)
		responses[i] = r
	}
	t.Responses = responses
	return t
}

// =============================================================================
// PAYLOAD MAPPING
// =============================================================================

// The ticket service is written partly in camelCase and partly in
// snake_case, sometimes both in one payload. Snake case wins when both are
// present.

type wireAttachment struct {
	S3Key        string `json:"s3_key"`
	S3KeyCamel   string `json:"s3Key"`
	Key          string `json:"key"`
	Filename     string `json:"filename"`
	FileName     string `json:"fileName"`
	Name         string `json:"name"`
	Mime         string `json:"mime"`
	ContentType  string `json:"content_type"`
	ContentCamel string `json:"contentType"`
	SizeBytes    *int64 `json:"size_bytes"`
	SizeCamel    *int64 `json:"sizeBytes"`
	Size         *int64 `json:"size"`
	SHA256       string `json:"sha256"`
}

func (a *AttachmentMeta) UnmarshalJSON(data []byte) error {
	var w wireAttachment
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = AttachmentMeta{
		S3Key:     firstNonEmpty(w.S3Key, w.S3KeyCamel, w.Key),
		Filename:  firstNonEmpty(w.Filename, w.FileName, w.Name),
		Mime:      firstNonEmpty(w.Mime, w.ContentType, w.ContentCamel),
		SizeBytes: firstInt(w.SizeBytes, w.SizeCamel, w.Size),
		SHA256:    w.SHA256,
	}
	if a.Filename == "" && a.S3Key != "" {
		a.Filename = a.S3Key[strings.LastIndex(a.S3Key, "/")+1:]
	}
	return nil
}

type wireResponse struct {
	ID            history.ID       `json:"id"`
	MongoID       history.ID       `json:"_id"`
	Author        string           `json:"author"`
	AuthorName    string           `json:"author_name"`
	AuthorCamel   string           `json:"authorName"`
	Message       string           `json:"message"`
	Content       string           `json:"content"`
	CreatedAt     string           `json:"created_at"`
	CreatedCamel  string           `json:"createdAt"`
	IsStaff       *bool            `json:"is_staff"`
	IsStaffCamel  *bool            `json:"isStaff"`
	AttachedFiles []AttachmentMeta `json:"attached_files"`
	FilesCamel    []AttachmentMeta `json:"attachedFiles"`
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Response{
		ID:            history.ID(firstNonEmpty(string(w.ID), string(w.MongoID))),
		Author:        firstNonEmpty(w.Author, w.AuthorName, w.AuthorCamel),
		Message:       firstNonEmpty(w.Message, w.Content),
		CreatedAt:     parseTime(firstNonEmpty(w.CreatedAt, w.CreatedCamel)),
		IsStaff:       firstBool(w.IsStaff, w.IsStaffCamel),
		AttachedFiles: firstSlice(w.AttachedFiles, w.FilesCamel),
	}
	return nil
}

type wireTicket struct {
	TicketNumber  string           `json:"ticket_number"`
	NumberCamel   string           `json:"ticketNumber"`
	Subject       string           `json:"subject"`
	Description   string           `json:"description"`
	Priority      string           `json:"priority"`
	Status        string           `json:"status"`
	Category      string           `json:"category"`
	CustomerName  string           `json:"customer_name"`
	NameCamel     string           `json:"customerName"`
	CustomerEmail string           `json:"customer_email"`
	EmailCamel    string           `json:"customerEmail"`
	AssignedTo    string           `json:"assigned_to"`
	AssignedCamel string           `json:"assignedTo"`
	Responses     []Response       `json:"responses"`
	AttachedFiles []AttachmentMeta `json:"attached_files"`
	FilesCamel    []AttachmentMeta `json:"attachedFiles"`
	CreatedAt     string           `json:"created_at"`
	CreatedCamel  string           `json:"createdAt"`
	UpdatedAt     string           `json:"updated_at"`
	UpdatedCamel  string           `json:"updatedAt"`
}

// UnmarshalJSON maps either key style. Enum values are normalised; an
// unknown priority or category is dropped, an unknown status is kept so
// Validate reports it.
func (t *Ticket) UnmarshalJSON(data []byte) error {
	var w wireTicket
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*t = Ticket{
		TicketNumber:  strings.TrimSpace(firstNonEmpty(w.TicketNumber, w.NumberCamel)),
		Subject:       w.Subject,
		Description:   w.Description,
		CustomerName:  firstNonEmpty(w.CustomerName, w.NameCamel),
		CustomerEmail: strfmt.Email(strings.TrimSpace(firstNonEmpty(w.CustomerEmail, w.EmailCamel))),
		AssignedTo:    firstNonEmpty(w.AssignedTo, w.AssignedCamel),
		Responses:     w.Responses,
		AttachedFiles: firstSlice(w.AttachedFiles, w.FilesCamel),
		CreatedAt:     parseTime(firstNonEmpty(w.CreatedAt, w.CreatedCamel)),
		UpdatedAt:     parseTime(firstNonEmpty(w.UpdatedAt, w.UpdatedCamel)),
	}

	if w.Status != "" {
		st, err := ParseStatus(w.Status)
		if err != nil {
			st = Status(w.Status)
		}
		t.Status = st
	}
	if w.Priority != "" {
		if p, err := ParsePriority(w.Priority); err == nil {
			t.Priority = p
		} else {
			slog.Debug("dropping unknown ticket priority", "ticket_number", t.TicketNumber, "priority", w.Priority)
		}
	}
	if w.Category != "" {
		if c, err := ParseCategory(w.Category); err == nil {
			t.Category = c
		} else {
			slog.Debug("dropping unknown ticket category", "ticket_number", t.TicketNumber, "category", w.Category)
		}
	}
	return nil
}

func parseTime(s string) strfmt.DateTime {
	if s == "" {
		return strfmt.DateTime{}
	}
	dt, err := strfmt.ParseDateTime(s)
	if err != nil {
		slog.Debug("unparsable ticket timestamp", "value", s)
		return strfmt.DateTime{}
	}
	return dt
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...*int64) int64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstBool(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}

func firstSlice[T any](values ...[]T) []T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
