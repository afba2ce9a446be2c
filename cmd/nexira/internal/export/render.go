// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes conversation transcripts as markdown, HTML or JSON,
// one conversation at a time or for a whole history.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// Format is a transcript file format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// ParseFormat accepts the format names and their file extensions.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q (markdown, html, json)", validation.ErrInvalid, s)
}

// Ext is the file extension including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatHTML:
		return ".html"
	case FormatJSON:
		return ".json"
	}
	return ".md"
}

var (
	md = goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
			extension.Linkify,
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithXHTML()),
	)
	policy = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "span", "div", "pre")
	p.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	return p
}

// Render writes conv to w in format.
func Render(w io.Writer, conv *history.Conversation, format Format) error {
	switch format {
	case FormatMarkdown, "":
		_, err := io.WriteString(w, Markdown(conv))
		return err
	case FormatHTML:
		body, err := HTML(conv)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, body)
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newTranscript(conv))
	}
	return fmt.Errorf("%w: unknown export format %q", validation.ErrInvalid, format)
}

// Markdown renders conv as a markdown document. Message content is markdown
// already and is embedded as-is.
func Markdown(conv *history.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", titleOf(conv))
	fmt.Fprintf(&b, "_%d messages", len(conv.Messages))
	if created := time.Time(conv.CreatedAt); !created.IsZero() {
		fmt.Fprintf(&b, ", started %s", created.UTC().Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("_\n")

	for _, m := range conv.Messages {
		fmt.Fprintf(&b, "\n### %s", speaker(m.Role))
		if ts := time.Time(m.Timestamp); !ts.IsZero() {
			fmt.Fprintf(&b, " · %s", ts.UTC().Format("2006-01-02 15:04"))
		}
		if m.Model != "" {
			fmt.Fprintf(&b, " · %s", m.Model)
		}
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("\n")
	}
	return b.String()
}

const htmlPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;line-height:1.5}h3{color:#555;border-top:1px solid #eee;padding-top:1rem}pre{background:#f6f8fa;padding:.75rem;overflow:auto}</style>
</head>
<body>
%s</body>
</html>
`

// HTML renders conv as a standalone page. Message markdown is converted
// with goldmark and the result is sanitized, so script or event-handler
// markup in a message never reaches the file.
func HTML(conv *history.Conversation) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(conv)), &buf); err != nil {
		return "", fmt.Errorf("failed to convert transcript to HTML: %w", err)
	}
	return fmt.Sprintf(htmlPage, html.EscapeString(titleOf(conv)), policy.Sanitize(buf.String())), nil
}

type transcriptMessage struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
}

type transcript struct {
	ID         string              `json:"id"`
	Title      string              `json:"title"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
	Archived   bool                `json:"archived"`
	Messages   []transcriptMessage `json:"messages"`
	ExportedAt time.Time           `json:"exported_at"`
}

var now = time.Now

func newTranscript(conv *history.Conversation) transcript {
	t := transcript{
		ID:         conv.ID.String(),
		Title:      titleOf(conv),
		CreatedAt:  time.Time(conv.CreatedAt).UTC(),
		UpdatedAt:  time.Time(conv.UpdatedAt).UTC(),
		Archived:   conv.Archived,
		Messages:   make([]transcriptMessage, 0, len(conv.Messages)),
		ExportedAt: now().UTC(),
	}
	for _, m := range conv.Messages {
		t.Messages = append(t.Messages, transcriptMessage{
			ID:        m.ID.String(),
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: time.Time(m.Timestamp).UTC(),
			Provider:  m.Provider,
			Model:     m.Model,
		})
	}
	return t
}

func titleOf(conv *history.Conversation) string {
	if t := strings.TrimSpace(conv.Title); t != "" {
		return t
	}
	return "Untitled conversation"
}

func speaker(r history.Role) string {
	switch r {
	case history.RoleUser:
		return "You"
	case history.RoleAssistant:
		return "Nexira"
	case history.RoleSystem:
		return "System"
	}
	return string(r)
}
