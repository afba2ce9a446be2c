// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/NexiraAI/nexira/cmd/nexira/gcs"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/telemetry"
)

const (
	DefaultPageSize      = 50
	DefaultRatePerSecond = 5
)

// Source is the subset of the history client the exporter reads from.
type Source interface {
	GetConversations(ctx context.Context, limit, offset int) (*history.ConversationList, error)
	GetConversation(ctx context.Context, id string) (*history.Conversation, error)
}

type Config struct {
	Source Source

	// Dir receives the files; created if missing.
	Dir    string
	Format Format

	// RatePerSecond paces conversation fetches. Zero means
	// DefaultRatePerSecond, negative disables pacing.
	RatePerSecond float64
	PageSize      int

	// IncludeArchived exports archived conversations too.
	IncludeArchived bool

	// Uploader, when set, receives every written file.
	Uploader gcs.Uploader

	Metrics *telemetry.Metrics
}

// Exporter writes transcripts to disk.
type Exporter struct {
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config) *Exporter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Format == "" {
		cfg.Format = FormatMarkdown
	}
	limit := rate.Limit(cfg.RatePerSecond)
	switch {
	case cfg.RatePerSecond == 0:
		limit = DefaultRatePerSecond
	case cfg.RatePerSecond < 0:
		limit = rate.Inf
	}
	return &Exporter{cfg: cfg, limiter: rate.NewLimiter(limit, 1)}
}

// Summary reports what ExportAll did.
type Summary struct {
	Files    []string
	Uploaded int
	Skipped  int
	Failed   map[string]error
}

// ExportOne fetches one conversation and writes it. It returns the file path.
func (e *Exporter) ExportOne(ctx context.Context, id string) (string, error) {
	conv, err := e.cfg.Source.GetConversation(ctx, id)
	if err != nil {
		return "", err
	}
	return e.write(ctx, conv)
}

// ExportAll writes every conversation of the signed-in user.
//
// # Description
//
// Pages are read until a short or empty page. Each conversation is fetched
// in full under the rate limiter, rendered, written and optionally uploaded.
// A failing conversation is recorded in Summary.Failed and the run goes on.
//
// # Outputs
//
//   - *Summary: always non-nil
//   - error: ctx's error if the run was interrupted, the list error if a
//     page could not be read, or a joined error of per-conversation failures
func (e *Exporter) ExportAll(ctx context.Context) (*Summary, error) {
	sum := &Summary{Failed: map[string]error{}}
	seen := map[history.ID]bool{}

	for offset := 0; ; offset += e.cfg.PageSize {
		page, err := e.cfg.Source.GetConversations(ctx, e.cfg.PageSize, offset)
		if err != nil {
			return sum, fmt.Errorf("list conversations at offset %d: %w", offset, err)
		}

		for _, c := range page.Conversations {
			if c.ID == "" || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			if c.Archived && !e.cfg.IncludeArchived {
				sum.Skipped++
				continue
			}

			if err := e.limiter.Wait(ctx); err != nil {
				return sum, err
			}
			path, err := e.ExportOne(ctx, c.ID.String())
			if err != nil {
				if ctx.Err() != nil {
					return sum, ctx.Err()
				}
				slog.Warn("failed to export conversation", "conversation_id", c.ID, "error", err)
				sum.Failed[c.ID.String()] = err
				continue
			}
			sum.Files = append(sum.Files, path)
			if e.cfg.Uploader != nil {
				sum.Uploaded++
			}
		}

		if len(page.Conversations) < e.cfg.PageSize {
			break
		}
	}

	if len(sum.Failed) > 0 {
		errs := make([]error, 0, len(sum.Failed))
		for id, err := range sum.Failed {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
		return sum, errors.Join(errs...)
	}
	return sum, nil
}

func (e *Exporter) write(ctx context.Context, conv *history.Conversation) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, conv, e.cfg.Format); err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.cfg.Dir, 0o700); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.cfg.Dir, FileName(conv, e.cfg.Format))
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	e.cfg.Metrics.RecordExport(string(e.cfg.Format))
	slog.Debug("transcript written", "path", path, "bytes", buf.Len())

	if e.cfg.Uploader != nil {
		if err := e.cfg.Uploader.UploadFile(ctx, path, filepath.Base(path)); err != nil {
			return path, fmt.Errorf("upload transcript: %w", err)
		}
	}
	return path, nil
}

// FileName is "<date>-<title-slug>-<id><ext>". The date is the creation
// day; the id keeps names unique.
func FileName(conv *history.Conversation, format Format) string {
	day := time.Time(conv.CreatedAt)
	if day.IsZero() {
		day = now()
	}
	parts := []string{day.UTC().Format("2006-01-02")}
	if s := slug(conv.Title); s != "" {
		parts = append(parts, s)
	}
	if id := slug(conv.ID.String()); id != "" {
		parts = append(parts, id)
	}
	return strings.Join(parts, "-") + format.Ext()
}

const maxSlugRunes = 40

// slug folds diacritics ("Trò chuyện" -> "tro-chuyen") and keeps ASCII
// letters and digits.
func slug(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	folded = strings.NewReplacer("đ", "d", "Đ", "D").Replace(folded)

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if b.Len() >= maxSlugRunes {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
