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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/NexiraAI/nexira/pkg/validation"
)

// ErrUploadFailed is returned by AddResponse when at least one attachment
// could not be uploaded. The response is not sent.
var ErrUploadFailed = errors.New("attachment upload failed")

// UploadError reports a partial upload. Objects already stored are not
// removed; Uploaded lists their keys so an operator can clean up.
type UploadError struct {
	Uploaded []string
	Err      error
}

func (e *UploadError) Error() string {
	if len(e.Uploaded) == 0 {
		return fmt.Sprintf("%s: %v", ErrUploadFailed, e.Err)
	}
	return fmt.Sprintf("%s: %v (already uploaded: %s)", ErrUploadFailed, e.Err, strings.Join(e.Uploaded, ", "))
}

func (e *UploadError) Unwrap() []error { return []error{ErrUploadFailed, e.Err} }

// =============================================================================
// PRESIGN
// =============================================================================

type presignFile struct {
	Filename  string `json:"filename"`
	Mime      string `json:"mime"`
	SizeBytes int64  `json:"size_bytes"`
}

type presignUploadRequest struct {
	TicketNumber string        `json:"ticket_number"`
	Files        []presignFile `json:"files"`
}

// presignedUpload is one presigned POST policy.
type presignedUpload struct {
	URL    string            `json:"url" validate:"required,http_url"`
	Fields map[string]string `json:"fields"`
	S3Key  string            `json:"s3_key" validate:"required"`
}

type presignUploadResponse struct {
	Uploads []presignedUpload `json:"uploads" validate:"dive"`
}

type addResponseRequest struct {
	TicketNumber  string           `json:"ticket_number"`
	Message       string           `json:"message" validate:"notblank,maxbytes"`
	AttachedFiles []AttachmentMeta `json:"attached_files"`
}

// localFile is an attachment on disk, described before upload.
type localFile struct {
	path string
	meta AttachmentMeta
}

// =============================================================================
// RESPONSES
// =============================================================================

// AddResponse posts a reply to a ticket, uploading files first.
//
// # Description
//
// The flow is: describe each file (name, MIME type, size), request one
// presigned POST policy per file, upload all files concurrently straight
// to object storage, then submit the response with the attachment
// metadata. Each file's SHA-256 is computed from the bytes actually
// uploaded.
//
// # Inputs
//
//   - ticketNumber: the ticket to reply to
//   - message: the reply text
//   - files: local paths; may be empty
//
// # Outputs
//
//   - *Ticket: the ticket re-fetched after the reply
//   - error: *UploadError (matches ErrUploadFailed) when any upload fails
//
// # Limitations
//
// There is no rollback. If one upload fails the response is never sent,
// but files that did upload stay in the bucket.
func (c *Client) AddResponse(ctx context.Context, ticketNumber, message string, files []string) (*Ticket, error) {
	if err := validation.ValidateID(ticketNumber); err != nil {
		return nil, fmt.Errorf("add response: %w", err)
	}
	req := addResponseRequest{TicketNumber: ticketNumber, Message: message}
	if err := validation.Struct("add response", req); err != nil {
		return nil, err
	}

	locals, err := describeFiles(files)
	if err != nil {
		return nil, err
	}
	if len(locals) > 0 {
		metas, err := c.upload(ctx, ticketNumber, locals)
		if err != nil {
			return nil, err
		}
		req.AttachedFiles = metas
	}

	if err := c.api.Post(ctx, pathAddResponse, req, nil); err != nil {
		return nil, fmt.Errorf("add response to %s: %w", ticketNumber, err)
	}
	slog.Info("ticket response sent",
		"ticket_number", ticketNumber,
		"attachments", len(req.AttachedFiles),
	)
	return c.GetTicket(ctx, ticketNumber)
}

func describeFiles(paths []string) ([]localFile, error) {
	out := make([]localFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: attachment %s is a directory", validation.ErrInvalid, p)
		}
		name := filepath.Base(p)
		mimeType, err := detectMime(p)
		if err != nil {
			return nil, err
		}
		out = append(out, localFile{
			path: p,
			meta: AttachmentMeta{Filename: name, Mime: mimeType, SizeBytes: info.Size()},
		})
	}
	return out, nil
}

// detectMime uses the extension, then sniffs the first 512 bytes.
func detectMime(path string) (string, error) {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("attachment %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("attachment %s: %w", path, err)
	}
	return http.DetectContentType(head[:n]), nil
}

func (c *Client) upload(ctx context.Context, ticketNumber string, locals []localFile) ([]AttachmentMeta, error) {
	presignReq := presignUploadRequest{TicketNumber: ticketNumber}
	for _, l := range locals {
		presignReq.Files = append(presignReq.Files, presignFile{
			Filename:  l.meta.Filename,
			Mime:      l.meta.Mime,
			SizeBytes: l.meta.SizeBytes,
		})
	}

	var presigned presignUploadResponse
	if err := c.api.Post(ctx, pathPresignUpload, presignReq, &presigned); err != nil {
		return nil, fmt.Errorf("presign upload for %s: %w", ticketNumber, err)
	}
	if err := validation.Struct("presign upload", presigned); err != nil {
		return nil, err
	}
	if len(presigned.Uploads) != len(locals) {
		return nil, fmt.Errorf("%w: presign returned %d uploads for %d files",
			validation.ErrInvalid, len(presigned.Uploads), len(locals))
	}

	limit := c.UploadConcurrency
	if limit <= 0 {
		limit = DefaultUploadConcurrency
	}

	metas := make([]AttachmentMeta, len(locals))
	var (
		mu       sync.Mutex
		uploaded []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range locals {
		local, target := locals[i], presigned.Uploads[i]
		g.Go(func() error {
			digest, n, err := c.uploadOne(gctx, local, target)
			if err != nil {
				return fmt.Errorf("upload %s: %w", local.meta.Filename, err)
			}
			meta := local.meta
			meta.S3Key = target.S3Key
			meta.SHA256 = digest
			meta.SizeBytes = n
			metas[i] = meta

			mu.Lock()
			uploaded = append(uploaded, target.S3Key)
			mu.Unlock()
			c.metrics.RecordUpload(n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Warn("attachment upload failed; response not sent",
			"ticket_number", ticketNumber,
			"uploaded", len(uploaded),
			"error", err,
		)
		return nil, &UploadError{Uploaded: uploaded, Err: err}
	}
	return metas, nil
}

// uploadOne streams a file to its presigned URL, hashing the bytes as they
// are sent.
func (c *Client) uploadOne(ctx context.Context, local localFile, target presignedUpload) (string, int64, error) {
	if err := validation.ValidateS3Key(target.S3Key); err != nil {
		return "", 0, err
	}
	f, err := os.Open(local.path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	counter := &countingReader{r: io.TeeReader(f, h)}
	if err := c.api.PostForm(ctx, target.URL, target.Fields, local.meta.Filename, counter); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// =============================================================================
// DOWNLOAD
// =============================================================================

// Download writes the attachment s3Key to w and returns the byte count.
func (c *Client) Download(ctx context.Context, s3Key string, w io.Writer) (int64, error) {
	link, err := c.DownloadURL(ctx, s3Key)
	if err != nil {
		return 0, err
	}
	resp, err := c.api.Fetch(ctx, link)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", s3Key, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", s3Key, err)
	}
	return n, nil
}
