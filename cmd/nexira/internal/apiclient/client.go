// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apiclient is the single HTTP transport to the Nexira backend.
//
// Every backend call made by the CLI goes through a Client so that identity
// headers, request ids, timeouts, error decoding, metrics and trace
// propagation are applied in one place:
//
//	history / tickets / agents / streaming → Client → HTTPClient → http.Client
//
// REST calls are bounded by the configured request timeout. Streams are not,
// because a chat turn can legitimately run for minutes; the streaming package
// applies an idle timeout between records instead.
package apiclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/telemetry"
)

// =============================================================================
// INTERFACES
// =============================================================================

// HTTPClient is satisfied by *http.Client and by test doubles.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Identity is the pseudo-identity sent with every backend request.
type Identity struct {
	UserID        string
	UserName      string
	LoginProvider string
}

// IdentityFunc is called once per request so a login or logout in another
// process is picked up without rebuilding the client.
type IdentityFunc func() Identity

// Header names understood by the backend.
const (
	HeaderUserID        = "user-id"
	HeaderUserNameB64   = "user-name-b64"
	HeaderLoginProvider = "login-provider"
	HeaderRequestID     = "X-Request-ID"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// =============================================================================
// CONFIGURATION
// =============================================================================

type Config struct {
	// BaseURL is the REST root, e.g. http://localhost:8000 (required).
	BaseURL string

	// Timeout bounds each non-streaming call. Negative disables it.
	Timeout time.Duration

	// HTTPClient defaults to an *http.Client without a client-level timeout.
	HTTPClient HTTPClient

	// Identity supplies the identity headers. Nil sends none.
	Identity IdentityFunc

	// Metrics may be nil.
	Metrics *telemetry.Metrics

	// UserAgent defaults to "nexira-cli".
	UserAgent string
}

// Client performs backend calls. Safe for concurrent use.
type Client struct {
	baseURL   string
	timeout   time.Duration
	http      HTTPClient
	identity  IdentityFunc
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	userAgent string
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "nexira-cli"
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   timeout,
		http:      hc,
		identity:  cfg.Identity,
		metrics:   cfg.Metrics,
		tracer:    telemetry.Tracer(),
		userAgent: ua,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Metrics returns the collector the client records into, possibly nil.
func (c *Client) Metrics() *telemetry.Metrics { return c.metrics }

// =============================================================================
// JSON CALLS
// =============================================================================

// Do sends a JSON request to path (relative to BaseURL) and decodes a 2xx
// JSON response into out. body and out may be nil. A non-2xx status returns
// *APIError.
//
// Example:
//
//	var conv history.Conversation
//	err := client.Do(ctx, http.MethodGet, "/chat-history/conversations/"+id, nil, &conv)
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reader, err := encodeBody(body)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", method, path, err)
	}

	resp, err := c.send(ctx, method, c.resolve(path), reader, "application/json", true)
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream POSTs body to path and returns the open SSE response. The caller
// must close resp.Body. No timeout is applied beyond ctx.
func (c *Client) Stream(ctx context.Context, path string, body any) (*http.Response, error) {
	reader, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("encode stream request %s: %w", path, err)
	}
	return c.sendWith(ctx, http.MethodPost, c.resolve(path), reader, "application/json", true, func(req *http.Request) {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	})
}

// =============================================================================
// PRESIGNED URLS
// =============================================================================

// PostForm uploads one file to a presigned object-storage URL as
// multipart/form-data. fields are written before the file part, as
// presigned POST policies require. Identity headers are not sent.
func (c *Client) PostForm(ctx context.Context, rawURL string, fields map[string]string, filename string, content io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, k := range sortedKeys(fields) {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copy %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	resp, err := c.send(ctx, http.MethodPost, rawURL, &buf, mw.FormDataContentType(), false)
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Fetch GETs an absolute URL (a presigned download) without identity
// headers. The caller must close resp.Body.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.send(ctx, http.MethodGet, rawURL, nil, "", false)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) send(ctx context.Context, method, target string, body io.Reader, contentType string, withIdentity bool) (*http.Response, error) {
	return c.sendWith(ctx, method, target, body, contentType, withIdentity, nil)
}

// sendWith performs one request and converts non-2xx into *APIError. On
// success the response body is left open.
func (c *Client) sendWith(ctx context.Context, method, target string, body io.Reader, contentType string, withIdentity bool, decorate func(*http.Request)) (*http.Response, error) {
	requestID := uuid.New().String()
	route := RouteTemplate(target)
	display := target
	if !withIdentity {
		display = redactQuery(target)
	}

	ctx, span := c.tracer.Start(ctx, method+" "+route, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.template", route),
		attribute.String("nexira.request_id", requestID),
	)

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("build request %s %s: %w", method, display, err)
	}
	if contentType != "" && body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if withIdentity {
		req.Header.Set(HeaderRequestID, requestID)
		c.applyIdentity(req)
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	}
	if decorate != nil {
		decorate(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordRequest(method, route, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Debug("backend request failed",
			"request_id", requestID,
			"method", method,
			"url", display,
			"error", err,
		)
		return nil, fmt.Errorf("%s %s: %w", method, display, err)
	}
	c.metrics.RecordRequest(method, route, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		closeBody(resp.Body)
		apiErr := newAPIError(method, display, resp.StatusCode, data)
		span.SetStatus(codes.Error, apiErr.Detail)
		slog.Debug("backend returned error",
			"request_id", requestID,
			"url", apiErr.URL,
			"status_code", resp.StatusCode,
			"detail", apiErr.Detail,
		)
		return nil, apiErr
	}

	slog.Debug("backend request",
		"request_id", requestID,
		"method", method,
		"url", display,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (c *Client) applyIdentity(req *http.Request) {
	if c.identity == nil {
		return
	}
	id := c.identity()
	if id.UserID != "" {
		req.Header.Set(HeaderUserID, id.UserID)
	}
	if id.UserName != "" {
		req.Header.Set(HeaderUserNameB64, base64.StdEncoding.EncodeToString([]byte(id.UserName)))
	}
	if id.LoginProvider != "" {
		req.Header.Set(HeaderLoginProvider, id.LoginProvider)
	}
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	case []byte:
		return bytes.NewReader(b), nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		slog.Debug("failed to close response body", "error", err)
	}
}

// RouteTemplate reduces a URL to a low-cardinality metric label: the query
// string and host are dropped, and any path segment containing a digit is
// replaced with {id}.
//
//	http://api/chat-history/conversations/65f1c2a9/messages → /chat-history/conversations/{id}/messages
func RouteTemplate(target string) string {
	path := target
	if u, err := url.Parse(target); err == nil {
		path = u.Path
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.IndexFunc(seg, unicode.IsDigit) >= 0 {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// redactQuery drops query strings, which carry presigned credentials.
func redactQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
