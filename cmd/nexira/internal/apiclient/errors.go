// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound matches any APIError with status 404.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized matches any APIError with status 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4096

// APIError is returned for every non-2xx backend response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int

	// Detail is the backend's human readable reason.
	Detail string

	// Body is the raw (truncated) response body.
	Body string
}

func (e *APIError) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s (%s %s -> %d)", detail, e.Method, e.URL, e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// newAPIError builds an APIError from a failed response body.
func newAPIError(method, url string, status int, body []byte) *APIError {
	raw := string(body)
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	return &APIError{
		Method:     method,
		URL:        url,
		StatusCode: status,
		Detail:     extractDetail(body),
		Body:       raw,
	}
}

// extractDetail reads `detail` (a string, a list of {msg}, or an object with
// a message), then `message`, then `error`, then falls back to the raw body.
func extractDetail(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if len(trimmed) > 300 {
			trimmed = trimmed[:300] + "..."
		}
		return trimmed
	}

	for _, raw := range []json.RawMessage{payload.Detail, payload.Message, payload.Error} {
		if text := detailText(raw); text != "" {
			return text
		}
	}
	return trimmed
}

func detailText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	// FastAPI validation errors: [{"loc": [...], "msg": "...", "type": "..."}]
	var list []struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			} else if item.Message != "" {
				msgs = append(msgs, item.Message)
			}
		}
		return strings.Join(msgs, "; ")
	}

	var obj struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Msg
	}
	return ""
}
