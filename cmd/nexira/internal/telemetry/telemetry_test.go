// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ============================================================================
// Metrics Tests
// ============================================================================

func TestMetrics_RecordRequest(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("GET", "/chat-history/conversations", 200, 120*time.Millisecond)
	m.RecordRequest("GET", "/chat-history/conversations", 200, 80*time.Millisecond)
	m.RecordRequest("DELETE", "/chat-history/conversations/{id}", 404, 10*time.Millisecond)
	m.RecordRequest("POST", "/ticket/add_response", 0, time.Second)

	if got := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "/chat-history/conversations", "200")); got != 2 {
		t.Errorf("GET 200 count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("DELETE", "/chat-history/conversations/{id}", "404")); got != 1 {
		t.Errorf("DELETE 404 count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("POST", "/ticket/add_response", "network_error")); got != 1 {
		t.Errorf("network error count = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.APIRequestDuration); n != 3 {
		t.Errorf("duration series = %d, want 3", n)
	}
}

func TestMetrics_StreamAndUploads(t *testing.T) {
	m := NewMetrics()

	m.RecordStreamEvent("assistant_chunk")
	m.RecordStreamEvent("assistant_chunk")
	m.RecordStreamEvent("complete")
	m.RecordStream("/chat/stream", OutcomeSuccess, 3*time.Second, 400*time.Millisecond)
	m.RecordStream("/chat/stream", OutcomeCancelled, time.Second, 0)
	m.RecordUpload(2048)
	m.RecordUpload(-1)
	m.RecordExport("markdown")

	if got := testutil.ToFloat64(m.StreamEventsTotal.WithLabelValues("assistant_chunk")); got != 2 {
		t.Errorf("chunk events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.UploadBytesTotal); got != 2048 {
		t.Errorf("upload bytes = %v, want 2048", got)
	}
	if got := testutil.ToFloat64(m.ExportsTotal.WithLabelValues("markdown")); got != 1 {
		t.Errorf("exports = %v, want 1", got)
	}
	// first-chunk histogram only observed for the stream that produced a chunk
	if n := testutil.CollectAndCount(m.TimeToFirstChunk); n != 1 {
		t.Errorf("first chunk series = %d, want 1", n)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("GET", "/x", 200, time.Second)
	m.RecordStreamEvent("complete")
	m.RecordStream("/x", OutcomeError, time.Second, 0)
	m.RecordUpload(10)
	m.RecordExport("json")
	if err := m.WriteTextfile("/tmp/never-written.prom"); err != nil {
		t.Errorf("nil WriteTextfile = %v", err)
	}
	if m.Registry() != nil {
		t.Error("nil Registry should be nil")
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("GET", "/ticket/list", 200, time.Second)

	path := filepath.Join(t.TempDir(), "nexira.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `nexira_api_requests_total{method="GET",route="/ticket/list",status="200"} 1`) {
		t.Errorf("textfile missing counter:\n%s", data)
	}
}

// ============================================================================
// Tracing Tests
// ============================================================================

func TestInitTracing_None(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Exporter: "none"})
	if err != nil {
		t.Fatalf("InitTracing() error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error: %v", err)
	}
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Exporter: "zipkin"})
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("expected ErrUnknownExporter, got %v", err)
	}
}

//nolint:staticcheck // a nil context is the case under test
func TestInitTracing_NilContext(t *testing.T) {
	_, err := InitTracing(nil, TracingConfig{})
	if !errors.Is(err, ErrNilContext) {
		t.Errorf("expected ErrNilContext, got %v", err)
	}
}

func TestInitTracing_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{Exporter: "stdout", Writer: &buf})
	if err != nil {
		t.Fatalf("InitTracing() error: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "history.list")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error: %v", err)
	}
	if !strings.Contains(buf.String(), "history.list") {
		t.Errorf("span not exported: %q", buf.String())
	}
}
