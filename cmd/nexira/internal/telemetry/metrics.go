// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides client-side metrics and tracing for the Nexira CLI.
//
// # Description
//
// Metrics live in a private Prometheus registry rather than the global one,
// because the CLI is short-lived and exposes no /metrics endpoint. At exit the
// registry can be written as a node_exporter textfile via WriteTextfile.
//
// Tracing wraps the OpenTelemetry SDK with three exporters: none, stdout and
// otlp (gRPC).
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// A nil *Metrics is valid and records nothing.
package telemetry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "nexira"

// Outcome labels for streams.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
	OutcomeTimeout   = "timeout"
)

// Metrics holds every Prometheus collector the client records.
//
// # Fields
//
//   - APIRequestsTotal: REST calls by method, route template and status code
//   - APIRequestDuration: REST latency by method and route template
//   - StreamEventsTotal: SSE events by event type
//   - StreamDuration: whole-stream duration by endpoint and outcome
//   - TimeToFirstChunk: latency to the first assistant_chunk by endpoint
//   - UploadBytesTotal: bytes sent to presigned upload URLs
//   - ExportsTotal: transcripts exported by format
type Metrics struct {
	registry *prometheus.Registry

	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	StreamEventsTotal  *prometheus.CounterVec
	StreamDuration     *prometheus.HistogramVec
	TimeToFirstChunk   *prometheus.HistogramVec
	UploadBytesTotal   prometheus.Counter
	ExportsTotal       *prometheus.CounterVec
}

// NewMetrics creates collectors registered on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total REST requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "REST request latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		StreamEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "stream",
				Name:      "events_total",
				Help:      "Total SSE events received by type",
			},
			[]string{"type"},
		),
		StreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "stream",
				Name:      "duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint", "outcome"},
		),
		TimeToFirstChunk: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "stream",
				Name:      "time_to_first_chunk_seconds",
				Help:      "Time from request to first assistant chunk in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),
		UploadBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "tickets",
				Name:      "upload_bytes_total",
				Help:      "Total attachment bytes uploaded to presigned URLs",
			},
		),
		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "export",
				Name:      "transcripts_total",
				Help:      "Total transcripts exported by format",
			},
			[]string{"format"},
		),
	}
}

// Registry exposes the underlying registry for tests and textfile output.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest records one REST call. status 0 means the request never got
// a response.
func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := "network_error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.APIRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordStreamEvent(eventType string) {
	if m == nil {
		return
	}
	m.StreamEventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordStream(endpoint, outcome string, d, firstChunk time.Duration) {
	if m == nil {
		return
	}
	m.StreamDuration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
	if firstChunk > 0 {
		m.TimeToFirstChunk.WithLabelValues(endpoint).Observe(firstChunk.Seconds())
	}
}

func (m *Metrics) RecordUpload(bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.UploadBytesTotal.Add(float64(bytes))
}

func (m *Metrics) RecordExport(format string) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(format).Inc()
}

// WriteTextfile writes the registry in the Prometheus text format, suitable
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
