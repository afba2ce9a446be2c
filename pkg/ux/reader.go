// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains stream readers that consume io.Reader sources
// and emit parsed events via callbacks.
//
// Single Responsibility:
//
//	Readers handle I/O, framing and event sequencing. They use parsers to
//	convert records to events, but do not render output.
//
// Context Support:
//
//	All readers accept context.Context for cancellation. When the context
//	is cancelled, reading stops and ctx.Err() is returned.
package ux

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"time"
)

// maxRecordSize bounds a single SSE record.
const maxRecordSize = 4 << 20

// StreamCallback receives each parsed event. Returning an error stops the read.
type StreamCallback func(event StreamEvent) error

// =============================================================================
// Stream Reader Interface
// =============================================================================

// StreamReader reads text/event-stream bodies and invokes callbacks.
//
// Thread Safety:
//
//	A StreamReader holds no per-stream state and may be shared, but a single
//	Read call must not be driven from several goroutines.
//
// Example:
//
//	reader := NewSSEStreamReader(NewSSEParser())
//
//	err := reader.Read(ctx, resp.Body, func(event StreamEvent) error {
//	    if event.Type == StreamEventChunk {
//	        fmt.Print(event.Content)
//	    }
//	    return nil
//	})
type StreamReader interface {
	// Read processes a stream, invoking callback for each event.
	//
	// The stream is complete when EOF is reached, a terminal event
	// (complete/error) has been dispatched, the context is cancelled, or the
	// callback returns an error. Only the last two produce a non-nil error,
	// along with I/O failures from r.
	Read(ctx context.Context, r io.Reader, callback StreamCallback) error

	// ReadAll reads the entire stream and returns the aggregated result.
	//
	// A stream ending in an error event yields result.Error and a nil error.
	// On cancellation the partial result is returned together with ctx.Err().
	ReadAll(ctx context.Context, r io.Reader) (*StreamResult, error)
}

// =============================================================================
// SSE Stream Reader
// =============================================================================

type sseStreamReader struct {
	parser SSEParser
}

// NewSSEStreamReader creates a reader that frames records on blank lines.
func NewSSEStreamReader(parser SSEParser) StreamReader {
	return &sseStreamReader{
		parser: parser,
	}
}

// Read splits the body into records and dispatches parsed events.
//
// The body is read on a helper goroutine so that a cancelled context stops
// Read promptly even while the underlying Read call is blocked. Callers
// should still close the body (cancelling the request does that for HTTP).
func (r *sseStreamReader) Read(ctx context.Context, reader io.Reader, callback StreamCallback) error {
	records := make(chan string)
	scanErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
		scanner.Split(splitRecords)
		for scanner.Scan() {
			select {
			case records <- scanner.Text():
			case <-stop:
				return
			}
		}
		scanErr <- scanner.Err()
		close(records)
	}()

	eventIndex := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-records:
			if !ok {
				return <-scanErr
			}

			event, err := r.parser.ParseRecord(record)
			if err != nil {
				return err
			}
			if event == nil {
				continue
			}

			event.Index = eventIndex
			eventIndex++

			// A cancel that raced with this record wins.
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if err := callback(*event); err != nil {
				return err
			}

			if event.IsTerminal() {
				return nil
			}
		}
	}
}

// ReadAll collects the stream into a StreamResult.
func (r *sseStreamReader) ReadAll(ctx context.Context, reader io.Reader) (*StreamResult, error) {
	result := &StreamResult{StartedAt: time.Now()}

	err := r.Read(ctx, reader, func(event StreamEvent) error {
		result.Apply(event)
		return nil
	})

	if err != nil && ctx.Err() != nil {
		result.Cancelled = true
	}
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
	}

	return result, err
}

// =============================================================================
// Framing
// =============================================================================

// splitRecords is a bufio.SplitFunc yielding SSE records. A record ends at
// an empty line; LF, CRLF and CR terminators may be mixed freely.
func splitRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if end, next := recordSeparator(data, atEOF); end >= 0 {
		return next, data[:end], nil
	}

	if atEOF {
		// Trailing record without a separator.
		return len(data), bytes.TrimRight(data, "\r\n"), nil
	}

	return 0, nil, nil
}

// recordSeparator finds the first line terminator that is directly followed
// by another one. It returns where the record ends and where the next one
// starts, or -1 when data holds no complete separator yet.
func recordSeparator(data []byte, atEOF bool) (end, next int) {
	for i := 0; i < len(data); i++ {
		n, ok := lineBreak(data[i:], atEOF)
		if !ok {
			return -1, 0
		}
		if n == 0 {
			continue
		}
		m, ok := lineBreak(data[i+n:], atEOF)
		if !ok {
			return -1, 0
		}
		if m > 0 {
			return i, i + n + m
		}
		i += n - 1
	}
	return -1, 0
}

// lineBreak returns the length of the terminator at the start of b, zero if
// there is none. ok is false while b may end inside a CRLF pair.
func lineBreak(b []byte, atEOF bool) (n int, ok bool) {
	switch {
	case len(b) == 0:
		return 0, atEOF
	case b[0] == '\n':
		return 1, true
	case b[0] != '\r':
		return 0, true
	case len(b) == 1:
		return 1, atEOF
	case b[1] == '\n':
		return 2, true
	}
	return 1, true
}

var _ StreamReader = (*sseStreamReader)(nil)
