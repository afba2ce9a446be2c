// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_StartStop(t *testing.T) {
	withPersonality(t, PersonalityFull)
	var buf syncBuffer

	s := NewSpinner("Loading conversations").WithWriter(&buf)
	s.interval = 5 * time.Millisecond
	s.Start()
	s.Start()

	if !s.IsRunning() {
		t.Fatal("spinner should be running")
	}

	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop()

	if s.IsRunning() {
		t.Error("spinner should be stopped")
	}
	out := buf.String()
	if !strings.Contains(out, "Loading conversations") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.HasSuffix(out, "\r\033[K") {
		t.Errorf("expected line clear on stop, got %q", out)
	}
}

func TestSpinner_Machine(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	var buf syncBuffer

	s := NewSpinner("Uploading").WithWriter(&buf)
	s.Start()
	s.Stop()

	if buf.String() != "PROGRESS: Uploading\n" {
		t.Errorf("unexpected machine output %q", buf.String())
	}
}

func TestSpinner_UpdateMessage(t *testing.T) {
	s := NewSpinner("one")
	s.UpdateMessage("two")
	if s.Message() != "two" {
		t.Errorf("Message() = %q", s.Message())
	}
}

func TestSpinner_LineShowsElapsedWhenSlow(t *testing.T) {
	s := NewSpinner("Waiting for Google sign-in")
	s.started = time.Now()

	if got := s.line(s.started.Add(time.Second)); got != "Waiting for Google sign-in" {
		t.Errorf("fast line = %q", got)
	}
	got := s.line(s.started.Add(12 * time.Second))
	if !strings.HasPrefix(got, "Waiting for Google sign-in ") || !strings.Contains(got, "(12s)") {
		t.Errorf("slow line = %q", got)
	}
}

func TestWithSpinner(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	out, errOut := captureOutput(t)

	if err := WithSpinner("sync", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "OK: sync") {
		t.Errorf("stdout = %q", out.String())
	}

	boom := errors.New("boom")
	if err := WithSpinner("sync", func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if !strings.Contains(errOut.String(), "ERROR: sync: boom") {
		t.Errorf("stderr = %q", errOut.String())
	}
}
