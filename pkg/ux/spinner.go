// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// showElapsedAfter is how long a spinner runs before it appends the elapsed
// seconds, so a slow sign-in or export visibly keeps going.
const showElapsedAfter = 3 * time.Second

// Spinner animates one status line until stopped. In machine mode it prints
// a single PROGRESS line instead.
type Spinner struct {
	writer   io.Writer
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	message string
	running bool
	started time.Time
	frame   int
}

func NewSpinner(message string) *Spinner {
	return &Spinner{
		message:  message,
		writer:   Out,
		interval: 80 * time.Millisecond,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithWriter redirects spinner output.
func (s *Spinner) WithWriter(w io.Writer) *Spinner {
	if w != nil {
		s.writer = w
	}
	return s
}

func (s *Spinner) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

func (s *Spinner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start is a no-op on a running spinner. A spinner is not restartable.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.started = time.Now()
	message := s.message
	s.mu.Unlock()

	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(s.writer, "PROGRESS: %s\n", message)
		close(s.done)
		return
	}

	go s.animate()
}

func (s *Spinner) animate() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			fmt.Fprint(s.writer, "\r\033[K")
			return
		case now := <-ticker.C:
			s.mu.Lock()
			fmt.Fprintf(s.writer, "\r\033[K%s %s", Styles.Highlight.Render(spinnerFrames[s.frame]), s.line(now))
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.mu.Unlock()
		}
	}
}

// line is the status text at now. Callers hold s.mu.
func (s *Spinner) line(now time.Time) string {
	elapsed := now.Sub(s.started)
	if elapsed < showElapsedAfter {
		return s.message
	}
	return fmt.Sprintf("%s %s", s.message, Styles.Muted.Render(fmt.Sprintf("(%ds)", int(elapsed.Seconds()))))
}

// Stop clears the line and waits for the animation to end.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

// UpdateMessage replaces the status text; the renderer uses it for tool
// calls and status events.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// WithSpinner runs fn behind a spinner and reports the outcome with Success
// or Error.
func WithSpinner(message string, fn func() error) error {
	spin := NewSpinner(message)
	spin.Start()
	err := fn()
	spin.Stop()

	if err != nil {
		Error(fmt.Sprintf("%s: %v", message, err))
		return err
	}
	Success(message)
	return nil
}
