// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// interruptHandler routes Ctrl+C. While a chat turn is streaming the
// interrupt stops only that turn; otherwise, and for SIGTERM, it cancels the
// whole command.
type interruptHandler struct {
	mu   sync.Mutex
	root context.CancelFunc
	turn context.CancelFunc
}

// interrupts is nil in tests; beginTurn then returns a plain child context.
var interrupts *interruptHandler

func newInterruptHandler(root context.CancelFunc) *interruptHandler {
	return &interruptHandler{root: root}
}

func (h *interruptHandler) handle(sig os.Signal) {
	h.mu.Lock()
	turn := h.turn
	h.turn = nil
	h.mu.Unlock()

	if sig == os.Interrupt && turn != nil {
		slog.Debug("interrupt: cancelling current turn")
		turn()
		return
	}
	slog.Debug("interrupt: cancelling command", "signal", sig.String())
	h.root()
}

// beginTurn returns a context that a single Ctrl+C cancels. The returned
// function must be called when the turn ends.
func (h *interruptHandler) beginTurn(ctx context.Context) (context.Context, context.CancelFunc) {
	turnCtx, cancel := context.WithCancel(ctx)
	if h == nil {
		return turnCtx, cancel
	}
	h.mu.Lock()
	h.turn = cancel
	h.mu.Unlock()
	return turnCtx, func() {
		h.mu.Lock()
		h.turn = nil
		h.mu.Unlock()
		cancel()
	}
}
