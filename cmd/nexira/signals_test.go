// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterruptHandler_CancelsTurnFirst(t *testing.T) {
	root, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	h := newInterruptHandler(cancelRoot)

	turn, stop := h.beginTurn(root)
	defer stop()

	h.handle(os.Interrupt)
	assert.Error(t, turn.Err(), "first Ctrl+C stops the turn")
	assert.NoError(t, root.Err(), "the command keeps running")

	h.handle(os.Interrupt)
	assert.Error(t, root.Err(), "second Ctrl+C stops the command")
}

func TestInterruptHandler_TerminateCancelsCommand(t *testing.T) {
	root, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	h := newInterruptHandler(cancelRoot)

	turn, stop := h.beginTurn(root)
	defer stop()

	h.handle(syscall.SIGTERM)
	assert.Error(t, root.Err())
	assert.Error(t, turn.Err())
}

func TestInterruptHandler_EndedTurnIsForgotten(t *testing.T) {
	root, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	h := newInterruptHandler(cancelRoot)

	_, stop := h.beginTurn(root)
	stop()

	h.handle(os.Interrupt)
	assert.Error(t, root.Err())
}

func TestInterruptHandler_NilIsSafe(t *testing.T) {
	var h *interruptHandler
	ctx, stop := h.beginTurn(context.Background())
	assert.NoError(t, ctx.Err())
	stop()
	assert.Error(t, ctx.Err())
}
