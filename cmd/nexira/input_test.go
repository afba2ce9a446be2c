// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdinReader_ReadLine(t *testing.T) {
	var _ InputReader = &StdinReader{}

	reader := NewStdinReader(strings.NewReader("  first  \nsecond\nlast without newline"))

	for _, want := range []string{"first", "second", "last without newline"} {
		got, err := reader.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := reader.ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestStdinReader_Empty(t *testing.T) {
	_, err := NewStdinReader(strings.NewReader("")).ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestInteractiveInputReader_AddToHistory(t *testing.T) {
	r := &InteractiveInputReader{maxHistory: 3}

	for _, line := range []string{"a", "b", "b", "c", "d"} {
		r.addToHistory(line)
	}
	assert.Equal(t, []string{"b", "c", "d"}, r.history)
}

func newTestInputModel(history ...string) inputModel {
	ti := textinput.New()
	ti.Focus()
	return inputModel{textInput: ti, history: history, historyIndex: -1}
}

func press(m inputModel, k tea.KeyType) inputModel {
	next, _ := m.Update(tea.KeyMsg{Type: k})
	return next.(inputModel)
}

func TestInputModel_HistoryNavigation(t *testing.T) {
	m := newTestInputModel("first", "second")
	m.textInput.SetValue("draft")

	m = press(m, tea.KeyUp)
	assert.Equal(t, "second", m.textInput.Value())

	m = press(m, tea.KeyUp)
	assert.Equal(t, "first", m.textInput.Value())

	m = press(m, tea.KeyUp)
	assert.Equal(t, "first", m.textInput.Value(), "stays on the oldest entry")

	m = press(m, tea.KeyDown)
	assert.Equal(t, "second", m.textInput.Value())

	m = press(m, tea.KeyDown)
	assert.Equal(t, "draft", m.textInput.Value(), "returns to the unsent line")
	assert.Equal(t, -1, m.historyIndex)
}

func TestInputModel_EmptyHistoryIgnoresArrows(t *testing.T) {
	m := newTestInputModel()
	m.textInput.SetValue("typed")

	m = press(m, tea.KeyUp)
	m = press(m, tea.KeyDown)
	assert.Equal(t, "typed", m.textInput.Value())
}

func TestInputModel_EndKeys(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		key       tea.KeyType
		wantEOF   bool
		wantValue string
	}{
		{"enter submits", "hello", tea.KeyEnter, false, "hello"},
		{"ctrl+c clears a typed line", "hello", tea.KeyCtrlC, false, ""},
		{"ctrl+c on empty line ends input", "", tea.KeyCtrlC, true, ""},
		{"ctrl+d ends input", "hello", tea.KeyCtrlD, true, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestInputModel()
			m.textInput.SetValue(tt.value)

			next, cmd := m.Update(tea.KeyMsg{Type: tt.key})
			got := next.(inputModel)

			assert.True(t, got.done)
			assert.Equal(t, tt.wantEOF, got.eof)
			assert.Equal(t, tt.wantValue, got.textInput.Value())
			require.NotNil(t, cmd)
			assert.Equal(t, tea.Quit(), cmd())
			assert.Empty(t, got.View())
		})
	}
}
