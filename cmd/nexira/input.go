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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// maxInputBytes matches the message size the backend accepts.
const maxInputBytes = 16 * 1024

// InputReader reads user input one line at a time.
//
// # Description
//
// Abstracts the chat input source so the chat loop can be driven by a
// terminal, a pipe, or a fixed script in tests.
//
// # Outputs
//
//   - string: the line, trimmed
//   - error: io.EOF when input is exhausted
type InputReader interface {
	ReadLine() (string, error)
}

// PromptingInputReader is implemented by readers that draw their own prompt.
// The chat loop prints the prompt itself for any other reader.
type PromptingInputReader interface {
	InputReader
	SetPrompt(prompt string)
}

// =============================================================================
// StdinReader
// =============================================================================

// StdinReader reads newline-terminated lines from a plain stream. Used for
// piped input and CI.
type StdinReader struct {
	reader *bufio.Reader
}

func NewStdinReader(r io.Reader) *StdinReader {
	if r == nil {
		r = os.Stdin
	}
	return &StdinReader{reader: bufio.NewReader(r)}
}

// ReadLine returns the next line. A final line without a newline is still
// returned; io.EOF follows on the next call.
func (r *StdinReader) ReadLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// =============================================================================
// InteractiveInputReader
// =============================================================================

// InteractiveInputReader reads input with line editing and Up/Down history
// through a bubbletea text input.
//
// # Description
//
// Keys:
//   - Enter submits the line
//   - Up/Down walk the history of this session
//   - Ctrl+C clears the line; on an empty line it ends input
//   - Ctrl+D ends input
//
// # Limitations
//
// History lives in memory only.
type InteractiveInputReader struct {
	history     []string
	maxHistory  int
	prompt      string
	placeholder string
}

type inputModel struct {
	textInput    textinput.Model
	history      []string
	historyIndex int
	draft        string // the unsent line while browsing history
	done         bool
	eof          bool
}

// NewInteractiveInputReader returns an interactive reader when stdin is a
// terminal and a StdinReader otherwise.
func NewInteractiveInputReader(maxHistory int, placeholder string) InputReader {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return NewStdinReader(os.Stdin)
	}
	return &InteractiveInputReader{
		history:     make([]string, 0, maxHistory),
		maxHistory:  maxHistory,
		prompt:      "> ",
		placeholder: placeholder,
	}
}

func (r *InteractiveInputReader) SetPrompt(prompt string) {
	r.prompt = prompt
}

func (r *InteractiveInputReader) ReadLine() (string, error) {
	ti := textinput.New()
	ti.Prompt = r.prompt
	ti.Placeholder = r.placeholder
	ti.Focus()
	ti.CharLimit = maxInputBytes
	ti.Width = 80

	m := inputModel{textInput: ti, history: r.history, historyIndex: -1}

	final, err := tea.NewProgram(m, tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return "", err
	}
	result, ok := final.(inputModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type from bubbletea: %T", final)
	}
	if result.eof {
		return "", io.EOF
	}

	input := strings.TrimSpace(result.textInput.Value())
	if input != "" {
		r.addToHistory(input)
	}
	return input, nil
}

func (r *InteractiveInputReader) addToHistory(input string) {
	if len(r.history) > 0 && r.history[len(r.history)-1] == input {
		return
	}
	r.history = append(r.history, input)
	if len(r.history) > r.maxHistory {
		r.history = r.history[1:]
	}
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}

	switch key.Type {
	case tea.KeyEnter:
		m.done = true
		return m, tea.Quit

	case tea.KeyCtrlC:
		if m.textInput.Value() == "" {
			m.eof = true
		}
		m.textInput.SetValue("")
		m.done = true
		return m, tea.Quit

	case tea.KeyCtrlD:
		m.eof = true
		m.done = true
		return m, tea.Quit

	case tea.KeyUp:
		if len(m.history) == 0 {
			return m, nil
		}
		if m.historyIndex == -1 {
			m.draft = m.textInput.Value()
			m.historyIndex = len(m.history) - 1
		} else if m.historyIndex > 0 {
			m.historyIndex--
		}
		m.textInput.SetValue(m.history[m.historyIndex])
		m.textInput.CursorEnd()
		return m, nil

	case tea.KeyDown:
		if m.historyIndex == -1 {
			return m, nil
		}
		if m.historyIndex < len(m.history)-1 {
			m.historyIndex++
			m.textInput.SetValue(m.history[m.historyIndex])
		} else {
			m.historyIndex = -1
			m.textInput.SetValue(m.draft)
		}
		m.textInput.CursorEnd()
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done {
		return ""
	}
	return m.textInput.View()
}
