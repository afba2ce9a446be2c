// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/NexiraAI/nexira/cmd/nexira/config"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/i18n"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/streaming"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/telemetry"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/tickets"
	"github.com/NexiraAI/nexira/pkg/ux"
)

// =============================================================================
// Mock Implementations
// =============================================================================

// MockInputReader returns canned lines, then io.EOF.
type MockInputReader struct {
	inputs []string
	index  int
	prompt string
}

func NewMockInputReader(inputs []string) *MockInputReader {
	return &MockInputReader{inputs: inputs}
}

func (m *MockInputReader) ReadLine() (string, error) {
	if m.index >= len(m.inputs) {
		return "", io.EOF
	}
	line := m.inputs[m.index]
	m.index++
	return line, nil
}

func (m *MockInputReader) SetPrompt(prompt string) { m.prompt = prompt }

// fakeHistory is an in-memory chat history backend.
type fakeHistory struct {
	mu     sync.Mutex
	convs  map[string]*history.Conversation
	nextID int
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{convs: make(map[string]*history.Conversation)}
}

func (f *fakeHistory) CreateConversation(ctx context.Context, title string) (*history.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := history.ID(fmt.Sprintf("conv-%d", f.nextID))
	f.convs[string(id)] = &history.Conversation{ID: id, Title: title}
	return &history.Conversation{ID: id, Title: title}, nil
}

func (f *fakeHistory) GetConversation(ctx context.Context, id string) (*history.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, apiclient.ErrNotFound
	}
	clone := *conv
	clone.Messages = append([]history.Message(nil), conv.Messages...)
	return &clone, nil
}

func (f *fakeHistory) AddMessage(ctx context.Context, id string, role history.Role, content, provider, model string) (*history.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, apiclient.ErrNotFound
	}
	msg := history.Message{
		ID:       history.ID(fmt.Sprintf("%s-m%d", id, len(conv.Messages)+1)),
		Role:     role,
		Content:  content,
		Provider: provider,
		Model:    model,
	}
	conv.Messages = append(conv.Messages, msg)
	conv.MessageCount = len(conv.Messages)
	return &msg, nil
}

// fakeStreamer replays a scripted reply through the renderer.
type fakeStreamer struct {
	mu       sync.Mutex
	reply    string
	err      error
	reported bool // err was already shown through the renderer
	requests []streaming.ChatRequest
}

func (f *fakeStreamer) Chat(ctx context.Context, req streaming.ChatRequest, renderer ux.StreamRenderer) (*ux.StreamResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply, err, reported := f.reply, f.err, f.reported
	f.mu.Unlock()

	if errors.Is(err, streaming.ErrCancelled) {
		renderer.Finalize()
		return renderer.Result(), err
	}
	if err != nil {
		if !reported {
			return nil, err
		}
		renderer.OnError(ctx, err)
		renderer.Finalize()
		return renderer.Result(), err
	}
	renderer.OnChunk(ctx, reply)
	renderer.OnComplete(ctx, ux.StreamEvent{MessageID: "srv-1"})
	renderer.Finalize()
	return renderer.Result(), nil
}

// withPersonality sets the output personality for one test.
func withPersonality(t *testing.T, level ux.PersonalityLevel) {
	t.Helper()
	saved := ux.GetPersonality()
	ux.SetPersonalityLevel(level)
	t.Cleanup(func() { ux.SetPersonality(saved) })
}

// newTestApp installs nx backed by srv, a temporary session file, and an
// output buffer for the ux print helpers.
func newTestApp(t *testing.T, srv *httptest.Server) *bytes.Buffer {
	t.Helper()
	withPersonality(t, ux.PersonalityMachine)

	dir := t.TempDir()
	store, err := session.Open(filepath.Join(dir, "session.json"))
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Session.Path = store.Path()
	cfg.Cache.Enabled = false
	cfg.Export.Dir = filepath.Join(dir, "exports")

	baseURL := "http://127.0.0.1:0"
	if srv != nil {
		baseURL = srv.URL
		cfg.API.URL = srv.URL
	}
	api := apiclient.New(apiclient.Config{
		BaseURL:  baseURL,
		Identity: store.HeaderIdentity,
		Metrics:  telemetry.NewMetrics(),
	})

	var out bytes.Buffer
	savedOut, savedErr, savedApp, savedConfig := ux.Out, ux.ErrOut, nx, configPath
	ux.Out, ux.ErrOut = &out, &out
	configPath = filepath.Join(dir, "nexira.yaml")
	require.NoError(t, config.Save(configPath, cfg))

	nx = &app{
		cfg:     cfg,
		metrics: api.Metrics(),
		session: store,
		tr:      i18n.New(i18n.English),
		lang:    i18n.English,
		api:     api,
		history: history.NewClient(api),
		tickets: tickets.NewClient(api),
	}
	nx.lister = history.NewLister(nx.history.GetConversations)

	t.Cleanup(func() {
		ux.Out, ux.ErrOut, nx, configPath = savedOut, savedErr, savedApp, savedConfig
	})
	return &out
}

// signIn stores a test identity in the session.
func signIn(t *testing.T) session.Identity {
	t.Helper()
	id := session.Identity{UserID: "user-1", Email: "ada@example.com", Name: "Ada", Provider: "email"}
	require.NoError(t, nx.session.Login(id))
	return id
}

// testCommand returns a command whose output goes to out and whose context
// is set, the way cobra hands it to RunE.
func testCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetContext(context.Background())
	return cmd
}
