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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/chat"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/i18n"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/streaming"
	"github.com/NexiraAI/nexira/pkg/ux"
)

const (
	// replayMessages bounds the transcript printed when a chat resumes.
	replayMessages = 10

	inputHistorySize = 50
)

func runChatCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := nx.requireLogin()
	if err != nil {
		return err
	}

	resume, _ := cmd.Flags().GetString("resume")
	fresh, _ := cmd.Flags().GetBool("new")
	message, _ := cmd.Flags().GetString("message")

	provider := nx.session.Get(session.KeySelectedProvider)
	model := nx.session.Get(session.KeySelectedModel)
	ctrl := chat.NewController(chat.Config{
		History:        nx.history,
		Streamer:       nx.streaming,
		Provider:       provider,
		Model:          model,
		Language:       string(nx.lang),
		OnConversation: rememberConversation(nx.session),
	})

	if !fresh {
		target := firstNonEmpty(resume, nx.session.Get(session.KeyCurrentConversation))
		if target != "" {
			if _, err := ctrl.Switch(ctx, target); err != nil {
				if resume != "" {
					return fmt.Errorf("resume %s: %w", resume, err)
				}
				slog.Warn("could not reopen last conversation", "conversation_id", target, "error", err)
				ctrl.New()
			}
		}
	}

	level := ux.GetPersonality().Level
	out := cmd.OutOrStdout()

	if message != "" {
		return sendOnce(ctx, ctrl, message, out, level)
	}

	ui := ux.NewChatUIWithWriter(out, level)
	ui.Header(ux.HeaderConfig{
		ConversationID: ctrl.Current().ID(),
		Title:          ctrl.Current().Title(),
		Provider:       provider,
		Model:          model,
		UserName:       id.DisplayName(),
		Language:       string(nx.lang),
	})
	if ux.ShouldShowChrome() {
		ui.Footer(nx.tr.T("chat.welcome"))
	}

	chatCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchSignOut(chatCtx, nx.session, func() {
		ux.Warning(nx.tr.T("auth.logged_out"))
		cancel()
	})

	runner := &chatRunner{
		ctrl:  ctrl,
		ui:    ui,
		input: NewInteractiveInputReader(inputHistorySize, nx.tr.T("chat.placeholder")),
		out:   out,
		tr:    nx.tr,
		level: level,
		list: func(ctx context.Context) ([]history.Conversation, error) {
			return nx.lister.List(ctx, replayMessages, 0)
		},
	}
	runner.replay(ctrl.Current())
	return runner.Run(chatCtx)
}

// rememberConversation persists the current conversation id so the next
// `nexira chat` reopens it.
func rememberConversation(store *session.Store) func(string) {
	return func(id string) {
		var err error
		if id == "" {
			err = store.Delete(session.KeyCurrentConversation)
		} else {
			err = store.Set(session.KeyCurrentConversation, id)
		}
		if err != nil {
			slog.Warn("failed to remember conversation", "conversation_id", id, "error", err)
		}
	}
}

// watchSignOut calls onSignOut when another process logs the user out.
func watchSignOut(ctx context.Context, store *session.Store, onSignOut func()) {
	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()

	go func() {
		if err := store.Watch(ctx); err != nil {
			slog.Warn("session watcher stopped", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-changes:
			if change.Source != session.SourceExternal || !slices.Contains(change.Keys, session.KeyUserID) {
				continue
			}
			if !store.Identity().LoggedIn() {
				onSignOut()
				return
			}
		}
	}
}

// =============================================================================
// CHAT RUNNER
// =============================================================================

// chatRunner is the interactive read-send loop.
//
// # Description
//
// Lines starting with "/" are commands (/new, /clear, /switch <id>,
// /history, /help, /exit). Everything else is sent as a chat turn. Ctrl+C
// during a reply stops that reply only; the loop ends on EOF, /exit, or
// when ctx is cancelled.
type chatRunner struct {
	ctrl  *chat.Controller
	ui    ux.ChatUI
	input InputReader
	out   io.Writer
	tr    *i18n.Translator
	level ux.PersonalityLevel
	list  func(ctx context.Context) ([]history.Conversation, error)

	stats ux.SessionStats
}

func (r *chatRunner) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		r.stats.Duration = time.Since(start)
		r.ui.SessionEnd(r.ctrl.Current().ID(), &r.stats)
	}()

	for ctx.Err() == nil {
		prompt := r.ui.Prompt()
		if p, ok := r.input.(PromptingInputReader); ok {
			p.SetPrompt(prompt)
		} else {
			fmt.Fprint(r.out, prompt)
		}

		line, err := r.input.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") || isExitCommand(line) {
			if r.command(ctx, line) {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
	return nil
}

func (r *chatRunner) send(ctx context.Context, line string) {
	turnCtx, stop := interrupts.beginTurn(ctx)
	defer stop()

	r.ui.AssistantLabel()
	renderer := ux.NewTerminalStreamRenderer(r.out, r.level)
	turn, err := r.ctrl.Send(turnCtx, line, renderer)
	r.stats.MessageCount++

	if turn != nil && turn.Result != nil {
		r.stats.TotalChunks += turn.Result.TotalChunks
		if r.stats.FirstResponseLatency == 0 {
			r.stats.FirstResponseLatency = turn.Result.TimeToFirstChunk()
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, streaming.ErrCancelled):
		r.ui.Cancelled()
	case turn != nil && turn.Result != nil:
		// The renderer already showed the stream error.
		r.stats.Errors++
	default:
		r.stats.Errors++
		r.ui.Error(err)
	}
}

// sendOnce answers a single message for `chat -m`.
func sendOnce(ctx context.Context, ctrl *chat.Controller, message string, out io.Writer, level ux.PersonalityLevel) error {
	turnCtx, stop := interrupts.beginTurn(ctx)
	defer stop()
	turn, err := ctrl.Send(turnCtx, message, ux.NewTerminalStreamRenderer(out, level))
	if turn == nil {
		return err
	}
	return markShown(turn.Result, err)
}

// command runs a slash command and reports whether the loop should end.
func (r *chatRunner) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "exit", "quit":
		return true

	case "new":
		r.ctrl.New()
		r.notice(r.tr.T("chat.new"))

	case "clear":
		r.ctrl.Clear()
		r.notice(r.tr.T("chat.cleared"))

	case "switch", "resume":
		if arg == "" {
			r.ui.Error(errors.New("usage: /switch <conversation_id>"))
			return false
		}
		conv, err := r.ctrl.Switch(ctx, arg)
		if err != nil {
			if errors.Is(err, apiclient.ErrNotFound) {
				err = fmt.Errorf("conversation %s not found", arg)
			}
			r.ui.Error(err)
			return false
		}
		r.ui.ConversationSwitched(conv.ID(), conv.Title())
		r.replay(conv)

	case "history":
		convs, err := r.list(ctx)
		if err != nil {
			r.ui.Error(err)
			return false
		}
		if len(convs) == 0 {
			r.notice(r.tr.T("history.empty"))
			return false
		}
		current := r.ctrl.Current().ID()
		for _, c := range convs {
			marker := " "
			if c.ID.String() == current {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s  %s  %s\n", marker, c.ID, ux.Truncate(titleOrUntitled(c.Title), 48),
				ux.FormatRelativeTime(time.Time(c.UpdatedAt)))
		}

	case "help":
		r.notice(r.tr.T("chat.commands"))
		r.notice("/switch <id>  /quit")

	default:
		r.ui.Error(fmt.Errorf("unknown command /%s, type /help", name))
	}
	return false
}

// replay prints the tail of a loaded conversation.
func (r *chatRunner) replay(conv *chat.Conversation) {
	msgs := conv.Messages()
	if len(msgs) > replayMessages {
		msgs = msgs[len(msgs)-replayMessages:]
	}
	for _, m := range msgs {
		switch m.Role {
		case history.RoleUser:
			r.ui.UserMessage(m.Content)
		case history.RoleAssistant:
			r.ui.AssistantMessage(m.Content)
		}
	}
}

func (r *chatRunner) notice(msg string) {
	if r.level == ux.PersonalityMachine {
		fmt.Fprintf(r.out, "INFO: %s\n", msg)
		return
	}
	fmt.Fprintln(r.out, ux.Styles.Muted.Render(msg))
}

func isExitCommand(input string) bool {
	return input == "exit" || input == "quit"
}

func titleOrUntitled(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled"
	}
	return title
}
