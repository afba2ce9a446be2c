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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/NexiraAI/nexira/cmd/nexira/config"
	"github.com/NexiraAI/nexira/cmd/nexira/gcs"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/cache"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/export"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
)

func runHistoryList(cmd *cobra.Command, args []string) error {
	id, err := nx.requireLogin()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	offline, _ := cmd.Flags().GetBool("offline")
	archived, _ := cmd.Flags().GetBool("archived")
	if limit <= 0 || offset < 0 {
		return fmt.Errorf("%w: --limit must be positive and --offset not negative", validation.ErrInvalid)
	}

	var convs []history.Conversation
	if offline {
		convs, err = cachedList(id)
		if err != nil {
			return err
		}
	} else {
		convs, err = nx.lister.List(cmd.Context(), limit, offset)
		if err != nil {
			return err
		}
	}

	if !archived {
		kept := convs[:0]
		for _, c := range convs {
			if !c.Archived {
				kept = append(kept, c)
			}
		}
		convs = kept
	}
	if len(convs) == 0 {
		ux.Muted(nx.tr.T("history.empty"))
		return nil
	}
	printConversations(cmd.OutOrStdout(), convs, nx.session.Get(session.KeyCurrentConversation))
	return nil
}

// cachedList reads the offline copy of the conversation list.
func cachedList(id session.Identity) ([]history.Conversation, error) {
	if nx.cache == nil {
		return nil, errors.New(nx.tr.T("history.no_cache"))
	}
	convs, savedAt, err := nx.cache.List(id.UserID)
	if errors.Is(err, cache.ErrMiss) {
		return nil, errors.New(nx.tr.T("history.no_cache"))
	}
	if err != nil {
		return nil, fmt.Errorf("read offline cache: %w", err)
	}
	ux.Muted(nx.tr.T("history.offline", ux.FormatRelativeTime(savedAt)))
	return convs, nil
}

// printConversations writes one line per conversation. The current one is
// marked with "*".
func printConversations(w io.Writer, convs []history.Conversation, current string) {
	machine := ux.GetPersonality().Level == ux.PersonalityMachine
	for _, c := range convs {
		updated := time.Time(c.UpdatedAt)
		if machine {
			fmt.Fprintf(w, "CONVERSATION: %s\t%s\t%s\t%d\t%t\n",
				c.ID, c.Title, updated.UTC().Format(time.RFC3339), c.MessageCount, c.Archived)
			continue
		}
		marker := " "
		if c.ID.String() == current {
			marker = ux.Styles.Highlight.Render("*")
		}
		title := ux.Truncate(titleOrUntitled(c.Title), 48)
		if c.Archived {
			title += ux.Styles.Muted.Render(" (archived)")
		}
		fmt.Fprintf(w, "%s %s  %-48s  %s\n", marker, ux.Styles.Muted.Render(c.ID.String()), title,
			ux.Styles.Muted.Render(ux.FormatRelativeTime(updated)))
	}
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := nx.requireLogin()
	if err != nil {
		return err
	}
	offline, _ := cmd.Flags().GetBool("offline")

	var conv *history.Conversation
	if offline {
		if nx.cache == nil {
			return errors.New(nx.tr.T("history.no_cache"))
		}
		conv, err = nx.cache.Get(id.UserID, args[0])
		if errors.Is(err, cache.ErrMiss) {
			return errors.New(nx.tr.T("history.no_cache"))
		}
	} else {
		conv, err = nx.history.GetConversation(cmd.Context(), args[0])
		if err == nil && nx.cache != nil {
			if err := nx.cache.Put(id.UserID, conv); err != nil {
				slog.Warn("failed to cache conversation", "conversation_id", conv.ID, "error", err)
			}
		}
	}
	if err != nil {
		return err
	}

	printConversation(cmd.OutOrStdout(), conv)
	return nil
}

func printConversation(w io.Writer, conv *history.Conversation) {
	level := ux.GetPersonality().Level
	ui := ux.NewChatUIWithWriter(w, level)
	ui.Header(ux.HeaderConfig{ConversationID: conv.ID.String(), Title: conv.Title})
	for _, m := range conv.Messages {
		switch m.Role {
		case history.RoleUser:
			ui.UserMessage(m.Content)
		case history.RoleAssistant:
			ui.AssistantMessage(m.Content)
		default:
			if level != ux.PersonalityMachine {
				fmt.Fprintln(w, ux.Styles.Muted.Render(m.Content))
			}
		}
	}
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	id, err := nx.requireLogin()
	if err != nil {
		return err
	}
	convID := args[0]
	yes, _ := cmd.Flags().GetBool("yes")

	if !yes {
		if !ux.IsInteractive() {
			return fmt.Errorf("%w: pass --yes to delete without a terminal", validation.ErrInvalid)
		}
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Delete conversation %s?", convID)).
			Description("This cannot be undone.").
			Affirmative("Delete").
			Negative("Keep").
			Value(&confirmed).
			WithTheme(huh.ThemeCharm()).
			Run()
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
	}

	if err := nx.history.DeleteConversation(cmd.Context(), convID); err != nil {
		return err
	}
	if nx.cache != nil {
		if err := nx.cache.Delete(id.UserID, convID); err != nil {
			slog.Warn("failed to drop conversation from cache", "conversation_id", convID, "error", err)
		}
	}
	if nx.session.Get(session.KeyCurrentConversation) == convID {
		if err := nx.session.Delete(session.KeyCurrentConversation); err != nil {
			slog.Warn("failed to reset current conversation", "error", err)
		}
	}
	ux.Success(nx.tr.T("history.deleted"))
	return nil
}

func runHistorySearch(cmd *cobra.Command, args []string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	query := strings.Join(args, " ")
	convs, err := nx.history.SearchConversations(cmd.Context(), query)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		ux.Muted(nx.tr.T("history.no_results", query))
		return nil
	}
	printConversations(cmd.OutOrStdout(), history.Dedupe(convs), nx.session.Get(session.KeyCurrentConversation))
	return nil
}

func runHistoryRename(cmd *cobra.Command, args []string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	title := strings.Join(args[1:], " ")
	if err := nx.history.UpdateTitle(cmd.Context(), args[0], title); err != nil {
		return err
	}
	ux.Success(nx.tr.T("history.renamed"))
	return nil
}

func runHistorySuggestTitle(cmd *cobra.Command, args []string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	apply, _ := cmd.Flags().GetBool("apply")

	title, err := nx.history.SuggestTitle(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	ux.Info(nx.tr.T("history.suggested", title))
	if !apply {
		return nil
	}
	if err := nx.history.UpdateTitle(cmd.Context(), args[0], title); err != nil {
		return err
	}
	ux.Success(nx.tr.T("history.renamed"))
	return nil
}

func runHistoryArchive(cmd *cobra.Command, args []string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	undo, _ := cmd.Flags().GetBool("undo")
	if err := nx.history.ArchiveConversation(cmd.Context(), args[0], !undo); err != nil {
		return err
	}
	if undo {
		ux.Success(nx.tr.T("history.unarchived"))
	} else {
		ux.Success(nx.tr.T("history.archived"))
	}
	return nil
}

// runHistoryExport writes transcripts to disk and optionally uploads them.
//
// # Description
//
// With a conversation id one file is written; with --all every
// conversation is paged through at export.rate_per_second. --upload sends
// each file to export.gcs_bucket under transcripts/<user id>/.
func runHistoryExport(cmd *cobra.Command, args []string) error {
	id, err := nx.requireLogin()
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")
	formatFlag, _ := cmd.Flags().GetString("format")
	dir, _ := cmd.Flags().GetString("dir")
	upload, _ := cmd.Flags().GetBool("upload")
	archived, _ := cmd.Flags().GetBool("archived")

	if all == (len(args) == 1) {
		return fmt.Errorf("%w: pass a conversation id or --all", validation.ErrInvalid)
	}
	format, err := export.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	dir = config.ExpandHome(firstNonEmpty(dir, nx.cfg.Export.Dir))

	cfg := export.Config{
		Source:          nx.history,
		Dir:             dir,
		Format:          format,
		RatePerSecond:   nx.cfg.Export.RatePerSecond,
		IncludeArchived: archived,
		Metrics:         nx.metrics,
	}
	if upload {
		if nx.cfg.Export.GCSBucket == "" {
			return fmt.Errorf("%w: --upload needs export.gcs_bucket in the config file", validation.ErrInvalid)
		}
		client, err := gcs.NewClient(cmd.Context(), nx.cfg.Export.GCSBucket, config.ExpandHome(nx.cfg.Export.GCSCredentials))
		if err != nil {
			return err
		}
		defer client.Close()
		client.Prefix = path.Join("transcripts", id.UserID)
		cfg.Uploader = client
	}
	exporter := export.New(cfg)

	if !all {
		file, err := exporter.ExportOne(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ux.Success(nx.tr.T("history.exported", 1, file))
		return nil
	}

	var sum *export.Summary
	err = ux.WithSpinner("Exporting conversations", func() error {
		var runErr error
		sum, runErr = exporter.ExportAll(cmd.Context())
		return runErr
	})
	if sum != nil && len(sum.Files) > 0 {
		ux.Success(nx.tr.T("history.exported", len(sum.Files), dir))
		if sum.Uploaded > 0 {
			ux.KeyValue("uploaded", fmt.Sprintf("%d to gs://%s", sum.Uploaded, nx.cfg.Export.GCSBucket))
		}
		if sum.Skipped > 0 {
			ux.KeyValue("archived skipped", fmt.Sprint(sum.Skipped))
		}
	}
	return err
}
