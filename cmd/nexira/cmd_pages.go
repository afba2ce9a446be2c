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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/spf13/cobra"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
	"github.com/NexiraAI/nexira/pkg/ux"
)

// knowledgeDoc is one entry of the knowledge base listing.
type knowledgeDoc struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	UpdatedAt   strfmt.DateTime `json:"updated_at,omitempty"`
}

// knowledgeList accepts a bare array or an object wrapping it in
// "documents" or "items".
type knowledgeList []knowledgeDoc

func (l *knowledgeList) UnmarshalJSON(data []byte) error {
	var docs []knowledgeDoc
	if err := json.Unmarshal(data, &docs); err == nil {
		*l = docs
		return nil
	}
	var wrapped struct {
		Documents []knowledgeDoc `json:"documents"`
		Items     []knowledgeDoc `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("decode knowledge list: %w", err)
	}
	if wrapped.Documents != nil {
		*l = wrapped.Documents
	} else {
		*l = wrapped.Items
	}
	return nil
}

// runKnowledge lists the knowledge base. A backend without the endpoint
// reads as an empty knowledge base.
func runKnowledge(cmd *cobra.Command, args []string) error {
	ux.Title(nx.tr.T("nav.knowledge"))

	var docs knowledgeList
	err := nx.api.Get(cmd.Context(), "/knowledge", &docs)
	if errors.Is(err, apiclient.ErrNotFound) {
		slog.Debug("knowledge endpoint not available")
		docs, err = nil, nil
	}
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		ux.Muted(nx.tr.T("knowledge.empty"))
		return nil
	}
	printKnowledge(cmd.OutOrStdout(), docs)
	return nil
}

func printKnowledge(w io.Writer, docs []knowledgeDoc) {
	machine := ux.GetPersonality().Level == ux.PersonalityMachine
	for _, d := range docs {
		updated := time.Time(d.UpdatedAt)
		if machine {
			stamp := ""
			if !updated.IsZero() {
				stamp = updated.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "DOCUMENT: %s\t%s\t%s\n", d.ID, d.Title, stamp)
			continue
		}
		line := fmt.Sprintf("%s %s", ux.IconBullet.Render(), ux.Styles.Subtitle.Render(d.Title))
		if !updated.IsZero() {
			line += "  " + ux.Styles.Muted.Render(ux.FormatRelativeTime(updated))
		}
		fmt.Fprintln(w, line)
		if d.Description != "" {
			fmt.Fprintln(w, "  "+ux.Styles.Muted.Render(ux.Truncate(d.Description, 96)))
		}
	}
}

// runHome prints the landing page. The first visit also prints the getting
// started steps and marks onboarding as done.
func runHome(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	id := nx.session.Identity()

	ux.Title("Nexira AI")
	ux.Info(nx.tr.T("help.intro"))
	if id.LoggedIn() {
		ux.KeyValue("signed in as", id.DisplayName())
	} else {
		ux.Warning(nx.tr.T("auth.not_logged_in"))
	}

	if nx.session.Get(session.KeyOnboardingComplete) != "true" {
		ux.Box("Getting started", strings.Join([]string{
			"1. nexira login",
			"2. nexira marketplace",
			"3. nexira chat",
		}, "\n"))
		if err := nx.session.Set(session.KeyOnboardingComplete, "true"); err != nil {
			slog.Warn("failed to record onboarding", "error", err)
		}
	}

	if ux.GetPersonality().Level != ux.PersonalityMachine {
		fmt.Fprintln(out)
	}
	printRoutes(out)
	return nil
}

// runHelpPage prints the intro, the pages reachable with `nexira open`, and
// the command usage.
func runHelpPage(cmd *cobra.Command, args []string) error {
	ux.Title(nx.tr.T("nav.help"))
	ux.Info(nx.tr.T("help.intro"))
	printRoutes(cmd.OutOrStdout())
	if ux.GetPersonality().Level == ux.PersonalityMachine {
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return cmd.Root().Usage()
}
