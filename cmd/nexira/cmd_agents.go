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
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/agents"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
)

func runMarketplace(cmd *cobra.Command, args []string) error {
	ux.Title(nx.tr.T("nav.marketplace"))
	printAgents(cmd.OutOrStdout(), agents.All())
	if ux.ShouldShowChrome() {
		ux.Muted("\nRun one with: nexira agents run <agent> -p \"...\"")
	}
	return nil
}

func printAgents(w io.Writer, list []agents.Agent) {
	machine := ux.GetPersonality().Level == ux.PersonalityMachine
	for _, a := range list {
		mode := "rest"
		if a.Streaming {
			mode = "streaming"
		}
		if machine {
			fmt.Fprintf(w, "AGENT: %s\t%s\t%s\t%s\n", a.Slug, a.Route(), mode, a.Title)
			continue
		}
		fmt.Fprintf(w, "%s %-10s %-24s %s\n", ux.IconBullet.Render(), a.Slug,
			ux.Styles.Subtitle.Render(a.Title), ux.Styles.Muted.Render(a.Description))
	}
}

// runAgent runs one agent with settings from --set, a form, or both.
//
// # Description
//
// Settings given with --set pre-fill the form. The form opens with --form,
// or when no prompt was given and the terminal is interactive. Without a
// terminal every required setting must come from --set or its default.
func runAgent(cmd *cobra.Command, args []string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	agent, ok := agents.Lookup(args[0])
	if !ok {
		return fmt.Errorf("%w: unknown agent %q, see `nexira agents list`", validation.ErrInvalid, args[0])
	}
	return runAgentPage(cmd, agent)
}

func runAgentPage(cmd *cobra.Command, agent agents.Agent) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	pairs, _ := cmd.Flags().GetStringArray("set")
	useForm, _ := cmd.Flags().GetBool("form")

	values, err := agents.ParseValues(pairs)
	if err != nil {
		return err
	}

	if useForm || (strings.TrimSpace(prompt) == "" && ux.IsInteractive()) {
		initial := make(map[string]string, len(values)+1)
		for k, v := range values {
			initial[k] = v
		}
		initial["prompt"] = prompt
		form, state := agents.NewForm(agent, initial)
		if err := form.RunWithContext(cmd.Context()); err != nil {
			return err
		}
		prompt = state.Prompt
		values = state.Values()
	}

	out := cmd.OutOrStdout()
	level := ux.GetPersonality().Level
	if level != ux.PersonalityMachine {
		ux.Title(agent.Title)
		ux.Muted(nx.tr.T("agents.running", agent.Title))
	}

	turnCtx, stop := interrupts.beginTurn(cmd.Context())
	defer stop()
	result, err := nx.agents.Run(turnCtx, agent, prompt, values, ux.NewTerminalStreamRenderer(out, level))
	return markShown(result, err)
}
