// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/i18n"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/streaming"
	"github.com/NexiraAI/nexira/pkg/validation"
)

func TestCommandTree(t *testing.T) {
	paths := [][]string{
		{"chat"},
		{"history", "list"}, {"history", "show"}, {"history", "delete"}, {"history", "search"},
		{"history", "rename"}, {"history", "suggest-title"}, {"history", "archive"}, {"history", "export"},
		{"agents", "list"}, {"agents", "run"}, {"marketplace"},
		{"tickets", "list"}, {"tickets", "all"}, {"tickets", "show"}, {"tickets", "create"},
		{"tickets", "respond"}, {"tickets", "assign"}, {"tickets", "status"}, {"tickets", "download"},
		{"login"}, {"logout"}, {"whoami"},
		{"settings", "show"}, {"settings", "set"},
		{"knowledge"}, {"home"}, {"open"},
	}
	for _, p := range paths {
		t.Run(fmt.Sprint(p), func(t *testing.T) {
			cmd, rest, err := rootCmd.Find(p)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, p[len(p)-1], cmd.Name())
			assert.NotNil(t, cmd.RunE, "%v has no RunE", p)
		})
	}
}

func TestCommandFlags_Documented(t *testing.T) {
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.LocalFlags().VisitAll(func(f *pflag.Flag) {
			assert.NotEmpty(t, f.Usage, "flag --%s of %q has no usage", f.Name, c.CommandPath())
		})
		for _, child := range c.Commands() {
			walk(child)
		}
	}
	walk(rootCmd)
}

func TestCommandFlags_Defaults(t *testing.T) {
	tests := []struct {
		path []string
		flag string
		want string
	}{
		{[]string{"history", "list"}, "limit", "20"},
		{[]string{"history", "export"}, "format", "markdown"},
		{[]string{"tickets", "create"}, "priority", "medium"},
		{[]string{"tickets", "create"}, "category", "general"},
		{[]string{"open"}, "prompt", ""},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			cmd, _, err := rootCmd.Find(tt.path)
			require.NoError(t, err)
			f := cmd.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.DefValue)
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain failure", errors.New("boom"), exitFailure},
		{"invalid input", fmt.Errorf("%w: bad flag", validation.ErrInvalid), exitUsage},
		{"not logged in", fmt.Errorf("chat: %w", session.ErrNotLoggedIn), exitUnauthorized},
		{"backend rejected", &apiclient.APIError{StatusCode: 401}, exitUnauthorized},
		{"interrupted", context.Canceled, exitInterrupted},
		{"stream cancelled", fmt.Errorf("send: %w", streaming.ErrCancelled), exitInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestResolveLanguage(t *testing.T) {
	lang, err := resolveLanguage("", "vi", "en")
	require.NoError(t, err)
	assert.Equal(t, i18n.Vietnamese, lang)

	lang, err = resolveLanguage("", "de", "es")
	require.NoError(t, err)
	assert.Equal(t, i18n.Spanish, lang, "invalid stored values are skipped")

	_, err = resolveLanguage("de", "vi")
	assert.True(t, errors.Is(err, validation.ErrInvalid), "an invalid flag is an error")
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Empty(t, firstNonEmpty("", ""))
}
