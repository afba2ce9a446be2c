// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexiraAI/nexira/cmd/nexira/config"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
	"github.com/NexiraAI/nexira/pkg/validation"
)

func TestRunSettingsSet_SessionPreferences(t *testing.T) {
	tests := []struct {
		key, value string
		sessionKey string
	}{
		{"language", "vi", session.KeyLanguage},
		{"LANGUAGE", "es", session.KeyLanguage},
		{"theme", "dark", session.KeyTheme},
		{"provider", "openai", session.KeySelectedProvider},
		{"model", "gpt-4o", session.KeySelectedModel},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			out := newTestApp(t, nil)
			var cmdOut bytes.Buffer

			require.NoError(t, runSettingsSet(testCommand(&cmdOut), []string{tt.key, tt.value}))
			assert.Equal(t, tt.value, nx.session.Get(tt.sessionKey))
			assert.Contains(t, out.String(), "OK: Settings saved")
		})
	}
}

func TestRunSettingsSet_EmptyValueResets(t *testing.T) {
	newTestApp(t, nil)
	var out bytes.Buffer
	cmd := testCommand(&out)

	require.NoError(t, runSettingsSet(cmd, []string{"model", "gpt-4o"}))
	require.NoError(t, runSettingsSet(cmd, []string{"model", ""}))
	assert.Empty(t, nx.session.Get(session.KeySelectedModel))
}

func TestRunSettingsSet_Invalid(t *testing.T) {
	tests := [][]string{
		{"language", "de"},
		{"theme", "neon"},
		{"personality", "chatty"},
		{"volume", "11"},
	}
	for _, args := range tests {
		t.Run(args[0]+"="+args[1], func(t *testing.T) {
			newTestApp(t, nil)
			var out bytes.Buffer

			err := runSettingsSet(testCommand(&out), args)
			require.Error(t, err)
			assert.True(t, errors.Is(err, validation.ErrInvalid), err)
		})
	}
}

func TestRunSettingsSet_PersonalityWritesConfig(t *testing.T) {
	newTestApp(t, nil)
	var out bytes.Buffer

	require.NoError(t, runSettingsSet(testCommand(&out), []string{"personality", "Minimal"}))

	cfg, err := config.LoadFrom(configPath)
	require.NoError(t, err)
	assert.Equal(t, "minimal", cfg.UI.Personality)
}

func TestRunSettingsShow(t *testing.T) {
	uxOut := newTestApp(t, nil)
	require.NoError(t, nx.session.Set(session.KeySelectedProvider, "anthropic"))

	var out bytes.Buffer
	require.NoError(t, runSettingsShow(testCommand(&out), nil))

	got := uxOut.String()
	assert.Contains(t, got, "LANGUAGE: en (English)")
	assert.Contains(t, got, "PROVIDER: anthropic")
	assert.Contains(t, got, "MODEL: default")
	assert.Contains(t, got, "PERSONALITY: machine")
	assert.Contains(t, got, "OFFLINE_CACHE: disabled")
}
