// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
)

func TestKnowledgeList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  []string
		isErr bool
	}{
		{"bare array", `[{"id":"k1","title":"Onboarding"}]`, []string{"Onboarding"}, false},
		{"documents wrapper", `{"documents":[{"id":"k1","title":"A"},{"id":"k2","title":"B"}]}`, []string{"A", "B"}, false},
		{"items wrapper", `{"items":[{"id":"k3","title":"C"}]}`, []string{"C"}, false},
		{"empty object", `{}`, nil, false},
		{"not a list", `"nope"`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l knowledgeList
			err := json.Unmarshal([]byte(tt.body), &l)
			if tt.isErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			var titles []string
			for _, d := range l {
				titles = append(titles, d.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestRunKnowledge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/knowledge", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"k1","title":"Refund policy","updated_at":"2025-03-01T10:00:00Z"},{"id":"k2","title":"Drafts"}]`))
	}))
	defer srv.Close()
	newTestApp(t, srv)

	var out bytes.Buffer
	require.NoError(t, runKnowledge(testCommand(&out), nil))

	got := out.String()
	assert.Contains(t, got, "DOCUMENT: k1\tRefund policy\t2025-03-01T10:00:00Z\n")
	assert.Contains(t, got, "DOCUMENT: k2\tDrafts\t\n")
}

func TestRunKnowledge_MissingEndpointIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	newTestApp(t, srv)

	var out bytes.Buffer
	require.NoError(t, runKnowledge(testCommand(&out), nil))
	assert.NotContains(t, out.String(), "DOCUMENT:")
}

func TestRunKnowledge_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"index offline"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()
	newTestApp(t, srv)

	var out bytes.Buffer
	err := runKnowledge(testCommand(&out), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index offline")
}

func TestRunHome_OnboardsOnce(t *testing.T) {
	uxOut := newTestApp(t, nil)
	signIn(t)

	var out bytes.Buffer
	require.NoError(t, runHome(testCommand(&out), nil))
	assert.Contains(t, uxOut.String(), "Getting started")
	assert.Contains(t, uxOut.String(), "SIGNED_IN_AS: Ada")
	assert.Equal(t, "true", nx.session.Get(session.KeyOnboardingComplete))
	assert.Contains(t, out.String(), "ROUTE: /home\ttrue")

	uxOut.Reset()
	require.NoError(t, runHome(testCommand(&out), nil))
	assert.NotContains(t, uxOut.String(), "Getting started")
}

func TestRunHome_SignedOut(t *testing.T) {
	uxOut := newTestApp(t, nil)

	var out bytes.Buffer
	require.NoError(t, runHome(testCommand(&out), nil))
	assert.True(t, strings.Contains(uxOut.String(), "WARN: "))
}
