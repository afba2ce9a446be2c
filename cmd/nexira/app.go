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
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/NexiraAI/nexira/cmd/nexira/config"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/agents"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/cache"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/i18n"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/streaming"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/telemetry"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/tickets"
	"github.com/NexiraAI/nexira/pkg/logging"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// app is everything a command needs, built once per process in
// PersistentPreRunE.
type app struct {
	cfg     config.NexiraConfig
	logger  *logging.Logger
	metrics *telemetry.Metrics
	session *session.Store
	tr      *i18n.Translator
	lang    i18n.Language

	api       *apiclient.Client
	streamAPI *apiclient.Client
	history   *history.Client
	lister    *history.Lister
	streaming *streaming.Service
	tickets   *tickets.Client
	agents    *agents.Runner

	// cache is nil when disabled or held by another process.
	cache *cache.Store

	shutdownTracing func(context.Context) error
}

var nx *app

// setup builds nx from the config file, the session file and the global
// flags. Flags beat the session, which beats the config file.
func setup(cmd *cobra.Command) error {
	if err := config.Load(configPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := config.Global
	if traceExporter != "" {
		cfg.Telemetry.TraceExporter = traceExporter
	}
	if metricsFile != "" {
		cfg.Telemetry.MetricsFile = metricsFile
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	parsed, ok := logging.ParseLevel(level)
	if !ok {
		return fmt.Errorf("%w: unknown log level %q", validation.ErrInvalid, level)
	}
	logger := logging.New(logging.Config{
		Level:   parsed,
		LogDir:  cfg.Logging.Dir,
		Service: "nexira",
		JSON:    cfg.Logging.JSON || logJSON,
		Writer:  cmd.ErrOrStderr(),
	})
	logger.SetDefault()

	if personalityFlag != "" {
		if !ux.IsValidPersonalityLevel(personalityFlag) {
			return fmt.Errorf("%w: personality must be full, standard, minimal or machine", validation.ErrInvalid)
		}
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityFlag))
	} else {
		ux.InitPersonality(cfg.UI.Personality)
	}
	ux.Out = cmd.OutOrStdout()
	ux.ErrOut = cmd.ErrOrStderr()

	shutdown, err := telemetry.InitTracing(cmd.Context(), telemetry.TracingConfig{
		ServiceName:    "nexira-cli",
		ServiceVersion: version,
		Exporter:       cfg.Telemetry.TraceExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	store, err := session.Open(config.ExpandHome(cfg.Session.Path))
	if err != nil {
		_ = shutdown(context.Background())
		return fmt.Errorf("open session: %w", err)
	}

	lang, err := resolveLanguage(languageFlag, store.Get(session.KeyLanguage), cfg.UI.Language)
	if err != nil {
		_ = shutdown(context.Background())
		return err
	}
	theme := firstNonEmpty(themeFlag, store.Get(session.KeyTheme), cfg.UI.Theme)
	ux.ApplyTheme(i18n.ResolveTheme(theme, nil))

	metrics := telemetry.NewMetrics()
	api := apiclient.New(apiclient.Config{
		BaseURL:  cfg.API.URL,
		Timeout:  cfg.API.RequestTimeout,
		Identity: store.HeaderIdentity,
		Metrics:  metrics,
	})
	streamAPI := apiclient.New(apiclient.Config{
		BaseURL:  cfg.API.StreamURL(),
		Timeout:  cfg.API.RequestTimeout,
		Identity: store.HeaderIdentity,
		Metrics:  metrics,
	})
	streamer := streaming.NewService(streaming.Config{Client: streamAPI, IdleTimeout: cfg.API.StreamIdleTimeout})

	a := &app{
		cfg:             cfg,
		logger:          logger,
		metrics:         metrics,
		session:         store,
		tr:              i18n.New(lang),
		lang:            lang,
		api:             api,
		streamAPI:       streamAPI,
		history:         history.NewClient(api),
		streaming:       streamer,
		tickets:         tickets.NewClient(api),
		agents:          &agents.Runner{Streamer: streamer, REST: api, Language: string(lang)},
		shutdownTracing: shutdown,
	}
	a.lister = history.NewLister(a.history.GetConversations)
	a.lister.OnLoad = a.refreshCache

	if cfg.Cache.Enabled {
		c, err := cache.Open(cache.Config{Dir: config.ExpandHome(cfg.Cache.Dir), Logger: slog.Default()})
		if err != nil {
			slog.Warn("offline cache unavailable", "error", err)
		} else {
			a.cache = c
		}
	}

	nx = a
	slog.Debug("nexira ready", "api", cfg.API.URL, "language", lang, "theme", theme)
	return nil
}

// close flushes telemetry and releases files. Safe to call more than once.
func (a *app) close() {
	if a.cfg.Telemetry.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(config.ExpandHome(a.cfg.Telemetry.MetricsFile)); err != nil {
			slog.Warn("failed to write metrics", "error", err)
		}
		a.cfg.Telemetry.MetricsFile = ""
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTracing(ctx); err != nil {
			slog.Debug("tracing shutdown", "error", err)
		}
		cancel()
		a.shutdownTracing = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("failed to close cache", "error", err)
		}
		a.cache = nil
	}
	if a.logger != nil {
		_ = a.logger.Close()
		a.logger = nil
	}
}

// refreshCache stores a freshly listed page for the offline view.
func (a *app) refreshCache(_ context.Context, convs []history.Conversation) {
	if a.cache == nil {
		return
	}
	id := a.session.Identity()
	if !id.LoggedIn() {
		return
	}
	if err := a.cache.PutList(id.UserID, convs); err != nil {
		slog.Warn("failed to refresh offline cache", "error", err)
	}
}

// requireLogin returns the signed-in identity or a hint to log in.
func (a *app) requireLogin() (session.Identity, error) {
	id, err := a.session.RequireIdentity()
	if err != nil {
		return id, fmt.Errorf("%w: %s", err, a.tr.T("auth.not_logged_in"))
	}
	return id, nil
}

func resolveLanguage(candidates ...string) (i18n.Language, error) {
	for i, c := range candidates {
		if c == "" {
			continue
		}
		lang := i18n.Language(c)
		if !lang.Valid() {
			if i == 0 {
				return "", fmt.Errorf("%w: language must be en, vi or es", validation.ErrInvalid)
			}
			continue
		}
		return lang, nil
	}
	return i18n.FromEnv(os.Getenv), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// ERRORS
// =============================================================================

const (
	exitFailure      = 1
	exitUsage        = 2
	exitUnauthorized = 3
	exitInterrupted  = 130
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, streaming.ErrCancelled):
		return exitInterrupted
	case errors.Is(err, validation.ErrInvalid):
		return exitUsage
	case errors.Is(err, session.ErrNotLoggedIn), errors.Is(err, apiclient.ErrUnauthorized):
		return exitUnauthorized
	}
	return exitFailure
}

// shownError is an error a stream renderer already put in front of the
// user. It still decides the exit code.
type shownError struct{ error }

func (e shownError) Unwrap() error { return e.error }

// markShown wraps err when a renderer produced result, since every failure
// after the request was sent has gone through OnError.
func markShown(result *ux.StreamResult, err error) error {
	if err == nil || result == nil || errors.Is(err, streaming.ErrCancelled) {
		return err
	}
	return shownError{err}
}

func reportError(err error) {
	var shown shownError
	if errors.Is(err, context.Canceled) || errors.As(err, &shown) {
		return
	}
	ux.Error(err.Error())
}
