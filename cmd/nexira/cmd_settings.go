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
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NexiraAI/nexira/cmd/nexira/config"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/i18n"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// settingKeys lists what `settings set` accepts, in display order.
var settingKeys = []string{"language", "theme", "provider", "model", "personality"}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	ux.Title(nx.tr.T("nav.settings"))

	onboarded := nx.session.Get(session.KeyOnboardingComplete) == "true"
	ux.KeyValue("language", fmt.Sprintf("%s (%s)", nx.lang, nx.lang.Name()))
	ux.KeyValue("theme", firstNonEmpty(nx.session.Get(session.KeyTheme), nx.cfg.UI.Theme))
	ux.KeyValue("provider", firstNonEmpty(nx.session.Get(session.KeySelectedProvider), "default"))
	ux.KeyValue("model", firstNonEmpty(nx.session.Get(session.KeySelectedModel), "default"))
	ux.KeyValue("personality", string(ux.GetPersonality().Level))
	ux.KeyValue("onboarded", fmt.Sprint(onboarded))

	if ux.GetPersonality().Level != ux.PersonalityMachine {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	ux.KeyValue("api", nx.cfg.API.URL)
	ux.KeyValue("session file", nx.session.Path())
	if nx.cfg.Cache.Enabled {
		ux.KeyValue("offline cache", nx.cfg.Cache.Dir)
	} else {
		ux.KeyValue("offline cache", "disabled")
	}
	ux.KeyValue("export dir", nx.cfg.Export.Dir)
	if nx.cfg.Export.GCSBucket != "" {
		ux.KeyValue("export bucket", "gs://"+nx.cfg.Export.GCSBucket)
	}
	return nil
}

// runSettingsSet changes one preference.
//
// # Description
//
// language, theme, provider and model live in the session file and are seen
// by other running Nexira processes. personality lives in the config file.
// An empty value resets a session preference to its default.
func runSettingsSet(cmd *cobra.Command, args []string) error {
	key, value := strings.ToLower(args[0]), strings.TrimSpace(args[1])

	switch key {
	case "language":
		if value != "" && !i18n.Language(value).Valid() {
			return fmt.Errorf("%w: language must be en, vi or es", validation.ErrInvalid)
		}
		return saveSetting(session.KeyLanguage, value)

	case "theme":
		switch value {
		case "", i18n.ThemeLight, i18n.ThemeDark, i18n.ThemeAuto:
		default:
			return fmt.Errorf("%w: theme must be light, dark or auto", validation.ErrInvalid)
		}
		return saveSetting(session.KeyTheme, value)

	case "provider":
		return saveSetting(session.KeySelectedProvider, value)

	case "model":
		return saveSetting(session.KeySelectedModel, value)

	case "personality":
		if !ux.IsValidPersonalityLevel(value) {
			return fmt.Errorf("%w: personality must be full, standard, minimal or machine", validation.ErrInvalid)
		}
		return savePersonality(value)
	}
	return fmt.Errorf("%w: unknown setting %q, expected one of %s",
		validation.ErrInvalid, key, strings.Join(settingKeys, ", "))
}

func saveSetting(key, value string) error {
	if err := nx.session.SetMany(map[string]string{key: value}); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	slog.Debug("setting saved", "key", key, "value", value)
	ux.Success(nx.tr.T("settings.saved"))
	return nil
}

// savePersonality rewrites the config file without the environment
// overrides that config.Global carries.
func savePersonality(level string) error {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	cfg.UI.Personality = strings.ToLower(level)
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	ux.Success(nx.tr.T("settings.saved"))
	return nil
}
