// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global NexiraConfig
	once   sync.Once
)

// DefaultPath is ~/.nexira/nexira.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".nexira", "nexira.yaml"), nil
}

// Load ensures the config is loaded into the Global variable. An empty path
// means DefaultPath. Environment overrides are applied after the file.
func Load(path string) error {
	var err error
	once.Do(func() {
		if path == "" {
			path, err = DefaultPath()
			if err != nil {
				return
			}
		}
		var cfg NexiraConfig
		cfg, err = LoadFrom(path)
		if err != nil {
			return
		}
		cfg.ApplyEnv(os.Getenv)
		if err = cfg.Validate(); err != nil {
			return
		}
		Global = cfg
	})
	return err
}

// LoadFrom reads a config file, creating it with defaults if it is missing.
// Fields absent from the file keep their default values.
func LoadFrom(path string) (NexiraConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Info("First run detected, creating the config", "path", path)
		if err := createDefault(path); err != nil {
			return NexiraConfig{}, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return NexiraConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return NexiraConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, replacing any existing file.
func Save(path string, cfg NexiraConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal the config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write the config: %w", err)
	}
	return os.Rename(tmp, path)
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	defaultCfg := DefaultConfig()
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// envOverride maps one config field to its environment names, first match wins.
type envOverride struct {
	names []string
	apply func(c *NexiraConfig, v string)
}

var envOverrides = []envOverride{
	{[]string{"NEXIRA_API_URL", "VITE_API_URL"}, func(c *NexiraConfig, v string) { c.API.URL = v }},
	{[]string{"NEXIRA_API_BASE_URL", "VITE_API_BASE_URL"}, func(c *NexiraConfig, v string) { c.API.BaseURL = v }},
	{[]string{"NEXIRA_GOOGLE_CLIENT_ID", "VITE_GOOGLE_CLIENT_ID"}, func(c *NexiraConfig, v string) { c.Auth.GoogleClientID = v }},
	{[]string{"NEXIRA_GOOGLE_OAUTH_CLIENT_ID", "VITE_GOOGLE_OAUTH_CLIENT_ID"}, func(c *NexiraConfig, v string) { c.Auth.GoogleOAuthClientID = v }},
	{[]string{"NEXIRA_GOOGLE_CLIENT_SECRET"}, func(c *NexiraConfig, v string) { c.Auth.GoogleClientSecret = v }},
	{[]string{"NEXIRA_GOOGLE_REDIRECT_URI", "VITE_GOOGLE_REDIRECT_URI"}, func(c *NexiraConfig, v string) { c.Auth.RedirectURI = v }},
	{[]string{"NEXIRA_LANGUAGE"}, func(c *NexiraConfig, v string) { c.UI.Language = v }},
	{[]string{"NEXIRA_THEME"}, func(c *NexiraConfig, v string) { c.UI.Theme = v }},
	{[]string{"NEXIRA_LOG_LEVEL"}, func(c *NexiraConfig, v string) { c.Logging.Level = v }},
	{[]string{"NEXIRA_GCS_BUCKET"}, func(c *NexiraConfig, v string) { c.Export.GCSBucket = v }},
	{[]string{"NEXIRA_REQUEST_TIMEOUT"}, func(c *NexiraConfig, v string) {
		if d, ok := parseDuration(v); ok {
			c.API.RequestTimeout = d
		}
	}},
	{[]string{"NEXIRA_STREAM_IDLE_TIMEOUT"}, func(c *NexiraConfig, v string) {
		if d, ok := parseDuration(v); ok {
			c.API.StreamIdleTimeout = d
		}
	}},
}

// ApplyEnv overlays environment variables onto c. getenv is os.Getenv
// outside of tests.
func (c *NexiraConfig) ApplyEnv(getenv func(string) string) {
	for _, o := range envOverrides {
		for _, name := range o.names {
			if v := getenv(name); v != "" {
				o.apply(c, v)
				break
			}
		}
	}
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(v string) (time.Duration, bool) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, true
	}
	slog.Warn("ignoring unparsable duration override", "value", v)
	return 0, false
}
