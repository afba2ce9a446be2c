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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NexiraAI/nexira/pkg/validation"
)

// CurrentConfigVersion is written to new config files.
const CurrentConfigVersion = "1"

type NexiraConfig struct {
	Meta MetaConfig `yaml:"meta"`

	// API: where the backend lives and how long to wait for it
	API APIConfig `yaml:"api"`

	// Auth: Google OAuth client settings (mock login when empty)
	Auth AuthConfig `yaml:"auth"`

	// UI: personality, language and theme defaults
	UI UIConfig `yaml:"ui"`

	// Session: location of the session file
	Session SessionConfig `yaml:"session"`

	// Cache: offline conversation cache
	Cache CacheConfig `yaml:"cache"`

	// Export: transcript export destination and pacing
	Export ExportConfig `yaml:"export"`

	// Telemetry: tracing and metrics output
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging: level, directory and format
	Logging LoggingConfig `yaml:"logging"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type APIConfig struct {
	// URL is the REST root (VITE_API_URL), e.g. http://localhost:8000
	URL string `yaml:"url" validate:"required,http_url"`

	// BaseURL is the streaming/tool root (VITE_API_BASE_URL). Empty means URL.
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,http_url"`

	// RequestTimeout bounds every non-streaming REST call.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0s"`

	// StreamIdleTimeout bounds the gap between two SSE records.
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout" validate:"gte=0s"`
}

// StreamURL is the root used for SSE and tool endpoints.
func (a APIConfig) StreamURL() string {
	if a.BaseURL != "" {
		return a.BaseURL
	}
	return a.URL
}

type AuthConfig struct {
	// GoogleClientID is the identity client (VITE_GOOGLE_CLIENT_ID).
	GoogleClientID string `yaml:"google_client_id,omitempty"`

	// GoogleOAuthClientID is the OAuth code-flow client (VITE_GOOGLE_OAUTH_CLIENT_ID).
	GoogleOAuthClientID string `yaml:"google_oauth_client_id,omitempty"`

	// GoogleClientSecret is optional with PKCE.
	GoogleClientSecret string `yaml:"google_client_secret,omitempty"`

	// RedirectURI must point at the local callback listener.
	RedirectURI string `yaml:"redirect_uri" validate:"required,http_url"`
}

// OAuthClientID returns the client id used for the code flow.
func (a AuthConfig) OAuthClientID() string {
	if a.GoogleOAuthClientID != "" {
		return a.GoogleOAuthClientID
	}
	return a.GoogleClientID
}

type UIConfig struct {
	Personality string `yaml:"personality,omitempty" validate:"omitempty,oneof=full standard minimal machine"`
	Language    string `yaml:"language" validate:"oneof=en vi es"`
	Theme       string `yaml:"theme" validate:"oneof=light dark auto"`
}

type SessionConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir" validate:"required_if=Enabled true"`
}

type ExportConfig struct {
	Dir            string  `yaml:"dir" validate:"required"`
	GCSBucket      string  `yaml:"gcs_bucket,omitempty"`
	GCSCredentials string  `yaml:"gcs_credentials,omitempty"`
	RatePerSecond  float64 `yaml:"rate_per_second" validate:"gte=0"`
}

type TelemetryConfig struct {
	// TraceExporter is one of none, stdout, otlp.
	TraceExporter string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint  string `yaml:"otlp_endpoint,omitempty"`

	// MetricsFile, when set, receives a Prometheus text dump on exit.
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// Validate checks every section.
func (c *NexiraConfig) Validate() error {
	return validation.Struct("config", c)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func DefaultConfig() NexiraConfig {
	return NexiraConfig{
		Meta: MetaConfig{Version: CurrentConfigVersion},
		API: APIConfig{
			URL:               "http://localhost:8000",
			RequestTimeout:    60 * time.Second,
			StreamIdleTimeout: 2 * time.Minute,
		},
		Auth: AuthConfig{
			RedirectURI: "http://127.0.0.1:8765/auth/callback",
		},
		UI: UIConfig{
			Language: "en",
			Theme:    "auto",
		},
		Session: SessionConfig{
			Path: "~/.nexira/session.yaml",
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "~/.nexira/cache",
		},
		Export: ExportConfig{
			Dir:           "~/.nexira/exports",
			RatePerSecond: 5,
		},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
			OTLPEndpoint:  "localhost:4317",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.nexira/logs",
		},
	}
}
