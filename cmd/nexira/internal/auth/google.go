// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
)

const (
	// UserInfoURL is Google's profile endpoint.
	UserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	// DefaultLoginTimeout bounds the wait for the browser redirect.
	DefaultLoginTimeout = 5 * time.Minute

	httpClientTimeout = 30 * time.Second
)

// ErrNotConfigured is returned by NewGoogle without a client id. Callers
// fall back to MockGoogle.
var ErrNotConfigured = errors.New("google sign-in is not configured")

// GoogleConfig holds the OAuth client settings.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string

	// RedirectURL must be an http URL on a loopback address. Port 0 picks a
	// free port.
	RedirectURL string

	// Endpoint defaults to google.Endpoint.
	Endpoint oauth2.Endpoint

	// UserInfoURL defaults to UserInfoURL.
	UserInfoURL string

	// HTTPClient is used for the token exchange and the profile fetch.
	HTTPClient *http.Client

	// Timeout defaults to DefaultLoginTimeout.
	Timeout time.Duration

	// Open is handed the consent URL; typically it prints it and tries to
	// launch a browser.
	Open func(authURL string) error
}

// Google runs the authorization code flow with PKCE.
type Google struct {
	cfg  GoogleConfig
	http *http.Client
}

func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.ClientID == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = UserInfoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLoginTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: httpClientTimeout}
	}
	return &Google{cfg: cfg, http: client}, nil
}

// Login runs one sign-in.
//
// # Description
//
// A callback listener is started on the redirect address, the consent URL
// (carrying a random state and the PKCE challenge) is handed to Open, and
// the first callback with the matching state completes the flow. The code
// is exchanged for tokens, which are sealed in memguard enclaves; the
// profile comes from the userinfo endpoint, or from the id_token claims
// when that call fails.
//
// # Outputs
//
//   - session.Identity: provider "google", user id "google_<sub>"
//   - error: ErrConsentDenied, a timeout, or an exchange or profile error.
//     Callbacks with a foreign state are answered with ErrStateMismatch and
//     otherwise ignored.
func (g *Google) Login(ctx context.Context) (session.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	state := uuid.NewString()
	listener, err := listenCallback(g.cfg.RedirectURL, state)
	if err != nil {
		return session.Identity{}, err
	}
	defer listener.close()

	oauthCfg := &oauth2.Config{
		ClientID:     g.cfg.ClientID,
		ClientSecret: g.cfg.ClientSecret,
		RedirectURL:  listener.redirectURL,
		Endpoint:     g.cfg.Endpoint,
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
	}
	verifier := oauth2.GenerateVerifier()
	authURL := oauthCfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	if g.cfg.Open != nil {
		if err := g.cfg.Open(authURL); err != nil {
			slog.Warn("failed to open browser", "error", err)
		}
	}

	code, err := listener.wait(ctx)
	if err != nil {
		return session.Identity{}, err
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, g.http)
	token, err := oauthCfg.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return session.Identity{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	secrets := sealToken(token)
	defer secrets.destroy()

	profile, err := g.userInfo(ctx, secrets)
	if err != nil {
		slog.Warn("userinfo failed, using id_token claims", "error", err)
		var claimsErr error
		profile, claimsErr = profileFromIDToken(secrets)
		if claimsErr != nil {
			return session.Identity{}, fmt.Errorf("google profile: %w", errors.Join(err, claimsErr))
		}
	}
	return profile.identity()
}

// =============================================================================
// PROFILE
// =============================================================================

type googleProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (p googleProfile) identity() (session.Identity, error) {
	if p.ID == "" {
		return session.Identity{}, fmt.Errorf("google profile has no subject")
	}
	return session.Identity{
		UserID:    "google_" + p.ID,
		Email:     p.Email,
		Name:      p.Name,
		Provider:  ProviderGoogle,
		AvatarURL: p.Picture,
	}, nil
}

func (g *Google) userInfo(ctx context.Context, secrets *sealedToken) (googleProfile, error) {
	var profile googleProfile
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.UserInfoURL, nil)
	if err != nil {
		return profile, fmt.Errorf("build userinfo request: %w", err)
	}
	if err := secrets.withAccessToken(func(token []byte) {
		req.Header.Set("Authorization", "Bearer "+string(token))
	}); err != nil {
		return profile, err
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return profile, fmt.Errorf("get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return profile, fmt.Errorf("get user info: status %d, body: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return profile, fmt.Errorf("decode user info: %w", err)
	}
	return profile, nil
}

// googleClaims is the subset of the id_token the client reads.
type googleClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// profileFromIDToken reads the id_token without checking its signature; it
// was received directly from the token endpoint over TLS.
func profileFromIDToken(secrets *sealedToken) (googleProfile, error) {
	var profile googleProfile
	err := secrets.withIDToken(func(raw []byte) error {
		var claims googleClaims
		if _, _, err := jwt.NewParser().ParseUnverified(string(raw), &claims); err != nil {
			return fmt.Errorf("parse id_token: %w", err)
		}
		profile = googleProfile{
			ID:      claims.Subject,
			Email:   claims.Email,
			Name:    claims.Name,
			Picture: claims.Picture,
		}
		return nil
	})
	return profile, err
}
