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
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/auth"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// runLogin signs the user in.
//
// # Description
//
// --email signs in with an email account. Otherwise Google is used when an
// OAuth client id is configured; without one (or with --mock) a local
// account is derived from an email address so the rest of the app works.
func runLogin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	mock, _ := cmd.Flags().GetBool("mock")
	noBrowser, _ := cmd.Flags().GetBool("no-browser")

	var (
		id  session.Identity
		err error
	)
	switch {
	case email != "" && !mock:
		id, err = auth.EmailLogin(email, name)

	case mock || nx.cfg.Auth.OAuthClientID() == "":
		if !mock {
			ux.Warning(nx.tr.T("auth.mock"))
		}
		if email == "" {
			if email, err = askEmail(); err != nil {
				return err
			}
		}
		id, err = auth.MockGoogle(email)

	default:
		id, err = googleLogin(cmd.Context(), !noBrowser)
	}
	if err != nil {
		return err
	}

	if err := nx.session.Login(id); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	slog.Info("signed in", "user_id", id.UserID, "provider", id.Provider)
	ux.Success(nx.tr.T("auth.logged_in", id.DisplayName()))
	return nil
}

func askEmail() (string, error) {
	if !ux.IsInteractive() {
		return "", fmt.Errorf("%w: pass --email", validation.ErrInvalid)
	}
	var email string
	err := huh.NewInput().
		Title("Email").
		Value(&email).
		Validate(func(s string) error { return validation.Var("email", strings.TrimSpace(s), "required,email") }).
		WithTheme(huh.ThemeCharm()).
		Run()
	return email, err
}

func googleLogin(ctx context.Context, launch bool) (session.Identity, error) {
	g, err := auth.NewGoogle(auth.GoogleConfig{
		ClientID:     nx.cfg.Auth.OAuthClientID(),
		ClientSecret: nx.cfg.Auth.GoogleClientSecret,
		RedirectURL:  nx.cfg.Auth.RedirectURI,
		Open: func(authURL string) error {
			ux.Info(nx.tr.T("auth.open_browser"))
			ux.Info(authURL)
			if launch {
				if err := openBrowser(authURL); err != nil {
					slog.Debug("could not launch a browser", "error", err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return session.Identity{}, err
	}

	var id session.Identity
	err = ux.WithSpinner(nx.tr.T("auth.waiting"), func() error {
		var loginErr error
		id, loginErr = g.Login(ctx)
		return loginErr
	})
	return id, err
}

// openBrowser launches the platform URL handler.
func openBrowser(url string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", url)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.Command("xdg-open", url)
	}
	return c.Start()
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := nx.session.Logout(); err != nil {
		return err
	}
	ux.Success(nx.tr.T("auth.logged_out"))
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	id, err := nx.requireLogin()
	if err != nil {
		return err
	}
	ux.KeyValue("name", id.DisplayName())
	ux.KeyValue("email", id.Email)
	ux.KeyValue("user id", id.UserID)
	ux.KeyValue("provider", id.Provider)
	if id.AvatarURL != "" {
		ux.KeyValue("avatar", id.AvatarURL)
	}
	return nil
}
