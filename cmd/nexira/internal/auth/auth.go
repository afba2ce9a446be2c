// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth turns a login into a session.Identity.
//
// Three providers exist: Google (OAuth2 authorization code with PKCE and a
// local callback listener), a mock Google login used when no OAuth client
// is configured, and plain email login. The backend only ever sees the
// resulting pseudo-identity headers; OAuth tokens live in locked memory for
// the duration of the login and are destroyed afterwards.
package auth

import (
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/session"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// Provider names stored in nexira_login_provider.
const (
	ProviderGoogle = "google"
	ProviderEmail  = "email"
	ProviderMock   = "mock"
)

// mockNamespace seeds the deterministic ids of mock users.
var mockNamespace = uuid.MustParse("6f1c1a4e-3b0e-4c55-9d0f-6e7a1b9c2d10")

// MockGoogle returns the identity used when Google sign-in is not
// configured. The same email always yields the same user id.
func MockGoogle(email string) (session.Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return session.Identity{}, err
	}
	return session.Identity{
		UserID:   "mock_" + uuid.NewSHA1(mockNamespace, []byte(email)).String(),
		Email:    email,
		Name:     nameFromEmail(email),
		Provider: ProviderMock,
	}, nil
}

// EmailLogin returns an identity keyed by the email address. name may be
// empty, in which case one is derived from the address.
func EmailLogin(email, name string) (session.Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return session.Identity{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = nameFromEmail(email)
	}
	return session.Identity{
		UserID:   email,
		Email:    email,
		Name:     name,
		Provider: ProviderEmail,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strfmt.IsEmail(email) {
		return "", &validation.Error{
			Subject: "login",
			Fields: []validation.FieldError{{
				Field:   "email",
				Rule:    "email",
				Message: fmt.Sprintf("%q is not a valid email address", email),
			}},
		}
	}
	return email, nil
}

// nameFromEmail turns "lan.nguyen@x" into "Lan Nguyen".
func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	local = strings.NewReplacer(".", " ", "_", " ", "-", " ", "+", " ").Replace(local)
	return cases.Title(language.Und).String(strings.Join(strings.Fields(local), " "))
}
