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
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/oauth2"
)

// errNoIDToken is returned when the token response carried no id_token.
var errNoIDToken = errors.New("token response has no id_token")

// sealedToken keeps the OAuth tokens encrypted in memguard enclaves. Each
// token is decrypted into a locked buffer only for the duration of a call.
type sealedToken struct {
	mu        sync.Mutex
	access    *memguard.Enclave
	idToken   *memguard.Enclave
	destroyed bool
}

// sealToken moves the token strings into enclaves and blanks them on the
// oauth2.Token.
func sealToken(t *oauth2.Token) *sealedToken {
	s := &sealedToken{}
	if t.AccessToken != "" {
		s.access = memguard.NewEnclave([]byte(t.AccessToken))
		t.AccessToken = ""
	}
	if raw, ok := t.Extra("id_token").(string); ok && raw != "" {
		s.idToken = memguard.NewEnclave([]byte(raw))
	}
	t.RefreshToken = ""
	return s
}

func (s *sealedToken) withAccessToken(fn func([]byte)) error {
	return s.open(s.access, "access token", func(b []byte) error {
		fn(b)
		return nil
	})
}

func (s *sealedToken) withIDToken(fn func([]byte) error) error {
	if s.idToken == nil {
		return errNoIDToken
	}
	return s.open(s.idToken, "id_token", fn)
}

func (s *sealedToken) open(e *memguard.Enclave, what string, fn func([]byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || e == nil {
		return fmt.Errorf("%s not available", what)
	}
	buf, err := e.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", what, err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// destroy drops the enclaves. memguard wipes the ciphertext when they are
// collected, and the key when memguard.Purge runs at exit.
func (s *sealedToken) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = nil
	s.idToken = nil
	s.destroyed = true
}
