// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session owns the persisted nexira_* keys: who is logged in, the
// selected provider and model, language, theme, onboarding and the current
// conversation.
//
// Nothing else reads or writes the session file. Every mutation goes
// through SetMany, which validates the keys, writes the whole file
// atomically and then notifies subscribers. Other nexira processes sharing
// the file are picked up by Watch.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/apiclient"
	"github.com/NexiraAI/nexira/pkg/validation"
	"github.com/fsnotify/fsnotify"
	"github.com/go-openapi/strfmt"
	"gopkg.in/yaml.v3"
)

// Keys.
const (
	KeyUserID              = "nexira_user_id"
	KeyUserEmail           = "nexira_user_email"
	KeyUserName            = "nexira_user_name"
	KeyLoginProvider       = "nexira_login_provider"
	KeyAvatarURL           = "nexira_avatar_url"
	KeySelectedProvider    = "nexira_selected_provider"
	KeySelectedModel       = "nexira_selected_model"
	KeyLanguage            = "nexira_language"
	KeyTheme               = "nexira_theme"
	KeyOnboardingComplete  = "nexira_onboarding_complete"
	KeyCurrentConversation = "nexira_current_conversation"
)

// keyRules holds the validation tag for each known key. An empty rule
// accepts any value.
var keyRules = map[string]string{
	KeyUserID:              "",
	KeyUserEmail:           "",
	KeyUserName:            "",
	KeyLoginProvider:       "omitempty,oneof=google email mock",
	KeyAvatarURL:           "omitempty,http_url",
	KeySelectedProvider:    "",
	KeySelectedModel:       "",
	KeyLanguage:            "omitempty,oneof=en vi es",
	KeyTheme:               "omitempty,oneof=light dark auto",
	KeyOnboardingComplete:  "omitempty,boolean",
	KeyCurrentConversation: "omitempty,pathsafe",
}

// identityKeys are cleared on logout. Preferences survive.
var identityKeys = []string{
	KeyUserID,
	KeyUserEmail,
	KeyUserName,
	KeyLoginProvider,
	KeyAvatarURL,
	KeyCurrentConversation,
}

var (
	// ErrNotLoggedIn is returned by RequireIdentity when no user id is set.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrUnknownKey is returned when a key outside the nexira_* schema is set.
	ErrUnknownKey = errors.New("unknown session key")
)

// Keys returns every known key, sorted.
func Keys() []string {
	return slices.Sorted(maps.Keys(keyRules))
}

// =============================================================================
// CHANGES
// =============================================================================

// Source says where a change came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceExternal Source = "external"
)

// Change lists the keys whose values changed. Subscribers re-read what they
// need with Get.
type Change struct {
	Keys   []string
	Source Source
}

// subscriberBuffer bounds pending notifications per subscriber. A slow
// subscriber misses changes rather than blocking writers.
const subscriberBuffer = 16

// =============================================================================
// STORE
// =============================================================================

// Store is the process-wide session. Safe for concurrent use.
type Store struct {
	path string

	mu     sync.RWMutex
	values map[string]string

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int
}

// Open loads the session file at path, creating its directory if needed. A
// missing file is an empty session.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	values, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, values: values, subs: make(map[int]chan Change)}, nil
}

func (s *Store) Path() string { return s.path }

// Get returns the value for key, or "" when unset.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Snapshot returns a copy of every set key.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

func (s *Store) Set(key, value string) error {
	return s.SetMany(map[string]string{key: value})
}

// SetMany applies all updates or none. An empty value removes the key.
//
// # Description
//
// Every key and value is validated before anything is written. The new
// state is written to a temporary file and renamed over the session file,
// so a concurrent reader sees either the old or the new state, never a mix.
//
// # Outputs
//
//   - error: ErrUnknownKey or a validation error (nothing written), or the
//     write error (in-memory state unchanged)
func (s *Store) SetMany(updates map[string]string) error {
	for _, key := range slices.Sorted(maps.Keys(updates)) {
		if err := validateValue(key, updates[key]); err != nil {
			return err
		}
	}

	s.mu.Lock()
	next := maps.Clone(s.values)
	if next == nil {
		next = make(map[string]string)
	}
	for key, value := range updates {
		if value == "" {
			delete(next, key)
		} else {
			next[key] = value
		}
	}
	changed := diff(s.values, next)
	if len(changed) == 0 {
		s.mu.Unlock()
		return nil
	}
	if err := writeFile(s.path, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.values = next
	s.mu.Unlock()

	s.notify(Change{Keys: changed, Source: SourceLocal})
	return nil
}

// Delete removes keys.
func (s *Store) Delete(keys ...string) error {
	updates := make(map[string]string, len(keys))
	for _, key := range keys {
		updates[key] = ""
	}
	return s.SetMany(updates)
}

// Logout clears the identity keys in one write. Preferences such as
// language, theme and the selected model are kept.
func (s *Store) Logout() error {
	if err := s.Delete(identityKeys...); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	slog.Debug("session identity cleared")
	return nil
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe returns a channel of changes and a function that ends the
// subscription and closes the channel.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notify(change Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- change:
		default:
			slog.Debug("session subscriber full, dropping change", "subscriber", id, "keys", change.Keys)
		}
	}
}

// =============================================================================
// EXTERNAL CHANGES
// =============================================================================

// Watch reloads the session when another process rewrites the file and
// notifies subscribers of the keys that changed. Blocks until ctx ends.
//
// The directory is watched rather than the file because writers replace the
// file by rename.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create session watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Debug("failed to close session watcher", "error", err)
		}
	}()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	slog.Debug("watching session file", "path", s.path)

	name := filepath.Clean(s.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			s.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("session watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// reload re-reads the file and broadcasts the difference. Our own writes
// produce an empty difference and are not re-announced.
func (s *Store) reload() {
	values, err := readFile(s.path)
	if err != nil {
		slog.Warn("failed to reload session", "path", s.path, "error", err)
		return
	}

	s.mu.Lock()
	changed := diff(s.values, values)
	if len(changed) > 0 {
		s.values = values
	}
	s.mu.Unlock()

	if len(changed) > 0 {
		slog.Debug("session changed externally", "keys", changed)
		s.notify(Change{Keys: changed, Source: SourceExternal})
	}
}

// =============================================================================
// IDENTITY
// =============================================================================

// Identity is the typed view of the logged-in user.
type Identity struct {
	UserID    string
	Email     string
	Name      string
	Provider  string
	AvatarURL string
}

func (i Identity) LoggedIn() bool { return i.UserID != "" }

// DisplayName prefers the name, then the email, then the id.
func (i Identity) DisplayName() string {
	switch {
	case i.Name != "":
		return i.Name
	case i.Email != "":
		return i.Email
	}
	return i.UserID
}

func (s *Store) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Identity{
		UserID:    s.values[KeyUserID],
		Email:     s.values[KeyUserEmail],
		Name:      s.values[KeyUserName],
		Provider:  s.values[KeyLoginProvider],
		AvatarURL: s.values[KeyAvatarURL],
	}
}

// RequireIdentity returns ErrNotLoggedIn when nobody is logged in.
func (s *Store) RequireIdentity() (Identity, error) {
	id := s.Identity()
	if !id.LoggedIn() {
		return id, ErrNotLoggedIn
	}
	return id, nil
}

// Login replaces the identity keys in one write. Keys of the previous user
// that the new identity leaves empty are cleared.
func (s *Store) Login(id Identity) error {
	if err := validation.Var("user_id", id.UserID, "notblank"); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	updates := map[string]string{
		KeyUserID:        id.UserID,
		KeyUserEmail:     id.Email,
		KeyUserName:      id.Name,
		KeyLoginProvider: id.Provider,
		KeyAvatarURL:     id.AvatarURL,
	}
	if prev := s.Get(KeyUserID); prev != "" && prev != id.UserID {
		updates[KeyCurrentConversation] = ""
	}
	if err := s.SetMany(updates); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// HeaderIdentity adapts the session to apiclient.IdentityFunc.
func (s *Store) HeaderIdentity() apiclient.Identity {
	id := s.Identity()
	return apiclient.Identity{
		UserID:        id.UserID,
		UserName:      id.DisplayName(),
		LoginProvider: id.Provider,
	}
}

// =============================================================================
// FILE
// =============================================================================

func validateValue(key, value string) error {
	rule, ok := keyRules[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if value == "" {
		return nil
	}
	if key == KeyUserEmail && !strfmt.IsEmail(value) {
		return &validation.Error{Fields: []validation.FieldError{{
			Field:   key,
			Rule:    "email",
			Message: fmt.Sprintf("%s must be a valid email address", key),
		}}}
	}
	if rule == "" {
		return nil
	}
	return validation.Var(key, value, rule)
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", path, err)
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	for key := range values {
		if _, ok := keyRules[key]; !ok {
			slog.Warn("ignoring unknown session key", "key", key)
			delete(values, key)
		}
	}
	return values, nil
}

func writeFile(path string, values map[string]string) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create session temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		slog.Debug("failed to chmod session temp file", "error", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close session temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// diff returns the sorted keys whose values differ between a and b.
func diff(a, b map[string]string) []string {
	var changed []string
	for key, av := range a {
		if bv, ok := b[key]; !ok || bv != av {
			changed = append(changed, key)
		}
	}
	for key := range b {
		if _, ok := a[key]; !ok {
			changed = append(changed, key)
		}
	}
	slices.Sort(changed)
	return changed
}
