// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache keeps the last fetched conversations in an embedded
// BadgerDB so `history list --offline` works without the backend.
//
// The backend stays the source of truth. Entries are overwritten on every
// successful fetch and are scoped by user id so two accounts on one machine
// never see each other's conversations.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/history"
	"github.com/dgraph-io/badger/v4"
)

// ErrMiss is returned when a key has never been cached or has expired.
var ErrMiss = errors.New("not in cache")

// DefaultTTL bounds how long an entry survives without being refreshed.
const DefaultTTL = 30 * 24 * time.Hour

// Config holds configuration for the cache database.
type Config struct {
	// Dir is the directory for BadgerDB files. Ignored when InMemory is true.
	Dir string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// TTL applies to every write. Zero means DefaultTTL; negative disables
	// expiry.
	TTL time.Duration

	// Logger receives BadgerDB's internal messages. Nil silences them.
	Logger *slog.Logger
}

// Store is the conversation cache. Safe for concurrent use.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens (creating if needed) the cache database.
//
// Description:
//
//	Opens a BadgerDB at cfg.Dir, or in memory if cfg.InMemory is true.
//	The directory is created with 0700 permissions since it holds
//	conversation content.
//
// Outputs:
//
//	*Store - Caller must call Close() when done.
//	error - Non-nil if the directory or database cannot be opened. Another
//	nexira process holding the database is the common cause.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("cache directory is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl}, nil
}

// OpenInMemory opens a throwaway cache for tests.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close flushes and closes the database. Nil-safe.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// =============================================================================
// LIST
// =============================================================================

// listEntry is the stored form of a conversation list.
type listEntry struct {
	SavedAt       time.Time              `json:"saved_at"`
	Conversations []history.Conversation `json:"conversations"`
}

// PutList replaces the cached conversation list for userID.
func (s *Store) PutList(userID string, convs []history.Conversation) error {
	entry := listEntry{SavedAt: time.Now().UTC(), Conversations: stripMessages(convs)}
	return s.set(listKey(userID), entry)
}

// List returns the cached list for userID and when it was saved.
func (s *Store) List(userID string) ([]history.Conversation, time.Time, error) {
	var entry listEntry
	if err := s.get(listKey(userID), &entry); err != nil {
		return nil, time.Time{}, err
	}
	return entry.Conversations, entry.SavedAt, nil
}

// =============================================================================
// DETAIL
// =============================================================================

// Put stores one conversation with its messages.
func (s *Store) Put(userID string, conv *history.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("cannot cache a conversation without an id")
	}
	return s.set(convKey(userID, string(conv.ID)), conv)
}

// Get returns the cached conversation or ErrMiss.
func (s *Store) Get(userID, id string) (*history.Conversation, error) {
	var conv history.Conversation
	if err := s.get(convKey(userID, id), &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Delete removes the conversation and drops it from the cached list.
func (s *Store) Delete(userID, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(convKey(userID, id)); err != nil {
			return err
		}

		item, err := txn.Get(listKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var entry listEntry
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &entry) }); err != nil {
			return err
		}

		kept := entry.Conversations[:0]
		for _, conv := range entry.Conversations {
			if string(conv.ID) != id {
				kept = append(kept, conv)
			}
		}
		entry.Conversations = kept
		return s.setTxn(txn, listKey(userID), entry)
	})
}

// =============================================================================
// INTERNALS
// =============================================================================

func listKey(userID string) []byte {
	return []byte("list/" + userID)
}

func convKey(userID, id string) []byte {
	return []byte("conv/" + userID + "/" + id)
}

func (s *Store) set(key []byte, v any) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.setTxn(txn, key, v)
	})
}

func (s *Store) setTxn(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	entry := badger.NewEntry(key, data)
	if s.ttl > 0 {
		entry = entry.WithTTL(s.ttl)
	}
	return txn.SetEntry(entry)
}

func (s *Store) get(key []byte, out any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("read cache entry %s: %w", key, err)
	}
	return nil
}

// stripMessages keeps list entries small; details are cached separately.
func stripMessages(convs []history.Conversation) []history.Conversation {
	out := make([]history.Conversation, len(convs))
	for i, conv := range convs {
		if conv.MessageCount == 0 {
			conv.MessageCount = len(conv.Messages)
		}
		conv.Messages = nil
		out[i] = conv
	}
	return out
}
