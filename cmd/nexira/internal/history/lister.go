// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// ListFunc loads one page of conversations.
type ListFunc func(ctx context.Context, limit, offset int) (*ConversationList, error)

// Lister coalesces concurrent loads of the same page into one request and
// returns each conversation id at most once.
//
// Two refreshes fired back to back (after a create, say) share a single
// backend call, and a page that repeats an id keeps only the first entry.
type Lister struct {
	load  ListFunc
	group singleflight.Group

	// OnLoad, when set, receives every freshly loaded page. Used to refresh
	// the offline cache.
	OnLoad func(ctx context.Context, convs []Conversation)
}

func NewLister(load ListFunc) *Lister {
	return &Lister{load: load}
}

// List returns the deduplicated page. Callers that join an in-flight load
// get the same slice contents in their own copy.
func (l *Lister) List(ctx context.Context, limit, offset int) ([]Conversation, error) {
	key := fmt.Sprintf("%d:%d", limit, offset)

	ch := l.group.DoChan(key, func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		detached := context.WithoutCancel(ctx)
		list, err := l.load(detached, limit, offset)
		if err != nil {
			return nil, err
		}
		convs := Dedupe(list.Conversations)
		if l.OnLoad != nil {
			l.OnLoad(detached, convs)
		}
		return convs, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.([]Conversation)
		return append([]Conversation(nil), shared...), nil
	}
}

// Forget drops any in-flight load so the next List hits the backend. Call it
// after a mutation whose effect must be visible.
func (l *Lister) Forget(limit, offset int) {
	l.group.Forget(fmt.Sprintf("%d:%d", limit, offset))
}

// Dedupe keeps the first occurrence of every id, preserving order.
func Dedupe(convs []Conversation) []Conversation {
	seen := make(map[ID]struct{}, len(convs))
	out := make([]Conversation, 0, len(convs))
	for _, conv := range convs {
		if _, dup := seen[conv.ID]; dup {
			continue
		}
		seen[conv.ID] = struct{}{}
		out = append(out, conv)
	}
	return out
}
