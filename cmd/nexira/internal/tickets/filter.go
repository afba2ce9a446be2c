// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tickets

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Filter selects tickets. Zero-valued fields are inactive; a ticket matches
// when every active predicate holds.
type Filter struct {
	Status   Status
	Priority Priority
	Search   string
}

// Active reports whether any predicate is set.
func (f Filter) Active() bool {
	return f.Status != "" || f.Priority != "" || strings.TrimSpace(f.Search) != ""
}

// Matches reports whether t satisfies every active predicate.
func (f Filter) Matches(t Ticket) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		haystack := []string{
			t.TicketNumber,
			t.Subject,
			t.Description,
			t.CustomerName,
			string(t.CustomerEmail),
		}
		found := false
		for _, field := range haystack {
			if strings.Contains(strings.ToLower(field), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply returns the matching tickets in their original order.
func (f Filter) Apply(list []Ticket) []Ticket {
	out := make([]Ticket, 0, len(list))
	for _, t := range list {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

var strict = bluemonday.StrictPolicy()

// Sanitize strips every tag from s and decodes entities so the text prints
// cleanly in a terminal.
func Sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
