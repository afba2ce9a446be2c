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
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/agents"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
)

// route maps a page path to the command that renders it.
//
// # Description
//
// Patterns are matched segment by segment. A segment starting with ":"
// captures that segment into params under the remaining name. The special
// pattern agentRoutePattern matches every "/<slug>-analyst" path of the
// agent catalog and captures "agent".
//
// Chrome is the header and footer banner printed around the page. Pages
// that take over the terminal (chat, the sign-in callback) render without
// it.
type route struct {
	Pattern string
	NavKey  string
	Chrome  bool
	Run     func(cmd *cobra.Command, params map[string]string) error
}

const (
	agentRoutePattern = "/{agent}-analyst"
	homeRoute         = "/home"
)

// routeTable lists every page in navigation order.
func routeTable() []route {
	return []route{
		{Pattern: homeRoute, NavKey: "nav.home", Chrome: true, Run: page(runHome)},
		{Pattern: "/marketplace", NavKey: "nav.marketplace", Chrome: true, Run: page(runMarketplace)},
		{Pattern: agentRoutePattern, Chrome: true, Run: runAgentRoute},
		{Pattern: "/knowledge", NavKey: "nav.knowledge", Chrome: true, Run: page(runKnowledge)},
		{Pattern: "/settings", NavKey: "nav.settings", Chrome: true, Run: page(runSettingsShow)},
		{Pattern: "/chat", NavKey: "nav.chat", Chrome: false, Run: page(runChatCommand)},
		{Pattern: "/help", NavKey: "nav.help", Chrome: true, Run: page(runHelpPage)},
		{Pattern: "/support-tickets", NavKey: "nav.tickets", Chrome: true, Run: page(runTicketsList)},
		{Pattern: "/all-support-tickets", NavKey: "nav.all_tickets", Chrome: true, Run: page(runTicketsAll)},
		{Pattern: "/tickets/:ticketId", Chrome: true, Run: func(cmd *cobra.Command, params map[string]string) error {
			return runTicketsShow(cmd, []string{params["ticketId"]})
		}},
		{Pattern: "/auth/callback", Chrome: false, Run: page(runLogin)},
	}
}

func page(run func(*cobra.Command, []string) error) func(*cobra.Command, map[string]string) error {
	return func(cmd *cobra.Command, _ map[string]string) error {
		return run(cmd, nil)
	}
}

func runAgentRoute(cmd *cobra.Command, params map[string]string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	agent, _ := agents.Lookup(params["agent"])
	return runAgentPage(cmd, agent)
}

// matchRoute finds the route for path. "/" and "" open the home page; a
// query string or fragment is ignored.
func matchRoute(path string) (route, map[string]string, bool) {
	path = normalizeRoute(path)
	for _, r := range routeTable() {
		if r.Pattern == agentRoutePattern {
			if slug, ok := agentSlug(path); ok {
				return r, map[string]string{"agent": slug}, true
			}
			continue
		}
		if params, ok := matchPattern(r.Pattern, path); ok {
			return r, params, true
		}
	}
	return route{}, nil, false
}

func normalizeRoute(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = "/" + strings.Trim(path, "/")
	if path == "/" {
		return homeRoute
	}
	return path
}

// agentSlug returns the catalog slug for "/<slug>-analyst".
func agentSlug(path string) (string, bool) {
	name := strings.TrimPrefix(path, "/")
	if strings.Contains(name, "/") || !strings.HasSuffix(name, "-analyst") {
		return "", false
	}
	a, ok := agents.Lookup(name)
	if !ok {
		return "", false
	}
	return a.Slug, true
}

func matchPattern(pattern, path string) (map[string]string, bool) {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range want {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			if got[i] == "" {
				return nil, false
			}
			params[name] = got[i]
			continue
		}
		if seg != got[i] {
			return nil, false
		}
	}
	return params, true
}

// runOpen renders the page at a route, with chrome when the route wants it
// and the personality shows it.
func runOpen(cmd *cobra.Command, args []string) error {
	r, params, ok := matchRoute(args[0])
	if !ok {
		return fmt.Errorf("%w: no page at %q, see `nexira open /help`", validation.ErrInvalid, args[0])
	}
	chrome := r.Chrome && ux.ShouldShowChrome()
	out := cmd.OutOrStdout()
	if chrome {
		printNavBar(out, r)
	}
	err := r.Run(cmd, params)
	if chrome {
		fmt.Fprintln(out, ux.Styles.Muted.Render(nx.tr.T("nav.footer")))
	}
	return err
}

// printNavBar prints the navigation links with the active page highlighted.
func printNavBar(w io.Writer, active route) {
	var links []string
	for _, r := range routeTable() {
		if r.NavKey == "" {
			continue
		}
		label := nx.tr.T(r.NavKey)
		if r.Pattern == active.Pattern {
			links = append(links, ux.Styles.Highlight.Render(label))
		} else {
			links = append(links, ux.Styles.Muted.Render(label))
		}
	}
	fmt.Fprintln(w, strings.Join(links, ux.Styles.Muted.Render(" · ")))
	fmt.Fprintln(w)
}

// printRoutes lists the pages that `nexira open` accepts.
func printRoutes(w io.Writer) {
	machine := ux.GetPersonality().Level == ux.PersonalityMachine
	for _, r := range routeTable() {
		label := r.Pattern
		if r.NavKey != "" {
			label = nx.tr.T(r.NavKey)
		}
		if machine {
			fmt.Fprintf(w, "ROUTE: %s\t%t\n", r.Pattern, r.Chrome)
			continue
		}
		fmt.Fprintf(w, "%s %-22s %s\n", ux.IconBullet.Render(), r.Pattern, ux.Styles.Muted.Render(label))
	}
}
