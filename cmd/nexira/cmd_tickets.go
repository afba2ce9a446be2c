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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/go-openapi/strfmt"
	"github.com/spf13/cobra"

	"github.com/NexiraAI/nexira/cmd/nexira/internal/i18n"
	"github.com/NexiraAI/nexira/cmd/nexira/internal/tickets"
	"github.com/NexiraAI/nexira/pkg/ux"
	"github.com/NexiraAI/nexira/pkg/validation"
)

func runTicketsList(cmd *cobra.Command, args []string) error {
	return listTickets(cmd, tickets.ScopeMine)
}

func runTicketsAll(cmd *cobra.Command, args []string) error {
	return listTickets(cmd, tickets.ScopeAll)
}

func listTickets(cmd *cobra.Command, scope tickets.Scope) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	filter, err := ticketFilter(cmd)
	if err != nil {
		return err
	}

	list, err := nx.tickets.ListTickets(cmd.Context(), scope)
	if err != nil {
		return err
	}
	list = filter.Apply(list)

	title := nx.tr.T("nav.tickets")
	if scope == tickets.ScopeAll {
		title = nx.tr.T("nav.all_tickets")
	}
	ux.Title(title)
	if len(list) == 0 {
		ux.Muted(nx.tr.T("tickets.empty"))
		return nil
	}
	printTickets(cmd.OutOrStdout(), list, nx.tr)
	return nil
}

func ticketFilter(cmd *cobra.Command) (tickets.Filter, error) {
	var f tickets.Filter
	status, _ := cmd.Flags().GetString("status")
	priority, _ := cmd.Flags().GetString("priority")
	f.Search, _ = cmd.Flags().GetString("search")

	if status != "" {
		st, err := tickets.ParseStatus(status)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	if priority != "" {
		p, err := tickets.ParsePriority(priority)
		if err != nil {
			return f, err
		}
		f.Priority = p
	}
	return f, nil
}

func printTickets(w io.Writer, list []tickets.Ticket, tr *i18n.Translator) {
	machine := ux.GetPersonality().Level == ux.PersonalityMachine
	for _, t := range list {
		t = t.Sanitized()
		if machine {
			fmt.Fprintf(w, "TICKET: %s\t%s\t%s\t%s\t%s\n", t.TicketNumber, t.Status, t.Priority, t.Category, t.Subject)
			continue
		}
		fmt.Fprintf(w, "%s %-10s %s %s %s  %s\n",
			ux.IconTicket.Render(),
			t.TicketNumber,
			ux.Badge(t.Status.Label(tr), t.Status.Color()),
			ux.Badge(t.Priority.Label(tr), t.Priority.Color()),
			ux.Truncate(t.Subject, 50),
			ux.Styles.Muted.Render(ux.FormatRelativeTime(time.Time(t.UpdatedAt))),
		)
	}
}

func runTicketsShow(cmd *cobra.Command, args []string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	t, err := nx.tickets.GetTicket(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printTicket(cmd.OutOrStdout(), t.Sanitized(), nx.tr)
	return nil
}

func printTicket(w io.Writer, t tickets.Ticket, tr *i18n.Translator) {
	assignee := t.AssignedTo
	if assignee == "" {
		assignee = tr.T("tickets.unassigned")
	}

	ux.Title(fmt.Sprintf("%s  %s", t.TicketNumber, t.Subject))
	ux.KeyValue("status", t.Status.Label(tr))
	ux.KeyValue("priority", t.Priority.Label(tr))
	ux.KeyValue("category", t.Category.Label(tr))
	ux.KeyValue("customer", strings.TrimSpace(fmt.Sprintf("%s <%s>", t.CustomerName, t.CustomerEmail)))
	ux.KeyValue("assigned to", assignee)
	ux.KeyValue("created", time.Time(t.CreatedAt).Local().Format("2006-01-02 15:04"))

	if t.Description != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, t.Description)
	}
	printAttachments(w, t.AttachedFiles, tr)

	if len(t.Responses) == 0 {
		return
	}
	fmt.Fprintln(w)
	ux.Title(tr.T("tickets.responses"))
	for _, r := range t.Responses {
		author := r.Author
		if r.IsStaff {
			author += " (staff)"
		}
		if ux.GetPersonality().Level == ux.PersonalityMachine {
			fmt.Fprintf(w, "RESPONSE: %s\t%s\t%s\n", author, time.Time(r.CreatedAt).UTC().Format(time.RFC3339), r.Message)
		} else {
			fmt.Fprintf(w, "%s %s\n%s\n", ux.Styles.Subtitle.Render(author),
				ux.Styles.Muted.Render(ux.FormatRelativeTime(time.Time(r.CreatedAt))), r.Message)
		}
		printAttachments(w, r.AttachedFiles, tr)
	}
}

func printAttachments(w io.Writer, files []tickets.AttachmentMeta, tr *i18n.Translator) {
	if len(files) == 0 {
		return
	}
	if ux.GetPersonality().Level == ux.PersonalityMachine {
		for _, f := range files {
			fmt.Fprintf(w, "ATTACHMENT: %s\t%s\t%d\n", f.S3Key, f.Filename, f.SizeBytes)
		}
		return
	}
	fmt.Fprintln(w, ux.Styles.Muted.Render(tr.T("tickets.attachments")+":"))
	for _, f := range files {
		fmt.Fprintf(w, "  %s %s (%s)  %s\n", ux.IconBullet.Render(), f.Filename, humanBytes(f.SizeBytes),
			ux.Styles.Muted.Render(f.S3Key))
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}

// runTicketsCreate opens a ticket from flags, asking for what is missing
// when the terminal is interactive.
func runTicketsCreate(cmd *cobra.Command, args []string) error {
	id, err := nx.requireLogin()
	if err != nil {
		return err
	}
	subject, _ := cmd.Flags().GetString("subject")
	description, _ := cmd.Flags().GetString("description")
	priority, _ := cmd.Flags().GetString("priority")
	category, _ := cmd.Flags().GetString("category")
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")

	if (strings.TrimSpace(subject) == "" || strings.TrimSpace(description) == "") && ux.IsInteractive() {
		if err := ticketForm(&subject, &description, &priority, &category).RunWithContext(cmd.Context()); err != nil {
			return err
		}
	}

	p, err := tickets.ParsePriority(priority)
	if err != nil {
		return err
	}
	c, err := tickets.ParseCategory(category)
	if err != nil {
		return err
	}

	t, err := nx.tickets.CreateTicket(cmd.Context(), tickets.CreateRequest{
		Subject:       strings.TrimSpace(subject),
		Description:   strings.TrimSpace(description),
		Priority:      p,
		Category:      c,
		CustomerName:  firstNonEmpty(name, id.DisplayName()),
		CustomerEmail: strfmt.Email(firstNonEmpty(email, id.Email)),
	})
	if err != nil {
		return err
	}
	ux.Success(nx.tr.T("tickets.created", t.TicketNumber))
	return nil
}

func ticketForm(subject, description, priority, category *string) *huh.Form {
	priorities := make([]huh.Option[string], 0, len(tickets.Priorities))
	for _, p := range tickets.Priorities {
		priorities = append(priorities, huh.NewOption(p.Label(nx.tr), string(p)))
	}
	categories := make([]huh.Option[string], 0, len(tickets.Categories))
	for _, c := range tickets.Categories {
		categories = append(categories, huh.NewOption(c.Label(nx.tr), string(c)))
	}
	notBlank := func(field string) func(string) error {
		return func(s string) error { return validation.Var(field, s, "notblank") }
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Subject").CharLimit(200).Value(subject).Validate(notBlank("subject")),
			huh.NewText().Title("Description").Value(description).Validate(notBlank("description")),
			huh.NewSelect[string]().Title("Priority").Options(priorities...).Value(priority),
			huh.NewSelect[string]().Title("Category").Options(categories...).Value(category),
		).Title(nx.tr.T("nav.tickets")),
	).WithTheme(huh.ThemeCharm())
}

func runTicketsRespond(cmd *cobra.Command, args []string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	message, _ := cmd.Flags().GetString("message")
	files, _ := cmd.Flags().GetStringArray("attach")

	if strings.TrimSpace(message) == "" && ux.IsInteractive() {
		err := huh.NewText().
			Title(fmt.Sprintf("Response to %s", args[0])).
			Value(&message).
			Validate(func(s string) error { return validation.Var("message", s, "notblank") }).
			WithTheme(huh.ThemeCharm()).
			Run()
		if err != nil {
			return err
		}
	}

	var t *tickets.Ticket
	send := func() error {
		var err error
		t, err = nx.tickets.AddResponse(cmd.Context(), args[0], message, files)
		return err
	}
	var err error
	if len(files) > 0 {
		err = ux.WithSpinner(nx.tr.T("tickets.uploading", len(files)), send)
	} else {
		err = send()
	}

	var uploadErr *tickets.UploadError
	if errors.As(err, &uploadErr) {
		ux.Warning(fmt.Sprintf("%d of %d attachment(s) uploaded before the failure", len(uploadErr.Uploaded), len(files)))
	}
	if err != nil {
		return err
	}
	ux.Success(nx.tr.T("tickets.response_sent"))
	if t != nil {
		ux.KeyValue("responses", fmt.Sprint(len(t.Responses)))
	}
	return nil
}

func runTicketsAssign(cmd *cobra.Command, args []string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	if _, err := nx.tickets.AssignTicket(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	ux.Success(nx.tr.T("tickets.assigned", args[1]))
	return nil
}

func runTicketsStatus(cmd *cobra.Command, args []string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	st, err := tickets.ParseStatus(args[1])
	if err != nil {
		return err
	}
	if _, err := nx.tickets.UpdateStatus(cmd.Context(), args[0], st); err != nil {
		return err
	}
	ux.Success(nx.tr.T("tickets.status_updated", st.Label(nx.tr)))
	return nil
}

func runTicketsDownload(cmd *cobra.Command, args []string) error {
	if _, err := nx.requireLogin(); err != nil {
		return err
	}
	key := args[0]
	dest, _ := cmd.Flags().GetString("output")
	if dest == "" {
		dest = filepath.Base(key)
	}
	if dest == "." || dest == string(filepath.Separator) {
		return fmt.Errorf("%w: cannot derive a file name from %q, pass --output", validation.ErrInvalid, key)
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := nx.tickets.Download(cmd.Context(), key, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}
	ux.Success(nx.tr.T("tickets.downloaded", fmt.Sprintf("%s (%s)", dest, humanBytes(n))))
	return nil
}
