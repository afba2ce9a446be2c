// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// HeaderConfig groups the optional parameters of the chat header.
type HeaderConfig struct {
	// ConversationID is the active conversation, empty for a new chat.
	ConversationID string

	// Title is the conversation title or the agent name.
	Title string

	// Provider and Model are the user's selected backend LLM.
	Provider string
	Model    string

	// UserName is shown as "signed in as".
	UserName string

	// Language is the active UI language code.
	Language string
}

// SessionStats aggregates metrics from a chat session for display.
type SessionStats struct {
	MessageCount         int
	TotalChunks          int
	Errors               int
	Duration             time.Duration
	FirstResponseLatency time.Duration
}

// ChatUI renders the chat chrome: header, prompt, role labels and the
// session footer.
type ChatUI interface {
	// Header displays the chat header box.
	Header(config HeaderConfig)

	// Footer displays the help line shown under the header.
	Footer(hint string)

	// Prompt returns the styled input prompt string
	Prompt() string

	// UserMessage echoes a message the user sent (used for transcripts
	// replayed on --resume).
	UserMessage(content string)

	// AssistantLabel prints the label that precedes a streamed answer.
	AssistantLabel()

	// AssistantMessage prints a complete stored assistant message.
	AssistantMessage(content string)

	// Error displays a chat error message
	Error(err error)

	// Cancelled notes that the in-flight answer was stopped.
	Cancelled()

	// ConversationSwitched announces the active conversation.
	ConversationSwitched(id, title string)

	// SessionEnd displays session end information with stats.
	SessionEnd(conversationID string, stats *SessionStats)
}

// terminalChatUI implements ChatUI for terminal output
type terminalChatUI struct {
	writer      io.Writer
	personality PersonalityLevel
}

func (u *terminalChatUI) write(format string, args ...any) {
	_, _ = fmt.Fprintf(u.writer, format, args...)
}

func (u *terminalChatUI) writeln(args ...any) {
	_, _ = fmt.Fprintln(u.writer, args...)
}

// NewChatUI creates a new terminal-based ChatUI
func NewChatUI() ChatUI {
	return &terminalChatUI{
		writer:      os.Stdout,
		personality: GetPersonality().Level,
	}
}

// NewChatUIWithWriter creates a ChatUI with a custom writer (for testing)
func NewChatUIWithWriter(w io.Writer, personality PersonalityLevel) ChatUI {
	return &terminalChatUI{
		writer:      w,
		personality: personality,
	}
}

func (u *terminalChatUI) Header(config HeaderConfig) {
	switch u.personality {
	case PersonalityMachine:
		parts := []string{}
		if config.ConversationID != "" {
			parts = append(parts, "conversation="+config.ConversationID)
		}
		if config.Provider != "" {
			parts = append(parts, "provider="+config.Provider)
		}
		if config.Model != "" {
			parts = append(parts, "model="+config.Model)
		}
		if config.Language != "" {
			parts = append(parts, "language="+config.Language)
		}
		u.write("CHAT_START: %s\n", strings.Join(parts, " "))

	case PersonalityMinimal:
		title := config.Title
		if title == "" {
			title = "New chat"
		}
		u.write("Nexira - %s\n", title)
		if config.Provider != "" {
			u.write("Model: %s\n", modelLabel(config.Provider, config.Model))
		}

	default:
		var content strings.Builder
		content.WriteString(IconSpark.Render() + " " + Styles.Title.Render("Nexira AI"))
		if config.Title != "" {
			content.WriteString("  " + Styles.Subtitle.Render(config.Title))
		}
		if config.Provider != "" {
			content.WriteString("\n")
			content.WriteString(fmt.Sprintf("Model: %s", Styles.Success.Render(modelLabel(config.Provider, config.Model))))
		}
		if config.UserName != "" {
			content.WriteString("\n")
			content.WriteString(Styles.Muted.Render("Signed in as " + config.UserName))
		}
		if config.ConversationID != "" {
			content.WriteString("\n")
			content.WriteString(fmt.Sprintf("Conversation: %s", Styles.Muted.Render(config.ConversationID)))
		}
		u.writeln(Styles.Box.Width(64).Render(content.String()))
	}
}

func modelLabel(provider, model string) string {
	if model == "" {
		return provider
	}
	return provider + "/" + model
}

func (u *terminalChatUI) Footer(hint string) {
	if u.personality == PersonalityMachine || hint == "" {
		return
	}
	if u.personality == PersonalityMinimal {
		u.writeln(hint)
		return
	}
	u.writeln(Styles.Muted.Render(hint))
	u.writeln()
}

// Prompt returns the styled input prompt string
func (u *terminalChatUI) Prompt() string {
	if u.personality == PersonalityMachine || u.personality == PersonalityMinimal {
		return "> "
	}
	return Styles.Highlight.Render("> ")
}

func (u *terminalChatUI) UserMessage(content string) {
	switch u.personality {
	case PersonalityMachine:
		u.write("USER: %s\n", content)
	case PersonalityMinimal:
		u.write("you: %s\n", content)
	default:
		u.write("%s %s\n", Styles.User.Render("You"), content)
	}
}

func (u *terminalChatUI) AssistantLabel() {
	switch u.personality {
	case PersonalityMachine:
	case PersonalityMinimal:
		u.write("nexira: ")
	default:
		u.write("%s ", Styles.Assistant.Render("Nexira"))
	}
}

func (u *terminalChatUI) AssistantMessage(content string) {
	if u.personality == PersonalityMachine {
		u.write("ASSISTANT: %s\n", content)
		return
	}
	u.AssistantLabel()
	u.writeln(content)
}

// Error displays a chat error message
func (u *terminalChatUI) Error(err error) {
	if u.personality == PersonalityMachine {
		u.write("ERROR: %v\n", err)
		return
	}
	u.write("%s %s\n", IconError.Render(), Styles.Error.Render(err.Error()))
}

func (u *terminalChatUI) Cancelled() {
	if u.personality == PersonalityMachine {
		u.writeln("CANCELLED")
		return
	}
	u.writeln()
	u.writeln(Styles.Warning.Render("(stopped)"))
}

func (u *terminalChatUI) ConversationSwitched(id, title string) {
	switch u.personality {
	case PersonalityMachine:
		u.write("CONVERSATION: %s\n", id)
	default:
		if title == "" {
			title = id
		}
		u.write("%s %s\n", IconArrow.Render(), Styles.Subtitle.Render(title))
	}
}

// SessionEnd displays session end information. A nil stats prints the
// short form.
func (u *terminalChatUI) SessionEnd(conversationID string, stats *SessionStats) {
	if stats == nil {
		stats = &SessionStats{}
	}

	switch u.personality {
	case PersonalityMachine:
		u.write("CHAT_END: conversation=%s messages=%d errors=%d duration=%s\n",
			conversationID, stats.MessageCount, stats.Errors, stats.Duration.Round(time.Millisecond))

	case PersonalityMinimal:
		u.writeln()
		if conversationID != "" {
			u.write("Conversation: %s\n", conversationID)
		}
		u.write("Messages: %d | Duration: %s\n", stats.MessageCount, formatDuration(stats.Duration))
		u.writeln("Goodbye!")

	default:
		u.writeln()
		var content strings.Builder
		content.WriteString(Styles.Subtitle.Render("Session Summary"))
		content.WriteString("\n\n")
		content.WriteString(fmt.Sprintf("  %d messages exchanged\n", stats.MessageCount))
		content.WriteString(fmt.Sprintf("  %s session duration\n", formatDuration(stats.Duration)))
		if stats.FirstResponseLatency > 0 {
			content.WriteString(fmt.Sprintf("  %s time to first response\n", formatDuration(stats.FirstResponseLatency)))
		}
		if stats.Errors > 0 {
			content.WriteString(Styles.Error.Render(fmt.Sprintf("  %d failed responses", stats.Errors)))
			content.WriteString("\n")
		}
		if conversationID != "" {
			content.WriteString("\n")
			content.WriteString(Styles.Muted.Render("Resume with:"))
			content.WriteString("\n")
			content.WriteString(Styles.Success.Render("  nexira chat --resume " + conversationID))
		}
		u.writeln(Styles.Box.Width(64).Render(strings.TrimRight(content.String(), "\n")))
		u.writeln(Styles.Highlight.Render("Goodbye!"))
	}
}

// formatDuration formats a duration for human-readable display.
//
//	formatDuration(500*time.Millisecond) // "500ms"
//	formatDuration(5*time.Second)        // "5.0s"
//	formatDuration(90*time.Second)       // "1m 30s"
//	formatDuration(2*time.Hour)          // "2h 0m"
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// FormatRelativeTime renders t as "2h ago", "3 days ago" and so on,
// falling back to a date after a month.
func FormatRelativeTime(t time.Time) string {
	return formatRelativeTimeFrom(t, time.Now())
}

func formatRelativeTimeFrom(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		if mins := int(diff.Minutes()); mins != 1 {
			return fmt.Sprintf("%d mins ago", mins)
		}
		return "1 min ago"
	case diff < 24*time.Hour:
		if hours := int(diff.Hours()); hours != 1 {
			return fmt.Sprintf("%dh ago", hours)
		}
		return "1h ago"
	case diff < 7*24*time.Hour:
		if days := int(diff.Hours() / 24); days != 1 {
			return fmt.Sprintf("%d days ago", days)
		}
		return "1 day ago"
	case diff < 30*24*time.Hour:
		if weeks := int(diff.Hours() / (24 * 7)); weeks != 1 {
			return fmt.Sprintf("%d weeks ago", weeks)
		}
		return "1 week ago"
	}

	return t.Format("Jan 2, 2006")
}
