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
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Resolved theme names. "auto" is resolved before it reaches this package.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Out and ErrOut are where the print helpers write.
var (
	Out    io.Writer = os.Stdout
	ErrOut io.Writer = os.Stderr
)

// Palette is the set of colors a theme is built from.
type Palette struct {
	Primary   lipgloss.Color
	Accent    lipgloss.Color
	Border    lipgloss.Color
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Info      lipgloss.Color
	Highlight lipgloss.Color
}

// Nexira palettes - violet brand on dark or light surfaces
var (
	DarkPalette = Palette{
		Primary:   lipgloss.Color("#8B5CF6"),
		Accent:    lipgloss.Color("#22D3EE"),
		Border:    lipgloss.Color("#6D28D9"),
		Text:      lipgloss.Color("#E5E7EB"),
		Muted:     lipgloss.Color("#6B7280"),
		Success:   lipgloss.Color("#34D399"),
		Warning:   lipgloss.Color("#FBBF24"),
		Error:     lipgloss.Color("#F87171"),
		Info:      lipgloss.Color("#60A5FA"),
		Highlight: lipgloss.Color("#C4B5FD"),
	}

	LightPalette = Palette{
		Primary:   lipgloss.Color("#6D28D9"),
		Accent:    lipgloss.Color("#0891B2"),
		Border:    lipgloss.Color("#7C3AED"),
		Text:      lipgloss.Color("#111827"),
		Muted:     lipgloss.Color("#6B7280"),
		Success:   lipgloss.Color("#059669"),
		Warning:   lipgloss.Color("#B45309"),
		Error:     lipgloss.Color("#DC2626"),
		Info:      lipgloss.Color("#2563EB"),
		Highlight: lipgloss.Color("#5B21B6"),
	}
)

// StyleSet provides pre-configured lipgloss styles
type StyleSet struct {
	// Text styles
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Info      lipgloss.Style
	Highlight lipgloss.Style

	// Chat roles
	User      lipgloss.Style
	Assistant lipgloss.Style

	// Box styles
	Box        lipgloss.Style
	InfoBox    lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style

	// Badge is the base for status/priority pills
	Badge lipgloss.Style
}

// NewStyleSet builds styles from a palette.
func NewStyleSet(p Palette) StyleSet {
	return StyleSet{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(p.Primary),
		Subtitle:  lipgloss.NewStyle().Foreground(p.Accent),
		Bold:      lipgloss.NewStyle().Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(p.Muted),
		Success:   lipgloss.NewStyle().Foreground(p.Success),
		Warning:   lipgloss.NewStyle().Foreground(p.Warning),
		Error:     lipgloss.NewStyle().Foreground(p.Error),
		Info:      lipgloss.NewStyle().Foreground(p.Info),
		Highlight: lipgloss.NewStyle().Foreground(p.Highlight).Bold(true),

		User:      lipgloss.NewStyle().Bold(true).Foreground(p.Accent),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(p.Primary),

		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Border).
			Padding(0, 1),
		InfoBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Primary).
			Padding(0, 1),
		WarningBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Warning).
			Padding(0, 1),
		ErrorBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Error).
			Padding(0, 1),

		Badge: lipgloss.NewStyle().Bold(true).Padding(0, 1),
	}
}

var (
	// Styles is the active style set. ApplyTheme replaces it.
	Styles = NewStyleSet(DarkPalette)

	activePalette = DarkPalette
	themeMu       sync.Mutex
)

// ApplyTheme switches Styles to the named resolved theme. Unknown names
// fall back to dark.
func ApplyTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()

	p := DarkPalette
	if theme == ThemeLight {
		p = LightPalette
	} else {
		theme = ThemeDark
	}
	activePalette = p
	Styles = NewStyleSet(p)

	personalityMu.Lock()
	currentPersonality.Theme = theme
	personalityMu.Unlock()
}

// ActivePalette returns the palette of the current theme.
func ActivePalette() Palette {
	themeMu.Lock()
	defer themeMu.Unlock()
	return activePalette
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconSpark   Icon = "✦"
	IconTicket  Icon = "◆"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	case IconSpark:
		return Styles.Highlight.Render(string(i))
	default:
		return string(i)
	}
}

// Badge renders a label in a colored pill. Machine personality gets the
// bare label.
func Badge(label string, color lipgloss.Color) string {
	if GetPersonality().Level == PersonalityMachine {
		return label
	}
	return Styles.Badge.Foreground(color).Render(label)
}

// Print helpers that respect personality level

// Title prints a styled title
func Title(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(Out, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(Out, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Out, "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func Warning(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(ErrOut, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Out, "%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Fprintf(Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func Error(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(ErrOut, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(Out, "%s %s\n", IconError.Render(), text)
	default:
		fmt.Fprintf(Out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func Info(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintln(Out, text)
	default:
		fmt.Fprintf(Out, "%s %s\n", Styles.Muted.Render("│"), text)
	}
}

// Muted prints muted/secondary text
func Muted(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(Out, Styles.Muted.Render(text))
}

// KeyValue prints an aligned "key: value" line. Machine personality
// uppercases the key.
func KeyValue(key, value string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Out, "%s: %s\n", strings.ToUpper(strings.ReplaceAll(key, " ", "_")), value)
		return
	}
	fmt.Fprintf(Out, "%s %s\n", Styles.Muted.Render(fmt.Sprintf("%-16s", key+":")), value)
}

// Box prints text in a rounded box
func Box(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(Out, "%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(72)
	titleLine := Styles.Title.Render(title)
	fmt.Fprintln(Out, boxStyle.Render(titleLine+"\n"+content))
}

// WarningBox prints text in a warning-styled box
func WarningBox(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(ErrOut, "WARN %s: %s\n", title, content)
		return
	}
	boxStyle := Styles.WarningBox.Width(72)
	titleLine := Styles.Warning.Bold(true).Render(title)
	fmt.Fprintln(Out, boxStyle.Render(titleLine+"\n"+content))
}

// ProgressBar renders a simple progress bar
func ProgressBar(current, total int, width int) string {
	if GetPersonality().Level == PersonalityMachine {
		return fmt.Sprintf("%d/%d", current, total)
	}
	if total <= 0 {
		total = 1
	}
	pct := float64(current) / float64(total)
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	empty := width - filled

	bar := Styles.Success.Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", max(empty, 0)))

	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}

// Truncate shortens s to n runes with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
