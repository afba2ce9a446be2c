// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package i18n provides the language and theme used by every command.
//
// Lookup falls back from the active language to English and then to the
// key itself, so a missing translation shows up as a readable key rather
// than an empty string.
package i18n

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Language is a supported UI language code.
type Language string

const (
	English    Language = "en"
	Vietnamese Language = "vi"
	Spanish    Language = "es"
)

// Supported lists the languages in matcher order; the first is the default.
var Supported = []Language{English, Vietnamese, Spanish}

var (
	supportedTags = []language.Tag{language.English, language.Vietnamese, language.Spanish}
	matcher       = language.NewMatcher(supportedTags)
)

func (l Language) Valid() bool {
	switch l {
	case English, Vietnamese, Spanish:
		return true
	}
	return false
}

func (l Language) Tag() language.Tag {
	for i, s := range Supported {
		if s == l {
			return supportedTags[i]
		}
	}
	return language.English
}

// Name is the language's own name for itself.
func (l Language) Name() string {
	switch l {
	case Vietnamese:
		return "Tiếng Việt"
	case Spanish:
		return "Español"
	}
	return "English"
}

// Negotiate picks the best supported language for the given preferences,
// which may be BCP 47 tags, Accept-Language values or POSIX locales such as
// vi_VN.UTF-8. English when nothing matches.
func Negotiate(prefs ...string) Language {
	cleaned := make([]string, 0, len(prefs))
	for _, p := range prefs {
		if p = normalizeLocale(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return English
	}
	_, index, conf := matcher.Match(parseAll(cleaned)...)
	if conf == language.No {
		return English
	}
	return Supported[index]
}

// FromEnv negotiates from LC_ALL, LC_MESSAGES and LANG, in that order.
func FromEnv(getenv func(string) string) Language {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := normalizeLocale(getenv(key)); v != "" {
			return Negotiate(v)
		}
	}
	return English
}

func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	if s == "C" || s == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(s, "_", "-")
}

func parseAll(prefs []string) []language.Tag {
	var tags []language.Tag
	for _, p := range prefs {
		if parsed, _, err := language.ParseAcceptLanguage(p); err == nil {
			tags = append(tags, parsed...)
		}
	}
	return tags
}

// =============================================================================
// TRANSLATION
// =============================================================================

// Translator looks up strings for one language. The zero value is English.
type Translator struct {
	lang Language
}

func New(lang Language) *Translator {
	if !lang.Valid() {
		lang = English
	}
	return &Translator{lang: lang}
}

func (t *Translator) Language() Language {
	if t == nil || t.lang == "" {
		return English
	}
	return t.lang
}

// T returns the translation of key, formatted with args when given.
func (t *Translator) T(key string, args ...any) string {
	text, ok := dictionaries[t.Language()][key]
	if !ok {
		text, ok = dictionaries[English][key]
	}
	if !ok {
		text = key
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}

// Has reports whether key exists in the English dictionary.
func Has(key string) bool {
	_, ok := dictionaries[English][key]
	return ok
}

// Title title-cases s with the rules of the active language.
func (t *Translator) Title(s string) string {
	return cases.Title(t.Language().Tag()).String(s)
}

// =============================================================================
// THEME
// =============================================================================

// Theme preferences.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
	ThemeAuto  = "auto"
)

// DarkBackground reports whether the terminal background is dark.
type DarkBackground func() bool

// ResolveTheme turns a preference into "light" or "dark". Auto and unknown
// preferences ask detect, which defaults to lipgloss's terminal query.
func ResolveTheme(pref string, detect DarkBackground) string {
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case ThemeLight:
		return ThemeLight
	case ThemeDark:
		return ThemeDark
	}
	if detect == nil {
		detect = lipgloss.HasDarkBackground
	}
	if detect() {
		return ThemeDark
	}
	return ThemeLight
}
