// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityEnvVar overrides the configured personality level.
const PersonalityEnvVar = "NEXIRA_PERSONALITY"

// PersonalityLevel selects how much decoration Nexira prints around pages,
// chat turns and agent results.
type PersonalityLevel string

const (
	// PersonalityFull draws the nav bar, page boxes and a spinner per turn.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard is full without the welcome banner.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal prints content and icons, no nav bar or footer.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine prints "KEY: value" lines for scripts.
	PersonalityMachine PersonalityLevel = "machine"
)

// levelAliases are the short forms accepted by --personality and the env var.
var levelAliases = map[string]PersonalityLevel{
	"f":     PersonalityFull,
	"std":   PersonalityStandard,
	"s":     PersonalityStandard,
	"min":   PersonalityMinimal,
	"m":     PersonalityMinimal,
	"quiet": PersonalityMachine,
	"q":     PersonalityMachine,
}

// Personality is the process-wide output setting.
type Personality struct {
	Level PersonalityLevel

	// Theme is "light" or "dark", already resolved from "auto".
	Theme string
}

var (
	currentPersonality = DefaultPersonality()
	personalityMu      sync.RWMutex
)

func GetPersonality() Personality {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentPersonality
}

func SetPersonality(p Personality) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentPersonality = p
}

func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentPersonality.Level = level
}

// ParsePersonalityLevel accepts a level name or alias in any case. Anything
// else is standard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	s = strings.ToLower(strings.TrimSpace(s))
	if IsValidPersonalityLevel(s) {
		return PersonalityLevel(s)
	}
	if level, ok := levelAliases[s]; ok {
		return level
	}
	return PersonalityStandard
}

// IsValidPersonalityLevel reports whether s names a level exactly. Aliases
// are not levels; `settings set personality` stores only full names.
func IsValidPersonalityLevel(s string) bool {
	switch PersonalityLevel(strings.ToLower(s)) {
	case PersonalityFull, PersonalityStandard, PersonalityMinimal, PersonalityMachine:
		return true
	}
	return false
}

// InitPersonality sets the level from NEXIRA_PERSONALITY, then the config
// file, then whether stdout is a terminal.
func InitPersonality(configured string) {
	SetPersonalityLevel(resolveLevel(os.Getenv(PersonalityEnvVar), configured, isTerminal()))
}

func resolveLevel(env, configured string, tty bool) PersonalityLevel {
	switch {
	case env != "":
		return ParsePersonalityLevel(env)
	case configured != "":
		return ParsePersonalityLevel(configured)
	case !tty:
		return PersonalityMachine
	}
	return PersonalityFull
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether huh forms and the line editor can be used.
func IsInteractive() bool {
	return GetPersonality().Level != PersonalityMachine && isTerminal() && isatty.IsTerminal(os.Stdin.Fd())
}

// ShouldShowProgress reports whether spinners may draw.
func ShouldShowProgress() bool {
	return GetPersonality().Level != PersonalityMachine
}

// ShouldShowChrome reports whether pages get the nav bar and footer.
func ShouldShowChrome() bool {
	level := GetPersonality().Level
	return level == PersonalityFull || level == PersonalityStandard
}

func DefaultPersonality() Personality {
	return Personality{Level: PersonalityFull, Theme: ThemeDark}
}
