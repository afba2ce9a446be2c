// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/NexiraAI/nexira/pkg/validation"
)

// FormState holds the values bound to a form's fields.
type FormState struct {
	Prompt string
	values map[string]*string
	order  []string
}

// Values returns the non-empty settings entered so far.
func (s *FormState) Values() map[string]string {
	out := make(map[string]string, len(s.values))
	for _, k := range s.order {
		if v := strings.TrimSpace(*s.values[k]); v != "" {
			out[k] = v
		}
	}
	return out
}

// Set assigns a setting, as if typed into the form.
func (s *FormState) Set(key, value string) bool {
	p, ok := s.values[key]
	if ok {
		*p = value
	}
	return ok
}

// NewForm builds the settings form of agent: one select per option field,
// one input per free-text field, then the prompt. initial pre-fills values;
// fields fall back to their defaults.
func NewForm(agent Agent, initial map[string]string) (*huh.Form, *FormState) {
	state := &FormState{values: make(map[string]*string, len(agent.Fields))}

	settings := make([]huh.Field, 0, len(agent.Fields))
	for _, f := range agent.Fields {
		v := initial[f.Key]
		if v == "" {
			v = f.Default
		}
		ptr := &v
		state.values[f.Key] = ptr
		state.order = append(state.order, f.Key)

		if len(f.Options) > 0 {
			settings = append(settings, huh.NewSelect[string]().
				Title(f.Label).
				Options(huh.NewOptions(f.Options...)...).
				Value(ptr))
			continue
		}
		input := huh.NewInput().Title(f.Label).Value(ptr)
		if f.Required {
			label := f.Label
			input = input.Validate(func(s string) error {
				return validation.Var(label, s, "notblank")
			})
		}
		settings = append(settings, input)
	}

	state.Prompt = initial["prompt"]
	prompt := huh.NewText().
		Title("What should the " + agent.Title + " work on?").
		Value(&state.Prompt).
		Validate(validatePrompt)

	groups := make([]*huh.Group, 0, 2)
	if len(settings) > 0 {
		groups = append(groups, huh.NewGroup(settings...).Title(agent.Title).Description(agent.Description))
	}
	groups = append(groups, huh.NewGroup(prompt))
	return huh.NewForm(groups...).WithTheme(huh.ThemeCharm()), state
}

func validatePrompt(s string) error {
	return validation.Var("prompt", s, "notblank,maxbytes")
}
