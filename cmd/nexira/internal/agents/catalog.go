// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents describes the domain agents (HR, Marketing, Finance, ...)
// and runs them. Every agent is data: a slug, a backend tool or endpoint,
// and the configuration fields its form shows. One validation layer and one
// runner serve all of them.
package agents

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/NexiraAI/nexira/pkg/validation"
)

// Field is one configuration input of an agent.
type Field struct {
	Key      string
	Label    string
	Options  []string // empty means free text
	Default  string
	Required bool
}

// Agent is one entry of the marketplace.
type Agent struct {
	Slug        string
	Title       string
	Description string

	// ToolType names the backend tool for streaming agents.
	ToolType string

	// Endpoint is the REST path for non-streaming agents.
	Endpoint string

	Streaming bool
	Fields    []Field
}

// Route is the client-side path of the agent's page.
func (a Agent) Route() string { return "/" + a.Slug + "-analyst" }

// Field returns the field with key.
func (a Agent) Field(key string) (Field, bool) {
	for _, f := range a.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

var tones = []string{"professional", "friendly", "persuasive", "playful"}

var catalog = []Agent{
	{
		Slug:        "hr",
		Title:       "HR Analyst",
		Description: "CV screening, job descriptions and interview plans",
		ToolType:    "hr_analyst",
		Streaming:   true,
		Fields: []Field{
			{Key: "task", Label: "Task", Options: []string{"cv_screening", "job_description", "interview_questions", "policy_review"}, Default: "cv_screening", Required: true},
			{Key: "role", Label: "Role"},
		},
	},
	{
		Slug:        "marketing",
		Title:       "Marketing Analyst",
		Description: "Campaign copy and content plans per channel",
		ToolType:    "marketing_analyst",
		Streaming:   true,
		Fields: []Field{
			{Key: "platform", Label: "Platform", Options: []string{"facebook", "instagram", "tiktok", "linkedin", "email", "website"}, Default: "facebook", Required: true},
			{Key: "tone", Label: "Tone", Options: tones, Default: "friendly", Required: true},
		},
	},
	{
		Slug:        "finance",
		Title:       "Finance Analyst",
		Description: "Budgets, cash flow and forecasts",
		Endpoint:    "/finance/analyze",
		Fields: []Field{
			{Key: "analysis_type", Label: "Analysis", Options: []string{"budget", "cashflow", "investment", "forecast"}, Default: "budget", Required: true},
			{Key: "currency", Label: "Currency", Options: []string{"VND", "USD", "EUR"}, Default: "VND", Required: true},
		},
	},
	{
		Slug:        "qa",
		Title:       "QA Analyst",
		Description: "Test plans and test cases from requirements",
		Endpoint:    "/qa/generate-tests",
		Fields: []Field{
			{Key: "test_type", Label: "Test type", Options: []string{"unit", "integration", "e2e", "manual"}, Default: "manual", Required: true},
			{Key: "framework", Label: "Framework", Options: []string{"none", "jest", "pytest", "go", "selenium"}, Default: "none"},
		},
	},
	{
		Slug:        "design",
		Title:       "Design Analyst",
		Description: "Creative briefs, critiques and palettes",
		ToolType:    "design_analyst",
		Streaming:   true,
		Fields: []Field{
			{Key: "style", Label: "Style", Options: []string{"minimal", "modern", "corporate", "playful"}, Default: "modern", Required: true},
			{Key: "output", Label: "Output", Options: []string{"brief", "critique", "palette"}, Default: "brief", Required: true},
		},
	},
	{
		Slug:        "gamedev",
		Title:       "Game Dev Analyst",
		Description: "Game concepts, mechanics and level ideas",
		ToolType:    "gamedev_analyst",
		Streaming:   true,
		Fields: []Field{
			{Key: "genre", Label: "Genre", Options: []string{"rpg", "puzzle", "action", "strategy", "casual"}, Default: "casual", Required: true},
			{Key: "platform", Label: "Platform", Options: []string{"mobile", "pc", "console", "web"}, Default: "mobile", Required: true},
		},
	},
	{
		Slug:        "sales",
		Title:       "Sales Analyst",
		Description: "Pipeline reviews and deal strategy",
		Endpoint:    "/sales/analyze",
		Fields: []Field{
			{Key: "stage", Label: "Stage", Options: []string{"prospecting", "qualification", "proposal", "negotiation", "closing"}, Default: "prospecting", Required: true},
			{Key: "tone", Label: "Tone", Options: tones, Default: "professional"},
		},
	},
	{
		Slug:        "telesales",
		Title:       "Telesales Analyst",
		Description: "Call scripts and objection handling",
		ToolType:    "telesales_analyst",
		Streaming:   true,
		Fields: []Field{
			{Key: "script_type", Label: "Script", Options: []string{"cold_call", "follow_up", "objection_handling", "closing"}, Default: "cold_call", Required: true},
			{Key: "tone", Label: "Tone", Options: tones, Default: "friendly"},
		},
	},
	{
		Slug:        "uiux",
		Title:       "UI/UX Analyst",
		Description: "Usability and accessibility reviews",
		ToolType:    "uiux_analyst",
		Streaming:   true,
		Fields: []Field{
			{Key: "platform", Label: "Platform", Options: []string{"web", "ios", "android"}, Default: "web", Required: true},
			{Key: "focus", Label: "Focus", Options: []string{"usability", "accessibility", "visual", "flow"}, Default: "usability", Required: true},
		},
	},
	{
		Slug:        "data",
		Title:       "Data Analyst",
		Description: "Descriptive and predictive analysis of your data",
		Endpoint:    "/data/analyze",
		Fields: []Field{
			{Key: "analysis", Label: "Analysis", Options: []string{"descriptive", "diagnostic", "predictive", "visualization"}, Default: "descriptive", Required: true},
			{Key: "output_format", Label: "Output", Options: []string{"summary", "table", "chart_spec"}, Default: "summary"},
		},
	},
	{
		Slug:        "training",
		Title:       "Training Analyst",
		Description: "Course outlines, quizzes and workshops",
		ToolType:    "training_analyst",
		Streaming:   true,
		Fields: []Field{
			{Key: "audience", Label: "Audience", Options: []string{"new_hire", "manager", "technical", "sales"}, Default: "new_hire", Required: true},
			{Key: "format", Label: "Format", Options: []string{"course_outline", "quiz", "workshop", "microlearning"}, Default: "course_outline", Required: true},
			{Key: "duration", Label: "Duration"},
		},
	},
}

// All returns the catalog in marketplace order.
func All() []Agent {
	return slices.Clone(catalog)
}

// Lookup finds an agent by slug or by route ("/hr-analyst", "hr-analyst").
func Lookup(name string) (Agent, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimSuffix(name, "-analyst")
	for _, a := range catalog {
		if a.Slug == name {
			return a, true
		}
	}
	return Agent{}, false
}

// Validate fills defaults into values and checks required fields and
// option membership. Unknown keys are rejected. The input map is not
// modified.
func (a Agent) Validate(values map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(a.Fields))
	verr := &validation.Error{Subject: a.Slug + " agent"}

	known := make(map[string]bool, len(a.Fields))
	for _, f := range a.Fields {
		known[f.Key] = true
		v := strings.TrimSpace(values[f.Key])
		if v == "" {
			v = f.Default
		}
		switch {
		case v == "" && f.Required:
			verr.Fields = append(verr.Fields, validation.FieldError{
				Field: f.Key, Rule: "required", Message: fmt.Sprintf("%s is required", f.Label),
			})
			continue
		case v != "" && len(f.Options) > 0 && !slices.Contains(f.Options, v):
			verr.Fields = append(verr.Fields, validation.FieldError{
				Field: f.Key, Rule: "oneof",
				Message: fmt.Sprintf("%s must be one of [%s]", f.Label, strings.Join(f.Options, " ")),
			})
			continue
		}
		if v != "" {
			out[f.Key] = v
		}
	}

	unknown := make([]string, 0)
	for k := range values {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		verr.Fields = append(verr.Fields, validation.FieldError{
			Field: k, Rule: "unknown", Message: fmt.Sprintf("%s is not a setting of the %s", k, a.Title),
		})
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return out, nil
}

// ParseValues turns key=value pairs from the command line into a map.
func ParseValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", validation.ErrInvalid, p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
