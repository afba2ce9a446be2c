// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides boundary validation for requests sent to and
// payloads received from the Nexira backend.
//
// Struct validation uses go-playground/validator tags; field names in error
// messages come from the json tag, so a message reads "ticket_number is
// required" rather than "TicketNumber". Identifier validators guard values
// that are interpolated into REST paths.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MaxMessageContentBytes bounds a single chat message or ticket response.
const MaxMessageContentBytes = 256 * 1024

// ErrInvalid is matched by every error this package returns.
var ErrInvalid = errors.New("invalid input")

// FieldError describes one failed rule.
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

// Error is a validation failure for one value, listing every failed field.
type Error struct {
	// Subject names what was validated ("ticket", "conversation").
	Subject string
	Fields  []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	if e.Subject == "" {
		return "validation failed: " + strings.Join(msgs, "; ")
	}
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(msgs, "; "))
}

// Is makes errors.Is(err, ErrInvalid) true.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

// HasField reports whether field failed validation.
func (e *Error) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names for validation errors
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = validate.RegisterValidation("notblank", validateNotBlank)
	_ = validate.RegisterValidation("pathsafe", validatePathSafe)
}

// validateMaxBytes checks byte length, not rune count.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validatePathSafe(fl validator.FieldLevel) bool {
	return ValidateID(fl.Field().String()) == nil
}

// Struct validates s against its `validate` tags. subject prefixes the
// error message.
func Struct(subject string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Subject: subject, Fields: []FieldError{{Message: err.Error()}}}
	}

	out := &Error{Subject: subject}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

// Var validates a single value against a tag expression.
func Var(field string, value any, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &Error{Fields: []FieldError{{
			Field:   field,
			Rule:    verrs[0].Tag(),
			Message: ruleMessage(field, verrs[0].Tag(), verrs[0].Param(), verrs[0].Kind()),
		}}}
	}
	return &Error{Fields: []FieldError{{Field: field, Message: err.Error()}}}
}

func fieldMessage(fe validator.FieldError) string {
	return ruleMessage(fe.Field(), fe.Tag(), fe.Param(), fe.Kind())
}

func ruleMessage(field, tag, param string, kind reflect.Kind) string {
	switch tag {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		if kind == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if kind == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters long", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "maxbytes":
		return fmt.Sprintf("%s exceeds %d bytes", field, MaxMessageContentBytes)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, param)
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "pathsafe":
		return fmt.Sprintf("%s contains characters not allowed in an identifier", field)
	default:
		return fmt.Sprintf("%s failed validation for '%s'", field, tag)
	}
}

// =============================================================================
// Identifier Validators
// =============================================================================

// idPattern allows Mongo ObjectIDs, UUIDs, ticket numbers (TKT-2025-0001)
// and numeric ids.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:\-]{0,127}$`)

// ValidateID checks an identifier that will be placed in a URL path.
//
// Example:
//
//	if err := validation.ValidateID(conversationID); err != nil {
//	    return fmt.Errorf("get conversation: %w", err)
//	}
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &Error{Fields: []FieldError{{Field: "id", Rule: "required", Message: "id is required"}}}
	}
	if !idPattern.MatchString(id) {
		return &Error{Fields: []FieldError{{
			Field:   "id",
			Rule:    "pathsafe",
			Message: fmt.Sprintf("invalid id %q", id),
		}}}
	}
	return nil
}

// ValidateS3Key checks an attachment object key returned by the backend
// before it is echoed back in a query string.
func ValidateS3Key(key string) error {
	if key == "" {
		return &Error{Fields: []FieldError{{Field: "s3_key", Rule: "required", Message: "s3_key is required"}}}
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return &Error{Fields: []FieldError{{Field: "s3_key", Rule: "pathsafe", Message: fmt.Sprintf("invalid s3_key %q", key)}}}
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return &Error{Fields: []FieldError{{Field: "s3_key", Rule: "pathsafe", Message: "s3_key contains control characters"}}}
		}
	}
	return nil
}

// ValidateFilename rejects names that would escape the download directory.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return &Error{Fields: []FieldError{{Field: "filename", Rule: "pathsafe", Message: fmt.Sprintf("invalid filename %q", name)}}}
	}
	return nil
}
