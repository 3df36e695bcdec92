package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryFraming    Category = "framing"
	CategoryValidation Category = "validation"
	CategoryDevice     Category = "device"
	CategorySubscriber Category = "subscriber"
	CategorySubmission Category = "submission"
	CategoryConfig     Category = "config"
	CategoryCLI        Category = "cli"
)

// SproutError is a structured error with a code, category and hints.
type SproutError struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the error type (framing, validation, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *SproutError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *SproutError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *SproutError) WithSuggestion(s string) *SproutError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *SproutError) WithDetail(d string) *SproutError {
	e.Detail = d
	return e
}

// WithDetailf adds a formatted explanation to the error.
func (e *SproutError) WithDetailf(format string, args ...any) *SproutError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap wraps another error.
func (e *SproutError) Wrap(err error) *SproutError {
	e.Wrapped = err
	return e
}

// New creates a SproutError from a registered error code.
func New(code string) *SproutError {
	template, ok := registry[code]
	if !ok {
		return &SproutError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &SproutError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new SproutError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *SproutError {
	return &SproutError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a SproutError.
func FromError(err error, code string) *SproutError {
	if err == nil {
		return nil
	}
	var se *SproutError
	if stderrors.As(err, &se) {
		return se
	}
	return New(code).Wrap(err)
}

// CategoryOf returns the category of the first SproutError in err's chain,
// or "" when there is none.
func CategoryOf(err error) Category {
	var se *SproutError
	if stderrors.As(err, &se) {
		return se.Category
	}
	return ""
}

// CodeOf returns the code of the first SproutError in err's chain.
func CodeOf(err error) string {
	var se *SproutError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}
