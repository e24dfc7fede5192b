package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindProtocol  Kind = "protocol"
	KindTransport Kind = "transport"
	KindParameter Kind = "parameter"
	KindPlugin    Kind = "plugin"
	KindBinding   Kind = "binding"
	KindInvariant Kind = "invariant"
	KindRenderer  Kind = "renderer"
	KindConfig    Kind = "config"
)

// Error is a structured error with a registered code.
type Error struct {
	// Code is a unique error identifier (e.g., "B101").
	Code string

	// Kind is the error class.
	Kind Kind

	// Message is a short description of the error.
	Message string

	// Detail is the situation-specific explanation, e.g. the offending name.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	if e.Code != "" {
		return e.Code + ": " + msg
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithDetailf adds a formatted detail to the error.
func (e *Error) WithDetailf(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:    code,
		Kind:    template.Kind,
		Message: template.Message,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error. Errors that already carry a
// code are returned unchanged.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if stderrors.As(err, &be) {
		return be
	}
	return New(code).Wrap(err)
}

// KindOf returns the kind of the first coded error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var be *Error
	if stderrors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
