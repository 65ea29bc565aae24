// Package apperr implements the error taxonomy from the control plane's
// error handling design: a small set of tagged Kinds, propagated instead of
// matched on error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind tags why an operation failed, so callers can decide how to react
// without parsing error text.
type Kind string

const (
	NotFound      Kind = "not_found"
	Conflict      Kind = "conflict"
	Validation    Kind = "validation"
	ResourceBusy  Kind = "resource_busy"
	AgentRPC      Kind = "agent_rpc"
	ValidationRPC Kind = "validation_rpc"
	BusPublish    Kind = "bus_publish"
	Internal      Kind = "internal"
)

// Error wraps an underlying cause with a Kind and an optional set of
// validation field details.
type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Cause   error
}

// FieldError is one entry of a Validation error's Details list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a bare Error of the given Kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFoundf is a convenience constructor for the common NotFound case.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, format, args...)
}

// Conflictf is a convenience constructor for invalid state-transition errors.
func Conflictf(format string, args ...any) *Error {
	return New(Conflict, format, args...)
}

// Validationf builds a Validation error, optionally with field details.
func Validationf(details []FieldError, format string, args ...any) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...), Details: details}
}

// KindOf extracts the Kind of err, defaulting to Internal when err does not
// carry one (or is nil, in which case KindOf returns "" — callers should
// guard on err != nil first).
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Recoverable reports whether err belongs to the "locally recovered" class
// from the error handling design: logged and swallowed, never propagated to
// the caller or allowed to fail a state transition.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case BusPublish:
		return true
	default:
		return false
	}
}

// StatusHint is the conventional REST status code for a Kind, used by the
// HTTP boundary to translate an apperr.Error without string matching.
func StatusHint(kind Kind) int {
	switch kind {
	case NotFound:
		return 404
	case Conflict:
		return 409
	case Validation:
		return 400
	case ResourceBusy:
		return 503
	default:
		return 500
	}
}
