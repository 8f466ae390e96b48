// Package sbxerr defines the error kinds raised across the SDK.
package sbxerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error the way the Management API and envd surface
// failures, independent of the transport that produced it.
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindAuthentication  Kind = "authentication"
	KindNotFound        Kind = "not_found"
	KindNotEnoughSpace  Kind = "not_enough_space"
	KindRateLimit       Kind = "rate_limit"
	KindTemplate        Kind = "template"
	KindTimeout         Kind = "timeout"
	KindCommandExit     Kind = "command_exit"
	KindSandbox         Kind = "sandbox"
)

// Error is the single error type raised by this SDK for anything other than
// a non-zero command exit (see CommandExitError).
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s (http %d)", e.Kind, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a plain Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// FromHTTPStatus implements the status -> Kind mapping table from the
// transport spec: 400 InvalidArgument, 401 Authentication, 404 NotFound,
// 429 RateLimit, 502 Timeout, 507 NotEnoughSpace, anything else >= 300 is
// Sandbox. message should already have had the JSON {"message": ...}
// envelope unwrapped by the caller, falling back to the raw body.
func FromHTTPStatus(status int, message string) *Error {
	kind := KindSandbox
	switch status {
	case 400:
		kind = KindInvalidArgument
	case 401:
		kind = KindAuthentication
	case 404:
		kind = KindNotFound
	case 429:
		kind = KindRateLimit
	case 502:
		kind = KindTimeout
	case 507:
		kind = KindNotEnoughSpace
	}
	return &Error{Kind: kind, Message: message, HTTPStatus: status}
}

// CommandExitError carries the terminal state of a foreground command run
// that exited non-zero while the caller did not opt into tolerant mode.
type CommandExitError struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Message  string
}

func (e *CommandExitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("command exited with code %d: %s", e.ExitCode, e.Message)
	}
	return fmt.Sprintf("command exited with code %d", e.ExitCode)
}

func (e *CommandExitError) Kind() Kind { return KindCommandExit }

// Is reports whether err (or anything it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	if k == KindCommandExit {
		var ce *CommandExitError
		return errors.As(err, &ce)
	}
	return false
}

// IsNotFound is shorthand for Is(err, KindNotFound); also used by Exists().
func IsNotFound(err error) bool { return Is(err, KindNotFound) }
