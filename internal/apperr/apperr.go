// Package apperr defines the error taxonomy shared by the hierarchy and
// lifecycle engines. Every engine operation fails with exactly one kind,
// and each kind maps to a stable HTTP status class so the transport layer
// never needs to inspect error text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an engine failure.
type Kind int

const (
	// Unexpected is anything not covered by a more specific kind. It is
	// always logged and never silently swallowed.
	Unexpected Kind = iota
	// NotFound means the subject or category does not exist.
	NotFound
	// Forbidden means the caller fails the ownership/privilege check.
	Forbidden
	// Unauthenticated means no caller identity could be resolved.
	Unauthenticated
	// InvalidTransition means the requested action is not legal from the
	// subject's current state.
	InvalidTransition
	// InvalidParent means a hierarchy rule was violated (vertical
	// mismatch, or a parent that is a descendant of the node).
	InvalidParent
	// Conflict means a concurrent write collided on update.
	Conflict
	// ValidationFailed means the request body failed transport-level
	// validation before reaching an engine.
	ValidationFailed
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Unauthenticated:
		return "unauthenticated"
	case InvalidTransition:
		return "invalid_transition"
	case InvalidParent:
		return "invalid_parent"
	case Conflict:
		return "conflict"
	case ValidationFailed:
		return "validation_failed"
	default:
		return "unexpected"
	}
}

// HTTPStatus maps a kind to its stable status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Unauthenticated:
		return http.StatusUnauthorized
	case InvalidTransition:
		return http.StatusConflict
	case InvalidParent:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case ValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified application error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain, defaulting to Unexpected.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Unexpected
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
