package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error by how the ingestion and build stages react to it.
type Kind string

const (
	KindInvalidRange      Kind = "invalid_range"
	KindAuthentication    Kind = "authentication"
	KindRemoteUnavailable Kind = "remote_unavailable"
	KindSchemaValidation  Kind = "schema_validation"
	KindCacheCorruption   Kind = "cache_corruption"
	KindPersistence       Kind = "persistence"
)

// Error is the typed error used across the pipeline.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error

	// Retryable marks a transient failure (429, 5xx, network) that the
	// remote client may try again.
	Retryable bool
}

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrInvalidRange      = &Error{Kind: KindInvalidRange, Message: "invalid date range"}
	ErrAuthentication    = &Error{Kind: KindAuthentication, Message: "authentication failed"}
	ErrRemoteUnavailable = &Error{Kind: KindRemoteUnavailable, Message: "remote service unavailable"}
	ErrSchemaValidation  = &Error{Kind: KindSchemaValidation, Message: "schema validation failed"}
	ErrCacheCorruption   = &Error{Kind: KindCacheCorruption, Message: "cache entry corrupt"}
	ErrPersistence       = &Error{Kind: KindPersistence, Message: "persistence failed"}
)

// NewError creates an Error of the given kind.
func NewError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err must abort the whole run. Remote outages,
// malformed payloads and corrupt cache entries are contained per chunk;
// everything else, including untyped errors and cancellation, is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch KindOf(err) {
	case KindRemoteUnavailable, KindSchemaValidation, KindCacheCorruption:
		return false
	default:
		return true
	}
}

// NewRetryableError creates a transient RemoteUnavailable error.
func NewRetryableError(op, message string, cause error) *Error {
	return &Error{Kind: KindRemoteUnavailable, Op: op, Message: message, Cause: cause, Retryable: true}
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
