// Package rerrors provides the structured error classification used
// throughout the recommendation engine: every error that crosses a
// component boundary is a *Error carrying a Kind from the fixed taxonomy
// below, so callers can branch on "what kind of failure is this" without
// string-matching messages.
package rerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error into one of the fixed categories the
// recommendation service, engines, and vector store are allowed to return.
type Kind string

const (
	KindEntityNotFound    Kind = "EntityNotFound"
	KindUserNotFound      Kind = "UserNotFound"
	KindTenantNotFound    Kind = "TenantNotFound"
	KindInvalidRequest    Kind = "InvalidRequest"
	KindValidationError   Kind = "ValidationError"
	KindDatabaseError     Kind = "DatabaseError"
	KindCacheError        Kind = "CacheError"
	KindVectorError       Kind = "VectorError"
	KindAuthError         Kind = "AuthError"
	KindConfigError       Kind = "ConfigError"
	KindRateLimitExceeded Kind = "RateLimitExceeded"
	KindInternalError     Kind = "InternalError"
)

// Error is a classified, wrappable error. Message is a human-readable
// summary; cause (if present) is reachable via Unwrap so callers can use
// errors.Is/errors.As against sentinel or driver errors further down the
// stack.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a classified error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, attaching message as context and
// preserving err as the cause with a stack trace via pkg/errors so the
// origin of a lower-level failure (a sqlx error, a redis error) is never
// lost.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*Error); ok {
		return &Error{Kind: kind, Message: message, Details: ce.Details, cause: errors.WithStack(ce)}
	}
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(err)}
}

// WithDetails attaches structured context (e.g. tenant_id, entity_id) to
// the error for logging.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternalError for
// unclassified errors so callers always get a sensible taxonomy member.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternalError
}
