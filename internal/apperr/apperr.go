// Package apperr defines the error kinds surfaced by the GreaseDesk API.
// Services return *Error values (or wrap them); the HTTP layer maps the
// Kind to a status code and the Code to a stable machine-readable string.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotAuthenticated
	KindTenantContextMissing
	KindForbidden
	KindConflict
	KindNotFound
	KindGone
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindTenantContextMissing:
		return "tenant_context_missing"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindGone:
		return "gone"
	default:
		return "internal"
	}
}

// Error is the typed error carried through services.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Fields holds per-field validation messages.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Code when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels. Compare with errors.Is.
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrNotAuthenticated     = &Error{Kind: KindNotAuthenticated, Code: "not_authenticated", Message: "Not authenticated."}
	ErrUserNotFound         = &Error{Kind: KindNotAuthenticated, Code: "user_not_found", Message: "User not found."}
	ErrInvalidCredentials   = &Error{Kind: KindNotAuthenticated, Code: "invalid_credentials", Message: "Invalid email or password."}
	ErrTenantContextMissing = &Error{Kind: KindTenantContextMissing, Code: "tenant_context_missing", Message: "Onboarding incomplete: no group is linked to this account."}
	ErrSiteMissing          = &Error{Kind: KindTenantContextMissing, Code: "site_missing", Message: "Onboarding incomplete: no site is linked to this account."}
	ErrOnboardingIncomplete = &Error{Kind: KindTenantContextMissing, Code: "onboarding_incomplete", Message: "Rates must be configured before onboarding can be completed."}
	ErrForbidden            = &Error{Kind: KindForbidden, Code: "forbidden", Message: "You do not have permission to perform this action."}
	ErrCrossTenant          = &Error{Kind: KindForbidden, Code: "cross_tenant", Message: "The requested resource does not belong to your organisation."}
	ErrConflict             = &Error{Kind: KindConflict, Code: "conflict", Message: "The request conflicts with existing data."}
	ErrEmailAlreadyExists   = &Error{Kind: KindConflict, Code: "email_already_exists", Message: "An account with this email already exists."}
	ErrNotFound             = &Error{Kind: KindNotFound, Code: "not_found", Message: "Not found."}
	ErrTokenNotFound        = &Error{Kind: KindNotFound, Code: "token_not_found", Message: "Token not found or already used."}
	ErrTokenExpired         = &Error{Kind: KindGone, Code: "token_expired", Message: "Token expired."}
	ErrInternal             = &Error{Kind: KindInternal, Code: "internal_error", Message: "Internal server error."}
)

// Validation builds a validation error with per-field messages.
func Validation(message string, fields map[string]string) *Error {
	if message == "" {
		message = "Validation failed."
	}
	return &Error{Kind: KindValidation, Code: "validation_error", Message: message, Fields: fields}
}

// Wrap attaches a cause to a copy of a sentinel so errors.Is still matches.
func Wrap(sentinel *Error, cause error) *Error {
	cp := *sentinel
	cp.Err = cause
	return &cp
}

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(cause error) *Error {
	return Wrap(ErrInternal, cause)
}

// As extracts an *Error from err. Errors that are not typed become Internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf reports the kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	return As(err).Kind
}
