// Package apperrors classifies errors raised anywhere in the request
// pipeline into the small set of kinds the HTTP boundary understands.
//
// Components return their own sentinel errors (auth.ErrExpiredToken,
// tenant.ErrInvalidTenantID, rbac.ErrForbidden, ...). From maps them onto
// a Kind with a status code, a machine code and a client-safe detail.
// The wrapped error is kept for logging but never rendered.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/rbac"
	"github.com/platinummonkey/estateops/pkg/records"
	"github.com/platinummonkey/estateops/pkg/tenant"
)

// Kind is a category of failure
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindInvalidTenant
	KindRateLimited
	KindNotFound
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindInvalidTenant:
		return "invalid_tenant"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidTenant, KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Machine codes carried in the error envelope
const (
	CodeTokenExpired            = "token_expired"
	CodeTokenMalformed          = "token_malformed"
	CodeTokenWrongKind          = "token_wrong_kind"
	CodeCredentialMissing       = "credential_missing"
	CodeCredentialSchemeInvalid = "credential_scheme_invalid"
	CodeUnauthorized            = "unauthorized"
	CodeForbidden               = "forbidden"
	CodeInvalidTenant           = "invalid_tenant"
	CodeRateLimited             = "rate_limited"
	CodeNotFound                = "not_found"
	CodeConflict                = "conflict"
	CodeValidation              = "validation_error"
	CodeInternal                = "internal_error"
)

// Error is a classified failure
type Error struct {
	Kind   Kind
	Code   string
	Detail string
	// RetryAfter is set for KindRateLimited
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code for the error
func (e *Error) Status() int { return e.Kind.Status() }

// New creates an error of the given kind
func New(kind Kind, code, detail string) *Error {
	return &Error{Kind: kind, Code: code, Detail: detail}
}

// Wrap classifies err under kind, keeping it for logs
func Wrap(err error, kind Kind, code, detail string) *Error {
	return &Error{Kind: kind, Code: code, Detail: detail, Err: err}
}

// RateLimited builds the 429 error with a retry hint
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Code:       CodeRateLimited,
		Detail:     "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// Validation builds a 400 error for a rejected request body or parameter
func Validation(detail string) *Error {
	return New(KindValidation, CodeValidation, detail)
}

// NotFound builds a 404 error
func NotFound(detail string) *Error {
	return New(KindNotFound, CodeNotFound, detail)
}

// From classifies any error. An *Error anywhere in the chain is returned
// as is; known sentinels are mapped to their kind; anything else becomes
// an internal error with a generic detail.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	// codec failures first: they arrive wrapped in auth.ErrUnauthorized
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return Wrap(err, KindUnauthorized, CodeTokenExpired, "token has expired")
	case errors.Is(err, auth.ErrWrongTokenKind):
		return Wrap(err, KindUnauthorized, CodeTokenWrongKind, "token type is not accepted here")
	case errors.Is(err, auth.ErrMalformedToken):
		return Wrap(err, KindUnauthorized, CodeTokenMalformed, "token is invalid")
	case errors.Is(err, auth.ErrMissingCredential):
		return Wrap(err, KindUnauthorized, CodeCredentialMissing, "authentication credentials were not provided")
	case errors.Is(err, auth.ErrInvalidCredentialScheme):
		return Wrap(err, KindUnauthorized, CodeCredentialSchemeInvalid, "authorization header must use the Bearer scheme")
	case errors.Is(err, auth.ErrUnauthorized):
		return Wrap(err, KindUnauthorized, CodeUnauthorized, "authentication failed")
	}

	var denied *rbac.DeniedError
	if errors.As(err, &denied) {
		return Wrap(err, KindForbidden, CodeForbidden, denied.Detail())
	}

	switch {
	case errors.Is(err, rbac.ErrForbidden):
		return Wrap(err, KindForbidden, CodeForbidden, "permission denied")
	case errors.Is(err, tenant.ErrInvalidTenantID):
		return Wrap(err, KindInvalidTenant, CodeInvalidTenant, "invalid tenant id")
	case errors.Is(err, tenant.ErrCrossTenant), errors.Is(err, records.ErrNotFound):
		// another tenant's record is reported exactly like a missing one
		return Wrap(err, KindNotFound, CodeNotFound, "resource not found")
	case errors.Is(err, records.ErrConflict):
		return Wrap(err, KindConflict, CodeConflict, "resource was modified concurrently")
	case errors.Is(err, records.ErrValidation):
		return Wrap(err, KindValidation, CodeValidation, validationDetail(err))
	}

	return Wrap(err, KindInternal, CodeInternal, "internal server error")
}

// validationDetail exposes the field-level message of a records
// validation failure, which is built from client input only.
func validationDetail(err error) string {
	var fe *records.FieldError
	if errors.As(err, &fe) {
		return fe.Message()
	}
	return "request validation failed"
}
