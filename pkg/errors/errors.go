package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors - Sentinel errors for use with errors.Is()
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource already exists")
	ErrInternalServer     = errors.New("internal server error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidation         = errors.New("validation error")
	ErrConfig             = errors.New("invalid configuration")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantInactive     = errors.New("tenant inactive")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrQuotaExceeded      = errors.New("quota exceeded")
)

// Token errors wrap ErrUnauthenticated so callers that only care about the
// outcome can match the parent.
var (
	ErrTokenExpired     = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrTokenInvalid     = fmt.Errorf("%w: token invalid", ErrUnauthenticated)
	ErrAudienceMismatch = fmt.Errorf("%w: audience mismatch", ErrUnauthenticated)
	ErrWrongTokenKind   = fmt.Errorf("%w: wrong token kind", ErrUnauthenticated)
)

// Custom error type with context
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructors
func NotFound(msg string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: msg, Err: ErrNotFound}
}

func Unauthenticated(msg string) *AppError {
	return &AppError{Code: "UNAUTHENTICATED", Message: msg, Err: ErrUnauthenticated}
}

func Forbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg, Err: ErrForbidden}
}

func BadRequest(msg string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: msg, Err: ErrBadRequest}
}

func Conflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Err: ErrConflict}
}

func InternalServer(msg string, err error) *AppError {
	return &AppError{Code: "INTERNAL_SERVER_ERROR", Message: msg, Err: err}
}

func InvalidCredentials() *AppError {
	return &AppError{Code: "INVALID_CREDENTIALS", Message: "invalid email or password", Err: ErrInvalidCredentials}
}

func Validation(msg string) *AppError {
	return &AppError{Code: "VALIDATION", Message: msg, Err: ErrValidation}
}

func Config(msg string) *AppError {
	return &AppError{Code: "CONFIG", Message: msg, Err: ErrConfig}
}

// TenantNotFound is also used for inactive and suspended tenants so that a
// caller cannot tell them apart from a subdomain that was never registered.
func TenantNotFound() *AppError {
	return &AppError{Code: "TENANT_NOT_FOUND", Message: "agency not found", Err: ErrTenantNotFound}
}

func RateLimited(msg string) *AppError {
	return &AppError{Code: "RATE_LIMITED", Message: msg, Err: ErrRateLimited}
}

func ServiceUnavailable(msg string, err error) *AppError {
	wrapped := ErrServiceUnavailable
	if err != nil {
		wrapped = fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return &AppError{Code: "SERVICE_UNAVAILABLE", Message: msg, Err: wrapped}
}

func QuotaExceeded(msg string) *AppError {
	return &AppError{Code: "QUOTA_EXCEEDED", Message: msg, Err: ErrQuotaExceeded}
}

// Token wraps a token sentinel (ErrTokenExpired, ErrTokenInvalid, ...) with a
// public message.
func Token(msg string, sentinel error) *AppError {
	return &AppError{Code: "UNAUTHENTICATED", Message: msg, Err: sentinel}
}

// Message returns the public message of an AppError anywhere in the chain, or
// fallback when none is present.
func Message(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

// PublicError maps an error to the status code and message a client may see.
// Messages of 5xx errors other than 503 are never exposed.
func PublicError(err error) (int, string) {
	status, fallback := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		return status, fallback
	}
	return status, Message(err, fallback)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, ErrTenantNotFound), errors.Is(err, ErrTenantInactive):
		return http.StatusNotFound, "agency not found"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrQuotaExceeded):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "resource conflict"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
