package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents an API error.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Details   string    `json:"details,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrQuota          ErrorType = "quota_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrProvider       ErrorType = "provider_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewQuotaError creates an upstream quota or billing exhaustion error.
func NewQuotaError(message string, underlying error) *Error {
	e := &Error{
		Type:    ErrQuota,
		Message: message,
		cause:   underlying,
	}
	if underlying != nil {
		e.Details = underlying.Error()
	}
	return e
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewProviderError creates a provider-specific error.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:    ErrProvider,
		Message: fmt.Sprintf("%s: %v", provider, underlying),
		Details: underlying.Error(),
		cause:   underlying,
	}
}

// Wrap attaches an underlying cause to the error and returns it.
func (e *Error) Wrap(underlying error) *Error {
	e.cause = underlying
	if underlying != nil && e.Details == "" {
		e.Details = underlying.Error()
	}
	return e
}

// IsType reports whether err is, or wraps, a *Error of type t.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	return errors.As(err, &ce) && ce != nil && ce.Type == t
}

var quotaMarkers = []string{
	"quota",
	"insufficient_quota",
	"billing",
	"credit",
	"resource_exhausted",
	"payment required",
}

// LooksLikeQuota reports whether an upstream error message describes quota,
// billing or credit exhaustion.
func LooksLikeQuota(message string) bool {
	msg := strings.ToLower(message)
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
