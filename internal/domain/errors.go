// Package domain provides the canonical data model and error types for the gateway.
package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeValidation indicates a malformed or invalid request.
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeAuthentication indicates a missing or invalid credential.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeTenantNotFound indicates the tenant could not be resolved or does not exist.
	ErrorTypeTenantNotFound ErrorType = "tenant_not_found"

	// ErrorTypeNotFound indicates a requested resource does not exist.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeQuotaExceeded indicates the tenant's plan limits were reached.
	ErrorTypeQuotaExceeded ErrorType = "quota_exceeded"

	// ErrorTypeRateLimited indicates request rate limiting was triggered.
	ErrorTypeRateLimited ErrorType = "rate_limited"

	// ErrorTypeTimeout indicates the handler exceeded its per-route deadline.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeUpstream wraps a store or collaborator failure after retries are exhausted.
	ErrorTypeUpstream ErrorType = "upstream"

	// ErrorTypePayloadTooLarge indicates the request body exceeded the route limit.
	ErrorTypePayloadTooLarge ErrorType = "payload_too_large"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeTenantRequired    ErrorCode = "tenant_required"
	ErrorCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	ErrorCodeQuotaExceeded     ErrorCode = "quota_exceeded"
	ErrorCodeInvalidToken      ErrorCode = "invalid_token"
	ErrorCodeRequestTimeout    ErrorCode = "request_timeout"
	ErrorCodePayloadTooLarge   ErrorCode = "payload_too_large"
	ErrorCodeInternal          ErrorCode = "internal_error"
)

// APIError is the canonical error shape returned by handlers and translated
// into the response envelope by the dispatcher. Internals never leak beyond
// Message and Code.
type APIError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Param is the parameter that caused the error (if applicable)
	Param string `json:"param,omitempty"`

	// Details carries structured context for client display,
	// e.g. quota status on a quota_exceeded error.
	Details map[string]any `json:"details,omitempty"`

	// RetryAfter is set on rate-limited errors.
	RetryAfter time.Duration `json:"-"`

	// StatusCode is the suggested HTTP status code
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeQuotaExceeded:
		return http.StatusForbidden
	case ErrorTypeTenantNotFound, ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeTimeout:
		return http.StatusRequestTimeout
	case ErrorTypePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case ErrorTypeUpstream, ErrorTypeServer:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// WithDetails attaches structured detail for client display.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	e.Details = details
	return e
}

// WithRetryAfter sets the retry hint on a rate-limited error.
func (e *APIError) WithRetryAfter(d time.Duration) *APIError {
	e.RetryAfter = d
	return e
}

// Convenience constructors for common errors

// ErrValidation creates a bad-input error.
func ErrValidation(message string) *APIError {
	return NewAPIError(ErrorTypeValidation, message)
}

// ErrAuthentication creates an authentication error.
func ErrAuthentication(message string) *APIError {
	return NewAPIError(ErrorTypeAuthentication, message).WithCode(ErrorCodeInvalidToken)
}

// ErrTenantNotFound creates a tenant-not-found error.
func ErrTenantNotFound(message string) *APIError {
	return NewAPIError(ErrorTypeTenantNotFound, message)
}

// ErrNotFound creates a resource-not-found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(ErrorTypeNotFound, message)
}

// ErrQuotaExceeded creates a quota-exceeded error carrying the current quota
// and trial status for client display.
func ErrQuotaExceeded(message string, quota QuotaStatus, trial TrialStatus) *APIError {
	return NewAPIError(ErrorTypeQuotaExceeded, message).
		WithCode(ErrorCodeQuotaExceeded).
		WithDetails(map[string]any{
			"quotaStatus": quota,
			"trialStatus": trial,
		})
}

// ErrRateLimited creates a rate-limit error with a retry hint.
func ErrRateLimited(message string, retryAfter time.Duration) *APIError {
	return NewAPIError(ErrorTypeRateLimited, message).
		WithCode(ErrorCodeRateLimitExceeded).
		WithRetryAfter(retryAfter)
}

// ErrTimeout creates a request timeout error.
func ErrTimeout(message string) *APIError {
	return NewAPIError(ErrorTypeTimeout, message).WithCode(ErrorCodeRequestTimeout)
}

// ErrUpstream wraps a store or collaborator failure after retries are exhausted.
func ErrUpstream(message string) *APIError {
	return NewAPIError(ErrorTypeUpstream, message)
}

// ErrPayloadTooLarge creates a payload-size error.
func ErrPayloadTooLarge(message string) *APIError {
	return NewAPIError(ErrorTypePayloadTooLarge, message).WithCode(ErrorCodePayloadTooLarge)
}

// ErrServer creates a generic internal error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message).WithCode(ErrorCodeInternal)
}

// AsAPIError extracts an *APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
