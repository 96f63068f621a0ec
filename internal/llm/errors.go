package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorType categorizes chat endpoint failures for retry classification.
type ErrorType string

const (
	// ErrorTypeTimeout indicates a request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeRateLimit indicates a provider rate limit (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeNetwork indicates a connectivity problem (retryable).
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeProvider indicates the provider is unavailable (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"
	// ErrorTypeValidation indicates the provider rejected the request.
	ErrorTypeValidation ErrorType = "validation_failed"
	// ErrorTypeAuth indicates authentication failed.
	ErrorTypeAuth ErrorType = "authentication"
	// ErrorTypePermission indicates insufficient permissions.
	ErrorTypePermission ErrorType = "permission_denied"
	// ErrorTypeQuota indicates the account quota is exhausted.
	ErrorTypeQuota ErrorType = "quota_exceeded"
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Client errors.
var (
	// ErrInvalidResponse indicates a 200 response that could not be decoded.
	ErrInvalidResponse = errors.New("invalid provider response")
	// ErrEmptyCompletion indicates a response with no choices or no content.
	ErrEmptyCompletion = errors.New("empty completion")
)

// ProviderError captures a failed call to the chat endpoint.
type ProviderError struct {
	StatusCode int           `json:"status_code"`
	Message    string        `json:"message"`
	Code       string        `json:"code"`
	Type       ErrorType     `json:"type"`
	RetryAfter time.Duration `json:"retry_after"`
	Cause      error         `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("llm %s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("llm error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable reports whether a later attempt might succeed.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// IsRetryable classifies any error returned by the client. Provider errors
// use their type, deadline errors are retryable, caller cancellation and
// decoding failures are not.
func IsRetryable(err error) bool {
	var perr *ProviderError
	switch {
	case err == nil:
		return false
	case errors.As(err, &perr):
		return perr.IsRetryable()
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ErrEmptyCompletion):
		// A fresh sample usually fixes a malformed completion.
		return true
	default:
		return false
	}
}

// classifyErrorType determines the ErrorType from the HTTP status and the
// provider's error code, preferring the code when it is specific.
func classifyErrorType(statusCode int, errorCode string) ErrorType {
	code := strings.ToLower(errorCode)
	switch {
	case strings.Contains(code, "quota") || strings.Contains(code, "insufficient"):
		return ErrorTypeQuota
	case strings.Contains(code, "rate") || strings.Contains(code, "limit"):
		return ErrorTypeRateLimit
	case strings.Contains(code, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(code, "auth") || strings.Contains(code, "api_key"):
		return ErrorTypeAuth
	case strings.Contains(code, "permission") || strings.Contains(code, "forbidden"):
		return ErrorTypePermission
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case http.StatusUnauthorized:
		return ErrorTypeAuth
	case http.StatusForbidden:
		return ErrorTypePermission
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	}
	if statusCode >= http.StatusInternalServerError {
		return ErrorTypeProvider
	}
	return ErrorTypeUnknown
}
