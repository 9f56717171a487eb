package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahrav/go-arena/internal/ports"
)

// Sentinel errors from client construction and response decoding.
var (
	ErrEmptyAPIKey      = errors.New("API key cannot be empty")
	ErrEmptyResponse    = errors.New("empty response from API")
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType classifies a provider failure.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeAuthentication
	ErrorTypeRateLimit
	ErrorTypeBadRequest
	ErrorTypeNotFound
	ErrorTypeServerError
	// ErrorTypeContentPolicy marks a prompt or answer blocked by safety filters.
	ErrorTypeContentPolicy
	ErrorTypeNetwork
	ErrorTypeTimeout
	// ErrorTypeCanceled marks a call abandoned because the battle ended.
	ErrorTypeCanceled
)

var errorTypeNames = map[ErrorType]string{
	ErrorTypeAuthentication: "authentication",
	ErrorTypeRateLimit:      "rate_limit",
	ErrorTypeBadRequest:     "bad_request",
	ErrorTypeNotFound:       "not_found",
	ErrorTypeServerError:    "server_error",
	ErrorTypeContentPolicy:  "content_policy",
	ErrorTypeNetwork:        "network",
	ErrorTypeTimeout:        "timeout",
	ErrorTypeCanceled:       "canceled",
}

// String returns the category name used in error text, or "unknown".
func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ProviderError is a provider SDK failure normalized across vendors.
// StatusCode is zero when no HTTP response was received.
type ProviderError struct {
	Type         ErrorType
	Provider     string
	StatusCode   int
	Message      string
	WrappedError error
}

// NewProviderError builds a ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// Error formats as "<provider> error (HTTP n) [type]: message: cause",
// omitting the parts that are unset.
func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if name, ok := errorTypeNames[e.Type]; ok {
		fmt.Fprintf(&b, " [%s]", name)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.WrappedError != nil {
		fmt.Fprintf(&b, ": %v", e.WrappedError)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.WrappedError }

// Is maps the error category onto the shared infrastructure sentinels, so
// callers can test errors.Is(err, ports.ErrRateLimited) without knowing the
// provider.
func (e *ProviderError) Is(target error) bool {
	switch e.Type {
	case ErrorTypeRateLimit:
		return target == ports.ErrRateLimited
	case ErrorTypeServerError, ErrorTypeNetwork:
		return target == ports.ErrServiceUnavailable
	case ErrorTypeTimeout:
		return target == ports.ErrTimeout
	default:
		return false
	}
}

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// ErrorClassifier turns SDK errors for one provider into ProviderErrors.
type ErrorClassifier struct {
	Provider string
}

// HandleError classifies an SDK error. Context errors are checked first;
// statusOf extracts the HTTP status and message from a provider API error
// and reports false when err is not one.
func (ec *ErrorClassifier) HandleError(err error, statusOf func(error) (int, string, bool)) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ec.ClassifyContextError(err)
	}
	if statusOf != nil {
		if code, message, ok := statusOf(err); ok {
			if message == "" {
				message = "unknown error"
			}
			return ec.ClassifyHTTPError(code, message, err)
		}
	}
	return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "request failed", err)
}

// ClassifyHTTPError maps an HTTP status to an ErrorType. Auth and rate
// limit failures get a fixed message; the rest keep the provider's.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *ProviderError {
	errType := ErrorTypeUnknown
	switch {
	case statusCode == 401 || statusCode == 403:
		errType = ErrorTypeAuthentication
		message = ec.Provider + " authentication failed"
	case statusCode == 429:
		errType = ErrorTypeRateLimit
		message = ec.Provider + " rate limit exceeded"
	case statusCode == 404:
		errType = ErrorTypeNotFound
	case statusCode >= 500:
		errType = ErrorTypeServerError
	case statusCode >= 400:
		errType = ErrorTypeBadRequest
	}
	return NewProviderError(ec.Provider, errType, statusCode, message, err)
}

// ClassifyContextError maps deadline and cancellation errors.
func (ec *ErrorClassifier) ClassifyContextError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "context deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeCanceled, 0, "request canceled", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "", err)
	}
}
