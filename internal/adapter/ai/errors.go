package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// ProviderError codes.
const (
	CodeTimeout        = "timeout"
	CodeRateLimited    = "rate_limited"
	CodeUpstreamStatus = "upstream_status"
	CodeInvalidOutput  = "invalid_output"
	CodeUnavailable    = "unavailable"
	CodeCircuitOpen    = "circuit_open"
)

// ProviderError is a typed failure returned by a provider adapter.
type ProviderError struct {
	Provider string
	Code     string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Code, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Reason returns the code, used as a metrics label by callers that cannot
// import this package.
func (e *ProviderError) Reason() string { return e.Code }

// Is maps provider codes onto the domain taxonomy.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case domain.ErrUpstreamTimeout:
		return e.Code == CodeTimeout
	case domain.ErrUpstreamRateLimit:
		return e.Code == CodeRateLimited
	case domain.ErrSchemaInvalid:
		return e.Code == CodeInvalidOutput
	}
	return false
}

// NewProviderError wraps err for provider, deriving the code from err when
// it is a context deadline.
func NewProviderError(provider, code string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &ProviderError{Provider: provider, Code: code, Err: err}
}

// StatusError builds a ProviderError for a non-2xx upstream status.
func StatusError(provider string, status int, body string) *ProviderError {
	code := CodeUpstreamStatus
	if status == http.StatusTooManyRequests {
		code = CodeRateLimited
	}
	return &ProviderError{Provider: provider, Code: code, Status: status, Err: fmt.Errorf("upstream returned %d: %s", status, body)}
}

// ErrorCode returns the provider error code of err, or "error".
func ErrorCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return "error"
}
