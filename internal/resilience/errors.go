package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ProviderError wraps a capability provider failure with its kind so
// retry and circuit-breaker decisions stay uniform across callers.
type ProviderError struct {
	Kind       model.FailureKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with an explicit failure kind.
func NewProviderError(kind model.FailureKind, statusCode int, err error) *ProviderError {
	return &ProviderError{Kind: kind, StatusCode: statusCode, Err: err}
}

// KindOf extracts the failure kind from an error chain. Errors that
// carry no explicit kind are classified by network heuristics: timeouts
// map to timeout, connection-level failures to unavailable. Errors with
// no recognizable kind return the empty kind.
func KindOf(err error) model.FailureKind {
	if err == nil {
		return ""
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.FailureTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.FailureTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return model.FailureUnavailable
	}

	// String heuristics for errors wrapped by HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return model.FailureUnavailable
		}
	}
	if strings.Contains(msg, "i/o timeout") {
		return model.FailureTimeout
	}

	// Unknown errors carry no kind; callers decide how to surface them.
	return ""
}

// IsRetryable reports whether the error is safe to retry. Validation
// and state errors are never retryable; provider failures follow their
// kind's retryability.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var se *model.StateError
	if errors.As(err, &se) {
		return false
	}

	return KindOf(err).Retryable()
}

// KindForStatus maps an HTTP status code to a failure kind. 5xx and
// 408/429 are retryable; other 4xx are terminal input failures.
func KindForStatus(statusCode int) model.FailureKind {
	switch {
	case statusCode == http.StatusRequestTimeout:
		return model.FailureTimeout
	case statusCode == http.StatusTooManyRequests:
		return model.FailureRateLimited
	case statusCode >= 500:
		return model.FailureProviderError
	case statusCode >= 400:
		return model.FailureInvalidInput
	default:
		return ""
	}
}
