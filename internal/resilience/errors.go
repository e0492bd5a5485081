package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// RetryableError marks a failure that may succeed if the call is repeated,
// such as a 429 or 503 from the asset service.
type RetryableError struct {
	Err        error
	StatusCode int
	// RetryAfter is the server-requested wait, if any.
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as retryable with an optional HTTP status code.
func Retryable(err error, statusCode int) *RetryableError {
	return &RetryableError{Err: err, StatusCode: statusCode}
}

// networkHints are substrings of wrapped transport errors worth retrying.
var networkHints = []string{
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"tls handshake timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsRetryable reports whether err, or anything it wraps, is worth retrying.
// Context cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range networkHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// RetryableStatus reports whether an HTTP status is a server-side condition
// that may clear on its own.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
