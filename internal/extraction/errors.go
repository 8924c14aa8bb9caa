package extraction

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies an extraction failure for the retry policy.
type Kind int

const (
	// Retryable failures are timeouts, rate limits and transient service
	// errors. The caller backs off and tries again.
	Retryable Kind = iota

	// Permanent failures are malformed responses or unsupported input.
	// Retrying cannot help.
	Permanent
)

func (k Kind) String() string {
	if k == Retryable {
		return "retryable"
	}
	return "permanent"
}

// Error is a classified extraction failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("extraction %s failure (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("extraction %s failure: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err should be retried.
//
// Unclassified errors are retryable when they look like timeouts or
// connection failures; anything else is treated as permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var xe *Error
	if errors.As(err, &xe) {
		return xe.Kind == Retryable
	}

	return isTransient(err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// classifyStatus maps an HTTP status to a failure kind.
func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout,
		code >= 500:
		return Retryable
	default:
		return Permanent
	}
}

func retryable(err error) error {
	return &Error{Kind: Retryable, Err: err}
}

func permanent(err error) error {
	return &Error{Kind: Permanent, Err: err}
}
