package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind classifies why a probe failed.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection"
	KindStatus     Kind = "status"
)

var (
	// ErrTimeout matches probes that hit their timeout.
	ErrTimeout = errors.New("probe timed out")

	// ErrConnectionFailure matches probes that never got a response
	// (DNS, refused connection, TLS, invalid URL, cancellation).
	ErrConnectionFailure = errors.New("probe connection failed")

	// ErrNonSuccessStatus matches probes that got a non-2xx response.
	ErrNonSuccessStatus = errors.New("probe received non-success status")
)

// Error is the failure detail attached to an unsuccessful [Result].
type Error struct {
	Kind Kind

	// StatusCode is set for KindStatus.
	StatusCode int

	// Timeout is set for KindTimeout.
	Timeout time.Duration

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("timed out after %s", e.Timeout)
	case KindStatus:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	default:
		if e.Err == nil {
			return "connection failed"
		}
		return fmt.Sprintf("connection failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets callers match on the kind sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrConnectionFailure:
		return e.Kind == KindConnection
	case ErrNonSuccessStatus:
		return e.Kind == KindStatus
	}
	return false
}

// KindOf returns the failure kind of err, or "" when err is not a probe error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// classify maps a transport error onto a probe error kind.
func classify(ctx context.Context, err error, timeout time.Duration) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Timeout: timeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Timeout: timeout, Err: err}
	}
	return &Error{Kind: KindConnection, Err: err}
}
