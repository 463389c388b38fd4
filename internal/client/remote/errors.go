package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// Kind classifies a remote-call failure. The sync and session layers branch
// on kinds, never on error message text.
type Kind int

const (
	// KindUnknown is an unclassified failure.
	KindUnknown Kind = iota
	// KindNetwork is a transport-level failure: connection refused, DNS,
	// circuit breaker open. Retryable.
	KindNetwork
	// KindTimeout is a deadline or transport timeout. Retryable.
	KindTimeout
	// KindNotFound means the record does not exist remotely.
	KindNotFound
	// KindValidation means the server rejected the request for semantic
	// reasons (bad payload, auth rejection). Never retried.
	KindValidation
	// KindServer is a remote-side failure (5xx, undecodable response).
	KindServer
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is a classified remote-call failure.
type Error struct {
	// Op names the failed operation, e.g. "get_profile".
	Op string
	// Kind is the failure classification.
	Kind Kind
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("remote %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from err, KindUnknown when err is not
// a remote error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is transient per the error taxonomy:
// network and timeout failures retry, everything else is terminal.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindNetwork || k == KindTimeout
}

// IsNotFound reports whether err is a remote not-found.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// classify wraps a transport-level error with its kind.
func classify(op string, err error) *Error {
	kind := KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		kind = KindNetwork
	case errors.Is(err, context.Canceled):
		kind = KindTimeout
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// statusError classifies an HTTP error status.
func statusError(op string, status int, msg string) *Error {
	kind := KindServer
	switch {
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusBadRequest,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusConflict,
		status == http.StatusUnprocessableEntity:
		kind = KindValidation
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf("status %d: %s", status, msg)}
}
