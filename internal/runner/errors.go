package runner

import (
	"fmt"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
)

// ConnectionError reports a retryable transport-level failure: connection
// refused, DNS failure, timeout, or an equivalent subprocess launch error.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("runner: connection error: %v", e.Cause)
}

func (e *ConnectionError) Unwrap() error { return aerrors.ErrConnection }

// EndpointError reports a non-2xx HTTP response that wasn't a JSON error
// envelope (i.e. the HTTP layer itself rejected the call).
type EndpointError struct {
	StatusCode int
	Body       string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("runner: endpoint returned HTTP %d", e.StatusCode)
}

func (e *EndpointError) Unwrap() error {
	switch e.StatusCode {
	case 403:
		return aerrors.ErrDenied
	case 404:
		return aerrors.ErrNotFound
	default:
		return aerrors.ErrConnection
	}
}

// InvalidUsage reports a caller-side misuse of a Runner, such as attaching
// more than one input file to the subprocess runner.
type InvalidUsage struct {
	Reason string
}

func (e *InvalidUsage) Error() string {
	return fmt.Sprintf("runner: invalid usage: %s", e.Reason)
}

func (e *InvalidUsage) Unwrap() error { return aerrors.ErrBadUsage }
