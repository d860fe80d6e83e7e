package client

import (
	"context"
	"errors"
	"fmt"
)

// Terminal outcomes a caller can observe. Transient transport and
// session failures never cross the executor boundary: they are
// absorbed by the retry loop and show up only as latency.
var (
	// ErrTimeout is returned when the call deadline expires before an
	// attempt succeeds. Checked with errors.Is.
	ErrTimeout = errors.New("client: deadline exceeded")

	// ErrCancelled is returned by Execute when the caller's context is
	// cancelled. Subscriptions treat cancellation as a clean stop
	// instead and report a nil Err.
	ErrCancelled = errors.New("client: cancelled")

	// ErrClosed is returned for any operation on a closed client.
	ErrClosed = errors.New("client: closed")

	// ErrCredentials is returned when the configured credentials cannot
	// be resolved (e.g. the password environment variable is unset).
	// Never retried.
	ErrCredentials = errors.New("client: credentials unavailable")

	// ErrBadReply is returned when the bridge answers a call with a
	// payload the typed wrapper cannot decode. Retrying would get the
	// same payload back, so it is never retried.
	ErrBadReply = errors.New("client: malformed reply")
)

// mapContextErr translates a context error into the client taxonomy so
// callers can test outcomes with errors.Is regardless of which
// checkpoint tripped first.
func mapContextErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	default:
		return err
	}
}
