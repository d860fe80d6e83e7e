package client

import (
	"context"
	"time"
)

// DefaultBackoff is the pause between attempts when no policy is set.
const DefaultBackoff = 500 * time.Millisecond

// RetryPolicy controls how transient failures are retried. Attempts
// are unbounded: a retry loop stops only on cancellation, deadline
// expiry, or a fatal classification — never on an attempt count.
type RetryPolicy struct {
	// Backoff is the fixed pause before each retry.
	Backoff time.Duration
}

func (p RetryPolicy) backoff() time.Duration {
	if p.Backoff <= 0 {
		return DefaultBackoff
	}
	return p.Backoff
}

// sleep pauses for d or until ctx is done, whichever comes first.
// A cut-short sleep returns the context error mapped into the client
// taxonomy; this is the backoff cancellation checkpoint.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return mapContextErr(ctx.Err())
	case <-t.C:
		return nil
	}
}

// remaining converts the context deadline into the time budget left
// for the next physical attempt. With no deadline the fallback budget
// applies. An already-expired deadline or cancelled context returns a
// terminal error and the attempt must not be made.
func remaining(ctx context.Context, fallback time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, mapContextErr(err)
	}
	dl, ok := ctx.Deadline()
	if !ok {
		return fallback, nil
	}
	left := time.Until(dl)
	if left <= 0 {
		return 0, mapContextErr(context.DeadlineExceeded)
	}
	return left, nil
}
