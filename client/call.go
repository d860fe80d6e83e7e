package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/termbridge/termbridge/terminal"
)

// Operation is one unary exchange against the terminal. budget is the
// time left until the caller's deadline (or the configured call
// timeout when there is none); the operation must not block past it.
// The operation is invoked at most once per attempt — the client only
// retries after the previous attempt is known to have failed.
type Operation[T any] func(ctx context.Context, s terminal.Session, budget time.Duration) (T, error)

// Execute runs op until it succeeds, fails fatally, the deadline
// passes, or ctx is cancelled. Transient transport and session
// failures are absorbed: the client backs off for the fixed retry
// interval, reconnects, and retries with the budget recomputed against
// the original deadline. There is no attempt cap.
//
// Only terminal outcomes cross this boundary: the result, a domain
// rejection verbatim, ErrTimeout, or ErrCancelled.
func Execute[T any](ctx context.Context, c *Client, op Operation[T]) (T, error) {
	var zero T
	start := time.Now()

	for attempt := 1; ; attempt++ {
		budget, err := remaining(ctx, c.callTimeout())
		if err != nil {
			c.metrics.call(outcome(err), time.Since(start).Seconds())
			return zero, err
		}

		s, err := c.ensureConnected(ctx)
		if err == nil {
			var res T
			res, err = op(ctx, s, budget)
			if err == nil {
				c.metrics.call("ok", time.Since(start).Seconds())
				return res, nil
			}
		}

		// The caller's own context outranks classification: a failure
		// caused by deadline expiry or cancellation is terminal even
		// when the underlying error looks transient.
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = mapContextErr(ctxErr)
			c.metrics.call(outcome(err), time.Since(start).Seconds())
			return zero, err
		}

		switch classify(err) {
		case classFatal:
			c.metrics.call("fatal", time.Since(start).Seconds())
			return zero, err

		case classSession, classTransient:
			if s != nil {
				c.invalidate(s)
			}
			c.metrics.retry()
			slog.Debug("client: transient failure, will retry",
				"attempt", attempt, "backoff", c.retry.backoff(), "err", err)
			if perr := c.pause(ctx); perr != nil {
				c.metrics.call(outcome(perr), time.Since(start).Seconds())
				return zero, perr
			}
		}
	}
}

// outcome maps a terminal error to its metrics label.
func outcome(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "fatal"
	}
}
