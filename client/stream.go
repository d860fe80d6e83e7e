package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/termbridge/termbridge/terminal"
)

// eventBufSize is the subscription's consumer-side buffer depth.
// When it fills, forwarding blocks and backpressure reaches the
// physical stream.
const eventBufSize = 128

// StreamOpener opens one physical subscription stream on a session.
// The client re-invokes it with a fresh session after every reconnect.
type StreamOpener func(ctx context.Context, s terminal.Session) (terminal.Stream, error)

// Subscription is a server-push event sequence that survives
// reconnects. Delivery is at-most-once per attempt with no gap
// filling: events the bridge emitted while the link was down are not
// replayed, so across a reconnect the consumer observes a gap, never a
// duplicate. Within one physical stream, events arrive in the order
// the bridge produced them.
type Subscription struct {
	events chan terminal.Event
	cancel context.CancelFunc

	// err is written by the driver goroutine before events is closed;
	// the channel close is the publication barrier.
	err error
}

// Events returns the event channel. It closes when the subscription
// ends; consult Err afterwards for the reason.
func (s *Subscription) Events() <-chan terminal.Event {
	return s.events
}

// Err reports why the subscription ended: a domain rejection verbatim,
// ErrTimeout when the caller's deadline expired, or nil after a clean
// cancellation. Only valid once Events is closed.
func (s *Subscription) Err() error {
	return s.err
}

// Close stops the subscription. The events channel closes shortly
// after; consumers should drain it to completion.
func (s *Subscription) Close() {
	s.cancel()
}

// Subscribe starts a subscription using open to create the physical
// stream. The returned Subscription delivers events until a fatal
// error, deadline expiry, or cancellation of ctx; transient stream and
// transport failures are absorbed by reconnecting and reopening the
// stream underneath the consumer.
func (c *Client) Subscribe(ctx context.Context, open StreamOpener) *Subscription {
	sctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan terminal.Event, eventBufSize),
		cancel: cancel,
	}
	go c.runSubscription(sctx, open, sub)
	return sub
}

// runSubscription is the outer driver: it owns session recovery and
// swaps the inner physical stream on every transient failure. The
// inner stream is the only thing that touches the wire.
func (c *Client) runSubscription(ctx context.Context, open StreamOpener, sub *Subscription) {
	defer close(sub.events)

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			sub.err = streamOutcome(ctxErr)
			return
		}

		s, err := c.ensureConnected(ctx)
		var st terminal.Stream
		if err == nil {
			st, err = open(ctx, s)
		}
		if err == nil {
			// Recv blocks in the transport; closing the stream is the
			// only way to unblock it when ctx fires mid-read.
			stop := context.AfterFunc(ctx, func() { _ = st.Close() })
			err = c.forward(ctx, st, sub)
			stop()
			// Best-effort teardown; the stream is usually already broken.
			_ = st.Close()
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			sub.err = streamOutcome(ctxErr)
			return
		}

		if classify(err) == classFatal {
			sub.err = err
			return
		}

		if s != nil {
			c.invalidate(s)
		}
		c.metrics.retry()
		slog.Warn("client: stream lost, reconnecting",
			"backoff", c.retry.backoff(), "err", err)

		if perr := c.pause(ctx); perr != nil {
			sub.err = streamOutcome(ctx.Err())
			return
		}
	}
}

// forward pumps events from the physical stream to the consumer until
// the stream fails or ctx is done. Cancellation is checked before
// every forward.
func (c *Client) forward(ctx context.Context, st terminal.Stream, sub *Subscription) error {
	for {
		ev, err := st.Recv()
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub.events <- ev:
		}
	}
}

// streamOutcome maps the subscription context's final error to the
// consumer-visible termination: cancellation ends the sequence cleanly,
// deadline expiry surfaces as ErrTimeout.
func streamOutcome(ctxErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return mapContextErr(ctxErr)
	}
	return nil
}
