package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Category tags a failure for the retry layer. It is the only thing
// the client's classifier reads, so transport implementations must set
// it faithfully.
type Category string

const (
	// CategoryTransport marks link-level failures: unreachable host,
	// reset connection, broken socket. Safe to retry after reconnecting.
	CategoryTransport Category = "transport"

	// CategorySession marks failures where the link works but the remote
	// terminal session no longer exists (terminal restarted, session
	// expired). Safe to retry after a forced reconnect.
	CategorySession Category = "session"

	// CategoryDomain marks well-formed rejections from the terminal
	// itself: validation failures, trade rule violations, unknown
	// symbols. Retrying cannot fix these.
	CategoryDomain Category = "domain"
)

// Error is a failure reported by a session or stream, carrying the
// category tag the client uses to decide between retry and surface.
// A reply that arrives intact but embeds a terminal-side rejection is
// a CategoryDomain Error, not a transport failure.
type Error struct {
	Category Category
	Code     string
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("terminal: %s (%s/%s)", e.Message, e.Category, e.Code)
}

// Credentials identify a trading account on the remote terminal.
type Credentials struct {
	Account  string
	Password string
	Server   string // broker server name as the terminal knows it
}

// Event is one server-pushed item on a subscription stream.
type Event struct {
	// Stream is the identifier of the subscription this event belongs to.
	Stream string `json:"stream"`

	// Seq is the per-stream sequence number assigned by the bridge.
	// It resets when a stream is reopened after a reconnect.
	Seq uint64 `json:"seq"`

	// Payload is the event body; its schema depends on the subscription.
	Payload json.RawMessage `json:"event"`
}

// Session is one authenticated connection to the terminal bridge.
// Implementations must be safe for concurrent use: multiple calls and
// streams may be in flight on one session at a time.
type Session interface {
	// Call performs one request/response exchange. budget bounds the
	// round trip; the session must not block past it.
	Call(ctx context.Context, method string, params any, budget time.Duration) (json.RawMessage, error)

	// OpenStream starts a server-push subscription. The returned Stream
	// is owned by the caller and must be closed when done.
	OpenStream(ctx context.Context, method string, params any) (Stream, error)

	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Stream is the consumer side of one physical subscription. A Stream
// does not survive its session: when the session dies, Recv fails and
// the caller must obtain a new stream on a new session.
type Stream interface {
	// Recv blocks until the next event arrives or the stream fails.
	Recv() (Event, error)

	// Close terminates the physical stream. Safe after failure.
	Close() error
}

// Dialer establishes sessions. The client takes a Dialer rather than a
// concrete transport so tests can run against an in-memory terminal.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, creds Credentials) (Session, error)
}
