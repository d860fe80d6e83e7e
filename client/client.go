package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/termbridge/termbridge/config"
	"github.com/termbridge/termbridge/terminal"
)

// Status is the connection manager's view of the session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// State is a point-in-time snapshot of the connection.
type State struct {
	Status   Status
	Endpoint string

	// Reconnects counts physical dial attempts over the client's
	// lifetime, including the initial connect.
	Reconnects uint64
}

// Client owns the single logical session to the terminal bridge and
// executes operations against it with retry-until-fatal semantics.
// All methods are safe for concurrent use; any number of calls and
// subscriptions may share one Client.
type Client struct {
	cfg     config.ClientConfig
	dialer  terminal.Dialer
	retry   RetryPolicy
	metrics *Metrics

	// sf collapses concurrent reconnect attempts into one flight.
	// N callers observing a dead session trigger one dial, not N.
	sf singleflight.Group

	mu         sync.Mutex
	status     Status
	session    terminal.Session
	closed     bool
	reconnects uint64
}

// New creates a Client for the configured bridge. No connection is
// made until Connect or the first executed operation.
func New(cfg config.ClientConfig, dialer terminal.Dialer) *Client {
	return &Client{
		cfg:    cfg,
		dialer: dialer,
		retry:  RetryPolicy{Backoff: cfg.Backoff},
		status: StatusDisconnected,
	}
}

// WithMetrics attaches Prometheus instruments. Call before first use.
func (c *Client) WithMetrics(m *Metrics) *Client {
	c.metrics = m
	return c
}

// Connect establishes the initial session. Credential and
// configuration errors come back as-is and should not be retried;
// transport errors are worth retrying at the caller's discretion —
// the executors do exactly that, so calling Connect first is optional.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.ensureConnected(ctx)
	return err
}

// State returns a snapshot of the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Status:     c.status,
		Endpoint:   c.cfg.Endpoint,
		Reconnects: c.reconnects,
	}
}

// Close tears down the session. In-flight operations fail on their
// next checkpoint with ErrClosed; the client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.session
	c.session = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if s != nil {
		return s.Close()
	}
	return nil
}

// ensureConnected returns the current session if healthy, otherwise
// performs a reconnect. Concurrent callers with a dead session share a
// single in-flight dial.
func (c *Client) ensureConnected(ctx context.Context) (terminal.Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.session != nil && c.status == StatusConnected {
		s := c.session
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do("dial", func() (any, error) {
		// A racer queued behind a finished flight may find the session
		// already restored; don't dial twice for one outage.
		c.mu.Lock()
		if c.session != nil && c.status == StatusConnected {
			s := c.session
			c.mu.Unlock()
			return s, nil
		}
		c.mu.Unlock()
		return c.dial(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(terminal.Session), nil
}

// invalidate drops s if it is still the current session, so the next
// ensureConnected dials fresh. A session that was already replaced is
// left alone — its successor may be healthy.
func (c *Client) invalidate(s terminal.Session) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	_ = s.Close()
}

// dial performs one physical connect: tear down any stale handle,
// resolve credentials, dial with the configured handshake timeout.
// Exactly one dial runs at a time (callers go through sf).
func (c *Client) dial(ctx context.Context) (terminal.Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	old := c.session
	c.session = nil
	c.status = StatusConnecting
	c.reconnects++
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	creds := c.cfg.Credentials()
	if c.cfg.PasswordEnv != "" && creds.Password == "" {
		c.setStatus(StatusDisconnected)
		return nil, fmt.Errorf("%w: env %s is empty", ErrCredentials, c.cfg.PasswordEnv)
	}

	dctx, cancel := context.WithTimeout(ctx, c.dialTimeout())
	defer cancel()

	s, err := c.dialer.Dial(dctx, c.cfg.Endpoint, creds)
	if err != nil {
		c.setStatus(StatusDisconnected)
		return nil, fmt.Errorf("client: dial %s: %w", c.cfg.Endpoint, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = s.Close()
		return nil, ErrClosed
	}
	c.session = s
	c.status = StatusConnected
	n := c.reconnects
	c.mu.Unlock()

	c.metrics.reconnect()
	slog.Info("client: connected",
		"endpoint", c.cfg.Endpoint, "account", c.cfg.Account, "dials", n)
	return s, nil
}

func (c *Client) dialTimeout() time.Duration {
	if c.cfg.DialTimeout > 0 {
		return c.cfg.DialTimeout
	}
	return config.DefaultDialTimeout
}

func (c *Client) callTimeout() time.Duration {
	if c.cfg.CallTimeout > 0 {
		return c.cfg.CallTimeout
	}
	return config.DefaultCallTimeout
}

func (c *Client) setStatus(st Status) {
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}

// pause is the backoff checkpoint between attempts.
func (c *Client) pause(ctx context.Context) error {
	return sleep(ctx, c.retry.backoff())
}
