package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/termbridge/termbridge/terminal"
)

const (
	// writeTimeout is the deadline for a single write to the socket.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often ping frames are sent.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// openTimeout bounds the subscribe round trip inside OpenStream.
	openTimeout = 10 * time.Second

	// streamBufSize is the per-stream inbound event buffer depth.
	streamBufSize = 64
)

// errSessionClosed marks a locally closed session. It carries no
// category, so the retry layer treats it as transient — by the time a
// retry happens the client has already replaced the session.
var errSessionClosed = errors.New("wsrpc: session closed")

// session multiplexes unary calls and push streams over one WebSocket
// connection. Replies are matched to requests by id; push frames are
// routed to their stream by the stream id.
type session struct {
	conn *websocket.Conn

	// writeMu serialises writes; gorilla allows one writer at a time.
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *frame
	streams map[string]*stream
	closed  bool

	// closeErr is written once inside closeOnce before done closes;
	// readers must observe <-done first.
	closeErr  error
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn) *session {
	return &session{
		conn:    conn,
		pending: make(map[string]chan *frame),
		streams: make(map[string]*stream),
		done:    make(chan struct{}),
	}
}

// Call performs one correlated request/response exchange.
func (s *session) Call(ctx context.Context, method string, params any, budget time.Duration) (json.RawMessage, error) {
	return s.call(ctx, uuid.NewString(), method, params, budget)
}

func (s *session) call(ctx context.Context, id, method string, params any, budget time.Duration) (json.RawMessage, error) {
	ch := make(chan *frame, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, s.transportErr("call " + method)
	}
	s.pending[id] = ch
	s.mu.Unlock()
	defer s.dropPending(id)

	if err := s.write(&frame{ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	t := time.NewTimer(budget)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, s.transportErr("call " + method)
	case <-t.C:
		return nil, &terminal.Error{
			Category: terminal.CategoryTransport,
			Code:     "call_timeout",
			Message:  fmt.Sprintf("no reply to %s within %v", method, budget),
		}
	case f := <-ch:
		if f.Error != nil {
			return nil, f.Error.toTerminal()
		}
		return f.Result, nil
	}
}

// OpenStream subscribes via method and returns the push stream. The
// subscribe request's id becomes the stream id, and the stream is
// registered before the request goes out, so the first pushed event
// cannot slip past the router.
func (s *session) OpenStream(ctx context.Context, method string, params any) (terminal.Stream, error) {
	id := uuid.NewString()
	st := &stream{
		id:   id,
		sess: s,
		ch:   make(chan terminal.Event, streamBufSize),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, s.transportErr("open " + method)
	}
	s.streams[id] = st
	s.mu.Unlock()

	if _, err := s.call(ctx, id, method, params, openTimeout); err != nil {
		s.dropStream(id)
		return nil, err
	}
	return st, nil
}

// Close tears the session down locally. Safe to call more than once.
func (s *session) Close() error {
	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	s.fail(errSessionClosed)
	return nil
}

// readLoop is the only reader. It routes replies to pending calls and
// push frames to their streams, and kills the session on read failure.
func (s *session) readLoop() {
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("wsrpc: read: %w", err))
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("wsrpc: discarding undecodable frame", "err", err)
			continue
		}

		switch {
		case f.ID != "":
			s.mu.Lock()
			ch := s.pending[f.ID]
			delete(s.pending, f.ID)
			s.mu.Unlock()
			if ch != nil {
				ch <- &f
			}

		case f.Stream != "":
			s.mu.Lock()
			st := s.streams[f.Stream]
			s.mu.Unlock()
			if st == nil {
				continue
			}
			ev := terminal.Event{Stream: f.Stream, Seq: f.Seq, Payload: f.Event}
			// Blocking send: a slow consumer backpressures the socket
			// rather than dropping events mid-stream.
			select {
			case st.ch <- ev:
			case <-st.done:
			}
		}
	}
}

// pingLoop keeps the link verified while it is otherwise idle.
func (s *session) pingLoop() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				s.fail(fmt.Errorf("wsrpc: ping: %w", err))
				return
			}
		}
	}
}

// fail closes the session exactly once, capturing err as the reason,
// and propagates the failure to every waiting call and open stream.
func (s *session) fail(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.closeErr = err
		streams := s.streams
		s.streams = nil
		s.mu.Unlock()

		close(s.done)
		_ = s.conn.Close()

		for _, st := range streams {
			st.fail(err)
		}
		// Pending callers unblock through s.done.
	})
}

func (s *session) write(f *frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("wsrpc: write %s: %w", f.Method, err)
	}
	return nil
}

func (s *session) dropPending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *session) dropStream(id string) {
	s.mu.Lock()
	delete(s.streams, id)
	s.mu.Unlock()
}

// transportErr wraps the session's close reason for a failed operation.
func (s *session) transportErr(op string) error {
	s.mu.Lock()
	err := s.closeErr
	s.mu.Unlock()
	if err == nil {
		err = errSessionClosed
	}
	return fmt.Errorf("wsrpc: %s: %w", op, err)
}
