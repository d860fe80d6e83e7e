package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/termbridge/termbridge/terminal"
)

// scriptedStream yields its events in order, then returns final. With
// a nil final it blocks until closed, like a healthy idle stream.
type scriptedStream struct {
	mu     sync.Mutex
	events []terminal.Event
	final  error
	closed chan struct{}
	once   sync.Once
}

func newScriptedStream(final error, events ...terminal.Event) *scriptedStream {
	return &scriptedStream{events: events, final: final, closed: make(chan struct{})}
}

func (s *scriptedStream) Recv() (terminal.Event, error) {
	s.mu.Lock()
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		s.mu.Unlock()
		return ev, nil
	}
	final := s.final
	s.mu.Unlock()

	if final != nil {
		return terminal.Event{}, final
	}
	<-s.closed
	return terminal.Event{}, errors.New("stream closed")
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func tick(seq int) terminal.Event {
	return terminal.Event{
		Stream:  "q-1",
		Seq:     uint64(seq),
		Payload: json.RawMessage(fmt.Sprintf(`{"n":%d}`, seq)),
	}
}

// subscribeStreams wires a sequence of scripted physical streams into
// a client: the n-th open returns streams[n], later opens block idle.
func subscribeStreams(t *testing.T, streams ...terminal.Stream) (*Client, *fakeDialer, *atomic.Int32) {
	t.Helper()
	var opens atomic.Int32
	d := &fakeDialer{}
	d.openFn = func(_ string, _ any) (terminal.Stream, error) {
		n := int(opens.Add(1))
		if n <= len(streams) {
			return streams[n-1], nil
		}
		return newScriptedStream(nil), nil
	}
	c := newTestClient(d)
	return c, d, &opens
}

func collect(t *testing.T, sub *Subscription, n int) []terminal.Event {
	t.Helper()
	out := make([]terminal.Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("events closed after %d of %d events, Err=%v", len(out), n, sub.Err())
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func waitClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("subscription did not terminate")
		}
	}
}

func open(ctx context.Context, s terminal.Session) (terminal.Stream, error) {
	return s.OpenStream(ctx, "quotes.subscribe", nil)
}

func TestSubscribe_ResumesAfterStreamFailure(t *testing.T) {
	// The first physical stream dies after two events; the replacement
	// continues with fresh ones. The consumer sees 1, 2, 3, 4 — no
	// duplicates of 1 and 2, no synthetic fill for the outage.
	c, d, opens := subscribeStreams(t,
		newScriptedStream(transportErr("conn_reset"), tick(1), tick(2)),
		newScriptedStream(nil, tick(3), tick(4)),
	)
	defer c.Close()

	sub := c.Subscribe(context.Background(), open)
	got := collect(t, sub, 4)
	sub.Close()
	waitClosed(t, sub)

	for i, want := range []uint64{1, 2, 3, 4} {
		if got[i].Seq != want {
			t.Errorf("event[%d].Seq: got %d, want %d", i, got[i].Seq, want)
		}
	}
	if err := sub.Err(); err != nil {
		t.Errorf("Err after clean close: got %v, want nil", err)
	}
	if n := opens.Load(); n != 2 {
		t.Errorf("stream opens: got %d, want 2", n)
	}
	// Initial connect plus one reconnect for the broken stream.
	if d.count() != 2 {
		t.Errorf("dials: got %d, want 2", d.count())
	}
}

func TestSubscribe_FatalTerminatesWithError(t *testing.T) {
	c, _, opens := subscribeStreams(t,
		newScriptedStream(domainErr("unknown_symbol"), tick(1)),
	)
	defer c.Close()

	sub := c.Subscribe(context.Background(), open)
	got := collect(t, sub, 1)
	waitClosed(t, sub)

	if got[0].Seq != 1 {
		t.Errorf("event.Seq: got %d, want 1", got[0].Seq)
	}
	var terr *terminal.Error
	if !errors.As(sub.Err(), &terr) || terr.Code != "unknown_symbol" {
		t.Errorf("Err: got %v, want the domain rejection verbatim", sub.Err())
	}
	if n := opens.Load(); n != 1 {
		t.Errorf("stream opens: got %d, want 1 — fatal must not reopen", n)
	}
}

func TestSubscribe_CancelTerminatesCleanly(t *testing.T) {
	c, _, _ := subscribeStreams(t, newScriptedStream(nil, tick(1)))
	defer c.Close()

	sub := c.Subscribe(context.Background(), open)
	collect(t, sub, 1)

	sub.Close()
	waitClosed(t, sub)

	if err := sub.Err(); err != nil {
		t.Errorf("Err after cancellation: got %v, want nil", err)
	}
}

func TestSubscribe_DeadlineSurfacesTimeout(t *testing.T) {
	c, _, _ := subscribeStreams(t, newScriptedStream(nil))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sub := c.Subscribe(ctx, open)
	waitClosed(t, sub)

	if !errors.Is(sub.Err(), ErrTimeout) {
		t.Errorf("Err: got %v, want ErrTimeout", sub.Err())
	}
}

func TestSubscribe_ReopensAfterOpenFailure(t *testing.T) {
	// The subscribe call itself fails transiently twice before a
	// stream comes up. Each failure forces a reconnect.
	var opens atomic.Int32
	d := &fakeDialer{}
	d.openFn = func(_ string, _ any) (terminal.Stream, error) {
		if opens.Add(1) <= 2 {
			return nil, transportErr("conn_reset")
		}
		return newScriptedStream(nil, tick(7)), nil
	}
	c := newTestClient(d)
	defer c.Close()

	sub := c.Subscribe(context.Background(), open)
	got := collect(t, sub, 1)
	sub.Close()
	waitClosed(t, sub)

	if got[0].Seq != 7 {
		t.Errorf("event.Seq: got %d, want 7", got[0].Seq)
	}
	if n := opens.Load(); n != 3 {
		t.Errorf("stream opens: got %d, want 3", n)
	}
	if d.count() != 3 {
		t.Errorf("dials: got %d, want 3", d.count())
	}
}

func TestSubscribeQuotes_PassesSymbols(t *testing.T) {
	var gotMethod string
	var gotParams any
	d := &fakeDialer{}
	d.openFn = func(method string, params any) (terminal.Stream, error) {
		gotMethod = method
		gotParams = params
		return newScriptedStream(nil, tick(1)), nil
	}
	c := newTestClient(d)
	defer c.Close()

	sub := c.SubscribeQuotes(context.Background(), []string{"EURUSD", "XAUUSD"})
	collect(t, sub, 1)
	sub.Close()
	waitClosed(t, sub)

	if gotMethod != "quotes.subscribe" {
		t.Errorf("method: got %q, want quotes.subscribe", gotMethod)
	}
	params, ok := gotParams.(map[string]any)
	if !ok {
		t.Fatalf("params: got %T, want map", gotParams)
	}
	syms, ok := params["symbols"].([]string)
	if !ok || len(syms) != 2 || syms[0] != "EURUSD" {
		t.Errorf("symbols: got %v", params["symbols"])
	}
}
