package wsrpc

import (
	"sync"

	"github.com/termbridge/termbridge/terminal"
)

// stream is one physical subscription on a session. It dies with its
// session; the resilient client above reopens a fresh one after
// reconnecting.
type stream struct {
	id   string
	sess *session

	ch   chan terminal.Event
	done chan struct{}
	once sync.Once
	err  error
}

// Recv returns the next event. Events already received before a
// failure are drained in order before the failure is reported.
func (st *stream) Recv() (terminal.Event, error) {
	select {
	case ev := <-st.ch:
		return ev, nil
	default:
	}
	select {
	case ev := <-st.ch:
		return ev, nil
	case <-st.done:
		return terminal.Event{}, st.err
	}
}

// Close cancels the subscription. The bridge is told best-effort; a
// broken socket at this point is irrelevant because the session is
// being torn down anyway.
func (st *stream) Close() error {
	st.once.Do(func() {
		st.err = errSessionClosed
		close(st.done)
	})
	st.sess.dropStream(st.id)
	_ = st.sess.write(&frame{Method: "stream.cancel", Params: map[string]string{"stream": st.id}})
	return nil
}

// fail terminates the stream with err. Called by the session when the
// connection dies.
func (st *stream) fail(err error) {
	st.once.Do(func() {
		st.err = err
		close(st.done)
	})
}
