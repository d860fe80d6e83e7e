package client

import (
	"errors"

	"github.com/termbridge/termbridge/terminal"
)

// class is the retry layer's verdict on one failed attempt.
type class int

const (
	// classTransient: link-level failure — reconnect and retry.
	classTransient class = iota

	// classSession: the remote terminal session is gone — same retry
	// path as classTransient, after a forced reconnect.
	classSession

	// classFatal: retrying cannot help — surface to the caller verbatim.
	classFatal
)

// classify assigns a failure from one physical attempt to a retry
// class. It reads only the terminal error's category tag and holds no
// state.
//
// Failures that carry no category — raw net errors, closed sockets,
// io.EOF from a dropped stream, a per-attempt timeout — are treated as
// transient: the link is suspect and a reconnect is the only sensible
// response. The executors check the caller's own context before
// consulting classify, so caller deadline expiry and cancellation
// never reach the transient path.
func classify(err error) class {
	var terr *terminal.Error
	if errors.As(err, &terr) {
		switch terr.Category {
		case terminal.CategoryDomain:
			return classFatal
		case terminal.CategorySession:
			return classSession
		default:
			return classTransient
		}
	}

	if errors.Is(err, ErrClosed) || errors.Is(err, ErrCredentials) || errors.Is(err, ErrBadReply) {
		return classFatal
	}

	return classTransient
}
