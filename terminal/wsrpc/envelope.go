package wsrpc

import (
	"encoding/json"

	"github.com/termbridge/termbridge/terminal"
)

// frame is the single JSON envelope for every message on the socket.
//
//   - request:  {id, method, params}
//   - reply:    {id, result} or {id, error}
//   - push:     {stream, seq, event}
//
// For subscriptions the request id doubles as the stream id: the
// bridge pushes events tagged with the id of the subscribe request
// that created them. That lets the client register the stream before
// the subscribe frame is even sent, so no early event can be lost to a
// registration race.
type frame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params any             `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
	Stream string          `json:"stream,omitempty"`
	Seq    uint64          `json:"seq,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
}

// wireError is the bridge's error shape inside a reply frame.
type wireError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// toTerminal converts a wire error to the boundary type. An unknown
// category tag degrades to transport so the retry layer stays safe:
// wrongly retrying a transport error is harmless, wrongly retrying a
// rejection is not.
func (e *wireError) toTerminal() *terminal.Error {
	cat := terminal.Category(e.Category)
	switch cat {
	case terminal.CategoryTransport, terminal.CategorySession, terminal.CategoryDomain:
	default:
		cat = terminal.CategoryTransport
	}
	return &terminal.Error{Category: cat, Code: e.Code, Message: e.Message}
}
