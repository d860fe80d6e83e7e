// Package terminal defines the transport boundary between the resilient
// client and a concrete connection to the trading-terminal bridge.
//
// Types:
//   - Session — one authenticated connection: unary Call, OpenStream, Close
//   - Stream — the consumer side of one physical subscription
//   - Dialer — establishes Sessions; injectable for testing
//   - Event — one server-pushed item (stream id, sequence, payload)
//   - Error — a categorised failure; Category is what the client's
//     classifier reads (transport | session | domain)
//
// The package is pure interface and data declarations. The shipped
// implementation lives in terminal/wsrpc; tests use in-memory fakes.
package terminal
