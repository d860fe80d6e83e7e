// Package wsrpc implements the terminal transport boundary over a
// WebSocket JSON protocol.
//
// One socket carries everything: unary requests are correlated to
// replies by a uuid frame id, and server-push subscriptions reuse the
// subscribe request's id as the stream id, so a stream can be
// registered before its subscribe frame is sent and no early event is
// lost. Frame shapes are documented on the frame type in envelope.go.
//
// Liveness: the session pings on a 54s period and requires a pong
// within 60s; every write carries a 10s deadline. A read, write, or
// ping failure kills the session exactly once and propagates the same
// error to every pending call and open stream, which is what the
// resilient client layer keys its reconnect on.
//
// Login happens inside Dial ("session.login" with env-resolved
// credentials); a rejected login surfaces as the bridge's domain error
// so the client will not retry it.
package wsrpc
