// Package client is the resilient call-execution layer for the
// terminal bridge. It turns one logical operation — a unary call or a
// server-push subscription — into however many physical attempts it
// takes, reconnecting the underlying session between attempts.
//
// Entry points:
//   - Execute(ctx, c, op) — unary: retry until success, a fatal
//     classification, deadline expiry, or cancellation; no attempt cap
//   - Client.Subscribe(ctx, open) — streaming: a Subscription whose
//     inner physical stream is reopened transparently on transient
//     failure; across a reconnect the consumer sees a gap, never a
//     duplicate (at-most-once per attempt, no gap filling)
//
// The Client owns the single logical session. Reconnects are
// single-flight: N concurrent callers observing a dead session trigger
// exactly one dial. Failures are classified from the terminal error's
// category tag — transport and session errors are absorbed and
// retried with a fixed backoff, domain rejections surface verbatim.
//
// Cancellation is cooperative, carried by the caller's context and
// honored before each attempt, before each backoff sleep, and before
// each forwarded event. It does not interrupt an in-flight read;
// pair it with a deadline for a hard bound.
package client
