// Package quotes keeps the latest tick per symbol, fed from a quote
// subscription. Symbols that stop updating are evicted after a TTL so
// consumers never act on a price from before an outage without
// noticing: after a reconnect gap longer than the TTL, the symbol
// simply disappears until its next tick arrives.
package quotes
