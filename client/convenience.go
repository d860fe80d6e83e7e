package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/termbridge/termbridge/terminal"
)

// Typed wrappers over the two entry points. These are deliberately
// thin: one method name, one params shape, one decode. The full
// business layer (order placement, margin helpers, symbol lookups)
// belongs in the application, written the same way.

// AccountSummary is the terminal's account state snapshot.
type AccountSummary struct {
	Currency   string  `json:"currency"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
}

// AccountSummary fetches the current account state.
func (c *Client) AccountSummary(ctx context.Context) (AccountSummary, error) {
	return Execute(ctx, c, func(ctx context.Context, s terminal.Session, budget time.Duration) (AccountSummary, error) {
		raw, err := s.Call(ctx, "account.summary", nil, budget)
		if err != nil {
			return AccountSummary{}, err
		}
		var out AccountSummary
		if err := json.Unmarshal(raw, &out); err != nil {
			return AccountSummary{}, fmt.Errorf("%w: account.summary: %v", ErrBadReply, err)
		}
		return out, nil
	})
}

// SubscribeQuotes opens a live quote subscription for the given
// symbols. Event payloads decode into quotes.Tick.
func (c *Client) SubscribeQuotes(ctx context.Context, symbols []string) *Subscription {
	params := map[string]any{"symbols": symbols}
	return c.Subscribe(ctx, func(ctx context.Context, s terminal.Session) (terminal.Stream, error) {
		return s.OpenStream(ctx, "quotes.subscribe", params)
	})
}
