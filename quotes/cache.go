package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/termbridge/termbridge/terminal"
)

// Tick is one quote update for a symbol. It is the payload schema of
// the "quotes.subscribe" stream.
type Tick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// Entry is a tick together with the time the cache received it.
type Entry struct {
	Tick       Tick
	ReceivedAt time.Time
}

// Cache holds the latest tick per symbol, evicting symbols that have
// not updated within the TTL. Safe for concurrent use: a subscription
// goroutine feeds Apply while readers call Get and List.
type Cache struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Cache with the given TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Apply decodes a subscription event into a Tick and stores it.
func (c *Cache) Apply(ev terminal.Event) error {
	var t Tick
	if err := json.Unmarshal(ev.Payload, &t); err != nil {
		return fmt.Errorf("quotes: decode tick: %w", err)
	}
	if t.Symbol == "" {
		return fmt.Errorf("quotes: tick without symbol")
	}
	c.Put(t)
	return nil
}

// Put stores or replaces the latest tick for t.Symbol.
func (c *Cache) Put(t Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[t.Symbol] = &Entry{Tick: t, ReceivedAt: c.now()}
}

// Get returns the latest entry for symbol and whether one exists.
// The entry may be stale if the TTL has elapsed but eviction has not
// run yet.
func (c *Cache) Get(symbol string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[symbol]
	return e, ok
}

// List returns all entries received within the TTL, sorted by symbol.
func (c *Cache) List() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cutoff := c.now().Add(-c.ttl)
	out := make([]*Entry, 0, len(c.data))
	for _, e := range c.data {
		if e.ReceivedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tick.Symbol < out[j].Tick.Symbol
	})
	return out
}

// Count returns the number of symbols currently held, stale included.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Evict removes symbols whose last tick is older than now minus TTL.
// It returns the number removed.
func (c *Cache) Evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.ttl)
	removed := 0
	for sym, e := range c.data {
		if !e.ReceivedAt.After(cutoff) {
			delete(c.data, sym)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop, ticking at half the TTL
// (minimum 1 second). Blocks until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := c.Evict(now); n > 0 {
				slog.Debug("quotes: evicted stale symbols", "count", n)
			}
		}
	}
}
