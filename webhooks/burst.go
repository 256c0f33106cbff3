package webhooks

import (
	"strings"
	"sync"
	"time"
)

type CoalescerOptions struct {
	Window     time.Duration
	MaxEntries int
	Now        func() time.Time
}

// Coalescer suppresses repeat deliveries for the same key inside a
// short window. The outbox retry backoff is longer than any sensible
// window, so a failed delivery's redelivery is never swallowed.
type Coalescer struct {
	window     time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewCoalescer(opts CoalescerOptions) *Coalescer {
	window := opts.Window
	if window <= 0 {
		window = 2 * time.Second
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Coalescer{
		window:     window,
		maxEntries: maxEntries,
		now:        now,
		entries:    map[string]time.Time{},
	}
}

// Allow reports whether a delivery for the key should go out now. The
// first sighting of a key always passes; repeats pass once the window
// has elapsed since the previous sighting.
func (c *Coalescer) Allow(key string) bool {
	if c == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	lastSeen, exists := c.entries[key]
	c.entries[key] = now
	c.cleanup(now)
	if !exists {
		return true
	}
	return now.Sub(lastSeen) >= c.window
}

func (c *Coalescer) cleanup(now time.Time) {
	if len(c.entries) <= c.maxEntries {
		for key, seenAt := range c.entries {
			if now.Sub(seenAt) > c.window*4 {
				delete(c.entries, key)
			}
		}
		return
	}
	for key, seenAt := range c.entries {
		if now.Sub(seenAt) > c.window {
			delete(c.entries, key)
		}
		if len(c.entries) <= c.maxEntries {
			break
		}
	}
}
