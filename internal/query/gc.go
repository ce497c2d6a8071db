package query

import (
	"context"
	"time"
)

// Prune drops entries that have no subscribers, no fetch in flight, and
// have not been used for the client's GC time. It returns how many were
// removed.
func (c *Client) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for ks, e := range c.entries {
		if len(e.subs) > 0 || e.fetching > 0 {
			continue
		}
		if now.Sub(e.lastUsed) >= c.gcTime {
			delete(c.entries, ks)
			removed++
		}
	}
	return removed
}

// Clear drops every entry, for example after the signed-in user changes.
// Responses still in flight are discarded. Subscribed keys start over in
// the loading state and are fetched again.
func (c *Client) Clear() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.clears++
	old := c.entries
	c.entries = make(map[string]*entry, len(old))

	var notify []func()
	for _, e := range old {
		if len(e.subs) == 0 {
			continue
		}
		ne := c.entryLocked(e.key)
		ne.fn, ne.opts, ne.subs = e.fn, e.opts, e.subs
		for s := range ne.subs {
			s.prev, s.hasPrev = nil, false
		}
		if ne.fn != nil {
			ne.status = StatusLoading
			c.spawnLocked(ne.key, ne.fn, ne.opts)
		}
		notify = append(notify, c.collectLocked(ne))
	}
	c.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// Len is the number of cached entries.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartGC prunes on a ticker. It blocks until ctx is cancelled or the client
// is closed.
func (c *Client) StartGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Prune(); n > 0 {
				c.logger.Debug("pruned unused query entries", "count", n)
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}
