package query

import "context"

// Subscription is a mounted view's interest in one key. It owns the refetch
// interval timer for that key; Close (or Rekey) stops it.
type Subscription struct {
	c        *Client
	key      Key
	fn       FetchFunc
	opts     Options
	onChange func(Snapshot)

	timer  Timer
	gen    uint64
	closed bool

	prev    any
	hasPrev bool
}

// Subscribe registers interest in key. A brand-new key enters the loading
// state and is fetched in the background; an entry that is not fresh is
// refetched silently. onChange (optional) runs after every state change of
// the entry, outside the client lock.
func (c *Client) Subscribe(key Key, fn FetchFunc, opts Options, onChange func(Snapshot)) *Subscription {
	s := &Subscription{c: c, opts: opts.merge(c.defaults), onChange: onChange}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		s.key, s.fn, s.closed = key, fn, true
		return s
	}
	c.attachLocked(s, key, fn)
	return s
}

func (c *Client) attachLocked(s *Subscription, key Key, fn FetchFunc) {
	e := c.entryLocked(key)
	s.key = key
	s.fn = fn
	if fn != nil {
		e.fn = fn
	}
	e.opts = s.opts
	e.subs[s] = struct{}{}
	e.lastUsed = c.clock.Now()
	c.rec.SubscriptionsChanged(key.Path(), 1)

	if !c.freshLocked(e, s.opts.StaleTime) {
		if e.status == StatusIdle {
			e.status = StatusLoading
		}
		c.spawnLocked(key, e.fn, s.opts)
	}
	c.armLocked(s)
}

func (c *Client) detachLocked(s *Subscription) {
	s.stopTimerLocked()
	e, ok := c.entries[s.key.String()]
	if !ok {
		return
	}
	if _, ok := e.subs[s]; !ok {
		return
	}
	delete(e.subs, s)
	e.lastUsed = c.clock.Now()
	c.rec.SubscriptionsChanged(s.key.Path(), -1)
}

func (c *Client) armLocked(s *Subscription) {
	if s.opts.RefetchInterval <= 0 {
		return
	}
	s.gen++
	gen := s.gen
	s.timer = c.clock.AfterFunc(s.opts.RefetchInterval, func() { c.tick(s, gen) })
}

func (c *Client) tick(s *Subscription, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || s.closed || s.gen != gen {
		return
	}
	if e, ok := c.entries[s.key.String()]; ok {
		c.spawnLocked(s.key, e.fn, s.opts)
	}
	c.armLocked(s)
}

func (s *Subscription) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Subscription) snapshotLocked(e *entry) Snapshot {
	snap := e.snapshot()
	if s.hasPrev && (e.status == StatusIdle || e.status == StatusLoading) {
		snap.Status = StatusSuccess
		snap.Data = s.prev
		snap.IsPreviousData = true
		snap.IsFetching = true
	}
	return snap
}

// Key returns the key the subscription currently follows.
func (s *Subscription) Key() Key {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.key
}

// Snapshot returns the current state for the subscribed key.
func (s *Subscription) Snapshot() Snapshot {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	e, ok := s.c.entries[s.key.String()]
	if !ok {
		return Snapshot{Key: s.key, Status: StatusIdle}
	}
	return s.snapshotLocked(e)
}

// Refetch fetches the subscribed key now, fresh or not.
func (s *Subscription) Refetch(ctx context.Context) (Snapshot, error) {
	s.c.mu.Lock()
	if s.closed {
		s.c.mu.Unlock()
		return Snapshot{Key: s.key}, ErrClosed
	}
	key, fn, opts := s.key, s.fn, s.opts
	s.c.mu.Unlock()
	return s.c.fetch(ctx, key, fn, opts)
}

// Rekey moves the subscription to key, e.g. after a filter change. The
// old key's interval timer is stopped. With KeepPreviousData the old data
// stays visible, flagged IsPreviousData, until the new key resolves.
func (s *Subscription) Rekey(key Key, fn FetchFunc) {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closed {
		return
	}
	if key.Equal(s.key) {
		if fn != nil {
			s.fn = fn
		}
		return
	}

	s.prev, s.hasPrev = nil, false
	if old, ok := c.entries[s.key.String()]; ok && s.opts.KeepPreviousData && old.status == StatusSuccess {
		s.prev, s.hasPrev = old.data, true
	}
	c.detachLocked(s)
	c.attachLocked(s, key, fn)
	if e := c.entries[key.String()]; e.status == StatusSuccess {
		s.prev, s.hasPrev = nil, false
	}
}

// Close unsubscribes and stops the interval timer. The entry stays cached
// until garbage collected.
func (s *Subscription) Close() {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	c.detachLocked(s)
}
