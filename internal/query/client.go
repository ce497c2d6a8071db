// Package query is the read-side cache shared by every dashboard view and
// CLI command. Entries are keyed by resource path plus filter parameters,
// fetched at most once per stale window, refreshed silently in the
// background, and invalidated by prefix after writes.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrClosed is returned by operations on a closed Client.
	ErrClosed = errors.New("query client closed")
	// ErrCleared is returned by a fetch whose response arrived after Clear.
	ErrCleared = errors.New("query cache cleared while fetching")
	// ErrSuperseded is returned when a fetch kept being overtaken by
	// invalidations and gave up.
	ErrSuperseded = errors.New("query response superseded")
)

// maxRejoins bounds how often one Fetch follows newer flights after its own
// response was superseded.
const maxRejoins = 4

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// FetchFunc loads the data for one key.
type FetchFunc func(ctx context.Context) (any, error)

// NoRetry disables retries when set as Options.Retry.
const NoRetry = -1

// Options tune one query. Zero fields take the client defaults. A negative
// Retry or RetryDelay means none.
type Options struct {
	StaleTime        time.Duration
	RefetchInterval  time.Duration
	RefetchOnFocus   bool
	Retry            int
	RetryDelay       time.Duration
	KeepPreviousData bool
}

func (o Options) merge(d Options) Options {
	if o.StaleTime == 0 {
		o.StaleTime = d.StaleTime
	}
	if o.RefetchInterval == 0 {
		o.RefetchInterval = d.RefetchInterval
	}
	if o.Retry == 0 {
		o.Retry = d.Retry
	}
	if o.Retry < 0 {
		o.Retry = 0
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	return o
}

// Snapshot is a point-in-time view of an entry.
type Snapshot struct {
	Key            Key
	Status         Status
	Data           any
	Err            error
	FetchedAt      time.Time
	Stale          bool
	IsFetching     bool
	IsPreviousData bool
}

// IsLoading is true only while a brand-new key has no data yet.
func (s Snapshot) IsLoading() bool { return s.Status == StatusLoading }

// Recorder receives cache events for metrics. resource is Key.Path().
type Recorder interface {
	FetchDone(resource, result string)
	CacheHit(resource string)
	Discarded(resource string)
	Invalidated(resource string)
	SubscriptionsChanged(resource string, delta int)
}

type nopRecorder struct{}

func (nopRecorder) FetchDone(string, string) {}
func (nopRecorder) CacheHit(string) {}
func (nopRecorder) Discarded(string) {}
func (nopRecorder) Invalidated(string) {}
func (nopRecorder) SubscriptionsChanged(string, int) {}

type entry struct {
	key       Key
	status    Status
	data      any
	err       error
	fetchedAt time.Time
	lastUsed  time.Time
	stale     bool

	// Issue sequence of the latest invalidation and of the latest applied
	// response. Responses issued before either are dropped.
	invalidatedSeq uint64
	appliedSeq     uint64
	epoch          uint64

	fetching int
	fn       FetchFunc
	opts     Options
	subs     map[*Subscription]struct{}
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:        e.key,
		Status:     e.status,
		Data:       e.data,
		Err:        e.err,
		FetchedAt:  e.fetchedAt,
		Stale:      e.stale,
		IsFetching: e.fetching > 0,
	}
}

// Client is the process-wide cache store. Create one with New and dispose
// of it with Close.
type Client struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	flights singleflight.Group
	// clears counts Clear calls so flights never span a clear.
	clears uint64

	clock    Clock
	defaults Options
	gcTime   time.Duration
	logger   *slog.Logger
	rec      Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	done   chan struct{}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithClock(clk Clock) ClientOption {
	return func(c *Client) { c.clock = clk }
}

// WithDefaults sets the options used for zero fields of per-query Options.
func WithDefaults(o Options) ClientOption {
	return func(c *Client) { c.defaults = o }
}

// WithGCTime sets how long an unused entry survives Prune.
func WithGCTime(d time.Duration) ClientOption {
	return func(c *Client) { c.gcTime = d }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) { c.rec = r }
}

// New creates a Client. Defaults: 30s stale time, one retry after 1s, 5m GC.
func New(opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		entries: make(map[string]*entry),
		clock:   realClock{},
		defaults: Options{
			StaleTime:  30 * time.Second,
			Retry:      1,
			RetryDelay: time.Second,
		},
		gcTime: 5 * time.Minute,
		logger: slog.Default(),
		rec:    nopRecorder{},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close stops every subscription timer, cancels background fetches and
// waits for them to return. The client is unusable afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, e := range c.entries {
		for s := range e.subs {
			s.closed = true
			s.stopTimerLocked()
		}
	}
	c.entries = make(map[string]*entry)
	close(c.done)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Wait blocks until background fetches in flight have returned.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Fetch returns the cached data for key when it is fresh, without calling
// fn. Otherwise it calls fn (shared with any concurrent fetch of the same
// key) and stores the result.
func (c *Client) Fetch(ctx context.Context, key Key, fn FetchFunc, opts Options) (Snapshot, error) {
	o := opts.merge(c.defaults)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{Key: key}, ErrClosed
	}
	e := c.entryLocked(key)
	e.lastUsed = c.clock.Now()
	if c.freshLocked(e, o.StaleTime) {
		snap := e.snapshot()
		c.mu.Unlock()
		c.rec.CacheHit(key.Path())
		return snap, nil
	}
	c.mu.Unlock()

	return c.fetch(ctx, key, fn, o)
}

// Peek returns the current state of key without fetching.
func (c *Client) Peek(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return Snapshot{Key: key, Status: StatusIdle}, false
	}
	return e.snapshot(), true
}

// Invalidate marks every entry under any of prefixes stale and refetches,
// once, each one that has subscribers. It returns the matched keys.
func (c *Client) Invalidate(prefixes ...Key) []Key {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.seq++
	seq := c.seq

	var matched []Key
	var notify []func()
	for _, e := range c.entries {
		if !hasAnyPrefix(e.key, prefixes) {
			continue
		}
		e.stale = true
		e.invalidatedSeq = seq
		e.epoch++
		matched = append(matched, e.key)
		c.rec.Invalidated(e.key.Path())

		if len(e.subs) > 0 && e.fn != nil {
			c.spawnLocked(e.key, e.fn, e.opts)
		}
		notify = append(notify, c.collectLocked(e))
	}
	c.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].String() < matched[j].String() })
	return matched
}

// Focus refetches stale entries whose subscribers asked for refetch on
// focus. It returns how many fetches were started.
func (c *Client) Focus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}

	n := 0
	for _, e := range c.entries {
		for s := range e.subs {
			if !s.opts.RefetchOnFocus || c.freshLocked(e, s.opts.StaleTime) {
				continue
			}
			c.spawnLocked(e.key, e.fn, s.opts)
			n++
			break
		}
	}
	return n
}

func hasAnyPrefix(k Key, prefixes []Key) bool {
	for _, p := range prefixes {
		if k.HasPrefix(p) {
			return true
		}
	}
	return false
}

func (c *Client) entryLocked(key Key) *entry {
	ks := key.String()
	e, ok := c.entries[ks]
	if !ok {
		e = &entry{
			key:      key,
			status:   StatusIdle,
			lastUsed: c.clock.Now(),
			subs:     make(map[*Subscription]struct{}),
		}
		c.entries[ks] = e
	}
	return e
}

func (c *Client) freshLocked(e *entry, staleTime time.Duration) bool {
	return e.status == StatusSuccess && !e.stale && c.clock.Now().Sub(e.fetchedAt) < staleTime
}

// spawnLocked starts a background fetch. The caller holds c.mu.
func (c *Client) spawnLocked(key Key, fn FetchFunc, o Options) {
	if c.closed || fn == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _ = c.fetch(c.ctx, key, fn, o)
	}()
}

type flightResult struct {
	snap Snapshot
	err  error
	// superseded is set when an invalidation overtook the flight and no
	// newer result has been applied yet.
	superseded bool
}

func (c *Client) fetch(ctx context.Context, key Key, fn FetchFunc, o Options) (Snapshot, error) {
	var res flightResult
	for i := 0; ; i++ {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return Snapshot{Key: key}, ErrClosed
		}
		e := c.entryLocked(key)
		if i > 0 && e.appliedSeq > e.invalidatedSeq {
			// A newer flight already landed.
			snap := e.snapshot()
			c.mu.Unlock()
			return snap, snap.Err
		}
		if fn != nil {
			e.fn = fn
		} else {
			fn = e.fn
		}
		if len(e.subs) == 0 {
			e.opts = o
		}
		flightKey := key.String() + "#" + strconv.FormatUint(c.clears, 10) + "." + strconv.FormatUint(e.epoch, 10)
		c.mu.Unlock()

		if fn == nil {
			return Snapshot{Key: key}, fmt.Errorf("query %s: no fetch function", key)
		}

		v, _, _ := c.flights.Do(flightKey, func() (any, error) {
			return c.flight(ctx, key, fn, o), nil
		})
		res = v.(flightResult)
		if !res.superseded {
			return res.snap, res.err
		}
		if err := ctx.Err(); err != nil {
			return res.snap, err
		}
		if i >= maxRejoins {
			return res.snap, ErrSuperseded
		}
	}
}

// flight performs one network fetch (with retries) and applies the result
// unless it was superseded while in flight.
func (c *Client) flight(ctx context.Context, key Key, fn FetchFunc, o Options) flightResult {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.seq++
	seq := c.seq
	e.fetching++
	notify := func() {}
	if e.status == StatusIdle {
		e.status = StatusLoading
		notify = c.collectLocked(e)
	}
	c.mu.Unlock()
	notify()

	data, err := c.attempt(ctx, fn, o)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return flightResult{snap: Snapshot{Key: key, Status: resultStatus(err), Data: data, Err: err}, err: err}
	}
	path := key.Path()
	if cur, ok := c.entries[key.String()]; !ok || cur != e {
		// Cleared while in flight.
		c.rec.Discarded(path)
		c.mu.Unlock()
		return flightResult{snap: Snapshot{Key: key, Status: StatusIdle}, err: ErrCleared}
	}
	e.fetching--

	var res flightResult
	switch {
	case seq < e.invalidatedSeq || seq < e.appliedSeq:
		c.rec.Discarded(path)
		c.logger.Debug("discarding superseded response", "key", key.String())
		if e.status == StatusLoading && e.fetching == 0 {
			e.status = StatusIdle
		}
		res = flightResult{snap: e.snapshot(), err: e.err, superseded: e.appliedSeq < e.invalidatedSeq}
		c.mu.Unlock()
		return res

	case err != nil && ctx.Err() != nil:
		// The caller went away; the entry keeps its previous state.
		if e.status == StatusLoading && e.fetching == 0 {
			e.status = StatusIdle
		}
		res = flightResult{snap: e.snapshot(), err: err}
		c.mu.Unlock()
		return res

	case err != nil:
		e.appliedSeq = seq
		e.status = StatusError
		e.err = err
		c.rec.FetchDone(path, "error")
		c.logger.Warn("query fetch failed", "key", key.String(), "error", err)

	default:
		e.appliedSeq = seq
		e.status = StatusSuccess
		e.data = data
		e.err = nil
		e.fetchedAt = c.clock.Now()
		e.stale = false
		c.rec.FetchDone(path, "success")
	}
	for s := range e.subs {
		s.prev, s.hasPrev = nil, false
	}

	res = flightResult{snap: e.snapshot(), err: err}
	notify = c.collectLocked(e)
	c.mu.Unlock()
	notify()
	return res
}

func resultStatus(err error) Status {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// attempt calls fn once plus up to o.Retry silent retries.
func (c *Client) attempt(ctx context.Context, fn FetchFunc, o Options) (any, error) {
	var lastErr error
	for i := 0; i <= o.Retry; i++ {
		if i > 0 {
			if err := c.sleep(ctx, o.RetryDelay); err != nil {
				return nil, lastErr
			}
		}
		data, err := fn(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	fired := make(chan struct{})
	t := c.clock.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

// collectLocked captures the subscriber callbacks and snapshots for e so
// they can run after c.mu is released.
func (c *Client) collectLocked(e *entry) func() {
	var calls []func()
	for s := range e.subs {
		if s.onChange == nil {
			continue
		}
		snap := s.snapshotLocked(e)
		fn := s.onChange
		calls = append(calls, func() { fn(snap) })
	}
	return func() {
		for _, call := range calls {
			call()
		}
	}
}
