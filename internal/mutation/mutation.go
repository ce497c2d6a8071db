// Package mutation runs writes against the API and, once the server has
// confirmed them, invalidates the cache entries that depend on them.
package mutation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gmvreport/gmvdash/internal/query"
)

// Recorder receives one event per finished mutation.
type Recorder interface {
	MutationDone(name, result string)
}

// Func performs the write.
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

// State is a mutation's bookkeeping for views (disable buttons while
// pending, show the last error).
type State struct {
	Pending       int
	LastError     error
	LastSuccessAt time.Time
}

// Mutation is a named write with a declared set of dependent cache keys.
// It is safe for concurrent use; concurrent calls are not ordered.
type Mutation[In, Out any] struct {
	name        string
	qc          *query.Client
	fn          Func[In, Out]
	invalidates []query.Key
	rec         Recorder
	now         func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures a Mutation.
type Option func(*options)

type options struct {
	rec Recorder
	now func() time.Time
}

func WithRecorder(r Recorder) Option {
	return func(o *options) { o.rec = r }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New declares a mutation. On success every cache entry under any of
// invalidates is marked stale and refetched if subscribed.
func New[In, Out any](name string, qc *query.Client, fn func(ctx context.Context, in In) (Out, error), invalidates []query.Key, opts ...Option) *Mutation[In, Out] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Mutation[In, Out]{
		name:        name,
		qc:          qc,
		fn:          fn,
		invalidates: invalidates,
		rec:         o.rec,
		now:         o.now,
	}
}

// Name identifies the mutation in logs and metrics.
func (m *Mutation[In, Out]) Name() string { return m.name }

// Invalidates returns the declared dependent keys.
func (m *Mutation[In, Out]) Invalidates() []query.Key {
	return append([]query.Key(nil), m.invalidates...)
}

// Mutate performs the write once. Writes are never retried. The error is
// returned unchanged and nothing is invalidated on failure.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) (Out, error) {
	m.mu.Lock()
	m.state.Pending++
	m.mu.Unlock()

	out, err := m.fn(ctx, in)

	m.mu.Lock()
	m.state.Pending--
	if err != nil {
		m.state.LastError = err
	} else {
		m.state.LastError = nil
		m.state.LastSuccessAt = m.now()
	}
	m.mu.Unlock()

	if err != nil {
		slog.Warn("mutation failed", "mutation", m.name, "error", err)
		m.record("error")
		return out, err
	}

	if m.qc != nil && len(m.invalidates) > 0 {
		keys := m.qc.Invalidate(m.invalidates...)
		slog.Debug("mutation invalidated queries", "mutation", m.name, "count", len(keys))
	}
	m.record("success")
	return out, nil
}

// State returns a copy of the current bookkeeping.
func (m *Mutation[In, Out]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mutation[In, Out]) record(result string) {
	if m.rec != nil {
		m.rec.MutationDone(m.name, result)
	}
}
