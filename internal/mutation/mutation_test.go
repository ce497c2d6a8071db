package mutation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmvreport/gmvdash/internal/query"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *fakeRecorder) MutationDone(name, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name+":"+result)
}

func newQueryClient(t *testing.T) *query.Client {
	t.Helper()
	qc := query.New(query.WithDefaults(query.Options{StaleTime: time.Hour, Retry: 1, RetryDelay: -1}))
	t.Cleanup(qc.Close)
	return qc
}

func countingFetch() (query.FetchFunc, *atomic.Int32) {
	var n atomic.Int32
	return func(ctx context.Context) (any, error) {
		return n.Add(1), nil
	}, &n
}

func TestSuccessInvalidatesDependentSet(t *testing.T) {
	qc := newQueryClient(t)
	allFn, allCalls := countingFetch()
	mineFn, mineCalls := countingFetch()
	hostsFn, hostsCalls := countingFetch()

	subs := []*query.Subscription{
		qc.Subscribe(query.NewKey("reports", "all"), allFn, query.Options{}, nil),
		qc.Subscribe(query.NewKey("reports", "mine"), mineFn, query.Options{}, nil),
		qc.Subscribe(query.NewKey("hosts", "approved"), hostsFn, query.Options{}, nil),
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()
	qc.Wait()

	rec := &fakeRecorder{}
	var writes atomic.Int32
	m := New("report.status", qc, func(ctx context.Context, id int64) (string, error) {
		writes.Add(1)
		return "VERIFIED", nil
	}, []query.Key{query.NewKey("reports", "all"), query.NewKey("reports", "mine")}, WithRecorder(rec))

	out, err := m.Mutate(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "VERIFIED", out)
	qc.Wait()

	assert.Equal(t, int32(1), writes.Load())
	assert.Equal(t, int32(2), allCalls.Load())
	assert.Equal(t, int32(2), mineCalls.Load())
	assert.Equal(t, int32(1), hostsCalls.Load())
	assert.Equal(t, []string{"report.status:success"}, rec.events)

	st := m.State()
	assert.Zero(t, st.Pending)
	assert.NoError(t, st.LastError)
	assert.False(t, st.LastSuccessAt.IsZero())
}

func TestFailureInvalidatesNothingAndDoesNotRetry(t *testing.T) {
	qc := newQueryClient(t)
	fn, calls := countingFetch()
	sub := qc.Subscribe(query.NewKey("hosts"), fn, query.Options{}, nil)
	defer sub.Close()
	qc.Wait()

	boom := errors.New("Host not found")
	var writes atomic.Int32
	m := New("host.delete", qc, func(ctx context.Context, id int64) (struct{}, error) {
		writes.Add(1)
		return struct{}{}, boom
	}, []query.Key{query.NewKey("hosts")})

	_, err := m.Mutate(context.Background(), 7)
	assert.ErrorIs(t, err, boom)
	qc.Wait()

	assert.Equal(t, int32(1), writes.Load(), "writes are never retried")
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, sub.Snapshot().Stale)
	assert.ErrorIs(t, m.State().LastError, boom)
}

func TestConcurrentMutationsTrackPending(t *testing.T) {
	qc := newQueryClient(t)
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	m := New("user.approve", qc, func(ctx context.Context, id int64) (struct{}, error) {
		started <- struct{}{}
		<-release
		return struct{}{}, nil
	}, []query.Key{query.NewKey("users", "pending")})

	var wg sync.WaitGroup
	for i := int64(1); i <= 2; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := m.Mutate(context.Background(), id)
			assert.NoError(t, err)
		}(i)
	}
	<-started
	<-started
	assert.Equal(t, 2, m.State().Pending)

	close(release)
	wg.Wait()
	assert.Equal(t, 0, m.State().Pending)
}

func TestInvalidatesCopy(t *testing.T) {
	m := New[int, int]("noop", nil, func(ctx context.Context, in int) (int, error) { return in, nil }, []query.Key{query.NewKey("hosts")})
	keys := m.Invalidates()
	keys[0] = query.NewKey("other")
	assert.Equal(t, "hosts", m.Invalidates()[0].String())

	out, err := m.Mutate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, out)
}
