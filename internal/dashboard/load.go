package dashboard

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/query"
	"github.com/gmvreport/gmvdash/internal/service"
	"github.com/gmvreport/gmvdash/internal/views"
)

// liveRefreshHeader marks the page fetches the live script makes.
const liveRefreshHeader = "X-Live-Refresh"

// loadAs reads q for a page section. Fresh or merely old data renders at
// once and is refreshed in the background. Data invalidated by a write, or
// a key never loaded, gets up to loadWait to arrive; after that the section
// renders with what the cache has and the live socket announces the rest.
func loadAs[T any](s *server, r *http.Request, q service.Query) (T, views.Section) {
	var zero T
	ctx := context.WithoutCancel(r.Context())
	cache := s.svc.Cache()

	if snap, ok := cache.Peek(q.Key); ok && snap.Status == query.StatusSuccess && !snap.Stale {
		go func() { _, _ = s.svc.Fetch(ctx, q) }()
		v, _ := query.Data[T](snap)
		return v, views.SectionOf(snap)
	}

	type result struct {
		snap query.Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := s.svc.Fetch(ctx, q)
		done <- result{snap, err}
	}()

	timer := time.NewTimer(s.loadWait)
	defer timer.Stop()

	var snap query.Snapshot
	select {
	case res := <-done:
		snap = res.snap
		if res.err != nil && snap.Err == nil {
			snap.Err = res.err
		}
	case <-timer.C:
		snap, _ = cache.Peek(q.Key)
		if snap.Data == nil {
			snap.Status = query.StatusLoading
		}
		snap.IsFetching = true
	}

	sec := views.SectionOf(snap)
	v, ok := query.Data[T](snap)
	if !ok {
		return zero, sec
	}
	return v, sec
}

// idParam reads the {id} route parameter.
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// redirectBack returns the browser to the page the form was posted from,
// or to fallback when the referrer is missing or foreign.
func redirectBack(w http.ResponseWriter, r *http.Request, fallback string) {
	target := fallback
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Host == r.Host && ref.Path != "" {
		target = ref.RequestURI()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// notify queues the outcome of a mutation as a toast.
func (s *server) notify(err error, success string) {
	if err != nil {
		s.toasts.Error(apiclient.Message(err))
		return
	}
	s.toasts.Success(success)
}
