package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api/", opts...)
	require.NoError(t, err)
	return c
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestNewNormalizesBaseURL(t *testing.T) {
	c, err := New("http://localhost:5000/api///")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", c.BaseURL())

	_, err = New("/api")
	assert.Error(t, err)
	_, err = New("ftp://example.com")
	assert.Error(t, err)
}

func TestBearerTokenAttached(t *testing.T) {
	var got string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		writeData(w, map[string]any{"id": 1, "role": "HOST"})
	}, WithTokenSource(TokenFunc(func() string { return "tok-123" })))

	_, err := NewAuth(c).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", got)
}

func TestNoTokenNoHeader(t *testing.T) {
	var present bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["Authorization"]
		writeData(w, []any{})
	}, WithTokenSource(TokenFunc(func() string { return "" })))

	_, err := NewReports(c).AvailableMonths(context.Background())
	require.NoError(t, err)
	assert.False(t, present, "empty token must not produce an Authorization header")
}

func TestEnvelopeDecoding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/reports", r.URL.Path)
		assert.Equal(t, "PENDING", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.False(t, r.URL.Query().Has("month"), "zero month must be dropped")
		_, _ = io.WriteString(w, `{"data":{"reports":[
			{"id":7,"host_full_name":"Ana","reported_gmv":"1500000.50","status":"PENDING","created_at":"2024-05-01T10:00:00Z"},
			{"id":8,"host_full_name":"Budi","reported_gmv":250000,"status":"VERIFIED","created_at":"2024-05-02T10:00:00Z"}
		],"pagination":{"page":2,"limit":10,"total":12,"total_pages":2}}}`)
	})

	page, err := NewReports(c).List(context.Background(), ReportParams{Status: StatusPending, Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Reports, 2)
	assert.Equal(t, Money(150000050), page.Reports[0].ReportedGMV)
	assert.Equal(t, NewMoney(250000), page.Reports[1].ReportedGMV)
	assert.Equal(t, 2, page.Pagination.TotalPages)
}

func TestAPIErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"Report already processed"}`)
	})

	_, err := NewReports(c).UpdateStatus(context.Background(), 3, StatusVerified, "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Report already processed", Message(err))
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestAPIErrorFallsBackToStatusText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})

	err := NewHosts(c).Delete(context.Background(), 1)
	assert.Equal(t, "Bad Gateway", Message(err))
}

func TestUnauthorizedTriggersHandler(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Token expired"}`)
	}, WithUnauthorizedHandler(func() { calls.Add(1) }))

	_, err := NewAuth(c).Me(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRejectedLoginKeepsSession(t *testing.T) {
	var calls atomic.Int32
	var authHeader string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Invalid email or password"}`)
	},
		WithTokenSource(TokenFunc(func() string { return "current-token" })),
		WithUnauthorizedHandler(func() { calls.Add(1) }),
	)

	_, err := NewAuth(c).Login(context.Background(), Credentials{"email": "a@example.com", "password": "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(0), calls.Load())
	assert.Empty(t, authHeader)
}

func TestUpdateStatusRejectsInvalidTarget(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	_, err := NewReports(c).UpdateStatus(context.Background(), 1, StatusPending, "")
	assert.Error(t, err)
	assert.Zero(t, hits.Load())
}

func TestRequestShapes(t *testing.T) {
	type seen struct {
		method, path string
		body         map[string]any
	}
	var last seen
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		last = seen{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&last.body)
		}
		writeData(w, map[string]any{"id": 5})
	})
	ctx := context.Background()

	_, err := NewReports(c).UpdateStatus(ctx, 9, StatusRejected, "blurry screenshot")
	require.NoError(t, err)
	assert.Equal(t, seen{http.MethodPut, "/api/reports/9/status", map[string]any{"status": "REJECTED", "notes": "blurry screenshot"}}, last)

	_, err = NewHosts(c).ToggleStatus(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, last.method)
	assert.Equal(t, "/api/hosts/5/toggle-status", last.path)

	require.NoError(t, NewUsers(c).Approve(ctx, 4))
	assert.Equal(t, http.MethodPut, last.method)
	assert.Equal(t, "/api/users/4/approve", last.path)

	require.NoError(t, NewUsers(c).Reject(ctx, 4))
	assert.Equal(t, http.MethodDelete, last.method)
	assert.Equal(t, "/api/users/4/reject", last.path)

	_, err = NewAuth(c).Login(ctx, Credentials{"email": "a@b.co", "password": "secret1"})
	// Handler returns no token, which Login treats as a failure.
	assert.Error(t, err)
	assert.Equal(t, "/api/auth/login", last.path)
	assert.Equal(t, map[string]any{"email": "a@b.co", "password": "secret1"}, last.body)
}

func TestHostParams(t *testing.T) {
	active := false
	v := HostParams{Status: "approved", Active: &active}.Values()
	assert.Equal(t, "approved", v.Get("status"))
	assert.Equal(t, "false", v.Get("is_active"))

	assert.Empty(t, HostParams{}.Values())
}

func TestTransportErrorClassification(t *testing.T) {
	// Grab a free port and close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := New("http://" + addr + "/api")
	require.NoError(t, err)

	_, err = NewAuth(c).Me(context.Background())
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "connection_refused", tErr.Kind)
	assert.True(t, IsTransport(err))
	assert.Contains(t, Message(err), "Cannot reach the server")
}

func TestTransportTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))

	_, err := NewAuth(c).Me(context.Background())
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "timeout", tErr.Kind)
}

type recordingObserver struct {
	statuses []int
}

func (o *recordingObserver) ObserveRequest(method string, status int, d time.Duration) {
	o.statuses = append(o.statuses, status)
}

func TestObserverSeesStatus(t *testing.T) {
	obs := &recordingObserver{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []any{})
	}, WithObserver(obs))

	_, err := NewUsers(c).Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{http.StatusOK}, obs.statuses)
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "Unknown error", Message(errors.New("boom")))
}
