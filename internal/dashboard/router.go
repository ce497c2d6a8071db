// Package dashboard serves the local browser dashboard: role-gated pages
// rendered from the query cache, form actions that run mutations, and a
// websocket that tells open pages when their data changed.
package dashboard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/config"
	"github.com/gmvreport/gmvdash/internal/metrics"
	"github.com/gmvreport/gmvdash/internal/ratelimit"
	"github.com/gmvreport/gmvdash/internal/service"
	"github.com/gmvreport/gmvdash/internal/session"
	"github.com/gmvreport/gmvdash/internal/ui"
	"github.com/gmvreport/gmvdash/internal/validate"
	"github.com/gmvreport/gmvdash/internal/views"
)

// RouterDeps holds all dependencies for the dashboard router.
type RouterDeps struct {
	Service  *service.Service
	Guard    *session.Guard
	Renderer *ui.Renderer
	// Schema lists the login form fields. Nil means the default
	// email and password pair.
	Schema  *validate.Schema
	Metrics *metrics.Metrics
	Limiter *ratelimit.Limiter
	Toasts  *views.Toasts
	// LoadWait is how long a page waits for a key it has never loaded
	// before rendering that section as loading. Zero means 2s.
	LoadWait time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
}

type server struct {
	svc      *service.Service
	guard    *session.Guard
	render   *ui.Renderer
	schema   *validate.Schema
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	toasts   *views.Toasts
	loadWait time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func newServer(deps RouterDeps) *server {
	s := &server{
		svc:      deps.Service,
		guard:    deps.Guard,
		render:   deps.Renderer,
		schema:   deps.Schema,
		metrics:  deps.Metrics,
		limiter:  deps.Limiter,
		toasts:   deps.Toasts,
		loadWait: deps.LoadWait,
		now:      deps.Now,
		logger:   deps.Logger,
	}
	if s.schema == nil {
		s.schema = validate.NewSchema(config.DefaultLoginFields())
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(5, time.Minute)
	}
	if s.toasts == nil {
		s.toasts = views.NewToasts(5)
	}
	if s.loadWait <= 0 {
		s.loadWait = 2 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	s := newServer(deps)
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(slogRequestLogger)
	r.Use(secureHeaders)
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
	}
	r.Use(s.sameOrigin)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"session": string(s.guard.State()),
		})
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.PrometheusHandler())
		r.Get("/debug/summary", s.metrics.Handler())
	}
	r.Handle("/static/*", ui.Static())

	// Session routes. Only login POSTs are throttled.
	r.Get("/", s.home)
	r.Group(func(lr chi.Router) {
		onReject := func() {}
		if s.metrics != nil {
			onReject = s.metrics.IncLoginThrottled
		}
		lr.Use(ratelimit.Middleware(s.limiter, s.loginThrottled, onReject))
		lr.Get("/login", s.loginPage)
		lr.Post("/login", s.login)
	})
	r.Post("/logout", s.logout)
	r.Post("/toasts/{id}/dismiss", s.dismissToast)

	// Manager views and actions.
	r.Route("/manager", func(mr chi.Router) {
		mr.Use(s.requireRole(apiclient.RoleManager))

		mr.Get("/", s.managerPage)
		mr.Post("/reports/{id}/status", s.updateReportStatus)
		mr.Get("/reports/export.xlsx", s.exportReports)

		mr.Get("/hosts", s.hostsPage)
		mr.Post("/hosts", s.createHost)
		mr.Post("/hosts/{id}", s.updateHost)
		mr.Post("/hosts/{id}/delete", s.deleteHost)
		mr.Post("/hosts/{id}/toggle", s.toggleHost)

		mr.Get("/users", s.usersPage)
		mr.Post("/users/{id}/approve", s.approveUser)
		mr.Post("/users/{id}/reject", s.rejectUser)
	})

	// Host view.
	r.With(s.requireRole(apiclient.RoleHost)).Get("/host", s.hostPage)

	// Live updates for any open page.
	r.Get("/ws", s.live)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "Not found", "The page you are looking for does not exist.")
	})

	return r
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// metricsMiddleware records every request under its chi route pattern so
// ids in paths do not explode label cardinality.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				pattern = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTP(r.Method, pattern, status, time.Since(start))
		})
	}
}
