package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/ui"
	"github.com/gmvreport/gmvdash/internal/validate"
)

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps a failed call to the status the dashboard answers with.
func statusFor(err error) int {
	var verr *validate.Error
	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &apiErr) && apiErr.Status >= 400:
		return apiErr.Status
	case apiclient.IsTransport(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// renderError renders the error page; API-style clients get the JSON
// envelope instead.
func (s *server) renderError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	if r.Header.Get("Accept") == "application/json" {
		writeError(w, status, http.StatusText(status), message)
		return
	}
	s.page(w, r, status, ui.PageError, ui.Page{Title: title, Data: message})
}

// page fills in the session user and pending toasts, then renders. Live
// refreshes only swap the main content, so they leave toasts queued.
func (s *server) page(w http.ResponseWriter, r *http.Request, status int, name string, p ui.Page) {
	if sess, ok := s.guard.Session(); ok {
		u := sess.User
		p.User = &u
	}
	if r.Header.Get(liveRefreshHeader) == "" {
		p.Toasts = s.toasts.Drain()
	}
	if err := s.render.Render(w, status, name, p); err != nil {
		s.logger.Error("failed to render page", "page", name, "error", err)
		writeError(w, http.StatusInternalServerError, "render_failed", "failed to render page")
	}
}
