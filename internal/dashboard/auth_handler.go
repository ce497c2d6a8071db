package dashboard

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/ratelimit"
	"github.com/gmvreport/gmvdash/internal/session"
	"github.com/gmvreport/gmvdash/internal/ui"
	"github.com/gmvreport/gmvdash/internal/validate"
	"github.com/gmvreport/gmvdash/internal/views"
)

// homePath is the landing view for a role.
func homePath(role apiclient.Role) string {
	if role == apiclient.RoleManager {
		return "/manager"
	}
	return "/host"
}

// home sends each role to its own view.
func (s *server) home(w http.ResponseWriter, r *http.Request) {
	switch s.guard.State() {
	case session.Verifying:
		s.page(w, r, http.StatusOK, ui.PageLoading, ui.Page{Title: "Loading"})
	case session.Authenticated:
		sess, _ := s.guard.Session()
		http.Redirect(w, r, homePath(sess.User.Role), http.StatusSeeOther)
	default:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

func (s *server) loginPage(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.guard.Session(); ok {
		http.Redirect(w, r, homePath(sess.User.Role), http.StatusSeeOther)
		return
	}
	s.renderLogin(w, r, http.StatusOK, nil, "", "")
}

// renderLogin shows the form with submitted non-secret values kept and
// the failing field marked.
func (s *server) renderLogin(w http.ResponseWriter, r *http.Request, status int, form url.Values, invalid, message string) {
	fields := make([]views.LoginField, 0, len(s.schema.Fields()))
	for _, f := range s.schema.Fields() {
		lf := views.LoginField{
			Name:    f.Name,
			Label:   f.Label,
			Secret:  f.Secret,
			Invalid: f.Name == invalid,
		}
		if lf.Label == "" {
			lf.Label = f.Name
		}
		if !f.Secret {
			lf.Value = form.Get(f.Name)
		}
		fields = append(fields, lf)
	}
	s.page(w, r, status, ui.PageLogin, ui.Page{
		Title: "Login",
		Data:  views.LoginPage{Fields: fields, Error: message},
	})
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.guard.Session(); ok {
		http.Redirect(w, r, homePath(sess.User.Role), http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderLogin(w, r, http.StatusBadRequest, nil, "", "Invalid form submission")
		return
	}

	creds := make(apiclient.Credentials, len(s.schema.Fields()))
	for _, f := range s.schema.Fields() {
		creds[f.Name] = r.PostForm.Get(f.Name)
	}

	res := s.guard.Login(r.Context(), creds)
	if !res.Success {
		var verr *validate.Error
		invalid := ""
		status := http.StatusUnauthorized
		if errors.As(res.Err, &verr) {
			invalid = verr.Field
			status = http.StatusUnprocessableEntity
		} else if apiclient.IsTransport(res.Err) {
			status = http.StatusBadGateway
		}
		s.logger.Info("login failed", "status", status, "error", res.Err)
		s.renderLogin(w, r, status, r.PostForm, invalid, res.Message)
		return
	}

	s.limiter.Reset(ratelimit.ClientKey(r))
	s.toasts.Success("Welcome, " + res.User.FullName)
	http.Redirect(w, r, homePath(res.User.Role), http.StatusSeeOther)
}

// loginThrottled is the reject func of the login throttle.
func (s *server) loginThrottled(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	_ = r.ParseForm()
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	s.logger.Warn("login throttled", "client", ratelimit.ClientKey(r), "retry_after_s", secs)
	s.renderLogin(w, r, http.StatusTooManyRequests, r.PostForm, "",
		fmt.Sprintf("Too many login attempts. Try again in %d seconds.", secs))
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.Logout(r.Context()); err != nil {
		s.logger.Warn("logout failed to clear token", "error", err)
	}
	s.toasts.Push(views.ToastInfo, "You have been logged out")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *server) dismissToast(w http.ResponseWriter, r *http.Request) {
	if !s.toasts.Dismiss(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "toast not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
