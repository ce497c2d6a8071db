package dashboard

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/service"
	"github.com/gmvreport/gmvdash/internal/ui"
	"github.com/gmvreport/gmvdash/internal/views"
)

func (s *server) hostsPage(w http.ResponseWriter, r *http.Request) {
	editID, _ := strconv.ParseInt(r.URL.Query().Get("edit"), 10, 64)
	s.renderHosts(w, r, http.StatusOK, editID, nil, "")
}

// renderHosts renders host management. form, when set, is a submission
// being shown back with formErr.
func (s *server) renderHosts(w http.ResponseWriter, r *http.Request, status int, editID int64, form *apiclient.HostInput, formErr string) {
	rendered := time.Now()
	f := views.ParseHostFilter(r.URL.Query())
	hosts, sec := loadAs[[]apiclient.Host](s, r, s.svc.Hosts(f.Params()))

	data := views.HostsPage{
		Filter:  f,
		Hosts:   views.FilterHosts(hosts, f.Search),
		State:   sec,
		EditID:  editID,
		FormErr: formErr,
	}
	switch {
	case form != nil:
		data.Form = *form
	case editID > 0:
		found := false
		for _, h := range hosts {
			if h.ID == editID {
				data.Form = hostInput(h)
				found = true
				break
			}
		}
		if !found {
			data.EditID = 0
			data.Form = apiclient.HostInput{IsActive: true}
		}
	default:
		data.Form = apiclient.HostInput{IsActive: true}
	}

	s.page(w, r, status, ui.PageHosts, ui.Page{
		Title: "Host Management",
		Nav:   "hosts",
		Live:  liveQuery(viewHosts, r.URL.Query(), rendered),
		Data:  data,
	})
}

func hostInput(h apiclient.Host) apiclient.HostInput {
	return apiclient.HostInput{
		TelegramUserID: h.TelegramUserID,
		Username:       h.Username,
		FullName:       h.FullName,
		Email:          h.Email,
		IsActive:       h.IsActive,
		IsApproved:     h.IsApproved,
	}
}

func parseHostForm(r *http.Request) (apiclient.HostInput, error) {
	if err := r.ParseForm(); err != nil {
		return apiclient.HostInput{}, err
	}
	return apiclient.HostInput{
		TelegramUserID: strings.TrimSpace(r.PostForm.Get("telegram_user_id")),
		Username:       strings.TrimPrefix(strings.TrimSpace(r.PostForm.Get("username")), "@"),
		FullName:       strings.TrimSpace(r.PostForm.Get("full_name")),
		Email:          strings.TrimSpace(r.PostForm.Get("email")),
		IsActive:       r.PostForm.Get("is_active") == "true",
		IsApproved:     r.PostForm.Get("is_approved") == "true",
	}, nil
}

func (s *server) createHost(w http.ResponseWriter, r *http.Request) {
	in, err := parseHostForm(r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Invalid form submission.")
		return
	}
	h, err := s.svc.CreateHost.Mutate(r.Context(), in)
	if err != nil {
		s.renderHosts(w, r, statusFor(err), 0, &in, apiclient.Message(err))
		return
	}
	s.toasts.Success("Host " + h.FullName + " created")
	http.Redirect(w, r, "/manager/hosts", http.StatusSeeOther)
}

func (s *server) updateHost(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Invalid host id.")
		return
	}
	in, err := parseHostForm(r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Invalid form submission.")
		return
	}
	h, err := s.svc.UpdateHost.Mutate(r.Context(), service.HostUpdate{ID: id, Input: in})
	if err != nil {
		s.renderHosts(w, r, statusFor(err), id, &in, apiclient.Message(err))
		return
	}
	s.toasts.Success("Host " + h.FullName + " updated")
	http.Redirect(w, r, "/manager/hosts", http.StatusSeeOther)
}

func (s *server) deleteHost(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Invalid host id.")
		return
	}
	_, err := s.svc.DeleteHost.Mutate(r.Context(), id)
	s.notify(err, "Host deleted")
	redirectBack(w, r, "/manager/hosts")
}

func (s *server) toggleHost(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Invalid host id.")
		return
	}
	h, err := s.svc.ToggleHost.Mutate(r.Context(), id)
	msg := ""
	if err == nil {
		msg = "Host " + h.FullName + " deactivated"
		if h.IsActive {
			msg = "Host " + h.FullName + " activated"
		}
	}
	s.notify(err, msg)
	redirectBack(w, r, "/manager/hosts")
}
