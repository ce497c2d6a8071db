package dashboard

import (
	"net/http"
	"time"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/ui"
	"github.com/gmvreport/gmvdash/internal/views"
)

func (s *server) usersPage(w http.ResponseWriter, r *http.Request) {
	rendered := time.Now()
	users, sec := loadAs[[]apiclient.PendingUser](s, r, s.svc.PendingUsers())
	s.page(w, r, http.StatusOK, ui.PageUsers, ui.Page{
		Title: "Pending Approvals",
		Nav:   "users",
		Live:  liveQuery(viewUsers, nil, rendered),
		Data:  views.UsersPage{Users: users, State: sec},
	})
}

func (s *server) approveUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Invalid user id.")
		return
	}
	_, err := s.svc.ApproveUser.Mutate(r.Context(), id)
	s.notify(err, "User approved")
	redirectBack(w, r, "/manager/users")
}

func (s *server) rejectUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Invalid user id.")
		return
	}
	_, err := s.svc.RejectUser.Mutate(r.Context(), id)
	s.notify(err, "User rejected")
	redirectBack(w, r, "/manager/users")
}
