// Package fakeapi is an in-memory reporting API for tests. It speaks the
// same envelope and routes as the real backend, closely enough for the
// client, service, dashboard and CLI tests.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gmvreport/gmvdash/internal/apiclient"
)

// Account is a login the fake accepts.
type Account struct {
	User     apiclient.User
	Password string
	Token    string
}

// Server is the fake backend. The exported fields are guarded by Lock/Unlock
// when mutated during a test.
type Server struct {
	mu       sync.Mutex
	accounts []Account
	reports  []apiclient.Report
	hosts    []apiclient.Host
	pending  []apiclient.PendingUser
	nextID   int64
	hits     map[string]int
	failNext map[string]int // route -> status to answer once

	router chi.Router
}

// New creates an empty fake.
func New() *Server {
	s := &Server{
		nextID:   1000,
		hits:     make(map[string]int),
		failNext: make(map[string]int),
	}
	s.router = s.routes()
	return s
}

// Start serves the fake on a local listener until the test ends and returns
// its base URL (with the /api prefix).
func (s *Server) Start(t interface{ Cleanup(func()) }) string {
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv.URL + "/api"
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddAccount registers a login.
func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, a)
}

// AddReport stores a report and returns it with its id.
func (s *Server) AddReport(r apiclient.Report) apiclient.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		s.nextID++
		r.ID = s.nextID
	}
	if r.Status == "" {
		r.Status = apiclient.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Date(2026, time.October, 1, 10, 0, 0, 0, time.UTC)
	}
	s.reports = append(s.reports, r)
	return r
}

// AddHost stores a host and returns it with its id.
func (s *Server) AddHost(h apiclient.Host) apiclient.Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == 0 {
		s.nextID++
		h.ID = s.nextID
	}
	s.hosts = append(s.hosts, h)
	return h
}

// AddPending stores a pending registration.
func (s *Server) AddPending(u apiclient.PendingUser) apiclient.PendingUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		s.nextID++
		u.ID = s.nextID
	}
	s.pending = append(s.pending, u)
	return u
}

// Hits returns how many requests reached route ("GET /reports").
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// FailNext makes the next request to route answer with status.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[route] = status
}

// Report returns the stored report with id.
func (s *Server) Report(id int64) (apiclient.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reports {
		if r.ID == id {
			return r, true
		}
	}
	return apiclient.Report{}, false
}

// Hosts returns a copy of the stored hosts.
func (s *Server) Hosts() []apiclient.Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]apiclient.Host(nil), s.hosts...)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.count)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/auth/me", s.me)

			r.Get("/reports", s.listReports(false))
			r.Get("/reports/my-reports", s.listReports(true))
			r.Get("/reports/statistics", s.statistics)
			r.Get("/reports/monthly-host-stats", s.hostStats)
			r.Get("/reports/available-months", s.availableMonths)
			r.Get("/reports/{id}", s.getReport)
			r.Put("/reports/{id}/status", s.updateStatus)

			r.Get("/hosts", s.listHosts)
			r.Post("/hosts", s.createHost)
			r.Get("/hosts/{id}", s.getHost)
			r.Put("/hosts/{id}", s.updateHost)
			r.Delete("/hosts/{id}", s.deleteHost)
			r.Patch("/hosts/{id}/toggle-status", s.toggleHost)

			r.Get("/users/pending", s.listPending)
			r.Put("/users/{id}/approve", s.approve)
			r.Delete("/users/{id}/reject", s.reject)
		})
	})
	return r
}

// count records the hit and answers a queued failure, if any.
func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")
		s.mu.Lock()
		s.hits[route]++
		status, fail := s.failNext[route]
		delete(s.failNext, route)
		s.mu.Unlock()

		if fail {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		var found *apiclient.User
		for i := range s.accounts {
			if token != "" && s.accounts[i].Token == token {
				u := s.accounts[i].User
				found = &u
			}
		}
		s.mu.Unlock()
		if found == nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), found)))
	})
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

func idParam(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds map[string]string
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.User.Email == creds["email"] && a.Password == creds["password"] {
			writeData(w, http.StatusOK, apiclient.LoginResult{Token: a.Token, User: a.User})
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "Invalid email or password")
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, userFrom(r.Context()))
}

func matchesMonth(t time.Time, q map[string][]string) bool {
	month, _ := strconv.Atoi(first(q["month"]))
	year, _ := strconv.Atoi(first(q["year"]))
	if month > 0 && int(t.Month()) != month {
		return false
	}
	if year > 0 && t.Year() != year {
		return false
	}
	return true
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func (s *Server) filterReports(q map[string][]string, username string) []apiclient.Report {
	status := first(q["status"])
	var out []apiclient.Report
	for _, rep := range s.reports {
		if status != "" && string(rep.Status) != status {
			continue
		}
		if username != "" && rep.HostUsername != username {
			continue
		}
		if !matchesMonth(rep.CreatedAt, q) {
			continue
		}
		out = append(out, rep)
	}
	return out
}

func (s *Server) listReports(mine bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		username := ""
		if mine {
			username = userFrom(r.Context()).Username
		}
		s.mu.Lock()
		all := s.filterReports(q, username)
		s.mu.Unlock()

		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 10
		}
		start := min((page-1)*limit, len(all))
		end := min(start+limit, len(all))
		pages := (len(all) + limit - 1) / limit

		writeData(w, http.StatusOK, apiclient.ReportPage{
			Reports:    append([]apiclient.Report{}, all[start:end]...),
			Pagination: apiclient.Pagination{Page: page, Limit: limit, Total: len(all), TotalPages: pages},
		})
	}
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reps := s.filterReports(r.URL.Query(), "")
	s.mu.Unlock()

	var st apiclient.Statistics
	for _, rep := range reps {
		st.TotalReports++
		switch rep.Status {
		case apiclient.StatusPending:
			st.PendingReports++
		case apiclient.StatusVerified:
			st.VerifiedReports++
			st.TotalVerifiedGMV += rep.ReportedGMV
		case apiclient.StatusRejected:
			st.RejectedReports++
		}
	}
	if st.VerifiedReports > 0 {
		st.AvgVerifiedGMV = st.TotalVerifiedGMV / apiclient.Money(st.VerifiedReports)
	}
	writeData(w, http.StatusOK, st)
}

func (s *Server) hostStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	reps := s.filterReports(q, "")
	s.mu.Unlock()

	byHost := map[string]*apiclient.HostStat{}
	for _, rep := range reps {
		hs, ok := byHost[rep.HostUsername]
		if !ok {
			hs = &apiclient.HostStat{FullName: rep.HostFullName, Username: rep.HostUsername}
			byHost[rep.HostUsername] = hs
		}
		hs.TotalReports++
		if rep.Status == apiclient.StatusVerified {
			hs.VerifiedReports++
			hs.TotalGMV += rep.ReportedGMV
		}
	}
	out := apiclient.HostStatsReport{Hosts: []apiclient.HostStat{}}
	out.Month, _ = strconv.Atoi(q.Get("month"))
	out.Year, _ = strconv.Atoi(q.Get("year"))
	for _, hs := range byHost {
		out.Hosts = append(out.Hosts, *hs)
	}
	sort.Slice(out.Hosts, func(i, j int) bool { return out.Hosts[i].TotalGMV > out.Hosts[j].TotalGMV })
	writeData(w, http.StatusOK, out)
}

func (s *Server) availableMonths(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	counts := map[[2]int]int{}
	for _, rep := range s.reports {
		counts[[2]int{rep.CreatedAt.Year(), int(rep.CreatedAt.Month())}]++
	}
	s.mu.Unlock()

	out := []apiclient.AvailableMonth{}
	for ym, n := range counts {
		out = append(out, apiclient.AvailableMonth{
			Month:       ym[1],
			Year:        ym[0],
			DisplayName: time.Month(ym[1]).String() + " " + strconv.Itoa(ym[0]),
			ReportCount: n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	writeData(w, http.StatusOK, out)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.Report(idParam(r))
	if !ok {
		writeError(w, http.StatusNotFound, "Report not found")
		return
	}
	writeData(w, http.StatusOK, rep)
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status apiclient.ReportStatus `json:"status"`
		Notes  string                 `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !body.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	id := idParam(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reports {
		if s.reports[i].ID != id {
			continue
		}
		if s.reports[i].Status != apiclient.StatusPending {
			writeError(w, http.StatusConflict, "Report already processed")
			return
		}
		now := time.Now().UTC()
		s.reports[i].Status = body.Status
		s.reports[i].Notes = body.Notes
		s.reports[i].VerifiedAt = &now
		writeData(w, http.StatusOK, s.reports[i])
		return
	}
	writeError(w, http.StatusNotFound, "Report not found")
}

func (s *Server) listHosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []apiclient.Host{}
	for _, h := range s.hosts {
		switch q.Get("status") {
		case "approved":
			if !h.IsApproved {
				continue
			}
		case "pending":
			if h.IsApproved {
				continue
			}
		}
		if a := q.Get("is_active"); a != "" && strconv.FormatBool(h.IsActive) != a {
			continue
		}
		out = append(out, h)
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) findHost(id int64) int {
	for i := range s.hosts {
		if s.hosts[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Server) getHost(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findHost(idParam(r))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Host not found")
		return
	}
	writeData(w, http.StatusOK, s.hosts[i])
}

func (s *Server) createHost(w http.ResponseWriter, r *http.Request) {
	var in apiclient.HostInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hosts {
		if h.TelegramUserID == in.TelegramUserID {
			writeError(w, http.StatusConflict, "Telegram user ID already registered")
			return
		}
	}
	s.nextID++
	h := apiclient.Host{
		ID:             s.nextID,
		TelegramUserID: in.TelegramUserID,
		Username:       in.Username,
		FullName:       in.FullName,
		Email:          in.Email,
		IsActive:       in.IsActive,
		IsApproved:     in.IsApproved,
		CreatedAt:      time.Now().UTC(),
	}
	s.hosts = append(s.hosts, h)
	writeData(w, http.StatusCreated, h)
}

func (s *Server) updateHost(w http.ResponseWriter, r *http.Request) {
	var in apiclient.HostInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findHost(idParam(r))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Host not found")
		return
	}
	h := &s.hosts[i]
	h.TelegramUserID = in.TelegramUserID
	h.Username = in.Username
	h.FullName = in.FullName
	h.Email = in.Email
	h.IsActive = in.IsActive
	h.IsApproved = in.IsApproved
	writeData(w, http.StatusOK, *h)
}

func (s *Server) deleteHost(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findHost(idParam(r))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Host not found")
		return
	}
	username := s.hosts[i].Username
	s.hosts = append(s.hosts[:i], s.hosts[i+1:]...)

	// Deleting a host removes its reports.
	kept := s.reports[:0]
	for _, rep := range s.reports {
		if rep.HostUsername != username {
			kept = append(kept, rep)
		}
	}
	s.reports = kept
	writeData(w, http.StatusOK, nil)
}

func (s *Server) toggleHost(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findHost(idParam(r))
	if i < 0 {
		writeError(w, http.StatusNotFound, "Host not found")
		return
	}
	s.hosts[i].IsActive = !s.hosts[i].IsActive
	writeData(w, http.StatusOK, s.hosts[i])
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeData(w, http.StatusOK, append([]apiclient.PendingUser{}, s.pending...))
}

func (s *Server) takePending(id int64) (apiclient.PendingUser, bool) {
	for i, u := range s.pending {
		if u.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return u, true
		}
	}
	return apiclient.PendingUser{}, false
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.takePending(idParam(r))
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	s.hosts = append(s.hosts, apiclient.Host{
		ID:             u.ID,
		TelegramUserID: u.TelegramUserID,
		Username:       u.Username,
		FullName:       u.FullName,
		IsActive:       true,
		IsApproved:     true,
		CreatedAt:      u.CreatedAt,
	})
	writeData(w, http.StatusOK, nil)
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.takePending(idParam(r)); !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeData(w, http.StatusOK, nil)
}
