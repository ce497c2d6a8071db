package dashboard

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/export"
	"github.com/gmvreport/gmvdash/internal/service"
	"github.com/gmvreport/gmvdash/internal/ui"
	"github.com/gmvreport/gmvdash/internal/views"
)

// managerQueries are the reads behind the manager page for filter f.
func managerQueries(svc *service.Service, f views.ReportFilter, now time.Time) (reports, stats, hostStats, months service.Query) {
	mp := f.MonthParams(now)
	return svc.AllReports(f.Params(now)), svc.Statistics(mp), svc.HostStats(mp), svc.AvailableMonths()
}

// hostQueries are the reads behind the host page for filter f.
func hostQueries(svc *service.Service, f views.ReportFilter, now time.Time) (reports, months service.Query) {
	return svc.MyReports(f.Params(now)), svc.AvailableMonths()
}

func (s *server) managerPage(w http.ResponseWriter, r *http.Request) {
	rendered := time.Now()
	f := views.ParseReportFilter(r.URL.Query())
	reportsQ, statsQ, hostStatsQ, monthsQ := managerQueries(s.svc, f, s.now())

	data := views.ManagerPage{
		Filter:        f,
		StatusOptions: views.StatusOptions(f.Status),
	}
	var (
		wg     sync.WaitGroup
		page   *apiclient.ReportPage
		months []apiclient.AvailableMonth
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		months, data.MonthsState = loadAs[[]apiclient.AvailableMonth](s, r, monthsQ)
	}()
	go func() {
		defer wg.Done()
		data.Stats, data.StatsState = loadAs[*apiclient.Statistics](s, r, statsQ)
	}()
	go func() {
		defer wg.Done()
		page, data.ReportsState = loadAs[*apiclient.ReportPage](s, r, reportsQ)
	}()
	go func() {
		defer wg.Done()
		data.HostStats, data.HostStatsState = loadAs[*apiclient.HostStatsReport](s, r, hostStatsQ)
	}()
	wg.Wait()

	data.MonthOptions = views.MonthOptions(f, months)
	if page != nil {
		data.Reports = page.Reports
		data.Pager = views.NewPager(page.Pagination)
	}

	s.page(w, r, http.StatusOK, ui.PageManager, ui.Page{
		Title: "Manager Dashboard",
		Nav:   "manager",
		Live:  liveQuery(viewManager, f.Query(), rendered),
		Data:  data,
	})
}

func (s *server) hostPage(w http.ResponseWriter, r *http.Request) {
	rendered := time.Now()
	f := views.ParseReportFilter(r.URL.Query())
	reportsQ, monthsQ := hostQueries(s.svc, f, s.now())

	data := views.HostPage{
		Filter:        f,
		StatusOptions: views.StatusOptions(f.Status),
	}
	var (
		wg     sync.WaitGroup
		page   *apiclient.ReportPage
		months []apiclient.AvailableMonth
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		months, _ = loadAs[[]apiclient.AvailableMonth](s, r, monthsQ)
	}()
	go func() {
		defer wg.Done()
		page, data.ReportsState = loadAs[*apiclient.ReportPage](s, r, reportsQ)
	}()
	wg.Wait()

	data.MonthOptions = views.MonthOptions(f, months)
	if page != nil {
		data.Reports = page.Reports
		data.Pager = views.NewPager(page.Pagination)
		// The summary cards count the page being shown.
		data.Summary = views.Summarize(page.Reports)
	}

	s.page(w, r, http.StatusOK, ui.PageHost, ui.Page{
		Title: "My Reports",
		Nav:   "host",
		Live:  liveQuery(viewHost, f.Query(), rendered),
		Data:  data,
	})
}

func (s *server) updateReportStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Invalid report id.")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Invalid form submission.")
		return
	}

	status := apiclient.ReportStatus(strings.ToUpper(strings.TrimSpace(r.PostForm.Get("status"))))
	if status != apiclient.StatusVerified && status != apiclient.StatusRejected {
		s.toasts.Error("Status must be VERIFIED or REJECTED")
		redirectBack(w, r, "/manager")
		return
	}

	_, err := s.svc.UpdateReportStatus.Mutate(r.Context(), service.StatusChange{
		ID:     id,
		Status: status,
		Notes:  strings.TrimSpace(r.PostForm.Get("notes")),
	})
	if err != nil {
		s.logger.Warn("report status update failed", "report_id", id, "status", status, "error", err)
	}
	s.notify(err, fmt.Sprintf("Report #%d marked %s", id, strings.ToLower(string(status))))
	redirectBack(w, r, "/manager")
}

// exportReports streams every report matching the filter, plus the month's
// statistics and host stats, as an .xlsx workbook.
func (s *server) exportReports(w http.ResponseWriter, r *http.Request) {
	f := views.ParseReportFilter(r.URL.Query())
	now := s.now()
	_, statsQ, hostStatsQ, _ := managerQueries(s.svc, f, now)

	wb := export.Workbook{GeneratedAt: now}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		reports, err := s.svc.AllReportPages(ctx, f.Params(now))
		wb.Reports = reports
		return err
	})
	g.Go(func() error {
		stats, err := service.Load[*apiclient.Statistics](ctx, s.svc, statsQ)
		wb.Statistics = stats
		return err
	})
	g.Go(func() error {
		hs, err := service.Load[*apiclient.HostStatsReport](ctx, s.svc, hostStatsQ)
		wb.HostStats = hs
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("export failed", "error", err)
		s.toasts.Error("Export failed: " + apiclient.Message(err))
		http.Redirect(w, r, "/manager?"+f.Query().Encode(), http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(f.MonthParams(now), now)))
	if err := export.Write(w, wb); err != nil {
		s.logger.Error("writing export", "error", err)
	}
}
