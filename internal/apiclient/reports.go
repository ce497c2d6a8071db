package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// Reports covers /reports.
type Reports struct {
	c *Client
}

func NewReports(c *Client) *Reports { return &Reports{c: c} }

// List returns every host's reports (managers only).
func (r *Reports) List(ctx context.Context, p ReportParams) (*ReportPage, error) {
	var page ReportPage
	if err := r.c.Do(ctx, http.MethodGet, "/reports", p.Values(), nil, &page); err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return &page, nil
}

// Mine returns the calling host's own reports.
func (r *Reports) Mine(ctx context.Context, p ReportParams) (*ReportPage, error) {
	var page ReportPage
	if err := r.c.Do(ctx, http.MethodGet, "/reports/my-reports", p.Values(), nil, &page); err != nil {
		return nil, fmt.Errorf("listing my reports: %w", err)
	}
	return &page, nil
}

func (r *Reports) Statistics(ctx context.Context, p MonthParams) (*Statistics, error) {
	var s Statistics
	if err := r.c.Do(ctx, http.MethodGet, "/reports/statistics", p.Values(), nil, &s); err != nil {
		return nil, fmt.Errorf("fetching statistics: %w", err)
	}
	return &s, nil
}

func (r *Reports) MonthlyHostStats(ctx context.Context, p MonthParams) (*HostStatsReport, error) {
	var s HostStatsReport
	if err := r.c.Do(ctx, http.MethodGet, "/reports/monthly-host-stats", p.Values(), nil, &s); err != nil {
		return nil, fmt.Errorf("fetching host stats: %w", err)
	}
	return &s, nil
}

func (r *Reports) AvailableMonths(ctx context.Context) ([]AvailableMonth, error) {
	var months []AvailableMonth
	if err := r.c.Do(ctx, http.MethodGet, "/reports/available-months", nil, nil, &months); err != nil {
		return nil, fmt.Errorf("fetching available months: %w", err)
	}
	return months, nil
}

func (r *Reports) Get(ctx context.Context, id int64) (*Report, error) {
	var rep Report
	if err := r.c.Do(ctx, http.MethodGet, "/reports/"+strconv.FormatInt(id, 10), nil, nil, &rep); err != nil {
		return nil, fmt.Errorf("fetching report %d: %w", id, err)
	}
	return &rep, nil
}

// UpdateStatus moves a pending report to VERIFIED or REJECTED.
func (r *Reports) UpdateStatus(ctx context.Context, id int64, status ReportStatus, notes string) (*Report, error) {
	if status != StatusVerified && status != StatusRejected {
		return nil, fmt.Errorf("updating report %d: invalid target status %q", id, status)
	}
	body := struct {
		Status ReportStatus `json:"status"`
		Notes  string       `json:"notes"`
	}{status, notes}

	var rep Report
	path := "/reports/" + strconv.FormatInt(id, 10) + "/status"
	if err := r.c.Do(ctx, http.MethodPut, path, nil, body, &rep); err != nil {
		return nil, fmt.Errorf("updating report %d: %w", id, err)
	}
	return &rep, nil
}
