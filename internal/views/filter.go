// Package views holds the view models shared by the dashboard pages and the
// CLI: filter parsing, client-side aggregates, formatting and toasts.
package views

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gmvreport/gmvdash/internal/apiclient"
)

const (
	StatusAll    = "ALL"
	MonthAll     = "all"
	MonthCurrent = "current"

	DefaultLimit = 10
	MaxLimit     = 100
)

// ReportFilter is the filter state of a report listing as the user picked
// it. Month is "all", "current" or a month number.
type ReportFilter struct {
	Status string
	Month  string
	Year   int
	Page   int
	Limit  int
}

// DefaultReportFilter lists every report of every month, first page.
func DefaultReportFilter() ReportFilter {
	return ReportFilter{Status: StatusAll, Month: MonthAll, Page: 1, Limit: DefaultLimit}
}

// ParseReportFilter reads a filter from query parameters. Unknown values
// fall back to the defaults.
func ParseReportFilter(q url.Values) ReportFilter {
	f := DefaultReportFilter()

	if s := strings.ToUpper(strings.TrimSpace(q.Get("status"))); apiclient.ReportStatus(s).Valid() {
		f.Status = s
	}
	switch m := strings.ToLower(strings.TrimSpace(q.Get("month"))); m {
	case MonthAll, MonthCurrent:
		f.Month = m
	default:
		// Accept "3" or "3-2026" as produced by MonthOptions.
		month, year, _ := strings.Cut(m, "-")
		if n, err := strconv.Atoi(month); err == nil && n >= 1 && n <= 12 {
			f.Month = strconv.Itoa(n)
			if y, err := strconv.Atoi(year); err == nil && y > 0 {
				f.Year = y
			}
		}
	}
	if y, err := strconv.Atoi(q.Get("year")); err == nil && y > 0 {
		f.Year = y
	}
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		f.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		f.Limit = min(l, MaxLimit)
	}
	return f
}

// MonthParams resolves the month selector against now. A numeric month
// without a year means that month of the current year.
func (f ReportFilter) MonthParams(now time.Time) apiclient.MonthParams {
	switch f.Month {
	case "", MonthAll:
		return apiclient.MonthParams{}
	case MonthCurrent:
		return apiclient.MonthParams{Month: int(now.Month()), Year: now.Year()}
	}
	m, err := strconv.Atoi(f.Month)
	if err != nil || m < 1 || m > 12 {
		return apiclient.MonthParams{}
	}
	year := f.Year
	if year == 0 {
		year = now.Year()
	}
	return apiclient.MonthParams{Month: m, Year: year}
}

// Params converts the filter into request parameters. The ALL status sends
// no status parameter at all.
func (f ReportFilter) Params(now time.Time) apiclient.ReportParams {
	p := apiclient.ReportParams{
		MonthParams: f.MonthParams(now),
		Page:        f.Page,
		Limit:       f.Limit,
	}
	if f.Status != "" && f.Status != StatusAll {
		p.Status = apiclient.ReportStatus(f.Status)
	}
	return p
}

// Query renders the filter back into query parameters for links.
func (f ReportFilter) Query() url.Values {
	q := url.Values{}
	if f.Status != "" && f.Status != StatusAll {
		q.Set("status", f.Status)
	}
	if f.Month != "" && f.Month != MonthAll {
		q.Set("month", f.Month)
	}
	if f.Year > 0 {
		q.Set("year", strconv.Itoa(f.Year))
	}
	if f.Page > 1 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 && f.Limit != DefaultLimit {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// WithPage returns a copy of f on page p.
func (f ReportFilter) WithPage(p int) ReportFilter {
	f.Page = max(p, 1)
	return f
}

// HostFilter is the filter state of the host management page.
type HostFilter struct {
	Status string // all, approved, pending
	Active string // all, true, false
	Search string
}

// ParseHostFilter reads a host filter from query parameters.
func ParseHostFilter(q url.Values) HostFilter {
	f := HostFilter{Status: "all", Active: "all", Search: strings.TrimSpace(q.Get("q"))}
	switch s := q.Get("status"); s {
	case "approved", "pending":
		f.Status = s
	}
	switch a := q.Get("active"); a {
	case "true", "false":
		f.Active = a
	}
	return f
}

// Params converts the server-side part of the filter. Search is applied
// locally with FilterHosts.
func (f HostFilter) Params() apiclient.HostParams {
	var p apiclient.HostParams
	if f.Status != "all" {
		p.Status = f.Status
	}
	if f.Active != "all" {
		active := f.Active == "true"
		p.Active = &active
	}
	return p
}

// Option is one entry of a select control.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// StatusOptions lists the report status filter choices.
func StatusOptions(selected string) []Option {
	out := make([]Option, 0, 4)
	for _, s := range []string{StatusAll, string(apiclient.StatusPending), string(apiclient.StatusVerified), string(apiclient.StatusRejected)} {
		label := strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
		out = append(out, Option{Value: s, Label: label, Selected: s == selected})
	}
	return out
}

// MonthOptions builds the month selector: all months, the current month,
// then every month the backend has reports for.
func MonthOptions(f ReportFilter, available []apiclient.AvailableMonth) []Option {
	out := []Option{
		{Value: MonthAll, Label: "All months", Selected: f.Month == MonthAll || f.Month == ""},
		{Value: MonthCurrent, Label: "Current month", Selected: f.Month == MonthCurrent},
	}
	for _, m := range available {
		label := m.DisplayName
		if label == "" {
			label = time.Month(m.Month).String() + " " + strconv.Itoa(m.Year)
		}
		if m.ReportCount > 0 {
			label += " (" + strconv.Itoa(m.ReportCount) + ")"
		}
		out = append(out, Option{
			Value:    strconv.Itoa(m.Month) + "-" + strconv.Itoa(m.Year),
			Label:    label,
			Selected: f.Month == strconv.Itoa(m.Month) && f.Year == m.Year,
		})
	}
	return out
}

// Pager is the navigation state derived from a Pagination.
type Pager struct {
	Page       int
	TotalPages int
	Total      int
	HasPrev    bool
	HasNext    bool
}

// NewPager derives navigation from the server's pagination block.
func NewPager(p apiclient.Pagination) Pager {
	pages := max(p.TotalPages, 1)
	page := max(p.Page, 1)
	return Pager{
		Page:       page,
		TotalPages: pages,
		Total:      p.Total,
		HasPrev:    page > 1,
		HasNext:    page < pages,
	}
}
