package apiclient

import (
	"net/url"
	"strconv"
)

// MonthParams selects a calendar month. Zero values mean "all months".
type MonthParams struct {
	Month int
	Year  int
}

func (p MonthParams) Values() url.Values {
	v := url.Values{}
	if p.Month > 0 {
		v.Set("month", strconv.Itoa(p.Month))
	}
	if p.Year > 0 {
		v.Set("year", strconv.Itoa(p.Year))
	}
	return v
}

// ReportParams filters a report listing. An empty Status lists every status.
type ReportParams struct {
	Status ReportStatus
	MonthParams
	Page  int
	Limit int
}

func (p ReportParams) Values() url.Values {
	v := p.MonthParams.Values()
	if p.Status != "" {
		v.Set("status", string(p.Status))
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	return v
}

// HostParams filters the host listing. Status is "approved" or "pending";
// Active is nil for both active and inactive hosts.
type HostParams struct {
	Status string
	Active *bool
}

func (p HostParams) Values() url.Values {
	v := url.Values{}
	if p.Status != "" {
		v.Set("status", p.Status)
	}
	if p.Active != nil {
		v.Set("is_active", strconv.FormatBool(*p.Active))
	}
	return v
}
