package views

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmvreport/gmvdash/internal/apiclient"
)

func TestReportFilterParams(t *testing.T) {
	now := time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter ReportFilter
		want   url.Values
	}{
		{
			name:   "all status sends no status",
			filter: ReportFilter{Status: StatusAll, Month: MonthAll, Page: 1, Limit: 10},
			want:   url.Values{"page": {"1"}, "limit": {"10"}},
		},
		{
			name:   "current month",
			filter: ReportFilter{Status: "PENDING", Month: MonthCurrent, Page: 2, Limit: 10},
			want:   url.Values{"status": {"PENDING"}, "month": {"10"}, "year": {"2026"}, "page": {"2"}, "limit": {"10"}},
		},
		{
			name:   "numeric month with year",
			filter: ReportFilter{Status: "VERIFIED", Month: "3", Year: 2025},
			want:   url.Values{"status": {"VERIFIED"}, "month": {"3"}, "year": {"2025"}},
		},
		{
			name:   "numeric month defaults to this year",
			filter: ReportFilter{Month: "7"},
			want:   url.Values{"month": {"7"}, "year": {"2026"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Params(now).Values())
		})
	}
}

func TestParseReportFilter(t *testing.T) {
	f := ParseReportFilter(url.Values{"status": {"verified"}, "month": {"3-2025"}, "page": {"4"}, "limit": {"500"}})
	assert.Equal(t, ReportFilter{Status: "VERIFIED", Month: "3", Year: 2025, Page: 4, Limit: MaxLimit}, f)

	f = ParseReportFilter(url.Values{"status": {"bogus"}, "month": {"13"}, "page": {"-1"}})
	assert.Equal(t, DefaultReportFilter(), f)

	// Query and Parse agree.
	orig := ReportFilter{Status: "REJECTED", Month: MonthCurrent, Page: 3, Limit: 25}
	assert.Equal(t, orig, ParseReportFilter(orig.Query()))
}

func TestHostFilterParams(t *testing.T) {
	p := ParseHostFilter(url.Values{"status": {"pending"}, "active": {"false"}, "q": {" ana "}})
	assert.Equal(t, url.Values{"status": {"pending"}, "is_active": {"false"}}, p.Params().Values())
	assert.Equal(t, "ana", p.Search)

	assert.Empty(t, ParseHostFilter(url.Values{}).Params().Values())
}

func TestSummarize(t *testing.T) {
	reports := []apiclient.Report{
		{ReportedGMV: apiclient.NewMoney(100000), Status: apiclient.StatusVerified},
		{ReportedGMV: apiclient.NewMoney(2000000), Status: apiclient.StatusPending},
		{ReportedGMV: apiclient.NewMoney(3000000), Status: apiclient.StatusVerified},
	}
	s := Summarize(reports)
	assert.Equal(t, apiclient.NewMoney(3100000), s.TotalVerifiedGMV)
	assert.Equal(t, 2, s.Verified)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 0, s.Rejected)
	assert.Equal(t, 3, s.Total)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestFilterHosts(t *testing.T) {
	hosts := []apiclient.Host{
		{ID: 1, FullName: "Ana Putri", Username: "anap", TelegramUserID: "111"},
		{ID: 2, FullName: "Budi", Username: "budi_live", TelegramUserID: "222"},
		{ID: 3, FullName: "Citra", Username: "CITRA", TelegramUserID: "333111"},
	}

	ids := func(hs []apiclient.Host) []int64 {
		var out []int64
		for _, h := range hs {
			out = append(out, h.ID)
		}
		return out
	}

	assert.Equal(t, []int64{1}, ids(FilterHosts(hosts, "PUTRI")))
	assert.Equal(t, []int64{2}, ids(FilterHosts(hosts, "live")))
	assert.Equal(t, []int64{3}, ids(FilterHosts(hosts, "citra")))
	assert.Equal(t, []int64{1, 3}, ids(FilterHosts(hosts, "111")))
	assert.Equal(t, []int64{1, 2, 3}, ids(FilterHosts(hosts, "  ")))
	assert.Empty(t, FilterHosts(hosts, "zzz"))
}

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		in   apiclient.Money
		want string
	}{
		{apiclient.NewMoney(3100000), "Rp 3.1M"},
		{apiclient.NewMoney(1000000), "Rp 1.0M"},
		{apiclient.NewMoney(500000), "Rp 500K"},
		{apiclient.NewMoney(1000), "Rp 1K"},
		{apiclient.NewMoney(999), "Rp 999"},
		{apiclient.Money(1250), "Rp 12,5"},
		{0, "Rp 0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCurrency(tt.in), "amount %s", tt.in)
	}

	assert.Equal(t, "Rp 1.250.000", FormatRupiah(apiclient.NewMoney(1250000)))
	assert.Equal(t, "-Rp 100.000,05", FormatRupiah(apiclient.Money(-10000005)))
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2026, time.October, 8, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, "08 Okt 2026, 09.05", FormatDateTime(ts))
	assert.Equal(t, "-", FormatDateTime(time.Time{}))
	assert.Equal(t, "-", FormatDateTimePtr(nil))
	assert.Equal(t, "08 Okt 2026, 09.05", FormatDateTimePtr(&ts))
}

func TestFormatHours(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 jam"},
		{0.5, "30 menit"},
		{2, "2 jam"},
		{2.25, "2 jam 15 menit"},
		{1.999, "2 jam"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatHours(tt.in), "hours %v", tt.in)
	}
}

func TestToasts(t *testing.T) {
	q := NewToasts(2)
	a := q.Success("saved")
	b := q.Error("failed")
	require.NotEqual(t, a, b)

	assert.True(t, q.Dismiss(a))
	assert.False(t, q.Dismiss(a))
	assert.Equal(t, 1, q.Len())

	q.Push(ToastInfo, "one")
	q.Push(ToastInfo, "two")
	got := q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Message)
	assert.Equal(t, "two", got[1].Message)
	assert.Zero(t, q.Len())
}

func TestOptions(t *testing.T) {
	opts := StatusOptions("PENDING")
	require.Len(t, opts, 4)
	assert.Equal(t, "All", opts[0].Label)
	assert.True(t, opts[1].Selected)

	months := MonthOptions(ReportFilter{Month: "9", Year: 2026}, []apiclient.AvailableMonth{
		{Month: 9, Year: 2026, DisplayName: "September 2026", ReportCount: 4},
	})
	require.Len(t, months, 3)
	assert.Equal(t, "9-2026", months[2].Value)
	assert.Equal(t, "September 2026 (4)", months[2].Label)
	assert.True(t, months[2].Selected)
	assert.False(t, months[0].Selected)

	p := NewPager(apiclient.Pagination{Page: 2, TotalPages: 3, Total: 25})
	assert.True(t, p.HasPrev)
	assert.True(t, p.HasNext)
	assert.False(t, NewPager(apiclient.Pagination{}).HasNext)
}
