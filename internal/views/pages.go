package views

import (
	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/query"
)

// Section is the load state of one block of a page. Loading is set only
// while a brand-new key has no data; a background refresh of data already
// shown sets Refreshing instead.
type Section struct {
	Loading    bool
	Refreshing bool
	Err        string
}

// SectionOf derives a Section from a cache snapshot.
func SectionOf(snap query.Snapshot) Section {
	s := Section{
		Loading:    snap.IsLoading(),
		Refreshing: snap.IsFetching && !snap.IsLoading(),
	}
	if snap.Err != nil {
		s.Err = apiclient.Message(snap.Err)
	}
	return s
}

// LoginField is one input of the login form.
type LoginField struct {
	Name    string
	Label   string
	Secret  bool
	Value   string
	Invalid bool
}

type LoginPage struct {
	Fields []LoginField
	Error  string
}

type ManagerPage struct {
	Filter        ReportFilter
	StatusOptions []Option
	MonthOptions  []Option
	MonthsState   Section

	Stats      *apiclient.Statistics
	StatsState Section

	Reports      []apiclient.Report
	Pager        Pager
	ReportsState Section

	HostStats      *apiclient.HostStatsReport
	HostStatsState Section
}

type HostPage struct {
	Filter        ReportFilter
	StatusOptions []Option
	MonthOptions  []Option

	Summary      Summary
	Reports      []apiclient.Report
	Pager        Pager
	ReportsState Section
}

type HostsPage struct {
	Filter HostFilter
	Hosts  []apiclient.Host
	State  Section

	// EditID is the host loaded into the form, 0 for a new host.
	EditID  int64
	Form    apiclient.HostInput
	FormErr string
}

type UsersPage struct {
	Users []apiclient.PendingUser
	State Section
}
