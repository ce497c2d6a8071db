// Package service binds the resource clients to the query cache and the
// mutation layer. Views and CLI commands read and write only through it.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/config"
	"github.com/gmvreport/gmvdash/internal/mutation"
	"github.com/gmvreport/gmvdash/internal/query"
	"github.com/gmvreport/gmvdash/internal/session"
	"github.com/gmvreport/gmvdash/internal/validate"
)

// Query is a cache read: the key, how to load it, and its policy.
type Query struct {
	Key  query.Key
	Fn   query.FetchFunc
	Opts query.Options
}

// StatusChange is the input of the report status mutation.
type StatusChange struct {
	ID     int64
	Status apiclient.ReportStatus
	Notes  string
}

// HostUpdate is the input of the host update mutation.
type HostUpdate struct {
	ID    int64
	Input apiclient.HostInput
}

// Service exposes every read as a Query and every write as a Mutation.
type Service struct {
	qc      *query.Client
	reports *apiclient.Reports
	hosts   *apiclient.Hosts
	users   *apiclient.Users

	listOpts      query.Options
	aggregateOpts query.Options
	monthsOpts    query.Options
	hostsOpts     query.Options
	pendingOpts   query.Options

	UpdateReportStatus *mutation.Mutation[StatusChange, *apiclient.Report]
	CreateHost         *mutation.Mutation[apiclient.HostInput, *apiclient.Host]
	UpdateHost         *mutation.Mutation[HostUpdate, *apiclient.Host]
	DeleteHost         *mutation.Mutation[int64, struct{}]
	ToggleHost         *mutation.Mutation[int64, *apiclient.Host]
	ApproveUser        *mutation.Mutation[int64, struct{}]
	RejectUser         *mutation.Mutation[int64, struct{}]
}

// Option configures a Service.
type Option func(*options)

type options struct {
	mutationOpts []mutation.Option
}

// WithMutationRecorder reports every mutation outcome to r.
func WithMutationRecorder(r mutation.Recorder) Option {
	return func(o *options) { o.mutationOpts = append(o.mutationOpts, mutation.WithRecorder(r)) }
}

// WithMutationClock sets the clock used for LastSuccessAt.
func WithMutationClock(now func() time.Time) Option {
	return func(o *options) { o.mutationOpts = append(o.mutationOpts, mutation.WithClock(now)) }
}

// New builds a Service. cfg supplies stale times and refetch intervals;
// retry policy comes from the query client's defaults.
func New(api *apiclient.Client, qc *query.Client, cfg config.QueryConfig, opts ...Option) *Service {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		qc:      qc,
		reports: apiclient.NewReports(api),
		hosts:   apiclient.NewHosts(api),
		users:   apiclient.NewUsers(api),

		listOpts: query.Options{
			StaleTime:        cfg.StaleTime,
			RefetchInterval:  cfg.ReportsInterval,
			RefetchOnFocus:   true,
			KeepPreviousData: true,
		},
		aggregateOpts: query.Options{
			StaleTime:        cfg.AggregateStaleTime,
			RefetchInterval:  cfg.StatisticsInterval,
			RefetchOnFocus:   true,
			KeepPreviousData: true,
		},
		monthsOpts: query.Options{
			StaleTime:       cfg.AggregateStaleTime,
			RefetchInterval: cfg.AvailableMonthsInterval,
			RefetchOnFocus:  true,
		},
		hostsOpts: query.Options{
			StaleTime:        cfg.StaleTime,
			RefetchInterval:  cfg.HostsInterval,
			RefetchOnFocus:   true,
			KeepPreviousData: true,
		},
		pendingOpts: query.Options{
			StaleTime:       cfg.StaleTime,
			RefetchInterval: cfg.PendingUsersInterval,
			RefetchOnFocus:  true,
		},
	}

	s.UpdateReportStatus = mutation.New("report.status", qc,
		func(ctx context.Context, in StatusChange) (*apiclient.Report, error) {
			return s.reports.UpdateStatus(ctx, in.ID, in.Status, in.Notes)
		}, reportStatusDeps, o.mutationOpts...)

	s.CreateHost = mutation.New("host.create", qc,
		func(ctx context.Context, in apiclient.HostInput) (*apiclient.Host, error) {
			if err := validate.Struct(in); err != nil {
				return nil, err
			}
			return s.hosts.Create(ctx, in)
		}, hostDeps, o.mutationOpts...)

	s.UpdateHost = mutation.New("host.update", qc,
		func(ctx context.Context, in HostUpdate) (*apiclient.Host, error) {
			if err := validate.Struct(in.Input); err != nil {
				return nil, err
			}
			return s.hosts.Update(ctx, in.ID, in.Input)
		}, hostDeps, o.mutationOpts...)

	s.DeleteHost = mutation.New("host.delete", qc,
		func(ctx context.Context, id int64) (struct{}, error) {
			return struct{}{}, s.hosts.Delete(ctx, id)
		}, hostDeleteDeps, o.mutationOpts...)

	s.ToggleHost = mutation.New("host.toggle", qc,
		func(ctx context.Context, id int64) (*apiclient.Host, error) {
			return s.hosts.ToggleStatus(ctx, id)
		}, hostDeps, o.mutationOpts...)

	s.ApproveUser = mutation.New("user.approve", qc,
		func(ctx context.Context, id int64) (struct{}, error) {
			return struct{}{}, s.users.Approve(ctx, id)
		}, approveDeps, o.mutationOpts...)

	s.RejectUser = mutation.New("user.reject", qc,
		func(ctx context.Context, id int64) (struct{}, error) {
			return struct{}{}, s.users.Reject(ctx, id)
		}, rejectDeps, o.mutationOpts...)

	return s
}

// Cache returns the underlying query client.
func (s *Service) Cache() *query.Client { return s.qc }

// ClearOnSignOut drops the cache whenever g leaves the authenticated state,
// so one user's data is never served to the next. It returns the cancel
// func of the guard subscription.
func (s *Service) ClearOnSignOut(g *session.Guard) func() {
	return g.Subscribe(func(st session.State) {
		if st != session.Authenticated {
			s.qc.Clear()
		}
	})
}

// --- Query descriptors ---

func (s *Service) AllReports(p apiclient.ReportParams) Query {
	return Query{
		Key: KeyAllReports.With(p.Values()),
		Fn: query.Func(func(ctx context.Context) (*apiclient.ReportPage, error) {
			return s.reports.List(ctx, p)
		}),
		Opts: s.listOpts,
	}
}

func (s *Service) MyReports(p apiclient.ReportParams) Query {
	return Query{
		Key: KeyMyReports.With(p.Values()),
		Fn: query.Func(func(ctx context.Context) (*apiclient.ReportPage, error) {
			return s.reports.Mine(ctx, p)
		}),
		Opts: s.listOpts,
	}
}

func (s *Service) Statistics(p apiclient.MonthParams) Query {
	return Query{
		Key: KeyStatistics.With(p.Values()),
		Fn: query.Func(func(ctx context.Context) (*apiclient.Statistics, error) {
			return s.reports.Statistics(ctx, p)
		}),
		Opts: s.aggregateOpts,
	}
}

func (s *Service) HostStats(p apiclient.MonthParams) Query {
	return Query{
		Key: KeyHostStats.With(p.Values()),
		Fn: query.Func(func(ctx context.Context) (*apiclient.HostStatsReport, error) {
			return s.reports.MonthlyHostStats(ctx, p)
		}),
		Opts: s.aggregateOpts,
	}
}

func (s *Service) AvailableMonths() Query {
	return Query{
		Key:  KeyAvailableMonths,
		Fn:   query.Func(s.reports.AvailableMonths),
		Opts: s.monthsOpts,
	}
}

func (s *Service) Hosts(p apiclient.HostParams) Query {
	return Query{
		Key: KeyHosts.With(p.Values()),
		Fn: query.Func(func(ctx context.Context) ([]apiclient.Host, error) {
			return s.hosts.List(ctx, p)
		}),
		Opts: s.hostsOpts,
	}
}

func (s *Service) PendingUsers() Query {
	return Query{
		Key:  KeyPendingUsers,
		Fn:   query.Func(s.users.Pending),
		Opts: s.pendingOpts,
	}
}

// Fetch reads q through the cache.
func (s *Service) Fetch(ctx context.Context, q Query) (query.Snapshot, error) {
	return s.qc.Fetch(ctx, q.Key, q.Fn, q.Opts)
}

// Subscribe keeps q fresh until the subscription is closed.
func (s *Service) Subscribe(q Query, onChange func(query.Snapshot)) *query.Subscription {
	return s.qc.Subscribe(q.Key, q.Fn, q.Opts, onChange)
}

// Load reads q and returns its data as T. A snapshot in the error state
// returns its error.
func Load[T any](ctx context.Context, s *Service, q Query) (T, error) {
	var zero T
	snap, err := s.Fetch(ctx, q)
	if err != nil {
		return zero, err
	}
	if snap.Err != nil && snap.Data == nil {
		return zero, snap.Err
	}
	v, ok := query.Data[T](snap)
	if !ok {
		return zero, fmt.Errorf("loading %s: unexpected data %T", q.Key, snap.Data)
	}
	return v, nil
}

// ExportPageSize is the page size used to walk a full listing.
const ExportPageSize = 100

// AllReportPages walks every page of the all-reports listing for p,
// ignoring p's own page and limit. Each page goes through the cache.
func (s *Service) AllReportPages(ctx context.Context, p apiclient.ReportParams) ([]apiclient.Report, error) {
	p.Limit = ExportPageSize
	var out []apiclient.Report
	for page := 1; ; page++ {
		p.Page = page
		rp, err := Load[*apiclient.ReportPage](ctx, s, s.AllReports(p))
		if err != nil {
			return nil, fmt.Errorf("loading reports page %d: %w", page, err)
		}
		out = append(out, rp.Reports...)
		if page >= rp.Pagination.TotalPages || len(rp.Reports) == 0 {
			return out, nil
		}
	}
}
