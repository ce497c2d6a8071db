package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/apiclient/fakeapi"
	"github.com/gmvreport/gmvdash/internal/config"
	"github.com/gmvreport/gmvdash/internal/query"
	"github.com/gmvreport/gmvdash/internal/session"
	"github.com/gmvreport/gmvdash/internal/validate"
)

const managerToken = "manager-token"

type mutationLog struct {
	mu     sync.Mutex
	events []string
}

func (l *mutationLog) MutationDone(name, result string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, name+":"+result)
}

func testQueryConfig() config.QueryConfig {
	return config.QueryConfig{
		StaleTime:               time.Hour,
		AggregateStaleTime:      time.Hour,
		ReportsInterval:         time.Hour,
		StatisticsInterval:      time.Hour,
		HostsInterval:           time.Hour,
		PendingUsersInterval:    time.Hour,
		AvailableMonthsInterval: time.Hour,
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeapi.Server) {
	t.Helper()
	fake := fakeapi.New()
	fake.AddAccount(fakeapi.Account{
		User:     apiclient.User{ID: 1, Role: apiclient.RoleManager, Username: "boss", Email: "boss@example.com"},
		Password: "secret1",
		Token:    managerToken,
	})

	api, err := apiclient.New(fake.Start(t), apiclient.WithTokenSource(apiclient.TokenFunc(func() string { return managerToken })))
	require.NoError(t, err)

	qc := query.New(query.WithDefaults(query.Options{Retry: query.NoRetry, RetryDelay: -1}))
	t.Cleanup(qc.Close)
	return New(api, qc, testQueryConfig(), opts...), fake
}

func TestQueriesShareCacheByFilter(t *testing.T) {
	svc, fake := newTestService(t)
	fake.AddReport(apiclient.Report{HostUsername: "ana", ReportedGMV: apiclient.NewMoney(100000)})
	ctx := context.Background()

	p := apiclient.ReportParams{Status: apiclient.StatusPending, Page: 1, Limit: 10}
	page, err := Load[*apiclient.ReportPage](ctx, svc, svc.AllReports(p))
	require.NoError(t, err)
	require.Len(t, page.Reports, 1)

	// Same filter, fresh entry: no second request.
	_, err = Load[*apiclient.ReportPage](ctx, svc, svc.AllReports(p))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Hits("GET /reports"))

	// Different filter, different entry.
	p.Status = apiclient.StatusVerified
	page, err = Load[*apiclient.ReportPage](ctx, svc, svc.AllReports(p))
	require.NoError(t, err)
	assert.Empty(t, page.Reports)
	assert.Equal(t, 2, fake.Hits("GET /reports"))
}

func TestQueryKeys(t *testing.T) {
	svc, _ := newTestService(t)
	month := apiclient.MonthParams{Month: 9, Year: 2026}

	assert.True(t, svc.AllReports(apiclient.ReportParams{}).Key.Equal(KeyAllReports))
	assert.Equal(t, "reports/statistics?month=9&year=2026", svc.Statistics(month).Key.String())
	assert.True(t, svc.HostStats(month).Key.HasPrefix(KeyHostStats))
	assert.True(t, svc.MyReports(apiclient.ReportParams{}).Key.HasPrefix(KeyReports))

	active := true
	assert.Equal(t, "hosts?is_active=true", svc.Hosts(apiclient.HostParams{Active: &active}).Key.String())

	assert.Equal(t, time.Hour, svc.AvailableMonths().Opts.RefetchInterval)
	assert.True(t, svc.AllReports(apiclient.ReportParams{}).Opts.KeepPreviousData)
	assert.True(t, svc.PendingUsers().Opts.RefetchOnFocus)
}

func TestMutationsDeclareDependentSets(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		got  []query.Key
		want []query.Key
	}{
		{"report status", svc.UpdateReportStatus.Invalidates(), []query.Key{KeyAllReports, KeyMyReports, KeyStatistics, KeyHostStats}},
		{"host create", svc.CreateHost.Invalidates(), []query.Key{KeyHosts}},
		{"host update", svc.UpdateHost.Invalidates(), []query.Key{KeyHosts}},
		{"host toggle", svc.ToggleHost.Invalidates(), []query.Key{KeyHosts}},
		{"host delete", svc.DeleteHost.Invalidates(), []query.Key{KeyHosts, KeyAllReports, KeyStatistics, KeyHostStats}},
		{"user approve", svc.ApproveUser.Invalidates(), []query.Key{KeyPendingUsers, KeyHosts}},
		{"user reject", svc.RejectUser.Invalidates(), []query.Key{KeyPendingUsers}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestStatusChangeRefreshesReportsAndStatistics(t *testing.T) {
	log := &mutationLog{}
	svc, fake := newTestService(t, WithMutationRecorder(log))
	rep := fake.AddReport(apiclient.Report{HostUsername: "ana", ReportedGMV: apiclient.NewMoney(2000000)})
	ctx := context.Background()

	stats, err := Load[*apiclient.Statistics](ctx, svc, svc.Statistics(apiclient.MonthParams{}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingReports)
	_, err = Load[[]apiclient.Host](ctx, svc, svc.Hosts(apiclient.HostParams{}))
	require.NoError(t, err)

	_, err = svc.UpdateReportStatus.Mutate(ctx, StatusChange{ID: rep.ID, Status: apiclient.StatusVerified})
	require.NoError(t, err)

	stats, err = Load[*apiclient.Statistics](ctx, svc, svc.Statistics(apiclient.MonthParams{}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VerifiedReports)
	assert.Equal(t, apiclient.NewMoney(2000000), stats.TotalVerifiedGMV)
	assert.Equal(t, 2, fake.Hits("GET /reports/statistics"))

	// Hosts are outside the dependent set and stay cached.
	_, err = Load[[]apiclient.Host](ctx, svc, svc.Hosts(apiclient.HostParams{}))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Hits("GET /hosts"))

	assert.Equal(t, []string{"report.status:success"}, log.events)
}

func TestFailedMutationInvalidatesNothing(t *testing.T) {
	svc, fake := newTestService(t)
	rep := fake.AddReport(apiclient.Report{HostUsername: "ana", Status: apiclient.StatusVerified})
	ctx := context.Background()

	_, err := Load[*apiclient.Statistics](ctx, svc, svc.Statistics(apiclient.MonthParams{}))
	require.NoError(t, err)

	_, err = svc.UpdateReportStatus.Mutate(ctx, StatusChange{ID: rep.ID, Status: apiclient.StatusRejected})
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "Report already processed", apiclient.Message(err))

	snap, ok := svc.Cache().Peek(svc.Statistics(apiclient.MonthParams{}).Key)
	require.True(t, ok)
	assert.False(t, snap.Stale)
}

func TestHostValidationPreventsRequest(t *testing.T) {
	svc, fake := newTestService(t)

	_, err := svc.CreateHost.Mutate(context.Background(), apiclient.HostInput{
		TelegramUserID: "12ab",
		Username:       "ana",
		FullName:       "Ana",
	})
	var verr *validate.Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "telegram_user_id", verr.Field)
	assert.Zero(t, fake.Hits("POST /hosts"))
}

func TestHostLifecycle(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	h, err := svc.CreateHost.Mutate(ctx, apiclient.HostInput{TelegramUserID: "555", Username: "budi", FullName: "Budi", IsActive: true, IsApproved: true})
	require.NoError(t, err)

	hosts, err := Load[[]apiclient.Host](ctx, svc, svc.Hosts(apiclient.HostParams{}))
	require.NoError(t, err)
	require.Len(t, hosts, 1)

	toggled, err := svc.ToggleHost.Mutate(ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	_, err = svc.UpdateHost.Mutate(ctx, HostUpdate{ID: h.ID, Input: apiclient.HostInput{TelegramUserID: "555", Username: "budi2", FullName: "Budi Dua"}})
	require.NoError(t, err)

	hosts, err = Load[[]apiclient.Host](ctx, svc, svc.Hosts(apiclient.HostParams{}))
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "budi2", hosts[0].Username)

	_, err = svc.DeleteHost.Mutate(ctx, h.ID)
	require.NoError(t, err)
	assert.Empty(t, fake.Hosts())
}

func TestApproveMovesPendingUserToHosts(t *testing.T) {
	svc, fake := newTestService(t)
	u := fake.AddPending(apiclient.PendingUser{FullName: "Citra", Username: "citra", TelegramUserID: "777", Role: apiclient.RoleHost})
	ctx := context.Background()

	pending, err := Load[[]apiclient.PendingUser](ctx, svc, svc.PendingUsers())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = svc.ApproveUser.Mutate(ctx, u.ID)
	require.NoError(t, err)

	pending, err = Load[[]apiclient.PendingUser](ctx, svc, svc.PendingUsers())
	require.NoError(t, err)
	assert.Empty(t, pending)

	hosts, err := Load[[]apiclient.Host](ctx, svc, svc.Hosts(apiclient.HostParams{}))
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "citra", hosts[0].Username)
}

func TestAllReportPages(t *testing.T) {
	svc, fake := newTestService(t)
	for i := 0; i < ExportPageSize+5; i++ {
		fake.AddReport(apiclient.Report{HostUsername: "ana", ReportedGMV: apiclient.NewMoney(1000)})
	}

	all, err := svc.AllReportPages(context.Background(), apiclient.ReportParams{Page: 7, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, all, ExportPageSize+5)
	assert.Equal(t, 2, fake.Hits("GET /reports"))
}

func TestLoadSurfacesFetchError(t *testing.T) {
	svc, fake := newTestService(t)
	fake.FailNext("GET /reports/available-months", http.StatusInternalServerError)

	_, err := Load[[]apiclient.AvailableMonth](context.Background(), svc, svc.AvailableMonths())
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "injected failure", apiErr.Message)
}

func TestClearOnSignOut(t *testing.T) {
	svc, fake := newTestService(t)
	fake.AddReport(apiclient.Report{HostUsername: "boss", ReportedGMV: apiclient.NewMoney(100000)})
	ctx := context.Background()

	api, err := apiclient.New(fake.Start(t))
	require.NoError(t, err)
	guard := session.NewGuard(session.NewMemoryStore(""), apiclient.NewAuth(api))
	cancel := svc.ClearOnSignOut(guard)
	defer cancel()

	res := guard.Login(ctx, apiclient.Credentials{"email": "boss@example.com", "password": "secret1"})
	require.True(t, res.Success, res.Message)

	_, err = Load[*apiclient.ReportPage](ctx, svc, svc.MyReports(apiclient.ReportParams{}))
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Cache().Len())

	require.NoError(t, guard.Logout(ctx))
	assert.Equal(t, 0, svc.Cache().Len())
}
