package service

import "github.com/gmvreport/gmvdash/internal/query"

// Cache key roots. Every listing key extends one of these with its filter
// parameters, so invalidating a root covers every filter combination.
var (
	KeyReports         = query.NewKey("reports")
	KeyAllReports      = query.NewKey("reports", "all")
	KeyMyReports       = query.NewKey("reports", "mine")
	KeyStatistics      = query.NewKey("reports", "statistics")
	KeyHostStats       = query.NewKey("reports", "hostStats")
	KeyAvailableMonths = query.NewKey("reports", "availableMonths")
	KeyHosts           = query.NewKey("hosts")
	KeyPendingUsers    = query.NewKey("users", "pending")
)

// Dependent sets invalidated after each write succeeds.
var (
	reportStatusDeps = []query.Key{KeyAllReports, KeyMyReports, KeyStatistics, KeyHostStats}
	hostDeps         = []query.Key{KeyHosts}
	hostDeleteDeps   = []query.Key{KeyHosts, KeyAllReports, KeyStatistics, KeyHostStats}
	approveDeps      = []query.Key{KeyPendingUsers, KeyHosts}
	rejectDeps       = []query.Key{KeyPendingUsers}
)
