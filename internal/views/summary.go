package views

import (
	"strings"

	"github.com/gmvreport/gmvdash/internal/apiclient"
)

// Summary aggregates a set of already-fetched reports.
type Summary struct {
	Total            int
	Pending          int
	Verified         int
	Rejected         int
	TotalVerifiedGMV apiclient.Money
}

// Summarize counts reports per status and sums the GMV of verified ones.
func Summarize(reports []apiclient.Report) Summary {
	s := Summary{Total: len(reports)}
	for _, r := range reports {
		switch r.Status {
		case apiclient.StatusPending:
			s.Pending++
		case apiclient.StatusVerified:
			s.Verified++
			s.TotalVerifiedGMV += r.ReportedGMV
		case apiclient.StatusRejected:
			s.Rejected++
		}
	}
	return s
}

// FilterHosts returns the hosts whose full name, username or Telegram id
// contains term, ignoring case. An empty term returns every host.
func FilterHosts(hosts []apiclient.Host, term string) []apiclient.Host {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]apiclient.Host, 0, len(hosts))
	for _, h := range hosts {
		if term == "" ||
			strings.Contains(strings.ToLower(h.FullName), term) ||
			strings.Contains(strings.ToLower(h.Username), term) ||
			strings.Contains(strings.ToLower(h.TelegramUserID), term) {
			out = append(out, h)
		}
	}
	return out
}
