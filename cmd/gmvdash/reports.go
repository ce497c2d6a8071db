package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/export"
	"github.com/gmvreport/gmvdash/internal/service"
	"github.com/gmvreport/gmvdash/internal/views"
)

type reportFlags struct {
	status string
	month  string
	year   int
	page   int
	limit  int
}

func (f *reportFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().StringVar(&f.status, "status", "", "PENDING, VERIFIED or REJECTED (default all)")
	cmd.Flags().StringVar(&f.month, "month", views.MonthAll, `"all", "current" or a month number`)
	cmd.Flags().IntVar(&f.year, "year", 0, "year of --month (default this year)")
	if paging {
		cmd.Flags().IntVar(&f.page, "page", 1, "page number")
		cmd.Flags().IntVar(&f.limit, "limit", views.DefaultLimit, "reports per page")
	}
}

func (f *reportFlags) filter() views.ReportFilter {
	q := url.Values{}
	q.Set("status", f.status)
	q.Set("month", f.month)
	if f.year > 0 {
		q.Set("year", strconv.Itoa(f.year))
	}
	if f.page > 0 {
		q.Set("page", strconv.Itoa(f.page))
	}
	if f.limit > 0 {
		q.Set("limit", strconv.Itoa(f.limit))
	}
	return views.ParseReportFilter(q)
}

var (
	listFlags   reportFlags
	mineFlags   reportFlags
	statsFlags  reportFlags
	exportFlags reportFlags
	exportOut   string
	statusNotes string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List, verify and export GMV reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every host's reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
				return err
			}
			page, err := service.Load[*apiclient.ReportPage](ctx, a.svc, a.svc.AllReports(listFlags.filter().Params(time.Now())))
			if err != nil {
				return err
			}
			printReports(cmd.OutOrStdout(), page, true)
			return nil
		})
	},
}

var reportsMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List your own reports with a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx, apiclient.RoleHost); err != nil {
				return err
			}
			page, err := service.Load[*apiclient.ReportPage](ctx, a.svc, a.svc.MyReports(mineFlags.filter().Params(time.Now())))
			if err != nil {
				return err
			}
			sum := views.Summarize(page.Reports)
			printFields(cmd.OutOrStdout(), "Summary", [][2]string{
				{"Reports", strconv.Itoa(sum.Total)},
				{"Verified", strconv.Itoa(sum.Verified)},
				{"Pending", strconv.Itoa(sum.Pending)},
				{"Verified GMV", views.FormatCurrency(sum.TotalVerifiedGMV)},
			})
			printReports(cmd.OutOrStdout(), page, false)
			return nil
		})
	},
}

var reportsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show report statistics and per-host totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
				return err
			}
			mp := statsFlags.filter().MonthParams(time.Now())

			var (
				stats *apiclient.Statistics
				hosts *apiclient.HostStatsReport
			)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() (err error) {
				stats, err = service.Load[*apiclient.Statistics](gctx, a.svc, a.svc.Statistics(mp))
				return err
			})
			g.Go(func() (err error) {
				hosts, err = service.Load[*apiclient.HostStatsReport](gctx, a.svc, a.svc.HostStats(mp))
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printFields(w, "Statistics", [][2]string{
				{"Total reports", strconv.Itoa(stats.TotalReports)},
				{"Pending", strconv.Itoa(stats.PendingReports)},
				{"Verified", strconv.Itoa(stats.VerifiedReports)},
				{"Rejected", strconv.Itoa(stats.RejectedReports)},
				{"Verified GMV", views.FormatRupiah(stats.TotalVerifiedGMV)},
				{"Average GMV", views.FormatRupiah(stats.AvgVerifiedGMV)},
			})
			rows := make([][]string, 0, len(hosts.Hosts))
			for _, h := range hosts.Hosts {
				rows = append(rows, []string{
					h.FullName,
					"@" + h.Username,
					strconv.Itoa(h.TotalReports),
					strconv.Itoa(h.VerifiedReports),
					views.FormatRupiah(h.TotalGMV),
					views.FormatHours(h.TotalHours),
				})
			}
			printTable(w, "No host activity for this month.", []string{"Host", "Username", "Reports", "Verified", "GMV", "Hours"}, rows)
			return nil
		})
	},
}

var reportsMonthsCmd = &cobra.Command{
	Use:   "months",
	Short: "List the months that have reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx); err != nil {
				return err
			}
			months, err := service.Load[[]apiclient.AvailableMonth](ctx, a.svc, a.svc.AvailableMonths())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(months))
			for _, m := range months {
				rows = append(rows, []string{m.DisplayName, fmt.Sprintf("%d-%d", m.Month, m.Year), strconv.Itoa(m.ReportCount)})
			}
			printTable(cmd.OutOrStdout(), "No reports yet.", []string{"Month", "--month", "Reports"}, rows)
			return nil
		})
	},
}

func statusCmd(use string, status apiclient.ReportStatus) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <report-id>",
		Short: "Mark a pending report as " + string(status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid report id %q", args[0])
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
					return err
				}
				r, err := a.svc.UpdateReportStatus.Mutate(ctx, service.StatusChange{ID: id, Status: status, Notes: statusNotes})
				if err != nil {
					return errors.New(apiclient.Message(err))
				}
				printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Report #%d is now %s", r.ID, statusStyle(r.Status).Render(string(r.Status))))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusNotes, "notes", "", "note stored with the decision")
	return cmd
}

var reportsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export reports and statistics to an .xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
				return err
			}
			now := time.Now()
			f := exportFlags.filter()
			mp := f.MonthParams(now)

			wb := export.Workbook{GeneratedAt: now}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() (err error) {
				wb.Reports, err = a.svc.AllReportPages(gctx, f.Params(now))
				return err
			})
			g.Go(func() (err error) {
				wb.Statistics, err = service.Load[*apiclient.Statistics](gctx, a.svc, a.svc.Statistics(mp))
				return err
			})
			g.Go(func() (err error) {
				wb.HostStats, err = service.Load[*apiclient.HostStatsReport](gctx, a.svc, a.svc.HostStats(mp))
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			path := exportOut
			if path == "" {
				path = export.Filename(mp, now)
			}
			out, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := export.Write(out, wb); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Wrote %d reports to %s", len(wb.Reports), path))
			return nil
		})
	},
}

func init() {
	listFlags.register(reportsListCmd, true)
	mineFlags.register(reportsMineCmd, true)
	statsFlags.register(reportsStatsCmd, false)
	exportFlags.register(reportsExportCmd, false)
	reportsExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default gmv-reports-<month>.xlsx)")

	reportsCmd.AddCommand(
		reportsListCmd,
		reportsMineCmd,
		reportsStatsCmd,
		reportsMonthsCmd,
		statusCmd("verify", apiclient.StatusVerified),
		statusCmd("reject", apiclient.StatusRejected),
		reportsExportCmd,
	)
	rootCmd.AddCommand(reportsCmd)
}

func printReports(w io.Writer, page *apiclient.ReportPage, withHost bool) {
	headers := []string{"ID", "GMV", "Status", "Duration", "Created"}
	if withHost {
		headers = append([]string{"ID", "Host"}, headers[1:]...)
	}
	rows := make([][]string, 0, len(page.Reports))
	for _, r := range page.Reports {
		row := []string{
			"#" + strconv.FormatInt(r.ID, 10),
			views.FormatRupiah(r.ReportedGMV),
			statusStyle(r.Status).Render(string(r.Status)),
			r.LiveDuration,
			views.FormatDateTime(r.CreatedAt.Local()),
		}
		if withHost {
			row = append([]string{row[0], r.HostFullName + " (@" + r.HostUsername + ")"}, row[1:]...)
		}
		rows = append(rows, row)
	}
	printTable(w, "No reports found.", headers, rows)
	p := page.Pagination
	if p.TotalPages > 1 {
		fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("Page %d of %d (%d reports)", p.Page, p.TotalPages, p.Total)))
	}
}
