// Package export writes report listings as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/views"
)

const (
	SheetReports = "Reports"
	SheetSummary = "Summary"
	SheetHosts   = "Hosts"

	// ContentType is the MIME type of the written workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Workbook is the data of one export.
type Workbook struct {
	Reports     []apiclient.Report
	Statistics  *apiclient.Statistics
	HostStats   *apiclient.HostStatsReport
	GeneratedAt time.Time
}

var reportHeader = []any{"ID", "Host", "Username", "GMV (Rp)", "Status", "Live Duration", "Created", "Verified", "Notes", "Screenshot"}

// Write renders wb as an .xlsx file. The Summary and Hosts sheets are only
// added when their data is present.
func Write(w io.Writer, wb Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetReports); err != nil {
		return fmt.Errorf("naming reports sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("creating money style: %w", err)
	}

	if err := writeReports(f, wb.Reports, header, money); err != nil {
		return err
	}
	if wb.Statistics != nil {
		if err := writeSummary(f, wb, header, money); err != nil {
			return err
		}
	}
	if wb.HostStats != nil {
		if err := writeHosts(f, wb.HostStats, header, money); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func writeHeader(f *excelize.File, sheet string, cols []any, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &cols); err != nil {
		return fmt.Errorf("writing %s header: %w", sheet, err)
	}
	if err := f.SetCellStyle(sheet, "A1", cell(len(cols), 1), style); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeReports(f *excelize.File, reports []apiclient.Report, header, money int) error {
	if err := writeHeader(f, SheetReports, reportHeader, header); err != nil {
		return err
	}
	for i, r := range reports {
		verified := ""
		if r.VerifiedAt != nil {
			verified = views.FormatDateTime(*r.VerifiedAt)
		}
		row := []any{
			r.ID, r.HostFullName, r.HostUsername, r.ReportedGMV.Float(), string(r.Status),
			r.LiveDuration, views.FormatDateTime(r.CreatedAt), verified, r.Notes, r.ScreenshotURL,
		}
		if err := f.SetSheetRow(SheetReports, cell(1, i+2), &row); err != nil {
			return fmt.Errorf("writing report %d: %w", r.ID, err)
		}
	}
	if len(reports) > 0 {
		if err := f.SetCellStyle(SheetReports, "D2", cell(4, len(reports)+1), money); err != nil {
			return fmt.Errorf("styling gmv column: %w", err)
		}
	}
	_ = f.SetColWidth(SheetReports, "B", "C", 22)
	_ = f.SetColWidth(SheetReports, "D", "D", 16)
	_ = f.SetColWidth(SheetReports, "G", "H", 20)
	return nil
}

func writeSummary(f *excelize.File, wb Workbook, header, money int) error {
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}
	if err := writeHeader(f, SheetSummary, []any{"Metric", "Value"}, header); err != nil {
		return err
	}

	st := wb.Statistics
	local := views.Summarize(wb.Reports)
	rows := [][]any{
		{"Total reports", st.TotalReports},
		{"Pending", st.PendingReports},
		{"Verified", st.VerifiedReports},
		{"Rejected", st.RejectedReports},
		{"Total verified GMV", st.TotalVerifiedGMV.Float()},
		{"Average verified GMV", st.AvgVerifiedGMV.Float()},
		{"Exported rows", local.Total},
		{"Exported verified GMV", local.TotalVerifiedGMV.Float()},
	}
	if !wb.GeneratedAt.IsZero() {
		rows = append(rows, []any{"Generated", views.FormatDateTime(wb.GeneratedAt)})
	}
	for i, row := range rows {
		if err := f.SetSheetRow(SheetSummary, cell(1, i+2), &row); err != nil {
			return fmt.Errorf("writing summary row: %w", err)
		}
	}
	for _, r := range []int{6, 7, 9} {
		if err := f.SetCellStyle(SheetSummary, cell(2, r), cell(2, r), money); err != nil {
			return fmt.Errorf("styling summary: %w", err)
		}
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 26)
	_ = f.SetColWidth(SheetSummary, "B", "B", 20)
	return nil
}

func writeHosts(f *excelize.File, hs *apiclient.HostStatsReport, header, money int) error {
	if _, err := f.NewSheet(SheetHosts); err != nil {
		return fmt.Errorf("creating hosts sheet: %w", err)
	}
	if err := writeHeader(f, SheetHosts, []any{"Host", "Username", "Reports", "Verified", "GMV (Rp)", "Live Hours"}, header); err != nil {
		return err
	}
	for i, h := range hs.Hosts {
		row := []any{h.FullName, h.Username, h.TotalReports, h.VerifiedReports, h.TotalGMV.Float(), views.FormatHours(h.TotalHours)}
		if err := f.SetSheetRow(SheetHosts, cell(1, i+2), &row); err != nil {
			return fmt.Errorf("writing host %s: %w", h.Username, err)
		}
	}
	if len(hs.Hosts) > 0 {
		if err := f.SetCellStyle(SheetHosts, "E2", cell(5, len(hs.Hosts)+1), money); err != nil {
			return fmt.Errorf("styling host gmv: %w", err)
		}
	}
	_ = f.SetColWidth(SheetHosts, "A", "B", 22)
	return nil
}

// Filename names an export for a month selection.
func Filename(p apiclient.MonthParams, now time.Time) string {
	if p.Month > 0 && p.Year > 0 {
		return fmt.Sprintf("gmv-reports-%04d-%02d.xlsx", p.Year, p.Month)
	}
	return "gmv-reports-" + now.Format("20060102") + ".xlsx"
}
