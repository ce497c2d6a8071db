package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/gmvreport/gmvdash/internal/apiclient"
)

func TestWriteWorkbook(t *testing.T) {
	created := time.Date(2026, time.September, 3, 20, 15, 0, 0, time.UTC)
	wb := Workbook{
		Reports: []apiclient.Report{
			{ID: 7, HostFullName: "Ana Putri", HostUsername: "ana", ReportedGMV: apiclient.NewMoney(1500000), Status: apiclient.StatusVerified, CreatedAt: created},
			{ID: 8, HostFullName: "Budi", HostUsername: "budi", ReportedGMV: apiclient.NewMoney(250000), Status: apiclient.StatusPending, CreatedAt: created},
		},
		Statistics: &apiclient.Statistics{TotalReports: 2, PendingReports: 1, VerifiedReports: 1, TotalVerifiedGMV: apiclient.NewMoney(1500000)},
		HostStats: &apiclient.HostStatsReport{Month: 9, Year: 2026, Hosts: []apiclient.HostStat{
			{FullName: "Ana Putri", Username: "ana", TotalReports: 1, VerifiedReports: 1, TotalGMV: apiclient.NewMoney(1500000), TotalHours: 2.5},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, wb))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetReports, SheetSummary, SheetHosts}, f.GetSheetList())

	rows, err := f.GetRows(SheetReports)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Host", rows[0][1])
	assert.Equal(t, "Ana Putri", rows[1][1])
	assert.Equal(t, "VERIFIED", rows[1][4])
	assert.Equal(t, "03 Sep 2026, 20.15", rows[1][6])

	gmv, err := f.GetCellValue(SheetReports, "D2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1500000", gmv)

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Verified", "1"}, summary[3])
	assert.Equal(t, []string{"Exported rows", "2"}, summary[7])

	hosts, err := f.GetRows(SheetHosts)
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "2 jam 30 menit", hosts[1][5])
}

func TestWriteReportsOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Workbook{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetReports}, f.GetSheetList())
}

func TestFilename(t *testing.T) {
	now := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "gmv-reports-2026-03.xlsx", Filename(apiclient.MonthParams{Month: 3, Year: 2026}, now))
	assert.Equal(t, "gmv-reports-20261018.xlsx", Filename(apiclient.MonthParams{}, now))
}
