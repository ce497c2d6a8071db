package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gmvreport/gmvdash/internal/apiclient"
)

var (
	colorAccent  = lipgloss.Color("#F97316")
	colorSuccess = lipgloss.Color("#16A34A")
	colorWarning = lipgloss.Color("#CA8A04")
	colorError   = lipgloss.Color("#DC2626")
	colorMuted   = lipgloss.Color("#6B7280")
)

var styles = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	Success: lipgloss.NewStyle().Foreground(colorSuccess),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Bold(true).Foreground(colorError),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1),
	Cell:    lipgloss.NewStyle().Padding(0, 1),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(0, 1),
}

func statusStyle(s apiclient.ReportStatus) lipgloss.Style {
	switch s {
	case apiclient.StatusVerified:
		return styles.Success
	case apiclient.StatusRejected:
		return styles.Error
	default:
		return styles.Warning
	}
}

// printTable writes rows under headers. An empty listing prints empty.
func printTable(w io.Writer, empty string, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, styles.Muted.Render(empty))
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.Muted).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			return styles.Cell
		})
	fmt.Fprintln(w, t.Render())
}

// printFields writes aligned label/value pairs inside a box.
func printFields(w io.Writer, title string, pairs [][2]string) {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0]))
	}
	var b strings.Builder
	b.WriteString(styles.Title.Render(title))
	for _, p := range pairs {
		b.WriteString("\n")
		b.WriteString(styles.Muted.Render(fmt.Sprintf("%-*s", width, p[0])))
		b.WriteString("  ")
		b.WriteString(p[1])
	}
	fmt.Fprintln(w, styles.Box.Render(b.String()))
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, styles.Success.Render("✓ ")+msg)
}
