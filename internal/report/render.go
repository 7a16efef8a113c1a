// internal/report/render.go
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/signalnine/logsentry/internal/protocol"
)

var (
	accent  = lipgloss.Color("#06B6D4") // cyan
	fg      = lipgloss.Color("#E5E7EB")
	dim     = lipgloss.Color("#6B7280")
	faint   = lipgloss.Color("#374151")
	danger  = lipgloss.Color("#EF4444")
	success = lipgloss.Color("#22C55E")
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 4).
			Align(lipgloss.Center)

	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(accent)
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(fg)
	dimStyle       = lipgloss.NewStyle().Foreground(dim)
	maliciousStyle = lipgloss.NewStyle().Foreground(danger).Bold(true)
	benignStyle    = lipgloss.NewStyle().Foreground(success)
	separatorLine  = lipgloss.NewStyle().Foreground(faint).Render(strings.Repeat("─", 96))
)

const (
	pathWidth   = 28
	bodyWidth   = 36
	reasonWidth = 40
)

// RenderResult renders the summary box and the filtered results table
func RenderResult(r protocol.AnalysisResult, filter, search string) string {
	var b strings.Builder

	stamp := time.UnixMilli(r.Timestamp).Format("2006-01-02 15:04:05")
	counts := fmt.Sprintf("%s  %s  %s",
		titleStyle.Render(fmt.Sprintf("Total %d", r.Summary.Total)),
		maliciousStyle.Render(fmt.Sprintf("Malicious %d", r.Summary.Malicious)),
		benignStyle.Render(fmt.Sprintf("Benign %d", r.Summary.Benign)))
	b.WriteString(boxStyle.Render(
		headerStyle.Render(r.FileName) + "\n" +
			dimStyle.Render(stamp+"  "+r.ID) + "\n\n" + counts))
	b.WriteString("\n\n")

	rows := protocol.FilterResults(r.Results, filter, search)
	b.WriteString(titleStyle.Render(fmt.Sprintf("%-*s %-*s %-10s %s", pathWidth, "PATH", bodyWidth, "BODY", "VERDICT", "REASON")))
	b.WriteString("\n")
	b.WriteString(separatorLine)
	b.WriteString("\n")

	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("No logs match the current filters."))
		b.WriteString("\n")
		return b.String()
	}

	for _, row := range rows {
		fmt.Fprintf(&b, "%-*s %-*s %s %s\n",
			pathWidth, truncate(row.Log.Path, pathWidth),
			bodyWidth, truncate(row.Log.Body, bodyWidth),
			verdict(row.Classification),
			truncate(row.Reason, reasonWidth))
	}

	if len(rows) != len(r.Results) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("%d of %d entries shown", len(rows), len(r.Results))))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderHistory renders past analyses, newest first
func RenderHistory(history []protocol.AnalysisResult) string {
	var b strings.Builder

	if len(history) == 0 {
		b.WriteString(dimStyle.Render("No analyses yet. Run `logsentry analyze FILE` to start."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(titleStyle.Render(fmt.Sprintf("%-36s %-24s %-19s %6s %9s %6s", "ID", "FILE", "WHEN", "TOTAL", "MALICIOUS", "BENIGN")))
	b.WriteString("\n")
	b.WriteString(separatorLine)
	b.WriteString("\n")
	for _, r := range history {
		mal := fmt.Sprintf("%9d", r.Summary.Malicious)
		if r.Summary.Malicious > 0 {
			mal = maliciousStyle.Render(mal)
		}
		fmt.Fprintf(&b, "%-36s %-24s %-19s %6d %s %6d\n",
			r.ID,
			truncate(r.FileName, 24),
			time.UnixMilli(r.Timestamp).Format("2006-01-02 15:04:05"),
			r.Summary.Total,
			mal,
			r.Summary.Benign)
	}
	return b.String()
}

// ProgressLine renders a single-line progress bar for terminal output
func ProgressLine(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * float64(width))
	bar := headerStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %5.1f%%", bar, percent)
}

func verdict(c protocol.Classification) string {
	label := fmt.Sprintf("%-10s", c)
	if c == protocol.Malicious {
		return maliciousStyle.Render(label)
	}
	return benignStyle.Render(label)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
