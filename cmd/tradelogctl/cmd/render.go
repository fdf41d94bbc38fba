package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"tradelog/pkg/tradelog"
)

const wordWrap = 80

// render turns markdown into terminal output. Plain mode returns the
// markdown untouched, which keeps output stable for scripts.
func render(markdown string, plain bool) (string, error) {
	if plain {
		return markdown, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return out, nil
}

func formatPercent(a tradelog.Amount) string {
	return a.StringFixed(2) + "%"
}

func dayMarkdown(date string, rec tradelog.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", date)
	fmt.Fprintf(&b, "Start capital **%s**, final capital **%s**, net **%s**\n\n",
		rec.StartCapital.StringFixed(2), rec.FinalCapital.StringFixed(2), formatPercent(rec.Net()))

	writeEntries(&b, "Take profit", rec.TPs, rec.TotalTP())
	writeEntries(&b, "Stop loss", rec.SLs, rec.TotalSL())
	return b.String()
}

func writeEntries(b *strings.Builder, title string, entries []tradelog.Entry, total tradelog.Amount) {
	fmt.Fprintf(b, "## %s (%s)\n\n", title, formatPercent(total))
	if len(entries) == 0 {
		b.WriteString("_none_\n\n")
		return
	}
	b.WriteString("| id | value | asset |\n|---:|---:|---|\n")
	for _, e := range entries {
		fmt.Fprintf(b, "| %d | %s | %s |\n", e.ID, formatPercent(e.Value), e.Asset)
	}
	b.WriteString("\n")
}

func periodMarkdown(title string, p tradelog.PeriodSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s: %s to %s\n\n", title, p.Start, p.End)
	if p.TotalDays == 0 {
		b.WriteString("_no trading days_\n\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d days, %d won, %d lost, win rate %.1f%%, net **%s**\n\n",
		p.TotalDays, p.WinDays, p.LossDays, p.WinRate, formatPercent(p.Net))
	b.WriteString("| date | tp | sl | net |\n|---|---:|---:|---:|\n")
	for _, d := range p.Days {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", d.Date, formatPercent(d.TP), formatPercent(d.SL), formatPercent(d.Net))
	}
	b.WriteString("\n")
	return b.String()
}

func ledgerMarkdown(ledger map[string]tradelog.LedgerEntry) string {
	var b strings.Builder
	b.WriteString("# Capital ledger\n\n")
	if len(ledger) == 0 {
		b.WriteString("_empty_\n")
		return b.String()
	}
	dates := make([]string, 0, len(ledger))
	for date := range ledger {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	b.WriteString("| date | start | final |\n|---|---:|---:|\n")
	for _, date := range dates {
		entry := ledger[date]
		fmt.Fprintf(&b, "| %s | %s | %s |\n", date, entry.Start.StringFixed(2), entry.Final.StringFixed(2))
	}
	return b.String()
}
