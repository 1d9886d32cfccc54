package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Session Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Range: %s to %s\n\n",
		formatMs(r.RangeStartMs), formatMs(r.RangeEndMs)))

	// Summary
	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Windows | %d |\n", s.Windows))
	sb.WriteString(fmt.Sprintf("| Traded | %d |\n", s.Traded))
	sb.WriteString(fmt.Sprintf("| Wins | %d |\n", s.Wins))
	sb.WriteString(fmt.Sprintf("| Losses | %d |\n", s.Losses))
	sb.WriteString(fmt.Sprintf("| Flat | %d |\n", s.Flat))
	sb.WriteString(fmt.Sprintf("| No Signal | %d |\n", s.NoSignal))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", s.WinRate))
	sb.WriteString(fmt.Sprintf("| Total PnL | %.4f |\n", s.TotalPnL))
	sb.WriteString(fmt.Sprintf("| Avg PnL | %.4f |\n", s.AvgPnL))
	sb.WriteString(fmt.Sprintf("| Best PnL | %.4f |\n", s.BestPnL))
	sb.WriteString(fmt.Sprintf("| Worst PnL | %.4f |\n", s.WorstPnL))
	sb.WriteString(fmt.Sprintf("| Evaluations | %d |\n", s.Evaluations))
	sb.WriteString(fmt.Sprintf("| Signals | %d |\n", s.Signals))
	sb.WriteString(fmt.Sprintf("| Blocked | %d |\n", s.Blocked))
	sb.WriteString(fmt.Sprintf("| Signal Rate | %.4f |\n", s.SignalRate))
	sb.WriteString(fmt.Sprintf("| Max Score | %d |\n", s.MaxScore))
	sb.WriteString(fmt.Sprintf("| Avg Score | %.2f |\n", s.AvgScore))
	sb.WriteString(fmt.Sprintf("| Settled By Expiry | %d |\n", s.SettledByExpiry))
	sb.WriteString(fmt.Sprintf("| Close Attempts | %d |\n", s.CloseAttempts))
	sb.WriteString("\n")

	// Windows
	sb.WriteString("## Windows\n\n")
	if len(r.Windows) > 0 {
		sb.WriteString("| Slug | Open (UTC) | Strike | Outcome | Evals | Signals | Blocked | Max | Avg | Dir | Entry | Size | Close | Reason | PnL |\n")
		sb.WriteString("|------|-----------|--------|---------|-------|---------|---------|-----|-----|-----|-------|------|-------|--------|-----|\n")
		for _, w := range r.Windows {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %s | %d | %d | %d | %d | %.1f | %s | %.4f | %.4f | %.4f | %s | %.4f |\n",
				w.Slug, formatMs(w.OpenMs), w.Strike, w.Outcome,
				w.Evaluations, w.Signals, w.Blocked, w.MaxScore, w.AvgTotal,
				orDash(w.Direction), w.EntryPrice, w.EntrySize, w.ClosePrice,
				orDash(w.CloseReason), w.PnL))
		}
	} else {
		sb.WriteString("No windows recorded.\n")
	}
	sb.WriteString("\n")

	// Close Reasons
	sb.WriteString("## Close Reasons\n\n")
	if len(r.CloseReasons) > 0 {
		sb.WriteString("| Reason | Count | Wins | Total PnL |\n")
		sb.WriteString("|--------|-------|------|----------|\n")
		for _, c := range r.CloseReasons {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f |\n",
				c.Reason, c.Count, c.Wins, c.TotalPnL))
		}
	} else {
		sb.WriteString("No positions taken.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
