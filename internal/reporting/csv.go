package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders window rows as a CSV string.
func RenderCSV(rows []WindowRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("slug,open_ms,strike,outcome,evaluations,signals,blocked,max_score,avg_total,")
	sb.WriteString("traded,direction,entry_price,entry_size,close_price,close_reason,pnl,final_price\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%.2f,%s,%d,%d,%d,%d,%.2f,%t,%s,%.4f,%.4f,%.4f,%s,%.6f,%.2f\n",
			r.Slug,
			r.OpenMs,
			r.Strike,
			r.Outcome,
			r.Evaluations,
			r.Signals,
			r.Blocked,
			r.MaxScore,
			r.AvgTotal,
			r.Traded,
			r.Direction,
			r.EntryPrice,
			r.EntrySize,
			r.ClosePrice,
			r.CloseReason,
			r.PnL,
			r.FinalPrice,
		))
	}

	return sb.String()
}
