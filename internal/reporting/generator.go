// Package reporting builds session reports from stored window records
// and renders them as Markdown and CSV. Reports are read-only summaries;
// nothing in here feeds back into trading decisions.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/storage"
)

// reasonUnresolved labels positions a shutdown left open.
const reasonUnresolved = "UNRESOLVED"

// Generator produces reports from stored window records.
type Generator struct {
	windows storage.WindowRecordStore
	now     func() time.Time
}

// NewGenerator creates a report generator.
func NewGenerator(windows storage.WindowRecordStore) *Generator {
	return &Generator{
		windows: windows,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for windows opened within [startMs, endMs].
// endMs <= 0 means now.
func (g *Generator) Generate(ctx context.Context, startMs, endMs int64) (*Report, error) {
	if endMs <= 0 {
		endMs = g.now().UnixMilli()
	}
	if startMs > endMs {
		return nil, fmt.Errorf("report range start %d after end %d", startMs, endMs)
	}

	records, err := g.windows.GetByTimeRange(ctx, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("load window records: %w", err)
	}

	return &Report{
		GeneratedAt:  g.now(),
		RangeStartMs: startMs,
		RangeEndMs:   endMs,
		Summary:      buildSummary(records),
		Windows:      buildWindowRows(records),
		CloseReasons: buildCloseReasons(records),
	}, nil
}

// Recent builds the report for the latest limit windows.
func (g *Generator) Recent(ctx context.Context, limit int) (*Report, error) {
	records, err := g.windows.GetRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load window records: %w", err)
	}

	// GetRecent returns newest first; reports read oldest first.
	sort.Slice(records, func(i, j int) bool { return records[i].OpenMs < records[j].OpenMs })

	var startMs, endMs int64
	if len(records) > 0 {
		startMs = records[0].OpenMs
		endMs = records[len(records)-1].OpenMs
	}

	return &Report{
		GeneratedAt:  g.now(),
		RangeStartMs: startMs,
		RangeEndMs:   endMs,
		Summary:      buildSummary(records),
		Windows:      buildWindowRows(records),
		CloseReasons: buildCloseReasons(records),
	}, nil
}

func buildSummary(records []*domain.WindowRecord) SessionSummary {
	var s SessionSummary
	var totalScoreSum float64
	first := true

	for _, r := range records {
		s.Windows++
		s.Evaluations += r.Evaluations
		s.Signals += r.Signals
		s.Blocked += r.Blocked
		s.CloseAttempts += r.CloseAttempts
		if r.MaxScore > s.MaxScore {
			s.MaxScore = r.MaxScore
		}
		totalScoreSum += r.AvgTotal * float64(r.Evaluations)

		switch r.Outcome {
		case domain.OutcomeWin:
			s.Wins++
		case domain.OutcomeLoss:
			s.Losses++
		case domain.OutcomeFlat:
			s.Flat++
		default:
			s.NoSignal++
		}

		if r.PositionID == nil {
			continue
		}
		s.Traded++
		if r.Settled {
			s.SettledByExpiry++
		}
		if r.PnL == nil {
			continue
		}
		pnl := *r.PnL
		s.TotalPnL += pnl
		if first || pnl > s.BestPnL {
			s.BestPnL = pnl
		}
		if first || pnl < s.WorstPnL {
			s.WorstPnL = pnl
		}
		first = false
	}

	if decided := s.Wins + s.Losses; decided > 0 {
		s.WinRate = float64(s.Wins) / float64(decided)
	}
	if s.Evaluations > 0 {
		s.SignalRate = float64(s.Signals) / float64(s.Evaluations)
		s.AvgScore = totalScoreSum / float64(s.Evaluations)
	}
	if s.Traded > 0 {
		s.AvgPnL = s.TotalPnL / float64(s.Traded)
	}
	return s
}

func buildWindowRows(records []*domain.WindowRecord) []WindowRow {
	rows := make([]WindowRow, len(records))
	for i, r := range records {
		row := WindowRow{
			Slug:        r.Slug,
			OpenMs:      r.OpenMs,
			Strike:      r.Strike,
			Outcome:     r.Outcome,
			Evaluations: r.Evaluations,
			Signals:     r.Signals,
			Blocked:     r.Blocked,
			MaxScore:    r.MaxScore,
			AvgTotal:    r.AvgTotal,
		}
		if r.PositionID != nil {
			row.Traded = true
			row.CloseReason = reasonUnresolved
		}
		if r.Direction != nil {
			row.Direction = *r.Direction
		}
		if r.EntryPrice != nil {
			row.EntryPrice = *r.EntryPrice
		}
		if r.EntrySize != nil {
			row.EntrySize = *r.EntrySize
		}
		if r.ClosePrice != nil {
			row.ClosePrice = *r.ClosePrice
		}
		if r.CloseReason != nil {
			row.CloseReason = *r.CloseReason
		}
		if r.PnL != nil {
			row.PnL = *r.PnL
		}
		if r.FinalPrice != nil {
			row.FinalPrice = *r.FinalPrice
		}
		rows[i] = row
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].OpenMs < rows[j].OpenMs })
	return rows
}

func buildCloseReasons(records []*domain.WindowRecord) []CloseReasonRow {
	byReason := make(map[string]*CloseReasonRow)
	for _, r := range records {
		if r.PositionID == nil {
			continue
		}
		reason := reasonUnresolved
		if r.CloseReason != nil {
			reason = *r.CloseReason
		}
		row := byReason[reason]
		if row == nil {
			row = &CloseReasonRow{Reason: reason}
			byReason[reason] = row
		}
		row.Count++
		if r.PnL != nil {
			row.TotalPnL += *r.PnL
			if *r.PnL > 0 {
				row.Wins++
			}
		}
	}

	rows := make([]CloseReasonRow, 0, len(byReason))
	for _, row := range byReason {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Reason < rows[j].Reason })
	return rows
}
