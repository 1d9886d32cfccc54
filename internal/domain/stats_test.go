package domain

import (
	"encoding/json"
	"testing"
)

func breakdownWithScores(band, barrier, depth, price int) *ScoreBreakdown {
	b := &ScoreBreakdown{
		Direction: DirectionUp,
		Band:      Component{Weight: 30, Score: band},
		Barrier:   Component{Weight: 25, Score: barrier},
		Depth:     Component{Weight: 15, Score: depth},
		Price:     Component{Weight: 30, Score: price},
	}
	b.Finalize(false)
	return b
}

func TestWindowStatistics_Record(t *testing.T) {
	s := NewWindowStatistics("w1")

	s.Record(breakdownWithScores(30, 0, 10, 20), false, false)
	s.Record(breakdownWithScores(10, 25, 0, 30), true, false)
	s.Record(breakdownWithScores(0, 0, 0, 0), false, true)

	if s.Evaluations != 3 {
		t.Errorf("expected 3 evaluations, got %d", s.Evaluations)
	}
	if s.Signals != 1 {
		t.Errorf("expected 1 signal, got %d", s.Signals)
	}
	if s.Blocked != 1 {
		t.Errorf("expected 1 blocked, got %d", s.Blocked)
	}
	if s.BandSum != 40 {
		t.Errorf("expected band sum 40, got %d", s.BandSum)
	}
	if s.MaxTotal != 65 {
		t.Errorf("expected max total 65, got %d", s.MaxTotal)
	}
	if got := s.AvgTotal(); got != 125.0/3.0 {
		t.Errorf("expected avg total %f, got %f", 125.0/3.0, got)
	}
}

func TestWindowStatistics_ResumeAfterSerialization(t *testing.T) {
	// Accumulating through a serialize/reload cycle must match an
	// uninterrupted run tick for tick.
	ticks := []*ScoreBreakdown{
		breakdownWithScores(30, 25, 15, 30),
		breakdownWithScores(15, 0, 5, 10),
		breakdownWithScores(0, 10, 0, 0),
		breakdownWithScores(20, 25, 10, 25),
	}

	full := NewWindowStatistics("w1")
	for i, b := range ticks {
		full.Record(b, i == 3, false)
	}

	first := NewWindowStatistics("w1")
	first.Record(ticks[0], false, false)
	first.Record(ticks[1], false, false)

	data, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var resumed WindowStatistics
	if err := json.Unmarshal(data, &resumed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	resumed.Record(ticks[2], false, false)
	resumed.Record(ticks[3], true, false)

	if resumed != *full {
		t.Errorf("resumed totals %+v differ from uninterrupted run %+v", resumed, *full)
	}
}

func TestSessionStats_RecordWindow(t *testing.T) {
	var sess SessionStats

	stats := NewWindowStatistics("w1")
	stats.Record(breakdownWithScores(30, 25, 15, 30), true, false)

	won := true
	sess.RecordWindow(stats, &Position{PnL: 0.5, Won: &won})
	sess.RecordWindow(NewWindowStatistics("w2"), nil)
	sess.RecordWindow(NewWindowStatistics("w3"), &Position{PnL: -1.0, Settled: true})

	if sess.Windows != 3 {
		t.Errorf("expected 3 windows, got %d", sess.Windows)
	}
	if sess.Wins != 1 || sess.Losses != 1 {
		t.Errorf("expected 1 win 1 loss, got %d/%d", sess.Wins, sess.Losses)
	}
	if sess.NoSignal != 1 {
		t.Errorf("expected 1 no-signal window, got %d", sess.NoSignal)
	}
	if sess.SettledByExpiry != 1 {
		t.Errorf("expected 1 expiry settlement, got %d", sess.SettledByExpiry)
	}
	if sess.Signals != 1 {
		t.Errorf("expected 1 signal, got %d", sess.Signals)
	}
	if sess.WinRate() != 0.5 {
		t.Errorf("expected win rate 0.5, got %f", sess.WinRate())
	}
	if sess.GrossPnL != -0.5 {
		t.Errorf("expected gross pnl -0.5, got %f", sess.GrossPnL)
	}
}
