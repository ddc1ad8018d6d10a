package db

import (
	"errors"
	"testing"
	"time"

	"momentum-core/internal/ledger"
	"momentum-core/internal/risk"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	return database.Store()
}

func TestTradeRoundTrip(t *testing.T) {
	s := newTestStore(t)

	entry := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tr := ledger.Trade{
		ID:          "t-1",
		Symbol:      "ETHUSDT",
		Side:        ledger.SideLong,
		Quantity:    0.5,
		EntryPrice:  2000,
		EntryTime:   entry,
		ExitPrice:   2050,
		ExitTime:    entry.Add(time.Hour),
		RealizedPnL: 25,
		PnLPct:      2.5,
		HeldMinutes: 60,
		ExitReason:  "big_win",
		Win:         true,
	}
	if err := s.InsertTrade(tr); err != nil {
		t.Fatalf("InsertTrade: %v", err)
	}

	trades, err := s.ListTrades("ETHUSDT", 10)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	got := trades[0]
	if got.ID != tr.ID || got.RealizedPnL != 25 || !got.Win || got.ExitReason != "big_win" {
		t.Fatalf("trade mismatch: %+v", got)
	}
}

func TestPositionLifecycle(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.LoadPosition("ETHUSDT"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p := ledger.Position{
		Symbol:     "ETHUSDT",
		Side:       ledger.SideLong,
		Quantity:   0.5,
		EntryPrice: 2000,
		EntryTime:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		EntryRSI:   24,
		Leverage:   1,
		MarginType: risk.MarginIsolated,
	}
	if err := s.SavePosition(p); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	got, err := s.LoadPosition("ETHUSDT")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if got.Quantity != 0.5 || got.EntryPrice != 2000 || got.Side != ledger.SideLong {
		t.Fatalf("position mismatch: %+v", got)
	}

	// Upsert keeps a single row per symbol.
	p.Quantity = 0.6
	if err := s.SavePosition(p); err != nil {
		t.Fatalf("SavePosition upsert: %v", err)
	}
	got, err = s.LoadPosition("ETHUSDT")
	if err != nil || got.Quantity != 0.6 {
		t.Fatalf("upsert failed: %+v err=%v", got, err)
	}

	if err := s.ClearPosition("ETHUSDT"); err != nil {
		t.Fatalf("ClearPosition: %v", err)
	}
	if _, err := s.LoadPosition("ETHUSDT"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestRiskStatePersistence(t *testing.T) {
	s := newTestStore(t)

	if _, _, _, err := s.LoadRiskState(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SaveRiskState(895, 1000, true); err != nil {
		t.Fatalf("SaveRiskState: %v", err)
	}
	cur, peak, halted, err := s.LoadRiskState()
	if err != nil {
		t.Fatalf("LoadRiskState: %v", err)
	}
	if cur != 895 || peak != 1000 || !halted {
		t.Fatalf("state mismatch: cur=%.2f peak=%.2f halted=%v", cur, peak, halted)
	}

	// Single-row upsert.
	if err := s.SaveRiskState(1100, 1100, false); err != nil {
		t.Fatalf("SaveRiskState upsert: %v", err)
	}
	cur, peak, halted, err = s.LoadRiskState()
	if err != nil || cur != 1100 || peak != 1100 || halted {
		t.Fatalf("upsert mismatch: cur=%.2f peak=%.2f halted=%v err=%v", cur, peak, halted, err)
	}
}
