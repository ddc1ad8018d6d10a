package risk

import (
	"errors"
	"math"
	"testing"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero balance", func(c *Config) { c.InitialBalance = 0 }},
		{"zero risk pct", func(c *Config) { c.RiskPerTradePct = 0 }},
		{"zero drawdown", func(c *Config) { c.MaxDrawdownPct = 0 }},
		{"leverage too low", func(c *Config) { c.Leverage = 0 }},
		{"leverage too high", func(c *Config) { c.Leverage = 126 }},
		{"bad margin type", func(c *Config) { c.MarginType = "hedged" }},
		{"bad mode", func(c *Config) { c.Mode = "margin" }},
		{"spot with leverage", func(c *Config) { c.Leverage = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(1000)
			tt.mutate(&cfg)
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected construction error")
			}
		})
	}
}

func mustManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestFixedSizing(t *testing.T) {
	spot := mustManager(t, DefaultConfig(1000))
	qty, err := spot.PositionSize(2000, 0)
	if err != nil {
		t.Fatalf("PositionSize: %v", err)
	}
	if qty != 0.5 {
		t.Fatalf("spot fixed qty=%.4f, want 0.5", qty)
	}

	fcfg := DefaultConfig(1000)
	fcfg.Mode = ModeFutures
	fcfg.Leverage = 10
	fut := mustManager(t, fcfg)
	qty, err = fut.PositionSize(2000, 0)
	if err != nil {
		t.Fatalf("PositionSize: %v", err)
	}
	if qty != 5.0 {
		t.Fatalf("futures fixed qty=%.4f, want 5.0", qty)
	}
}

func TestDynamicSizing(t *testing.T) {
	cfg := DefaultConfig(1000)
	cfg.DynamicSizing = true
	m := mustManager(t, cfg)

	// Stop-distance sizing: risk $20 over a $50 stop distance.
	qty, err := m.PositionSize(2000, 1950)
	if err != nil {
		t.Fatalf("PositionSize: %v", err)
	}
	if qty != 0.4 {
		t.Fatalf("stop-distance qty=%.4f, want 0.4", qty)
	}

	// Zero stop distance is a policy error.
	if _, err := m.PositionSize(2000, 2000); !errors.Is(err, ErrInvalidStopLoss) {
		t.Fatalf("expected ErrInvalidStopLoss, got %v", err)
	}

	// No stop: conservative percentage of balance.
	qty, err = m.PositionSize(2000, 0)
	if err != nil {
		t.Fatalf("PositionSize: %v", err)
	}
	if qty != 0.01 {
		t.Fatalf("conservative qty=%.4f, want 0.01", qty)
	}
}

// Sizing a trade and validating it with the same policy and unchanged balance
// must always succeed while leverage x risk stays within bounds.
func TestSizeThenValidateRoundTrip(t *testing.T) {
	for _, lev := range []int{1, 5, 20, 50} {
		cfg := DefaultConfig(1000)
		cfg.Mode = ModeFutures
		cfg.Leverage = lev
		cfg.DynamicSizing = true
		m := mustManager(t, cfg)

		qty, err := m.PositionSize(2000, 0)
		if err != nil {
			t.Fatalf("lev %d: PositionSize: %v", lev, err)
		}
		if err := m.ValidateTrade(qty, 2000); err != nil {
			t.Fatalf("lev %d: ValidateTrade rejected sized order: %v", lev, err)
		}
	}
}

func TestValidateOrderOfChecks(t *testing.T) {
	cfg := DefaultConfig(1000)
	cfg.Mode = ModeFutures
	cfg.Leverage = 2
	m := mustManager(t, cfg)

	// Drain balance: the balance check fires before everything else.
	m.Adjust(-1000)
	if err := m.ValidateTrade(1, 2000); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	m.Adjust(1000)

	// Margin check: 2 units @ 2000 with 2x needs $2000 margin on a $1000 balance.
	if err := m.ValidateTrade(2, 2000); !errors.Is(err, ErrInsufficientMargin) {
		t.Fatalf("expected ErrInsufficientMargin, got %v", err)
	}

	// A modest order passes.
	if err := m.ValidateTrade(0.5, 2000); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

// A -$105 trade on a $1000 peak puts drawdown at 10.5%; with the 10% limit the
// next buy is rejected and the halt sticks until the operator resets.
func TestDrawdownHaltsTrading(t *testing.T) {
	m := mustManager(t, DefaultConfig(1000))

	m.SettleTrade(-105, 0)
	if bal := m.Balance(); bal != 895 {
		t.Fatalf("balance=%.2f, want 895", bal)
	}
	if dd := m.Drawdown(); math.Abs(dd-10.5) > 1e-9 {
		t.Fatalf("drawdown=%.4f, want 10.5", dd)
	}

	if err := m.ValidateTrade(0.4, 2000); !errors.Is(err, ErrMaxDrawdownExceeded) {
		t.Fatalf("expected ErrMaxDrawdownExceeded, got %v", err)
	}

	// No automatic recovery, even if balance climbs back.
	m.SettleTrade(200, 0)
	if err := m.ValidateTrade(0.4, 2000); !errors.Is(err, ErrMaxDrawdownExceeded) {
		t.Fatalf("halt must stick, got %v", err)
	}

	m.Reset()
	if err := m.ValidateTrade(0.4, 2000); err != nil {
		t.Fatalf("expected pass after operator reset, got %v", err)
	}
}

// The peak rises only after the balance update, so a winning trade cannot
// shrink its own drawdown measurement retroactively.
func TestPeakNeverDecreases(t *testing.T) {
	m := mustManager(t, DefaultConfig(1000))

	pnls := []float64{50, -30, 120, -80, 10}
	peak := 1000.0
	balance := 1000.0
	for _, pnl := range pnls {
		m.SettleTrade(pnl, 0)
		balance += pnl
		if balance > peak {
			peak = balance
		}
		st := m.Status()
		if st.PeakBalance != peak {
			t.Fatalf("after pnl %.0f: peak=%.2f, want %.2f", pnl, st.PeakBalance, peak)
		}
		if st.DrawdownPct < 0 {
			t.Fatalf("drawdown went negative: %.4f", st.DrawdownPct)
		}
	}
	if got := m.Balance(); got != balance {
		t.Fatalf("replayed balance=%.2f, want %.2f", got, balance)
	}
}

func TestFuturesMarginLifecycle(t *testing.T) {
	cfg := DefaultConfig(1000)
	cfg.Mode = ModeFutures
	cfg.Leverage = 10
	m := mustManager(t, cfg)

	// Open 2 units @ 2000: notional 4000, margin 400.
	margin := m.CommitMargin(2, 2000)
	if margin != 400 {
		t.Fatalf("margin=%.2f, want 400", margin)
	}
	if bal := m.Balance(); bal != 600 {
		t.Fatalf("balance after commit=%.2f, want 600", bal)
	}

	// Close at 2050: raw pnl = (2050-2000)*2 = 100, no extra leverage factor.
	m.SettleTrade(100, margin)
	if bal := m.Balance(); bal != 1100 {
		t.Fatalf("balance after settle=%.2f, want 1100", bal)
	}
	if st := m.Status(); st.PeakBalance != 1100 {
		t.Fatalf("peak=%.2f, want 1100", st.PeakBalance)
	}
}

func TestRollbackReleasesMargin(t *testing.T) {
	cfg := DefaultConfig(1000)
	cfg.Mode = ModeFutures
	cfg.Leverage = 5
	m := mustManager(t, cfg)

	margin := m.CommitMargin(1, 2000)
	m.ReleaseMargin(margin)
	if bal := m.Balance(); bal != 1000 {
		t.Fatalf("balance after rollback=%.2f, want 1000", bal)
	}
}

func TestStatusWarningFlags(t *testing.T) {
	m := mustManager(t, DefaultConfig(1000))

	m.SettleTrade(-90, 0) // 9% drawdown, inside the 80% warning band of 10%
	st := m.Status()
	if !st.DrawdownWarning || st.DrawdownCritical {
		t.Fatalf("expected warning only, got %+v", st)
	}
}
