package bot

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"momentum-core/internal/events"
	"momentum-core/internal/ledger"
	"momentum-core/internal/risk"
	"momentum-core/internal/signal"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestBot(t *testing.T, riskCfg risk.Config) *Bot {
	t.Helper()
	eng, err := signal.NewEngine("ETHUSDT", signal.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	rm, err := risk.NewManager(riskCfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return New(Options{
		Symbol:     "ETHUSDT",
		Engine:     eng,
		Risk:       rm,
		RiskConfig: riskCfg,
		Ledger:     ledger.New("ETHUSDT", riskCfg.InitialBalance, nil),
	})
}

// feed pushes one neutral sample then an oversold run that ends with a
// bounce satisfying the buy conditions. Returns the triggering sample.
func driveToBuy(t *testing.T, b *Bot, start time.Time) signal.Sample {
	t.Helper()

	mustCycle(t, b, signal.Sample{Timestamp: start, Price: 100, RSI: 50})

	ts := start
	for _, r := range []float64{29, 26, 23, 22, 21} {
		ts = ts.Add(30 * time.Second)
		mustCycle(t, b, signal.Sample{Timestamp: ts, Price: 99.2, RSI: r})
	}
	return signal.Sample{Timestamp: ts.Add(30 * time.Second), Price: 99.2, RSI: 24}
}

func mustCycle(t *testing.T, b *Bot, s signal.Sample) signal.Decision {
	t.Helper()
	d, err := b.OnSample(s)
	if err != nil {
		t.Fatalf("OnSample(%v): %v", s.Timestamp, err)
	}
	return d
}

func TestBuyOpensPosition(t *testing.T) {
	b := newTestBot(t, risk.DefaultConfig(1000))

	s := driveToBuy(t, b, t0)
	d := mustCycle(t, b, s)
	if d.Action != signal.ActionBuy {
		t.Fatalf("expected BUY, got %s (%s)", d.Action, d.Note)
	}

	p := b.Ledger().Position()
	if p == nil {
		t.Fatal("no position after committed buy")
	}
	wantQty := 1000 / 99.2
	if math.Abs(p.Quantity-wantQty) > 1e-9 {
		t.Fatalf("qty=%.6f, want %.6f", p.Quantity, wantQty)
	}
	if p.EntryPrice != 99.2 || p.Side != ledger.SideLong {
		t.Fatalf("unexpected position: %+v", p)
	}
	// Spot: no margin held back.
	if bal := b.Risk().Balance(); bal != 1000 {
		t.Fatalf("balance=%.2f, want 1000", bal)
	}
	if st := b.EngineState().Oversold; st.Intensity != 0 || st.ConsecutiveCount != 0 {
		t.Fatalf("oversold state not reset after commit: %+v", st)
	}
}

func TestRiskRejectionKeepsAccumulating(t *testing.T) {
	b := newTestBot(t, risk.DefaultConfig(1000))

	bus := events.NewBus()
	b.bus = bus
	alerts, cancel := bus.Subscribe(events.EventRiskAlert, 4)
	defer cancel()

	s := driveToBuy(t, b, t0)
	b.Risk().Adjust(-1000)

	d := mustCycle(t, b, s)
	if d.Action != signal.ActionHold || !strings.Contains(d.Note, "risk rejected") {
		t.Fatalf("expected downgraded HOLD, got %s (%s)", d.Action, d.Note)
	}
	if b.Ledger().Position() != nil {
		t.Fatal("position opened despite rejection")
	}
	select {
	case <-alerts:
	default:
		t.Fatal("no risk alert published")
	}

	// The episode survives the rejection; restoring the balance lets the
	// very next oversold bounce fire.
	if st := b.EngineState().Oversold; st.ConsecutiveCount == 0 {
		t.Fatal("oversold episode was cleared by the rejection")
	}
	b.Risk().Adjust(1000)
	d = mustCycle(t, b, signal.Sample{Timestamp: s.Timestamp.Add(30 * time.Second), Price: 99.2, RSI: 24})
	if d.Action != signal.ActionBuy {
		t.Fatalf("expected BUY after balance restored, got %s (%s)", d.Action, d.Note)
	}
}

func TestSellSettlesBalance(t *testing.T) {
	b := newTestBot(t, risk.DefaultConfig(1000))

	s := driveToBuy(t, b, t0)
	mustCycle(t, b, s)

	// +3.5% clears the big-win target at any RSI.
	exit := signal.Sample{Timestamp: s.Timestamp.Add(10 * time.Minute), Price: 99.2 * 1.035, RSI: 41}
	d := mustCycle(t, b, exit)
	if d.Action != signal.ActionSell || d.Reason != signal.ReasonBigWin {
		t.Fatalf("expected big_win SELL, got %s (%s)", d.Action, d.Reason)
	}

	if b.Ledger().Position() != nil {
		t.Fatal("position still open after sell")
	}
	trades := b.Ledger().Trades()
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != signal.ReasonBigWin || !tr.Win {
		t.Fatalf("unexpected trade: %+v", tr)
	}
	wantBal := 1000 + tr.RealizedPnL
	if bal := b.Risk().Balance(); math.Abs(bal-wantBal) > 1e-9 {
		t.Fatalf("balance=%.4f, want %.4f", bal, wantBal)
	}
	if st := b.Ledger().Stats(); st.TotalTrades != 1 || st.WinningTrades != 1 {
		t.Fatalf("stats not updated: %+v", st)
	}
}

func TestFuturesMarginLifecycle(t *testing.T) {
	cfg := risk.DefaultConfig(1000)
	cfg.Mode = risk.ModeFutures
	cfg.Leverage = 10
	cfg.MarginType = risk.MarginIsolated
	b := newTestBot(t, cfg)

	s := driveToBuy(t, b, t0)
	mustCycle(t, b, s)

	p := b.Ledger().Position()
	if p == nil {
		t.Fatal("no position")
	}
	// Notional = balance * leverage, so isolated margin is the full balance.
	if math.Abs(p.Margin-1000) > 1e-9 {
		t.Fatalf("margin=%.4f, want 1000", p.Margin)
	}
	if bal := b.Risk().Balance(); math.Abs(bal) > 1e-9 {
		t.Fatalf("balance=%.4f, want 0 while margin committed", bal)
	}

	exit := signal.Sample{Timestamp: s.Timestamp.Add(10 * time.Minute), Price: 99.2 * 1.035, RSI: 41}
	mustCycle(t, b, exit)

	tr := b.Ledger().Trades()[0]
	wantBal := 1000 + tr.RealizedPnL
	if bal := b.Risk().Balance(); math.Abs(bal-wantBal) > 1e-9 {
		t.Fatalf("balance=%.4f, want %.4f (margin returned plus pnl)", bal, wantBal)
	}
}

func TestForceClose(t *testing.T) {
	b := newTestBot(t, risk.DefaultConfig(1000))

	if _, err := b.ForceClose(100, t0); !errors.Is(err, ledger.ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition while flat, got %v", err)
	}

	s := driveToBuy(t, b, t0)
	mustCycle(t, b, s)

	tr, err := b.ForceClose(99.0, s.Timestamp.Add(time.Minute))
	if err != nil {
		t.Fatalf("ForceClose: %v", err)
	}
	if tr.ExitReason != signal.ReasonForcedClose || tr.ExitPrice != 99.0 {
		t.Fatalf("unexpected trade: %+v", tr)
	}
	if b.Ledger().Position() != nil {
		t.Fatal("position still open")
	}
}

func TestRollbackOpen(t *testing.T) {
	cfg := risk.DefaultConfig(1000)
	cfg.Mode = risk.ModeFutures
	cfg.Leverage = 5
	b := newTestBot(t, cfg)

	if err := b.RollbackOpen(); !errors.Is(err, ledger.ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition while flat, got %v", err)
	}

	s := driveToBuy(t, b, t0)
	mustCycle(t, b, s)
	if bal := b.Risk().Balance(); math.Abs(bal) > 1e-9 {
		t.Fatalf("balance=%.4f before rollback, want 0", bal)
	}

	if err := b.RollbackOpen(); err != nil {
		t.Fatalf("RollbackOpen: %v", err)
	}
	if b.Ledger().Position() != nil {
		t.Fatal("position survived rollback")
	}
	if len(b.Ledger().Trades()) != 0 {
		t.Fatal("rollback recorded a trade")
	}
	if bal := b.Risk().Balance(); math.Abs(bal-1000) > 1e-9 {
		t.Fatalf("balance=%.4f after rollback, want 1000", bal)
	}
}

func TestDrawdownHaltPublishesAlert(t *testing.T) {
	cfg := risk.DefaultConfig(1000)
	cfg.MaxDrawdownPct = 10
	b := newTestBot(t, cfg)

	bus := events.NewBus()
	b.bus = bus
	alerts, cancel := bus.Subscribe(events.EventRiskAlert, 4)
	defer cancel()

	s := driveToBuy(t, b, t0)
	mustCycle(t, b, s)

	// A forced close deep underwater trips the drawdown halt.
	if _, err := b.ForceClose(99.2*0.85, s.Timestamp.Add(time.Hour)); err != nil {
		t.Fatalf("ForceClose: %v", err)
	}
	select {
	case <-alerts:
	default:
		t.Fatal("no drawdown alert published")
	}

	// The next validation latches the sticky halt.
	if err := b.Risk().ValidateTrade(1, 99); !errors.Is(err, risk.ErrMaxDrawdownExceeded) {
		t.Fatalf("expected ErrMaxDrawdownExceeded, got %v", err)
	}
	if !b.Risk().Halted() {
		t.Fatal("expected halt after 15% loss against a 10% limit")
	}

	b.ResetRisk()
	if b.Risk().Halted() {
		t.Fatal("halt survived reset")
	}
}

// The dashboard polls engine state while the feed is ticking; both paths must
// serialize on the bot's lock.
func TestEngineStateConcurrentWithSamples(t *testing.T) {
	b := newTestBot(t, risk.DefaultConfig(1000))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_ = b.EngineState()
			}
		}
	}()

	ts := t0
	for i := 0; i < 200; i++ {
		ts = ts.Add(30 * time.Second)
		rsi := 50 - float64(i%40)
		mustCycle(t, b, signal.Sample{Timestamp: ts, Price: 100 - float64(i%10), RSI: rsi})
	}
	close(done)
	wg.Wait()
}
