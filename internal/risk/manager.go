package risk

import (
	"fmt"
	"log"
	"math"
	"sync"
)

// Manager sizes positions, gates orders on the drawdown limit, and keeps the
// authoritative balance bookkeeping. Balance state is shared across symbols,
// so every method serializes on the internal mutex.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	currentBalance float64
	peakBalance    float64
	startBalance   float64
	halted         bool
}

// NewManager validates cfg and seeds the balance state.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("risk config: %w", err)
	}
	m := &Manager{
		cfg:            cfg,
		currentBalance: cfg.InitialBalance,
		peakBalance:    cfg.InitialBalance,
		startBalance:   cfg.InitialBalance,
	}
	log.Printf("risk manager ready: balance=%.2f risk/trade=%.1f%% max_dd=%.1f%% mode=%s leverage=%dx",
		cfg.InitialBalance, cfg.RiskPerTradePct, cfg.MaxDrawdownPct, cfg.Mode, cfg.Leverage)
	return m, nil
}

// PositionSize converts a buy intent into a quantity. stopLoss <= 0 means no
// stop was supplied.
func (m *Manager) PositionSize(entryPrice, stopLoss float64) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("entry price must be > 0, got %.4f", entryPrice)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	balance := m.currentBalance
	lev := float64(m.cfg.Leverage)

	if !m.cfg.DynamicSizing {
		// Fixed sizing commits the full balance (times leverage on futures).
		if m.cfg.Mode == ModeFutures {
			return balance * lev / entryPrice, nil
		}
		return balance / entryPrice, nil
	}

	riskAmount := balance * (m.cfg.RiskPerTradePct / 100)
	if stopLoss > 0 {
		riskPerUnit := math.Abs(entryPrice - stopLoss)
		if riskPerUnit == 0 {
			return 0, ErrInvalidStopLoss
		}
		return riskAmount / riskPerUnit, nil
	}

	usable := balance * lev * (m.cfg.RiskPerTradePct / 100)
	return usable / entryPrice, nil
}

// ValidateTrade runs the pre-order checks in policy order, short-circuiting on
// the first failure. A drawdown breach halts all further buys until Reset.
func (m *Manager) ValidateTrade(qty, entryPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		return ErrMaxDrawdownExceeded
	}
	if m.currentBalance <= 0 {
		return ErrInsufficientBalance
	}

	if dd := m.drawdownLocked(); dd >= m.cfg.MaxDrawdownPct {
		m.halted = true
		log.Printf("risk: trading halted, drawdown %.2f%% >= %.2f%% (peak %.2f, balance %.2f)",
			dd, m.cfg.MaxDrawdownPct, m.peakBalance, m.currentBalance)
		return ErrMaxDrawdownExceeded
	}

	if m.cfg.Mode == ModeFutures {
		positionValue := qty * entryPrice
		marginRequired := positionValue / float64(m.cfg.Leverage)
		if marginRequired > m.currentBalance {
			return ErrInsufficientMargin
		}
	}
	return nil
}

// CommitMargin reserves the margin for an opening futures position and
// returns the amount deducted. Spot positions reserve nothing.
func (m *Manager) CommitMargin(qty, entryPrice float64) float64 {
	if m.cfg.Mode != ModeFutures {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	margin := qty * entryPrice / float64(m.cfg.Leverage)
	m.currentBalance -= margin
	return margin
}

// ReleaseMargin returns reserved margin without a trade, for rolling back a
// position that never filled.
func (m *Manager) ReleaseMargin(margin float64) {
	if margin == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentBalance += margin
}

// SettleTrade applies the realized result of one closed trade: the committed
// margin comes back first, then the raw PnL. The peak only rises afterwards,
// so drawdown is always measured against the peak before this trade. Callers
// must apply each closed trade exactly once.
func (m *Manager) SettleTrade(realizedPnL, margin float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentBalance += margin
	m.currentBalance += realizedPnL
	if m.currentBalance > m.peakBalance {
		m.peakBalance = m.currentBalance
	}
}

// Adjust applies an explicit funding or fee adjustment outside trade flow.
func (m *Manager) Adjust(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentBalance += delta
	if m.currentBalance > m.peakBalance {
		m.peakBalance = m.currentBalance
	}
}

// Drawdown returns the current decline from peak, in percent, never negative.
func (m *Manager) Drawdown() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drawdownLocked()
}

func (m *Manager) drawdownLocked() float64 {
	if m.currentBalance >= m.peakBalance || m.peakBalance <= 0 {
		return 0
	}
	return (m.peakBalance - m.currentBalance) / m.peakBalance * 100
}

// Balance returns the current balance.
func (m *Manager) Balance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBalance
}

// Halted reports whether the drawdown halt is engaged.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Reset is the operator acknowledgement after a drawdown halt: it clears the
// halt and re-bases the peak at the current balance. There is no automatic
// recovery path.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = false
	m.peakBalance = m.currentBalance
	log.Printf("risk: halt cleared by operator, peak re-based to %.2f", m.peakBalance)
}

// Restore overwrites the balance state from persistence at startup.
func (m *Manager) Restore(current, peak float64, halted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if peak < current {
		peak = current
	}
	m.currentBalance = current
	m.peakBalance = peak
	m.halted = halted
}

// Status returns the read-only risk projection.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	dd := m.drawdownLocked()
	return Status{
		CurrentBalance:   m.currentBalance,
		PeakBalance:      m.peakBalance,
		StartBalance:     m.startBalance,
		DrawdownPct:      dd,
		MaxDrawdownPct:   m.cfg.MaxDrawdownPct,
		RiskPerTradePct:  m.cfg.RiskPerTradePct,
		Leverage:         m.cfg.Leverage,
		MarginType:       m.cfg.MarginType,
		Mode:             m.cfg.Mode,
		Halted:           m.halted,
		DrawdownWarning:  dd >= m.cfg.MaxDrawdownPct*0.8,
		DrawdownCritical: dd >= m.cfg.MaxDrawdownPct,
	}
}
