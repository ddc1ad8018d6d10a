package risk

import (
	"errors"
	"fmt"
)

// TradingMode selects the spot or leveraged futures formulas.
type TradingMode string

const (
	ModeSpot    TradingMode = "spot"
	ModeFutures TradingMode = "futures"
)

// MarginType is the futures collateral mode.
type MarginType string

const (
	MarginIsolated MarginType = "isolated"
	MarginCross    MarginType = "cross"
)

// Policy errors surfaced to the caller as a rejected buy. No state mutation
// accompanies them except the sticky drawdown halt.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMaxDrawdownExceeded = errors.New("maximum drawdown exceeded, trading halted")
	ErrInsufficientMargin  = errors.New("required margin exceeds available balance")
	ErrInvalidStopLoss     = errors.New("stop loss distance is zero")
)

// Config is the immutable risk policy, validated once at construction.
type Config struct {
	InitialBalance  float64     `json:"initial_balance"`
	RiskPerTradePct float64     `json:"risk_per_trade_pct"` // e.g. 2.0
	MaxDrawdownPct  float64     `json:"max_drawdown_pct"`   // e.g. 10.0
	DynamicSizing   bool        `json:"dynamic_position_sizing"`
	Leverage        int         `json:"leverage"` // 1..125, 1 for spot
	MarginType      MarginType  `json:"margin_type"`
	Mode            TradingMode `json:"trading_mode"`
}

// DefaultConfig returns the stock spot-mode policy.
func DefaultConfig(initialBalance float64) Config {
	return Config{
		InitialBalance:  initialBalance,
		RiskPerTradePct: 2.0,
		MaxDrawdownPct:  10.0,
		Leverage:        1,
		MarginType:      MarginIsolated,
		Mode:            ModeSpot,
	}
}

// Validate fails fast on configuration errors; these are fatal and never
// retried.
func (c Config) Validate() error {
	if c.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be > 0, got %.2f", c.InitialBalance)
	}
	if c.RiskPerTradePct <= 0 || c.RiskPerTradePct > 100 {
		return fmt.Errorf("risk_per_trade_pct must be in (0,100], got %.2f", c.RiskPerTradePct)
	}
	if c.MaxDrawdownPct <= 0 || c.MaxDrawdownPct > 100 {
		return fmt.Errorf("max_drawdown_pct must be in (0,100], got %.2f", c.MaxDrawdownPct)
	}
	if c.Leverage < 1 || c.Leverage > 125 {
		return fmt.Errorf("leverage must be in [1,125], got %d", c.Leverage)
	}
	switch c.MarginType {
	case MarginIsolated, MarginCross:
	default:
		return fmt.Errorf("unknown margin type %q", c.MarginType)
	}
	switch c.Mode {
	case ModeSpot, ModeFutures:
	default:
		return fmt.Errorf("unknown trading mode %q", c.Mode)
	}
	if c.Mode == ModeSpot && c.Leverage != 1 {
		return fmt.Errorf("spot mode requires leverage 1, got %d", c.Leverage)
	}
	return nil
}

// Status is the read-only projection served to the dashboard. No decision
// logic reads it.
type Status struct {
	CurrentBalance   float64     `json:"current_balance"`
	PeakBalance      float64     `json:"peak_balance"`
	StartBalance     float64     `json:"start_balance"`
	DrawdownPct      float64     `json:"drawdown_pct"`
	MaxDrawdownPct   float64     `json:"max_drawdown_pct"`
	RiskPerTradePct  float64     `json:"risk_per_trade_pct"`
	Leverage         int         `json:"leverage"`
	MarginType       MarginType  `json:"margin_type"`
	Mode             TradingMode `json:"trading_mode"`
	Halted           bool        `json:"halted"`
	DrawdownWarning  bool        `json:"drawdown_warning"`
	DrawdownCritical bool        `json:"drawdown_critical"`
}
