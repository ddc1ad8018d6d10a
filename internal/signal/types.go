package signal

import (
	"errors"
	"time"
)

// Action is the per-cycle output of the engine.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Sell reasons emitted by the exit ladder and profit takers.
const (
	ReasonBigWin          = "big_win"
	ReasonWinWithRSI      = "win_with_rsi"
	ReasonLossRecovery    = "loss_recovery"
	ReasonFastExit        = "fast_exit"
	ReasonProgressiveExit = "progressive_exit"
	ReasonEmergencyExit   = "emergency_exit"
	ReasonForcedClose     = "forced_close"
)

var (
	// ErrOutOfOrderSample rejects a sample whose timestamp does not advance.
	ErrOutOfOrderSample = errors.New("sample timestamp not after previous sample")
	// ErrInvalidSample rejects samples with a non-positive price or RSI outside [0,100].
	ErrInvalidSample = errors.New("sample has invalid price or rsi")
)

// Sample is one (timestamp, price, rsi) observation from the indicator feed.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	RSI       float64   `json:"rsi"`
}

// Decision is the engine output for one cycle. Reason is set for sells and
// carries a human-readable note for buys.
type Decision struct {
	Action Action `json:"action"`
	Reason string `json:"reason,omitempty"`
	Note   string `json:"note,omitempty"`
}

// PositionView is the slice of an open position the engine needs each cycle.
type PositionView struct {
	EntryPrice float64
	EntryTime  time.Time
}

// OversoldState accumulates the strength and duration of an RSI dip below the
// oversold threshold. It is reset when a buy is committed or once decay
// brings the intensity back to zero.
type OversoldState struct {
	Intensity        float64    `json:"intensity"`
	ConsecutiveCount int        `json:"consecutive_count"`
	LowestRSI        float64    `json:"lowest_rsi"`
	OversoldSince    *time.Time `json:"oversold_since,omitempty"`

	// Price extremes observed while flat; the episode low participates in
	// the buy price condition, the high anchors the near-top guard.
	LowestPrice  float64 `json:"lowest_price"`
	HighestPrice float64 `json:"highest_price"`
}

// Snapshot is the engine state exposed to the dashboard.
type Snapshot struct {
	Oversold      OversoldState `json:"oversold"`
	PeakRSI       float64       `json:"peak_rsi"`
	RecoveryArmed bool          `json:"recovery_armed"`
	LastSellTime  *time.Time    `json:"last_sell_time,omitempty"`
}
