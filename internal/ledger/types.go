package ledger

import (
	"errors"
	"time"

	"momentum-core/internal/risk"
)

// Side of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

var (
	ErrPositionOpen = errors.New("a position is already open for this symbol")
	ErrNoPosition   = errors.New("no open position")
)

// Position is the single open trade for a symbol. Current* fields are
// reporting snapshots refreshed each cycle; everything else is fixed at entry.
type Position struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   float64         `json:"quantity"`
	EntryPrice float64         `json:"entry_price"`
	EntryTime  time.Time       `json:"entry_time"`
	EntryRSI   float64         `json:"entry_rsi"`
	Leverage   int             `json:"leverage"`
	MarginType risk.MarginType `json:"margin_type"`
	Margin     float64         `json:"margin"` // committed at open, futures only

	CurrentPrice     float64 `json:"current_price"`
	CurrentRSI       float64 `json:"current_rsi"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
}

// Trade is the immutable record of a completed round-trip.
type Trade struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"`
	EntryTime   time.Time `json:"entry_time"`
	ExitPrice   float64   `json:"exit_price"`
	ExitTime    time.Time `json:"exit_time"`
	RealizedPnL float64   `json:"realized_pnl"`
	PnLPct      float64   `json:"pnl_pct"`
	HeldMinutes float64   `json:"held_minutes"`
	ExitReason  string    `json:"exit_reason"`
	Win         bool      `json:"win"`
}

// GrossPnL is the realized result on the committed margin: leverage is
// already embedded in the quantity, so no extra multiplication happens here.
func GrossPnL(side Side, qty, entryPrice, exitPrice float64) float64 {
	entryValue := qty * entryPrice
	exitValue := qty * exitPrice
	if side == SideShort {
		return entryValue - exitValue
	}
	return exitValue - entryValue
}
