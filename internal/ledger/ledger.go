package ledger

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"momentum-core/internal/risk"
)

// Store persists the ledger. Implementations must tolerate being called from
// a single goroutine only.
type Store interface {
	InsertTrade(Trade) error
	SavePosition(Position) error
	ClearPosition(symbol string) error
}

// Ledger owns the open position (at most one per symbol) and the closed-trade
// history. Mutated by the bot loop, read concurrently by the dashboard.
type Ledger struct {
	mu     sync.RWMutex
	symbol string
	pos    *Position
	trades []Trade
	stats  Stats
	store  Store // optional
}

// New builds a ledger for one symbol. store may be nil for dry runs and tests.
func New(symbol string, startBalance float64, store Store) *Ledger {
	return &Ledger{
		symbol: symbol,
		stats: Stats{
			StartBalance:   startBalance,
			CurrentBalance: startBalance,
			StartTime:      time.Now(),
		},
		store: store,
	}
}

// Open creates the position. Fails with ErrPositionOpen if one exists.
func (l *Ledger) Open(side Side, qty, entryPrice, entryRSI float64, entryTime time.Time, leverage int, marginType risk.MarginType, margin float64) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos != nil {
		return Position{}, ErrPositionOpen
	}
	l.pos = &Position{
		Symbol:       l.symbol,
		Side:         side,
		Quantity:     qty,
		EntryPrice:   entryPrice,
		EntryTime:    entryTime,
		EntryRSI:     entryRSI,
		Leverage:     leverage,
		MarginType:   marginType,
		Margin:       margin,
		CurrentPrice: entryPrice,
		CurrentRSI:   entryRSI,
	}
	l.persistPosition()
	log.Printf("ledger: opened %s %s %.6f @ %.2f (rsi %.1f)", l.symbol, side, qty, entryPrice, entryRSI)
	return *l.pos, nil
}

// Mark refreshes the reporting snapshot of the open position. No-op while flat.
func (l *Ledger) Mark(price, rsi float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == nil {
		return
	}
	l.pos.CurrentPrice = price
	l.pos.CurrentRSI = rsi
	l.pos.UnrealizedPnL = GrossPnL(l.pos.Side, l.pos.Quantity, l.pos.EntryPrice, price)
	l.pos.UnrealizedPnLPct = (price/l.pos.EntryPrice - 1) * 100
	if l.pos.Side == SideShort {
		l.pos.UnrealizedPnLPct = -l.pos.UnrealizedPnLPct
	}
}

// Close destroys the position and appends the immutable trade record.
// currentBalance is folded into the stats after the caller settled the PnL.
func (l *Ledger) Close(exitPrice float64, exitTime time.Time, reason string, currentBalance float64) (Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == nil {
		return Trade{}, ErrNoPosition
	}
	p := l.pos

	pnl := GrossPnL(p.Side, p.Quantity, p.EntryPrice, exitPrice)
	pnlPct := (exitPrice/p.EntryPrice - 1) * 100
	if p.Side == SideShort {
		pnlPct = -pnlPct
	}

	t := Trade{
		ID:          uuid.NewString(),
		Symbol:      p.Symbol,
		Side:        p.Side,
		Quantity:    p.Quantity,
		EntryPrice:  p.EntryPrice,
		EntryTime:   p.EntryTime,
		ExitPrice:   exitPrice,
		ExitTime:    exitTime,
		RealizedPnL: pnl,
		PnLPct:      pnlPct,
		HeldMinutes: exitTime.Sub(p.EntryTime).Minutes(),
		ExitReason:  reason,
		Win:         pnl > 0,
	}

	l.pos = nil
	l.trades = append(l.trades, t)
	l.stats.update(t, currentBalance)

	if l.store != nil {
		if err := l.store.InsertTrade(t); err != nil {
			log.Printf("ledger: persist trade %s: %v", t.ID, err)
		}
		if err := l.store.ClearPosition(l.symbol); err != nil {
			log.Printf("ledger: clear position %s: %v", l.symbol, err)
		}
	}
	log.Printf("ledger: closed %s %s @ %.2f pnl=%.2f (%.2f%%) reason=%s",
		l.symbol, p.Side, exitPrice, pnl, pnlPct, reason)
	return t, nil
}

// Drop removes the open position without recording a trade. Used to reconcile
// a buy decision whose order never filled.
func (l *Ledger) Drop() (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == nil {
		return Position{}, ErrNoPosition
	}
	p := *l.pos
	l.pos = nil
	if l.store != nil {
		if err := l.store.ClearPosition(l.symbol); err != nil {
			log.Printf("ledger: clear position %s: %v", l.symbol, err)
		}
	}
	log.Printf("ledger: dropped unfilled %s position (qty %.6f @ %.2f)", l.symbol, p.Quantity, p.EntryPrice)
	return p, nil
}

// Position returns a copy of the open position, or nil while flat.
func (l *Ledger) Position() *Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.pos == nil {
		return nil
	}
	p := *l.pos
	return &p
}

// Trades returns the closed-trade history, newest last.
func (l *Ledger) Trades() []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Stats returns the aggregate snapshot.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

func (l *Ledger) persistPosition() {
	if l.store == nil || l.pos == nil {
		return
	}
	if err := l.store.SavePosition(*l.pos); err != nil {
		log.Printf("ledger: persist position %s: %v", l.symbol, err)
	}
}
