package db

import (
	"database/sql"
	"errors"
	"fmt"

	"momentum-core/internal/ledger"
	"momentum-core/internal/risk"
)

// ErrNotFound marks a missing row.
var ErrNotFound = errors.New("record not found")

// Store gives the ledger and risk manager durable state. It satisfies
// ledger.Store.
type Store struct {
	db *sql.DB
}

// Store returns the query layer over this database.
func (d *Database) Store() *Store {
	return &Store{db: d.DB}
}

// InsertTrade appends one immutable closed trade.
func (s *Store) InsertTrade(t ledger.Trade) error {
	_, err := s.db.Exec(`
		INSERT INTO trades (id, symbol, side, qty, entry_price, entry_time,
			exit_price, exit_time, realized_pnl, pnl_pct, held_minutes, exit_reason, win)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Symbol, string(t.Side), t.Quantity, t.EntryPrice, t.EntryTime,
		t.ExitPrice, t.ExitTime, t.RealizedPnL, t.PnLPct, t.HeldMinutes, t.ExitReason, boolToInt(t.Win))
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTrades returns up to limit trades for symbol, newest first.
func (s *Store) ListTrades(symbol string, limit int) ([]ledger.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, symbol, side, qty, entry_price, entry_time,
		       exit_price, exit_time, realized_pnl, pnl_pct, held_minutes, exit_reason, win
		FROM trades
		WHERE symbol = ?
		ORDER BY exit_time DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []ledger.Trade
	for rows.Next() {
		var t ledger.Trade
		var side string
		var win int
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.Quantity, &t.EntryPrice, &t.EntryTime,
			&t.ExitPrice, &t.ExitTime, &t.RealizedPnL, &t.PnLPct, &t.HeldMinutes, &t.ExitReason, &win); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = ledger.Side(side)
		t.Win = win == 1
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SavePosition upserts the open position snapshot for crash recovery.
func (s *Store) SavePosition(p ledger.Position) error {
	_, err := s.db.Exec(`
		INSERT INTO positions (symbol, side, qty, entry_price, entry_time, entry_rsi, leverage, margin_type, margin, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			side = excluded.side,
			qty = excluded.qty,
			entry_price = excluded.entry_price,
			entry_time = excluded.entry_time,
			entry_rsi = excluded.entry_rsi,
			leverage = excluded.leverage,
			margin_type = excluded.margin_type,
			margin = excluded.margin,
			updated_at = CURRENT_TIMESTAMP
	`, p.Symbol, string(p.Side), p.Quantity, p.EntryPrice, p.EntryTime, p.EntryRSI,
		p.Leverage, string(p.MarginType), p.Margin)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

// LoadPosition restores the open position for symbol, if any.
func (s *Store) LoadPosition(symbol string) (ledger.Position, error) {
	var p ledger.Position
	var side, marginType string
	err := s.db.QueryRow(`
		SELECT symbol, side, qty, entry_price, entry_time, entry_rsi, leverage, margin_type, margin
		FROM positions WHERE symbol = ?
	`, symbol).Scan(&p.Symbol, &side, &p.Quantity, &p.EntryPrice, &p.EntryTime, &p.EntryRSI,
		&p.Leverage, &marginType, &p.Margin)
	if err == sql.ErrNoRows {
		return ledger.Position{}, ErrNotFound
	}
	if err != nil {
		return ledger.Position{}, fmt.Errorf("load position: %w", err)
	}
	p.Side = ledger.Side(side)
	p.MarginType = risk.MarginType(marginType)
	p.CurrentPrice = p.EntryPrice
	p.CurrentRSI = p.EntryRSI
	return p, nil
}

// ClearPosition removes the snapshot once the position closes.
func (s *Store) ClearPosition(symbol string) error {
	_, err := s.db.Exec(`DELETE FROM positions WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("clear position: %w", err)
	}
	return nil
}

// SaveRiskState persists the balance bookkeeping (single row).
func (s *Store) SaveRiskState(currentBalance, peakBalance float64, halted bool) error {
	_, err := s.db.Exec(`
		INSERT INTO risk_state (id, current_balance, peak_balance, halted, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			current_balance = excluded.current_balance,
			peak_balance = excluded.peak_balance,
			halted = excluded.halted,
			updated_at = CURRENT_TIMESTAMP
	`, currentBalance, peakBalance, boolToInt(halted))
	if err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}

// LoadRiskState restores the balance bookkeeping.
func (s *Store) LoadRiskState() (current, peak float64, halted bool, err error) {
	var h int
	err = s.db.QueryRow(`SELECT current_balance, peak_balance, halted FROM risk_state WHERE id = 1`).
		Scan(&current, &peak, &h)
	if err == sql.ErrNoRows {
		return 0, 0, false, ErrNotFound
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("load risk state: %w", err)
	}
	return current, peak, h == 1, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
