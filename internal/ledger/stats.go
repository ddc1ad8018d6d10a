package ledger

import "time"

// Stats aggregates the closed-trade history incrementally. Read-only for the
// engine; the dashboard serves it as-is.
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	TotalPnL    float64 `json:"total_pnl"`
	TotalPnLPct float64 `json:"total_pnl_pct"`

	AverageWin      float64 `json:"average_win"`
	AverageLoss     float64 `json:"average_loss"`
	LargestWin      float64 `json:"largest_win"`
	LargestLoss     float64 `json:"largest_loss"`
	AverageHeldMins float64 `json:"average_held_minutes"`

	StartBalance   float64   `json:"start_balance"`
	CurrentBalance float64   `json:"current_balance"`
	StartTime      time.Time `json:"start_time"`
}

// RuntimeHours reports how long this ledger has been collecting.
func (s Stats) RuntimeHours() float64 {
	return time.Since(s.StartTime).Hours()
}

// TradesPerHour is the closing rate over the runtime so far.
func (s Stats) TradesPerHour() float64 {
	h := s.RuntimeHours()
	if h <= 0 {
		return 0
	}
	return float64(s.TotalTrades) / h
}

// update folds one closed trade into the aggregate. currentBalance is the
// post-settlement balance from the risk manager.
func (s *Stats) update(t Trade, currentBalance float64) {
	s.TotalTrades++

	if t.Win {
		s.WinningTrades++
		n := float64(s.WinningTrades)
		s.AverageWin = (s.AverageWin*(n-1) + t.RealizedPnL) / n
		if t.RealizedPnL > s.LargestWin {
			s.LargestWin = t.RealizedPnL
		}
	} else {
		s.LosingTrades++
		n := float64(s.LosingTrades)
		s.AverageLoss = (s.AverageLoss*(n-1) + t.RealizedPnL) / n
		if t.RealizedPnL < s.LargestLoss {
			s.LargestLoss = t.RealizedPnL
		}
	}

	s.TotalPnL += t.RealizedPnL
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100

	n := float64(s.TotalTrades)
	s.AverageHeldMins = (s.AverageHeldMins*(n-1) + t.HeldMinutes) / n

	s.CurrentBalance = currentBalance
	if s.StartBalance > 0 {
		s.TotalPnLPct = (currentBalance/s.StartBalance - 1) * 100
	}
}
