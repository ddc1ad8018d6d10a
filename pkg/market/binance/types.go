package binance

import "time"

// Kline is one candlestick. Final is true once the candle is closed; the
// decision loop only acts on closed candles.
type Kline struct {
	Symbol    string
	OpenTime  int64 // ms
	CloseTime int64 // ms
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Final     bool
}

// CloseAt returns the candle close as a wall-clock time.
func (k Kline) CloseAt() time.Time {
	return time.UnixMilli(k.CloseTime).UTC()
}
