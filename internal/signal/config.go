package signal

import (
	"fmt"
	"time"
)

// Config holds the strategy thresholds. Validated once at construction;
// evaluation never re-checks them.
type Config struct {
	Oversold   float64 `json:"rsi_oversold"`   // e.g. 30
	Overbought float64 `json:"rsi_overbought"` // e.g. 70

	IntensityBuyThreshold float64 `json:"intensity_buy_threshold"` // e.g. 10.0
	CounterBuyThreshold   int     `json:"counter_buy_threshold"`   // e.g. 3
	BounceThreshold       float64 `json:"bounce_threshold"`        // RSI points, e.g. 3

	MinProfitPct float64 `json:"min_profit_pct"` // take-profit with RSI, e.g. 0.75
	BigProfitPct float64 `json:"big_profit_pct"` // unconditional take-profit, e.g. 3.0

	Cooldown time.Duration `json:"cooldown"` // wait after a sell, e.g. 5m
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		Oversold:              30,
		Overbought:            70,
		IntensityBuyThreshold: 10.0,
		CounterBuyThreshold:   3,
		BounceThreshold:       3,
		MinProfitPct:          0.75,
		BigProfitPct:          3.0,
		Cooldown:              5 * time.Minute,
	}
}

// Validate rejects configurations that would divide by zero or invert the
// oversold/overbought bands at evaluation time.
func (c Config) Validate() error {
	if c.Oversold <= 0 {
		return fmt.Errorf("rsi_oversold must be > 0, got %.2f", c.Oversold)
	}
	if c.Overbought <= c.Oversold {
		return fmt.Errorf("rsi_overbought (%.2f) must exceed rsi_oversold (%.2f)", c.Overbought, c.Oversold)
	}
	if c.Overbought > 100 {
		return fmt.Errorf("rsi_overbought must be <= 100, got %.2f", c.Overbought)
	}
	if c.IntensityBuyThreshold <= 0 {
		return fmt.Errorf("intensity_buy_threshold must be > 0, got %.2f", c.IntensityBuyThreshold)
	}
	if c.CounterBuyThreshold <= 0 {
		return fmt.Errorf("counter_buy_threshold must be > 0, got %d", c.CounterBuyThreshold)
	}
	if c.BounceThreshold < 0 {
		return fmt.Errorf("bounce_threshold must be >= 0, got %.2f", c.BounceThreshold)
	}
	if c.MinProfitPct <= 0 || c.BigProfitPct <= c.MinProfitPct {
		return fmt.Errorf("profit targets out of order: min=%.2f big=%.2f", c.MinProfitPct, c.BigProfitPct)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0, got %s", c.Cooldown)
	}
	return nil
}
