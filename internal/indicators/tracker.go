package indicators

import (
	"time"

	"momentum-core/internal/signal"
)

// Tracker turns a raw price stream into engine samples by maintaining the
// rolling close window an RSI needs. Not safe for concurrent use; the feed
// goroutine owns it.
type Tracker struct {
	period int
	closes []float64
}

// NewTracker builds a tracker for one symbol.
func NewTracker(rsiPeriod int) *Tracker {
	return &Tracker{period: rsiPeriod}
}

// Update ingests one close and returns a Sample once the window is warm.
func (t *Tracker) Update(ts time.Time, price float64) (signal.Sample, bool) {
	t.closes = append(t.closes, price)
	if len(t.closes) > t.period+1 {
		t.closes = t.closes[len(t.closes)-t.period-1:]
	}
	if len(t.closes) < t.period+1 {
		return signal.Sample{}, false
	}
	return signal.Sample{
		Timestamp: ts,
		Price:     price,
		RSI:       RSI(t.closes, t.period),
	}, true
}

// Warm reports whether enough closes have been seen to emit samples.
func (t *Tracker) Warm() bool {
	return len(t.closes) >= t.period+1
}
