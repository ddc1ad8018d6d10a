package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"momentum-core/internal/events"
	"momentum-core/pkg/market/binance"
)

// MockFeed generates a synthetic random walk for local development and dry
// runs. Each tick is published as a closed candle.
type MockFeed struct {
	Bus        *events.Bus
	Symbol     string
	StartPrice float64
	StepPct    float64 // max move per tick, percent
	Interval   time.Duration
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	if m.Symbol == "" {
		m.Symbol = "ETHUSDT"
	}
	price := m.StartPrice
	if price == 0 {
		price = 2000.0
	}
	if m.StepPct == 0 {
		m.StepPct = 0.2
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				open := price
				price *= 1 + (rand.Float64()*2-1)*m.StepPct/100
				now := time.Now().UTC()
				m.Bus.Publish(events.EventPriceTick, binance.Kline{
					Symbol:    m.Symbol,
					OpenTime:  now.Add(-m.Interval).UnixMilli(),
					CloseTime: now.UnixMilli(),
					Open:      open,
					High:      max(open, price),
					Low:       min(open, price),
					Close:     price,
					Final:     true,
				})
			}
		}
	}()
}
