// Package market delivers closed candles for one symbol to the event bus.
// The live feed streams from the Binance websocket with a REST polling
// fallback; the mock feed generates a random walk for local runs.
package market

import (
	"context"
	"log"
	"time"

	"momentum-core/internal/events"
	"momentum-core/pkg/market/binance"
)

// Feed streams klines for a single symbol and publishes closed candles to
// the bus as EventPriceTick payloads of type binance.Kline.
type Feed struct {
	Client   *binance.Client
	Stream   *binance.StreamClient
	Bus      *events.Bus
	Symbol   string
	Interval string
}

// Start runs the stream until ctx is cancelled, redialing with backoff when
// the connection drops. A slow REST poll covers websocket gaps.
func (f *Feed) Start(ctx context.Context) {
	if f.Bus == nil || f.Client == nil || f.Stream == nil {
		log.Println("market feed not fully configured; skipping start")
		return
	}

	go f.streamLoop(ctx)
	go f.pollSnapshots(ctx)
}

func (f *Feed) streamLoop(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		ch, stop, err := f.Stream.SubscribeKlines(ctx, f.Symbol, f.Interval)
		if err != nil {
			log.Printf("market feed: ws subscribe %s: %v (retry in %s)", f.Symbol, err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < time.Minute {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for k := range ch {
			if !k.Final {
				continue
			}
			f.Bus.Publish(events.EventPriceTick, k)
		}
		stop()
		log.Printf("market feed: %s stream ended, reconnecting", f.Symbol)
	}
}

// pollSnapshots republishes the latest closed candle every few minutes. The
// engine discards duplicates by timestamp, so overlap with the stream is
// harmless.
func (f *Feed) pollSnapshots(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			klines, err := f.Client.GetKlines(ctx, f.Symbol, f.Interval, 2)
			if err != nil {
				log.Printf("market feed snapshot %s: %v", f.Symbol, err)
				continue
			}
			for _, k := range klines {
				if k.Final {
					f.Bus.Publish(events.EventPriceTick, k)
				}
			}
		}
	}
}
