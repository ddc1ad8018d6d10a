package main

import (
	"context"
	"errors"
	"log"
	"os"
	stdsignal "os/signal"
	"syscall"
	"time"

	"momentum-core/internal/api"
	"momentum-core/internal/bot"
	"momentum-core/internal/events"
	"momentum-core/internal/indicators"
	"momentum-core/internal/ledger"
	"momentum-core/internal/market"
	"momentum-core/internal/monitor"
	"momentum-core/internal/risk"
	"momentum-core/internal/signal"
	"momentum-core/pkg/config"
	"momentum-core/pkg/db"
	"momentum-core/pkg/market/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	log.Printf("starting %s %s (%s, interval %s)", buildVersion, cfg.Symbol, cfg.Risk.Mode, cfg.KlineInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations: %v", err)
	}
	store := database.Store()

	bus := events.NewBus()
	metrics := monitor.NewMetrics()

	engine, err := signal.NewEngine(cfg.Symbol, cfg.Strategy)
	if err != nil {
		log.Fatalf("signal engine: %v", err)
	}
	riskMgr, err := risk.NewManager(cfg.Risk)
	if err != nil {
		log.Fatalf("risk manager: %v", err)
	}

	// Restore state from a previous run.
	if current, peak, halted, err := store.LoadRiskState(); err == nil {
		riskMgr.Restore(current, peak, halted)
		log.Printf("restored risk state: balance=%.2f peak=%.2f halted=%v", current, peak, halted)
	} else if !errors.Is(err, db.ErrNotFound) {
		log.Fatalf("load risk state: %v", err)
	}

	led := ledger.New(cfg.Symbol, riskMgr.Balance(), store)
	if pos, err := store.LoadPosition(cfg.Symbol); err == nil {
		if _, err := led.Open(pos.Side, pos.Quantity, pos.EntryPrice, pos.EntryRSI,
			pos.EntryTime, pos.Leverage, pos.MarginType, pos.Margin); err != nil {
			log.Fatalf("restore position: %v", err)
		}
		log.Printf("restored open position from %s", pos.EntryTime.Format(time.RFC3339))
	} else if !errors.Is(err, db.ErrNotFound) {
		log.Fatalf("load position: %v", err)
	}

	b := bot.New(bot.Options{
		Symbol:      cfg.Symbol,
		Engine:      engine,
		Risk:        riskMgr,
		RiskConfig:  cfg.Risk,
		Ledger:      led,
		Bus:         bus,
		Metrics:     metrics,
		Store:       store,
		StopLossPct: cfg.StopLossPct,
	})

	tracker := indicators.NewTracker(cfg.RSIPeriod)

	// Market data
	client := binance.NewClient(cfg.BinanceTestnet)
	if cfg.UseMockFeed {
		mock := market.MockFeed{
			Bus:      bus,
			Symbol:   cfg.Symbol,
			Interval: time.Second,
		}
		mock.Start(ctx)
		log.Println("mock feed started")
	} else {
		warmTracker(ctx, client, tracker, cfg)

		feed := market.Feed{
			Client:   client,
			Stream:   binance.NewStreamClient(cfg.BinanceTestnet),
			Bus:      bus,
			Symbol:   cfg.Symbol,
			Interval: cfg.KlineInterval,
		}
		feed.Start(ctx)
		log.Println("binance feed started")
	}

	// Single consumer: klines -> rsi tracker -> decision cycle.
	ticks, unsubTicks := bus.Subscribe(events.EventPriceTick, 100)
	defer unsubTicks()
	go func() {
		for msg := range ticks {
			k, ok := msg.(binance.Kline)
			if !ok || !k.Final {
				continue
			}
			sample, ok := tracker.Update(k.CloseAt(), k.Close)
			if !ok {
				continue
			}
			bus.Publish(events.EventSample, sample)

			d, err := b.OnSample(sample)
			if err != nil {
				// Stream/poll overlap replays candles; skip quietly.
				if errors.Is(err, signal.ErrOutOfOrderSample) {
					continue
				}
				log.Printf("cycle %v: %v", sample.Timestamp, err)
				continue
			}
			if d.Action != signal.ActionHold {
				log.Printf("decision %s %s @ %.2f rsi=%.1f reason=%s %s",
					d.Action, cfg.Symbol, sample.Price, sample.RSI, d.Reason, d.Note)
			}
		}
	}()

	server := api.NewServer(b, bus, store, api.SystemMeta{
		Symbol:      cfg.Symbol,
		Interval:    cfg.KlineInterval,
		UseMockFeed: cfg.UseMockFeed,
		Version:     buildVersion,
		StartedAt:   time.Now(),
	}, cfg.JWTSecret, cfg.AdminKey)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	stdsignal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
	cancel()

	// Close out the book so the recorded balance matches reality. The open
	// position would otherwise be restored on the next start anyway.
	if p := led.Position(); p != nil && os.Getenv("CLOSE_ON_EXIT") == "true" {
		if trade, err := b.ForceClose(p.CurrentPrice, time.Now().UTC()); err != nil {
			log.Printf("close on exit: %v", err)
		} else {
			log.Printf("closed position on exit: pnl=%.2f", trade.RealizedPnL)
		}
	}
}

// warmTracker seeds the RSI window from recent history so the bot decides
// from the first live candle.
func warmTracker(ctx context.Context, client *binance.Client, tracker *indicators.Tracker, cfg *config.Config) {
	klines, err := client.GetKlines(ctx, cfg.Symbol, cfg.KlineInterval, cfg.RSIPeriod+2)
	if err != nil {
		log.Printf("indicator warmup: %v", err)
		return
	}
	for _, k := range klines {
		if k.Final {
			tracker.Update(k.CloseAt(), k.Close)
		}
	}
	if tracker.Warm() {
		log.Printf("indicator warmup complete (%d candles)", len(klines))
	}
}
