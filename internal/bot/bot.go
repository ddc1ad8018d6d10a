// Package bot wires the signal engine, risk manager and ledger into the
// decision loop. One Bot instance runs one symbol; OnSample is the single
// entry point for market data.
package bot

import (
	"fmt"
	"log"
	"sync"
	"time"

	"momentum-core/internal/events"
	"momentum-core/internal/ledger"
	"momentum-core/internal/monitor"
	"momentum-core/internal/risk"
	"momentum-core/internal/signal"
)

// Store persists risk state across restarts. The ledger carries its own store.
type Store interface {
	SaveRiskState(currentBalance, peakBalance float64, halted bool) error
}

// Options bundles the collaborators for New. Bus, Metrics and Store may be
// nil for tests and dry runs.
type Options struct {
	Symbol      string
	Engine      *signal.Engine
	Risk        *risk.Manager
	RiskConfig  risk.Config
	Ledger      *ledger.Ledger
	Bus         *events.Bus
	Metrics     *monitor.Metrics
	Store       Store
	StopLossPct float64 // optional, feeds dynamic sizing when > 0
}

// Bot serializes the decision cycle. All trading state transitions happen
// under its lock, so the API layer can call ForceClose or RollbackOpen
// without racing the feed.
type Bot struct {
	mu sync.Mutex

	symbol      string
	engine      *signal.Engine
	risk        *risk.Manager
	riskCfg     risk.Config
	ledger      *ledger.Ledger
	bus         *events.Bus
	metrics     *monitor.Metrics
	store       Store
	stopLossPct float64
}

func New(o Options) *Bot {
	return &Bot{
		symbol:      o.Symbol,
		engine:      o.Engine,
		risk:        o.Risk,
		riskCfg:     o.RiskConfig,
		ledger:      o.Ledger,
		bus:         o.Bus,
		metrics:     o.Metrics,
		store:       o.Store,
		stopLossPct: o.StopLossPct,
	}
}

// OnSample runs one decision cycle and returns the decision actually
// executed. A buy blocked by risk policy is downgraded to HOLD with the
// rejection in the note; the engine keeps its accumulated state so the
// opportunity is retried next cycle.
func (b *Bot) OnSample(s signal.Sample) (signal.Decision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.CycleLatency.Observe(time.Since(start).Seconds())
		}
	}()

	var view *signal.PositionView
	if p := b.ledger.Position(); p != nil {
		view = &signal.PositionView{EntryPrice: p.EntryPrice, EntryTime: p.EntryTime}
	}

	d, err := b.engine.Evaluate(s, view)
	if err != nil {
		if b.metrics != nil {
			b.metrics.SamplesRejected.Inc()
		}
		return d, err
	}
	if b.metrics != nil {
		b.metrics.SamplesProcessed.Inc()
	}
	b.publish(events.EventDecision, d)

	switch d.Action {
	case signal.ActionBuy:
		d = b.executeBuy(s, d)
	case signal.ActionSell:
		if err := b.executeSell(s, d.Reason); err != nil {
			return d, err
		}
	default:
		b.ledger.Mark(s.Price, s.RSI)
	}

	b.updateGauges()
	return d, nil
}

// ForceClose liquidates the open position at the given price regardless of
// the exit ladder. Used on shutdown and from the control API.
func (b *Bot) ForceClose(price float64, at time.Time) (ledger.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.ledger.Position()
	if p == nil {
		return ledger.Trade{}, ledger.ErrNoPosition
	}
	s := signal.Sample{Timestamp: at, Price: price, RSI: p.CurrentRSI}
	if err := b.executeSell(s, signal.ReasonForcedClose); err != nil {
		return ledger.Trade{}, err
	}
	trades := b.ledger.Trades()
	b.updateGauges()
	return trades[len(trades)-1], nil
}

// RollbackOpen reconciles a buy whose exchange order never filled: the
// position is dropped without a trade record and the committed margin is
// returned to the balance.
func (b *Bot) RollbackOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.ledger.Drop()
	if err != nil {
		return err
	}
	b.risk.ReleaseMargin(p.Margin)
	b.persistRisk()
	if b.metrics != nil {
		b.metrics.OrderFailures.Inc()
	}
	b.publish(events.EventOrderFailed, p)
	b.updateGauges()
	log.Printf("bot: rolled back unfilled %s buy, margin %.2f released", b.symbol, p.Margin)
	return nil
}

// ResetRisk clears a drawdown halt and re-bases the peak balance.
func (b *Bot) ResetRisk() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.risk.Reset()
	b.persistRisk()
	b.updateGauges()
}

func (b *Bot) Symbol() string         { return b.symbol }
func (b *Bot) Risk() *risk.Manager    { return b.risk }
func (b *Bot) Ledger() *ledger.Ledger { return b.ledger }

// EngineState snapshots the signal engine under the bot's lock. The engine
// itself carries no synchronization; every read outside the sample loop must
// go through here.
func (b *Bot) EngineState() signal.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engine.State()
}

func (b *Bot) executeBuy(s signal.Sample, d signal.Decision) signal.Decision {
	stop := 0.0
	if b.stopLossPct > 0 {
		stop = s.Price * (1 - b.stopLossPct/100)
	}

	qty, err := b.risk.PositionSize(s.Price, stop)
	if err == nil {
		err = b.risk.ValidateTrade(qty, s.Price)
	}
	if err != nil {
		if b.metrics != nil {
			b.metrics.RiskRejections.Inc()
		}
		b.publish(events.EventRiskAlert, fmt.Sprintf("buy blocked: %v", err))
		log.Printf("bot: %s buy blocked by risk policy: %v", b.symbol, err)
		return signal.Decision{Action: signal.ActionHold, Note: "risk rejected: " + err.Error()}
	}

	margin := b.risk.CommitMargin(qty, s.Price)
	pos, err := b.ledger.Open(ledger.SideLong, qty, s.Price, s.RSI, s.Timestamp,
		b.riskCfg.Leverage, b.riskCfg.MarginType, margin)
	if err != nil {
		b.risk.ReleaseMargin(margin)
		log.Printf("bot: %s open failed: %v", b.symbol, err)
		return signal.Decision{Action: signal.ActionHold, Note: "open failed: " + err.Error()}
	}
	b.engine.CommitBuy(s)
	b.persistRisk()
	if b.metrics != nil {
		b.metrics.Buys.Inc()
	}
	b.publish(events.EventPositionChange, pos)
	return d
}

func (b *Bot) executeSell(s signal.Sample, reason string) error {
	p := b.ledger.Position()
	if p == nil {
		return ledger.ErrNoPosition
	}

	pnl := ledger.GrossPnL(p.Side, p.Quantity, p.EntryPrice, s.Price)
	b.risk.SettleTrade(pnl, p.Margin)

	t, err := b.ledger.Close(s.Price, s.Timestamp, reason, b.risk.Balance())
	if err != nil {
		return err
	}
	b.engine.CommitSell(s)
	b.persistRisk()
	if b.metrics != nil {
		b.metrics.Sells.Inc()
	}
	b.publish(events.EventTradeClosed, t)
	b.publish(events.EventPositionChange, nil)

	// The halt itself is latched on the next trade validation; warn as soon
	// as the settled balance crosses the limit.
	if st := b.risk.Status(); st.DrawdownCritical {
		b.publish(events.EventRiskAlert,
			fmt.Sprintf("drawdown %.2f%% at or over the %.2f%% limit", st.DrawdownPct, st.MaxDrawdownPct))
	}
	return nil
}

func (b *Bot) persistRisk() {
	if b.store == nil {
		return
	}
	st := b.risk.Status()
	if err := b.store.SaveRiskState(st.CurrentBalance, st.PeakBalance, st.Halted); err != nil {
		log.Printf("bot: persist risk state: %v", err)
	}
}

func (b *Bot) publish(e events.Event, payload any) {
	if b.bus != nil {
		b.bus.Publish(e, payload)
	}
}

func (b *Bot) updateGauges() {
	if b.metrics == nil {
		return
	}
	b.metrics.Balance.Set(b.risk.Balance())
	b.metrics.DrawdownPct.Set(b.risk.Drawdown())
	if p := b.ledger.Position(); p != nil {
		b.metrics.PositionQty.Set(p.Quantity)
	} else {
		b.metrics.PositionQty.Set(0)
	}
}
