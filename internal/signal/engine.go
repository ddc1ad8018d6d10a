package signal

import (
	"fmt"
	"log"
	"math"
	"time"
)

const (
	// Below this the decayed intensity snaps to zero and the episode ends.
	intensityEpsilon = 0.01

	// Flat bonus once RSI has stayed below the oversold threshold this long.
	sustainedOversold = 5 * time.Minute

	// Lookback for the exit ladder's trend detection.
	trendLookback = 5 * time.Minute

	// Price must be this close under the recent high (0.75%) to allow a buy.
	nearTopRatio = 0.9925

	// Stage-1 sells only once price recovers to entry plus 0.15%.
	recoveryRatio = 1.0015
)

// exitStage is one row of the time-based exit ladder. Stages are evaluated in
// order; the first whose conditions hold wins the cycle.
type exitStage struct {
	baseHold time.Duration
	scaled   bool    // trend multiplier applies to the hold threshold
	lossPct  float64 // max tolerated loss; ignored when progressive/terminal
	reason   string
}

var exitLadder = [4]exitStage{
	{baseHold: 30 * time.Minute, scaled: true, lossPct: -0.5, reason: ReasonLossRecovery},
	{baseHold: 90 * time.Minute, scaled: true, lossPct: -1.0, reason: ReasonFastExit},
	{baseHold: 150 * time.Minute, scaled: true, reason: ReasonProgressiveExit},
	{baseHold: 4 * time.Hour, scaled: false, reason: ReasonEmergencyExit},
}

type pricePoint struct {
	ts    time.Time
	price float64
}

// Engine is the per-symbol signal state machine. It consumes one Sample per
// cycle and emits Buy/Sell/Hold. The engine does no internal locking: the
// caller must deliver at most one sample at a time.
//
// Evaluate mutates only the accumulation and ladder sub-state; the Flat<->Open
// transitions are applied by CommitBuy/CommitSell so that a risk-rejected buy
// leaves the oversold episode accumulating.
type Engine struct {
	cfg    Config
	symbol string

	oversold OversoldState

	lastSample time.Time
	seeded     bool

	lastSell struct {
		at  time.Time
		set bool
	}

	// Open-position tracking.
	peakRSI       float64
	recoveryArmed bool

	window []pricePoint
}

// NewEngine validates cfg and builds an engine in the Flat state.
func NewEngine(symbol string, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("signal config: %w", err)
	}
	e := &Engine{cfg: cfg, symbol: symbol}
	e.resetOversold()
	log.Printf("signal engine ready: %s oversold=%.0f overbought=%.0f intensity>=%.1f counter>=%d",
		symbol, cfg.Oversold, cfg.Overbought, cfg.IntensityBuyThreshold, cfg.CounterBuyThreshold)
	return e, nil
}

// Evaluate runs one cycle. pos is nil while flat. A returned error means the
// sample was rejected and no state changed.
func (e *Engine) Evaluate(s Sample, pos *PositionView) (Decision, error) {
	if s.Price <= 0 || math.IsNaN(s.RSI) || s.RSI < 0 || s.RSI > 100 {
		return Decision{Action: ActionHold}, ErrInvalidSample
	}
	if e.seeded && !s.Timestamp.After(e.lastSample) {
		return Decision{Action: ActionHold}, ErrOutOfOrderSample
	}
	e.lastSample = s.Timestamp
	e.seeded = true
	e.pushPrice(s)

	if pos == nil {
		return e.evaluateFlat(s), nil
	}
	return e.evaluateOpen(s, pos), nil
}

// CommitBuy applies the Flat->Open transition once the sized order passed risk
// validation. The oversold episode is spent.
func (e *Engine) CommitBuy(s Sample) {
	e.resetOversold()
	e.peakRSI = s.RSI
	e.recoveryArmed = false
}

// CommitSell applies the Open->Flat transition. Also used for externally
// injected sells (forced close on shutdown or reconciliation).
func (e *Engine) CommitSell(s Sample) {
	e.lastSell.at = s.Timestamp
	e.lastSell.set = true
	e.peakRSI = 0
	e.recoveryArmed = false
	e.resetOversold()
}

// State returns a copy of the engine state for reporting.
func (e *Engine) State() Snapshot {
	snap := Snapshot{
		Oversold:      e.oversold,
		PeakRSI:       e.peakRSI,
		RecoveryArmed: e.recoveryArmed,
	}
	if e.lastSell.set {
		t := e.lastSell.at
		snap.LastSellTime = &t
	}
	return snap
}

// --- Flat side: oversold accumulation and the buy trigger ---

func (e *Engine) evaluateFlat(s Sample) Decision {
	st := &e.oversold

	if s.Price > st.HighestPrice {
		st.HighestPrice = s.Price
	}

	if s.RSI < e.cfg.Oversold {
		depth := (e.cfg.Oversold - s.RSI) / e.cfg.Oversold
		st.Intensity += depth * 2.0
		if st.OversoldSince == nil {
			t := s.Timestamp
			st.OversoldSince = &t
		} else if s.Timestamp.Sub(*st.OversoldSince) >= sustainedOversold {
			st.Intensity += 0.5
		}
		st.ConsecutiveCount++
		if s.RSI < st.LowestRSI {
			st.LowestRSI = s.RSI
		}
		if st.LowestPrice == 0 || s.Price < st.LowestPrice {
			st.LowestPrice = s.Price
		}
	} else {
		factor := 0.85
		if s.RSI < e.cfg.Oversold+5 {
			factor = 0.95 // buffer zone, decay gently
		}
		st.Intensity *= factor
		st.ConsecutiveCount = 0
		st.OversoldSince = nil
		if st.Intensity < intensityEpsilon {
			st.Intensity = 0
			st.LowestRSI = 101
			st.LowestPrice = 0
		}
	}

	if e.buyTriggered(s) {
		return Decision{
			Action: ActionBuy,
			Note: fmt.Sprintf("oversold x%d intensity=%.2f bounce=+%.1f",
				st.ConsecutiveCount, st.Intensity, s.RSI-st.LowestRSI),
		}
	}
	return Decision{Action: ActionHold}
}

func (e *Engine) buyTriggered(s Sample) bool {
	st := e.oversold

	scored := st.Intensity >= e.cfg.IntensityBuyThreshold ||
		st.ConsecutiveCount >= e.cfg.CounterBuyThreshold
	if !scored {
		return false
	}

	// Bounce confirmation off the episode low.
	if st.LowestRSI > e.cfg.Oversold || s.RSI < st.LowestRSI+e.cfg.BounceThreshold {
		return false
	}

	// Price at the episode low, or safely under the recent high.
	atLow := st.LowestPrice > 0 && s.Price <= st.LowestPrice
	underTop := st.HighestPrice > 0 && s.Price < st.HighestPrice*nearTopRatio
	if !atLow && !underTop {
		return false
	}

	if e.lastSell.set && s.Timestamp.Sub(e.lastSell.at) < e.cfg.Cooldown {
		return false
	}
	return true
}

// --- Open side: profit takers and the exit ladder ---

func (e *Engine) evaluateOpen(s Sample, pos *PositionView) Decision {
	if s.RSI > e.peakRSI {
		e.peakRSI = s.RSI
	}

	pnlPct := (s.Price/pos.EntryPrice - 1) * 100

	if pnlPct >= e.cfg.BigProfitPct {
		return Decision{Action: ActionSell, Reason: ReasonBigWin}
	}
	if s.RSI >= e.cfg.Overbought && pnlPct >= e.cfg.MinProfitPct && s.RSI <= e.peakRSI-3 {
		return Decision{Action: ActionSell, Reason: ReasonWinWithRSI}
	}

	held := s.Timestamp.Sub(pos.EntryTime)
	mult := e.trendMultiplier(s, pos.EntryPrice)

	// Stage 1: armed once the minimal loss lingers, sells on recovery.
	if e.recoveryArmed && s.Price >= pos.EntryPrice*recoveryRatio {
		return Decision{Action: ActionSell, Reason: ReasonLossRecovery}
	}
	if stage := exitLadder[0]; !e.recoveryArmed &&
		held >= scaleHold(stage.baseHold, mult, stage.scaled) && pnlPct <= stage.lossPct {
		e.recoveryArmed = true
		log.Printf("signal %s: recovery watch armed (held %.1fh, pnl %.2f%%)",
			e.symbol, held.Hours(), pnlPct)
	}

	if stage := exitLadder[1]; held >= scaleHold(stage.baseHold, mult, stage.scaled) && pnlPct <= stage.lossPct {
		return Decision{Action: ActionSell, Reason: stage.reason}
	}

	if stage := exitLadder[2]; held >= scaleHold(stage.baseHold, mult, stage.scaled) && pnlPct <= progressiveTarget(held) {
		return Decision{Action: ActionSell, Reason: stage.reason}
	}

	if held >= exitLadder[3].baseHold {
		return Decision{Action: ActionSell, Reason: ReasonEmergencyExit}
	}

	return Decision{Action: ActionHold}
}

func scaleHold(base time.Duration, mult float64, scaled bool) time.Duration {
	if !scaled {
		return base
	}
	return time.Duration(float64(base) * mult)
}

// progressiveTarget loosens the tolerated loss the longer the position is held.
func progressiveTarget(held time.Duration) float64 {
	switch {
	case held < time.Hour:
		return -1.0
	case held < 90*time.Minute:
		return -1.5
	default:
		return -2.0
	}
}

// trendMultiplier stretches or shrinks the ladder hold times from the
// last-5-minutes price change relative to entry. Timestamp-based lookback over
// the retained sample window.
func (e *Engine) trendMultiplier(s Sample, entryPrice float64) float64 {
	past, ok := e.priceAt(s.Timestamp.Add(-trendLookback))
	if !ok {
		return 1.0
	}
	changePct := (s.Price - past) / entryPrice * 100
	switch {
	case changePct > 0.3:
		return 1.3 // recovering, be patient
	case changePct < -0.3:
		return 0.7 // deteriorating, act sooner
	default:
		return 1.0
	}
}

func (e *Engine) pushPrice(s Sample) {
	e.window = append(e.window, pricePoint{ts: s.Timestamp, price: s.Price})
	cutoff := s.Timestamp.Add(-(trendLookback + time.Minute))
	trim := 0
	for trim < len(e.window)-1 && e.window[trim+1].ts.Before(cutoff) {
		trim++
	}
	if trim > 0 {
		e.window = e.window[trim:]
	}
}

// priceAt returns the newest retained price at or before ts.
func (e *Engine) priceAt(ts time.Time) (float64, bool) {
	for i := len(e.window) - 1; i >= 0; i-- {
		if !e.window[i].ts.After(ts) {
			return e.window[i].price, true
		}
	}
	return 0, false
}

func (e *Engine) resetOversold() {
	e.oversold = OversoldState{LowestRSI: 101}
}
