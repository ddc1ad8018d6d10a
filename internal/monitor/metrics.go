package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the bot's operational counters. Registered once against the
// default registry and served at /metrics.
type Metrics struct {
	SamplesProcessed prometheus.Counter
	SamplesRejected  prometheus.Counter
	Buys             prometheus.Counter
	Sells            prometheus.Counter
	RiskRejections   prometheus.Counter
	OrderFailures    prometheus.Counter
	CycleLatency     prometheus.Histogram

	Balance     prometheus.Gauge
	DrawdownPct prometheus.Gauge
	PositionQty prometheus.Gauge
}

// NewMetrics builds and registers the metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		SamplesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_samples_processed_total", Help: "Samples accepted by the signal engine"}),
		SamplesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_samples_rejected_total", Help: "Samples rejected (out of order or malformed)"}),
		Buys: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_buys_total", Help: "Buy decisions committed"}),
		Sells: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_sells_total", Help: "Sell decisions committed"}),
		RiskRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_risk_rejections_total", Help: "Buy decisions blocked by risk policy"}),
		OrderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_order_failures_total", Help: "Orders reported failed after the decision committed"}),
		CycleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_cycle_latency_seconds",
			Help:    "Wall time of one decision cycle",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_balance_usd", Help: "Current account balance"}),
		DrawdownPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_drawdown_pct", Help: "Current drawdown from peak balance"}),
		PositionQty: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_position_qty", Help: "Open position quantity (0 while flat)"}),
	}
	prometheus.MustRegister(
		m.SamplesProcessed, m.SamplesRejected, m.Buys, m.Sells,
		m.RiskRejections, m.OrderFailures, m.CycleLatency,
		m.Balance, m.DrawdownPct, m.PositionQty,
	)
	return m
}
