package events

// Event enumerates high-level topics inside the bot.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventSample         Event = "sample"
	EventDecision       Event = "decision"
	EventPositionChange Event = "position_change"
	EventTradeClosed    Event = "trade_closed"
	EventRiskAlert      Event = "risk_alert"
	EventOrderFailed    Event = "order_failed"
)
