// Package events defines the JSON envelopes exchanged on the strategy event
// channel. Every payload carries an event_type discriminator; decoding to a
// tagged variant happens once at the transport boundary.
package events

import (
	"time"

	"github.com/google/uuid"
)

// ChannelStrategyEvents is the single well-known pub/sub topic carrying all
// strategy and engine events.
const ChannelStrategyEvents = "strategy:events"

// Discriminator values recognized on the channel.
const (
	TypeStrategySignal = "StrategySignalEvent"
	TypeCandleUpdate   = "CandleUpdateEvent"
	TypeSetTPSL        = "StrategySetTPSLEvent"
	TypeOrderExecution = "OrderExecutionEvent"
	TypePositionState  = "PositionStateEvent"
	TypeTradeTerminal  = "TradeTerminalEvent"
)

// Envelope is the common header shared by every event. Timestamps are epoch
// seconds to stay wire-compatible with candle and trade times.
type Envelope struct {
	EventID   string  `json:"event_id"`
	Timestamp float64 `json:"timestamp"`
	EventType string  `json:"event_type"`
}

// NewEnvelope stamps a fresh header for an outbound event.
func NewEnvelope(eventType string) Envelope {
	return Envelope{
		EventID:   uuid.NewString(),
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		EventType: eventType,
	}
}

// Event is implemented by every decoded variant.
type Event interface {
	Type() string
}

// Action is the intent carried by a strategy signal.
type Action string

const (
	ActionOpenLong   Action = "OPEN_LONG"
	ActionOpenShort  Action = "OPEN_SHORT"
	ActionCloseLong  Action = "CLOSE_LONG"
	ActionCloseShort Action = "CLOSE_SHORT"
)

// IsOpen reports whether the action requests opening a position.
func (a Action) IsOpen() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

// IsClose reports whether the action requests closing a position.
func (a Action) IsClose() bool {
	return a == ActionCloseLong || a == ActionCloseShort
}

// StrategySignal is an open/close request emitted by a strategy process.
// ClosePercent and RiskPct are accepted for schema compatibility but the
// engine honors full-size semantics only.
type StrategySignal struct {
	Envelope
	StrategyID   string   `json:"strategy_id"`
	Symbol       string   `json:"symbol"`
	Action       Action   `json:"action"`
	RiskPct      *float64 `json:"risk_pct,omitempty"`
	ClosePercent *float64 `json:"close_percent,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	Leverage     float64  `json:"leverage"`
	StopLoss     *float64 `json:"stop_loss,omitempty"`
	TakeProfit   *float64 `json:"take_profit,omitempty"`
}

func (e *StrategySignal) Type() string { return TypeStrategySignal }

// CandleUpdate is a market tick: one closed or updating candle plus any
// indicator values computed upstream. It is the only way the engine observes
// price movement.
type CandleUpdate struct {
	Envelope
	StrategyID string             `json:"strategy_id"`
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"tf"`
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	Volume     float64            `json:"volume"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

func (e *CandleUpdate) Type() string { return TypeCandleUpdate }

// SetTPSL asks the engine to replace stop-loss/take-profit bounds on an open
// position. Absent fields are left untouched.
type SetTPSL struct {
	Envelope
	StrategyID string   `json:"strategy_id"`
	Symbol     string   `json:"symbol"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

func (e *SetTPSL) Type() string { return TypeSetTPSL }

// OrderExecution notifies consumers that a pending order filled.
type OrderExecution struct {
	Envelope
	StrategyID string  `json:"strategy_id"`
	Symbol     string  `json:"symbol"`
	OrderID    string  `json:"order_id"`
	OrderType  string  `json:"order_type"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	Qty        float64 `json:"qty"`
	Status     string  `json:"status"`
}

func (e *OrderExecution) Type() string { return TypeOrderExecution }

// PositionState broadcasts the current shape of a position, including the
// synthetic FLAT notice after a close.
type PositionState struct {
	Envelope
	StrategyID    string   `json:"strategy_id"`
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Size          float64  `json:"size"`
	EntryPrice    float64  `json:"entry_price"`
	UnrealisedPnL float64  `json:"unrealised_pnl"`
	StopLoss      *float64 `json:"stop_loss,omitempty"`
	TakeProfit    *float64 `json:"take_profit,omitempty"`
}

func (e *PositionState) Type() string { return TypePositionState }

// TradeTerminal reports a position closed by a trigger or signal. The
// trigger_type field is a TP/SL literal on the wire; signal-driven closes are
// reported as TP.
type TradeTerminal struct {
	Envelope
	StrategyID  string  `json:"strategy_id"`
	Symbol      string  `json:"symbol"`
	TriggerType string  `json:"trigger_type"`
	ExitPrice   float64 `json:"exit_price"`
	PnL         float64 `json:"pnl"`
	RealisedPnL float64 `json:"realised_pnl"`
}

func (e *TradeTerminal) Type() string { return TypeTradeTerminal }
