package execution

// OrderKind discriminates how a pending order is allowed to fill.
type OrderKind string

const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
)

// Side is the direction of an order or position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideFlat  Side = "FLAT"
)

// Slot is the state-partitioning key for all engine state. Each slot holds
// at most one PendingOrder or one Position, never both.
type Slot struct {
	StrategyID string
	Symbol     string
}

// PendingOrder is an accepted open request waiting for a tick that fills it.
// There is no cancellation path: an order either fills or stays pending.
type PendingOrder struct {
	OrderID    string    `json:"order_id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Kind       OrderKind `json:"order_type"`
	Side       Side      `json:"side"`
	LimitPrice *float64  `json:"limit_price,omitempty"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
	CreatedAt  float64   `json:"created_at"`
}

// Slot returns the state partition this order belongs to.
func (o *PendingOrder) Slot() Slot {
	return Slot{StrategyID: o.StrategyID, Symbol: o.Symbol}
}

// OrderRecord is the durable row written to the ledger when an order fills.
type OrderRecord struct {
	OrderID    string
	StrategyID string
	Symbol     string
	Side       Side
	Price      float64
	Qty        float64
	Kind       OrderKind
	Status     string
	CreatedAt  float64
}
