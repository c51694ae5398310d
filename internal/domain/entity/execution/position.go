package execution

// Position is an open simulated position. Size is fixed at one unit: the
// engine models full-fill-or-no-fill semantics, sizing stays upstream.
type Position struct {
	StrategyID string   `json:"strategy_id"`
	Symbol     string   `json:"symbol"`
	Side       Side     `json:"side"`
	Size       float64  `json:"size"`
	EntryPrice float64  `json:"entry_price"`
	EntryTime  float64  `json:"entry_time"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

// Slot returns the state partition this position belongs to.
func (p *Position) Slot() Slot {
	return Slot{StrategyID: p.StrategyID, Symbol: p.Symbol}
}

// PnL computes the realized profit for closing the position at exitPrice.
func (p *Position) PnL(exitPrice float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - exitPrice) * p.Size
	}
	return (exitPrice - p.EntryPrice) * p.Size
}
