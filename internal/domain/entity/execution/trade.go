package execution

// CloseReason explains why a position was closed.
type CloseReason string

const (
	ReasonStopLoss   CloseReason = "SL"
	ReasonTakeProfit CloseReason = "TP"
	ReasonSignal     CloseReason = "SIGNAL"
)

// ClosedTrade is the immutable historical record of a closed position.
// TradeID is stable across retries so ledger inserts can be deduplicated.
type ClosedTrade struct {
	TradeID    string
	StrategyID string
	Symbol     string
	Side       Side
	EntryPrice float64
	ExitPrice  float64
	Qty        float64
	PnL        float64
	EntryTime  float64
	ExitTime   float64
	Reason     CloseReason
}
