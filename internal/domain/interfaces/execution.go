package interfaces

import (
	"context"

	"main/internal/domain/entity/execution"
	"main/internal/domain/events"
)

// EventBus is the ordered, at-least-once delivery channel carrying strategy
// and engine events. Subscribe returns a stream of decoded events; the
// implementation owns reconnects and drops malformed payloads after logging.
type EventBus interface {
	Publish(ctx context.Context, event events.Event) error
	Subscribe(ctx context.Context) (<-chan events.Event, error)
}

// TradeLedger is the durable, append-only record of fills and closed trades.
// Writes must be safe to retry: trades deduplicate on TradeID, order records
// upsert on OrderID.
type TradeLedger interface {
	SaveTrade(ctx context.Context, trade *execution.ClosedTrade) error
	SaveOrder(ctx context.Context, record *execution.OrderRecord) error
	GetTrades(ctx context.Context, strategyID, symbol string) ([]execution.ClosedTrade, error)
	GetOrders(ctx context.Context, strategyID string) ([]execution.OrderRecord, error)
}

// StateMirror is the low-latency write-through replica of current
// orders/positions consumed by external readers. Keyed set-or-delete only;
// the engine remains the single writer.
type StateMirror interface {
	SetOrder(ctx context.Context, order *execution.PendingOrder) error
	DeleteOrder(ctx context.Context, slot execution.Slot) error
	SetPosition(ctx context.Context, position *execution.Position) error
	DeletePosition(ctx context.Context, slot execution.Slot) error
}
