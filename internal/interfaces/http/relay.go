package http

import (
	"context"

	"main/internal/domain/events"
	"main/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// Broadcaster fans relay messages out to connected clients.
type Broadcaster interface {
	BroadcastAll(message interface{})
	BroadcastSlot(strategyID, symbol string, message interface{})
}

// Relay forwards engine-originated events from the strategy channel to
// connected WebSocket clients.
type Relay struct {
	bus    interfaces.EventBus
	hub    Broadcaster
	logger *logrus.Entry
}

func NewRelay(bus interfaces.EventBus, hub Broadcaster, logger *logrus.Logger) *Relay {
	return &Relay{
		bus:    bus,
		hub:    hub,
		logger: logger.WithField("component", "relay"),
	}
}

// Run consumes the channel until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	stream, err := r.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("event relay started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-stream:
			if !ok {
				return nil
			}
			r.dispatch(event)
		}
	}
}

func (r *Relay) dispatch(event events.Event) {
	switch e := event.(type) {
	case *events.CandleUpdate:
		// Light price ping for every watchlist, full candle only for
		// clients charting this slot.
		r.hub.BroadcastAll(map[string]interface{}{
			"type":      "watchlist_ping",
			"symbol":    e.Symbol,
			"price":     e.Close,
			"timestamp": e.Timestamp,
		})
		r.hub.BroadcastSlot(e.StrategyID, e.Symbol, map[string]interface{}{
			"type":        "candle_update",
			"strategy_id": e.StrategyID,
			"symbol":      e.Symbol,
			"data":        e,
		})
	case *events.OrderExecution, *events.PositionState, *events.TradeTerminal:
		r.hub.BroadcastAll(map[string]interface{}{
			"type":  "update",
			"event": event.Type(),
			"data":  event,
		})
	}
}
