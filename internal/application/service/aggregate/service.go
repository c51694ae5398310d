// Package aggregate implements the exchange emulation core: it consumes
// signal and tick events from the strategy channel, decides order fills and
// position exits, and writes the resulting state through to the trade ledger
// and the shared state mirror.
package aggregate

import (
	"context"
	"time"

	"main/internal/domain/entity/execution"
	"main/internal/domain/events"
	"main/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// slotState is everything the engine keeps for one (strategy, symbol)
// partition. A slot never holds an order and a position at the same time.
type slotState struct {
	Order     *execution.PendingOrder
	Position  *execution.Position
	LastPrice float64
}

// Service is the event-driven simulation engine. All state is owned by the
// single dispatch goroutine running Run; nothing else mutates it.
type Service struct {
	bus    interfaces.EventBus
	ledger interfaces.TradeLedger
	mirror interfaces.StateMirror
	logger *logrus.Entry

	state map[execution.Slot]*slotState
	now   func() float64
}

// NewService wires the engine against its channel, ledger and mirror.
func NewService(bus interfaces.EventBus, ledger interfaces.TradeLedger, mirror interfaces.StateMirror, logger *logrus.Logger) *Service {
	return &Service{
		bus:    bus,
		ledger: ledger,
		mirror: mirror,
		logger: logger.WithField("component", "aggregate"),
		state:  make(map[execution.Slot]*slotState),
		now:    func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// Run subscribes to the strategy channel and processes events one at a time
// in arrival order until the context is cancelled. No event failure is fatal:
// handlers log and move on.
func (s *Service) Run(ctx context.Context) error {
	stream, err := s.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("aggregate service started, listening for events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-stream:
			if !ok {
				return nil
			}
			s.HandleEvent(ctx, event)
		}
	}
}

// HandleEvent routes a decoded event to its handler. Events the engine
// itself published come back on the same topic and are ignored here.
func (s *Service) HandleEvent(ctx context.Context, event events.Event) {
	switch e := event.(type) {
	case *events.StrategySignal:
		s.handleSignal(ctx, e)
	case *events.CandleUpdate:
		s.handleCandle(ctx, e)
	case *events.SetTPSL:
		s.handleSetTPSL(ctx, e)
	}
}

func (s *Service) slot(key execution.Slot) *slotState {
	st, ok := s.state[key]
	if !ok {
		st = &slotState{}
		s.state[key] = st
	}
	return st
}

// handleSignal processes an open/close request. Opens against a slot that
// already holds an order or a position are no-ops; closes without a position
// are no-ops.
func (s *Service) handleSignal(ctx context.Context, sig *events.StrategySignal) {
	if sig.StrategyID == "" || sig.Symbol == "" {
		s.logger.WithField("event_id", sig.EventID).Warn("dropping signal without strategy or symbol")
		return
	}
	key := execution.Slot{StrategyID: sig.StrategyID, Symbol: sig.Symbol}
	st := s.slot(key)

	log := s.logger.WithFields(logrus.Fields{
		"strategy_id": sig.StrategyID,
		"symbol":      sig.Symbol,
		"action":      sig.Action,
	})

	switch {
	case sig.Action.IsOpen():
		if st.Order != nil || st.Position != nil {
			log.Debug("slot busy, ignoring open signal")
			return
		}
		s.createOrder(ctx, st, sig, log)
	case sig.Action.IsClose():
		if st.Position == nil {
			log.Debug("no position, ignoring close signal")
			return
		}
		exitPrice := st.LastPrice
		if exitPrice == 0 {
			exitPrice = st.Position.EntryPrice
		}
		s.closePosition(ctx, st, exitPrice, execution.ReasonSignal, s.now())
	default:
		log.Warn("dropping signal with unknown action")
	}
}

// createOrder installs a pending order for the slot. The order id reuses the
// signal's event id so a redelivered signal maps onto the same order.
func (s *Service) createOrder(ctx context.Context, st *slotState, sig *events.StrategySignal, log *logrus.Entry) {
	kind := execution.KindMarket
	if sig.Price != nil {
		kind = execution.KindLimit
	}
	side := execution.SideLong
	if sig.Action == events.ActionOpenShort {
		side = execution.SideShort
	}
	orderID := sig.EventID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	createdAt := sig.Timestamp
	if createdAt == 0 {
		createdAt = s.now()
	}

	st.Order = &execution.PendingOrder{
		OrderID:    orderID,
		StrategyID: sig.StrategyID,
		Symbol:     sig.Symbol,
		Kind:       kind,
		Side:       side,
		LimitPrice: sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		CreatedAt:  createdAt,
	}
	log.WithFields(logrus.Fields{"order_id": orderID, "order_type": kind}).Info("pending order created")

	if err := s.mirror.SetOrder(ctx, st.Order); err != nil {
		log.WithError(err).Error("mirror order write failed")
	}
}

// handleCandle records the latest price for the slot, then evaluates the
// pending order and the open position against the tick range.
func (s *Service) handleCandle(ctx context.Context, candle *events.CandleUpdate) {
	if candle.StrategyID == "" || candle.Symbol == "" {
		s.logger.WithField("event_id", candle.EventID).Warn("dropping candle without strategy or symbol")
		return
	}
	key := execution.Slot{StrategyID: candle.StrategyID, Symbol: candle.Symbol}
	st := s.slot(key)
	st.LastPrice = candle.Close

	if st.Order != nil {
		s.checkOrderFill(ctx, st, candle)
	}
	if st.Position != nil {
		s.checkPositionExit(ctx, st, candle)
	}
}

// handleSetTPSL patches stop-loss/take-profit on an open position. Fields
// absent from the request are left untouched; without a position the request
// is silently dropped.
func (s *Service) handleSetTPSL(ctx context.Context, req *events.SetTPSL) {
	key := execution.Slot{StrategyID: req.StrategyID, Symbol: req.Symbol}
	st, ok := s.state[key]
	if !ok || st.Position == nil {
		return
	}
	if req.StopLoss != nil {
		st.Position.StopLoss = req.StopLoss
	}
	if req.TakeProfit != nil {
		st.Position.TakeProfit = req.TakeProfit
	}

	if err := s.mirror.SetPosition(ctx, st.Position); err != nil {
		s.logger.WithError(err).Error("mirror position write failed")
	}

	notice := &events.PositionState{
		Envelope:   events.NewEnvelope(events.TypePositionState),
		StrategyID: st.Position.StrategyID,
		Symbol:     st.Position.Symbol,
		Side:       string(st.Position.Side),
		Size:       st.Position.Size,
		EntryPrice: st.Position.EntryPrice,
		StopLoss:   st.Position.StopLoss,
		TakeProfit: st.Position.TakeProfit,
	}
	s.publish(ctx, notice)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", event.Type()).Error("publish failed")
	}
}
