package aggregate

import (
	"context"

	"main/internal/domain/entity/execution"
	"main/internal/domain/events"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// checkOrderFill decides whether the slot's pending order fills on this tick.
// A market order fills at the tick's open, simulating execution at next bar
// open rather than at the signal price. A limit order fills at its exact
// price iff the tick range crosses it.
func (s *Service) checkOrderFill(ctx context.Context, st *slotState, candle *events.CandleUpdate) {
	order := st.Order

	var fillPrice float64
	switch order.Kind {
	case execution.KindMarket:
		fillPrice = candle.Open
	case execution.KindLimit:
		if order.LimitPrice == nil {
			s.logger.WithField("order_id", order.OrderID).Warn("limit order without price, ignoring")
			return
		}
		if candle.Low > *order.LimitPrice || candle.High < *order.LimitPrice {
			return
		}
		fillPrice = *order.LimitPrice
	default:
		return
	}

	// The fill is one atomic transition: the order slot becomes a position
	// slot before any external effect is attempted.
	position := &execution.Position{
		StrategyID: order.StrategyID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Size:       1.0,
		EntryPrice: fillPrice,
		EntryTime:  candle.Timestamp,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
	}
	st.Order = nil
	st.Position = position

	log := s.logger.WithFields(logrus.Fields{
		"strategy_id": order.StrategyID,
		"symbol":      order.Symbol,
		"order_id":    order.OrderID,
		"price":       fillPrice,
	})
	log.Info("order filled")

	record := &execution.OrderRecord{
		OrderID:    order.OrderID,
		StrategyID: order.StrategyID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Price:      fillPrice,
		Qty:        position.Size,
		Kind:       order.Kind,
		Status:     "FILLED",
		CreatedAt:  order.CreatedAt,
	}
	if err := s.ledger.SaveOrder(ctx, record); err != nil {
		log.WithError(err).Error("ledger order write failed")
	}

	if err := s.mirror.DeleteOrder(ctx, order.Slot()); err != nil {
		log.WithError(err).Error("mirror order delete failed")
	}
	if err := s.mirror.SetPosition(ctx, position); err != nil {
		log.WithError(err).Error("mirror position write failed")
	}

	side := "BUY"
	if position.Side == execution.SideShort {
		side = "SELL"
	}
	s.publish(ctx, &events.OrderExecution{
		Envelope:   events.NewEnvelope(events.TypeOrderExecution),
		StrategyID: order.StrategyID,
		Symbol:     order.Symbol,
		OrderID:    order.OrderID,
		OrderType:  string(order.Kind),
		Side:       side,
		Price:      fillPrice,
		Qty:        position.Size,
		Status:     "FILLED",
	})
}

// checkPositionExit evaluates stop-loss and take-profit against the tick
// range. Stop-loss is checked first: if both bounds are breached within one
// candle the adverse excursion is assumed to have occurred first.
func (s *Service) checkPositionExit(ctx context.Context, st *slotState, candle *events.CandleUpdate) {
	pos := st.Position
	sl := pos.StopLoss
	tp := pos.TakeProfit

	var exitPrice float64
	var reason execution.CloseReason

	if pos.Side == execution.SideLong {
		switch {
		case sl != nil && candle.Low <= *sl:
			exitPrice, reason = *sl, execution.ReasonStopLoss
		case tp != nil && candle.High >= *tp:
			exitPrice, reason = *tp, execution.ReasonTakeProfit
		}
	} else {
		switch {
		case sl != nil && candle.High >= *sl:
			exitPrice, reason = *sl, execution.ReasonStopLoss
		case tp != nil && candle.Low <= *tp:
			exitPrice, reason = *tp, execution.ReasonTakeProfit
		}
	}

	if reason == "" {
		return
	}
	s.closePosition(ctx, st, exitPrice, reason, candle.Timestamp)
}

// closePosition is the shared close routine for trigger and signal exits.
// Effect order: memory, ledger, mirror, notices. If the ledger write fails
// the in-memory close stands and external replicas stay stale until the next
// successful write for the slot.
func (s *Service) closePosition(ctx context.Context, st *slotState, exitPrice float64, reason execution.CloseReason, exitTime float64) {
	pos := st.Position
	pnl := pos.PnL(exitPrice)
	st.Position = nil

	log := s.logger.WithFields(logrus.Fields{
		"strategy_id": pos.StrategyID,
		"symbol":      pos.Symbol,
		"reason":      reason,
		"exit_price":  exitPrice,
		"pnl":         pnl,
	})
	log.Info("position closed")

	trade := &execution.ClosedTrade{
		TradeID:    uuid.NewString(),
		StrategyID: pos.StrategyID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Qty:        pos.Size,
		PnL:        pnl,
		EntryTime:  pos.EntryTime,
		ExitTime:   exitTime,
		Reason:     reason,
	}
	if err := s.ledger.SaveTrade(ctx, trade); err != nil {
		log.WithError(err).Error("ledger trade write failed")
	}

	if err := s.mirror.DeletePosition(ctx, pos.Slot()); err != nil {
		log.WithError(err).Error("mirror position delete failed")
	}

	// The wire field is a TP/SL literal; signal closes are reported as TP.
	trigger := string(reason)
	if reason != execution.ReasonStopLoss && reason != execution.ReasonTakeProfit {
		trigger = string(execution.ReasonTakeProfit)
	}
	s.publish(ctx, &events.TradeTerminal{
		Envelope:    events.NewEnvelope(events.TypeTradeTerminal),
		StrategyID:  pos.StrategyID,
		Symbol:      pos.Symbol,
		TriggerType: trigger,
		ExitPrice:   exitPrice,
		PnL:         pnl,
		RealisedPnL: pnl,
	})

	// Synthetic FLAT notice so consumers converge without special-casing
	// absence of a position.
	s.publish(ctx, &events.PositionState{
		Envelope:   events.NewEnvelope(events.TypePositionState),
		StrategyID: pos.StrategyID,
		Symbol:     pos.Symbol,
		Side:       string(execution.SideFlat),
		Size:       0,
		EntryPrice: 0,
	})
}
