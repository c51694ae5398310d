package aggregate

import (
	"context"
	"errors"
	"testing"

	"main/internal/domain/entity/execution"
	"main/internal/domain/events"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	published []events.Event
	stream    chan events.Event
}

func (b *fakeBus) Publish(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *fakeBus) Subscribe(context.Context) (<-chan events.Event, error) {
	if b.stream == nil {
		b.stream = make(chan events.Event, 16)
	}
	return b.stream, nil
}

type fakeLedger struct {
	trades   []execution.ClosedTrade
	orders   []execution.OrderRecord
	tradeErr error
}

func (l *fakeLedger) SaveTrade(_ context.Context, trade *execution.ClosedTrade) error {
	if l.tradeErr != nil {
		return l.tradeErr
	}
	l.trades = append(l.trades, *trade)
	return nil
}

func (l *fakeLedger) SaveOrder(_ context.Context, record *execution.OrderRecord) error {
	l.orders = append(l.orders, *record)
	return nil
}

func (l *fakeLedger) GetTrades(_ context.Context, strategyID, symbol string) ([]execution.ClosedTrade, error) {
	return l.trades, nil
}

func (l *fakeLedger) GetOrders(_ context.Context, strategyID string) ([]execution.OrderRecord, error) {
	return l.orders, nil
}

type fakeMirror struct {
	orders    map[execution.Slot]execution.PendingOrder
	positions map[execution.Slot]execution.Position
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{
		orders:    make(map[execution.Slot]execution.PendingOrder),
		positions: make(map[execution.Slot]execution.Position),
	}
}

func (m *fakeMirror) SetOrder(_ context.Context, order *execution.PendingOrder) error {
	m.orders[order.Slot()] = *order
	return nil
}

func (m *fakeMirror) DeleteOrder(_ context.Context, slot execution.Slot) error {
	delete(m.orders, slot)
	return nil
}

func (m *fakeMirror) SetPosition(_ context.Context, position *execution.Position) error {
	m.positions[position.Slot()] = *position
	return nil
}

func (m *fakeMirror) DeletePosition(_ context.Context, slot execution.Slot) error {
	delete(m.positions, slot)
	return nil
}

type fixture struct {
	svc    *Service
	bus    *fakeBus
	ledger *fakeLedger
	mirror *fakeMirror
}

func newFixture() *fixture {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	bus := &fakeBus{}
	ledger := &fakeLedger{}
	mirror := newFakeMirror()
	svc := NewService(bus, ledger, mirror, logger)
	svc.now = func() float64 { return 1000 }
	return &fixture{svc: svc, bus: bus, ledger: ledger, mirror: mirror}
}

func ptr(v float64) *float64 { return &v }

func signal(action events.Action, opts ...func(*events.StrategySignal)) *events.StrategySignal {
	sig := &events.StrategySignal{
		Envelope:   events.Envelope{EventID: "sig-1", Timestamp: 100, EventType: events.TypeStrategySignal},
		StrategyID: "strat-1",
		Symbol:     "BTCUSDT",
		Action:     action,
		Leverage:   1,
	}
	for _, opt := range opts {
		opt(sig)
	}
	return sig
}

func candle(open, high, low, close float64) *events.CandleUpdate {
	return &events.CandleUpdate{
		Envelope:   events.Envelope{EventID: "c-1", Timestamp: 200, EventType: events.TypeCandleUpdate},
		StrategyID: "strat-1",
		Symbol:     "BTCUSDT",
		Timeframe:  "1m",
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     1,
	}
}

func (f *fixture) slotState(t *testing.T) *slotState {
	t.Helper()
	st, ok := f.svc.state[execution.Slot{StrategyID: "strat-1", Symbol: "BTCUSDT"}]
	require.True(t, ok, "slot state missing")
	return st
}

func (f *fixture) requireInvariant(t *testing.T) {
	t.Helper()
	for slot, st := range f.svc.state {
		if st.Order != nil && st.Position != nil {
			t.Fatalf("slot %v holds both an order and a position", slot)
		}
	}
}

func TestMarketOrderFillsAtNextTickOpen(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenLong))

	st := f.slotState(t)
	require.NotNil(t, st.Order)
	assert.Equal(t, execution.KindMarket, st.Order.Kind)
	assert.Contains(t, f.mirror.orders, execution.Slot{StrategyID: "strat-1", Symbol: "BTCUSDT"})

	f.svc.HandleEvent(ctx, candle(50, 55, 49, 52))
	f.requireInvariant(t)

	require.Nil(t, st.Order)
	require.NotNil(t, st.Position)
	assert.Equal(t, execution.SideLong, st.Position.Side)
	assert.Equal(t, 50.0, st.Position.EntryPrice)
	assert.Equal(t, 1.0, st.Position.Size)
	assert.Equal(t, 200.0, st.Position.EntryTime)

	// Mirror converged: position key present, order key gone.
	slot := execution.Slot{StrategyID: "strat-1", Symbol: "BTCUSDT"}
	assert.NotContains(t, f.mirror.orders, slot)
	assert.Contains(t, f.mirror.positions, slot)

	require.Len(t, f.bus.published, 1)
	exec, ok := f.bus.published[0].(*events.OrderExecution)
	require.True(t, ok)
	assert.Equal(t, "sig-1", exec.OrderID)
	assert.Equal(t, "BUY", exec.Side)
	assert.Equal(t, 50.0, exec.Price)
	assert.Equal(t, "FILLED", exec.Status)

	require.Len(t, f.ledger.orders, 1)
	assert.Equal(t, "FILLED", f.ledger.orders[0].Status)
}

func TestLimitOrderFillsOnlyWhenRangeCrosses(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenShort, func(s *events.StrategySignal) {
		s.Price = ptr(100)
	}))

	// Range does not reach the limit: still pending.
	f.svc.HandleEvent(ctx, candle(95, 98, 93, 97))
	st := f.slotState(t)
	require.NotNil(t, st.Order)
	require.Nil(t, st.Position)

	// Range crosses: fill at exactly the limit price, not the open.
	f.svc.HandleEvent(ctx, candle(97, 101, 96, 99))
	f.requireInvariant(t)
	require.NotNil(t, st.Position)
	assert.Equal(t, execution.SideShort, st.Position.Side)
	assert.Equal(t, 100.0, st.Position.EntryPrice)

	exec, ok := f.bus.published[0].(*events.OrderExecution)
	require.True(t, ok)
	assert.Equal(t, "SELL", exec.Side)
	assert.Equal(t, 100.0, exec.Price)
	assert.Equal(t, "LIMIT", exec.OrderType)
}

func TestOpenSignalOnBusySlotIsNoOp(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenLong))
	first := f.slotState(t).Order
	f.svc.HandleEvent(ctx, signal(events.ActionOpenShort))
	assert.Same(t, first, f.slotState(t).Order)

	f.svc.HandleEvent(ctx, candle(50, 55, 49, 52))
	f.svc.HandleEvent(ctx, signal(events.ActionOpenLong))
	f.requireInvariant(t)
	assert.Nil(t, f.slotState(t).Order)
}

func TestStopLossTrigger(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenLong, func(s *events.StrategySignal) {
		s.StopLoss = ptr(45)
	}))
	f.svc.HandleEvent(ctx, candle(50, 51, 49, 50))
	require.NotNil(t, f.slotState(t).Position)
	f.bus.published = nil

	f.svc.HandleEvent(ctx, candle(49, 49, 44, 44.5))
	f.requireInvariant(t)
	assert.Nil(t, f.slotState(t).Position)

	require.Len(t, f.ledger.trades, 1)
	trade := f.ledger.trades[0]
	assert.Equal(t, execution.ReasonStopLoss, trade.Reason)
	assert.Equal(t, 45.0, trade.ExitPrice)
	assert.Equal(t, -5.0, trade.PnL)
	assert.NotEmpty(t, trade.TradeID)

	require.Len(t, f.bus.published, 2)
	terminal, ok := f.bus.published[0].(*events.TradeTerminal)
	require.True(t, ok)
	assert.Equal(t, "SL", terminal.TriggerType)
	assert.Equal(t, 45.0, terminal.ExitPrice)
	assert.Equal(t, -5.0, terminal.PnL)

	flat, ok := f.bus.published[1].(*events.PositionState)
	require.True(t, ok)
	assert.Equal(t, "FLAT", flat.Side)
	assert.Zero(t, flat.Size)
	assert.Zero(t, flat.EntryPrice)

	assert.Empty(t, f.mirror.positions)
}

func TestStopLossWinsTieBreak(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenLong, func(s *events.StrategySignal) {
		s.StopLoss = ptr(95)
		s.TakeProfit = ptr(110)
	}))
	f.svc.HandleEvent(ctx, candle(100, 101, 99, 100))
	f.bus.published = nil

	// Both bounds breached within one tick: SL is assumed to hit first.
	f.svc.HandleEvent(ctx, candle(100, 120, 90, 115))

	require.Len(t, f.ledger.trades, 1)
	assert.Equal(t, execution.ReasonStopLoss, f.ledger.trades[0].Reason)
	assert.Equal(t, 95.0, f.ledger.trades[0].ExitPrice)
}

func TestShortSidePnLAndTriggers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenShort, func(s *events.StrategySignal) {
		s.TakeProfit = ptr(90)
	}))
	f.svc.HandleEvent(ctx, candle(100, 101, 99, 100))
	require.Equal(t, 100.0, f.slotState(t).Position.EntryPrice)

	f.svc.HandleEvent(ctx, candle(95, 96, 89, 91))

	require.Len(t, f.ledger.trades, 1)
	trade := f.ledger.trades[0]
	assert.Equal(t, execution.ReasonTakeProfit, trade.Reason)
	assert.Equal(t, 90.0, trade.ExitPrice)
	assert.Equal(t, 10.0, trade.PnL)
}

func TestTerminalTickReplayIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenLong, func(s *events.StrategySignal) {
		s.StopLoss = ptr(45)
	}))
	f.svc.HandleEvent(ctx, candle(50, 51, 49, 50))

	terminal := candle(49, 49, 44, 44.5)
	f.svc.HandleEvent(ctx, terminal)
	f.svc.HandleEvent(ctx, terminal)

	assert.Len(t, f.ledger.trades, 1)
}

func TestCloseSignalUsesLastKnownPrice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenLong))
	f.svc.HandleEvent(ctx, candle(100, 112, 99, 110))
	f.bus.published = nil

	f.svc.HandleEvent(ctx, signal(events.ActionCloseLong))

	require.Len(t, f.ledger.trades, 1)
	trade := f.ledger.trades[0]
	assert.Equal(t, execution.ReasonSignal, trade.Reason)
	assert.Equal(t, 110.0, trade.ExitPrice)
	assert.Equal(t, 10.0, trade.PnL)
	assert.Equal(t, 1000.0, trade.ExitTime)

	// Signal closes still publish a TP/SL-literal terminal notice.
	terminal, ok := f.bus.published[0].(*events.TradeTerminal)
	require.True(t, ok)
	assert.Equal(t, "TP", terminal.TriggerType)
}

func TestCloseSignalWithoutPositionIsNoOp(t *testing.T) {
	f := newFixture()
	f.svc.HandleEvent(context.Background(), signal(events.ActionCloseLong))
	assert.Empty(t, f.ledger.trades)
	assert.Empty(t, f.bus.published)
}

func TestSetTPSLPatchesPresentFieldsOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenLong, func(s *events.StrategySignal) {
		s.StopLoss = ptr(45)
		s.TakeProfit = ptr(60)
	}))
	f.svc.HandleEvent(ctx, candle(50, 51, 49, 50))
	f.bus.published = nil

	f.svc.HandleEvent(ctx, &events.SetTPSL{
		Envelope:   events.Envelope{EventType: events.TypeSetTPSL},
		StrategyID: "strat-1",
		Symbol:     "BTCUSDT",
		TakeProfit: ptr(70),
	})

	pos := f.slotState(t).Position
	require.NotNil(t, pos.StopLoss)
	assert.Equal(t, 45.0, *pos.StopLoss)
	require.NotNil(t, pos.TakeProfit)
	assert.Equal(t, 70.0, *pos.TakeProfit)

	require.Len(t, f.bus.published, 1)
	notice, ok := f.bus.published[0].(*events.PositionState)
	require.True(t, ok)
	assert.Equal(t, 45.0, *notice.StopLoss)
	assert.Equal(t, 70.0, *notice.TakeProfit)

	mirrored := f.mirror.positions[execution.Slot{StrategyID: "strat-1", Symbol: "BTCUSDT"}]
	assert.Equal(t, 70.0, *mirrored.TakeProfit)
}

func TestSetTPSLWithoutPositionIsDropped(t *testing.T) {
	f := newFixture()
	f.svc.HandleEvent(context.Background(), &events.SetTPSL{
		StrategyID: "strat-1",
		Symbol:     "BTCUSDT",
		StopLoss:   ptr(45),
	})
	assert.Empty(t, f.bus.published)
	assert.Empty(t, f.mirror.positions)
}

func TestUnsetBoundsNeverTrigger(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenLong))
	f.svc.HandleEvent(ctx, candle(50, 51, 49, 50))

	f.svc.HandleEvent(ctx, candle(1, 1000, 0.5, 2))
	assert.NotNil(t, f.slotState(t).Position)
	assert.Empty(t, f.ledger.trades)
}

func TestLedgerFailureDoesNotRollBackClose(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, signal(events.ActionOpenLong, func(s *events.StrategySignal) {
		s.StopLoss = ptr(45)
	}))
	f.svc.HandleEvent(ctx, candle(50, 51, 49, 50))

	f.ledger.tradeErr = errors.New("connection reset")
	f.svc.HandleEvent(ctx, candle(49, 49, 44, 44.5))

	// Accepted weak consistency: memory and mirror converge, ledger is stale.
	assert.Nil(t, f.slotState(t).Position)
	assert.Empty(t, f.mirror.positions)
	assert.Empty(t, f.ledger.trades)

	require.Len(t, f.bus.published, 2)
}

func TestEngineIgnoresItsOwnNotices(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.svc.HandleEvent(ctx, &events.OrderExecution{Envelope: events.NewEnvelope(events.TypeOrderExecution)})
	f.svc.HandleEvent(ctx, &events.PositionState{Envelope: events.NewEnvelope(events.TypePositionState)})
	f.svc.HandleEvent(ctx, &events.TradeTerminal{Envelope: events.NewEnvelope(events.TypeTradeTerminal)})

	assert.Empty(t, f.svc.state)
	assert.Empty(t, f.bus.published)
}

func TestRunProcessesStreamInOrder(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := f.bus.Subscribe(ctx)
	require.NoError(t, err)
	_ = stream

	f.bus.stream <- signal(events.ActionOpenLong)
	f.bus.stream <- candle(50, 55, 49, 52)
	close(f.bus.stream)

	err = f.svc.Run(ctx)
	require.NoError(t, err)
	cancel()

	st := f.slotState(t)
	require.NotNil(t, st.Position)
	assert.Equal(t, 50.0, st.Position.EntryPrice)
}
