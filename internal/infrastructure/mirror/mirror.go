// Package mirror implements the shared state mirror on Redis: per-strategy
// hashes of the current orders and positions, plus the candle history and
// strategy metadata consumed by the API gateway. The engine is the only
// writer of order/position keys; every write is an idempotent set-or-delete.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"main/internal/domain/entity/execution"
	"main/internal/domain/events"

	"github.com/redis/go-redis/v9"
)

const defaultHistoryLimit = 1000

// Mirror exposes the Redis key layout to the engine (writes) and the
// gateway (reads).
type Mirror struct {
	client       *redis.Client
	historyLimit int64
}

// New wraps an established Redis client.
func New(client *redis.Client) *Mirror {
	return &Mirror{client: client, historyLimit: defaultHistoryLimit}
}

func ordersKey(strategyID string) string {
	return fmt.Sprintf("state:%s:orders", strategyID)
}

func positionsKey(strategyID string) string {
	return fmt.Sprintf("state:%s:positions", strategyID)
}

func metaKey(strategyID string) string {
	return fmt.Sprintf("strategy:%s:meta", strategyID)
}

func candlesKey(strategyID, symbol, timeframe string) string {
	return fmt.Sprintf("strategy:%s:candles:%s:%s", strategyID, symbol, timeframe)
}

// SetOrder writes the pending order for its symbol.
func (m *Mirror) SetOrder(ctx context.Context, order *execution.PendingOrder) error {
	if order == nil {
		return errors.New("nil order")
	}
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	return m.client.HSet(ctx, ordersKey(order.StrategyID), order.Symbol, data).Err()
}

// DeleteOrder removes the order key for the slot.
func (m *Mirror) DeleteOrder(ctx context.Context, slot execution.Slot) error {
	return m.client.HDel(ctx, ordersKey(slot.StrategyID), slot.Symbol).Err()
}

// SetPosition writes the open position for its symbol.
func (m *Mirror) SetPosition(ctx context.Context, position *execution.Position) error {
	if position == nil {
		return errors.New("nil position")
	}
	data, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	return m.client.HSet(ctx, positionsKey(position.StrategyID), position.Symbol, data).Err()
}

// DeletePosition removes the position key for the slot.
func (m *Mirror) DeletePosition(ctx context.Context, slot execution.Slot) error {
	return m.client.HDel(ctx, positionsKey(slot.StrategyID), slot.Symbol).Err()
}

// Order reads the current pending order for a slot. Absence is (nil, nil).
func (m *Mirror) Order(ctx context.Context, slot execution.Slot) (*execution.PendingOrder, error) {
	data, err := m.client.HGet(ctx, ordersKey(slot.StrategyID), slot.Symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	order := &execution.PendingOrder{}
	if err := json.Unmarshal(data, order); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return order, nil
}

// Position reads the current position for a slot. Absence is (nil, nil).
func (m *Mirror) Position(ctx context.Context, slot execution.Slot) (*execution.Position, error) {
	data, err := m.client.HGet(ctx, positionsKey(slot.StrategyID), slot.Symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	position := &execution.Position{}
	if err := json.Unmarshal(data, position); err != nil {
		return nil, fmt.Errorf("unmarshal position: %w", err)
	}
	return position, nil
}

// OrderSymbols lists symbols with a pending order for the strategy.
func (m *Mirror) OrderSymbols(ctx context.Context, strategyID string) (map[string]struct{}, error) {
	return m.symbolSet(ctx, ordersKey(strategyID))
}

// PositionSymbols lists symbols with an open position for the strategy.
func (m *Mirror) PositionSymbols(ctx context.Context, strategyID string) (map[string]struct{}, error) {
	return m.symbolSet(ctx, positionsKey(strategyID))
}

func (m *Mirror) symbolSet(ctx context.Context, key string) (map[string]struct{}, error) {
	symbols, err := m.client.HKeys(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		set[symbol] = struct{}{}
	}
	return set, nil
}

// AppendCandle appends a tick to the capped per-slot candle history.
func (m *Mirror) AppendCandle(ctx context.Context, candle *events.CandleUpdate) error {
	data, err := events.Encode(candle)
	if err != nil {
		return err
	}
	key := candlesKey(candle.StrategyID, candle.Symbol, candle.Timeframe)
	pipe := m.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -m.historyLimit, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// Candles returns up to limit most recent candles for the slot/timeframe.
func (m *Mirror) Candles(ctx context.Context, strategyID, symbol, timeframe string, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := m.client.LRange(ctx, candlesKey(strategyID, symbol, timeframe), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(raw))
	for _, item := range raw {
		out = append(out, json.RawMessage(item))
	}
	return out, nil
}

// LastClose reads the close price of the newest candle in the history, zero
// when the history is empty.
func (m *Mirror) LastClose(ctx context.Context, strategyID, symbol, timeframe string) (float64, error) {
	raw, err := m.client.LIndex(ctx, candlesKey(strategyID, symbol, timeframe), -1).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var candle events.CandleUpdate
	if err := json.Unmarshal([]byte(raw), &candle); err != nil {
		return 0, fmt.Errorf("unmarshal candle: %w", err)
	}
	return candle.Close, nil
}

// RegisterStrategy upserts the strategy metadata hash.
func (m *Mirror) RegisterStrategy(ctx context.Context, meta *execution.StrategyMeta) error {
	if meta == nil || meta.StrategyID == "" {
		return errors.New("strategy id is required")
	}
	symbols, err := json.Marshal(meta.Symbols)
	if err != nil {
		return fmt.Errorf("marshal symbols: %w", err)
	}
	timeframes, err := json.Marshal(meta.Timeframes)
	if err != nil {
		return fmt.Errorf("marshal timeframes: %w", err)
	}
	fields := map[string]interface{}{
		"strategy_id": meta.StrategyID,
		"name":        meta.Name,
		"description": meta.Description,
		"symbols":     symbols,
		"timeframes":  timeframes,
		"is_active":   meta.IsActive,
	}
	return m.client.HSet(ctx, metaKey(meta.StrategyID), fields).Err()
}

// Strategies scans all registered strategy metadata hashes.
func (m *Mirror) Strategies(ctx context.Context) ([]execution.StrategyMeta, error) {
	var metas []execution.StrategyMeta
	iter := m.client.Scan(ctx, 0, "strategy:*:meta", 0).Iterator()
	for iter.Next(ctx) {
		fields, err := m.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		meta := execution.StrategyMeta{
			StrategyID:  fields["strategy_id"],
			Name:        fields["name"],
			Description: fields["description"],
			IsActive:    fields["is_active"] == "1" || fields["is_active"] == "true",
		}
		if raw := fields["symbols"]; raw != "" {
			_ = json.Unmarshal([]byte(raw), &meta.Symbols)
		}
		if raw := fields["timeframes"]; raw != "" {
			_ = json.Unmarshal([]byte(raw), &meta.Timeframes)
		}
		metas = append(metas, meta)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return metas, nil
}
