// Package ledger is the durable trade ledger on Postgres: an append-only
// record of filled orders and closed trades, queried by the API layer and
// never mutated by it.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"main/internal/domain/entity/execution"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

const schemaDDL = `
	CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		trade_id UUID NOT NULL UNIQUE,
		strategy_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		qty DOUBLE PRECISION NOT NULL,
		pnl DOUBLE PRECISION NOT NULL,
		entry_time TIMESTAMPTZ,
		exit_time TIMESTAMPTZ,
		metadata JSONB
	);
	CREATE INDEX IF NOT EXISTS trades_strategy_symbol_idx ON trades (strategy_id, symbol);

	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		qty DOUBLE PRECISION NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS orders_strategy_idx ON orders (strategy_id);`

// EnsureSchema creates the ledger tables if they do not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

const insertTradeQuery = `
	INSERT INTO trades (trade_id, strategy_id, symbol, side, entry_price, exit_price, qty, pnl, entry_time, exit_time, metadata)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,to_timestamp($9),to_timestamp($10),$11)
	ON CONFLICT (trade_id) DO NOTHING`

// SaveTrade appends a closed trade. Retries are safe: rows deduplicate on
// the stable trade id.
func (r *Repository) SaveTrade(ctx context.Context, trade *execution.ClosedTrade) error {
	if trade == nil {
		return errors.New("nil trade")
	}
	metadata, err := json.Marshal(map[string]string{"reason": string(trade.Reason)})
	if err != nil {
		return fmt.Errorf("marshal trade metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, insertTradeQuery,
		trade.TradeID,
		trade.StrategyID,
		trade.Symbol,
		trade.Side,
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Qty,
		trade.PnL,
		trade.EntryTime,
		trade.ExitTime,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

const upsertOrderQuery = `
	INSERT INTO orders (order_id, strategy_id, symbol, side, price, qty, type, status, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,to_timestamp($9))
	ON CONFLICT (order_id) DO UPDATE SET
		price = EXCLUDED.price,
		qty = EXCLUDED.qty,
		status = EXCLUDED.status`

// SaveOrder records an order fill, upserting on the order id.
func (r *Repository) SaveOrder(ctx context.Context, record *execution.OrderRecord) error {
	if record == nil {
		return errors.New("nil order record")
	}
	createdAt := record.CreatedAt
	if createdAt == 0 {
		createdAt = float64(time.Now().UnixNano()) / 1e9
	}
	_, err := r.pool.Exec(ctx, upsertOrderQuery,
		record.OrderID,
		record.StrategyID,
		record.Symbol,
		record.Side,
		record.Price,
		record.Qty,
		record.Kind,
		record.Status,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	return nil
}

const selectTradesQuery = `
	SELECT trade_id, strategy_id, symbol, side, entry_price, exit_price, qty, pnl,
	       extract(epoch FROM entry_time), extract(epoch FROM exit_time), metadata
	FROM trades
	WHERE strategy_id = $1`

// GetTrades returns closed trades for a strategy, optionally filtered by
// symbol, oldest first.
func (r *Repository) GetTrades(ctx context.Context, strategyID, symbol string) ([]execution.ClosedTrade, error) {
	query := selectTradesQuery
	args := []interface{}{strategyID}
	if symbol != "" {
		query += " AND symbol = $2"
		args = append(args, symbol)
	}
	query += " ORDER BY exit_time"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select trades: %w", err)
	}
	defer rows.Close()

	var trades []execution.ClosedTrade
	for rows.Next() {
		var trade execution.ClosedTrade
		var entryTime, exitTime *float64
		var metadata []byte
		if err := rows.Scan(
			&trade.TradeID,
			&trade.StrategyID,
			&trade.Symbol,
			&trade.Side,
			&trade.EntryPrice,
			&trade.ExitPrice,
			&trade.Qty,
			&trade.PnL,
			&entryTime,
			&exitTime,
			&metadata,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if entryTime != nil {
			trade.EntryTime = *entryTime
		}
		if exitTime != nil {
			trade.ExitTime = *exitTime
		}
		if len(metadata) > 0 {
			var meta map[string]string
			if err := json.Unmarshal(metadata, &meta); err == nil {
				trade.Reason = execution.CloseReason(meta["reason"])
			}
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

const selectOrdersQuery = `
	SELECT order_id, strategy_id, symbol, side, price, qty, type, status, extract(epoch FROM created_at)
	FROM orders
	WHERE strategy_id = $1
	ORDER BY created_at`

// GetOrders returns the order records for a strategy, oldest first.
func (r *Repository) GetOrders(ctx context.Context, strategyID string) ([]execution.OrderRecord, error) {
	rows, err := r.pool.Query(ctx, selectOrdersQuery, strategyID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var records []execution.OrderRecord
	for rows.Next() {
		var record execution.OrderRecord
		var createdAt *float64
		if err := rows.Scan(
			&record.OrderID,
			&record.StrategyID,
			&record.Symbol,
			&record.Side,
			&record.Price,
			&record.Qty,
			&record.Kind,
			&record.Status,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if createdAt != nil {
			record.CreatedAt = *createdAt
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
