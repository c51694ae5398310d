// Package exchange wraps the Binance REST API for historical candle
// backfill. Requests are rate limited so a large seed does not trip the
// venue's request weight limits.
package exchange

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"
)

// Candle is a normalized OHLCV bar. Times are epoch seconds.
type Candle struct {
	Symbol    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	OpenTime  float64
	CloseTime float64
}

// Client fetches historical klines from Binance.
type Client struct {
	api     *binance.Client
	limiter *rate.Limiter
}

// NewClient builds a client. Public kline endpoints work with empty keys.
func NewClient(apiKey, secretKey string, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &Client{
		api:     binance.NewClient(apiKey, secretKey),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Candles fetches up to limit most recent klines for a symbol/interval.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	klines, err := c.api.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, kline := range klines {
		candle, err := normalizeKline(symbol, kline)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func normalizeKline(symbol string, kline *binance.Kline) (Candle, error) {
	fields := map[string]string{
		"open":   kline.Open,
		"high":   kline.High,
		"low":    kline.Low,
		"close":  kline.Close,
		"volume": kline.Volume,
	}
	parsed := make(map[string]float64, len(fields))
	for name, raw := range fields {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("parse kline %s %q: %w", name, raw, err)
		}
		parsed[name] = value
	}
	return Candle{
		Symbol:    symbol,
		Open:      parsed["open"],
		High:      parsed["high"],
		Low:       parsed["low"],
		Close:     parsed["close"],
		Volume:    parsed["volume"],
		OpenTime:  float64(kline.OpenTime) / 1e3,
		CloseTime: float64(kline.CloseTime) / 1e3,
	}, nil
}
