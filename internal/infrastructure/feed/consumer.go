// Package feed ingests market candles from a RabbitMQ fanout exchange and
// republishes them as tick events on the strategy channel, keeping the
// per-slot candle history for the gateway along the way.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"main/internal/domain/events"
	"main/internal/domain/interfaces"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// History persists a candle into the readable history before the tick is
// published on the channel.
type History interface {
	AppendCandle(ctx context.Context, candle *events.CandleUpdate) error
}

// Config describes the AMQP source and the strategy the candles are for.
type Config struct {
	URL        string
	Exchange   string
	Prefetch   int
	StrategyID string
}

// CandlePayload is the wire shape published by exchange connector processes.
type CandlePayload struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"tf"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Timestamp float64 `json:"timestamp"`
}

// Consumer subscribes to the candles fanout exchange and forwards each
// candle to the history store and the event bus.
type Consumer struct {
	cfg     Config
	bus     interfaces.EventBus
	history History
	logger  *logrus.Entry

	conn    *amqp.Connection
	channel *amqp.Channel
	wg      sync.WaitGroup
}

// NewConsumer prepares a consumer for the given configuration.
func NewConsumer(cfg Config, bus interfaces.EventBus, history History, logger *logrus.Logger) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if cfg.StrategyID == "" {
		return nil, errors.New("strategy id is required")
	}
	return &Consumer{
		cfg:     cfg,
		bus:     bus,
		history: history,
		logger:  logger.WithField("component", "feed"),
	}, nil
}

// Start establishes the AMQP connection and begins consuming candles.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	c.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		c.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.channel = ch

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		c.Close()
		return fmt.Errorf("declare exchange %s: %w", c.cfg.Exchange, err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		c.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", c.cfg.Exchange, false, nil); err != nil {
		c.Close()
		return fmt.Errorf("bind queue %s: %w", queue.Name, err)
	}
	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		c.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		c.Close()
		return fmt.Errorf("start consume: %w", err)
	}

	c.wg.Add(1)
	go c.consumeLoop(ctx, deliveries)

	c.logger.Infof("candle feed started: exchange=%s strategy=%s", c.cfg.Exchange, c.cfg.StrategyID)
	return nil
}

// Close releases the AMQP resources and waits for the consume loop.
func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.wg.Wait()
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			if err := c.handleDelivery(ctx, delivery.Body); err != nil {
				c.logger.WithError(err).Warn("failed to process candle")
				_ = delivery.Nack(false, true)
				continue
			}
			if err := delivery.Ack(false); err != nil {
				c.logger.WithError(err).Warn("failed to ack delivery")
			}
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, body []byte) error {
	var payload CandlePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.Symbol == "" || payload.Timeframe == "" {
		return errors.New("candle payload missing symbol or timeframe")
	}

	candle := &events.CandleUpdate{
		Envelope:   events.NewEnvelope(events.TypeCandleUpdate),
		StrategyID: c.cfg.StrategyID,
		Symbol:     payload.Symbol,
		Timeframe:  payload.Timeframe,
		Open:       payload.Open,
		High:       payload.High,
		Low:        payload.Low,
		Close:      payload.Close,
		Volume:     payload.Volume,
	}
	if payload.Timestamp > 0 {
		candle.Timestamp = payload.Timestamp
	}

	if c.history != nil {
		if err := c.history.AppendCandle(ctx, candle); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	if err := c.bus.Publish(ctx, candle); err != nil {
		return fmt.Errorf("publish candle: %w", err)
	}
	return nil
}
