// Package bus implements the strategy event channel on Redis pub/sub. The
// subscriber blocks on the connection instead of polling; go-redis owns
// reconnects with backoff, so a dropped connection resumes without the
// consumer loop terminating.
package bus

import (
	"context"
	"errors"

	"main/internal/domain/events"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 256

// Bus publishes and subscribes JSON event envelopes on a single topic.
type Bus struct {
	client *redis.Client
	topic  string
	logger *logrus.Entry
}

// New wraps an established Redis client. An empty topic selects the
// well-known strategy events channel.
func New(client *redis.Client, topic string, logger *logrus.Logger) *Bus {
	if topic == "" {
		topic = events.ChannelStrategyEvents
	}
	return &Bus{
		client: client,
		topic:  topic,
		logger: logger.WithFields(logrus.Fields{"component": "bus", "topic": topic}),
	}
}

// Publish marshals and publishes a single event.
func (b *Bus) Publish(ctx context.Context, event events.Event) error {
	data, err := events.Encode(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.topic, data).Err()
}

// Subscribe opens the topic subscription and returns a stream of decoded
// events. Malformed payloads are dropped after logging; unknown event types
// are a silent no-op. The stream closes when the context is cancelled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan events.Event, error) {
	sub := b.client.Subscribe(ctx, b.topic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan events.Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := events.Decode([]byte(msg.Payload))
				if err != nil {
					if errors.Is(err, events.ErrUnknownEvent) {
						b.logger.WithError(err).Debug("skipping unrecognized event")
					} else {
						b.logger.WithError(err).Warn("dropping malformed payload")
					}
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
