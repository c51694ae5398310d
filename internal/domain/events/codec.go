package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent marks a payload whose discriminator is not recognized.
// Unknown types are a forward-compatible no-op for consumers, not a failure.
var ErrUnknownEvent = errors.New("unknown event type")

// Decode parses a raw channel payload into its tagged variant.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var event Event
	switch env.EventType {
	case TypeStrategySignal:
		event = &StrategySignal{}
	case TypeCandleUpdate:
		event = &CandleUpdate{}
	case TypeSetTPSL:
		event = &SetTPSL{}
	case TypeOrderExecution:
		event = &OrderExecution{}
	case TypePositionState:
		event = &PositionState{}
	case TypeTradeTerminal:
		event = &TradeTerminal{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.EventType)
	}

	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
	}
	return event, nil
}

// Encode marshals an event for publication.
func Encode(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.Type(), err)
	}
	return data, nil
}
