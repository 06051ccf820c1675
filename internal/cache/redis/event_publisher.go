package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cipherbet/oracled/internal/domain"
)

// EventStreamName is the durable Redis stream that keeps an ordered,
// replayable record of every ledger event.
const EventStreamName = "stream:events"

// EventPublisher implements domain.EventPublisher on top of the SignalBus.
// Each event is published to a per-type Pub/Sub channel ("events:<type>")
// for live consumers such as the WebSocket hub, and appended to a capped
// stream for consumers that need catch-up reads.
type EventPublisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewEventPublisher creates an EventPublisher over the given bus.
func NewEventPublisher(bus domain.SignalBus, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		bus:    bus,
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishEvent serializes the event and fans it out. Delivery is best effort:
// failures are logged and swallowed so that ledger operations never fail
// because an observer is unreachable.
func (p *EventPublisher) PublishEvent(ctx context.Context, evt domain.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.ErrorContext(ctx, "event marshal failed",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	channel := "events:" + string(evt.Type)
	if err := p.bus.Publish(ctx, channel, payload); err != nil {
		p.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}

	if err := p.bus.StreamAppend(ctx, EventStreamName, payload); err != nil {
		p.logger.WarnContext(ctx, "event stream append failed",
			slog.String("stream", EventStreamName),
			slog.String("error", err.Error()),
		)
	}
}

var _ domain.EventPublisher = (*EventPublisher)(nil)
