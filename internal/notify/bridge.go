package notify

import (
	"context"
	"fmt"

	"github.com/cipherbet/oracled/internal/domain"
)

// EventBridge adapts ledger events to operator notifications. It implements
// domain.EventPublisher so it can sit alongside the signal-bus publisher;
// delivery failures are already logged inside the Notifier.
type EventBridge struct {
	notifier *Notifier
}

// NewEventBridge creates an EventBridge over the given notifier.
func NewEventBridge(notifier *Notifier) *EventBridge {
	return &EventBridge{notifier: notifier}
}

// PublishEvent formats the event and hands it to the notifier, which applies
// the configured event-type filter.
func (b *EventBridge) PublishEvent(ctx context.Context, evt domain.Event) {
	title, message := formatEvent(evt)
	_ = b.notifier.Notify(ctx, string(evt.Type), title, message)
}

// formatEvent renders a short human-readable summary per event type.
func formatEvent(evt domain.Event) (title, message string) {
	switch evt.Type {
	case domain.EventPriceUpdated:
		title = "Price posted"
		if evt.Asset != nil && evt.Day != nil {
			message = fmt.Sprintf("%s day %d: %d", evt.Asset, *evt.Day, evt.Price)
		}
	case domain.EventBetPlaced:
		title = "Bet placed"
		if evt.User != nil && evt.Asset != nil && evt.Day != nil {
			message = fmt.Sprintf("%s on %s for day %d, stake %d", evt.User.Hex(), evt.Asset, *evt.Day, evt.Stake)
		}
	case domain.EventBetClaimed:
		title = "Bet claimed"
		if evt.User != nil && evt.Asset != nil && evt.Day != nil {
			message = fmt.Sprintf("%s settled %s day %d", evt.User.Hex(), evt.Asset, *evt.Day)
		}
	case domain.EventOracleRotated:
		title = "Oracle rotated"
		if evt.From != nil && evt.To != nil {
			message = fmt.Sprintf("%s -> %s", evt.From.Hex(), evt.To.Hex())
		}
	case domain.EventOwnershipTransferred:
		title = "Ownership transferred"
		if evt.From != nil && evt.To != nil {
			message = fmt.Sprintf("%s -> %s", evt.From.Hex(), evt.To.Hex())
		}
	case domain.EventFundsWithdrawn:
		title = "Funds withdrawn"
		if evt.To != nil {
			message = fmt.Sprintf("%d to %s", evt.Amount, evt.To.Hex())
		}
	default:
		title = string(evt.Type)
	}
	if message == "" {
		message = "event " + evt.ID
	}
	return title, message
}

var _ domain.EventPublisher = (*EventBridge)(nil)
