package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType enumerates the ledger's observable events. Events are
// informational: the engine never consumes its own events.
type EventType string

const (
	EventPriceUpdated         EventType = "price_updated"
	EventBetPlaced            EventType = "bet_placed"
	EventBetClaimed           EventType = "bet_claimed"
	EventOracleRotated        EventType = "oracle_rotated"
	EventOwnershipTransferred EventType = "ownership_transferred"
	EventFundsWithdrawn       EventType = "funds_withdrawn"
)

// Event is a single ledger notification. Fields not relevant to the event
// type are left at their zero value and omitted from the JSON encoding.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	At   time.Time `json:"at"`

	User   *common.Address `json:"user,omitempty"`
	Asset  *Asset          `json:"asset,omitempty"`
	Day    *DayIndex       `json:"day,omitempty"`
	Stake  uint64          `json:"stake,omitempty"`
	Price  uint64          `json:"price,omitempty"`
	From   *common.Address `json:"from,omitempty"`
	To     *common.Address `json:"to,omitempty"`
	Amount uint64          `json:"amount,omitempty"`
}

// NewEvent creates an Event of the given type stamped with a fresh ID.
func NewEvent(typ EventType, at time.Time) Event {
	return Event{
		ID:   uuid.New().String(),
		Type: typ,
		At:   at.UTC(),
	}
}

// EventPublisher delivers ledger events to external observers. Publishing is
// best-effort: a delivery failure must never fail the ledger operation that
// produced the event.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt Event)
}
