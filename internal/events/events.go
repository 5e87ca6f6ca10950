// Package events describes the stock change feed emitted after committed
// reservations, releases and order deletions.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names a stock change.
type Type string

const (
	TypeStockReserved Type = "stock.reserved"
	TypeStockReleased Type = "stock.released"
	TypeOrderDeleted  Type = "order.deleted"
)

// Event is a single committed stock change. Stock carries the product stock
// after the change and is always encoded, so a sold-out product reads as 0.
// It is zero for order deletions.
type Event struct {
	ID         string    `json:"event_id"`
	Type       Type      `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	OrderID    int64     `json:"order_id"`
	DetailID   int64     `json:"detail_id,omitempty"`
	ProductID  int64     `json:"product_id,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	Stock      int       `json:"stock"`
}

// New returns an event of the given type with a fresh ID and timestamp.
func New(t Type, orderID int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		OrderID:    orderID,
	}
}

// Publisher delivers events. Implementations must not block the caller on
// slow downstreams and must never fail the operation that produced the
// event.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) {}
