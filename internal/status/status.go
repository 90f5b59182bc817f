// Package status fans order status changes out to interested parties:
// a Redis snapshot-and-stream store and connected websocket clients.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"caravel/internal/orders"
)

// Event describes one order status change.
type Event struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transactionId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventFromOrder builds the status event for the order's current state.
func EventFromOrder(order orders.Order, at time.Time) Event {
	return Event{
		Type:          "order_status",
		OrderID:       order.OrderID,
		Status:        string(order.Status),
		TransactionID: order.TransactionID,
		Timestamp:     at.UTC(),
	}
}

// Store persists status events.
type Store interface {
	Publish(ctx context.Context, event Event) error
}

// Broadcaster pushes messages to connected clients.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Fanout writes an event to every store, then broadcasts it. Store failures
// are collected so each store still gets a chance to write.
type Fanout struct {
	stores      []Store
	broadcaster Broadcaster
	now         func() time.Time
}

// NewFanout constructs a Fanout over the given stores and broadcaster.
// Either side may be empty.
func NewFanout(broadcaster Broadcaster, stores ...Store) *Fanout {
	return &Fanout{stores: stores, broadcaster: broadcaster, now: time.Now}
}

// NotifyOrderStatus publishes the order's current status everywhere.
func (f *Fanout) NotifyOrderStatus(ctx context.Context, order orders.Order) error {
	event := EventFromOrder(order, f.now())

	var errs []error
	for _, store := range f.stores {
		if err := store.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	if f.broadcaster != nil {
		data, err := json.Marshal(event)
		if err != nil {
			errs = append(errs, err)
		} else {
			f.broadcaster.Broadcast(data)
		}
	}

	return errors.Join(errs...)
}
