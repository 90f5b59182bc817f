// Package saga consumes transaction messages and drives the remaining
// fulfillment steps: record the transaction, complete the order, and
// decrement product stock. Delivery is at-least-once, so every step is
// idempotent and a redelivered message continues where the last attempt
// stopped.
package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"caravel/internal/orders"
	"caravel/internal/payments"
)

// Delivery is one queued message plus its acknowledgement controls.
type Delivery interface {
	Body() []byte
	Retries() int
	Ack() error
	Reject() error
}

// Republisher puts a message back on the queue with its retry count.
type Republisher interface {
	Republish(ctx context.Context, body []byte, retries int) error
}

// TransactionStore records transactions. Insert reports whether the
// transaction id was newly stored.
type TransactionStore interface {
	Insert(ctx context.Context, txn payments.Transaction) (bool, error)
}

// OrderStore moves orders out of pending.
type OrderStore interface {
	Complete(ctx context.Context, orderID, transactionID string) (orders.Order, orders.Completion, error)
}

// ProductStore applies the per-order stock decrement.
type ProductStore interface {
	ApplyOrderDecrement(ctx context.Context, orderID, productID string, quantity int) (bool, error)
}

// StatusNotifier is told when an order reaches a new status. Failures are
// logged, never retried; status fanout is advisory.
type StatusNotifier interface {
	NotifyOrderStatus(ctx context.Context, order orders.Order) error
}

// Journal records messages that leave the saga without completing.
type Journal interface {
	Record(entry Entry) error
}

// Metrics counts saga outcomes.
type Metrics interface {
	MarkProcessed()
	MarkRetried()
	MarkDeadLettered()
	MarkPoison()
}

type noopMetrics struct{}

func (noopMetrics) MarkProcessed()    {}
func (noopMetrics) MarkRetried()      {}
func (noopMetrics) MarkDeadLettered() {}
func (noopMetrics) MarkPoison()       {}

// Config wires a Worker.
type Config struct {
	Transactions TransactionStore
	Orders       OrderStore
	Products     ProductStore
	Republisher  Republisher
	Journal      Journal
	Notifier     StatusNotifier
	Metrics      Metrics

	// MaxRetries bounds republishes per message; a message that has
	// already been retried MaxRetries times is dead-lettered instead.
	MaxRetries int
	// RetryDelay is slept before each republish.
	RetryDelay time.Duration

	Sleep func(ctx context.Context, d time.Duration) error
	Logf  func(format string, args ...any)
}

// Worker processes transaction deliveries one at a time.
type Worker struct {
	cfg Config
}

// NewWorker constructs a Worker, filling in defaults for optional hooks.
func NewWorker(cfg Config) *Worker {
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = orders.SleepWithContext
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Worker{cfg: cfg}
}

// Run handles deliveries until the channel closes or ctx is cancelled.
func (w *Worker) Run(ctx context.Context, deliveries <-chan Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.Handle(ctx, d)
		}
	}
}

// Handle processes one delivery through parse, apply, and the retry or
// dead-letter path. The message always ends acked, rejected, or left
// unacknowledged for broker redelivery.
func (w *Worker) Handle(ctx context.Context, d Delivery) {
	txn, err := parseTransaction(d.Body())
	if err != nil {
		// Retrying a message that cannot be parsed reproduces the same
		// failure, so it is journaled and dropped immediately.
		w.cfg.Logf("saga: poison message: %v", err)
		w.journal(Entry{
			Kind:          EntryPoison,
			TransactionID: txn.TransactionID,
			OrderID:       txn.OrderID,
			Reason:        err.Error(),
			Body:          json.RawMessage(d.Body()),
		})
		w.cfg.Metrics.MarkPoison()
		if rejErr := d.Reject(); rejErr != nil {
			w.cfg.Logf("saga: reject poison message: %v", rejErr)
		}
		return
	}

	if err := w.apply(ctx, txn); err != nil {
		w.fail(ctx, d, txn, err)
		return
	}

	if err := d.Ack(); err != nil {
		w.cfg.Logf("saga: ack %s: %v", txn.TransactionID, err)
		return
	}
	w.cfg.Metrics.MarkProcessed()
}

// apply runs the saga steps for txn. Each step tolerates having already
// run for this transaction, so apply as a whole is safe to repeat.
func (w *Worker) apply(ctx context.Context, txn payments.Transaction) error {
	created, err := w.cfg.Transactions.Insert(ctx, txn)
	if err != nil {
		return fmt.Errorf("record transaction %s: %w", txn.TransactionID, err)
	}
	if !created {
		w.cfg.Logf("saga: transaction %s already recorded, continuing", txn.TransactionID)
	}

	order, completion, err := w.cfg.Orders.Complete(ctx, txn.OrderID, txn.TransactionID)
	if err != nil {
		return fmt.Errorf("complete order %s: %w", txn.OrderID, err)
	}
	if completion == orders.CompletionConflict {
		// The order was resolved by something else. Applying stock for
		// it now would be wrong, so the message is consumed as-is.
		w.cfg.Logf("saga: order %s is %s under transaction %q, skipping %s",
			order.OrderID, order.Status, order.TransactionID, txn.TransactionID)
		return nil
	}

	applied, err := w.cfg.Products.ApplyOrderDecrement(ctx, order.OrderID, order.ProductID, order.Quantity)
	if err != nil {
		return fmt.Errorf("decrement stock for order %s: %w", order.OrderID, err)
	}
	if !applied {
		w.cfg.Logf("saga: stock for order %s already decremented, continuing", order.OrderID)
	}

	if w.cfg.Notifier != nil {
		if err := w.cfg.Notifier.NotifyOrderStatus(ctx, order); err != nil {
			w.cfg.Logf("saga: notify status for order %s: %v", order.OrderID, err)
		}
	}
	return nil
}

// fail routes a message whose apply attempt errored: republish with an
// incremented retry count while the budget lasts, dead-letter after.
func (w *Worker) fail(ctx context.Context, d Delivery, txn payments.Transaction, applyErr error) {
	retries := d.Retries()
	w.cfg.Logf("saga: transaction %s attempt %d failed: %v", txn.TransactionID, retries+1, applyErr)

	if retries >= w.cfg.MaxRetries {
		w.cfg.Logf("saga: transaction %s exhausted %d retries, dead-lettering", txn.TransactionID, w.cfg.MaxRetries)
		w.journal(Entry{
			Kind:          EntryDeadLetter,
			TransactionID: txn.TransactionID,
			OrderID:       txn.OrderID,
			Reason:        applyErr.Error(),
			Body:          json.RawMessage(d.Body()),
		})
		w.cfg.Metrics.MarkDeadLettered()
		if err := d.Reject(); err != nil {
			w.cfg.Logf("saga: reject %s: %v", txn.TransactionID, err)
		}
		return
	}

	if err := w.cfg.Sleep(ctx, w.cfg.RetryDelay); err != nil {
		// Shutting down. The message stays unacknowledged and the broker
		// redelivers it to the next consumer.
		return
	}
	if err := w.cfg.Republisher.Republish(ctx, d.Body(), retries+1); err != nil {
		w.cfg.Logf("saga: republish %s: %v", txn.TransactionID, err)
		return
	}
	if err := d.Ack(); err != nil {
		w.cfg.Logf("saga: ack republished %s: %v", txn.TransactionID, err)
		return
	}
	w.cfg.Metrics.MarkRetried()
}

func (w *Worker) journal(entry Entry) {
	if w.cfg.Journal == nil {
		return
	}
	if err := w.cfg.Journal.Record(entry); err != nil {
		w.cfg.Logf("saga: journal %s entry: %v", entry.Kind, err)
	}
}

func parseTransaction(body []byte) (payments.Transaction, error) {
	var txn payments.Transaction
	if err := json.Unmarshal(body, &txn); err != nil {
		return payments.Transaction{}, fmt.Errorf("parse transaction message: %w", err)
	}
	if txn.TransactionID == "" || txn.OrderID == "" {
		return txn, fmt.Errorf("transaction message missing transactionId or orderId")
	}
	return txn, nil
}
