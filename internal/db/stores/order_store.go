package storesdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"caravel/internal/orders"
)

// OrderStore persists orders in Postgres. Only the saga worker moves an
// order out of pending, through Complete.
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore constructs an OrderStore backed by Postgres.
func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// NewOrderStoreWithSchema initializes the schema then returns the store.
func NewOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*OrderStore, error) {
	store := NewOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the orders table if it does not exist.
func (s *OrderStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			amount DOUBLE PRECISION NOT NULL CHECK (amount >= 0),
			status TEXT NOT NULL,
			transaction_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// Insert persists a new order. The order id must be unused.
func (s *OrderStore) Insert(ctx context.Context, order orders.Order) error {
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, customer_id, product_id, quantity, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO NOTHING`,
		order.OrderID, order.CustomerID, order.ProductID, order.Quantity, order.Amount, string(order.Status), createdAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", orders.ErrOrderExists, order.OrderID)
	}
	return nil
}

// FindByID returns the order by business id.
func (s *OrderStore) FindByID(ctx context.Context, orderID string) (orders.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, customer_id, product_id, quantity, amount, status, COALESCE(transaction_id, ''), created_at
		FROM orders
		WHERE order_id = $1`,
		orderID,
	)
	return scanOrder(row, orderID)
}

// ListByCustomer returns the customer's orders, newest first.
func (s *OrderStore) ListByCustomer(ctx context.Context, customerID string) ([]orders.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, customer_id, product_id, quantity, amount, status, COALESCE(transaction_id, ''), created_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC`,
		customerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []orders.Order
	for rows.Next() {
		var o orders.Order
		var status string
		if err := rows.Scan(&o.OrderID, &o.CustomerID, &o.ProductID, &o.Quantity, &o.Amount, &status, &o.TransactionID, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Status = orders.OrderStatus(status)
		result = append(result, o)
	}
	return result, rows.Err()
}

// Complete attempts the atomic pending -> completed transition, attaching the
// transaction id. When the order is no longer pending it reports whether the
// same transaction already completed it (a no-op continuation) or a different
// outcome holds the order (a conflict).
func (s *OrderStore) Complete(ctx context.Context, orderID, transactionID string) (orders.Order, orders.Completion, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, transaction_id = $2, updated_at = NOW()
		WHERE order_id = $1 AND status = $4`,
		orderID, transactionID, string(orders.OrderStatusCompleted), string(orders.OrderStatusPending),
	)
	if err != nil {
		return orders.Order{}, 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return orders.Order{}, 0, err
	}

	order, err := s.FindByID(ctx, orderID)
	if err != nil {
		return orders.Order{}, 0, err
	}

	if affected == 1 {
		return order, orders.CompletionApplied, nil
	}
	if order.Status == orders.OrderStatusCompleted && order.TransactionID == transactionID {
		return order, orders.CompletionRepeat, nil
	}
	return order, orders.CompletionConflict, nil
}

func scanOrder(row *sql.Row, orderID string) (orders.Order, error) {
	var o orders.Order
	var status string
	if err := row.Scan(&o.OrderID, &o.CustomerID, &o.ProductID, &o.Quantity, &o.Amount, &status, &o.TransactionID, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, orderID)
		}
		return orders.Order{}, err
	}
	o.Status = orders.OrderStatus(status)
	return o, nil
}
