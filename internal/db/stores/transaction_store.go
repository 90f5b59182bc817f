package storesdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"caravel/internal/payments"
)

// TransactionStore persists transactions in Postgres. The transaction id
// primary key is the saga's idempotency anchor: inserting an id twice is a
// detected no-op, not an error.
type TransactionStore struct {
	db *sql.DB
}

// NewTransactionStore constructs a TransactionStore backed by Postgres.
func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// NewTransactionStoreWithSchema initializes the schema then returns the store.
func NewTransactionStoreWithSchema(ctx context.Context, db *sql.DB) (*TransactionStore, error) {
	store := NewTransactionStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the transactions table if it does not exist.
func (s *TransactionStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			transaction_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL CHECK (amount >= 0),
			payment_method TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// Insert persists the transaction. Returns whether a new record was created;
// false means the transaction id was already stored.
func (s *TransactionStore) Insert(ctx context.Context, txn payments.Transaction) (bool, error) {
	if txn.TransactionID == "" {
		return false, fmt.Errorf("transaction id required")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (transaction_id, order_id, customer_id, product_id, amount, payment_method, payment_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id) DO NOTHING`,
		txn.TransactionID, txn.OrderID, txn.CustomerID, txn.ProductID, txn.Amount, string(txn.PaymentMethod), string(txn.PaymentStatus), txn.Timestamp,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// FindByID returns the transaction by id.
func (s *TransactionStore) FindByID(ctx context.Context, transactionID string) (payments.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, order_id, customer_id, product_id, amount, payment_method, payment_status, created_at
		FROM transactions
		WHERE transaction_id = $1`,
		transactionID,
	)
	var txn payments.Transaction
	var method, status string
	if err := row.Scan(&txn.TransactionID, &txn.OrderID, &txn.CustomerID, &txn.ProductID, &txn.Amount, &method, &status, &txn.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payments.Transaction{}, fmt.Errorf("transaction not found: %s", transactionID)
		}
		return payments.Transaction{}, err
	}
	txn.PaymentMethod = payments.PaymentMethod(method)
	txn.PaymentStatus = payments.PaymentStatus(status)
	return txn, nil
}
