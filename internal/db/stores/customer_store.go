package storesdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"caravel/internal/orders"
)

// CustomerStore persists customers in Postgres.
type CustomerStore struct {
	db *sql.DB
}

// NewCustomerStore constructs a CustomerStore backed by Postgres.
func NewCustomerStore(db *sql.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

// NewCustomerStoreWithSchema initializes the schema then returns the store.
func NewCustomerStoreWithSchema(ctx context.Context, db *sql.DB) (*CustomerStore, error) {
	store := NewCustomerStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the customers table if it does not exist.
func (s *CustomerStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS customers (
			customer_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT,
			address TEXT
		)`)
	return err
}

// Insert persists a new customer. The customer id must be unused.
func (s *CustomerStore) Insert(ctx context.Context, customer orders.Customer) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (customer_id, name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_id) DO NOTHING`,
		customer.CustomerID, customer.Name, customer.Email, customer.Phone, customer.Address,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", orders.ErrCustomerExists, customer.CustomerID)
	}
	return nil
}

// FindCustomer returns the customer by business id.
func (s *CustomerStore) FindCustomer(ctx context.Context, customerID string) (orders.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT customer_id, name, email, COALESCE(phone, ''), COALESCE(address, '')
		FROM customers
		WHERE customer_id = $1`,
		customerID,
	)
	var c orders.Customer
	if err := row.Scan(&c.CustomerID, &c.Name, &c.Email, &c.Phone, &c.Address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Customer{}, fmt.Errorf("%w: %s", orders.ErrCustomerNotFound, customerID)
		}
		return orders.Customer{}, err
	}
	return c, nil
}

// List returns all customers.
func (s *CustomerStore) List(ctx context.Context) ([]orders.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, name, email, COALESCE(phone, ''), COALESCE(address, '')
		FROM customers
		ORDER BY customer_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []orders.Customer
	for rows.Next() {
		var c orders.Customer
		if err := rows.Scan(&c.CustomerID, &c.Name, &c.Email, &c.Phone, &c.Address); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
