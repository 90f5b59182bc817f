package storesdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"caravel/internal/orders"
)

// ProductStore persists products and their stock in Postgres. Stock is only
// ever decremented through ApplyOrderDecrement, which is idempotent per order.
type ProductStore struct {
	db *sql.DB
}

// NewProductStore constructs a ProductStore backed by Postgres.
func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

// NewProductStoreWithSchema initializes the schema then returns the store.
func NewProductStoreWithSchema(ctx context.Context, db *sql.DB) (*ProductStore, error) {
	store := NewProductStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the products and stock_movements tables if they do not
// exist. stock_movements records one row per order whose decrement has been
// applied; its primary key is what makes the decrement idempotent under
// redelivery.
func (s *ProductStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			product_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			price DOUBLE PRECISION NOT NULL CHECK (price >= 0),
			stock INTEGER NOT NULL CHECK (stock >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
			order_id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert persists a new product. The product id must be unused.
func (s *ProductStore) Insert(ctx context.Context, product orders.Product) error {
	if product.Stock < 0 {
		return fmt.Errorf("stock must be >= 0")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO products (product_id, name, description, price, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id) DO NOTHING`,
		product.ProductID, product.Name, product.Description, product.Price, product.Stock,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", orders.ErrProductExists, product.ProductID)
	}
	return nil
}

// FindProduct returns the product by business id.
func (s *ProductStore) FindProduct(ctx context.Context, productID string) (orders.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT product_id, name, COALESCE(description, ''), price, stock
		FROM products
		WHERE product_id = $1`,
		productID,
	)
	var p orders.Product
	if err := row.Scan(&p.ProductID, &p.Name, &p.Description, &p.Price, &p.Stock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Product{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
		}
		return orders.Product{}, err
	}
	return p, nil
}

// List returns all products.
func (s *ProductStore) List(ctx context.Context) ([]orders.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, COALESCE(description, ''), price, stock
		FROM products
		ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []orders.Product
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Description, &p.Price, &p.Stock); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// SetStock overwrites the product's stock level.
func (s *ProductStore) SetStock(ctx context.Context, productID string, stock int) error {
	if stock < 0 {
		return fmt.Errorf("stock must be >= 0")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = $2 WHERE product_id = $1`,
		productID, stock,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	return nil
}

// ApplyOrderDecrement decrements stock by quantity exactly once per order.
// The marker insert and the decrement share one transaction, so a redelivery
// that reaches this step again finds the marker and applies nothing. Returns
// whether the decrement was applied now.
func (s *ProductStore) ApplyOrderDecrement(ctx context.Context, orderID, productID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, fmt.Errorf("quantity must be positive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (order_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO NOTHING`,
		orderID, productID, quantity,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		// Marker exists: this order's decrement was already applied.
		return false, tx.Commit()
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE products SET stock = stock - $2
		WHERE product_id = $1 AND stock >= $2`,
		productID, quantity,
	)
	if err != nil {
		return false, err
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return false, rbErr
		}
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE product_id = $1)`, productID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
		}
		return false, fmt.Errorf("%w: product %s cannot cover quantity %d", orders.ErrInsufficientStock, productID, quantity)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
