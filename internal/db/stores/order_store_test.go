package storesdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"caravel/internal/orders"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

func orderColumns() []string {
	return []string{"order_id", "customer_id", "product_id", "quantity", "amount", "status", "transaction_id", "created_at"}
}

func TestOrderStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewOrderStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}

func TestOrderStore_Insert(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("ORD-1", "CUST001", "PROD001", 2, 199.98, "pending", createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewOrderStore(db)
	err := store.Insert(context.Background(), orders.Order{
		OrderID:    "ORD-1",
		CustomerID: "CUST001",
		ProductID:  "PROD001",
		Quantity:   2,
		Amount:     199.98,
		Status:     orders.OrderStatusPending,
		CreatedAt:  createdAt,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestOrderStore_Insert_Duplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewOrderStore(db)
	err := store.Insert(context.Background(), orders.Order{OrderID: "ORD-1", Status: orders.OrderStatusPending, CreatedAt: time.Now()})
	if !errors.Is(err, orders.ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists, got %v", err)
	}
}

func TestOrderStore_FindByID_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT order_id, customer_id, product_id").
		WithArgs("ORD-missing").
		WillReturnRows(sqlmock.NewRows(orderColumns()))
	mock.ExpectClose()

	store := NewOrderStore(db)
	if _, err := store.FindByID(context.Background(), "ORD-missing"); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderStore_Complete_Applied(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE orders").
		WithArgs("ORD-1", "txn-1", "completed", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT order_id, customer_id, product_id").
		WithArgs("ORD-1").
		WillReturnRows(sqlmock.NewRows(orderColumns()).
			AddRow("ORD-1", "CUST001", "PROD001", 2, 199.98, "completed", "txn-1", createdAt))
	mock.ExpectClose()

	store := NewOrderStore(db)
	order, completion, err := store.Complete(context.Background(), "ORD-1", "txn-1")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion != orders.CompletionApplied {
		t.Fatalf("expected CompletionApplied, got %v", completion)
	}
	if order.Quantity != 2 || order.Status != orders.OrderStatusCompleted {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestOrderStore_Complete_RepeatIsNoOp(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE orders").
		WithArgs("ORD-1", "txn-1", "completed", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT order_id, customer_id, product_id").
		WithArgs("ORD-1").
		WillReturnRows(sqlmock.NewRows(orderColumns()).
			AddRow("ORD-1", "CUST001", "PROD001", 2, 199.98, "completed", "txn-1", createdAt))
	mock.ExpectClose()

	store := NewOrderStore(db)
	_, completion, err := store.Complete(context.Background(), "ORD-1", "txn-1")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion != orders.CompletionRepeat {
		t.Fatalf("expected CompletionRepeat, got %v", completion)
	}
}

func TestOrderStore_Complete_ConflictOnForeignTerminalState(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE orders").
		WithArgs("ORD-1", "txn-2", "completed", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT order_id, customer_id, product_id").
		WithArgs("ORD-1").
		WillReturnRows(sqlmock.NewRows(orderColumns()).
			AddRow("ORD-1", "CUST001", "PROD001", 2, 199.98, "cancelled", "", createdAt))
	mock.ExpectClose()

	store := NewOrderStore(db)
	_, completion, err := store.Complete(context.Background(), "ORD-1", "txn-2")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion != orders.CompletionConflict {
		t.Fatalf("expected CompletionConflict, got %v", completion)
	}
}

func TestOrderStore_Complete_OrderMissing(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE orders").
		WithArgs("ORD-missing", "txn-1", "completed", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT order_id, customer_id, product_id").
		WithArgs("ORD-missing").
		WillReturnRows(sqlmock.NewRows(orderColumns()))
	mock.ExpectClose()

	store := NewOrderStore(db)
	if _, _, err := store.Complete(context.Background(), "ORD-missing", "txn-1"); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderStore_ListByCustomer(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT order_id, customer_id, product_id").
		WithArgs("CUST001").
		WillReturnRows(sqlmock.NewRows(orderColumns()).
			AddRow("ORD-2", "CUST001", "PROD001", 1, 75.0, "pending", "", createdAt.Add(time.Minute)).
			AddRow("ORD-1", "CUST001", "PROD001", 2, 199.98, "completed", "txn-1", createdAt))
	mock.ExpectClose()

	store := NewOrderStore(db)
	result, err := store.ListByCustomer(context.Background(), "CUST001")
	if err != nil {
		t.Fatalf("ListByCustomer: %v", err)
	}
	if len(result) != 2 || result[0].OrderID != "ORD-2" {
		t.Fatalf("unexpected orders: %+v", result)
	}
}
