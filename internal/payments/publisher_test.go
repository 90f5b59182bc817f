package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"caravel/internal/orders"
)

type spyQueue struct {
	bodies [][]byte
	err    error
}

func (s *spyQueue) Publish(ctx context.Context, body []byte) error {
	s.bodies = append(s.bodies, body)
	return s.err
}

func newTestService(queue *spyQueue) *Service {
	idGen := func() string { return "txn-1" }
	now := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return NewService(queue, idGen, now, func(string, ...any) {})
}

func validRequest() orders.PaymentRequest {
	return orders.PaymentRequest{
		CustomerID:    "CUST001",
		OrderID:       "ORD-1",
		ProductID:     "PROD001",
		Amount:        199.98,
		PaymentMethod: "credit_card",
	}
}

func TestPublish_BuildsCompletedTransaction(t *testing.T) {
	queue := &spyQueue{}
	service := newTestService(queue)

	txnID, err := service.Publish(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txnID != "txn-1" {
		t.Fatalf("unexpected transaction id: %s", txnID)
	}
	if len(queue.bodies) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(queue.bodies))
	}

	var txn Transaction
	if err := json.Unmarshal(queue.bodies[0], &txn); err != nil {
		t.Fatalf("unmarshal published body: %v", err)
	}
	if txn.TransactionID != "txn-1" || txn.OrderID != "ORD-1" {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
	if txn.PaymentStatus != PaymentStatusCompleted {
		t.Fatalf("payment status must be completed, got %s", txn.PaymentStatus)
	}
	if txn.PaymentMethod != PaymentMethodCreditCard {
		t.Fatalf("unexpected payment method: %s", txn.PaymentMethod)
	}
	if !txn.Timestamp.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %v", txn.Timestamp)
	}
}

func TestPublish_MissingFields(t *testing.T) {
	queue := &spyQueue{}
	service := newTestService(queue)

	cases := map[string]orders.PaymentRequest{
		"customer": {OrderID: "ORD-1", ProductID: "PROD001", Amount: 1, PaymentMethod: "credit_card"},
		"order":    {CustomerID: "CUST001", ProductID: "PROD001", Amount: 1, PaymentMethod: "credit_card"},
		"product":  {CustomerID: "CUST001", OrderID: "ORD-1", Amount: 1, PaymentMethod: "credit_card"},
		"amount":   {CustomerID: "CUST001", OrderID: "ORD-1", ProductID: "PROD001", PaymentMethod: "credit_card"},
		"method":   {CustomerID: "CUST001", OrderID: "ORD-1", ProductID: "PROD001", Amount: 1},
	}
	for name, req := range cases {
		if _, err := service.Publish(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", name, err)
		}
	}
	if len(queue.bodies) != 0 {
		t.Fatalf("nothing should be published on validation failure")
	}
}

func TestPublish_QueueFailure(t *testing.T) {
	queue := &spyQueue{err: errors.New("connection refused")}
	service := newTestService(queue)

	_, err := service.Publish(context.Background(), validRequest())
	if !errors.Is(err, ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
}

func TestDispatch_AdaptsPublish(t *testing.T) {
	queue := &spyQueue{}
	service := newTestService(queue)

	if err := service.Dispatch(context.Background(), validRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.bodies) != 1 {
		t.Fatalf("expected one publish, got %d", len(queue.bodies))
	}
}
