package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"caravel/internal/orders"

	"github.com/google/uuid"
)

// PaymentMethod enumerates accepted payment instruments.
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodDebitCard    PaymentMethod = "debit_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// PaymentStatus enumerates transaction payment states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Transaction is the saga's single durable event: serialized into the queue
// message by the publisher and persisted by the worker on first delivery.
type Transaction struct {
	TransactionID string        `json:"transactionId"`
	OrderID       string        `json:"orderId"`
	CustomerID    string        `json:"customerId"`
	ProductID     string        `json:"productId"`
	Amount        float64       `json:"amount"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ErrInvalidRequest indicates a payment request with missing fields.
var ErrInvalidRequest = errors.New("missing required payment fields")

// ErrPublish indicates the durable publish to the queue failed.
var ErrPublish = errors.New("queue publish failed")

// QueuePublisher publishes a durable message to the transaction queue.
type QueuePublisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Service synthesizes a transaction for an accepted payment request and
// publishes it durably. Payment processing itself is a stub boundary: the
// transaction is born with payment status completed.
type Service struct {
	queue            QueuePublisher
	newTransactionID func() string
	now              func() time.Time
	logf             func(format string, args ...any)
}

// NewService constructs a payment Service. newTransactionID, now, and logf
// may be nil.
func NewService(queue QueuePublisher, newTransactionID func() string, now func() time.Time, logf func(format string, args ...any)) *Service {
	if newTransactionID == nil {
		newTransactionID = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Service{
		queue:            queue,
		newTransactionID: newTransactionID,
		now:              now,
		logf:             logf,
	}
}

// Publish validates the request, builds the transaction, and publishes it to
// the queue. It returns the generated transaction id. No deduplication
// happens here: a caller retry produces a fresh transaction id and a fresh
// message.
func (s *Service) Publish(ctx context.Context, req orders.PaymentRequest) (string, error) {
	if req.CustomerID == "" || req.OrderID == "" || req.ProductID == "" || req.PaymentMethod == "" {
		return "", ErrInvalidRequest
	}
	if req.Amount <= 0 {
		return "", ErrInvalidRequest
	}

	txn := Transaction{
		TransactionID: s.newTransactionID(),
		OrderID:       req.OrderID,
		CustomerID:    req.CustomerID,
		ProductID:     req.ProductID,
		Amount:        req.Amount,
		PaymentMethod: PaymentMethod(req.PaymentMethod),
		PaymentStatus: PaymentStatusCompleted,
		Timestamp:     s.now().UTC(),
	}

	body, err := json.Marshal(txn)
	if err != nil {
		return "", err
	}
	if err := s.queue.Publish(ctx, body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPublish, err)
	}

	s.logf("transaction %s published for order %s", txn.TransactionID, txn.OrderID)
	return txn.TransactionID, nil
}

// Dispatch adapts Publish to the orders.PaymentDispatcher contract.
func (s *Service) Dispatch(ctx context.Context, req orders.PaymentRequest) error {
	_, err := s.Publish(ctx, req)
	return err
}
