package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// OrderStatus captures the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order is a purchase awaiting asynchronous fulfillment. Status starts at
// pending and is moved to a terminal state exactly once, by the saga worker.
type Order struct {
	OrderID       string      `json:"orderId"`
	CustomerID    string      `json:"customerId"`
	ProductID     string      `json:"productId"`
	Quantity      int         `json:"quantity"`
	Amount        float64     `json:"amount"`
	Status        OrderStatus `json:"orderStatus"`
	TransactionID string      `json:"transactionId,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Customer as seen by the order pre-checks.
type Customer struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
}

// Product as seen by the order pre-checks and the stock decrement.
type Product struct {
	ProductID   string  `json:"productId"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
}

// ErrInvalidRequest indicates client input that fails validation.
var ErrInvalidRequest = errors.New("invalid request")

// ErrCustomerNotFound indicates the referenced customer does not exist.
var ErrCustomerNotFound = errors.New("customer not found")

// ErrProductNotFound indicates the referenced product does not exist.
var ErrProductNotFound = errors.New("product not found")

// ErrOrderNotFound indicates the referenced order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrInsufficientStock indicates the product cannot cover the requested quantity.
var ErrInsufficientStock = errors.New("insufficient product stock")

// ErrOrderExists indicates an order id collision on insert.
var ErrOrderExists = errors.New("order already exists")

// ErrCustomerExists indicates a customer id collision on insert.
var ErrCustomerExists = errors.New("customer already exists")

// ErrProductExists indicates a product id collision on insert.
var ErrProductExists = errors.New("product already exists")

// Completion is the result of attempting the pending -> completed transition.
type Completion int

const (
	// CompletionApplied means the order moved from pending to completed now.
	CompletionApplied Completion = iota
	// CompletionRepeat means the order was already completed with the same
	// transaction id; reapplying is a no-op continuation.
	CompletionRepeat
	// CompletionConflict means the order is already in a terminal state that
	// this transaction did not produce.
	CompletionConflict
)

// CreateOrderRequest carries the order-creation input.
type CreateOrderRequest struct {
	CustomerID string  `json:"customerId"`
	ProductID  string  `json:"productId"`
	Quantity   int     `json:"quantity"`
	Amount     float64 `json:"amount"`
}

// PaymentRequest is the payload handed to the payment dispatcher.
type PaymentRequest struct {
	CustomerID    string  `json:"customerId"`
	OrderID       string  `json:"orderId"`
	ProductID     string  `json:"productId"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"paymentMethod"`
}

// DefaultPaymentMethod is used for orders created through the initiator.
const DefaultPaymentMethod = "credit_card"

// OrderService validates purchase requests, persists pending orders, and
// hands payment off asynchronously. It never writes a terminal order status;
// that belongs to the saga worker.
type OrderService struct {
	store      OrderStore
	customers  CustomerDirectory
	catalog    ProductCatalog
	payments   PaymentDispatcher
	newOrderID func() string
	logf       func(format string, args ...any)
}

// NewOrderService constructs an OrderService. newOrderID and logf may be nil.
func NewOrderService(store OrderStore, customers CustomerDirectory, catalog ProductCatalog, payments PaymentDispatcher, newOrderID func() string, logf func(format string, args ...any)) *OrderService {
	if newOrderID == nil {
		newOrderID = func() string { return "ORD-" + uuid.NewString() }
	}
	if logf == nil {
		logf = log.Printf
	}
	return &OrderService{
		store:      store,
		customers:  customers,
		catalog:    catalog,
		payments:   payments,
		newOrderID: newOrderID,
		logf:       logf,
	}
}

// CreateOrder runs the synchronous pre-checks, persists a pending order, and
// triggers payment fire-and-forget. The returned order is always pending;
// callers poll for the terminal status.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if req.CustomerID == "" {
		return Order{}, fmt.Errorf("%w: customerId is required", ErrInvalidRequest)
	}
	if req.ProductID == "" {
		return Order{}, fmt.Errorf("%w: productId is required", ErrInvalidRequest)
	}
	if req.Quantity <= 0 {
		return Order{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return Order{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	if _, err := s.customers.FindCustomer(ctx, req.CustomerID); err != nil {
		return Order{}, err
	}

	product, err := s.catalog.FindProduct(ctx, req.ProductID)
	if err != nil {
		return Order{}, err
	}
	if product.Stock < req.Quantity {
		return Order{}, fmt.Errorf("%w: product %s has %d in stock, requested %d", ErrInsufficientStock, product.ProductID, product.Stock, req.Quantity)
	}

	order := Order{
		OrderID:    s.newOrderID(),
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		Amount:     req.Amount,
		Status:     OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, order); err != nil {
		return Order{}, err
	}

	// Payment handoff is fire-and-forget: a dispatch failure leaves the order
	// pending and is reconciled out of band, never surfaced to the caller.
	dispatchCtx := context.WithoutCancel(ctx)
	go func() {
		payment := PaymentRequest{
			CustomerID:    order.CustomerID,
			OrderID:       order.OrderID,
			ProductID:     order.ProductID,
			Amount:        order.Amount,
			PaymentMethod: DefaultPaymentMethod,
		}
		if err := s.payments.Dispatch(dispatchCtx, payment); err != nil {
			s.logf("payment dispatch failed for order %s: %v", order.OrderID, err)
		}
	}()

	return order, nil
}

// GetOrder returns the order by business id.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: orderId is required", ErrInvalidRequest)
	}
	return s.store.FindByID(ctx, orderID)
}

// ListOrdersByCustomer returns the customer's orders, newest first.
func (s *OrderService) ListOrdersByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customerId is required", ErrInvalidRequest)
	}
	return s.store.ListByCustomer(ctx, customerID)
}
