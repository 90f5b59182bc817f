// Package httpapi exposes the order, payment, and catalog operations over
// JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"caravel/internal/observability"
	"caravel/internal/orders"
	"caravel/internal/payments"
)

// OrderAPI initiates orders and answers order queries.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]orders.Order, error)
}

// PaymentAPI publishes payment transactions.
type PaymentAPI interface {
	Publish(ctx context.Context, req orders.PaymentRequest) (string, error)
}

// CustomerAdmin manages the customer directory.
type CustomerAdmin interface {
	Insert(ctx context.Context, customer orders.Customer) error
	FindCustomer(ctx context.Context, customerID string) (orders.Customer, error)
	List(ctx context.Context) ([]orders.Customer, error)
}

// ProductAdmin manages the product catalog.
type ProductAdmin interface {
	Insert(ctx context.Context, product orders.Product) error
	FindProduct(ctx context.Context, productID string) (orders.Product, error)
	List(ctx context.Context) ([]orders.Product, error)
	SetStock(ctx context.Context, productID string, stock int) error
}

// Server routes HTTP requests to the domain services.
type Server struct {
	orders    OrderAPI
	payments  PaymentAPI
	customers CustomerAdmin
	products  ProductAdmin
	metrics   *observability.Metrics
	logf      func(format string, args ...any)
	mux       *http.ServeMux
}

// NewServer constructs the Server and its routes. metrics may be nil.
func NewServer(orderAPI OrderAPI, paymentAPI PaymentAPI, customers CustomerAdmin, products ProductAdmin, metrics *observability.Metrics, logf func(format string, args ...any)) *Server {
	if logf == nil {
		logf = log.Printf
	}
	s := &Server{
		orders:    orderAPI,
		payments:  paymentAPI,
		customers: customers,
		products:  products,
		metrics:   metrics,
		logf:      logf,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("POST /api/orders", s.handleCreateOrder)
	s.handle("GET /api/orders/{orderId}", s.handleGetOrder)
	s.handle("GET /api/customers/{customerId}/orders", s.handleListOrders)
	s.handle("POST /api/payments", s.handlePublishPayment)
	s.handle("POST /api/customers", s.handleCreateCustomer)
	s.handle("GET /api/customers", s.handleListCustomers)
	s.handle("GET /api/customers/{customerId}", s.handleGetCustomer)
	s.handle("POST /api/products", s.handleCreateProduct)
	s.handle("GET /api/products", s.handleListProducts)
	s.handle("GET /api/products/{productId}", s.handleGetProduct)
	s.handle("PATCH /api/products/{productId}/stock", s.handleSetStock)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", observability.Handler(s.metrics))
	}
}

// handle wraps the handler with a metrics span keyed by the route pattern.
func (s *Server) handle(pattern string, h func(w http.ResponseWriter, r *http.Request) error) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		span := s.metrics.Start(pattern)
		err := h(w, r)
		span.End(err)
		if err != nil {
			s.writeError(w, r, err)
		}
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handle exposes extra routes, such as the websocket endpoint.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) error {
	var req orders.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	order, err := s.orders.CreateOrder(r.Context(), req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) error {
	order, err := s.orders.GetOrder(r.Context(), r.PathValue("orderId"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) error {
	list, err := s.orders.ListOrdersByCustomer(r.Context(), r.PathValue("customerId"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []orders.Order{}
	}
	return writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePublishPayment(w http.ResponseWriter, r *http.Request) error {
	var req orders.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	transactionID, err := s.payments.Publish(r.Context(), req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{
		"message":       "Payment queued for processing",
		"transactionId": transactionID,
	})
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) error {
	var customer orders.Customer
	if err := decodeJSON(r, &customer); err != nil {
		return err
	}
	if customer.CustomerID == "" || customer.Name == "" || customer.Email == "" {
		return fmt.Errorf("%w: customerId, name, and email are required", orders.ErrInvalidRequest)
	}
	if err := s.customers.Insert(r.Context(), customer); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) error {
	list, err := s.customers.List(r.Context())
	if err != nil {
		return err
	}
	if list == nil {
		list = []orders.Customer{}
	}
	return writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) error {
	customer, err := s.customers.FindCustomer(r.Context(), r.PathValue("customerId"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, customer)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) error {
	var product orders.Product
	if err := decodeJSON(r, &product); err != nil {
		return err
	}
	if product.ProductID == "" || product.Name == "" {
		return fmt.Errorf("%w: productId and name are required", orders.ErrInvalidRequest)
	}
	if product.Price < 0 || product.Stock < 0 {
		return fmt.Errorf("%w: price and stock must not be negative", orders.ErrInvalidRequest)
	}
	if err := s.products.Insert(r.Context(), product); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) error {
	list, err := s.products.List(r.Context())
	if err != nil {
		return err
	}
	if list == nil {
		list = []orders.Product{}
	}
	return writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) error {
	product, err := s.products.FindProduct(r.Context(), r.PathValue("productId"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleSetStock(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Stock *int `json:"stock"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Stock == nil || *req.Stock < 0 {
		return fmt.Errorf("%w: stock must be present and not negative", orders.ErrInvalidRequest)
	}
	productID := r.PathValue("productId")
	if err := s.products.SetStock(r.Context(), productID, *req.Stock); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"productId": productID,
		"stock":     *req.Stock,
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logf("http: %s %s: %v", r.Method, r.URL.Path, err)
		// Internal details stay out of the response body.
		writeJSON(w, status, map[string]string{"message": "internal server error"})
		return
	}
	writeJSON(w, status, map[string]string{"message": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrInvalidRequest),
		errors.Is(err, payments.ErrInvalidRequest),
		errors.Is(err, orders.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrCustomerNotFound),
		errors.Is(err, orders.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrOrderExists),
		errors.Is(err, orders.ErrCustomerExists),
		errors.Is(err, orders.ErrProductExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", orders.ErrInvalidRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
