package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// CustomerDirectory resolves customers by business id.
type CustomerDirectory interface {
	FindCustomer(ctx context.Context, customerID string) (Customer, error)
}

// ProductCatalog resolves products by business id.
type ProductCatalog interface {
	FindProduct(ctx context.Context, productID string) (Product, error)
}

// OrderStore persists orders.
type OrderStore interface {
	Insert(ctx context.Context, order Order) error
	FindByID(ctx context.Context, orderID string) (Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
}

// PaymentDispatcher hands an accepted order off to the payment step.
type PaymentDispatcher interface {
	Dispatch(ctx context.Context, req PaymentRequest) error
}

// DispatcherFunc adapts a function to the PaymentDispatcher interface.
type DispatcherFunc func(ctx context.Context, req PaymentRequest) error

func (f DispatcherFunc) Dispatch(ctx context.Context, req PaymentRequest) error {
	return f(ctx, req)
}

// NewInMemoryDirectory constructs an in-memory customer directory.
func NewInMemoryDirectory(customers ...Customer) *InMemoryDirectory {
	d := &InMemoryDirectory{customers: make(map[string]Customer)}
	for _, c := range customers {
		d.customers[c.CustomerID] = c
	}
	return d
}

// InMemoryDirectory holds customers in memory.
type InMemoryDirectory struct {
	mu        sync.Mutex
	customers map[string]Customer
}

func (d *InMemoryDirectory) Put(c Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[c.CustomerID] = c
}

func (d *InMemoryDirectory) FindCustomer(ctx context.Context, customerID string) (Customer, error) {
	if err := ctx.Err(); err != nil {
		return Customer{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.customers[customerID]
	if !ok {
		return Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
	}
	return c, nil
}

// NewInMemoryCatalog constructs an in-memory product catalog.
func NewInMemoryCatalog(products ...Product) *InMemoryCatalog {
	c := &InMemoryCatalog{products: make(map[string]Product)}
	for _, p := range products {
		c.products[p.ProductID] = p
	}
	return c
}

// InMemoryCatalog holds products in memory.
type InMemoryCatalog struct {
	mu       sync.Mutex
	products map[string]Product
}

func (c *InMemoryCatalog) Put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ProductID] = p
}

func (c *InMemoryCatalog) FindProduct(ctx context.Context, productID string) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return p, nil
}

// NewInMemoryOrderStore constructs an in-memory order store.
func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{orders: make(map[string]Order)}
}

// InMemoryOrderStore holds orders in memory.
type InMemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]Order
}

func (s *InMemoryOrderStore) Insert(ctx context.Context, order Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.OrderID]; ok {
		return fmt.Errorf("%w: %s", ErrOrderExists, order.OrderID)
	}
	s.orders[order.OrderID] = order
	return nil
}

func (s *InMemoryOrderStore) FindByID(ctx context.Context, orderID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o, nil
}

func (s *InMemoryOrderStore) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
