// Command seed loads the demo customers and products into the stores so
// the order flow can be exercised end to end.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caravel/internal/config"
	storesdb "caravel/internal/db/stores"
	"caravel/internal/orders"

	"github.com/joho/godotenv"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var customers = []orders.Customer{
	{CustomerID: "CUST001", Name: "Alice Smith", Email: "alice.smith@example.com", Phone: "555-0101", Address: "123 Maple Street"},
	{CustomerID: "CUST002", Name: "Bob Johnson", Email: "bob.johnson@example.com", Phone: "555-0102", Address: "456 Oak Avenue"},
	{CustomerID: "CUST003", Name: "Charlie Brown", Email: "charlie.brown@example.com", Phone: "555-0103", Address: "789 Pine Road"},
}

var products = []orders.Product{
	{ProductID: "PROD001", Name: "Laptop", Description: "High-performance laptop", Price: 1200, Stock: 50},
	{ProductID: "PROD002", Name: "Gaming Mouse", Description: "Ergonomic gaming mouse", Price: 75, Stock: 150},
	{ProductID: "PROD003", Name: "Mechanical Keyboard", Description: "RGB mechanical keyboard", Price: 120, Stock: 100},
	{ProductID: "PROD004", Name: "4K Monitor", Description: "27-inch 4K monitor", Price: 450, Stock: 75},
	{ProductID: "PROD005", Name: "Webcam", Description: "1080p webcam", Price: 60, Stock: 200},
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("seed error: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadStores()
	if err != nil {
		return err
	}

	orderDB, err := openDB(ctx, cfg.OrderURL)
	if err != nil {
		return fmt.Errorf("order database: %w", err)
	}
	defer orderDB.Close()
	productDB, err := openDB(ctx, cfg.ProductURL)
	if err != nil {
		return fmt.Errorf("product database: %w", err)
	}
	defer productDB.Close()

	customerStore, err := storesdb.NewCustomerStoreWithSchema(ctx, orderDB)
	if err != nil {
		return err
	}
	productStore, err := storesdb.NewProductStoreWithSchema(ctx, productDB)
	if err != nil {
		return err
	}

	for _, customer := range customers {
		err := customerStore.Insert(ctx, customer)
		switch {
		case err == nil:
			log.Printf("seeded customer %s", customer.CustomerID)
		case errors.Is(err, orders.ErrCustomerExists):
			log.Printf("customer %s already present", customer.CustomerID)
		default:
			return err
		}
	}

	for _, product := range products {
		err := productStore.Insert(ctx, product)
		switch {
		case err == nil:
			log.Printf("seeded product %s", product.ProductID)
		case errors.Is(err, orders.ErrProductExists):
			log.Printf("product %s already present", product.ProductID)
		default:
			return err
		}
	}

	return nil
}

func openDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
