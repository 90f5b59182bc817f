package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caravel/internal/config"
	storesdb "caravel/internal/db/stores"
	"caravel/internal/httpapi"
	"caravel/internal/observability"
	"caravel/internal/orders"
	"caravel/internal/payments"
	"caravel/internal/queue"
	"caravel/internal/realtime"

	"github.com/joho/godotenv"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Local development convenience; in deployments the env is already set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("api error: %v", err)
	}
}

func run(ctx context.Context) error {
	storesCfg, err := config.LoadStores()
	if err != nil {
		return err
	}
	queueCfg, err := config.LoadQueue()
	if err != nil {
		return err
	}
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	dispatchCfg, err := orders.LoadDispatchConfig()
	if err != nil {
		return err
	}
	redisCfg, err := config.LoadRedis()
	if err != nil {
		return err
	}

	orderDB, err := openDB(ctx, storesCfg.OrderURL)
	if err != nil {
		return fmt.Errorf("order database: %w", err)
	}
	defer orderDB.Close()
	productDB, err := openDB(ctx, storesCfg.ProductURL)
	if err != nil {
		return fmt.Errorf("product database: %w", err)
	}
	defer productDB.Close()
	customerDB := orderDB

	orderStore, err := storesdb.NewOrderStoreWithSchema(ctx, orderDB)
	if err != nil {
		return err
	}
	productStore, err := storesdb.NewProductStoreWithSchema(ctx, productDB)
	if err != nil {
		return err
	}
	customerStore, err := storesdb.NewCustomerStoreWithSchema(ctx, customerDB)
	if err != nil {
		return err
	}

	session, err := queue.Dial(ctx, queueCfg.URL, queueCfg.Queue)
	if err != nil {
		return err
	}
	defer session.Close()

	metrics := observability.NewMetrics()

	paymentService := payments.NewService(session, nil, nil, log.Printf)
	dispatcher := orders.BuildReliableDispatcher(
		orders.DispatcherFunc(paymentService.Dispatch),
		dispatchCfg,
		metrics.AddRateLimitWait,
	)
	orderService := orders.NewOrderService(orderStore, customerStore, productStore, dispatcher, nil, log.Printf)

	hub := realtime.NewHub()
	go hub.Run(ctx)
	feedCleanup, err := buildStatusFeed(ctx, redisCfg, hub)
	if err != nil {
		return fmt.Errorf("status feed: %w", err)
	}
	defer feedCleanup()

	server := httpapi.NewServer(orderService, paymentService, customerStore, productStore, metrics, log.Printf)
	server.Handle("GET /ws/orders", httpapi.WebsocketHandler(hub, log.Printf))

	srv := &http.Server{
		Addr:    httpCfg.Addr,
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("api listening on %s", httpCfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		metrics.MarkShutdown(0)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
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
