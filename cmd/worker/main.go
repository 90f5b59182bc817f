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
	"caravel/internal/observability"
	"caravel/internal/queue"
	"caravel/internal/saga"

	"github.com/joho/godotenv"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker error: %v", err)
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
	workerCfg, err := config.LoadWorker()
	if err != nil {
		return err
	}
	redisCfg, err := config.LoadRedis()
	if err != nil {
		return err
	}

	// A store that cannot be reached at startup is a deployment problem;
	// the worker exits rather than consuming messages it cannot apply.
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
	transactionDB, err := openDB(ctx, storesCfg.TransactionURL)
	if err != nil {
		return fmt.Errorf("transaction database: %w", err)
	}
	defer transactionDB.Close()

	orderStore, err := storesdb.NewOrderStoreWithSchema(ctx, orderDB)
	if err != nil {
		return err
	}
	productStore, err := storesdb.NewProductStoreWithSchema(ctx, productDB)
	if err != nil {
		return err
	}
	transactionStore, err := storesdb.NewTransactionStoreWithSchema(ctx, transactionDB)
	if err != nil {
		return err
	}

	journal, err := saga.NewFileJournal(workerCfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", workerCfg.JournalPath, err)
	}
	defer journal.Close()

	notifier, cleanupNotifier, err := buildStatusFanout(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer cleanupNotifier()

	// The broker may come up after the worker; keep dialing.
	session, err := queue.DialWithRetry(ctx, queueCfg.URL, queueCfg.Queue, workerCfg.ConnectRetryDelay, log.Printf)
	if err != nil {
		return err
	}
	defer session.Close()

	deliveries, err := session.Consume(ctx)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	worker := saga.NewWorker(saga.Config{
		Transactions: transactionStore,
		Orders:       orderStore,
		Products:     productStore,
		Republisher:  session,
		Journal:      journal,
		Notifier:     notifier,
		Metrics:      metrics,
		MaxRetries:   workerCfg.MaxRetries,
		RetryDelay:   workerCfg.RetryDelay,
		Logf:         log.Printf,
	})

	log.Printf("worker consuming from %s", queueCfg.Queue)
	return worker.Run(ctx, adaptDeliveries(ctx, deliveries))
}

// adaptDeliveries narrows the queue's concrete deliveries to the saga's
// Delivery interface.
func adaptDeliveries(ctx context.Context, in <-chan queue.Delivery) <-chan saga.Delivery {
	out := make(chan saga.Delivery)
	go func() {
		defer close(out)
		for d := range in {
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
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
