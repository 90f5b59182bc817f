package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// QueueConfig holds broker connection settings.
type QueueConfig struct {
	URL   string
	Queue string
}

// WorkerConfig holds the saga worker's retry and journaling settings.
type WorkerConfig struct {
	MaxRetries        int
	RetryDelay        time.Duration
	ConnectRetryDelay time.Duration
	JournalPath       string
}

// StoresConfig holds the connection endpoints for the three stores.
type StoresConfig struct {
	OrderURL       string
	ProductURL     string
	TransactionURL string
}

// HTTPConfig holds the API server address.
type HTTPConfig struct {
	Addr string
}

// RedisConfig holds settings for the optional order-status feed.
// A zero URL means the feed is disabled.
type RedisConfig struct {
	URL          string
	DialTimeout  *time.Duration
	StatusTTL    time.Duration
	Stream       string
	StreamMaxLen int64
}

// LoadQueue reads broker settings from env.
func LoadQueue() (QueueConfig, error) {
	url, err := requiredString("AMQP_URL")
	if err != nil {
		return QueueConfig{}, err
	}
	queue := strings.TrimSpace(os.Getenv("TRANSACTION_QUEUE"))
	if queue == "" {
		queue = "transaction_queue"
	}
	return QueueConfig{URL: url, Queue: queue}, nil
}

// LoadWorker reads saga worker settings from env.
func LoadWorker() (WorkerConfig, error) {
	cfg := WorkerConfig{
		MaxRetries:        5,
		RetryDelay:        5 * time.Second,
		ConnectRetryDelay: 5 * time.Second,
		JournalPath:       strings.TrimSpace(os.Getenv("DEADLETTER_JOURNAL_PATH")),
	}

	if v, err := optionalInt("WORKER_MAX_RETRIES"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.MaxRetries = *v
	}
	if v, err := optionalDuration("WORKER_RETRY_DELAY"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.RetryDelay = *v
	}
	if v, err := optionalDuration("WORKER_CONNECT_RETRY_DELAY"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.ConnectRetryDelay = *v
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = "deadletter.jsonl"
	}

	return cfg, nil
}

// LoadStores reads the three store endpoints from env.
func LoadStores() (StoresConfig, error) {
	cfg := StoresConfig{}
	var err error

	if cfg.OrderURL, err = requiredString("ORDER_DATABASE_URL"); err != nil {
		return cfg, err
	}
	if cfg.ProductURL, err = requiredString("PRODUCT_DATABASE_URL"); err != nil {
		return cfg, err
	}
	if cfg.TransactionURL, err = requiredString("TRANSACTION_DATABASE_URL"); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadHTTP reads the API server address from env.
func LoadHTTP() (HTTPConfig, error) {
	addr, err := requiredString("HTTP_ADDR")
	if err != nil {
		return HTTPConfig{}, err
	}
	return HTTPConfig{Addr: addr}, nil
}

// LoadRedis reads status-feed settings from env. The feed is optional:
// an empty REDIS_URL disables it and is not an error.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{
		URL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		StatusTTL: 24 * time.Hour,
		Stream:    strings.TrimSpace(os.Getenv("REDIS_STREAM")),
	}
	if cfg.URL == "" {
		return cfg, nil
	}

	var err error
	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, err
	}
	if v, err := optionalDuration("REDIS_STATUS_TTL"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.StatusTTL = *v
	}
	if v, err := optionalInt64("REDIS_STREAM_MAXLEN"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.StreamMaxLen = *v
	}

	return cfg, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt64(name string) (*int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}
