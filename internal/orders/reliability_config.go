package orders

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DispatchConfig tunes the reliability wrapper around the payment dispatcher.
type DispatchConfig struct {
	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	RateLimitInterval   time.Duration
	RateLimitBurst      int
}

// LoadDispatchConfig reads dispatch reliability settings from env, with
// defaults suitable for a broker on the same network. Rate limiting is off
// unless both interval and burst are set.
func LoadDispatchConfig() (DispatchConfig, error) {
	cfg := DispatchConfig{
		RetryMaxAttempts:    3,
		RetryBaseDelay:      100 * time.Millisecond,
		RetryMaxDelay:       2 * time.Second,
		BreakerMaxFailures:  5,
		BreakerResetTimeout: 30 * time.Second,
	}

	if v, err := dispatchOptionalInt("DISPATCH_RETRY_MAX_ATTEMPTS"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.RetryMaxAttempts = *v
	}
	if v, err := dispatchOptionalDuration("DISPATCH_RETRY_BASE_DELAY"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.RetryBaseDelay = *v
	}
	if v, err := dispatchOptionalDuration("DISPATCH_RETRY_MAX_DELAY"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.RetryMaxDelay = *v
	}
	if v, err := dispatchOptionalInt("DISPATCH_BREAKER_MAX_FAILURES"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.BreakerMaxFailures = *v
	}
	if v, err := dispatchOptionalDuration("DISPATCH_BREAKER_RESET_TIMEOUT"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.BreakerResetTimeout = *v
	}
	if v, err := dispatchOptionalDuration("DISPATCH_RATE_LIMIT_INTERVAL"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.RateLimitInterval = *v
	}
	if v, err := dispatchOptionalInt("DISPATCH_RATE_LIMIT_BURST"); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.RateLimitBurst = *v
	}

	return cfg, nil
}

// BuildReliableDispatcher wraps base according to cfg.
func BuildReliableDispatcher(base PaymentDispatcher, cfg DispatchConfig, onWait func(time.Duration)) *ReliablePaymentDispatcher {
	var limiter *RateLimiter
	if cfg.RateLimitInterval > 0 && cfg.RateLimitBurst > 0 {
		limiter = NewRateLimiter(cfg.RateLimitInterval, cfg.RateLimitBurst)
	}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
	})
	retry := RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
	return NewReliablePaymentDispatcher(base, limiter, breaker, retry, onWait)
}

func dispatchOptionalDuration(name string) (*time.Duration, error) {
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

func dispatchOptionalInt(name string) (*int, error) {
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
