package orders

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubBaseDispatcher struct {
	errs  []error
	calls int
}

func (s *stubBaseDispatcher) Dispatch(ctx context.Context, req PaymentRequest) error {
	s.calls++
	if s.calls <= len(s.errs) {
		return s.errs[s.calls-1]
	}
	return nil
}

func TestRetryPolicy_RetriesWithBackoff(t *testing.T) {
	attempts := 0
	var delays []time.Duration

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
		Jitter:      func(d time.Duration) time.Duration { return d },
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
		ShouldRetry: func(error) bool { return true },
	}

	err := policy.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(delays) != 2 || delays[0] != 10*time.Millisecond || delays[1] != 20*time.Millisecond {
		t.Fatalf("unexpected delays: %v", delays)
	}
}

func TestRetryPolicy_StopsOnNonRetryable(t *testing.T) {
	attempts := 0
	expected := errors.New("nope")

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			t.Fatalf("should not sleep")
			return nil
		},
		ShouldRetry: func(error) bool { return false },
	}

	err := policy.Do(context.Background(), func() error {
		attempts++
		return expected
	})
	if err != expected {
		t.Fatalf("expected %v, got %v", expected, err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryPolicy_DefaultSkipsCircuitOpen(t *testing.T) {
	attempts := 0

	policy := RetryPolicy{MaxAttempts: 3}
	err := policy.Do(context.Background(), func() error {
		attempts++
		return ErrCircuitOpen
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("open breaker must not be retried, got %d attempts", attempts)
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	calls := 0

	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Second,
		Now:          func() time.Time { return now },
	})

	fail := func() error {
		calls++
		return errors.New("fail")
	}

	if err := breaker.Execute(fail); err == nil {
		t.Fatalf("expected failure")
	}
	if err := breaker.Execute(fail); err == nil {
		t.Fatalf("expected failure")
	}
	if err := breaker.Execute(fail); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("open breaker must not call through, calls=%d", calls)
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Now:          func() time.Time { return now },
	})

	if err := breaker.Execute(func() error { return errors.New("fail") }); err == nil {
		t.Fatalf("expected failure")
	}
	if err := breaker.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if err := breaker.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to succeed, got %v", err)
	}
	if err := breaker.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected closed breaker, got %v", err)
	}
}

func TestRateLimiter_EnforcesBurst(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	var slept []time.Duration

	limiter := NewRateLimiter(100*time.Millisecond, 2)
	limiter.now = func() time.Time { return now }
	limiter.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}
	limiter.last = now
	limiter.tokens = 2

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if len(slept) == 0 {
		t.Fatalf("third acquisition should have waited")
	}
}

func TestReliablePaymentDispatcher_RetriesThenSucceeds(t *testing.T) {
	base := &stubBaseDispatcher{errs: []error{errors.New("one"), errors.New("two")}}
	retry := RetryPolicy{
		MaxAttempts: 3,
		Jitter:      func(d time.Duration) time.Duration { return d },
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
	dispatcher := NewReliablePaymentDispatcher(base, nil, nil, retry, nil)

	err := dispatcher.Dispatch(context.Background(), PaymentRequest{OrderID: "ORD-1", Amount: 5})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if base.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", base.calls)
	}
}

func TestReliablePaymentDispatcher_BreakerShortCircuits(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	base := &stubBaseDispatcher{errs: []error{errors.New("boom"), errors.New("boom")}}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		Now:          func() time.Time { return now },
	})
	dispatcher := NewReliablePaymentDispatcher(base, nil, breaker, RetryPolicy{MaxAttempts: 1}, nil)

	if err := dispatcher.Dispatch(context.Background(), PaymentRequest{}); err == nil {
		t.Fatalf("expected failure")
	}
	err := dispatcher.Dispatch(context.Background(), PaymentRequest{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("breaker must stop the second call, calls=%d", base.calls)
	}
}

func TestLoadDispatchConfig_Defaults(t *testing.T) {
	t.Setenv("DISPATCH_RETRY_MAX_ATTEMPTS", "")
	t.Setenv("DISPATCH_RATE_LIMIT_INTERVAL", "")
	t.Setenv("DISPATCH_RATE_LIMIT_BURST", "")

	cfg, err := LoadDispatchConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RetryMaxAttempts != 3 || cfg.BreakerMaxFailures != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RateLimitInterval != 0 || cfg.RateLimitBurst != 0 {
		t.Fatalf("rate limiting should default off: %+v", cfg)
	}
}

func TestLoadDispatchConfig_Overrides(t *testing.T) {
	t.Setenv("DISPATCH_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("DISPATCH_RETRY_BASE_DELAY", "20ms")
	t.Setenv("DISPATCH_RATE_LIMIT_INTERVAL", "5ms")
	t.Setenv("DISPATCH_RATE_LIMIT_BURST", "10")

	cfg, err := LoadDispatchConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RetryMaxAttempts != 7 || cfg.RetryBaseDelay != 20*time.Millisecond {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.RateLimitInterval != 5*time.Millisecond || cfg.RateLimitBurst != 10 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadDispatchConfig_RejectsBadDuration(t *testing.T) {
	t.Setenv("DISPATCH_RETRY_BASE_DELAY", "not-a-duration")

	if _, err := LoadDispatchConfig(); err == nil {
		t.Fatalf("expected parse error")
	}
}
