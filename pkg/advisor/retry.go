package advisor

import (
	"context"
	"time"
)

// RetryConfig tunes the bounded exponential backoff. Backoff is pure
// exponential with no jitter: min(BaseDelay * Multiplier^(attempt-1), MaxDelay).
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig is the tuning used for generation calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
		Multiplier: 2.0,
	}
}

// Indirection for tests: replaced to avoid real sleeps.
var retrySleep = sleepContext

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryOrchestrator wraps a unit of work with bounded retries. When a ledger
// is attached, the cost ceilings are checked before every attempt so a capped
// budget fails fast without reaching the backend; that rejection is
// non-retryable and bypasses the backoff loop entirely, as are validation
// errors.
type RetryOrchestrator struct {
	config RetryConfig
	ledger *CostLedger
}

// NewRetryOrchestrator builds an orchestrator. ledger may be nil for work
// with no cost ceiling (data fetches).
func NewRetryOrchestrator(config RetryConfig, ledger *CostLedger) *RetryOrchestrator {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 500 * time.Millisecond
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = config.BaseDelay
	}
	if config.Multiplier < 1 {
		config.Multiplier = 2.0
	}
	return &RetryOrchestrator{config: config, ledger: ledger}
}

// Execute runs fn up to 1+MaxRetries times. The last error is returned when
// all attempts fail.
func (r *RetryOrchestrator) Execute(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxRetries+1; attempt++ {
		if r.ledger != nil {
			if err := r.ledger.CheckBudget(); err != nil {
				return err
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt > r.config.MaxRetries {
			break
		}
		if err := retrySleep(ctx, r.delayFor(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (r *RetryOrchestrator) delayFor(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.config.Multiplier
	}
	if delay > float64(r.config.MaxDelay) {
		return r.config.MaxDelay
	}
	return time.Duration(delay)
}
