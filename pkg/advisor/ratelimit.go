package advisor

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateDecision is the outcome of a single fixed-window check.
type RateDecision struct {
	Allowed       bool
	Remaining     int
	ResetAt       time.Time
	RetryAfterSec int
}

type rateWindow struct {
	Count   int   `json:"count"`
	ResetAt int64 `json:"reset_at"` // unix millis
}

// RateLimiter implements a fixed-window counter per caller key. A fresh
// window is created on the first request (or after the previous window
// expired); within a live window, count may never exceed the configured max.
type RateLimiter struct {
	mu    sync.Mutex
	store StateStore
	now   func() time.Time
}

// NewRateLimiter creates a limiter backed by the given store.
func NewRateLimiter(store StateStore) *RateLimiter {
	return &RateLimiter{store: store, now: time.Now}
}

// Check consumes one slot for key if the window allows it.
func (l *RateLimiter) Check(key string, window time.Duration, maxRequests int) (RateDecision, error) {
	if window <= 0 || maxRequests <= 0 {
		return RateDecision{}, NewError(ErrCodeValidation, "rate limit window and max must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	storeKey := rateLimitKeyPrefix + key

	var state rateWindow
	raw, ok, err := l.store.Get(storeKey)
	if err != nil {
		return RateDecision{}, WrapError(ErrCodeInternal, "read rate limit state", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &state); err != nil {
			ok = false
		}
	}

	// No window yet, or the previous one expired: start fresh and allow.
	if !ok || now.UnixMilli() >= state.ResetAt {
		state = rateWindow{Count: 1, ResetAt: now.Add(window).UnixMilli()}
		if err := l.save(storeKey, state, window); err != nil {
			return RateDecision{}, err
		}
		return RateDecision{
			Allowed:   true,
			Remaining: maxRequests - 1,
			ResetAt:   time.UnixMilli(state.ResetAt),
		}, nil
	}

	resetAt := time.UnixMilli(state.ResetAt)
	if state.Count >= maxRequests {
		retryAfter := int(math.Ceil(float64(state.ResetAt-now.UnixMilli()) / 1000.0))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return RateDecision{
			Allowed:       false,
			Remaining:     0,
			ResetAt:       resetAt,
			RetryAfterSec: retryAfter,
		}, nil
	}

	state.Count++
	if err := l.save(storeKey, state, resetAt.Sub(now)); err != nil {
		return RateDecision{}, err
	}
	return RateDecision{
		Allowed:   true,
		Remaining: maxRequests - state.Count,
		ResetAt:   resetAt,
	}, nil
}

func (l *RateLimiter) save(storeKey string, state rateWindow, ttl time.Duration) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return WrapError(ErrCodeInternal, "encode rate limit state", err)
	}
	if err := l.store.Set(storeKey, raw, ttl); err != nil {
		return WrapError(ErrCodeInternal, "write rate limit state", err)
	}
	return nil
}

// checkRateLimit wraps Check and converts a denial into a structured error.
func (l *RateLimiter) checkRateLimit(key string, window time.Duration, maxRequests int) error {
	decision, err := l.Check(key, window, maxRequests)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &Error{
			Code:          ErrCodeRateLimitExceeded,
			Message:       fmt.Sprintf("rate limit exceeded for %s", key),
			RetryAfterSec: decision.RetryAfterSec,
		}
	}
	return nil
}
