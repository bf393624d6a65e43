package advisor

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"
)

const breakerKeyPrefix = "breaker:"

// Circuit states.
const (
	CircuitClosed   = "CLOSED"
	CircuitOpen     = "OPEN"
	CircuitHalfOpen = "HALF_OPEN"
)

// BreakerDecision is the outcome of asking the breaker whether a call may
// proceed. The breaker never invokes the guarded operation itself; callers
// report the outcome via RecordSuccess/RecordFailure, which keeps it
// composable with the retry orchestrator.
type BreakerDecision struct {
	Allowed       bool
	State         string
	RetryAfterSec int
}

type circuitRecord struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastFailureAt       int64  `json:"last_failure_at,omitempty"`
	NextAttemptAt       int64  `json:"next_attempt_at,omitempty"`
	UpdatedAt           int64  `json:"updated_at"`
}

// CircuitBreakerConfig tunes the per-dependency state machine.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	// StaleAfter bounds memory: CLOSED records idle longer than this are
	// purged by the periodic sweep.
	StaleAfter time.Duration
}

// DefaultCircuitBreakerConfig mirrors the tuning used for upstream data and
// generation dependencies.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		StaleAfter:       time.Hour,
	}
}

// CircuitBreaker tracks one state machine per dependency key, created lazily
// on first use.
type CircuitBreaker struct {
	mu     sync.Mutex
	store  StateStore
	config CircuitBreakerConfig
	now    func() time.Time
}

// NewCircuitBreaker creates a breaker backed by the given store.
func NewCircuitBreaker(store StateStore, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = time.Hour
	}
	return &CircuitBreaker{store: store, config: config, now: time.Now}
}

// Allow reports whether a call to the dependency may proceed right now.
// An OPEN breaker whose recovery timeout has elapsed transitions to
// HALF_OPEN and lets exactly this call through as the trial.
func (b *CircuitBreaker) Allow(key string) (BreakerDecision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	record, err := b.load(key)
	if err != nil {
		return BreakerDecision{}, err
	}

	switch record.State {
	case CircuitOpen:
		if now.UnixMilli() >= record.NextAttemptAt {
			record.State = CircuitHalfOpen
			record.UpdatedAt = now.UnixMilli()
			if err := b.save(key, record); err != nil {
				return BreakerDecision{}, err
			}
			return BreakerDecision{Allowed: true, State: CircuitHalfOpen}, nil
		}
		retryAfter := int(math.Ceil(float64(record.NextAttemptAt-now.UnixMilli()) / 1000.0))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return BreakerDecision{Allowed: false, State: CircuitOpen, RetryAfterSec: retryAfter}, nil
	case CircuitHalfOpen:
		// A trial call is already in flight; its outcome decides.
		return BreakerDecision{Allowed: true, State: CircuitHalfOpen}, nil
	default:
		return BreakerDecision{Allowed: true, State: CircuitClosed}, nil
	}
}

// RecordSuccess reports a successful call outcome for key.
func (b *CircuitBreaker) RecordSuccess(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, err := b.load(key)
	if err != nil {
		return err
	}
	record.State = CircuitClosed
	record.ConsecutiveFailures = 0
	record.NextAttemptAt = 0
	record.UpdatedAt = b.now().UnixMilli()
	return b.save(key, record)
}

// RecordFailure reports a failed call outcome for key. Reaching the failure
// threshold in CLOSED, or any failure in HALF_OPEN, opens the circuit.
func (b *CircuitBreaker) RecordFailure(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	record, err := b.load(key)
	if err != nil {
		return err
	}

	record.ConsecutiveFailures++
	record.LastFailureAt = now.UnixMilli()
	record.UpdatedAt = now.UnixMilli()

	if record.State == CircuitHalfOpen || record.ConsecutiveFailures >= b.config.FailureThreshold {
		record.State = CircuitOpen
		record.NextAttemptAt = now.Add(b.config.RecoveryTimeout).UnixMilli()
	}
	return b.save(key, record)
}

// State returns the current state string for key without consuming anything.
func (b *CircuitBreaker) State(key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, err := b.load(key)
	if err != nil {
		return "", err
	}
	return record.State, nil
}

// sweepStale purges CLOSED records that have been idle past StaleAfter.
// OPEN and HALF_OPEN records are kept; they carry live recovery state.
func (b *CircuitBreaker) sweepStale(now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys, err := b.store.Keys(breakerKeyPrefix)
	if err != nil {
		return 0, WrapError(ErrCodeInternal, "list breaker keys", err)
	}
	cutoff := now.Add(-b.config.StaleAfter).UnixMilli()
	purged := 0
	for _, storeKey := range keys {
		raw, ok, err := b.store.Get(storeKey)
		if err != nil || !ok {
			continue
		}
		var record circuitRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		if record.State == CircuitClosed && record.UpdatedAt < cutoff {
			if err := b.store.Delete(storeKey); err == nil {
				purged++
			}
		}
	}
	return purged, nil
}

func (b *CircuitBreaker) load(key string) (circuitRecord, error) {
	record := circuitRecord{State: CircuitClosed}
	raw, ok, err := b.store.Get(breakerKeyPrefix + key)
	if err != nil {
		return record, WrapError(ErrCodeInternal, "read breaker state", err)
	}
	if !ok {
		return record, nil
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return circuitRecord{State: CircuitClosed}, nil
	}
	return record, nil
}

func (b *CircuitBreaker) save(key string, record circuitRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return WrapError(ErrCodeInternal, "encode breaker state", err)
	}
	if err := b.store.Set(breakerKeyPrefix+key, raw, 0); err != nil {
		return WrapError(ErrCodeInternal, "write breaker state", err)
	}
	return nil
}

// checkAllowed wraps Allow and converts a rejection into a structured error.
func (b *CircuitBreaker) checkAllowed(key string) error {
	decision, err := b.Allow(key)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &Error{
			Code:          ErrCodeCircuitOpen,
			Message:       fmt.Sprintf("circuit open for %s", key),
			RetryAfterSec: decision.RetryAfterSec,
		}
	}
	return nil
}
