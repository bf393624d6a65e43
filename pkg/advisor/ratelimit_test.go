package advisor

import (
	"testing"
	"time"
)

func TestRateLimiterWindowProperty(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryStore())
	now, _ := frozenClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter.now = now

	const maxRequests = 5
	const extra = 3

	allowed, denied := 0, 0
	for i := 0; i < maxRequests+extra; i++ {
		decision, err := limiter.Check("client-a", time.Minute, maxRequests)
		assertNoError(t, err, "check")
		if decision.Allowed {
			allowed++
		} else {
			denied++
			if decision.RetryAfterSec <= 0 {
				t.Errorf("denied request %d: expected positive retry after, got %d", i, decision.RetryAfterSec)
			}
		}
	}
	if allowed != maxRequests {
		t.Errorf("expected exactly %d allowed, got %d", maxRequests, allowed)
	}
	if denied != extra {
		t.Errorf("expected exactly %d denied, got %d", extra, denied)
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryStore())
	now, advance := frozenClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter.now = now

	decision, err := limiter.Check("client-a", time.Minute, 1)
	assertNoError(t, err, "first check")
	if !decision.Allowed {
		t.Fatalf("first request should be allowed")
	}

	decision, err = limiter.Check("client-a", time.Minute, 1)
	assertNoError(t, err, "second check")
	if decision.Allowed {
		t.Fatalf("second request within window should be denied")
	}

	advance(time.Minute + time.Second)
	decision, err = limiter.Check("client-a", time.Minute, 1)
	assertNoError(t, err, "post-expiry check")
	if !decision.Allowed {
		t.Fatalf("request after window expiry should be allowed")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryStore())

	decision, err := limiter.Check("client-a", time.Minute, 1)
	assertNoError(t, err, "client-a")
	if !decision.Allowed {
		t.Fatalf("client-a should be allowed")
	}
	decision, err = limiter.Check("client-b", time.Minute, 1)
	assertNoError(t, err, "client-b")
	if !decision.Allowed {
		t.Fatalf("client-b has its own window")
	}
}

func TestRateLimiterRemainingCountsDown(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryStore())

	for want := 2; want >= 0; want-- {
		decision, err := limiter.Check("client-a", time.Minute, 3)
		assertNoError(t, err, "check")
		if decision.Remaining != want {
			t.Errorf("expected remaining %d, got %d", want, decision.Remaining)
		}
	}
}

func TestRateLimiterInvalidConfig(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryStore())

	_, err := limiter.Check("client-a", 0, 5)
	assertErrorCode(t, err, ErrCodeValidation, "zero window")
	_, err = limiter.Check("client-a", time.Minute, 0)
	assertErrorCode(t, err, ErrCodeValidation, "zero max")
}

func TestCheckRateLimitError(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryStore())

	assertNoError(t, limiter.checkRateLimit("key", time.Minute, 1), "first call")

	err := limiter.checkRateLimit("key", time.Minute, 1)
	assertErrorCode(t, err, ErrCodeRateLimitExceeded, "second call")
	if RetryAfter(err) <= 0 {
		t.Errorf("expected retry hint, got %d", RetryAfter(err))
	}
}
