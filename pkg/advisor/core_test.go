package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewCoreRejectsUnknownProvider(t *testing.T) {
	_, err := NewCore(CoreConfig{PrimaryProvider: "bloomberg"})
	assertErrorCode(t, err, ErrCodeValidation, "unknown data provider")

	_, err = NewCore(CoreConfig{
		PrimaryProvider:  "offline",
		FallbackProvider: "offline",
		Generation:       GenerationConfig{Provider: "openai"}, // no API key
	})
	assertErrorCode(t, err, ErrCodeValidation, "misconfigured generation backend")
}

func TestCoreCloseIsIdempotent(t *testing.T) {
	core := setupTestCore(t, nil)
	assertNoError(t, core.Close(), "first close")
	assertNoError(t, core.Close(), "second close")
}

func TestGuardProviderTripsBreaker(t *testing.T) {
	core := setupTestCore(t, func(cfg *CoreConfig) {
		cfg.Breaker = CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour, StaleAfter: 24 * time.Hour}
	})
	upstreamErr := errors.New("upstream 500")
	failing := func(ctx context.Context) error { return upstreamErr }

	for i := 0; i < 2; i++ {
		err := core.guardProvider(testContext(t), "yahoo", failing)
		if !errors.Is(err, upstreamErr) {
			t.Fatalf("call %d should surface the upstream error, got %v", i, err)
		}
	}

	err := core.guardProvider(testContext(t), "yahoo", failing)
	assertErrorCode(t, err, ErrCodeCircuitOpen, "tripped breaker")
	if RetryAfter(err) <= 0 {
		t.Errorf("open-circuit rejection should carry a retry hint")
	}

	// The breaker is keyed per provider.
	err = core.guardProvider(testContext(t), "stooq", func(ctx context.Context) error { return nil })
	assertNoError(t, err, "other provider unaffected")
}

func TestGuardProviderEnforcesRateLimit(t *testing.T) {
	core := setupTestCore(t, func(cfg *CoreConfig) {
		cfg.ProviderMax = 2
	})
	ok := func(ctx context.Context) error { return nil }

	assertNoError(t, core.guardProvider(testContext(t), "yahoo", ok), "first call")
	assertNoError(t, core.guardProvider(testContext(t), "yahoo", ok), "second call")
	assertErrorCode(t, core.guardProvider(testContext(t), "yahoo", ok), ErrCodeRateLimitExceeded, "window exhausted")
}

func TestServiceStatus(t *testing.T) {
	core := setupTestCore(t, func(cfg *CoreConfig) {
		cfg.Cost.MaxDailyCost = decimal.NewFromFloat(5)
	})

	_, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{})
	assertNoError(t, err, "analysis")

	status := core.ServiceStatus()
	if status.UptimeSec < 0 {
		t.Errorf("uptime cannot be negative: %d", status.UptimeSec)
	}
	if len(status.DataProviders) != 2 {
		t.Fatalf("expected primary and fallback entries, got %d", len(status.DataProviders))
	}
	if status.DataProviders[0].Role != "primary" || status.DataProviders[1].Role != "fallback" {
		t.Errorf("provider roles mislabeled: %+v", status.DataProviders)
	}
	for _, p := range status.DataProviders {
		if p.CircuitState == "" {
			t.Errorf("provider %s should report a circuit state", p.Name)
		}
		if !p.Healthy {
			t.Errorf("provider %s with circuit %s should be healthy", p.Name, p.CircuitState)
		}
	}
	if !status.Generation.Healthy {
		t.Errorf("untripped generation backend should be healthy")
	}
	if status.Generation.Name != "mock" {
		t.Errorf("expected mock generation backend, got %s", status.Generation.Name)
	}
	if len(status.PerStageHealth) != len(AllStages) {
		t.Errorf("every executed stage should report health, got %d", len(status.PerStageHealth))
	}
	for kind, health := range status.PerStageHealth {
		if health.LastSuccessAt.IsZero() {
			t.Errorf("stage %s should have a success timestamp", kind)
		}
	}
	if status.RecentAnalyses != 1 {
		t.Errorf("expected 1 recent analysis, got %d", status.RecentAnalyses)
	}
}

func TestResetCostLedger(t *testing.T) {
	core := setupTestCore(t, func(cfg *CoreConfig) {
		cfg.Cost.MaxDailyCost = decimal.NewFromFloat(0.000001)
	})
	core.ledger.Record(GenerationUsage{Provider: "openai", Model: "gpt-4o", PromptTokens: 10000, CompletionTokens: 10000})
	assertErrorCode(t, core.ledger.CheckBudget(), ErrCodeCostLimitExceeded, "tripped ceiling")

	core.ResetCostLedger()
	assertNoError(t, core.ledger.CheckBudget(), "after reset")
	if count := core.CostLedgerSnapshot().RequestCount; count != 0 {
		t.Errorf("reset should zero the ledger, got %d requests", count)
	}
}

func TestSweepLoopStopsOnClose(t *testing.T) {
	core, err := NewCore(CoreConfig{
		PrimaryProvider:  "offline",
		FallbackProvider: "offline",
		SweepInterval:    10 * time.Millisecond,
	})
	assertNoError(t, err, "core with sweeper")

	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		core.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close should stop the sweep loop promptly")
	}
}
