package advisor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAnalyzeComprehensive(t *testing.T) {
	core := setupTestCore(t, nil)

	result, err := core.Analyze(testContext(t), "aapl", AnalyzeOptions{})
	assertNoError(t, err, "comprehensive analysis")

	if result.Symbol != "AAPL" {
		t.Errorf("symbol should be normalized, got %s", result.Symbol)
	}
	if len(result.PerStage) != len(AllStages) {
		t.Errorf("expected %d stage results, got %d", len(AllStages), len(result.PerStage))
	}
	switch result.Recommendation {
	case RecommendationBuy, RecommendationHold, RecommendationNeutral, RecommendationSell:
	default:
		t.Errorf("unexpected recommendation %q", result.Recommendation)
	}
	if result.Confidence < 0.3 || result.Confidence > 0.9 {
		t.Errorf("confidence out of range: %v", result.Confidence)
	}
	if len(result.Sources) == 0 {
		t.Errorf("analysis should name its data sources")
	}
	if result.Metadata.GenerationUsed {
		t.Errorf("generation was not requested")
	}
	if result.TargetPriceBand == nil {
		t.Errorf("quote is available offline, expected a price band")
	}

	recent := core.RecentAnalyses()
	if len(recent) != 1 || recent[0].Symbol != "AAPL" {
		t.Errorf("analysis should be recorded in the recent ring, got %d entries", len(recent))
	}
}

func TestAnalyzeStageSubset(t *testing.T) {
	core := setupTestCore(t, nil)

	result, err := core.Analyze(testContext(t), "MSFT", AnalyzeOptions{
		Stages: []StageKind{StageFundamental, StageFundamental, StageTechnical},
	})
	assertNoError(t, err, "subset analysis")

	if len(result.PerStage) != 2 {
		t.Errorf("duplicates should collapse; expected 2 stages, got %d", len(result.PerStage))
	}
	if _, ok := result.PerStage[StageRisk]; ok {
		t.Errorf("risk was not requested")
	}
}

func TestAnalyzeValidation(t *testing.T) {
	core := setupTestCore(t, nil)

	_, err := core.Analyze(testContext(t), "   ", AnalyzeOptions{})
	assertErrorCode(t, err, ErrCodeValidation, "blank symbol")

	_, err = core.Analyze(testContext(t), "AAPL", AnalyzeOptions{Stages: []StageKind{"astrology"}})
	assertErrorCode(t, err, ErrCodeValidation, "unknown stage")
}

func TestAnalyzePerSymbolRateLimit(t *testing.T) {
	core := setupTestCore(t, func(cfg *CoreConfig) {
		cfg.AnalyzeMaxRequests = 1
	})

	_, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{})
	assertNoError(t, err, "first analysis")

	_, err = core.Analyze(testContext(t), "AAPL", AnalyzeOptions{})
	assertErrorCode(t, err, ErrCodeRateLimitExceeded, "second analysis")
	if RetryAfter(err) <= 0 {
		t.Errorf("rate-limit rejection should carry a retry hint")
	}

	// Other symbols have their own windows.
	_, err = core.Analyze(testContext(t), "MSFT", AnalyzeOptions{})
	assertNoError(t, err, "different symbol")
}

func TestAnalyzeWithGenerationNarratives(t *testing.T) {
	core := setupTestCore(t, nil)
	mock := core.backend.(*MockBackend)
	mock.Response = `{"narrative": "Model-written stage narrative."}`

	result, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{UseGeneration: true})
	assertNoError(t, err, "generated analysis")

	if !result.Metadata.GenerationUsed {
		t.Errorf("generation metadata flag should be set")
	}
	for kind, stage := range result.PerStage {
		if stage.Narrative != "Model-written stage narrative." {
			t.Errorf("%s narrative should come from the model, got %q", kind, stage.Narrative)
		}
	}
	snapshot := core.CostLedgerSnapshot()
	if snapshot.RequestCount == 0 {
		t.Errorf("generation calls should be recorded in the cost ledger")
	}
}

func TestAnalyzeGenerationProviderOverride(t *testing.T) {
	core := setupTestCore(t, nil)

	_, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{
		UseGeneration:      true,
		GenerationProvider: "mock",
	})
	assertNoError(t, err, "explicit mock provider")

	_, err = core.Analyze(testContext(t), "AAPL", AnalyzeOptions{
		UseGeneration:      true,
		GenerationProvider: "anthropic", // not configured on this core
	})
	assertErrorCode(t, err, ErrCodeValidation, "unconfigured provider override")
}

func TestAnalyzeGenerationFailureDowngradesToTemplates(t *testing.T) {
	core := setupTestCore(t, func(cfg *CoreConfig) {
		cfg.Retry = RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
	})
	mock := core.backend.(*MockBackend)
	mock.Err = ErrNoData

	result, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{UseGeneration: true})
	assertNoError(t, err, "analysis must survive generation failures")

	if result.Metadata.GenerationUsed {
		t.Errorf("failed generation must not be reported as used")
	}
	for kind, stage := range result.PerStage {
		if stage.Narrative == "" {
			t.Errorf("%s should fall back to a templated narrative", kind)
		}
	}
}

func TestAnalyzeCostCeilingStillProducesAnalysis(t *testing.T) {
	core := setupTestCore(t, func(cfg *CoreConfig) {
		cfg.Cost.MaxDailyCost = decimal.NewFromFloat(0.000001)
	})
	// Exhaust the daily budget before the analysis runs.
	core.ledger.Record(GenerationUsage{Provider: "openai", Model: "gpt-4o", PromptTokens: 10000, CompletionTokens: 10000})
	mock := core.backend.(*MockBackend)

	result, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{UseGeneration: true})
	assertNoError(t, err, "analysis must survive a tripped cost ceiling")

	if mock.Calls.Load() != 0 {
		t.Errorf("the budget gate should block generation before any attempt, got %d calls", mock.Calls.Load())
	}
	if result.Metadata.GenerationUsed {
		t.Errorf("no generation happened")
	}
	if len(result.PerStage) != len(AllStages) {
		t.Errorf("all stages should still run on templates, got %d", len(result.PerStage))
	}
}

func TestCostCeilingDoesNotTripGenerationBreaker(t *testing.T) {
	core := setupTestCore(t, func(cfg *CoreConfig) {
		cfg.Cost.MaxDailyCost = decimal.NewFromFloat(0.000001)
		cfg.Breaker = CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute}
	})
	core.ledger.Record(GenerationUsage{Provider: "openai", Model: "gpt-4o", PromptTokens: 10000, CompletionTokens: 10000})

	// A comprehensive run makes four narration attempts, all rejected by
	// the budget gate before the backend is called, well past the failure
	// threshold.
	_, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{UseGeneration: true})
	assertNoError(t, err, "analysis under a tripped ceiling")

	status := core.ServiceStatus()
	if status.Generation.CircuitState != CircuitClosed {
		t.Errorf("budget rejections must not open the generation circuit, got %s", status.Generation.CircuitState)
	}
	if !status.Generation.Healthy {
		t.Errorf("backend health must not reflect budget state")
	}
}

func TestAnalyzeDefaultMockProducesModelNarratives(t *testing.T) {
	core := setupTestCore(t, nil)

	result, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{UseGeneration: true})
	assertNoError(t, err, "generated analysis")

	if !result.Metadata.GenerationUsed {
		t.Errorf("generation metadata flag should be set")
	}
	for kind, stage := range result.PerStage {
		assertContains(t, stage.Narrative, "Deterministic summary:",
			string(kind)+" narrative should come from the backend, not the template")
	}
}

// quoteOnlyProvider serves quotes but fails every data fetch, forcing the
// stages onto the fallback while the quote stays on the primary.
type quoteOnlyProvider struct{ quotes *SeededProvider }

func (p quoteOnlyProvider) Name() string { return "yahoo" }

func (p quoteOnlyProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	return p.quotes.Quote(ctx, symbol)
}

func (p quoteOnlyProvider) Candles(ctx context.Context, symbol string, days int) ([]Candle, error) {
	return nil, ErrNoData
}

func (p quoteOnlyProvider) Fundamentals(ctx context.Context, symbol string) (Fundamentals, error) {
	return Fundamentals{}, ErrNoData
}

func (p quoteOnlyProvider) Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error) {
	return nil, ErrNoData
}

func TestFallbackMetadataReflectsStageFetches(t *testing.T) {
	core := setupTestCore(t, nil)
	core.manager = NewProviderManager(quoteOnlyProvider{quotes: NewSeededProvider()}, NewSeededProvider(), core.guardProvider, core.logger)

	result, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{})
	assertNoError(t, err, "analysis")

	if !result.Metadata.FallbackUsed {
		t.Errorf("stage fetches were served by the fallback; metadata should say so")
	}
	for kind, stage := range result.PerStage {
		if !stage.FromFallback {
			t.Errorf("%s was served by the fallback", kind)
		}
	}
}

func TestAnalyzeAllStagesFailing(t *testing.T) {
	core := setupTestCore(t, nil)
	core.manager = NewProviderManager(failingCandleProvider{}, nil, core.guardProvider, core.logger)

	_, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{})
	assertErrorCode(t, err, ErrCodeProviderUnavailable, "zero surviving stages")
	if RetryAfter(err) <= 0 {
		t.Errorf("provider outage should carry a retry hint")
	}
}

type captureSink struct {
	symbols chan string
}

func (s *captureSink) OnAnalysisComplete(symbol string, result AnalysisResult) {
	s.symbols <- symbol
}

func TestAnalyzeNotifiesUsageSink(t *testing.T) {
	sink := &captureSink{symbols: make(chan string, 1)}
	core := setupTestCore(t, func(cfg *CoreConfig) {
		cfg.Sink = sink
	})

	_, err := core.Analyze(testContext(t), "AAPL", AnalyzeOptions{})
	assertNoError(t, err, "analysis")

	select {
	case symbol := <-sink.symbols:
		if symbol != "AAPL" {
			t.Errorf("sink got wrong symbol %s", symbol)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("usage sink was never notified")
	}
}

func TestRecentAnalysesRingIsNewestFirstAndBounded(t *testing.T) {
	core := setupTestCore(t, func(cfg *CoreConfig) {
		cfg.RecentSize = 2
	})

	for _, symbol := range []string{"AAPL", "MSFT", "NVDA"} {
		_, err := core.Analyze(testContext(t), symbol, AnalyzeOptions{})
		assertNoError(t, err, symbol)
	}

	recent := core.RecentAnalyses()
	if len(recent) != 2 {
		t.Fatalf("ring should cap at 2 entries, got %d", len(recent))
	}
	if recent[0].Symbol != "NVDA" || recent[1].Symbol != "MSFT" {
		t.Errorf("expected newest-first [NVDA MSFT], got [%s %s]", recent[0].Symbol, recent[1].Symbol)
	}
}
