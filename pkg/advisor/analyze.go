package advisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// AnalyzeOptions selects what one analysis runs. An empty Stages slice means
// all four dimensions ("comprehensive"). GenerationProvider overrides the
// configured backend for this request; only the configured backend's name and
// "mock" are valid, because switching to an unconfigured provider would need
// credentials the request cannot carry.
type AnalyzeOptions struct {
	Stages             []StageKind `json:"stages"`
	UseGeneration      bool        `json:"use_generation"`
	GenerationProvider string      `json:"generation_provider,omitempty"`
}

func (o AnalyzeOptions) resolveStages() ([]StageKind, error) {
	if len(o.Stages) == 0 {
		return AllStages, nil
	}
	seen := map[StageKind]bool{}
	resolved := make([]StageKind, 0, len(o.Stages))
	for _, kind := range o.Stages {
		if !ValidStage(kind) {
			return nil, NewError(ErrCodeValidation, fmt.Sprintf("unknown analysis stage %q", kind))
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		resolved = append(resolved, kind)
	}
	return resolved, nil
}

// providerUnavailableRetry is the hint attached when every stage's data
// fetch failed. There is no window or breaker deadline to derive it from.
const providerUnavailableRetry = 30 * time.Second

// Analyze runs the requested dimensions for one symbol and merges them into
// a single recommendation. The fundamental, technical, and sentiment stages
// run concurrently; risk runs after them because it consumes their outputs.
// A stage whose data fetch fails is dropped and the analysis continues with
// the rest; only zero surviving stages is a hard failure. Generation-path
// failures never fail a stage, they downgrade it to a templated narrative.
func (c *Core) Analyze(ctx context.Context, symbol string, options AnalyzeOptions) (AnalysisResult, error) {
	started := time.Now()

	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return AnalysisResult{}, NewError(ErrCodeValidation, "symbol is required")
	}
	stages, err := options.resolveStages()
	if err != nil {
		return AnalysisResult{}, err
	}

	if err := c.limiter.checkRateLimit("analyze:"+symbol, c.config.AnalyzeWindow, c.config.AnalyzeMaxRequests); err != nil {
		return AnalysisResult{}, err
	}

	var generationUsed atomic.Bool
	deps := stageDeps{providers: c.manager, logger: c.logger}
	if options.UseGeneration {
		backend, err := c.backendFor(options.GenerationProvider)
		if err != nil {
			return AnalysisResult{}, err
		}
		deps.narrate = func(ctx context.Context, stage StageKind, system, prompt string) (string, bool) {
			content, ok := c.generate(ctx, backend, stage, system, prompt)
			if ok {
				generationUsed.Store(true)
			}
			return content, ok
		}
	}

	wantRisk := false
	concurrent := make([]StageKind, 0, 3)
	for _, kind := range stages {
		if kind == StageRisk {
			wantRisk = true
			continue
		}
		concurrent = append(concurrent, kind)
	}

	results := map[StageKind]StageResult{}
	errs := map[StageKind]error{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, kind := range concurrent {
		wg.Add(1)
		go func(kind StageKind) {
			defer wg.Done()
			result, err := c.runStage(ctx, deps, kind, symbol, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[kind] = err
				return
			}
			results[kind] = result
		}(kind)
	}
	wg.Wait()

	if wantRisk {
		result, err := c.runStage(ctx, deps, StageRisk, symbol, results)
		if err != nil {
			errs[StageRisk] = err
		} else {
			results[StageRisk] = result
		}
	}

	if len(results) == 0 {
		return AnalysisResult{}, c.analysisFailure(symbol, stages, errs)
	}

	// Quote is best-effort context for the target price band.
	var quote *Quote
	q, quoteResult, qErr := c.manager.Quote(ctx, symbol)
	if qErr == nil {
		quote = &q
	}

	// FallbackUsed means any part of the analysis, stage fetch or quote,
	// was served by the fallback source.
	fallbackUsed := quoteResult.IsFallback
	for _, result := range results {
		if result.FromFallback {
			fallbackUsed = true
		}
	}

	analysis := summarize(symbol, results, quote)
	analysis.Metadata = AnalysisMetadata{
		DurationMs:     time.Since(started).Milliseconds(),
		GenerationUsed: generationUsed.Load(),
		Provider:       c.manager.PrimaryName(),
		FallbackUsed:   fallbackUsed,
	}

	c.recent.add(analysis)
	if c.sink != nil {
		go c.sink.OnAnalysisComplete(symbol, analysis)
	}

	c.logger.Info("analysis complete",
		"symbol", symbol,
		"recommendation", string(analysis.Recommendation),
		"composite", analysis.CompositeScore,
		"confidence", analysis.Confidence,
		"stages", len(results),
		"duration_ms", analysis.Metadata.DurationMs)
	return analysis, nil
}

func (c *Core) runStage(ctx context.Context, deps stageDeps, kind StageKind, symbol string, prior map[StageKind]StageResult) (StageResult, error) {
	var result StageResult
	var err error
	switch kind {
	case StageFundamental:
		result, err = runFundamentalStage(ctx, deps, symbol)
	case StageTechnical:
		result, err = runTechnicalStage(ctx, deps, symbol)
	case StageSentiment:
		result, err = runSentimentStage(ctx, deps, symbol)
	case StageRisk:
		result, err = runRiskStage(ctx, deps, symbol, prior)
	default:
		err = NewError(ErrCodeValidation, fmt.Sprintf("unknown analysis stage %q", kind))
	}

	c.recordStageHealth(kind, err)
	if err != nil {
		c.logger.Warn("stage failed", "stage", string(kind), "symbol", symbol, "error", err)
	}
	return result, err
}

// analysisFailure picks the error to surface when every stage failed.
// Layer-level rejections (rate limit, open circuit, cost cap) pass through
// with their retry hints; anything else is reported as the provider being
// unavailable, carrying the first stage error as the cause.
func (c *Core) analysisFailure(symbol string, stages []StageKind, errs map[StageKind]error) error {
	var first error
	for _, kind := range stages {
		err, ok := errs[kind]
		if !ok {
			continue
		}
		for _, code := range []ErrorCode{ErrCodeRateLimitExceeded, ErrCodeCircuitOpen, ErrCodeCostLimitExceeded, ErrCodeValidation} {
			if IsErrorCode(err, code) {
				return err
			}
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		first = NewError(ErrCodeInternal, "no stages were executed")
	}
	wrapped := WrapError(ErrCodeProviderUnavailable, fmt.Sprintf("all analysis stages failed for %s", symbol), first)
	// Upstream outages are usually transient; give callers a timed hint.
	wrapped.RetryAfterSec = int(providerUnavailableRetry / time.Second)
	return wrapped
}
