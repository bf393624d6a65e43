package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// UsageSink receives completed analyses. Delivery is fire-and-forget: the
// sink runs on its own goroutine and can never block or fail a response.
type UsageSink interface {
	OnAnalysisComplete(symbol string, result AnalysisResult)
}

// CoreConfig wires the whole analysis layer. Zero values fall back to the
// defaults noted per field.
type CoreConfig struct {
	// StatePath selects the sqlite-backed state store; empty means in-memory.
	StatePath string

	// Per-symbol analyze rate limit. Defaults: 10 requests per minute.
	AnalyzeWindow      time.Duration
	AnalyzeMaxRequests int

	// Per-provider upstream rate limit. Defaults: 30 requests per minute.
	ProviderWindow     time.Duration
	ProviderMax        int

	Breaker    CircuitBreakerConfig
	Retry      RetryConfig
	Cost       CostLedgerConfig
	Generation GenerationConfig

	// PrimaryProvider/FallbackProvider name data sources: "yahoo", "stooq",
	// or "offline". Defaults: yahoo primary, stooq fallback.
	PrimaryProvider  string
	FallbackProvider string

	// CallTimeout bounds each external call. Default 15s.
	CallTimeout time.Duration
	// SweepInterval drives the periodic purge of expired windows and stale
	// breaker records. Default 5m; negative disables the sweep.
	SweepInterval time.Duration
	// RecentSize bounds the in-memory ring of recent analyses. Default 50.
	RecentSize int

	// HTTPClient overrides the transport used by HTTP-backed providers.
	HTTPClient HTTPDoer
	Logger     *slog.Logger
	Sink       UsageSink
}

func (c *CoreConfig) applyDefaults() {
	if c.AnalyzeWindow <= 0 {
		c.AnalyzeWindow = time.Minute
	}
	if c.AnalyzeMaxRequests <= 0 {
		c.AnalyzeMaxRequests = 10
	}
	if c.ProviderWindow <= 0 {
		c.ProviderWindow = time.Minute
	}
	if c.ProviderMax <= 0 {
		c.ProviderMax = 30
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.RecentSize <= 0 {
		c.RecentSize = 50
	}
	if c.Breaker.FailureThreshold == 0 && c.Breaker.RecoveryTimeout == 0 {
		c.Breaker = DefaultCircuitBreakerConfig()
	}
	if c.Retry.MaxRetries == 0 && c.Retry.BaseDelay == 0 {
		c.Retry = DefaultRetryConfig()
	}
	if c.PrimaryProvider == "" {
		c.PrimaryProvider = "yahoo"
	}
	if c.FallbackProvider == "" {
		c.FallbackProvider = "stooq"
	}
}

type stageHealth struct {
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Core owns every moving part of the analysis layer and exposes the public
// Analyze/ServiceStatus surface.
type Core struct {
	config  CoreConfig
	store   StateStore
	limiter *RateLimiter
	breaker *CircuitBreaker
	ledger  *CostLedger
	retry   *RetryOrchestrator
	manager *ProviderManager
	backend GenerationBackend
	logger  *slog.Logger
	sink    UsageSink
	recent  *analysisRing

	// mockBackend backs per-request "mock" overrides when a real backend
	// is configured.
	mockBackend *MockBackend

	healthMu sync.Mutex
	health   map[StageKind]stageHealth

	startedAt time.Time
	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewCore builds and starts the analysis layer.
func NewCore(config CoreConfig) (*Core, error) {
	config.applyDefaults()

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var store StateStore
	var err error
	if config.StatePath != "" {
		store, err = NewSQLiteStore(config.StatePath)
		if err != nil {
			return nil, fmt.Errorf("open state store: %w", err)
		}
	} else {
		store = NewMemoryStore()
	}

	ledger := NewCostLedger(store, config.Cost)
	backend, err := NewGenerationBackend(config.Generation)
	if err != nil {
		store.Close()
		return nil, err
	}

	c := &Core{
		config:    config,
		store:     store,
		limiter:   NewRateLimiter(store),
		breaker:   NewCircuitBreaker(store, config.Breaker),
		ledger:    ledger,
		retry:     NewRetryOrchestrator(config.Retry, ledger),
		backend:   backend,
		logger:    logger,
		sink:      config.Sink,
		recent:    newAnalysisRing(config.RecentSize),
		health:    map[StageKind]stageHealth{},
		startedAt: time.Now(),
	}
	if mock, ok := backend.(*MockBackend); ok {
		c.mockBackend = mock
	} else {
		c.mockBackend = NewMockBackend("")
	}

	primary, err := c.buildProvider(config.PrimaryProvider)
	if err != nil {
		store.Close()
		return nil, err
	}
	fallback, err := c.buildProvider(config.FallbackProvider)
	if err != nil {
		store.Close()
		return nil, err
	}
	c.manager = NewProviderManager(primary, fallback, c.guardProvider, logger)

	if config.SweepInterval > 0 {
		c.sweepStop = make(chan struct{})
		c.sweepDone = make(chan struct{})
		go c.sweepLoop(config.SweepInterval)
	}
	return c, nil
}

// Close stops the sweep loop and releases the state store.
func (c *Core) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.sweepStop != nil {
			close(c.sweepStop)
			<-c.sweepDone
		}
		err = c.store.Close()
	})
	return err
}

func (c *Core) buildProvider(name string) (MarketDataProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "yahoo":
		return NewYahooProvider(c.config.HTTPClient, c.config.CallTimeout), nil
	case "stooq":
		return NewStooqProvider(c.config.HTTPClient, c.config.CallTimeout), nil
	case "offline", "seed":
		return NewSeededProvider(), nil
	default:
		return nil, NewError(ErrCodeValidation, fmt.Sprintf("unknown data provider %q", name))
	}
}

// guardProvider composes the per-provider protections around one upstream
// call: rate limit, then circuit breaker, then the call itself under the
// configured timeout with its outcome reported back to the breaker. Each
// provider has its own limiter window and breaker record, so a failing
// primary never counts against the fallback.
func (c *Core) guardProvider(ctx context.Context, providerName string, fn func(context.Context) error) error {
	if err := c.limiter.checkRateLimit("provider:"+providerName, c.config.ProviderWindow, c.config.ProviderMax); err != nil {
		return err
	}
	if err := c.breaker.checkAllowed("provider:" + providerName); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil {
		if recordErr := c.breaker.RecordFailure("provider:" + providerName); recordErr != nil {
			c.logger.Warn("record breaker failure", "provider", providerName, "error", recordErr)
		}
		return err
	}
	if recordErr := c.breaker.RecordSuccess("provider:" + providerName); recordErr != nil {
		c.logger.Warn("record breaker success", "provider", providerName, "error", recordErr)
	}
	return nil
}

// backendFor resolves a per-request generation provider name. Empty means
// the configured backend; "mock" is always available; any other name must
// match the configured backend, since no credentials exist for the rest.
func (c *Core) backendFor(name string) (GenerationBackend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", c.backend.Name():
		return c.backend, nil
	case "mock":
		return c.mockBackend, nil
	default:
		return nil, NewError(ErrCodeValidation, fmt.Sprintf("generation provider %q is not configured", name))
	}
}

// generate runs one guarded generation call: breaker check, then the retry
// orchestrator (which consults the cost ledger before every attempt), then
// usage recording. Returns the raw content and whether it is usable; all
// failures are logged and swallowed so callers fall back to templates.
func (c *Core) generate(ctx context.Context, backend GenerationBackend, stage StageKind, system, prompt string) (string, bool) {
	key := "generation:" + backend.Name()
	if err := c.breaker.checkAllowed(key); err != nil {
		c.logger.Warn("generation skipped", "stage", string(stage), "error", err)
		return "", false
	}

	var result GenerationResult
	err := c.retry.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()

		var genErr error
		result, genErr = backend.Generate(callCtx, GenerationRequest{
			System:      system,
			Prompt:      prompt,
			Model:       c.config.Generation.Model,
			MaxTokens:   c.config.Generation.MaxTokens,
			Temperature: c.config.Generation.Temperature,
		})
		return genErr
	})
	if err != nil {
		// A tripped cost cap rejects the attempt before the backend is
		// called, so it says nothing about backend health and must not
		// feed the breaker.
		if !IsErrorCode(err, ErrCodeCostLimitExceeded) {
			if recordErr := c.breaker.RecordFailure(key); recordErr != nil {
				c.logger.Warn("record breaker failure", "backend", backend.Name(), "error", recordErr)
			}
		}
		c.logger.Warn("generation failed, falling back to template",
			"stage", string(stage), "backend", backend.Name(), "error", err)
		return "", false
	}
	if recordErr := c.breaker.RecordSuccess(key); recordErr != nil {
		c.logger.Warn("record breaker success", "backend", backend.Name(), "error", recordErr)
	}

	usage := c.ledger.Record(result.Usage)
	c.logger.Info("generation call",
		"stage", string(stage),
		"backend", result.Provider,
		"model", result.Model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"estimated_cost", usage.EstimatedCost.String())
	return result.Content, true
}

func (c *Core) recordStageHealth(stage StageKind, err error) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	h := c.health[stage]
	if err != nil {
		h.LastFailureAt = time.Now()
		h.LastError = err.Error()
	} else {
		h.LastSuccessAt = time.Now()
		h.LastError = ""
	}
	c.health[stage] = h
}

// ResetCostLedger clears accumulated generation spend. This is the manual
// recovery path after a tripped cost ceiling.
func (c *Core) ResetCostLedger() {
	c.ledger.Reset()
	c.logger.Info("cost ledger reset")
}

// CostLedgerSnapshot exposes the current spend view.
func (c *Core) CostLedgerSnapshot() LedgerSnapshot {
	return c.ledger.Snapshot()
}

// RecentAnalyses lists the most recent results, newest first.
func (c *Core) RecentAnalyses() []AnalysisResult {
	return c.recent.list()
}

func (c *Core) sweepLoop(interval time.Duration) {
	defer close(c.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.sweepStop:
			return
		case <-ticker.C:
			now := time.Now()
			expired, err := c.store.Sweep(now)
			if err != nil {
				c.logger.Warn("state sweep failed", "error", err)
				continue
			}
			stale, err := c.breaker.sweepStale(now)
			if err != nil {
				c.logger.Warn("breaker sweep failed", "error", err)
				continue
			}
			if expired > 0 || stale > 0 {
				c.logger.Debug("state sweep", "expired", expired, "stale_breakers", stale)
			}
		}
	}
}

// analysisRing is a bounded, newest-first buffer of completed analyses.
type analysisRing struct {
	mu    sync.Mutex
	items []AnalysisResult
	size  int
}

func newAnalysisRing(size int) *analysisRing {
	return &analysisRing{size: size}
}

func (r *analysisRing) add(result AnalysisResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append([]AnalysisResult{result}, r.items...)
	if len(r.items) > r.size {
		r.items = r.items[:r.size]
	}
}

func (r *analysisRing) list() []AnalysisResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AnalysisResult, len(r.items))
	copy(out, r.items)
	return out
}
