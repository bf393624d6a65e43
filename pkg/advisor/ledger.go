package advisor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const ledgerStateKey = "ledger:generation"

// ModelPricing holds per-1K-token prices in USD for one model.
type ModelPricing struct {
	InputPer1K  decimal.Decimal `json:"input_per_1k"`
	OutputPer1K decimal.Decimal `json:"output_per_1k"`
}

// PricingTable maps "provider/model" to prices, with a "provider/*" wildcard
// entry used for models without an explicit row. Unknown models cost zero,
// matching how self-hosted backends are billed.
type PricingTable map[string]ModelPricing

// DefaultPricingTable covers the bundled backends. Config may override rows.
func DefaultPricingTable() PricingTable {
	return PricingTable{
		"openai/gpt-4o":                      {InputPer1K: decimal.NewFromFloat(0.0025), OutputPer1K: decimal.NewFromFloat(0.01)},
		"openai/gpt-4o-mini":                 {InputPer1K: decimal.NewFromFloat(0.00015), OutputPer1K: decimal.NewFromFloat(0.0006)},
		"openai/*":                           {InputPer1K: decimal.NewFromFloat(0.0025), OutputPer1K: decimal.NewFromFloat(0.01)},
		"anthropic/claude-sonnet-4-20250514": {InputPer1K: decimal.NewFromFloat(0.003), OutputPer1K: decimal.NewFromFloat(0.015)},
		"anthropic/*":                        {InputPer1K: decimal.NewFromFloat(0.003), OutputPer1K: decimal.NewFromFloat(0.015)},
		"gemini/gemini-2.0-flash":            {InputPer1K: decimal.NewFromFloat(0.0001), OutputPer1K: decimal.NewFromFloat(0.0004)},
		"gemini/*":                           {InputPer1K: decimal.NewFromFloat(0.0001), OutputPer1K: decimal.NewFromFloat(0.0004)},
	}
}

// Lookup resolves pricing for a provider/model pair.
func (t PricingTable) Lookup(provider, model string) (ModelPricing, bool) {
	if pricing, ok := t[provider+"/"+model]; ok {
		return pricing, true
	}
	if pricing, ok := t[provider+"/*"]; ok {
		return pricing, true
	}
	return ModelPricing{}, false
}

// GenerationUsage is the token accounting for one generation call.
type GenerationUsage struct {
	PromptTokens     int64           `json:"prompt_tokens"`
	CompletionTokens int64           `json:"completion_tokens"`
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	EstimatedCost    decimal.Decimal `json:"estimated_cost"`
}

// LedgerSnapshot is a read-only view of accumulated generation spend.
type LedgerSnapshot struct {
	DailySpend     decimal.Decimal `json:"daily_spend"`
	MonthlySpend   decimal.Decimal `json:"monthly_spend"`
	TotalTokens    int64           `json:"total_tokens"`
	RequestCount   int64           `json:"request_count"`
	DayStartedAt   string          `json:"day_started_at"`
	MonthStartedAt string          `json:"month_started_at"`
}

type ledgerState struct {
	Day            string          `json:"day"`   // 2006-01-02
	Month          string          `json:"month"` // 2006-01
	DailySpend     decimal.Decimal `json:"daily_spend"`
	MonthlySpend   decimal.Decimal `json:"monthly_spend"`
	TotalTokens    int64           `json:"total_tokens"`
	RequestCount   int64           `json:"request_count"`
	DayStartedAt   string          `json:"day_started_at"`
	MonthStartedAt string          `json:"month_started_at"`
}

// CostLedgerConfig sets the hard spend ceilings. A zero cap disables that
// ceiling.
type CostLedgerConfig struct {
	MaxDailyCost   decimal.Decimal
	MaxMonthlyCost decimal.Decimal
	Pricing        PricingTable
}

// CostLedger is the process-scoped usage/cost accumulator guarding the
// generation path. Day and month rollover is detected lazily on read.
type CostLedger struct {
	mu     sync.Mutex
	store  StateStore
	config CostLedgerConfig
	now    func() time.Time
}

// NewCostLedger creates a ledger backed by the given store.
func NewCostLedger(store StateStore, config CostLedgerConfig) *CostLedger {
	if config.Pricing == nil {
		config.Pricing = DefaultPricingTable()
	}
	return &CostLedger{store: store, config: config, now: time.Now}
}

// CostFor estimates the USD cost of one usage record:
// (promptTokens/1000)*inputPrice + (completionTokens/1000)*outputPrice.
func (l *CostLedger) CostFor(usage GenerationUsage) decimal.Decimal {
	pricing, ok := l.config.Pricing.Lookup(usage.Provider, usage.Model)
	if !ok {
		return decimal.Zero
	}
	thousand := decimal.NewFromInt(1000)
	promptCost := decimal.NewFromInt(usage.PromptTokens).Div(thousand).Mul(pricing.InputPer1K)
	completionCost := decimal.NewFromInt(usage.CompletionTokens).Div(thousand).Mul(pricing.OutputPer1K)
	return promptCost.Add(completionCost)
}

// CheckBudget returns a COST_LIMIT_EXCEEDED error when either ceiling has
// been reached. It is consulted before each generation attempt so a capped
// ledger rejects without making an external call. No retry hint is attached:
// recovery requires a manual reset (or waiting out the period rollover).
func (l *CostLedger) CheckBudget() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.loadLocked()
	if !l.config.MaxDailyCost.IsZero() && state.DailySpend.GreaterThanOrEqual(l.config.MaxDailyCost) {
		return NewError(ErrCodeCostLimitExceeded, "daily generation cost limit reached")
	}
	if !l.config.MaxMonthlyCost.IsZero() && state.MonthlySpend.GreaterThanOrEqual(l.config.MaxMonthlyCost) {
		return NewError(ErrCodeCostLimitExceeded, "monthly generation cost limit reached")
	}
	return nil
}

// Record prices the usage and adds it to the ledger, returning the usage with
// EstimatedCost filled in.
func (l *CostLedger) Record(usage GenerationUsage) GenerationUsage {
	usage.EstimatedCost = l.CostFor(usage)

	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.loadLocked()
	state.DailySpend = state.DailySpend.Add(usage.EstimatedCost)
	state.MonthlySpend = state.MonthlySpend.Add(usage.EstimatedCost)
	state.TotalTokens += usage.PromptTokens + usage.CompletionTokens
	state.RequestCount++
	l.saveLocked(state)
	return usage
}

// Snapshot returns the current ledger view after lazy rollover.
func (l *CostLedger) Snapshot() LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.loadLocked()
	return LedgerSnapshot{
		DailySpend:     state.DailySpend,
		MonthlySpend:   state.MonthlySpend,
		TotalTokens:    state.TotalTokens,
		RequestCount:   state.RequestCount,
		DayStartedAt:   state.DayStartedAt,
		MonthStartedAt: state.MonthStartedAt,
	}
}

// Reset clears all accumulated spend. This is the manual recovery path for a
// tripped cost ceiling.
func (l *CostLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saveLocked(l.freshState(l.now()))
}

// loadLocked reads the persisted state and applies day/month rollover.
// Caller must hold l.mu.
func (l *CostLedger) loadLocked() ledgerState {
	now := l.now()
	state := l.freshState(now)

	raw, ok, err := l.store.Get(ledgerStateKey)
	if err != nil || !ok {
		return state
	}
	var stored ledgerState
	if err := json.Unmarshal(raw, &stored); err != nil {
		return state
	}

	day := now.Format("2006-01-02")
	month := now.Format("2006-01")
	if stored.Month != month {
		// Month rollover implies day rollover; only totals survive.
		state.TotalTokens = stored.TotalTokens
		state.RequestCount = stored.RequestCount
		l.saveLocked(state)
		return state
	}
	if stored.Day != day {
		stored.Day = day
		stored.DailySpend = decimal.Zero
		stored.DayStartedAt = now.Format(time.RFC3339)
		l.saveLocked(stored)
		return stored
	}
	return stored
}

func (l *CostLedger) freshState(now time.Time) ledgerState {
	return ledgerState{
		Day:            now.Format("2006-01-02"),
		Month:          now.Format("2006-01"),
		DailySpend:     decimal.Zero,
		MonthlySpend:   decimal.Zero,
		DayStartedAt:   now.Format(time.RFC3339),
		MonthStartedAt: now.Format(time.RFC3339),
	}
}

func (l *CostLedger) saveLocked(state ledgerState) {
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	_ = l.store.Set(ledgerStateKey, raw, 0)
}
