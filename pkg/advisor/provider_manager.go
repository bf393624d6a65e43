package advisor

import (
	"context"
	"log/slog"
	"time"
)

// guardFunc wraps one provider call with the cross-cutting rejection checks
// (rate limit, circuit breaker) and outcome reporting. The manager itself
// neither rate-limits nor circuit-breaks: the core composes guards around
// each side independently, so a failing primary never counts against the
// fallback's breaker.
type guardFunc func(ctx context.Context, providerName string, fn func(context.Context) error) error

// ProviderManager owns a primary and a fallback data source and transparently
// re-executes a failed query against the fallback, reporting which side
// answered. When both fail the primary's error is surfaced; the fallback's
// is only logged, to avoid masking the root cause.
type ProviderManager struct {
	primary  MarketDataProvider
	fallback MarketDataProvider
	guard    guardFunc
	logger   *slog.Logger
	now      func() time.Time
}

// NewProviderManager builds a manager. fallback and guard may be nil.
func NewProviderManager(primary, fallback MarketDataProvider, guard guardFunc, logger *slog.Logger) *ProviderManager {
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = func(ctx context.Context, _ string, fn func(context.Context) error) error {
			return fn(ctx)
		}
	}
	return &ProviderManager{
		primary:  primary,
		fallback: fallback,
		guard:    guard,
		logger:   logger,
		now:      time.Now,
	}
}

// PrimaryName returns the primary source's name for the status surface.
func (m *ProviderManager) PrimaryName() string {
	return m.primary.Name()
}

// FallbackName returns the fallback source's name, or "" when none is set.
func (m *ProviderManager) FallbackName() string {
	if m.fallback == nil {
		return ""
	}
	return m.fallback.Name()
}

// query runs op against the primary and, on any error, against the fallback.
func (m *ProviderManager) query(ctx context.Context, operation string, op func(context.Context, MarketDataProvider) error) (ProviderResult, error) {
	start := m.now()
	primaryErr := m.guard(ctx, m.primary.Name(), func(ctx context.Context) error {
		return op(ctx, m.primary)
	})
	if primaryErr == nil {
		return ProviderResult{
			Source:    m.primary.Name(),
			IsPrimary: true,
			LatencyMs: m.now().Sub(start).Milliseconds(),
		}, nil
	}

	if m.fallback == nil {
		return ProviderResult{}, primaryErr
	}

	m.logger.Warn("primary data source failed, trying fallback",
		"operation", operation,
		"primary", m.primary.Name(),
		"fallback", m.fallback.Name(),
		"err", primaryErr,
	)

	fallbackStart := m.now()
	fallbackErr := m.guard(ctx, m.fallback.Name(), func(ctx context.Context) error {
		return op(ctx, m.fallback)
	})
	if fallbackErr == nil {
		return ProviderResult{
			Source:     m.fallback.Name(),
			IsFallback: true,
			LatencyMs:  m.now().Sub(fallbackStart).Milliseconds(),
		}, nil
	}

	m.logger.Warn("fallback data source failed",
		"operation", operation,
		"fallback", m.fallback.Name(),
		"err", fallbackErr,
	)
	return ProviderResult{}, primaryErr
}

// Quote fetches the latest quote with failover.
func (m *ProviderManager) Quote(ctx context.Context, symbol string) (Quote, ProviderResult, error) {
	var quote Quote
	result, err := m.query(ctx, "quote", func(ctx context.Context, p MarketDataProvider) error {
		q, err := p.Quote(ctx, symbol)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	return quote, result, err
}

// Candles fetches a daily OHLCV series with failover.
func (m *ProviderManager) Candles(ctx context.Context, symbol string, days int) ([]Candle, ProviderResult, error) {
	var candles []Candle
	result, err := m.query(ctx, "candles", func(ctx context.Context, p MarketDataProvider) error {
		c, err := p.Candles(ctx, symbol, days)
		if err != nil {
			return err
		}
		candles = c
		return nil
	})
	return candles, result, err
}

// Fundamentals fetches financial metrics with failover.
func (m *ProviderManager) Fundamentals(ctx context.Context, symbol string) (Fundamentals, ProviderResult, error) {
	var fundamentals Fundamentals
	result, err := m.query(ctx, "fundamentals", func(ctx context.Context, p MarketDataProvider) error {
		f, err := p.Fundamentals(ctx, symbol)
		if err != nil {
			return err
		}
		fundamentals = f
		return nil
	})
	return fundamentals, result, err
}

// Headlines fetches recent news with failover.
func (m *ProviderManager) Headlines(ctx context.Context, symbol string, limit int) ([]Headline, ProviderResult, error) {
	var headlines []Headline
	result, err := m.query(ctx, "headlines", func(ctx context.Context, p MarketDataProvider) error {
		h, err := p.Headlines(ctx, symbol, limit)
		if err != nil {
			return err
		}
		headlines = h
		return nil
	})
	return headlines, result, err
}
