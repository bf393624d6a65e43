package advisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeProvider returns canned data, or err from every call when set.
type fakeProvider struct {
	name  string
	err   error
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	p.calls++
	if p.err != nil {
		return Quote{}, p.err
	}
	return Quote{Symbol: symbol, Price: 100, Currency: "USD"}, nil
}

func (p *fakeProvider) Candles(ctx context.Context, symbol string, days int) ([]Candle, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []Candle{{Date: time.Now(), Close: 100, Volume: 1_000_000}}, nil
}

func (p *fakeProvider) Fundamentals(ctx context.Context, symbol string) (Fundamentals, error) {
	p.calls++
	if p.err != nil {
		return Fundamentals{}, p.err
	}
	return Fundamentals{Symbol: symbol, PERatio: 20}, nil
}

func (p *fakeProvider) Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []Headline{{Title: symbol + " reports earnings", Source: p.name}}, nil
}

func passthroughGuard(ctx context.Context, providerName string, fn func(context.Context) error) error {
	return fn(ctx)
}

func TestManagerPrimarySuccessSkipsFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	fallback := &fakeProvider{name: "fallback"}
	manager := NewProviderManager(primary, fallback, passthroughGuard, nil)

	quote, result, err := manager.Quote(testContext(t), "AAPL")
	assertNoError(t, err, "Quote")
	if quote.Symbol != "AAPL" {
		t.Errorf("unexpected quote: %+v", quote)
	}
	if !result.IsPrimary || result.IsFallback || result.Source != "primary" {
		t.Errorf("expected primary result, got %+v", result)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback should not be consulted on primary success")
	}
}

func TestManagerFailsOverToFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("upstream 500")}
	fallback := &fakeProvider{name: "fallback"}
	manager := NewProviderManager(primary, fallback, passthroughGuard, nil)

	_, result, err := manager.Candles(testContext(t), "AAPL", 30)
	assertNoError(t, err, "Candles via fallback")
	if !result.IsFallback || result.IsPrimary || result.Source != "fallback" {
		t.Errorf("expected fallback result, got %+v", result)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("expected one call each, got primary=%d fallback=%d", primary.calls, fallback.calls)
	}
}

func TestManagerSurfacesPrimaryErrorOnDoubleFailure(t *testing.T) {
	primaryErr := errors.New("primary down")
	primary := &fakeProvider{name: "primary", err: primaryErr}
	fallback := &fakeProvider{name: "fallback", err: errors.New("fallback down")}
	manager := NewProviderManager(primary, fallback, passthroughGuard, nil)

	_, _, err := manager.Fundamentals(testContext(t), "AAPL")
	if !errors.Is(err, primaryErr) {
		t.Errorf("expected the primary's error to surface, got %v", err)
	}
}

func TestManagerNoFallbackConfigured(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("primary down")}
	manager := NewProviderManager(primary, nil, passthroughGuard, nil)

	_, _, err := manager.Headlines(testContext(t), "AAPL", 5)
	assertError(t, err, "no fallback available")
	if manager.FallbackName() != "" {
		t.Errorf("expected empty fallback name")
	}
}

func TestManagerGuardRejectionBlocksCall(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	fallback := &fakeProvider{name: "fallback"}
	guard := func(ctx context.Context, providerName string, fn func(context.Context) error) error {
		if providerName == "primary" {
			return NewError(ErrCodeCircuitOpen, "circuit open for primary")
		}
		return fn(ctx)
	}
	manager := NewProviderManager(primary, fallback, guard, nil)

	_, result, err := manager.Quote(testContext(t), "AAPL")
	assertNoError(t, err, "fallback should serve while primary is blocked")
	if primary.calls != 0 {
		t.Errorf("guarded primary should never run, got %d calls", primary.calls)
	}
	if !result.IsFallback {
		t.Errorf("expected fallback result, got %+v", result)
	}
}
