package advisor

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Data provider errors. Use errors.Is() to check for these conditions.
var (
	// ErrInvalidSymbol indicates the symbol format is not recognized.
	ErrInvalidSymbol = errors.New("invalid symbol format")
	// ErrNoData indicates the data source returned no data for the symbol.
	ErrNoData = errors.New("no data available")
	// ErrUnsupportedOperation indicates the source cannot serve this query.
	ErrUnsupportedOperation = errors.New("operation not supported by data source")
)

// HTTPDoer is an interface for making HTTP requests. It enables dependency
// injection for testing without network calls.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Quote is the latest traded state of a symbol.
type Quote struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	High52W  float64 `json:"high_52w,omitempty"`
	Low52W   float64 `json:"low_52w,omitempty"`
}

// Candle is one day of OHLCV data, oldest-first in any returned series.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Fundamentals is the slice of financial metrics the fundamental stage scores.
// Zero values mean the source did not report the metric.
type Fundamentals struct {
	Symbol           string  `json:"symbol"`
	PERatio          float64 `json:"pe_ratio,omitempty"`
	PBRatio          float64 `json:"pb_ratio,omitempty"`
	EPS              float64 `json:"eps,omitempty"`
	RevenueGrowthPct float64 `json:"revenue_growth_pct,omitempty"`
	NetMarginPct     float64 `json:"net_margin_pct,omitempty"`
	DebtToEquity     float64 `json:"debt_to_equity,omitempty"`
	MarketCap        float64 `json:"market_cap,omitempty"`
}

// Headline is one news item about a symbol.
type Headline struct {
	Title       string    `json:"title"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// MarketDataProvider is one external data source. Implementations must be
// safe for concurrent use. A provider that cannot serve a query returns
// ErrUnsupportedOperation so the manager can fail over.
type MarketDataProvider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (Quote, error)
	Candles(ctx context.Context, symbol string, days int) ([]Candle, error)
	Fundamentals(ctx context.Context, symbol string) (Fundamentals, error)
	Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error)
}

// ProviderResult records which source answered a query and how long it took.
type ProviderResult struct {
	Source     string `json:"source"`
	IsPrimary  bool   `json:"is_primary"`
	IsFallback bool   `json:"is_fallback"`
	LatencyMs  int64  `json:"latency_ms"`
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
