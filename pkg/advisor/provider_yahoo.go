package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	yahooChartURL   = "https://query1.finance.yahoo.com/v8/finance/chart/%s?range=%s&interval=1d"
	yahooSummaryURL = "https://query1.finance.yahoo.com/v10/finance/quoteSummary/%s?modules=defaultKeyStatistics,financialData"
	yahooSearchURL  = "https://query1.finance.yahoo.com/v1/finance/search?q=%s&newsCount=%d&quotesCount=0"

	maxProviderResponseSize = 2 << 20
)

var yahooHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (compatible; stockadvisor/1.0)",
	"Accept":     "application/json",
}

// YahooProvider fetches quotes, daily candles, key fundamentals, and news
// headlines from the public Yahoo Finance JSON endpoints.
type YahooProvider struct {
	client HTTPDoer
}

// NewYahooProvider builds the provider. client may be nil, in which case a
// default client with the given timeout is used.
func NewYahooProvider(client HTTPDoer, timeout time.Duration) *YahooProvider {
	if client == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &YahooProvider{client: client}
}

// Name implements MarketDataProvider.
func (p *YahooProvider) Name() string { return "yahoo" }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				FiftyTwoWeekHigh   float64 `json:"fiftyTwoWeekHigh"`
				FiftyTwoWeekLow    float64 `json:"fiftyTwoWeekLow"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote implements MarketDataProvider.
func (p *YahooProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return Quote{}, ErrInvalidSymbol
	}
	chart, err := p.fetchChart(ctx, symbol, "5d")
	if err != nil {
		return Quote{}, err
	}
	meta := chart.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return Quote{}, ErrNoData
	}
	currency := meta.Currency
	if currency == "" {
		currency = "USD"
	}
	return Quote{
		Symbol:   symbol,
		Price:    meta.RegularMarketPrice,
		Currency: currency,
		High52W:  meta.FiftyTwoWeekHigh,
		Low52W:   meta.FiftyTwoWeekLow,
	}, nil
}

// Candles implements MarketDataProvider.
func (p *YahooProvider) Candles(ctx context.Context, symbol string, days int) ([]Candle, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	chart, err := p.fetchChart(ctx, symbol, rangeForDays(days))
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, ErrNoData
	}
	quote := result.Indicators.Quote[0]

	candles := make([]Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] <= 0 {
			continue
		}
		candles = append(candles, Candle{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  quote.Close[i],
			Volume: at(quote.Volume, i),
		})
	}
	if len(candles) == 0 {
		return nil, ErrNoData
	}
	if days > 0 && len(candles) > days {
		candles = candles[len(candles)-days:]
	}
	return candles, nil
}

type yahooSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			DefaultKeyStatistics struct {
				TrailingEps yahooRawValue `json:"trailingEps"`
				PriceToBook yahooRawValue `json:"priceToBook"`
				ForwardPE   yahooRawValue `json:"forwardPE"`
			} `json:"defaultKeyStatistics"`
			FinancialData struct {
				RevenueGrowth yahooRawValue `json:"revenueGrowth"`
				ProfitMargins yahooRawValue `json:"profitMargins"`
				DebtToEquity  yahooRawValue `json:"debtToEquity"`
			} `json:"financialData"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// yahooRawValue unwraps Yahoo's {"raw": 1.23, "fmt": "1.23"} number envelope.
type yahooRawValue struct {
	Raw float64 `json:"raw"`
}

// Fundamentals implements MarketDataProvider.
func (p *YahooProvider) Fundamentals(ctx context.Context, symbol string) (Fundamentals, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return Fundamentals{}, ErrInvalidSymbol
	}
	body, err := p.get(ctx, fmt.Sprintf(yahooSummaryURL, url.PathEscape(symbol)))
	if err != nil {
		return Fundamentals{}, err
	}
	var parsed yahooSummaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Fundamentals{}, fmt.Errorf("parse quote summary: %w", err)
	}
	if len(parsed.QuoteSummary.Result) == 0 {
		return Fundamentals{}, ErrNoData
	}
	result := parsed.QuoteSummary.Result[0]
	return Fundamentals{
		Symbol:           symbol,
		PERatio:          result.DefaultKeyStatistics.ForwardPE.Raw,
		PBRatio:          result.DefaultKeyStatistics.PriceToBook.Raw,
		EPS:              result.DefaultKeyStatistics.TrailingEps.Raw,
		RevenueGrowthPct: result.FinancialData.RevenueGrowth.Raw * 100,
		NetMarginPct:     result.FinancialData.ProfitMargins.Raw * 100,
		DebtToEquity:     result.FinancialData.DebtToEquity.Raw / 100,
	}, nil
}

type yahooSearchResponse struct {
	News []struct {
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}

// Headlines implements MarketDataProvider.
func (p *YahooProvider) Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if limit <= 0 {
		limit = 8
	}
	body, err := p.get(ctx, fmt.Sprintf(yahooSearchURL, url.QueryEscape(symbol), limit))
	if err != nil {
		return nil, err
	}
	var parsed yahooSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse news search: %w", err)
	}
	if len(parsed.News) == 0 {
		return nil, ErrNoData
	}
	headlines := make([]Headline, 0, len(parsed.News))
	for _, item := range parsed.News {
		if item.Title == "" {
			continue
		}
		headlines = append(headlines, Headline{
			Title:       item.Title,
			Source:      item.Publisher,
			PublishedAt: time.Unix(item.ProviderPublishTime, 0).UTC(),
		})
	}
	if len(headlines) == 0 {
		return nil, ErrNoData
	}
	return headlines, nil
}

func (p *YahooProvider) fetchChart(ctx context.Context, symbol, dataRange string) (*yahooChartResponse, error) {
	body, err := p.get(ctx, fmt.Sprintf(yahooChartURL, url.PathEscape(symbol), dataRange))
	if err != nil {
		return nil, err
	}
	var parsed yahooChartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse chart: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error: %s", parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, ErrNoData
	}
	return &parsed, nil
}

func (p *YahooProvider) get(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range yahooHeaders {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	// Limit response size to protect against misbehaving upstreams.
	return io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
}

func rangeForDays(days int) string {
	switch {
	case days <= 0 || days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	default:
		return "1y"
	}
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
