package advisor

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stooqDailyURL = "https://stooq.com/q/d/l/?s=%s&i=d"

// StooqProvider serves daily candles and derived quotes from the stooq.com
// CSV endpoint. The endpoint carries no fundamentals or news, so those
// operations report ErrUnsupportedOperation and the caller moves on.
type StooqProvider struct {
	client HTTPDoer
}

func NewStooqProvider(client HTTPDoer, timeout time.Duration) *StooqProvider {
	if client == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &StooqProvider{client: client}
}

// Name implements MarketDataProvider.
func (p *StooqProvider) Name() string { return "stooq" }

// Quote implements MarketDataProvider. Stooq has no realtime quote feed, so
// the quote is synthesized from the most recent daily close.
func (p *StooqProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	candles, err := p.Candles(ctx, symbol, 260)
	if err != nil {
		return Quote{}, err
	}
	last := candles[len(candles)-1]
	high, low := last.High, last.Low
	for _, c := range candles {
		if c.High > high {
			high = c.High
		}
		if c.Low < low && c.Low > 0 {
			low = c.Low
		}
	}
	return Quote{
		Symbol:   normalizeSymbol(symbol),
		Price:    last.Close,
		Currency: "USD",
		High52W:  high,
		Low52W:   low,
	}, nil
}

// Candles implements MarketDataProvider.
func (p *StooqProvider) Candles(ctx context.Context, symbol string, days int) ([]Candle, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	body, err := p.get(ctx, fmt.Sprintf(stooqDailyURL, url.QueryEscape(stooqSymbol(symbol))))
	if err != nil {
		return nil, err
	}
	candles, err := parseStooqCSV(body)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, ErrNoData
	}
	if days > 0 && len(candles) > days {
		candles = candles[len(candles)-days:]
	}
	return candles, nil
}

// Fundamentals implements MarketDataProvider.
func (p *StooqProvider) Fundamentals(ctx context.Context, symbol string) (Fundamentals, error) {
	return Fundamentals{}, ErrUnsupportedOperation
}

// Headlines implements MarketDataProvider.
func (p *StooqProvider) Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error) {
	return nil, ErrUnsupportedOperation
}

func (p *StooqProvider) get(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; stockadvisor/1.0)")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
}

// stooqSymbol maps a plain ticker to stooq's market-suffixed form. Symbols
// that already carry a dot are passed through unchanged.
func stooqSymbol(symbol string) string {
	lower := strings.ToLower(symbol)
	if strings.Contains(lower, ".") {
		return lower
	}
	return lower + ".us"
}

func parseStooqCSV(body []byte) ([]Candle, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return nil, ErrNoData
	}

	candles := make([]Candle, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) < 6 {
			continue
		}
		date, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			continue
		}
		closePrice := parseFloat(row[4])
		if closePrice <= 0 {
			continue
		}
		candles = append(candles, Candle{
			Date:   date.UTC(),
			Open:   parseFloat(row[1]),
			High:   parseFloat(row[2]),
			Low:    parseFloat(row[3]),
			Close:  closePrice,
			Volume: parseFloat(row[5]),
		})
	}
	return candles, nil
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
