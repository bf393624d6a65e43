package advisor

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

// SeededProvider is a deterministic offline data source. Every series and
// metric is derived from the symbol via a seeded generator, so repeated
// queries for the same symbol are byte-identical. It serves as the default
// fallback when no second upstream is configured and as the test fixture.
type SeededProvider struct {
	name string
	now  func() time.Time
}

// NewSeededProvider returns the offline data source.
func NewSeededProvider() *SeededProvider {
	return &SeededProvider{name: "offline", now: time.Now}
}

// Name implements MarketDataProvider.
func (p *SeededProvider) Name() string { return p.name }

// xorshift64 is enough entropy for plausible-looking series; crypto-quality
// randomness is beside the point here.
type seededRand struct {
	state uint64
}

func newSeededRand(symbol string) *seededRand {
	h := fnv.New64a()
	h.Write([]byte(normalizeSymbol(symbol)))
	seed := h.Sum64()
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	return &seededRand{state: seed}
}

func (r *seededRand) next() uint64 {
	r.state ^= r.state << 13
	r.state ^= r.state >> 7
	r.state ^= r.state << 17
	return r.state
}

// float returns a deterministic value in [0, 1).
func (r *seededRand) float() float64 {
	return float64(r.next()%1_000_000) / 1_000_000
}

// rangeFloat returns a deterministic value in [lo, hi).
func (r *seededRand) rangeFloat(lo, hi float64) float64 {
	return lo + r.float()*(hi-lo)
}

// Quote implements MarketDataProvider.
func (p *SeededProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return Quote{}, ErrInvalidSymbol
	}
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
		if c.Low < low {
			low = c.Low
		}
	}
	return Quote{
		Symbol:   symbol,
		Price:    last.Close,
		Currency: "USD",
		High52W:  round2(high),
		Low52W:   round2(low),
	}, nil
}

// Candles implements MarketDataProvider. The series is a deterministic
// random walk anchored to the symbol hash; dates count back from today.
func (p *SeededProvider) Candles(_ context.Context, symbol string, days int) ([]Candle, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if days <= 0 {
		days = 90
	}

	r := newSeededRand(symbol)
	price := r.rangeFloat(20, 480)
	drift := r.rangeFloat(-0.002, 0.003)
	volatility := r.rangeFloat(0.008, 0.035)

	today := p.now().Truncate(24 * time.Hour)
	candles := make([]Candle, 0, days)
	for i := days - 1; i >= 0; i-- {
		change := drift + (r.float()-0.5)*2*volatility
		open := price
		price = price * (1 + change)
		if price < 1 {
			price = 1
		}
		high := open
		if price > high {
			high = price
		}
		high *= 1 + r.float()*volatility/2
		low := open
		if price < low {
			low = price
		}
		low *= 1 - r.float()*volatility/2
		candles = append(candles, Candle{
			Date:   today.AddDate(0, 0, -i),
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(price),
			Volume: float64(1_000_000 + r.next()%9_000_000),
		})
	}
	return candles, nil
}

// Fundamentals implements MarketDataProvider.
func (p *SeededProvider) Fundamentals(_ context.Context, symbol string) (Fundamentals, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return Fundamentals{}, ErrInvalidSymbol
	}
	r := newSeededRand(symbol + "|fundamentals")
	return Fundamentals{
		Symbol:           symbol,
		PERatio:          round2(r.rangeFloat(6, 60)),
		PBRatio:          round2(r.rangeFloat(0.6, 12)),
		EPS:              round2(r.rangeFloat(0.2, 18)),
		RevenueGrowthPct: round2(r.rangeFloat(-12, 40)),
		NetMarginPct:     round2(r.rangeFloat(-5, 32)),
		DebtToEquity:     round2(r.rangeFloat(0.05, 2.4)),
		MarketCap:        round2(r.rangeFloat(0.5, 2800)) * 1e9,
	}, nil
}

var seededHeadlineTemplates = []struct {
	format string
	tone   string
}{
	{"%s beats quarterly revenue expectations on strong demand", "positive"},
	{"%s raises full-year guidance after record quarter", "positive"},
	{"Analysts upgrade %s citing margin expansion", "positive"},
	{"%s announces expanded share buyback program", "positive"},
	{"%s reports results in line with estimates", "neutral"},
	{"%s schedules investor day for next quarter", "neutral"},
	{"%s trading flat as market awaits economic data", "neutral"},
	{"%s faces supply chain pressure, warns on margins", "negative"},
	{"%s misses earnings estimates, shares slide", "negative"},
	{"Regulators open inquiry into %s business practices", "negative"},
}

// Headlines implements MarketDataProvider. Tone mix is deterministic per
// symbol so the sentiment stage scores reproducibly.
func (p *SeededProvider) Headlines(_ context.Context, symbol string, limit int) ([]Headline, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if limit <= 0 || limit > len(seededHeadlineTemplates) {
		limit = 6
	}
	r := newSeededRand(symbol + "|headlines")
	start := int(r.next() % uint64(len(seededHeadlineTemplates)))
	now := p.now()
	headlines := make([]Headline, 0, limit)
	for i := 0; i < limit; i++ {
		tpl := seededHeadlineTemplates[(start+i)%len(seededHeadlineTemplates)]
		headlines = append(headlines, Headline{
			Title:       fmt.Sprintf(tpl.format, symbol),
			Source:      "offline",
			PublishedAt: now.AddDate(0, 0, -i),
		})
	}
	return headlines, nil
}
