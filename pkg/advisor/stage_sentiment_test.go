package advisor

import (
	"context"
	"testing"
	"time"
)

func TestHeadlinePolarity(t *testing.T) {
	cases := []struct {
		title string
		want  float64
	}{
		{"Acme beats estimates on strong growth", 1},
		{"Acme misses forecasts as shares drop", -1},
		{"Acme announces quarterly dividend", 0},
		{"Acme posts record gain despite lawsuit concerns", 0}, // +2 and -2 cancel after per-word counting
		{"Regulators move against Acme", 0},                    // "gain" must not match inside "against"
		{"Acme warns on weak demand", -1},
	}
	for _, tc := range cases {
		assertFloatEquals(t, headlinePolarity(tc.title), tc.want, tc.title)
	}
}

func TestContainsWordBoundaries(t *testing.T) {
	if containsWord("campaign against waste", "gain") {
		t.Errorf("substring inside a longer word must not match")
	}
	if !containsWord("a solid gain today", "gain") {
		t.Errorf("whole word should match")
	}
	if !containsWord("gain", "gain") {
		t.Errorf("exact match should work")
	}
	if !containsWord("pre-gain move", "gain") {
		t.Errorf("punctuation is a word boundary")
	}
}

// headlineProvider serves fixed headlines for polarity tests.
type headlineProvider struct {
	titles []string
}

func (p *headlineProvider) Name() string { return "newswire" }

func (p *headlineProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	return Quote{}, ErrUnsupportedOperation
}

func (p *headlineProvider) Candles(ctx context.Context, symbol string, days int) ([]Candle, error) {
	return nil, ErrUnsupportedOperation
}

func (p *headlineProvider) Fundamentals(ctx context.Context, symbol string) (Fundamentals, error) {
	return Fundamentals{}, ErrUnsupportedOperation
}

func (p *headlineProvider) Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error) {
	headlines := make([]Headline, len(p.titles))
	for i, title := range p.titles {
		headlines[i] = Headline{Title: title, Source: "newswire", PublishedAt: time.Now()}
	}
	return headlines, nil
}

func sentimentDeps(titles []string) stageDeps {
	provider := &headlineProvider{titles: titles}
	return stageDeps{providers: NewProviderManager(provider, nil, nil, nil)}
}

func TestSentimentStagePositiveFlow(t *testing.T) {
	deps := sentimentDeps([]string{
		"Acme beats expectations",
		"Analysts upgrade Acme on growth",
		"Acme wins major contract",
	})

	result, err := runSentimentStage(testContext(t), deps, "ACME")
	assertNoError(t, err, "sentiment stage")
	assertFloatEquals(t, result.Score, 1, "all-positive headlines")
	if result.Metrics["positive_count"] != 3 {
		t.Errorf("expected 3 positive headlines, got %v", result.Metrics["positive_count"])
	}
}

func TestSentimentStageMixedFlow(t *testing.T) {
	deps := sentimentDeps([]string{
		"Acme beats expectations",
		"Acme misses on margins",
		"Acme schedules investor day",
		"Acme faces probe over accounting",
	})

	result, err := runSentimentStage(testContext(t), deps, "ACME")
	assertNoError(t, err, "sentiment stage")
	// (+1 -1 +0 -1) / 4 = -0.25
	assertFloatEquals(t, result.Score, -0.25, "mixed headlines")
	if result.Metrics["neutral_count"] != 1 {
		t.Errorf("expected 1 neutral headline, got %v", result.Metrics["neutral_count"])
	}
}

func TestSentimentStageNoHeadlines(t *testing.T) {
	result, err := runSentimentStage(testContext(t), sentimentDeps(nil), "GHOST")
	assertNoError(t, err, "sentiment stage")
	assertFloatEquals(t, result.Score, 0, "no headlines is neutral")
	if result.Metrics["headline_count"] != 0 {
		t.Errorf("expected zero headlines, got %v", result.Metrics["headline_count"])
	}
}
