package advisor

import (
	"context"
	"fmt"
	"strings"
)

const sentimentHeadlineLimit = 10

var positiveWords = []string{
	"beat", "beats", "surge", "surges", "rally", "record", "upgrade",
	"upgraded", "strong", "growth", "profit", "gain", "gains", "bullish",
	"outperform", "raises", "expands", "wins",
}

var negativeWords = []string{
	"miss", "misses", "fall", "falls", "drop", "drops", "plunge", "cut",
	"cuts", "downgrade", "downgraded", "weak", "loss", "losses", "bearish",
	"lawsuit", "probe", "recall", "layoff", "layoffs", "warns", "warning",
	"concern", "concerns",
}

// runSentimentStage scores recent headline polarity on a [-1,1] scale via
// keyword matching. Each headline contributes its own clamped polarity and
// the stage score is the average.
func runSentimentStage(ctx context.Context, deps stageDeps, symbol string) (StageResult, error) {
	headlines, result, err := deps.providers.Headlines(ctx, symbol, sentimentHeadlineLimit)
	if err != nil {
		return StageResult{}, fmt.Errorf("sentiment data for %s: %w", symbol, err)
	}

	positive, negative, neutral := 0, 0, 0
	total := 0.0
	for _, h := range headlines {
		polarity := headlinePolarity(h.Title)
		total += polarity
		switch {
		case polarity > 0:
			positive++
		case polarity < 0:
			negative++
		default:
			neutral++
		}
	}
	score := 0.0
	if len(headlines) > 0 {
		score = round2(clamp(total/float64(len(headlines)), -1, 1))
	}

	metrics := map[string]any{
		"headline_count": len(headlines),
		"positive_count": positive,
		"negative_count": negative,
		"neutral_count":  neutral,
		"polarity":       score,
	}

	completeness := clamp(float64(len(headlines))/float64(sentimentHeadlineLimit), 0, 1)
	fallback := sentimentTemplate(symbol, score, positive, negative)

	return StageResult{
		Stage:        StageSentiment,
		Narrative:    narrativeFor(ctx, deps, StageSentiment, metrics, fallback),
		Score:        score,
		Metrics:      metrics,
		Confidence:   stageConfidence(score, 0, 1, completeness),
		Sources:      []string{result.Source},
		FromFallback: result.IsFallback,
	}, nil
}

// headlinePolarity counts positive and negative keyword hits in a title and
// returns their clamped difference in [-1,1].
func headlinePolarity(title string) float64 {
	lower := strings.ToLower(title)
	hits := 0.0
	for _, w := range positiveWords {
		if containsWord(lower, w) {
			hits++
		}
	}
	for _, w := range negativeWords {
		if containsWord(lower, w) {
			hits--
		}
	}
	return clamp(hits, -1, 1)
}

// containsWord matches w as a whole word, so "gain" does not hit "against".
func containsWord(text, w string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func sentimentTemplate(symbol string, score float64, positive, negative int) string {
	switch {
	case score >= 0.3:
		return fmt.Sprintf("News flow around %s is clearly positive, with %d favorable headlines against %d negative.", symbol, positive, negative)
	case score > -0.1:
		return fmt.Sprintf("News sentiment on %s is mixed to neutral, with positive and negative headlines roughly balanced.", symbol)
	case score > -0.4:
		return fmt.Sprintf("News flow around %s leans negative; %d unfavorable headlines outweigh %d positive ones.", symbol, negative, positive)
	default:
		return fmt.Sprintf("News sentiment on %s is decidedly negative, dominated by unfavorable coverage.", symbol)
	}
}
