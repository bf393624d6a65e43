package advisor

import (
	"context"
	"fmt"
)

const technicalLookbackDays = 120

// runTechnicalStage scores price action from moving averages and RSI on a
// 0-100 scale. Trend is bullish only when close > MA5 > MA20 > MA60, bearish
// only on the exact inverse ordering.
func runTechnicalStage(ctx context.Context, deps stageDeps, symbol string) (StageResult, error) {
	candles, result, err := deps.providers.Candles(ctx, symbol, technicalLookbackDays)
	if err != nil {
		return StageResult{}, fmt.Errorf("technical data for %s: %w", symbol, err)
	}
	if len(candles) < 15 {
		return StageResult{}, fmt.Errorf("technical data for %s: %w", symbol, ErrNoData)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := closes[len(closes)-1]

	ma5 := movingAverage(closes, 5)
	ma20 := movingAverage(closes, 20)
	ma60 := movingAverage(closes, 60)
	rsi := rsi14(closes)

	trend := "neutral"
	switch {
	case ma60 > 0 && last > ma5 && ma5 > ma20 && ma20 > ma60:
		trend = "bullish"
	case ma60 > 0 && last < ma5 && ma5 < ma20 && ma20 < ma60:
		trend = "bearish"
	}

	momentum := "normal"
	if rsi > 70 || rsi < 30 {
		momentum = "strong"
	}

	score := scoreTechnical(trend, rsi)

	metrics := map[string]any{
		"close":    round2(last),
		"ma5":      round2(ma5),
		"ma20":     round2(ma20),
		"ma60":     round2(ma60),
		"rsi14":    round2(rsi),
		"trend":    trend,
		"momentum": momentum,
	}

	// MA60 needs 60 closes; completeness reflects how much of the window
	// the provider actually returned.
	completeness := clamp(float64(len(closes))/60, 0, 1)
	fallback := technicalTemplate(symbol, score, trend, rsi)

	return StageResult{
		Stage:        StageTechnical,
		Narrative:    narrativeFor(ctx, deps, StageTechnical, metrics, fallback),
		Score:        score,
		Metrics:      metrics,
		Confidence:   stageConfidence(score, 50, 50, completeness),
		Sources:      []string{result.Source},
		FromFallback: result.IsFallback,
	}, nil
}

func scoreTechnical(trend string, rsi float64) float64 {
	score := 50.0
	switch trend {
	case "bullish":
		score += 20
	case "bearish":
		score -= 20
	}
	switch {
	case rsi > 70:
		score -= 10 // overbought
	case rsi < 30:
		score += 10 // oversold, mean-reversion setup
	case rsi >= 55:
		score += 5
	case rsi < 45:
		score -= 5
	}
	return clamp(score, 0, 100)
}

// movingAverage returns the simple average of the last period closes, or 0
// when the series is shorter than the period.
func movingAverage(closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for _, v := range closes[len(closes)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// rsi14 is Wilder's relative strength index over the last 14 changes,
// computed with a simple average rather than smoothing.
func rsi14(closes []float64) float64 {
	const period = 14
	if len(closes) < period+1 {
		return 50
	}
	window := closes[len(closes)-period-1:]
	gains, losses := 0.0, 0.0
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := (gains / period) / (losses / period)
	return 100 - 100/(1+rs)
}

func technicalTemplate(symbol string, score float64, trend string, rsi float64) string {
	switch {
	case score >= 70:
		return fmt.Sprintf("%s is in a %s trend with RSI at %.0f; price structure favors continued upside.", symbol, trend, rsi)
	case score >= 55:
		return fmt.Sprintf("%s shows constructive price action; the %s trend and RSI %.0f lean mildly positive.", symbol, trend, rsi)
	case score >= 40:
		return fmt.Sprintf("%s is trading sideways; the %s trend and RSI %.0f give no clear directional edge.", symbol, trend, rsi)
	default:
		return fmt.Sprintf("%s shows weak technicals; the %s trend and RSI %.0f point to continued pressure.", symbol, trend, rsi)
	}
}
