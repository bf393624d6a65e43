package advisor

import (
	"context"
	"fmt"
	"math"
)

const riskLookbackDays = 30

// Risk factor weights: market, fundamental, technical, sentiment, liquidity.
const (
	riskWeightMarket      = 0.25
	riskWeightFundamental = 0.25
	riskWeightTechnical   = 0.20
	riskWeightSentiment   = 0.15
	riskWeightLiquidity   = 0.15
)

// runRiskStage computes a weighted 0-100 risk score where higher means
// riskier. It consumes the other stages' outputs when present and derives
// market and liquidity risk from recent candles. When the candle fetch fails
// but other stage results exist, those two factors fall back to a neutral 50
// instead of failing the whole stage; with no data and no prior stages the
// fetch error propagates.
func runRiskStage(ctx context.Context, deps stageDeps, symbol string, prior map[StageKind]StageResult) (StageResult, error) {
	marketRisk, liquidityRisk := 50.0, 50.0
	sources := []string{}
	dataAvailable := false
	fromFallback := false

	candles, result, err := deps.providers.Candles(ctx, symbol, riskLookbackDays)
	if err != nil {
		if len(prior) == 0 {
			return StageResult{}, fmt.Errorf("risk data for %s: %w", symbol, err)
		}
		deps.log().Warn("risk stage candle fetch failed, using neutral market factors", "symbol", symbol, "error", err)
	} else {
		marketRisk = marketRiskFrom(candles)
		liquidityRisk = liquidityRiskFrom(candles)
		sources = append(sources, result.Source)
		dataAvailable = true
		fromFallback = result.IsFallback
	}

	fundamentalRisk := inverseScoreRisk(prior, StageFundamental)
	technicalRisk := inverseScoreRisk(prior, StageTechnical)
	sentimentRisk := 50.0
	if s, ok := prior[StageSentiment]; ok {
		// Polarity -1 maps to risk 100, +1 to risk 0.
		sentimentRisk = clamp((1-s.Score)/2*100, 0, 100)
	}

	score := round2(marketRisk*riskWeightMarket +
		fundamentalRisk*riskWeightFundamental +
		technicalRisk*riskWeightTechnical +
		sentimentRisk*riskWeightSentiment +
		liquidityRisk*riskWeightLiquidity)
	level := riskLevelFor(score)

	metrics := map[string]any{
		"market_risk":        round2(marketRisk),
		"fundamental_risk":   round2(fundamentalRisk),
		"technical_risk":     round2(technicalRisk),
		"sentiment_risk":     round2(sentimentRisk),
		"liquidity_risk":     round2(liquidityRisk),
		"overall_risk_level": level,
	}

	inputs := float64(len(prior))
	if dataAvailable {
		inputs++
	}
	completeness := clamp(inputs/4, 0, 1)
	fallback := riskTemplate(symbol, score, level)

	return StageResult{
		Stage:        StageRisk,
		Narrative:    narrativeFor(ctx, deps, StageRisk, metrics, fallback),
		Score:        score,
		Metrics:      metrics,
		Confidence:   stageConfidence(score, 50, 50, completeness),
		Sources:      sources,
		FromFallback: fromFallback,
	}, nil
}

// inverseScoreRisk turns a 0-100 dimension score into risk: a strong score
// means low risk from that dimension. Missing stages contribute neutral 50.
func inverseScoreRisk(prior map[StageKind]StageResult, kind StageKind) float64 {
	if s, ok := prior[kind]; ok {
		return clamp(100-s.Score, 0, 100)
	}
	return 50
}

// marketRiskFrom maps the standard deviation of daily returns onto 0-100: a
// 4% daily sigma or worse saturates at 100.
func marketRiskFrom(candles []Candle) float64 {
	if len(candles) < 3 {
		return 50
	}
	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-prev)/prev)
	}
	if len(returns) < 2 {
		return 50
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	sigma := math.Sqrt(variance)
	return clamp(sigma/0.04*100, 0, 100)
}

// liquidityRiskFrom buckets average daily volume into risk tiers.
func liquidityRiskFrom(candles []Candle) float64 {
	if len(candles) == 0 {
		return 50
	}
	total := 0.0
	for _, c := range candles {
		total += c.Volume
	}
	avg := total / float64(len(candles))
	switch {
	case avg >= 5_000_000:
		return 20
	case avg >= 1_000_000:
		return 40
	case avg >= 100_000:
		return 60
	default:
		return 80
	}
}

func riskLevelFor(score float64) string {
	switch {
	case score < 35:
		return "low"
	case score < 55:
		return "moderate"
	case score < 75:
		return "high"
	default:
		return "very_high"
	}
}

func riskTemplate(symbol string, score float64, level string) string {
	switch level {
	case "low":
		return fmt.Sprintf("Overall risk for %s is low (%.0f/100); volatility and balance-sheet factors look well contained.", symbol, score)
	case "moderate":
		return fmt.Sprintf("Overall risk for %s is moderate (%.0f/100); standard position sizing applies.", symbol, score)
	case "high":
		return fmt.Sprintf("Overall risk for %s is elevated (%.0f/100); volatility or fundamental factors warrant reduced exposure.", symbol, score)
	default:
		return fmt.Sprintf("Overall risk for %s is very high (%.0f/100); multiple factors flag severe downside potential.", symbol, score)
	}
}
