package advisor

import (
	"context"
	"fmt"
)

// runFundamentalStage scores valuation and profitability fundamentals on a
// 0-100 scale starting from a neutral 50.
func runFundamentalStage(ctx context.Context, deps stageDeps, symbol string) (StageResult, error) {
	fundamentals, result, err := deps.providers.Fundamentals(ctx, symbol)
	if err != nil {
		return StageResult{}, fmt.Errorf("fundamental data for %s: %w", symbol, err)
	}

	score, fieldsPresent := scoreFundamentals(fundamentals)

	metrics := map[string]any{
		"pe_ratio":           round2(fundamentals.PERatio),
		"pb_ratio":           round2(fundamentals.PBRatio),
		"eps":                round2(fundamentals.EPS),
		"revenue_growth_pct": round2(fundamentals.RevenueGrowthPct),
		"net_margin_pct":     round2(fundamentals.NetMarginPct),
		"debt_to_equity":     round2(fundamentals.DebtToEquity),
		"valuation_score":    score,
	}

	completeness := float64(fieldsPresent) / 6
	fallback := fundamentalTemplate(symbol, score, fundamentals)

	return StageResult{
		Stage:        StageFundamental,
		Narrative:    narrativeFor(ctx, deps, StageFundamental, metrics, fallback),
		Score:        score,
		Metrics:      metrics,
		Confidence:   stageConfidence(score, 50, 50, completeness),
		Sources:      []string{result.Source},
		FromFallback: result.IsFallback,
	}, nil
}

func scoreFundamentals(f Fundamentals) (float64, int) {
	score := 50.0
	present := 0

	if f.PERatio != 0 {
		present++
		switch {
		case f.PERatio > 0 && f.PERatio < 15:
			score += 15
		case f.PERatio > 0 && f.PERatio < 25:
			score += 8
		case f.PERatio < 0 || f.PERatio > 40:
			score -= 10
		}
	}
	if f.PBRatio != 0 {
		present++
		switch {
		case f.PBRatio > 0 && f.PBRatio < 1.5:
			score += 5
		case f.PBRatio > 8:
			score -= 5
		}
	}
	if f.EPS != 0 {
		present++
		if f.EPS > 0 {
			score += 10
		} else {
			score -= 10
		}
	}
	if f.RevenueGrowthPct != 0 {
		present++
		switch {
		case f.RevenueGrowthPct > 15:
			score += 10
		case f.RevenueGrowthPct > 5:
			score += 5
		case f.RevenueGrowthPct < 0:
			score -= 10
		}
	}
	if f.NetMarginPct != 0 {
		present++
		switch {
		case f.NetMarginPct > 20:
			score += 10
		case f.NetMarginPct > 10:
			score += 5
		case f.NetMarginPct < 0:
			score -= 10
		}
	}
	if f.DebtToEquity != 0 {
		present++
		switch {
		case f.DebtToEquity > 0 && f.DebtToEquity < 0.5:
			score += 5
		case f.DebtToEquity > 2:
			score -= 10
		}
	}

	return clamp(score, 0, 100), present
}

func fundamentalTemplate(symbol string, score float64, f Fundamentals) string {
	switch {
	case score >= 70:
		return fmt.Sprintf("%s shows strong fundamentals with a P/E of %.1f and %.1f%% revenue growth, supporting a constructive long-term view.", symbol, f.PERatio, f.RevenueGrowthPct)
	case score >= 55:
		return fmt.Sprintf("%s has solid fundamentals overall; valuation (P/E %.1f) and margins (%.1f%%) are reasonable for its profile.", symbol, f.PERatio, f.NetMarginPct)
	case score >= 40:
		return fmt.Sprintf("%s presents a mixed fundamental picture; valuation and profitability signals offset each other at current levels.", symbol)
	default:
		return fmt.Sprintf("%s shows weak fundamentals, with valuation or profitability metrics flagging meaningful downside risk.", symbol)
	}
}
