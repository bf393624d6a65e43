package advisor

import (
	"fmt"
	"math"
)

// Recommendation is the terminal verdict of one analysis.
type Recommendation string

const (
	RecommendationBuy     Recommendation = "BUY"
	RecommendationHold    Recommendation = "HOLD"
	RecommendationNeutral Recommendation = "NEUTRAL"
	RecommendationSell    Recommendation = "SELL"
)

// Composite weights per dimension. Sentiment polarity is normalized to
// 0-100 and risk is inverted before weighting.
const (
	compositeWeightFundamental = 0.35
	compositeWeightTechnical   = 0.30
	compositeWeightSentiment   = 0.20
	compositeWeightRisk        = 0.15
)

// PriceBand is an indicative near-term price range.
type PriceBand struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// AnalysisMetadata describes how a result was produced.
type AnalysisMetadata struct {
	DurationMs     int64  `json:"duration_ms"`
	GenerationUsed bool   `json:"generation_used"`
	Provider       string `json:"provider"`
	FallbackUsed   bool   `json:"fallback_used"`
}

// AnalysisResult is the immutable output of one analyze call.
type AnalysisResult struct {
	Symbol            string                    `json:"symbol"`
	Recommendation    Recommendation            `json:"recommendation"`
	CompositeScore    float64                   `json:"composite_score"`
	Confidence        float64                   `json:"confidence"`
	TargetPriceBand   *PriceBand                `json:"target_price_band,omitempty"`
	TimeHorizon       string                    `json:"time_horizon"`
	RiskWarnings      []string                  `json:"risk_warnings"`
	KeyConsiderations []string                  `json:"key_considerations"`
	PerStage          map[StageKind]StageResult `json:"per_stage"`
	Sources           []string                  `json:"sources"`
	Metadata          AnalysisMetadata          `json:"metadata"`
}

// summarize merges stage results into one recommendation. Missing stages
// drop out of the composite with the remaining weights renormalized, and
// shrink confidence proportionally. quote may be nil.
func summarize(symbol string, stages map[StageKind]StageResult, quote *Quote) AnalysisResult {
	composite := compositeScore(stages)
	riskLevel := stageRiskLevel(stages)

	rec := recommendationFor(composite)
	if riskLevel == "high" || riskLevel == "very_high" {
		rec = downgrade(rec)
	}
	if riskLevel == "very_high" && (rec == RecommendationBuy || rec == RecommendationHold) {
		rec = RecommendationNeutral
	}

	result := AnalysisResult{
		Symbol:            symbol,
		Recommendation:    rec,
		CompositeScore:    round2(composite),
		Confidence:        summaryConfidence(stages),
		TimeHorizon:       timeHorizonFor(composite, riskLevel),
		RiskWarnings:      riskWarnings(stages, riskLevel),
		KeyConsiderations: keyConsiderations(stages),
		PerStage:          stages,
		Sources:           collectSources(stages),
	}
	if quote != nil && quote.Price > 0 {
		result.TargetPriceBand = priceBand(quote.Price, composite, stages)
	}
	return result
}

// compositeScore applies the fixed dimension weights, renormalized over the
// stages that actually produced results. Zero stages yields 0.
func compositeScore(stages map[StageKind]StageResult) float64 {
	sum, weightSum := 0.0, 0.0
	if s, ok := stages[StageFundamental]; ok {
		sum += s.Score * compositeWeightFundamental
		weightSum += compositeWeightFundamental
	}
	if s, ok := stages[StageTechnical]; ok {
		sum += s.Score * compositeWeightTechnical
		weightSum += compositeWeightTechnical
	}
	if s, ok := stages[StageSentiment]; ok {
		sum += normalizeSentiment(s.Score) * compositeWeightSentiment
		weightSum += compositeWeightSentiment
	}
	if s, ok := stages[StageRisk]; ok {
		sum += (100 - s.Score) * compositeWeightRisk
		weightSum += compositeWeightRisk
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

// normalizeSentiment maps [-1,1] polarity onto the 0-100 scale the other
// dimensions use.
func normalizeSentiment(polarity float64) float64 {
	return clamp((polarity+1)*50, 0, 100)
}

// recommendationFor applies the composite thresholds. Exactly 70.0 is HOLD,
// not BUY.
func recommendationFor(composite float64) Recommendation {
	switch {
	case composite > 70:
		return RecommendationBuy
	case composite > 55:
		return RecommendationHold
	case composite > 40:
		return RecommendationNeutral
	default:
		return RecommendationSell
	}
}

func downgrade(rec Recommendation) Recommendation {
	switch rec {
	case RecommendationBuy:
		return RecommendationHold
	case RecommendationHold:
		return RecommendationNeutral
	default:
		return RecommendationSell
	}
}

// timeHorizonFor shortens the horizon as risk rises; a strong composite at
// contained risk supports a longer view.
func timeHorizonFor(composite float64, riskLevel string) string {
	switch {
	case riskLevel == "high" || riskLevel == "very_high":
		return "short-term (1-3 months)"
	case composite > 70 && (riskLevel == "low" || riskLevel == ""):
		return "long-term (6-12 months)"
	default:
		return "medium-term (3-6 months)"
	}
}

func stageRiskLevel(stages map[StageKind]StageResult) string {
	risk, ok := stages[StageRisk]
	if !ok {
		return ""
	}
	level, _ := risk.Metrics["overall_risk_level"].(string)
	return level
}

// summaryConfidence starts at 0.6, rewards low inter-stage score variance,
// scales down by the fraction of stages that produced data, and clamps to
// [0.3, 0.9].
func summaryConfidence(stages map[StageKind]StageResult) float64 {
	confidence := 0.6

	scores := make([]float64, 0, len(stages))
	for kind, s := range stages {
		score := s.Score
		if kind == StageSentiment {
			score = normalizeSentiment(score)
		}
		if kind == StageRisk {
			score = 100 - score
		}
		scores = append(scores, score)
	}
	if len(scores) >= 2 {
		sigma := stddev(scores)
		switch {
		case sigma < 10:
			confidence += 0.15
		case sigma < 20:
			confidence += 0.05
		case sigma > 30:
			confidence -= 0.1
		}
	}

	confidence *= float64(len(stages)) / float64(len(AllStages))
	return round2(clamp(confidence, 0.3, 0.9))
}

func stddev(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// priceBand derives an indicative range: the band widens with risk and its
// center tilts with the composite score.
func priceBand(price, composite float64, stages map[StageKind]StageResult) *PriceBand {
	riskScore := 50.0
	if s, ok := stages[StageRisk]; ok {
		riskScore = s.Score
	}
	spread := 0.05 + riskScore/1000
	tilt := (composite - 50) / 500
	center := price * (1 + tilt)
	return &PriceBand{
		Low:  round2(center * (1 - spread)),
		High: round2(center * (1 + spread)),
	}
}

func riskWarnings(stages map[StageKind]StageResult, level string) []string {
	warnings := []string{}
	switch level {
	case "high":
		warnings = append(warnings, "Overall risk is elevated; consider reduced position sizing.")
	case "very_high":
		warnings = append(warnings, "Overall risk is very high; new positions are not advised.")
	}
	risk, ok := stages[StageRisk]
	if !ok {
		warnings = append(warnings, "Risk assessment unavailable; treat the recommendation with caution.")
		return warnings
	}
	factorWarnings := []struct{ key, text string }{
		{"market_risk", "Price volatility is well above normal."},
		{"fundamental_risk", "Fundamental metrics flag balance-sheet or valuation stress."},
		{"liquidity_risk", "Trading volume is thin; exits may move the price."},
	}
	for _, fw := range factorWarnings {
		if v, ok := risk.Metrics[fw.key].(float64); ok && v >= 70 {
			warnings = append(warnings, fw.text)
		}
	}
	return warnings
}

func keyConsiderations(stages map[StageKind]StageResult) []string {
	considerations := []string{}
	if s, ok := stages[StageFundamental]; ok {
		if pe, ok := s.Metrics["pe_ratio"].(float64); ok && pe != 0 {
			considerations = append(considerations, fmt.Sprintf("Valuation: P/E %.1f, fundamental score %.0f/100.", pe, s.Score))
		}
	}
	if s, ok := stages[StageTechnical]; ok {
		if trend, ok := s.Metrics["trend"].(string); ok {
			considerations = append(considerations, fmt.Sprintf("Price action: %s trend, technical score %.0f/100.", trend, s.Score))
		}
	}
	if s, ok := stages[StageSentiment]; ok {
		considerations = append(considerations, fmt.Sprintf("News sentiment polarity %.2f across recent headlines.", s.Score))
	}
	return considerations
}

func collectSources(stages map[StageKind]StageResult) []string {
	seen := map[string]bool{}
	sources := []string{}
	for _, kind := range AllStages {
		s, ok := stages[kind]
		if !ok {
			continue
		}
		for _, src := range s.Sources {
			if src == "" || seen[src] {
				continue
			}
			seen[src] = true
			sources = append(sources, src)
		}
	}
	return sources
}
