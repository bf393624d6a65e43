package advisor

import "testing"

func TestScoreFundamentalsStrongProfile(t *testing.T) {
	// Cheap, growing, profitable, lightly levered.
	score, present := scoreFundamentals(Fundamentals{
		PERatio:          12,
		PBRatio:          1.2,
		EPS:              5.4,
		RevenueGrowthPct: 18,
		NetMarginPct:     25,
		DebtToEquity:     0.3,
	})
	// 50 +15 +5 +10 +10 +10 +5 = 105, clamped.
	assertFloatEquals(t, score, 100, "strong profile")
	if present != 6 {
		t.Errorf("expected all 6 fields present, got %d", present)
	}
}

func TestScoreFundamentalsWeakProfile(t *testing.T) {
	score, _ := scoreFundamentals(Fundamentals{
		PERatio:          -8, // loss-making
		PBRatio:          12,
		EPS:              -2.1,
		RevenueGrowthPct: -5,
		NetMarginPct:     -12,
		DebtToEquity:     3.5,
	})
	// 50 -10 -5 -10 -10 -10 -10 = -5, clamped.
	assertFloatEquals(t, score, 0, "weak profile")
}

func TestScoreFundamentalsMissingFieldsStayNeutral(t *testing.T) {
	score, present := scoreFundamentals(Fundamentals{})
	assertFloatEquals(t, score, 50, "empty fundamentals")
	if present != 0 {
		t.Errorf("expected no fields present, got %d", present)
	}

	score, present = scoreFundamentals(Fundamentals{EPS: 3.2})
	assertFloatEquals(t, score, 60, "single positive field")
	if present != 1 {
		t.Errorf("expected 1 field present, got %d", present)
	}
}

func TestScoreFundamentalsFairValuation(t *testing.T) {
	// P/E 22 is the middle band, growth 8 the middle band.
	score, _ := scoreFundamentals(Fundamentals{PERatio: 22, RevenueGrowthPct: 8})
	assertFloatEquals(t, score, 63, "mid-band profile")
}

func TestFundamentalStageProducesBoundedResult(t *testing.T) {
	result, err := runFundamentalStage(testContext(t), testStageDeps(t), "NVDA")
	assertNoError(t, err, "fundamental stage")
	if result.Stage != StageFundamental {
		t.Errorf("wrong stage kind: %s", result.Stage)
	}
	if result.Score < 0 || result.Score > 100 {
		t.Errorf("score out of range: %v", result.Score)
	}
	if result.Metrics["valuation_score"] != result.Score {
		t.Errorf("metrics should echo the score: %v vs %v", result.Metrics["valuation_score"], result.Score)
	}
}
