package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
)

// StageKind names one analysis dimension.
type StageKind string

const (
	StageFundamental StageKind = "fundamental"
	StageTechnical   StageKind = "technical"
	StageSentiment   StageKind = "sentiment"
	StageRisk        StageKind = "risk"
)

// AllStages lists the dimensions in execution order: the first three run
// concurrently, risk runs after them.
var AllStages = []StageKind{StageFundamental, StageTechnical, StageSentiment, StageRisk}

// ValidStage reports whether kind names a known dimension.
func ValidStage(kind StageKind) bool {
	for _, s := range AllStages {
		if s == kind {
			return true
		}
	}
	return false
}

// StageResult is the immutable output of one dimension. Score is in [0,100]
// for every stage except sentiment, which reports [-1,1] polarity.
type StageResult struct {
	Stage      StageKind      `json:"stage"`
	Narrative  string         `json:"narrative"`
	Score      float64        `json:"score"`
	Metrics    map[string]any `json:"structured_metrics"`
	Confidence float64        `json:"confidence"`
	Sources    []string       `json:"sources"`
	// FromFallback records that the fallback source served this stage's
	// data fetch.
	FromFallback bool `json:"from_fallback,omitempty"`
}

// stageDeps is what every stage needs: market data, and a narration hook
// that either returns generated text or reports that the stage should fall
// back to its templated sentence. Narration failures never surface.
type stageDeps struct {
	providers *ProviderManager
	narrate   func(ctx context.Context, stage StageKind, system, prompt string) (string, bool)
	logger    *slog.Logger
}

func (d stageDeps) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

// narrativeFor picks generated narration when available, falling back to the
// deterministic template for the computed score bucket.
func narrativeFor(ctx context.Context, deps stageDeps, stage StageKind, metrics map[string]any, fallback string) string {
	if deps.narrate == nil {
		return fallback
	}
	system := "You are an equity analyst. Respond with a JSON object {\"narrative\": \"...\"} containing one short paragraph. No markdown."
	prompt := fmt.Sprintf("Write a concise %s analysis narrative for the metrics below.\n\n%s", stage, formatMetrics(metrics))

	content, ok := deps.narrate(ctx, stage, system, prompt)
	if !ok {
		return fallback
	}
	narrative, err := parseNarrative(content)
	if err != nil {
		deps.log().Warn("generated narrative unusable, using template", "stage", string(stage), "error", err)
		return fallback
	}
	return narrative
}

type narrativePayload struct {
	Narrative string `json:"narrative"`
}

func parseNarrative(content string) (string, error) {
	cleaned := cleanupModelJSON(content)
	var payload narrativePayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return "", fmt.Errorf("parse narrative: %w", err)
	}
	narrative := strings.TrimSpace(payload.Narrative)
	if narrative == "" {
		return "", fmt.Errorf("narrative is empty")
	}
	return narrative, nil
}

// formatMetrics renders metrics as sorted key: value lines so prompts are
// stable across runs.
func formatMetrics(metrics map[string]any) string {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %v\n", k, metrics[k])
	}
	return sb.String()
}

// stageConfidence derives confidence from data completeness and how far the
// score sits from the neutral midpoint. completeness is the fraction of
// expected inputs that were actually present.
func stageConfidence(score, midpoint, span, completeness float64) float64 {
	base := 0.5
	extremity := math.Abs(score-midpoint) / span
	if extremity > 1 {
		extremity = 1
	}
	confidence := base + 0.2*completeness + 0.2*extremity
	return round2(clamp(confidence, 0, 1))
}
