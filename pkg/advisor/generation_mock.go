package advisor

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
)

// MockBackend is a deterministic offline backend. With no overrides it
// returns a {"narrative": ...} payload echoing the prompt, with token usage
// estimated from text length, so narration parsing and cost accounting
// behave the same way they do against a live provider.
type MockBackend struct {
	Model string

	// Response, when non-empty, is returned verbatim. Err, when set, is
	// returned for every call. Both exist for tests and must be assigned
	// before the backend sees traffic.
	Response string
	Err      error

	// Calls counts Generate invocations. Atomic because analysis stages
	// narrate concurrently.
	Calls atomic.Int64
}

func NewMockBackend(model string) *MockBackend {
	if model == "" {
		model = "mock-1"
	}
	return &MockBackend{Model: model}
}

func (b *MockBackend) Name() string { return "mock" }

func (b *MockBackend) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	b.Calls.Add(1)
	if err := ctx.Err(); err != nil {
		return GenerationResult{}, err
	}
	if b.Err != nil {
		return GenerationResult{}, b.Err
	}

	content := b.Response
	if content == "" {
		// The stages expect a {"narrative": ...} payload, so the canned
		// content exercises the same parse path a live backend does.
		payload, _ := json.Marshal(narrativePayload{
			Narrative: "Deterministic summary: " + firstLine(req.Prompt),
		})
		content = string(payload)
	}

	return GenerationResult{
		Content:  content,
		Model:    b.Model,
		Provider: "mock",
		Usage: GenerationUsage{
			Provider:         "mock",
			Model:            b.Model,
			PromptTokens:     estimateTokens(req.System) + estimateTokens(req.Prompt),
			CompletionTokens: estimateTokens(content),
		},
	}, nil
}

func firstLine(text string) string {
	trimmed := strings.TrimSpace(text)
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if len(trimmed) > 120 {
		trimmed = trimmed[:120]
	}
	return trimmed
}

// estimateTokens approximates token counts at four characters per token.
func estimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	return int64(len(text)/4) + 1
}
