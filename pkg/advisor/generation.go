package advisor

import (
	"context"
	"fmt"
	"strings"
)

// GenerationRequest is a single narrative-generation call. System and Prompt
// are plain text; MaxTokens and Temperature fall back to backend defaults
// when zero.
type GenerationRequest struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// GenerationResult carries the model output plus the token accounting the
// cost ledger needs.
type GenerationResult struct {
	Content  string
	Model    string
	Provider string
	Usage    GenerationUsage
}

// GenerationBackend abstracts one LLM provider. Implementations must be safe
// for concurrent use.
type GenerationBackend interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// GenerationConfig selects and parameterizes a backend.
type GenerationConfig struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	APIVersion  string  `json:"api_version"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

const (
	defaultGenerationMaxTokens   = 1024
	defaultGenerationTemperature = 0.2
)

// NewGenerationBackend builds the backend named by cfg.Provider. The mock
// backend needs no credentials and is the default for empty provider names.
func NewGenerationBackend(cfg GenerationConfig) (GenerationBackend, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "mock":
		return NewMockBackend(cfg.Model), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, NewError(ErrCodeValidation, "openai backend requires an API key")
		}
		return NewOpenAIBackend(cfg), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, NewError(ErrCodeValidation, "anthropic backend requires an API key")
		}
		return NewAnthropicBackend(cfg), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, NewError(ErrCodeValidation, "gemini backend requires an API key")
		}
		return NewGeminiBackend(cfg), nil
	default:
		return nil, NewError(ErrCodeValidation, fmt.Sprintf("unknown generation provider %q", cfg.Provider))
	}
}

// cleanupModelJSON strips markdown code fences and leading/trailing prose so
// the remaining text starts at the first '{' and ends at the last '}'.
func cleanupModelJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
			if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[:len(lines)-1]
			}
			trimmed = strings.Join(lines, "\n")
		}
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		trimmed = trimmed[start : end+1]
	}
	return strings.TrimSpace(trimmed)
}

func (r GenerationRequest) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultGenerationMaxTokens
}

func (r GenerationRequest) temperature() float64 {
	if r.Temperature > 0 {
		return r.Temperature
	}
	return defaultGenerationTemperature
}
