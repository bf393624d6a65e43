package advisor

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

type openaiBackend struct {
	client openai.Client
	model  string
}

// NewOpenAIBackend builds a backend over the official OpenAI SDK.
func NewOpenAIBackend(cfg GenerationConfig) GenerationBackend {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openaiBackend{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (b *openaiBackend) Name() string { return "openai" }

func (b *openaiBackend) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = b.model
	}

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		MaxTokens:   openai.Int(int64(req.maxTokens())),
		Temperature: openai.Float(req.temperature()),
	})
	if err != nil {
		return GenerationResult{}, WrapError(ErrCodeGenerationFailed, "openai chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return GenerationResult{}, NewError(ErrCodeGenerationFailed, "openai returned no choices")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return GenerationResult{}, NewError(ErrCodeGenerationFailed, fmt.Sprintf("openai returned empty content (finish reason %s)", resp.Choices[0].FinishReason))
	}

	return GenerationResult{
		Content:  content,
		Model:    resp.Model,
		Provider: "openai",
		Usage: GenerationUsage{
			Provider:         "openai",
			Model:            resp.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
