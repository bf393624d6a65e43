package advisor

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

type anthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropicBackend builds a backend over the official Anthropic SDK.
func NewAnthropicBackend(cfg GenerationConfig) GenerationBackend {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &anthropicBackend{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (b *anthropicBackend) Name() string { return "anthropic" }

func (b *anthropicBackend) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = b.model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(req.maxTokens()),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.temperature()),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return GenerationResult{}, WrapError(ErrCodeGenerationFailed, "anthropic message create", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := sb.String()
	if content == "" {
		return GenerationResult{}, NewError(ErrCodeGenerationFailed, "anthropic returned no text content")
	}

	return GenerationResult{
		Content:  content,
		Model:    string(resp.Model),
		Provider: "anthropic",
		Usage: GenerationUsage{
			Provider:         "anthropic",
			Model:            string(resp.Model),
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
