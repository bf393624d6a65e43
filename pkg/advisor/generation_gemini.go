package advisor

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel      = "gemini-2.0-flash"
	defaultGeminiBaseURL    = "https://generativelanguage.googleapis.com"
	defaultGeminiAPIVersion = "v1beta"
)

type geminiBackend struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
}

// NewGeminiBackend builds a backend over the Google GenAI SDK. The client is
// created per call because its configuration is cheap and carries no pooled
// state beyond the default HTTP transport.
func NewGeminiBackend(cfg GenerationConfig) GenerationBackend {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultGeminiAPIVersion
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiBackend{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		apiVersion: apiVersion,
		model:      model,
	}
}

func (b *geminiBackend) Name() string { return "gemini" }

func (b *geminiBackend) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  b.apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    b.baseURL,
			APIVersion: b.apiVersion,
		},
	})
	if err != nil {
		return GenerationResult{}, WrapError(ErrCodeGenerationFailed, "create gemini client", err)
	}

	model := req.Model
	if model == "" {
		model = b.model
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.temperature())),
		MaxOutputTokens: int32(req.maxTokens()),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return GenerationResult{}, WrapError(ErrCodeGenerationFailed, "gemini generate content", err)
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return GenerationResult{}, NewError(ErrCodeGenerationFailed, "gemini returned empty content")
	}

	respModel := resp.ModelVersion
	if respModel == "" {
		respModel = model
	}

	usage := GenerationUsage{Provider: "gemini", Model: respModel}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}

	return GenerationResult{
		Content:  content,
		Model:    respModel,
		Provider: "gemini",
		Usage:    usage,
	}, nil
}
