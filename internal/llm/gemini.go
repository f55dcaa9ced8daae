package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// generateFunc はgenaiのGenerateContent呼び出しを表す。テストで差し替える。
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiClient はGemini APIを使うCompleter。
type GeminiClient struct {
	generate generateFunc
	logger   *slog.Logger
	model    string
}

var _ Completer = (*GeminiClient)(nil)

// NewGeminiClient はAPIキーでgenaiクライアントを初期化し、GeminiClientを生成する。
func NewGeminiClient(ctx context.Context, logger *slog.Logger, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		generate: client.Models.GenerateContent,
		logger:   logger,
		model:    model,
	}, nil
}

// Complete はGeminiで応答を1回生成する。
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := c.generate(ctx, c.model, genai.Text(req.UserMessage), config)
	if err != nil {
		c.logger.Error("Gemini APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("model", c.model),
		)
		return "", &UpstreamError{Provider: "gemini", Err: err}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &UpstreamError{Provider: "gemini", Err: ErrEmptyCompletion}
	}
	return text, nil
}
