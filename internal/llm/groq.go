package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// defaultGroqEndpoint はGroqのOpenAI互換APIのベースURL。
	defaultGroqEndpoint = "https://api.groq.com/openai/v1"
	// maxErrorBodyBytes はエラーレスポンスから読み取る最大バイト数。
	maxErrorBodyBytes = 4096
)

// GroqClient はGroqのチャット補完APIのクライアント。
type GroqClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

var _ Completer = (*GroqClient)(nil)

// NewGroqClient はGroqClientを生成する。baseURLが空の場合は公式エンドポイントを使う。
func NewGroqClient(httpClient *http.Client, logger *slog.Logger, apiKey, model, baseURL string) *GroqClient {
	if baseURL == "" {
		baseURL = defaultGroqEndpoint
	}
	return &GroqClient{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		endpoint:   strings.TrimRight(baseURL, "/"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete はチャット補完を1回実行し、最初の候補のテキストを返す。
func (c *GroqClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserMessage},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Groq APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("model", c.model),
		)
		return "", &UpstreamError{Provider: "groq", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Error("Groq APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("model", c.model),
		)
		return "", &UpstreamError{
			Provider:   "groq",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(snippet))),
		}
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Error("Groq APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", &UpstreamError{Provider: "groq", StatusCode: resp.StatusCode, Err: err}
	}

	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", &UpstreamError{Provider: "groq", StatusCode: resp.StatusCode, Err: ErrEmptyCompletion}
	}

	return result.Choices[0].Message.Content, nil
}
