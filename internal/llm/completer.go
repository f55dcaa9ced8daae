// Package llm は会話生成と履歴書解析に使う言語モデルの呼び出しを提供する。
// プロバイダ（Groq / Gemini）の差異はCompleterインターフェースの背後に隠す。
package llm

import (
	"context"
	"errors"
	"fmt"
)

// CompletionRequest は1回のチャット補完リクエストを表す。
type CompletionRequest struct {
	SystemPrompt string
	UserMessage  string
	MaxTokens    int
	Temperature  float64
	// JSONMode が true の場合、応答をJSONオブジェクトに制約する。
	JSONMode bool
}

// Completer はシステムプロンプトとユーザー発話から応答テキストを生成する。
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ErrEmptyCompletion は応答テキストが空だった場合のエラー。
var ErrEmptyCompletion = errors.New("empty completion")

// UpstreamError はプロバイダ呼び出しの失敗を表す。
type UpstreamError struct {
	Provider   string
	StatusCode int // HTTPステータス。通信エラーの場合は0
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s upstream error: %v", e.Provider, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}
