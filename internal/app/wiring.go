package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/interviewer/internal/config"
	"github.com/hitoshi/interviewer/internal/conversation"
	"github.com/hitoshi/interviewer/internal/database"
	"github.com/hitoshi/interviewer/internal/events"
	"github.com/hitoshi/interviewer/internal/llm"
	"github.com/hitoshi/interviewer/internal/security"
	"github.com/hitoshi/interviewer/internal/session"
	"github.com/hitoshi/interviewer/internal/storage"
)

// sessionGate はセッションのターン実行枠を会話ターンに提供する。
type sessionGate struct {
	registry *session.Registry
}

var _ conversation.SessionGate = sessionGate{}

// BeginTurn はセッションのターン実行枠を取得する。
// 接続中のセッションがない場合はセッションと無関係なリースを返す。
func (g sessionGate) BeginTurn(ctx context.Context, interviewID string) (conversation.TurnLease, error) {
	lease, err := g.registry.AcquireTurn(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// connectDatabase は設定のプールサイズでDBに接続する。到達確認は10秒で打ち切る。
func connectDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return database.Connect(pingCtx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
}

// newCompleter は設定されたプロバイダの応答生成クライアントを返す。
func newCompleter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := llm.NewGeminiClient(ctx, logger, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		return c, nil
	default:
		// APIキーを送るため、差し替えられたエンドポイントが内部ネットワークを指していないか検証する
		guard := security.NewEgressGuard(cfg.LLMAllowPrivateEndpoint)
		if err := guard.ValidateURL(cfg.GroqBaseURL); err != nil {
			return nil, fmt.Errorf("invalid GROQ_BASE_URL: %w", err)
		}
		httpClient := guard.NewClient(llmClientTimeout(cfg))
		return llm.NewGroqClient(httpClient, logger, cfg.GroqAPIKey, cfg.GroqModel, cfg.GroqBaseURL), nil
	}
}

// llmClientTimeout はLLMクライアントのHTTPタイムアウトを返す。
// 会話ターンと履歴書解析で同じクライアントを使うため、長い方の期限に余裕を持たせる。
func llmClientTimeout(cfg *config.Config) time.Duration {
	return max(cfg.TurnTimeout, cfg.ResumeParseTimeout) + 5*time.Second
}

// newDocumentStore は履歴書原本のアーカイブ先を返す。S3_BUCKET未設定なら無効。
func newDocumentStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.DocumentStore, error) {
	if !cfg.ArchiveEnabled() {
		return storage.NopStore{}, nil
	}
	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Bucket:    cfg.S3Bucket,
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}
	logger.Info("document archive enabled", slog.String("bucket", cfg.S3Bucket))
	return store, nil
}

// newPublisher はイベント発行先と終了処理を返す。
// ブローカーに接続できない場合はイベント発行を無効にして起動を継続する。
func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, func()) {
	if !cfg.EventsEnabled() {
		return events.NopPublisher{}, func() {}
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	if err != nil {
		logger.Warn("event broker unavailable, events disabled", slog.String("error", err.Error()))
		return events.NopPublisher{}, func() {}
	}
	logger.Info("event publishing enabled", slog.String("exchange", cfg.AMQPExchange))
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Warn("failed to close event publisher", slog.String("error", err.Error()))
		}
	}
}
