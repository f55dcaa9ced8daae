package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/interviewer/internal/llm"
	"github.com/hitoshi/interviewer/internal/metrics"
	"github.com/hitoshi/interviewer/internal/model"
)

// 応答生成パラメータ
const (
	turnMaxTokens   = 250
	turnTemperature = 0.6
)

// FallbackReply は応答生成に失敗した場合に候補者へ返す固定文言。
const FallbackReply = "I apologize, I am having trouble processing that right now."

// TurnLease は面接に接続中のセッションの操作スロットを表す。
// Context はセッション終了時にキャンセルされる。
type TurnLease interface {
	Context() context.Context
	// Closed はスロット取得後にセッションが終了したかを返す。
	Closed() bool
	Release()
}

// SessionGate は面接ごとのターン実行をセッションのライフサイクルに従わせる。
// 接続中のセッションがない場合もリクエストのContextを包んだTurnLeaseを返す。
type SessionGate interface {
	BeginTurn(ctx context.Context, interviewID string) (TurnLease, error)
}

// TurnResult は1ターンの結果。
type TurnResult struct {
	Reply       string
	Fallback    bool
	Role        string
	SkillsFound int
}

// TurnController は候補者の発話1件に対して面接官の応答を生成する。
// 会話履歴は保持せず、各ターンは独立して処理する。
type TurnController struct {
	assembler *Assembler
	completer llm.Completer
	gate      SessionGate
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	timeout   time.Duration
}

// NewTurnController はTurnControllerを生成する。gateがnilの場合はセッションと連動しない。
func NewTurnController(assembler *Assembler, completer llm.Completer, gate SessionGate, mc metrics.MetricsCollector, logger *slog.Logger, timeout time.Duration) *TurnController {
	if gate == nil {
		gate = detachedGate{}
	}
	return &TurnController{
		assembler: assembler,
		completer: completer,
		gate:      gate,
		metrics:   mc,
		logger:    logger,
		timeout:   timeout,
	}
}

// HandleTurn はコンテキストを組み立て、プロンプトと発話で応答を生成する。
// 面接が存在しない場合は上流呼び出しを行わずINTERVIEW_NOT_FOUNDを返す。
// 上流呼び出しの失敗やタイムアウトはエラーにせず、FallbackReplyを返す。
// 処理中にセッションが閉じられた場合は結果を破棄してSESSION_CLOSEDを返す。
func (c *TurnController) HandleTurn(ctx context.Context, interviewID, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, model.NewInvalidRequestError("messageは必須です")
	}

	lease, err := c.gate.BeginTurn(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	lctx := lease.Context()

	convCtx, err := c.assembler.BuildContext(lctx, interviewID)
	if err != nil {
		if model.HasCode(err, model.ErrCodeInterviewNotFound) {
			c.metrics.RecordTurn(metrics.TurnOutcomeNotFound, 0)
			return nil, err
		}
		if lease.Closed() {
			c.metrics.RecordTurn(metrics.TurnOutcomeClosed, 0)
			return nil, model.NewSessionClosedError(interviewID)
		}
		return nil, err
	}
	if convCtx.Interview.Status.IsTerminal() {
		return nil, model.NewInvalidSessionStateError(string(convCtx.Interview.Status))
	}

	result := &TurnResult{
		Role:        convCtx.Interview.Role,
		SkillsFound: len(convCtx.Resume.Skills),
	}

	callCtx, cancel := context.WithTimeout(lctx, c.timeout)
	defer cancel()

	start := time.Now()
	reply, err := c.completer.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: RenderPrompt(convCtx),
		UserMessage:  message,
		MaxTokens:    turnMaxTokens,
		Temperature:  turnTemperature,
	})
	latency := time.Since(start)

	if lease.Closed() {
		c.logger.Info("セッション終了のため応答を破棄しました",
			slog.String("interview_id", interviewID),
		)
		c.metrics.RecordTurn(metrics.TurnOutcomeClosed, latency)
		return nil, model.NewSessionClosedError(interviewID)
	}

	if err != nil {
		c.logger.Warn("応答生成に失敗したためフォールバック応答を返します",
			slog.String("interview_id", interviewID),
			slog.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordTurn(metrics.TurnOutcomeFallback, latency)
		result.Reply = FallbackReply
		result.Fallback = true
		return result, nil
	}

	c.metrics.RecordTurn(metrics.TurnOutcomeReply, latency)
	result.Reply = reply
	return result, nil
}

// detachedGate はセッション管理を使わない場合のSessionGate。
type detachedGate struct{}

func (detachedGate) BeginTurn(ctx context.Context, _ string) (TurnLease, error) {
	return detachedLease{ctx: ctx}, nil
}

type detachedLease struct {
	ctx context.Context
}

func (l detachedLease) Context() context.Context { return l.ctx }
func (l detachedLease) Closed() bool             { return false }
func (l detachedLease) Release()                 {}
