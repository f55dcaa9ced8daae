package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/interviewer/internal/model"
	"github.com/hitoshi/interviewer/internal/session"
)

// SessionRegistryInterface はWebSocketハンドラーが必要とするセッション管理のインターフェース。
type SessionRegistryInterface interface {
	// Create は面接のセッションを作成して登録する。
	Create(ctx context.Context, interviewID string, ch session.Channel) (*session.Session, error)
	// Release はハンドラ終了時にセッションの登録を解除する。
	Release(s *session.Session)
}

// MessageHandlerInterface はチャネルで受信したメッセージを処理するインターフェース。
type MessageHandlerInterface interface {
	// HandleMessage は受信した1メッセージを処理する。
	HandleMessage(ctx context.Context, s *session.Session, raw []byte)
}

// WSHandler は面接ルームのWebSocketハンドラー。
type WSHandler struct {
	registry        SessionRegistryInterface
	messages        MessageHandlerInterface
	upgrader        websocket.Upgrader
	maxMessageBytes int64
	logger          *slog.Logger
}

// NewWSHandler はWSHandlerを生成する。
// Originヘッダーを持つ接続はallowedOriginsに含まれる（または"*"が設定されている）場合のみ受け付ける。
func NewWSHandler(registry SessionRegistryInterface, messages MessageHandlerInterface, allowedOrigins []string, maxMessageBytes int64, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		messages: messages,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
		maxMessageBytes: maxMessageBytes,
		logger:          logger,
	}
}

// Serve はWebSocket接続を受け付け、切断までメッセージを順に処理する。
// GET /ws/interview/{id}
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	interviewID := chi.URLParam(r, "id")

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeが400/403を書き込み済み
		h.logger.Debug("WebSocketのアップグレードに失敗しました",
			slog.String("interview_id", interviewID),
			slog.String("error", err.Error()),
		)
		return
	}
	ch := session.NewWSChannel(ws, h.maxMessageBytes)

	s, err := h.registry.Create(r.Context(), interviewID, ch)
	if err != nil {
		apiErr := model.NewInternalError()
		errors.As(err, &apiErr)
		h.logger.Info("セッションを開始できませんでした",
			slog.String("interview_id", interviewID),
			slog.String("error", err.Error()),
		)
		ch.CloseWith(session.ErrorMessage{
			Type:    session.MessageTypeError,
			Code:    apiErr.Code,
			Message: apiErr.Message,
		})
		return
	}
	defer h.registry.Release(s)

	h.logger.Info("セッションを開始しました",
		slog.String("interview_id", interviewID),
		slog.String("session_id", s.ID),
	)

	err = ch.ReadLoop(func(raw []byte) {
		h.messages.HandleMessage(s.Context(), s, raw)
	})
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !s.IsClosed() {
		h.logger.Warn("WebSocketの受信でエラーが発生しました",
			slog.String("interview_id", interviewID),
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
	}
}
