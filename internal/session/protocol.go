package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hitoshi/interviewer/internal/model"
)

// MessageTypeError はサーバーからのエラー通知の種別。
const MessageTypeError = "error"

// ClientMessage はクライアントから受信するメッセージ。
type ClientMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ErrorMessage はチャネル上で通知するエラー。送信後もチャネルは閉じない。
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HandleMessage はチャネルで受信した1メッセージを処理する。
// offerにはアンサーを返し、未知の種別と不正なJSONは無視する。
func (n *Negotiator) HandleMessage(ctx context.Context, s *Session, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		n.logger.Debug("不正なメッセージを無視しました",
			slog.String("interview_id", s.InterviewID),
			slog.String("error", err.Error()),
		)
		return
	}

	if msg.Type != SDPTypeOffer {
		n.logger.Debug("未対応のメッセージ種別を無視しました",
			slog.String("interview_id", s.InterviewID),
			slog.String("type", msg.Type),
		)
		return
	}

	answer, err := n.Negotiate(ctx, s, msg.SDP, msg.Type)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			return
		}
		if apiErr.Code == model.ErrCodeSessionClosed {
			return
		}
		_ = s.Send(ErrorMessage{Type: MessageTypeError, Code: apiErr.Code, Message: apiErr.Message})
		return
	}
	_ = s.Send(answer)
}
