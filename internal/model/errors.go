// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: interview, resume, session, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInterviewNotFound    = "INTERVIEW_NOT_FOUND"
	ErrCodeResumeNotFound       = "RESUME_NOT_FOUND"
	ErrCodeSessionAlreadyActive = "SESSION_ALREADY_ACTIVE"
	ErrCodeSessionNotFound      = "SESSION_NOT_FOUND"
	ErrCodeInvalidSessionState  = "INVALID_SESSION_STATE"
	ErrCodeNegotiationFailed    = "NEGOTIATION_FAILED"
	ErrCodeSessionClosed        = "SESSION_CLOSED"
	ErrCodeUnreadableDocument   = "UNREADABLE_DOCUMENT"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// HasCode はerrのチェーン中に指定コードのAPIErrorが含まれるかを返す。
// 呼び出し側はメッセージ文字列ではなくコードで分岐すること。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewInterviewNotFoundError は面接未検出エラーを生成する。
func NewInterviewNotFoundError(interviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeInterviewNotFound,
		Message:  fmt.Sprintf("指定された面接が見つかりません: %s", interviewID),
		Category: "interview",
		Action:   "面接IDを確認するか、面接を作成し直してください。",
	}
}

// NewResumeNotFoundError は履歴書未検出エラーを生成する。
func NewResumeNotFoundError(resumeID int64) *APIError {
	return &APIError{
		Code:     ErrCodeResumeNotFound,
		Message:  fmt.Sprintf("指定された履歴書が見つかりません: %d", resumeID),
		Category: "resume",
		Action:   "履歴書をアップロードし直してください。",
	}
}

// NewSessionAlreadyActiveError は同一面接で接続中のセッションが存在する場合のエラーを生成する。
func NewSessionAlreadyActiveError(interviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionAlreadyActive,
		Message:  fmt.Sprintf("この面接には既に接続中のセッションがあります: %s", interviewID),
		Category: "session",
		Action:   "他のタブやデバイスの接続を終了してから再接続してください。",
	}
}

// NewSessionNotFoundError は接続中セッション未検出エラーを生成する。
func NewSessionNotFoundError(interviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("接続中のセッションがありません: %s", interviewID),
		Category: "session",
		Action:   "面接ルームに再接続してください。",
	}
}

// NewInvalidSessionStateError はセッション状態がオペレーションを受け付けない場合のエラーを生成する。
func NewInvalidSessionStateError(state string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSessionState,
		Message:  fmt.Sprintf("現在のセッション状態では受け付けられません: %s", state),
		Category: "session",
		Action:   "再ネゴシエーションは未対応です。面接ルームに再接続してください。",
	}
}

// NewNegotiationFailedError はSDPネゴシエーション失敗エラーを生成する。
// セッションは維持されるため、クライアントはオファーを再送できる。
func NewNegotiationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNegotiationFailed,
		Message:  fmt.Sprintf("接続のネゴシエーションに失敗しました: %s", reason),
		Category: "session",
		Action:   "ブラウザのカメラ・マイク設定を確認し、オファーを再送してください。",
	}
}

// NewSessionClosedError は処理中にセッションが閉じられた場合のエラーを生成する。
func NewSessionClosedError(interviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionClosed,
		Message:  fmt.Sprintf("セッションは既に終了しています: %s", interviewID),
		Category: "session",
		Action:   "面接ルームに再接続してください。",
	}
}

// NewUnreadableDocumentError は履歴書を読み取れなかった場合のエラーを生成する。
func NewUnreadableDocumentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnreadableDocument,
		Message:  fmt.Sprintf("履歴書を読み取れませんでした: %s", reason),
		Category: "resume",
		Action:   "PDF、DOCX、テキスト形式のファイルをアップロードしてください。",
	}
}

// NewInvalidRequestError はリクエスト内容の検証エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewRateLimitExceededError はレート制限超過のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーの統一レスポンスを生成する。
// 詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
