package handler

import (
	"encoding/json"
	"net/http"
)

// DebugHandler はフロントエンドを介さずに会話ターンを試すためのHTTPハンドラー。
type DebugHandler struct {
	turns TurnHandlerInterface
}

// NewDebugHandler はDebugHandlerを生成する。
func NewDebugHandler(turns TurnHandlerInterface) *DebugHandler {
	return &DebugHandler{turns: turns}
}

// testChatRequest はテスト用会話リクエストのボディ。
type testChatRequest struct {
	InterviewID string `json:"interview_id"`
	UserMessage string `json:"user_message"`
}

// turnDebugInfo は応答生成に使ったコンテキストの要約。
type turnDebugInfo struct {
	Role        string `json:"role"`
	SkillsFound int    `json:"skills_found"`
}

// testChatResponse はテスト用会話のAPIレスポンス。
type testChatResponse struct {
	Status       string        `json:"status"`
	InputMessage string        `json:"input_message"`
	AIResponse   string        `json:"ai_response"`
	DebugInfo    turnDebugInfo `json:"debug_info"`
}

// TestChat は1ターン分の会話を実行し、応答とデバッグ情報を返す。
// POST /api/test/chat/test
func (h *DebugHandler) TestChat(w http.ResponseWriter, r *http.Request) {
	var req testChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	res, err := h.turns.HandleTurn(r.Context(), req.InterviewID, req.UserMessage)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, testChatResponse{
		Status:       "success",
		InputMessage: req.UserMessage,
		AIResponse:   res.Reply,
		DebugInfo: turnDebugInfo{
			Role:        res.Role,
			SkillsFound: res.SkillsFound,
		},
	})
}
