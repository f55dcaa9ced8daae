package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/interviewer/internal/conversation"
	"github.com/hitoshi/interviewer/internal/model"
)

// InterviewServiceInterface は面接ハンドラーが必要とするサービスインターフェース。
type InterviewServiceInterface interface {
	// Create は面接を作成する。
	Create(ctx context.Context, in model.NewInterviewInput) (*model.Interview, error)
	// Get は面接を取得する。
	Get(ctx context.Context, id string) (*model.Interview, error)
	// Complete は面接を終了済みにする。
	Complete(ctx context.Context, id string) (*model.Interview, error)
}

// TurnHandlerInterface は会話ターンを処理するインターフェース。
type TurnHandlerInterface interface {
	// HandleTurn は候補者の発話に対する面接官の応答を返す。
	HandleTurn(ctx context.Context, interviewID, message string) (*conversation.TurnResult, error)
}

// InterviewHandler は面接管理と会話ターンのHTTPハンドラー。
type InterviewHandler struct {
	service InterviewServiceInterface
	turns   TurnHandlerInterface
}

// NewInterviewHandler はInterviewHandlerを生成する。
func NewInterviewHandler(service InterviewServiceInterface, turns TurnHandlerInterface) *InterviewHandler {
	return &InterviewHandler{service: service, turns: turns}
}

// createSessionRequest は面接作成リクエストのボディ。
type createSessionRequest struct {
	UserID         string   `json:"user_id"`
	Role           string   `json:"role"`
	JobType        string   `json:"job_type"`
	Rounds         []string `json:"rounds"`
	JobDescription *string  `json:"job_description"`
	ResumeID       *int64   `json:"resume_id"`
}

// createSessionResponse は面接作成のAPIレスポンス。
type createSessionResponse struct {
	InterviewID string `json:"interview_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// interviewResponse は面接情報のAPIレスポンス。
type interviewResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	JobType        string    `json:"job_type"`
	Rounds         []string  `json:"rounds"`
	JobDescription *string   `json:"job_description"`
	ResumeID       *int64    `json:"resume_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// turnRequest は会話ターンのリクエストボディ。
type turnRequest struct {
	UserMessage string `json:"user_message"`
}

// turnResponse は会話ターンのAPIレスポンス。
// replyとai_responseは同じ応答文を持つ。
type turnResponse struct {
	Status     string        `json:"status"`
	AIResponse string        `json:"ai_response"`
	Reply      string        `json:"reply"`
	Fallback   bool          `json:"fallback"`
	DebugInfo  turnDebugInfo `json:"debug_info"`
}

// CreateSession は面接を作成する。
// POST /api/interview/create-session
func (h *InterviewHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	iv, err := h.service.Create(r.Context(), model.NewInterviewInput{
		UserID:         req.UserID,
		Role:           req.Role,
		JobType:        req.JobType,
		Rounds:         req.Rounds,
		JobDescription: req.JobDescription,
		ResumeID:       req.ResumeID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createSessionResponse{
		InterviewID: iv.ID,
		Status:      "success",
		Message:     "Interview session initialized successfully",
	})
}

// GetInterview は面接情報を取得する。
// GET /api/interview/{id}
func (h *InterviewHandler) GetInterview(w http.ResponseWriter, r *http.Request) {
	iv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInterviewResponse(iv))
}

// CompleteInterview は面接を終了済みにする。
// POST /api/interview/{id}/complete
func (h *InterviewHandler) CompleteInterview(w http.ResponseWriter, r *http.Request) {
	iv, err := h.service.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInterviewResponse(iv))
}

// Turn は候補者の発話を受け取り、面接官の応答を返す。
// 上流の生成に失敗した場合も定型の応答を200で返す。
// POST /api/interview/{id}/turn
func (h *InterviewHandler) Turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	res, err := h.turns.HandleTurn(r.Context(), chi.URLParam(r, "id"), req.UserMessage)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{
		Status:     "success",
		AIResponse: res.Reply,
		Reply:      res.Reply,
		Fallback:   res.Fallback,
		DebugInfo: turnDebugInfo{
			Role:        res.Role,
			SkillsFound: res.SkillsFound,
		},
	})
}

func toInterviewResponse(iv *model.Interview) interviewResponse {
	return interviewResponse{
		ID:             iv.ID,
		UserID:         iv.UserID,
		Role:           iv.Role,
		JobType:        iv.JobType,
		Rounds:         nonNil(iv.Rounds),
		JobDescription: iv.JobDescription,
		ResumeID:       iv.ResumeID,
		Status:         string(iv.Status),
		CreatedAt:      iv.CreatedAt,
		UpdatedAt:      iv.UpdatedAt,
	}
}
