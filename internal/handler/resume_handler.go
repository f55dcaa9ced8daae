package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/interviewer/internal/middleware"
	"github.com/hitoshi/interviewer/internal/model"
	"github.com/hitoshi/interviewer/internal/resume"
)

// multipartOverhead はmultipartのヘッダー等に許容する追加バイト数。
const multipartOverhead = 1 << 20

// ResumeServiceInterface は履歴書ハンドラーが必要とするサービスインターフェース。
type ResumeServiceInterface interface {
	// Upload は文書を解析して履歴書を保存する。
	Upload(ctx context.Context, in resume.UploadInput) (*model.Resume, error)
}

// ResumeHandler は履歴書アップロードのHTTPハンドラー。
type ResumeHandler struct {
	service ResumeServiceInterface
	maxSize int64
}

// NewResumeHandler はResumeHandlerを生成する。
func NewResumeHandler(service ResumeServiceInterface, maxSize int64) *ResumeHandler {
	return &ResumeHandler{service: service, maxSize: maxSize}
}

// parsedResumeResponse は抽出結果のAPIレスポンス。
type parsedResumeResponse struct {
	Name       *string  `json:"name"`
	Email      *string  `json:"email"`
	Phone      *string  `json:"phone"`
	Skills     []string `json:"skills"`
	Education  []string `json:"education"`
	Experience []string `json:"experience"`
	Projects   []string `json:"projects"`
}

// savedResumeResponse は保存済み履歴書のAPIレスポンス。
type savedResumeResponse struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	parsedResumeResponse
}

// uploadResumeResponse はアップロード成功時のレスポンス。
type uploadResumeResponse struct {
	Status string               `json:"status"`
	Parsed parsedResumeResponse `json:"parsed"`
	Saved  savedResumeResponse  `json:"saved"`
}

// uploadResumeErrorResponse は文書を読み取れなかった場合のレスポンス。
type uploadResumeErrorResponse struct {
	Status  string           `json:"status"`
	Details apiErrorResponse `json:"details"`
}

// UploadResume は履歴書ファイルを受け取り、解析結果と保存結果を返す。
// POST /api/resume/upload-resume (multipart: file, user_id)
func (h *ResumeHandler) UploadResume(w http.ResponseWriter, r *http.Request) {
	if h.maxSize > 0 {
		if r.ContentLength > h.maxSize+multipartOverhead {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewInvalidRequestError("ファイルサイズが上限を超えています"))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewInvalidRequestError("ファイルサイズが上限を超えています"))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("multipartフォームを解析できません"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("fileは必須です"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("ファイルを読み込めません"))
		return
	}

	saved, err := h.service.Upload(r.Context(), resume.UploadInput{
		UserID:      r.FormValue("user_id"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		if model.HasCode(err, model.ErrCodeUnreadableDocument) {
			var apiErr *model.APIError
			errors.As(err, &apiErr)
			writeJSON(w, http.StatusUnprocessableEntity, uploadResumeErrorResponse{
				Status:  "error",
				Details: middleware.NewErrorResponseBody(apiErr),
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	parsed := toParsedResumeResponse(saved)
	writeJSON(w, http.StatusOK, uploadResumeResponse{
		Status: "success",
		Parsed: parsed,
		Saved: savedResumeResponse{
			ID:                   saved.ID,
			UserID:               saved.UserID,
			CreatedAt:            saved.CreatedAt,
			parsedResumeResponse: parsed,
		},
	})
}

func toParsedResumeResponse(r *model.Resume) parsedResumeResponse {
	return parsedResumeResponse{
		Name:       r.Name,
		Email:      r.Email,
		Phone:      r.Phone,
		Skills:     nonNil(r.Skills),
		Education:  nonNil(r.Education),
		Experience: nonNil(r.Experience),
		Projects:   nonNil(r.Projects),
	}
}

// nonNil はnilスライスを空スライスに置き換える（JSONでnullを返さないため）。
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
