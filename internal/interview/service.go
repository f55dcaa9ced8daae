// Package interview は模擬面接の作成と参照を提供する。
package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/interviewer/internal/events"
	"github.com/hitoshi/interviewer/internal/model"
	"github.com/hitoshi/interviewer/internal/repository"
)

// 入力値の上限
const (
	maxRoleLength    = 255
	maxJobTypeLength = 100
	maxRounds        = 20
)

// Service は面接のビジネスロジックを提供する。
type Service struct {
	interviews repository.InterviewRepository
	resumes    repository.ResumeRepository
	publisher  events.Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(interviews repository.InterviewRepository, resumes repository.ResumeRepository, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		interviews: interviews,
		resumes:    resumes,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// Create は面接を作成する。
// resume_idが指定された場合は履歴書の存在を確認してから紐付ける。
func (s *Service) Create(ctx context.Context, in model.NewInterviewInput) (*model.Interview, error) {
	userID := strings.TrimSpace(in.UserID)
	role := strings.TrimSpace(in.Role)
	jobType := strings.TrimSpace(in.JobType)

	switch {
	case userID == "":
		return nil, model.NewInvalidRequestError("user_idは必須です")
	case role == "":
		return nil, model.NewInvalidRequestError("roleは必須です")
	case jobType == "":
		return nil, model.NewInvalidRequestError("job_typeは必須です")
	case len(role) > maxRoleLength:
		return nil, model.NewInvalidRequestError("roleが長すぎます")
	case len(jobType) > maxJobTypeLength:
		return nil, model.NewInvalidRequestError("job_typeが長すぎます")
	case len(in.Rounds) > maxRounds:
		return nil, model.NewInvalidRequestError(fmt.Sprintf("roundsは最大%d件です", maxRounds))
	}

	rounds := make([]string, 0, len(in.Rounds))
	for _, r := range in.Rounds {
		if r = strings.TrimSpace(r); r != "" {
			rounds = append(rounds, r)
		}
	}

	var jobDescription *string
	if in.JobDescription != nil {
		if jd := strings.TrimSpace(*in.JobDescription); jd != "" {
			jobDescription = &jd
		}
	}

	if in.ResumeID != nil {
		resume, err := s.resumes.FindByID(ctx, *in.ResumeID)
		if err != nil {
			return nil, fmt.Errorf("failed to find resume: %w", err)
		}
		if resume == nil {
			return nil, model.NewResumeNotFoundError(*in.ResumeID)
		}
	}

	now := s.now().UTC()
	iv := &model.Interview{
		ID:             uuid.NewString(),
		UserID:         userID,
		Role:           role,
		JobType:        jobType,
		Rounds:         rounds,
		JobDescription: jobDescription,
		ResumeID:       in.ResumeID,
		Status:         model.InterviewStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.interviews.Create(ctx, iv); err != nil {
		return nil, fmt.Errorf("failed to create interview: %w", err)
	}

	s.logger.Info("面接を作成しました",
		slog.String("interview_id", iv.ID),
		slog.String("user_id", iv.UserID),
		slog.Bool("has_resume", iv.ResumeID != nil),
	)

	events.PublishBestEffort(ctx, s.publisher, s.logger, events.Event{
		Type:        events.TypeInterviewCreated,
		InterviewID: iv.ID,
		UserID:      iv.UserID,
		Attributes:  map[string]string{"role": iv.Role},
	})

	return iv, nil
}

// Get は指定IDの面接を取得する。IDの形式が不正な場合も未検出として扱う。
func (s *Service) Get(ctx context.Context, id string) (*model.Interview, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewInterviewNotFoundError(id)
	}

	iv, err := s.interviews.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find interview: %w", err)
	}
	if iv == nil {
		return nil, model.NewInterviewNotFoundError(id)
	}
	return iv, nil
}

// Complete は面接を終了済みにする。既に終端ステータスの場合はINVALID_SESSION_STATEを返す。
func (s *Service) Complete(ctx context.Context, id string) (*model.Interview, error) {
	iv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if iv.Status.IsTerminal() {
		return nil, model.NewInvalidSessionStateError(string(iv.Status))
	}

	updated, err := s.interviews.UpdateStatus(ctx, id, model.InterviewStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to complete interview: %w", err)
	}
	if !updated {
		// 取得後に失効ジョブが先行した
		return nil, model.NewInvalidSessionStateError(string(model.InterviewStatusExpired))
	}

	iv.Status = model.InterviewStatusCompleted
	iv.UpdatedAt = s.now().UTC()
	return iv, nil
}
