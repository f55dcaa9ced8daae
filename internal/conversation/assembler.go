// Package conversation は面接の会話コンテキストの組み立てと、1ターンの応答生成を提供する。
package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/interviewer/internal/model"
	"github.com/hitoshi/interviewer/internal/repository"
)

// ResumeView はプロンプトに埋め込む履歴書の項目。履歴書がない場合はゼロ値。
type ResumeView struct {
	Name       *string
	Skills     []string
	Education  []string
	Experience []string
	Projects   []string
}

// Context は面接設定と履歴書を結合した会話コンテキスト。ターンごとに組み立て直す。
type Context struct {
	Interview model.Interview
	Resume    ResumeView
}

// Assembler は面接IDから会話コンテキストを組み立てる。
type Assembler struct {
	interviews repository.InterviewRepository
	resumes    repository.ResumeRepository
	logger     *slog.Logger
}

// NewAssembler はAssemblerを生成する。
func NewAssembler(interviews repository.InterviewRepository, resumes repository.ResumeRepository, logger *slog.Logger) *Assembler {
	return &Assembler{
		interviews: interviews,
		resumes:    resumes,
		logger:     logger,
	}
}

// BuildContext は面接と紐付く履歴書を読み込む。
// 面接がなければINTERVIEW_NOT_FOUNDを返す。履歴書の取得はベストエフォートで、
// 見つからない場合や取得に失敗した場合は空のResumeViewで続行する。
func (a *Assembler) BuildContext(ctx context.Context, interviewID string) (*Context, error) {
	if _, err := uuid.Parse(interviewID); err != nil {
		return nil, model.NewInterviewNotFoundError(interviewID)
	}

	iv, err := a.interviews.FindByID(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interview: %w", err)
	}
	if iv == nil {
		return nil, model.NewInterviewNotFoundError(interviewID)
	}

	c := &Context{Interview: *iv}
	if iv.ResumeID == nil {
		return c, nil
	}

	resume, err := a.resumes.FindByID(ctx, *iv.ResumeID)
	switch {
	case err != nil:
		a.logger.Warn("履歴書の取得に失敗したため、履歴書なしで続行します",
			slog.String("interview_id", interviewID),
			slog.Int64("resume_id", *iv.ResumeID),
			slog.String("error", err.Error()),
		)
	case resume == nil:
		a.logger.Warn("紐付く履歴書が見つからないため、履歴書なしで続行します",
			slog.String("interview_id", interviewID),
			slog.Int64("resume_id", *iv.ResumeID),
		)
	default:
		c.Resume = ResumeView{
			Name:       resume.Name,
			Skills:     resume.Skills,
			Education:  resume.Education,
			Experience: resume.Experience,
			Projects:   resume.Projects,
		}
	}
	return c, nil
}
