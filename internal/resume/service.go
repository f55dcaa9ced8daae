package resume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hitoshi/interviewer/internal/events"
	"github.com/hitoshi/interviewer/internal/metrics"
	"github.com/hitoshi/interviewer/internal/model"
	"github.com/hitoshi/interviewer/internal/repository"
	"github.com/hitoshi/interviewer/internal/security"
	"github.com/hitoshi/interviewer/internal/storage"
)

// anonymousUserID はuser_id未指定のアップロードに割り当てる利用者ID。
const anonymousUserID = "anonymous"

// UploadInput は履歴書アップロードの入力値。
type UploadInput struct {
	UserID      string
	Filename    string
	ContentType string
	Data        []byte
}

// Service は履歴書アップロードのビジネスロジックを提供する。
type Service struct {
	resumes   repository.ResumeRepository
	parser    FieldParser
	sanitizer security.TextSanitizer
	store     storage.DocumentStore
	publisher events.Publisher
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	maxSize   int64
}

// NewService はServiceを生成する。
func NewService(
	resumes repository.ResumeRepository,
	parser FieldParser,
	sanitizer security.TextSanitizer,
	store storage.DocumentStore,
	publisher events.Publisher,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	maxSize int64,
) *Service {
	return &Service{
		resumes:   resumes,
		parser:    parser,
		sanitizer: sanitizer,
		store:     store,
		publisher: publisher,
		metrics:   mc,
		logger:    logger,
		maxSize:   maxSize,
	}
}

// Upload は文書からテキストと項目を抽出し、履歴書として保存する。
// 抽出に失敗した場合はUNREADABLE_DOCUMENTを返し、何も保存しない。
// 原本のアーカイブは付随処理のため、失敗しても保存は継続する。
func (s *Service) Upload(ctx context.Context, in UploadInput) (*model.Resume, error) {
	if len(in.Data) == 0 {
		return nil, model.NewInvalidRequestError("ファイルが空です")
	}
	if s.maxSize > 0 && int64(len(in.Data)) > s.maxSize {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています", s.maxSize))
	}
	userID := in.UserID
	if userID == "" {
		userID = anonymousUserID
	}

	format := DetectFormat(in.Filename, in.ContentType)
	text, err := ExtractText(format, in.Data)
	if err != nil {
		s.metrics.RecordUpload(metrics.UploadResultUnreadable)
		s.logger.Warn("履歴書のテキスト抽出に失敗しました",
			slog.String("filename", in.Filename),
			slog.String("content_type", in.ContentType),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnreadableDocumentError(unreadableReason(err))
	}

	parsed, err := s.parser.Parse(ctx, text)
	if err != nil {
		s.metrics.RecordUpload(metrics.UploadResultUnreadable)
		s.logger.Warn("履歴書の項目抽出に失敗しました",
			slog.String("filename", in.Filename),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnreadableDocumentError("項目を抽出できませんでした")
	}
	s.sanitizer.SanitizeResume(parsed)
	parsed.Normalize()

	resume := &model.Resume{
		UserID:     userID,
		Name:       parsed.Name,
		Email:      parsed.Email,
		Phone:      parsed.Phone,
		Skills:     parsed.Skills,
		Education:  parsed.Education,
		Experience: parsed.Experience,
		Projects:   parsed.Projects,
		RawText:    parsed.RawText,
	}

	key, err := s.store.Put(ctx, userID, in.Filename, format, in.Data)
	if err != nil {
		s.logger.Warn("履歴書原本のアーカイブをスキップしました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	} else if key != "" {
		resume.DocumentKey = &key
	}

	if err := s.resumes.Create(ctx, resume); err != nil {
		s.metrics.RecordUpload(metrics.UploadResultError)
		return nil, fmt.Errorf("failed to save resume: %w", err)
	}
	s.metrics.RecordUpload(metrics.UploadResultSaved)

	s.logger.Info("履歴書を保存しました",
		slog.Int64("resume_id", resume.ID),
		slog.String("user_id", userID),
		slog.Int("skills_count", len(resume.Skills)),
	)

	events.PublishBestEffort(ctx, s.publisher, s.logger, events.Event{
		Type:   events.TypeResumeUploaded,
		UserID: userID,
		Attributes: map[string]string{
			"resume_id": strconv.FormatInt(resume.ID, 10),
		},
	})

	return resume, nil
}

// Get は指定IDの履歴書を取得する。見つからない場合はRESUME_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Resume, error) {
	resume, err := s.resumes.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find resume: %w", err)
	}
	if resume == nil {
		return nil, model.NewResumeNotFoundError(id)
	}
	return resume, nil
}

func unreadableReason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return "未対応のファイル形式です"
	case errors.Is(err, ErrEmptyDocument):
		return "テキストが含まれていません"
	default:
		return "文書が破損しているか読み取れません"
	}
}
