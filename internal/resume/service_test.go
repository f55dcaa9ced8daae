package resume

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/interviewer/internal/events"
	"github.com/hitoshi/interviewer/internal/metrics"
	"github.com/hitoshi/interviewer/internal/model"
	"github.com/hitoshi/interviewer/internal/security"
)

// --- モック ---

type mockResumeRepo struct {
	createFn   func(ctx context.Context, resume *model.Resume) error
	findByIDFn func(ctx context.Context, id int64) (*model.Resume, error)
	created    []*model.Resume
}

func (m *mockResumeRepo) Create(ctx context.Context, resume *model.Resume) error {
	m.created = append(m.created, resume)
	if m.createFn != nil {
		return m.createFn(ctx, resume)
	}
	resume.ID = int64(len(m.created))
	return nil
}

func (m *mockResumeRepo) FindByID(ctx context.Context, id int64) (*model.Resume, error) {
	return m.findByIDFn(ctx, id)
}

type mockParser struct {
	parseFn func(ctx context.Context, text string) (*model.ParsedResume, error)
}

func (m *mockParser) Parse(ctx context.Context, text string) (*model.ParsedResume, error) {
	return m.parseFn(ctx, text)
}

type mockStore struct {
	putFn func(ctx context.Context, userID, filename, contentType string, data []byte) (string, error)
}

func (m *mockStore) Put(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
	return m.putFn(ctx, userID, filename, contentType, data)
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

type recordingMetrics struct {
	metrics.NopCollector
	uploads []string
}

func (m *recordingMetrics) RecordUpload(result string) {
	m.uploads = append(m.uploads, result)
}

func strPtr(s string) *string { return &s }

func okParser() *mockParser {
	return &mockParser{
		parseFn: func(ctx context.Context, text string) (*model.ParsedResume, error) {
			return &model.ParsedResume{
				Name:       strPtr("<b>Ada</b>"),
				Skills:     []string{"Go", "SQL"},
				Experience: []string{"Backend Engineer"},
				RawText:    text,
			}, nil
		},
	}
}

type serviceFixture struct {
	svc       *Service
	repo      *mockResumeRepo
	publisher *recordingPublisher
	metrics   *recordingMetrics
	logs      *bytes.Buffer
}

func newServiceFixture(parser FieldParser, store *mockStore) *serviceFixture {
	f := &serviceFixture{
		repo:      &mockResumeRepo{},
		publisher: &recordingPublisher{},
		metrics:   &recordingMetrics{},
		logs:      &bytes.Buffer{},
	}
	if store == nil {
		store = &mockStore{putFn: func(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
			return "", nil
		}}
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, nil))
	f.svc = NewService(f.repo, parser, security.NewTextSanitizer(), store, f.publisher, f.metrics, logger, 1024)
	return f
}

func TestService_Upload_Success(t *testing.T) {
	store := &mockStore{putFn: func(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
		if contentType != MIMEText {
			t.Errorf("contentType = %q, want %q", contentType, MIMEText)
		}
		return "resumes/user-1/cv.txt", nil
	}}
	f := newServiceFixture(okParser(), store)

	resume, err := f.svc.Upload(context.Background(), UploadInput{
		UserID:   "user-1",
		Filename: "cv.txt",
		Data:     []byte("Ada\nGo, SQL"),
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if len(f.repo.created) != 1 {
		t.Fatalf("created = %d, want 1", len(f.repo.created))
	}
	if resume.Name == nil || *resume.Name != "Ada" {
		t.Errorf("Name = %v, want sanitized Ada", resume.Name)
	}
	if resume.DocumentKey == nil || *resume.DocumentKey != "resumes/user-1/cv.txt" {
		t.Errorf("DocumentKey = %v", resume.DocumentKey)
	}
	if resume.Education == nil {
		t.Error("Education should be an empty slice")
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != events.TypeResumeUploaded {
		t.Errorf("events = %+v, want one resume.uploaded", f.publisher.events)
	}
	if len(f.metrics.uploads) != 1 || f.metrics.uploads[0] != metrics.UploadResultSaved {
		t.Errorf("uploads = %v, want [saved]", f.metrics.uploads)
	}
}

func TestService_Upload_DefaultsAnonymousUser(t *testing.T) {
	f := newServiceFixture(okParser(), nil)

	resume, err := f.svc.Upload(context.Background(), UploadInput{Filename: "cv.txt", Data: []byte("Ada")})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if resume.UserID != anonymousUserID {
		t.Errorf("UserID = %q, want %q", resume.UserID, anonymousUserID)
	}
}

func TestService_Upload_UnreadableDocument_NothingPersisted(t *testing.T) {
	parser := &mockParser{parseFn: func(ctx context.Context, text string) (*model.ParsedResume, error) {
		t.Error("parser should not be called for unreadable documents")
		return nil, nil
	}}
	f := newServiceFixture(parser, nil)

	_, err := f.svc.Upload(context.Background(), UploadInput{UserID: "u", Filename: "cv.png", ContentType: "image/png", Data: []byte{0x89, 0x50}})
	if !model.HasCode(err, model.ErrCodeUnreadableDocument) {
		t.Fatalf("expected UNREADABLE_DOCUMENT, got %v", err)
	}
	if len(f.repo.created) != 0 {
		t.Errorf("nothing should be persisted, got %d rows", len(f.repo.created))
	}
	if len(f.publisher.events) != 0 {
		t.Errorf("no event should be published, got %+v", f.publisher.events)
	}
	if len(f.metrics.uploads) != 1 || f.metrics.uploads[0] != metrics.UploadResultUnreadable {
		t.Errorf("uploads = %v, want [unreadable]", f.metrics.uploads)
	}
}

func TestService_Upload_ParserFailure_NothingPersisted(t *testing.T) {
	parser := &mockParser{parseFn: func(ctx context.Context, text string) (*model.ParsedResume, error) {
		return nil, errors.New("upstream timeout")
	}}
	f := newServiceFixture(parser, nil)

	_, err := f.svc.Upload(context.Background(), UploadInput{UserID: "u", Filename: "cv.txt", Data: []byte("Ada")})
	if !model.HasCode(err, model.ErrCodeUnreadableDocument) {
		t.Fatalf("expected UNREADABLE_DOCUMENT, got %v", err)
	}
	if len(f.repo.created) != 0 {
		t.Errorf("nothing should be persisted, got %d rows", len(f.repo.created))
	}
}

func TestService_Upload_ArchiveFailure_StillSaves(t *testing.T) {
	store := &mockStore{putFn: func(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
		return "", errors.New("bucket not found")
	}}
	f := newServiceFixture(okParser(), store)

	resume, err := f.svc.Upload(context.Background(), UploadInput{UserID: "u", Filename: "cv.txt", Data: []byte("Ada")})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if resume.DocumentKey != nil {
		t.Errorf("DocumentKey = %q, want nil", *resume.DocumentKey)
	}
	if len(f.repo.created) != 1 {
		t.Errorf("created = %d, want 1", len(f.repo.created))
	}
}

func TestService_Upload_TooLarge(t *testing.T) {
	f := newServiceFixture(okParser(), nil)

	_, err := f.svc.Upload(context.Background(), UploadInput{UserID: "u", Filename: "cv.txt", Data: bytes.Repeat([]byte("a"), 2048)})
	if !model.HasCode(err, model.ErrCodeInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestService_Upload_Empty(t *testing.T) {
	f := newServiceFixture(okParser(), nil)

	_, err := f.svc.Upload(context.Background(), UploadInput{UserID: "u", Filename: "cv.txt"})
	if !model.HasCode(err, model.ErrCodeInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestService_Upload_RepositoryError(t *testing.T) {
	f := newServiceFixture(okParser(), nil)
	f.repo.createFn = func(ctx context.Context, resume *model.Resume) error {
		return errors.New("connection refused")
	}

	_, err := f.svc.Upload(context.Background(), UploadInput{UserID: "u", Filename: "cv.txt", Data: []byte("Ada")})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store errors should not be domain errors, got %v", apiErr)
	}
}

func TestService_Get_NotFound(t *testing.T) {
	f := newServiceFixture(okParser(), nil)
	f.repo.findByIDFn = func(ctx context.Context, id int64) (*model.Resume, error) {
		return nil, nil
	}

	_, err := f.svc.Get(context.Background(), 42)
	if !model.HasCode(err, model.ErrCodeResumeNotFound) {
		t.Errorf("expected RESUME_NOT_FOUND, got %v", err)
	}
}
