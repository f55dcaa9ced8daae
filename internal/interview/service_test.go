package interview

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/interviewer/internal/events"
	"github.com/hitoshi/interviewer/internal/model"
)

// --- モック ---

type mockInterviewRepo struct {
	createFn       func(ctx context.Context, iv *model.Interview) error
	findByIDFn     func(ctx context.Context, id string) (*model.Interview, error)
	updateStatusFn func(ctx context.Context, id string, status model.InterviewStatus) (bool, error)
}

func (m *mockInterviewRepo) Create(ctx context.Context, iv *model.Interview) error {
	if m.createFn != nil {
		return m.createFn(ctx, iv)
	}
	return nil
}
func (m *mockInterviewRepo) FindByID(ctx context.Context, id string) (*model.Interview, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockInterviewRepo) UpdateStatus(ctx context.Context, id string, status model.InterviewStatus) (bool, error) {
	return m.updateStatusFn(ctx, id, status)
}
func (m *mockInterviewRepo) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type mockResumeRepo struct {
	findByIDFn func(ctx context.Context, id int64) (*model.Resume, error)
}

func (m *mockResumeRepo) Create(ctx context.Context, resume *model.Resume) error { return nil }
func (m *mockResumeRepo) FindByID(ctx context.Context, id int64) (*model.Resume, error) {
	return m.findByIDFn(ctx, id)
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func newTestService(ivRepo *mockInterviewRepo, resumeRepo *mockResumeRepo, pub *recordingPublisher) *Service {
	var buf bytes.Buffer
	svc := NewService(ivRepo, resumeRepo, pub, slog.New(slog.NewJSONHandler(&buf, nil)))
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string { return &s }

func TestService_Create_Success(t *testing.T) {
	var stored *model.Interview
	ivRepo := &mockInterviewRepo{createFn: func(ctx context.Context, iv *model.Interview) error {
		stored = iv
		return nil
	}}
	resumeRepo := &mockResumeRepo{findByIDFn: func(ctx context.Context, id int64) (*model.Resume, error) {
		return &model.Resume{ID: id}, nil
	}}
	pub := &recordingPublisher{}
	svc := newTestService(ivRepo, resumeRepo, pub)

	iv, err := svc.Create(context.Background(), model.NewInterviewInput{
		UserID:         "user-1",
		Role:           " Backend ",
		JobType:        "Full-time",
		Rounds:         []string{"technical", " ", "behavioral"},
		JobDescription: strPtr("   "),
		ResumeID:       int64Ptr(7),
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := uuid.Parse(iv.ID); err != nil {
		t.Errorf("ID = %q is not a UUID", iv.ID)
	}
	if stored != iv {
		t.Error("created interview should be stored")
	}
	if iv.Role != "Backend" {
		t.Errorf("Role = %q, want trimmed", iv.Role)
	}
	if len(iv.Rounds) != 2 || iv.Rounds[0] != "technical" || iv.Rounds[1] != "behavioral" {
		t.Errorf("Rounds = %v, want [technical behavioral]", iv.Rounds)
	}
	if iv.JobDescription != nil {
		t.Errorf("blank job description should be nil, got %q", *iv.JobDescription)
	}
	if iv.Status != model.InterviewStatusActive {
		t.Errorf("Status = %q, want active", iv.Status)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypeInterviewCreated || pub.events[0].InterviewID != iv.ID {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestService_Create_Validation(t *testing.T) {
	svc := newTestService(&mockInterviewRepo{}, &mockResumeRepo{}, &recordingPublisher{})

	tests := []struct {
		name string
		in   model.NewInterviewInput
	}{
		{name: "user_idなし", in: model.NewInterviewInput{Role: "Backend", JobType: "Full-time"}},
		{name: "roleなし", in: model.NewInterviewInput{UserID: "u", JobType: "Full-time"}},
		{name: "job_typeなし", in: model.NewInterviewInput{UserID: "u", Role: "Backend"}},
		{name: "rounds過多", in: model.NewInterviewInput{UserID: "u", Role: "Backend", JobType: "x", Rounds: make([]string, maxRounds+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			if !model.HasCode(err, model.ErrCodeInvalidRequest) {
				t.Errorf("expected INVALID_REQUEST, got %v", err)
			}
		})
	}
}

func TestService_Create_UnknownResume(t *testing.T) {
	ivRepo := &mockInterviewRepo{createFn: func(ctx context.Context, iv *model.Interview) error {
		t.Error("interview should not be stored when resume is missing")
		return nil
	}}
	resumeRepo := &mockResumeRepo{findByIDFn: func(ctx context.Context, id int64) (*model.Resume, error) {
		return nil, nil
	}}
	svc := newTestService(ivRepo, resumeRepo, &recordingPublisher{})

	_, err := svc.Create(context.Background(), model.NewInterviewInput{
		UserID: "u", Role: "Backend", JobType: "Full-time", ResumeID: int64Ptr(99),
	})
	if !model.HasCode(err, model.ErrCodeResumeNotFound) {
		t.Errorf("expected RESUME_NOT_FOUND, got %v", err)
	}
}

func TestService_Create_StoreError(t *testing.T) {
	ivRepo := &mockInterviewRepo{createFn: func(ctx context.Context, iv *model.Interview) error {
		return errors.New("connection reset")
	}}
	pub := &recordingPublisher{}
	svc := newTestService(ivRepo, &mockResumeRepo{}, pub)

	_, err := svc.Create(context.Background(), model.NewInterviewInput{UserID: "u", Role: "Backend", JobType: "Full-time"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(pub.events) != 0 {
		t.Error("no event should be published when the insert fails")
	}
}

func TestService_Get_InvalidID_NotFound(t *testing.T) {
	ivRepo := &mockInterviewRepo{findByIDFn: func(ctx context.Context, id string) (*model.Interview, error) {
		t.Error("store should not be queried for malformed ids")
		return nil, nil
	}}
	svc := newTestService(ivRepo, &mockResumeRepo{}, &recordingPublisher{})

	_, err := svc.Get(context.Background(), "not-a-uuid")
	if !model.HasCode(err, model.ErrCodeInterviewNotFound) {
		t.Errorf("expected INTERVIEW_NOT_FOUND, got %v", err)
	}
}

func TestService_Get_Missing(t *testing.T) {
	ivRepo := &mockInterviewRepo{findByIDFn: func(ctx context.Context, id string) (*model.Interview, error) {
		return nil, nil
	}}
	svc := newTestService(ivRepo, &mockResumeRepo{}, &recordingPublisher{})

	_, err := svc.Get(context.Background(), uuid.NewString())
	if !model.HasCode(err, model.ErrCodeInterviewNotFound) {
		t.Errorf("expected INTERVIEW_NOT_FOUND, got %v", err)
	}
}

func TestService_Complete(t *testing.T) {
	id := uuid.NewString()
	ivRepo := &mockInterviewRepo{
		findByIDFn: func(ctx context.Context, got string) (*model.Interview, error) {
			return &model.Interview{ID: got, Status: model.InterviewStatusActive}, nil
		},
		updateStatusFn: func(ctx context.Context, got string, status model.InterviewStatus) (bool, error) {
			if status != model.InterviewStatusCompleted {
				t.Errorf("status = %q, want completed", status)
			}
			return true, nil
		},
	}
	svc := newTestService(ivRepo, &mockResumeRepo{}, &recordingPublisher{})

	iv, err := svc.Complete(context.Background(), id)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if iv.Status != model.InterviewStatusCompleted {
		t.Errorf("Status = %q, want completed", iv.Status)
	}
}

func TestService_Complete_Terminal(t *testing.T) {
	ivRepo := &mockInterviewRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Interview, error) {
			return &model.Interview{ID: id, Status: model.InterviewStatusExpired}, nil
		},
		updateStatusFn: func(ctx context.Context, id string, status model.InterviewStatus) (bool, error) {
			t.Error("terminal interviews should not be updated")
			return false, nil
		},
	}
	svc := newTestService(ivRepo, &mockResumeRepo{}, &recordingPublisher{})

	_, err := svc.Complete(context.Background(), uuid.NewString())
	if !model.HasCode(err, model.ErrCodeInvalidSessionState) {
		t.Errorf("expected INVALID_SESSION_STATE, got %v", err)
	}
}
