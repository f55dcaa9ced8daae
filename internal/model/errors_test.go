package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error_IncludesCode(t *testing.T) {
	err := NewInterviewNotFoundError("iv-1")
	got := err.Error()
	want := "[INTERVIEW_NOT_FOUND] 指定された面接が見つかりません: iv-1"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestHasCode_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context build: %w", NewInterviewNotFoundError("iv-1"))

	if !HasCode(wrapped, ErrCodeInterviewNotFound) {
		t.Error("HasCode should find INTERVIEW_NOT_FOUND through wrapping")
	}
	if HasCode(wrapped, ErrCodeSessionNotFound) {
		t.Error("HasCode should not match a different code")
	}
}

func TestHasCode_PlainError(t *testing.T) {
	if HasCode(errors.New("boom"), ErrCodeInternal) {
		t.Error("HasCode should be false for non-APIError")
	}
	if HasCode(nil, ErrCodeInternal) {
		t.Error("HasCode should be false for nil")
	}
}

func TestConstructors_SetCategory(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		code     string
		category string
	}{
		{"interview not found", NewInterviewNotFoundError("x"), ErrCodeInterviewNotFound, "interview"},
		{"resume not found", NewResumeNotFoundError(3), ErrCodeResumeNotFound, "resume"},
		{"already active", NewSessionAlreadyActiveError("x"), ErrCodeSessionAlreadyActive, "session"},
		{"session not found", NewSessionNotFoundError("x"), ErrCodeSessionNotFound, "session"},
		{"invalid state", NewInvalidSessionStateError("answer_sent"), ErrCodeInvalidSessionState, "session"},
		{"negotiation failed", NewNegotiationFailedError("bad sdp"), ErrCodeNegotiationFailed, "session"},
		{"session closed", NewSessionClosedError("x"), ErrCodeSessionClosed, "session"},
		{"unreadable", NewUnreadableDocumentError("empty"), ErrCodeUnreadableDocument, "resume"},
		{"invalid request", NewInvalidRequestError("role"), ErrCodeInvalidRequest, "validation"},
		{"internal", NewInternalError(), ErrCodeInternal, "system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Category != tt.category {
				t.Errorf("Category = %q, want %q", tt.err.Category, tt.category)
			}
			if tt.err.Action == "" {
				t.Error("Action should not be empty")
			}
		})
	}
}

func TestParsedResume_Normalize_FillsNilLists(t *testing.T) {
	p := &ParsedResume{Skills: []string{"Go"}}
	p.Normalize()

	if len(p.Skills) != 1 {
		t.Errorf("Skills = %v, want [Go]", p.Skills)
	}
	if p.Education == nil || p.Experience == nil || p.Projects == nil {
		t.Error("Normalize should replace nil lists with empty slices")
	}
}

func TestInterviewStatus_IsTerminal(t *testing.T) {
	if InterviewStatusActive.IsTerminal() {
		t.Error("active should not be terminal")
	}
	if !InterviewStatusCompleted.IsTerminal() || !InterviewStatusExpired.IsTerminal() {
		t.Error("completed and expired should be terminal")
	}
}
