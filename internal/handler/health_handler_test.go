package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error { return m.err }

func TestHealthHandler_Root(t *testing.T) {
	h := NewHealthHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.Root(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	var got map[string]string
	json.NewDecoder(w.Body).Decode(&got)
	if got["status"] != "Backend is running" {
		t.Errorf("status = %q", got["status"])
	}
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want int
	}{
		{"no database", nil, http.StatusOK},
		{"database reachable", &mockPinger{}, http.StatusOK},
		{"database unreachable", &mockPinger{err: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db)
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			h.Health(w, req)

			if w.Result().StatusCode != tt.want {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.want)
			}
		})
	}
}
