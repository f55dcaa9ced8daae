package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// serveLogged はロギングミドルウェア経由でリクエストを処理し、出力された1行のログを返す。
func serveLogged(t *testing.T, h http.Handler, req *http.Request) (map[string]interface{}, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	w := httptest.NewRecorder()
	NewLoggingMiddleware(logger)(h).ServeHTTP(w, req)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry, w
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	entry, _ := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}), httptest.NewRequest(http.MethodPost, "/api/interview/create-session", nil))

	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", entry["msg"])
	}
	if entry["method"] != "POST" {
		t.Errorf("method = %v, want POST", entry["method"])
	}
	if entry["path"] != "/api/interview/create-session" {
		t.Errorf("path = %v", entry["path"])
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if entry["bytes"] != float64(len(`{"ok":true}`)) {
		t.Errorf("bytes = %v, want %d", entry["bytes"], len(`{"ok":true}`))
	}
	if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
		t.Errorf("duration_ms = %v, want >= 0", entry["duration_ms"])
	}
}

func TestLoggingMiddleware_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusConflict, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			entry, _ := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}), httptest.NewRequest(http.MethodGet, "/test", nil))

			if entry["status"] != float64(tt.status) {
				t.Errorf("status = %v, want %d", entry["status"], tt.status)
			}
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
		})
	}
}

func TestLoggingMiddleware_InterviewID(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/interview/{id}", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := NewLoggingMiddleware(logger)(r)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/interview/iv-123", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2", len(lines))
	}
	var withID, withoutID map[string]interface{}
	json.Unmarshal([]byte(lines[0]), &withID)
	json.Unmarshal([]byte(lines[1]), &withoutID)

	if withID["interview_id"] != "iv-123" {
		t.Errorf("interview_id = %v, want iv-123", withID["interview_id"])
	}
	if _, ok := withoutID["interview_id"]; ok {
		t.Errorf("interview_id should be omitted for /health, got %v", withoutID["interview_id"])
	}
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	t.Run("採番", func(t *testing.T) {
		var fromCtx string
		entry, w := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fromCtx = RequestIDFromContext(r.Context())
		}), httptest.NewRequest(http.MethodGet, "/", nil))

		header := w.Result().Header.Get(RequestIDHeader)
		if header == "" {
			t.Fatal("X-Request-ID header should be set")
		}
		if fromCtx != header || entry["request_id"] != header {
			t.Errorf("request id mismatch: ctx=%q header=%q log=%v", fromCtx, header, entry["request_id"])
		}
	})

	t.Run("クライアント指定を引き継ぐ", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-abc")
		entry, w := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), req)

		if got := w.Result().Header.Get(RequestIDHeader); got != "req-abc" {
			t.Errorf("X-Request-ID = %q, want req-abc", got)
		}
		if entry["request_id"] != "req-abc" {
			t.Errorf("request_id = %v, want req-abc", entry["request_id"])
		}
	})

	t.Run("長すぎる指定は採番し直す", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
		_, w := serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), req)

		if got := w.Result().Header.Get(RequestIDHeader); len(got) > maxRequestIDLen || got == "" {
			t.Errorf("X-Request-ID = %q, want a fresh id", got)
		}
	})
}

func TestLoggingMiddleware_ExposesHijacker(t *testing.T) {
	var hijackable bool
	serveLogged(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hijackable = w.(http.Hijacker)
	}), httptest.NewRequest(http.MethodGet, "/ws/interview/x", nil))

	if !hijackable {
		t.Error("wrapped writer should implement http.Hijacker")
	}
}

// lockedBuffer はサーバーgoroutineとテストから同時に触れるログ出力先。
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoggingMiddleware_HijackedConnectionLoggedAsSession(t *testing.T) {
	var logs lockedBuffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	srv := httptest.NewServer(NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, rw, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("Hijack() error = %v", err)
			return
		}
		defer conn.Close()
		rw.WriteString("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
		rw.Flush()
	})))
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	fmt.Fprintf(conn, "GET /ws/interview/iv-1 HTTP/1.1\r\nHost: example\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
	io.Copy(io.Discard, bufio.NewReader(conn))

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(logs.String(), "websocket_session") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(logs.String())), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, logs.String())
	}
	if entry["msg"] != "websocket_session" {
		t.Errorf("msg = %v, want websocket_session", entry["msg"])
	}
	if entry["status"] != float64(http.StatusSwitchingProtocols) {
		t.Errorf("status = %v, want 101", entry["status"])
	}
	if _, ok := entry["bytes"]; ok {
		t.Error("bytes should be omitted for hijacked connections")
	}
}
