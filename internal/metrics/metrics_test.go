package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if NewCollector(reg) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestSessionLifecycle_UpdatesGauge はセッション開始・終了でゲージが増減することを検証する。
func TestSessionLifecycle_UpdatesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed("client_disconnect")

	active := findMetric(t, reg, "interviewer_sessions_active", nil)
	if active == nil || active.GetGauge().GetValue() != 1 {
		t.Errorf("sessions_active = %v, want 1", active)
	}
	opened := findMetric(t, reg, "interviewer_sessions_opened_total", nil)
	if opened == nil || opened.GetCounter().GetValue() != 2 {
		t.Errorf("sessions_opened_total = %v, want 2", opened)
	}
	closed := findMetric(t, reg, "interviewer_sessions_closed_total", map[string]string{"reason": "client_disconnect"})
	if closed == nil || closed.GetCounter().GetValue() != 1 {
		t.Errorf("sessions_closed_total{reason=client_disconnect} = %v, want 1", closed)
	}
}

// TestRecordNegotiation_ByResult は結果ラベル別にカウントされることを検証する。
func TestRecordNegotiation_ByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordNegotiation(ResultSuccess)
	c.RecordNegotiation(ResultFailure)
	c.RecordNegotiation(ResultFailure)

	m := findMetric(t, reg, "interviewer_negotiations_total", map[string]string{"result": ResultFailure})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("negotiations_total{result=failure} = %v, want 2", m)
	}
}

// TestRecordTurn_ObservesLatency は応答生成したターンのみレイテンシを記録することを検証する。
func TestRecordTurn_ObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTurn(TurnOutcomeReply, 500*time.Millisecond)
	c.RecordTurn(TurnOutcomeFallback, 20*time.Second)
	c.RecordTurn(TurnOutcomeNotFound, 0)

	h := findMetric(t, reg, "interviewer_completion_latency_seconds", nil)
	if h == nil {
		t.Fatal("completion latency histogram not found")
	}
	if h.GetHistogram().GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetHistogram().GetSampleCount())
	}

	nf := findMetric(t, reg, "interviewer_turns_total", map[string]string{"outcome": TurnOutcomeNotFound})
	if nf == nil || nf.GetCounter().GetValue() != 1 {
		t.Errorf("turns_total{outcome=not_found} = %v, want 1", nf)
	}
}

// TestRecordUploadAndExpiry はアップロードと失効のカウンタを検証する。
func TestRecordUploadAndExpiry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpload(UploadResultSaved)
	c.RecordUpload(UploadResultUnreadable)
	c.RecordInterviewsExpired(3)
	c.RecordInterviewsExpired(0)

	saved := findMetric(t, reg, "interviewer_resume_uploads_total", map[string]string{"result": UploadResultSaved})
	if saved == nil || saved.GetCounter().GetValue() != 1 {
		t.Errorf("resume_uploads_total{result=saved} = %v, want 1", saved)
	}
	expired := findMetric(t, reg, "interviewer_interviews_expired_total", nil)
	if expired == nil || expired.GetCounter().GetValue() != 3 {
		t.Errorf("interviews_expired_total = %v, want 3", expired)
	}
}

// TestHandler_ServesMetrics はハンドラーがメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.SessionOpened()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "interviewer_sessions_opened_total") {
		t.Error("response should contain interviewer_sessions_opened_total metric")
	}
}
