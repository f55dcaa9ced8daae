// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ラベル値
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	TurnOutcomeReply    = "reply"
	TurnOutcomeFallback = "fallback"
	TurnOutcomeNotFound = "not_found"
	TurnOutcomeClosed   = "session_closed"

	UploadResultSaved      = "saved"
	UploadResultUnreadable = "unreadable"
	UploadResultError      = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッション管理、会話、アップロード、ワーカーから利用する。
type MetricsCollector interface {
	SessionOpened()
	SessionClosed(reason string)
	RecordNegotiation(result string)
	RecordTurn(outcome string, latency time.Duration)
	RecordUpload(result string)
	RecordInterviewsExpired(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionsActive    prometheus.Gauge
	sessionsOpened    prometheus.Counter
	sessionsClosed    *prometheus.CounterVec
	negotiations      *prometheus.CounterVec
	turns             *prometheus.CounterVec
	completionLatency prometheus.Histogram
	uploads           *prometheus.CounterVec
	interviewsExpired prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "interviewer_sessions_active",
			Help: "接続中のリアルタイムセッション数",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interviewer_sessions_opened_total",
			Help: "開始されたセッションの合計数",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewer_sessions_closed_total",
			Help: "終了理由別のセッション終了数",
		}, []string{"reason"}),
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewer_negotiations_total",
			Help: "結果別のSDPネゴシエーション数",
		}, []string{"result"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewer_turns_total",
			Help: "結果別の会話ターン数",
		}, []string{"outcome"}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "interviewer_completion_latency_seconds",
			Help:    "会話ターンの応答生成レイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewer_resume_uploads_total",
			Help: "結果別の履歴書アップロード数",
		}, []string{"result"}),
		interviewsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interviewer_interviews_expired_total",
			Help: "失効させた面接の合計数",
		}),
	}

	reg.MustRegister(
		c.sessionsActive,
		c.sessionsOpened,
		c.sessionsClosed,
		c.negotiations,
		c.turns,
		c.completionLatency,
		c.uploads,
		c.interviewsExpired,
	)

	return c
}

// SessionOpened はセッション開始を記録する。
func (c *Collector) SessionOpened() {
	c.sessionsOpened.Inc()
	c.sessionsActive.Inc()
}

// SessionClosed はセッション終了を記録する。
func (c *Collector) SessionClosed(reason string) {
	c.sessionsClosed.WithLabelValues(reason).Inc()
	c.sessionsActive.Dec()
}

// RecordNegotiation はネゴシエーション結果を記録する。
func (c *Collector) RecordNegotiation(result string) {
	c.negotiations.WithLabelValues(result).Inc()
}

// RecordTurn は会話ターンの結果を記録する。応答生成を行ったターンのみレイテンシを記録する。
func (c *Collector) RecordTurn(outcome string, latency time.Duration) {
	c.turns.WithLabelValues(outcome).Inc()
	if outcome != TurnOutcomeNotFound {
		c.completionLatency.Observe(latency.Seconds())
	}
}

// RecordUpload は履歴書アップロードの結果を記録する。
func (c *Collector) RecordUpload(result string) {
	c.uploads.WithLabelValues(result).Inc()
}

// RecordInterviewsExpired は失効させた面接数を記録する。
func (c *Collector) RecordInterviewsExpired(count int64) {
	c.interviewsExpired.Add(float64(count))
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

var _ MetricsCollector = NopCollector{}

func (NopCollector) SessionOpened()                   {}
func (NopCollector) SessionClosed(string)             {}
func (NopCollector) RecordNegotiation(string)         {}
func (NopCollector) RecordTurn(string, time.Duration) {}
func (NopCollector) RecordUpload(string)              {}
func (NopCollector) RecordInterviewsExpired(int64)    {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
