// Package cleanup は放置された面接の失効ジョブを提供する。
// 作成から有効期間（デフォルト24時間）を超えたactiveな面接をexpiredにする。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/interviewer/internal/metrics"
)

// InterviewExpirer は面接の一括失効を行うインターフェース。
// repository.InterviewRepositoryが満たす。
type InterviewExpirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpiryJob は有効期間を超えた面接を失効させるジョブ。
// 冪等で、対象がない場合もエラーにならない。
type ExpiryJob struct {
	interviews InterviewExpirer
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	TTL        time.Duration // 面接の有効期間（デフォルト: 24時間）
	now        func() time.Time
}

// NewExpiryJob は新しいExpiryJobを生成する。ttlが0以下の場合は24時間を使用する。
func NewExpiryJob(interviews InterviewExpirer, mc metrics.MetricsCollector, logger *slog.Logger, ttl time.Duration) *ExpiryJob {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ExpiryJob{
		interviews: interviews,
		metrics:    mc,
		logger:     logger,
		TTL:        ttl,
		now:        time.Now,
	}
}

// Run はcreated_atが現在時刻からTTLより前のactiveな面接を失効させる。
func (j *ExpiryJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.Add(-j.TTL).UTC()

	expired, err := j.interviews.ExpireStale(ctx, cutoff)
	if err != nil {
		j.logger.Error("面接失効ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("ttl", j.TTL),
		)
		return fmt.Errorf("面接の失効処理に失敗: %w", err)
	}
	j.metrics.RecordInterviewsExpired(expired)

	j.logger.Info("面接失効ジョブが完了しました",
		slog.Int64("expired_count", expired),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}

// Start は指定間隔でRunを繰り返す。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *ExpiryJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("面接失効ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("ttl", j.TTL),
	)

	// エラーはRun内でログ出力済み
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("面接失効ジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
