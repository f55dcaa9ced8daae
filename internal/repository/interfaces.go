// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/interviewer/internal/model"
)

// InterviewRepository は面接データの永続化インターフェース。
type InterviewRepository interface {
	// Create は面接を作成する。IDとタイムスタンプは呼び出し側で設定する。
	Create(ctx context.Context, interview *model.Interview) error

	// FindByID は指定IDの面接を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Interview, error)

	// UpdateStatus は面接のステータスを更新する。
	// 終端ステータスの面接は更新しない。更新した場合はtrueを返す。
	UpdateStatus(ctx context.Context, id string, status model.InterviewStatus) (bool, error)

	// ExpireStale はcutoffより前に作成されたactiveな面接をexpiredにし、件数を返す。
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// ResumeRepository は履歴書データの永続化インターフェース。
type ResumeRepository interface {
	// Create は履歴書を保存し、採番されたIDと作成日時をresumeに設定する。
	Create(ctx context.Context, resume *model.Resume) error

	// FindByID は指定IDの履歴書を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Resume, error)
}
