// Package model はドメインモデルを定義する。
package model

import "time"

// InterviewStatus は模擬面接のステータスを表す。
type InterviewStatus string

const (
	// InterviewStatusActive は実施可能な面接。
	InterviewStatusActive InterviewStatus = "active"
	// InterviewStatusCompleted は終了した面接。
	InterviewStatusCompleted InterviewStatus = "completed"
	// InterviewStatusExpired は有効期限切れで失効した面接。
	InterviewStatusExpired InterviewStatus = "expired"
)

// IsTerminal は終端ステータスかどうかを返す。
func (s InterviewStatus) IsTerminal() bool {
	return s == InterviewStatusCompleted || s == InterviewStatusExpired
}

// Interview は模擬面接セッションの設定を表す。
// 作成後はStatus以外変更しない。
type Interview struct {
	ID             string
	UserID         string
	Role           string
	JobType        string
	Rounds         []string // 実施順
	JobDescription *string
	ResumeID       *int64
	Status         InterviewStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewInterviewInput は面接作成リクエストの入力値。
type NewInterviewInput struct {
	UserID         string
	Role           string
	JobType        string
	Rounds         []string
	JobDescription *string
	ResumeID       *int64
}
