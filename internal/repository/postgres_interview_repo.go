package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/interviewer/internal/model"
)

// PostgresInterviewRepo はPostgreSQLを使用した面接リポジトリ。
type PostgresInterviewRepo struct {
	db *sql.DB
}

// NewPostgresInterviewRepo はPostgresInterviewRepoを生成する。
func NewPostgresInterviewRepo(db *sql.DB) *PostgresInterviewRepo {
	return &PostgresInterviewRepo{db: db}
}

var _ InterviewRepository = (*PostgresInterviewRepo)(nil)

// Create は面接を作成する。
func (r *PostgresInterviewRepo) Create(ctx context.Context, interview *model.Interview) error {
	rounds := interview.Rounds
	if rounds == nil {
		rounds = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO interviews (id, user_id, role, job_type, rounds, job_description,
		                         resume_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		interview.ID, interview.UserID, interview.Role, interview.JobType,
		pq.Array(rounds), nullStringPtr(interview.JobDescription),
		nullInt64Ptr(interview.ResumeID), string(interview.Status),
		interview.CreatedAt, interview.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("面接の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの面接を取得する。見つからない場合はnilを返す。
func (r *PostgresInterviewRepo) FindByID(ctx context.Context, id string) (*model.Interview, error) {
	interview := &model.Interview{}
	var rounds pq.StringArray
	var jobDescription sql.NullString
	var resumeID sql.NullInt64
	var status string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, role, job_type, rounds, job_description,
		        resume_id, status, created_at, updated_at
		 FROM interviews WHERE id = $1`,
		id,
	).Scan(
		&interview.ID, &interview.UserID, &interview.Role, &interview.JobType,
		&rounds, &jobDescription, &resumeID, &status,
		&interview.CreatedAt, &interview.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("面接の取得に失敗しました: %w", err)
	}

	interview.Rounds = []string(rounds)
	if interview.Rounds == nil {
		interview.Rounds = []string{}
	}
	interview.JobDescription = nullStringToPtr(jobDescription)
	interview.ResumeID = nullInt64ToPtr(resumeID)
	interview.Status = model.InterviewStatus(status)

	return interview, nil
}

// UpdateStatus は面接のステータスを更新する。終端ステータスの面接は変更しない。
func (r *PostgresInterviewRepo) UpdateStatus(ctx context.Context, id string, status model.InterviewStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE interviews SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = 'active'`,
		id, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("面接ステータスの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// ExpireStale はcutoffより前に作成されたactiveな面接をexpiredにする。
func (r *PostgresInterviewRepo) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE interviews SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("面接の失効処理に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("失効件数の取得に失敗しました: %w", err)
	}
	return n, nil
}
