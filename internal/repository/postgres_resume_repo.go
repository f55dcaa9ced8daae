package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/interviewer/internal/model"
)

// PostgresResumeRepo はPostgreSQLを使用した履歴書リポジトリ。
type PostgresResumeRepo struct {
	db *sql.DB
}

// NewPostgresResumeRepo はPostgresResumeRepoを生成する。
func NewPostgresResumeRepo(db *sql.DB) *PostgresResumeRepo {
	return &PostgresResumeRepo{db: db}
}

var _ ResumeRepository = (*PostgresResumeRepo)(nil)

// Create は履歴書を保存する。IDはDBで採番する。
func (r *PostgresResumeRepo) Create(ctx context.Context, resume *model.Resume) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO resume_data (user_id, name, email, phone, skills, education,
		                          experience, projects, raw_text, document_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		resume.UserID,
		nullStringPtr(resume.Name), nullStringPtr(resume.Email), nullStringPtr(resume.Phone),
		pq.Array(nonNil(resume.Skills)), pq.Array(nonNil(resume.Education)),
		pq.Array(nonNil(resume.Experience)), pq.Array(nonNil(resume.Projects)),
		resume.RawText, nullStringPtr(resume.DocumentKey),
	).Scan(&resume.ID, &resume.CreatedAt)
	if err != nil {
		return fmt.Errorf("履歴書の保存に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの履歴書を取得する。見つからない場合はnilを返す。
func (r *PostgresResumeRepo) FindByID(ctx context.Context, id int64) (*model.Resume, error) {
	resume := &model.Resume{}
	var name, email, phone, documentKey sql.NullString
	var skills, education, experience, projects pq.StringArray

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, email, phone, skills, education,
		        experience, projects, raw_text, document_key, created_at
		 FROM resume_data WHERE id = $1`,
		id,
	).Scan(
		&resume.ID, &resume.UserID, &name, &email, &phone,
		&skills, &education, &experience, &projects,
		&resume.RawText, &documentKey, &resume.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("履歴書の取得に失敗しました: %w", err)
	}

	resume.Name = nullStringToPtr(name)
	resume.Email = nullStringToPtr(email)
	resume.Phone = nullStringToPtr(phone)
	resume.DocumentKey = nullStringToPtr(documentKey)
	resume.Skills = nonNil([]string(skills))
	resume.Education = nonNil([]string(education))
	resume.Experience = nonNil([]string(experience))
	resume.Projects = nonNil([]string(projects))

	return resume, nil
}
