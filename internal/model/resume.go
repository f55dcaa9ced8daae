package model

import "time"

// Resume はアップロードされた履歴書から抽出した構造化データを表す。
// アップロードごとに1回作成され、以後変更されない。
type Resume struct {
	ID          int64
	UserID      string
	Name        *string
	Email       *string
	Phone       *string
	Skills      []string
	Education   []string
	Experience  []string
	Projects    []string
	RawText     string
	DocumentKey *string // オブジェクトストレージ上の原本キー。未保存の場合はnil
	CreatedAt   time.Time
}

// ParsedResume は抽出処理の結果で、まだ保存されていない履歴書データ。
// リスト項目はnilではなく空スライスで保持する。
type ParsedResume struct {
	Name       *string  `json:"name"`
	Email      *string  `json:"email"`
	Phone      *string  `json:"phone"`
	Skills     []string `json:"skills"`
	Education  []string `json:"education"`
	Experience []string `json:"experience"`
	Projects   []string `json:"projects"`
	RawText    string   `json:"raw_text"`
}

// Normalize はnilのリストを空スライスに置き換える。
func (p *ParsedResume) Normalize() {
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if p.Education == nil {
		p.Education = []string{}
	}
	if p.Experience == nil {
		p.Experience = []string{}
	}
	if p.Projects == nil {
		p.Projects = []string{}
	}
}
