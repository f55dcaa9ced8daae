// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は履歴書から抽出したフィールドをプレーンテキストに正規化する。
// 抽出結果はプロンプトに埋め込まれ、APIレスポンスとしてブラウザにも返るため、
// bluemondayのStrictPolicyでマークアップを全て除去してから保存する。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/interviewer/internal/model"
)

// TextSanitizer はテキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// SanitizeText はタグと制御文字を除去し、空白を1つに畳んだ文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(s string) string

	// SanitizeResume は抽出済み履歴書の全フィールドをサニタイズする。
	// サニタイズ後に空になったリスト項目は除外する。
	SanitizeResume(p *model.ParsedResume)
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

var _ TextSanitizer = (*textSanitizer)(nil)

// SanitizeText はタグを除去したプレーンテキストを返す。
func (s *textSanitizer) SanitizeText(in string) string {
	if in == "" {
		return ""
	}
	// StrictPolicyはエンティティをエスケープして返すため、プレーンテキストに戻す
	stripped := html.UnescapeString(s.policy.Sanitize(in))

	var b strings.Builder
	b.Grow(len(stripped))
	space := false
	for _, r := range stripped {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeResume は抽出済み履歴書のフィールドをその場で書き換える。
// RawTextは改行を保持するため、タグ除去のみ行う。
func (s *textSanitizer) SanitizeResume(p *model.ParsedResume) {
	p.Name = s.sanitizePtr(p.Name)
	p.Email = s.sanitizePtr(p.Email)
	p.Phone = s.sanitizePtr(p.Phone)
	p.Skills = s.sanitizeList(p.Skills)
	p.Education = s.sanitizeList(p.Education)
	p.Experience = s.sanitizeList(p.Experience)
	p.Projects = s.sanitizeList(p.Projects)
	if p.RawText != "" {
		p.RawText = strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(p.RawText)))
	}
}

func (s *textSanitizer) sanitizePtr(v *string) *string {
	if v == nil {
		return nil
	}
	out := s.SanitizeText(*v)
	if out == "" {
		return nil
	}
	return &out
}

func (s *textSanitizer) sanitizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := s.SanitizeText(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}
