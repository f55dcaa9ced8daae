package resume

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/interviewer/internal/llm"
	"github.com/hitoshi/interviewer/internal/model"
)

const parserSystemPrompt = `You are an expert resume parser. Extract structured information into a single, valid, minified JSON object (no markdown). Include these fields:
- "name": string (null if missing)
- "email": string (null if missing)
- "phone": string (null if missing)
- "skills": list of strings (empty list if missing)
- "education": list of strings (empty list if missing)
- "experience": list of strings (empty list if missing)
- "projects": list of strings (empty list if missing)

Return all available data exactly as in the resume. If any section is missing, include the field with its default value (null or empty list).`

// parserMaxTokens は項目抽出の最大出力トークン数。
const parserMaxTokens = 8000

// FieldParser は履歴書テキストから構造化項目を抽出する。
type FieldParser interface {
	Parse(ctx context.Context, text string) (*model.ParsedResume, error)
}

// LLMParser は言語モデルのJSONモードで項目を抽出するFieldParser。
type LLMParser struct {
	completer llm.Completer
	timeout   time.Duration
}

var _ FieldParser = (*LLMParser)(nil)

// NewLLMParser はLLMParserを生成する。
func NewLLMParser(completer llm.Completer, timeout time.Duration) *LLMParser {
	return &LLMParser{completer: completer, timeout: timeout}
}

// rawResume は言語モデルの出力。リスト項目は文字列またはオブジェクトを許容する。
type rawResume struct {
	Name       *string           `json:"name"`
	Email      *string           `json:"email"`
	Phone      *string           `json:"phone"`
	Skills     []json.RawMessage `json:"skills"`
	Education  []json.RawMessage `json:"education"`
	Experience []json.RawMessage `json:"experience"`
	Projects   []json.RawMessage `json:"projects"`
}

// Parse は1回の補完呼び出しで項目を抽出する。RawTextには入力テキストを設定する。
func (p *LLMParser) Parse(ctx context.Context, text string) (*model.ParsedResume, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, err := p.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: parserSystemPrompt,
		UserMessage:  "Resume Text:\n" + text + "\n\nExtract into valid JSON.",
		MaxTokens:    parserMaxTokens,
		Temperature:  0,
		JSONMode:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract resume fields: %w", err)
	}

	var raw rawResume
	if err := json.Unmarshal([]byte(cleanJSON(out)), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode resume fields: %w", err)
	}

	parsed := &model.ParsedResume{
		Name:       raw.Name,
		Email:      raw.Email,
		Phone:      raw.Phone,
		Skills:     flattenItems(raw.Skills),
		Education:  flattenItems(raw.Education),
		Experience: flattenItems(raw.Experience),
		Projects:   flattenItems(raw.Projects),
		RawText:    text,
	}
	parsed.Normalize()
	return parsed, nil
}

// cleanJSON はモデル出力を囲むMarkdownのコードフェンスを除去する。
func cleanJSON(s string) string {
	clean := strings.TrimSpace(s)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	return strings.TrimSpace(clean)
}

// flattenItems はリスト項目を文字列に揃える。
// オブジェクトはキー順に値を " - " で連結し、空の項目は除外する。
func flattenItems(items []json.RawMessage) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := flattenValue(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func flattenValue(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64, bool:
		return fmt.Sprint(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := stringify(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := stringify(t[k]); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " - ")
	}
	return ""
}
