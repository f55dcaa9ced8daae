// Package resume は履歴書のテキスト抽出、項目抽出、保存までのアップロード処理を提供する。
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nguyenthenguyen/docx"
	xhtml "golang.org/x/net/html"
)

// 対応する文書形式
const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEText = "text/plain"
	MIMEHTML = "text/html"
)

// ErrUnsupportedFormat は未対応形式の文書を受け取った場合のエラー。
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrEmptyDocument は文書からテキストが得られなかった場合のエラー。
var ErrEmptyDocument = errors.New("document contains no text")

// docxMarkup はdocxの本文XMLからタグを除去するポリシー。
var docxMarkup = bluemonday.StrictPolicy()

// DetectFormat はContent-Typeとファイル名の拡張子から文書形式を判定する。
// ブラウザがapplication/octet-streamを送る場合があるため、拡張子を優先して補完する。
func DetectFormat(filename, contentType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MIMEPDF
	case ".docx":
		return MIMEDOCX
	case ".txt", ".md":
		return MIMEText
	case ".html", ".htm":
		return MIMEHTML
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case MIMEPDF, MIMEDOCX, MIMEText, MIMEHTML:
		return mediaType
	}
	return ""
}

// ExtractText は文書バイト列からプレーンテキストを抽出する。
func ExtractText(format string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch format {
	case MIMEText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("text document is not valid UTF-8")
		}
		text = string(data)
	case MIMEPDF:
		text, err = extractPDFText(data)
	case MIMEDOCX:
		text, err = extractDocxText(data)
	case MIMEHTML:
		text = extractHTMLText(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func extractPDFText(data []byte) (text string, err error) {
	// 壊れたPDFでライブラリがpanicすることがあるため、エラーとして扱う
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func extractDocxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	// 段落の区切りを改行として残してからタグを除去する
	content := doc.Editable().GetContent()
	content = strings.ReplaceAll(content, "</w:p>", "</w:p>\n")
	return html.UnescapeString(docxMarkup.Sanitize(content)), nil
}

// htmlBlockTags は前後で改行を入れるブロック要素。
var htmlBlockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true,
}

// extractHTMLText はHTMLの本文テキストを取り出す。
// script/style/headの中身は読み飛ばし、ブロック要素の境界を改行にする。
func extractHTMLText(data []byte) string {
	tokenizer := xhtml.NewTokenizer(bytes.NewReader(data))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case xhtml.ErrorToken:
			return compactLines(b.String())

		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			tagName := string(tn)
			switch {
			case tagName == "script" || tagName == "style" || tagName == "head":
				if tt == xhtml.StartTagToken {
					skipDepth++
				}
			case htmlBlockTags[tagName]:
				b.WriteString("\n")
			}

		case xhtml.EndTagToken:
			tn, _ := tokenizer.TagName()
			tagName := string(tn)
			switch {
			case tagName == "script" || tagName == "style" || tagName == "head":
				if skipDepth > 0 {
					skipDepth--
				}
			case htmlBlockTags[tagName]:
				b.WriteString("\n")
			}

		case xhtml.TextToken:
			if skipDepth > 0 {
				continue
			}
			// Text()はエンティティをデコード済み
			text := strings.Join(strings.Fields(string(tokenizer.Text())), " ")
			if text == "" {
				continue
			}
			b.WriteString(text)
			b.WriteString(" ")
		}
	}
}

// compactLines は各行の前後空白を除き、空行を詰める。
func compactLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
