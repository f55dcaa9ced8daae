// Package logger はslogによるJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redactedKeys はログに値を残さない属性キー。
// 履歴書の連絡先とプロバイダの認証情報が誤ってログに出ないようにする。
var redactedKeys = map[string]bool{
	"api_key":       true,
	"authorization": true,
	"email":         true,
	"phone":         true,
	"raw_text":      true,
}

const redacted = "[REDACTED]"

// Setup はINFOレベルのJSONロガーを生成する。
func Setup(w io.Writer) *slog.Logger {
	return SetupWithLevel(w, slog.LevelInfo)
}

// SetupWithLevel は指定レベル以上を出力するJSONロガーを生成する。
// 個人情報や認証情報のキーは値を伏せて出力する。
func SetupWithLevel(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr,
	})
	return slog.New(handler)
}

func redactAttr(groups []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// ParseLevel はLOG_LEVEL文字列をslog.Levelに変換する。未知の値はINFO。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupDefault はJSONロガーをグローバルロガーとして設定する。wがnilならos.Stdout。
func SetupDefault(w io.Writer, level string) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(SetupWithLevel(w, ParseLevel(level)))
}
