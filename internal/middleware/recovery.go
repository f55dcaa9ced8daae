package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
)

// NewRecoveryMiddleware はハンドラー内のpanicを回収し、統一フォーマットの500を返すミドルウェアを生成する。
// WebSocketのアップグレード要求では接続がhijack済みの可能性があるため、ログのみ出力する。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				upgrade := isWebSocketUpgrade(r)
				logger.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					// ロギングミドルウェアより外側にあるため、レスポンスヘッダーから取得する
					slog.String("request_id", w.Header().Get(RequestIDHeader)),
					slog.Bool("websocket", upgrade),
					slog.String("stack", string(debug.Stack())),
				)
				if !upgrade {
					WriteInternalServerError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
