package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/interviewer/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter

	// 死活監視
	DB             Pinger
	MetricsHandler http.Handler

	// 面接・会話
	InterviewService InterviewServiceInterface
	TurnHandler      TurnHandlerInterface

	// 履歴書
	ResumeService ResumeServiceInterface
	ResumeMaxSize int64

	// リアルタイムセッション
	SessionRegistry   SessionRegistryInterface
	MessageHandler    MessageHandlerInterface
	WSMaxMessageBytes int64

	// デバッグ用ルート（/api/test/*）を公開するか
	EnableDebugRoutes bool
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging
//
// レート制限はターンとアップロードのルートにのみ適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	healthHandler := NewHealthHandler(deps.DB)
	interviewHandler := NewInterviewHandler(deps.InterviewService, deps.TurnHandler)
	resumeHandler := NewResumeHandler(deps.ResumeService, deps.ResumeMaxSize)
	wsHandler := NewWSHandler(deps.SessionRegistry, deps.MessageHandler, deps.CORSAllowedOrigins, deps.WSMaxMessageBytes, deps.Logger)

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// 履歴書
	r.Route("/api/resume", func(r chi.Router) {
		r.With(deps.RateLimiter.UploadMiddleware()).Post("/upload-resume", resumeHandler.UploadResume)
	})

	// 面接
	r.Route("/api/interview", func(r chi.Router) {
		r.Post("/create-session", interviewHandler.CreateSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", interviewHandler.GetInterview)
			r.Post("/complete", interviewHandler.CompleteInterview)
			r.With(deps.RateLimiter.TurnMiddleware()).Post("/turn", interviewHandler.Turn)
		})
	})

	// デバッグ
	if deps.EnableDebugRoutes {
		debugHandler := NewDebugHandler(deps.TurnHandler)
		r.With(deps.RateLimiter.TurnMiddleware()).Post("/api/test/chat/test", debugHandler.TestChat)
	}

	// リアルタイムセッション
	r.Get("/ws/interview/{id}", wsHandler.Serve)

	return r
}
