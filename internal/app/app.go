package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/interviewer/internal/config"
	"github.com/hitoshi/interviewer/internal/conversation"
	"github.com/hitoshi/interviewer/internal/database"
	"github.com/hitoshi/interviewer/internal/handler"
	"github.com/hitoshi/interviewer/internal/interview"
	"github.com/hitoshi/interviewer/internal/logger"
	"github.com/hitoshi/interviewer/internal/metrics"
	"github.com/hitoshi/interviewer/internal/middleware"
	"github.com/hitoshi/interviewer/internal/repository"
	"github.com/hitoshi/interviewer/internal/resume"
	"github.com/hitoshi/interviewer/internal/security"
	"github.com/hitoshi/interviewer/internal/session"
	"github.com/hitoshi/interviewer/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envがあれば環境変数に読み込み、JSON構造化ログをセットアップしてConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（存在しなくてもよい。既存の環境変数は上書きしない）
	_ = godotenv.Load()

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("llm_provider", cfg.LLMProvider),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandExpire:
		return runExpire(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()
	log := slog.Default()

	// 1. DB接続
	db, err := connectDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	interviewRepo := repository.NewPostgresInterviewRepo(db)
	resumeRepo := repository.NewPostgresResumeRepo(db)

	// 3. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 4. 外部連携（LLM、アーカイブ、イベント）
	completer, err := newCompleter(ctx, cfg, log)
	if err != nil {
		return err
	}

	store, err := newDocumentStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	publisher, closePublisher := newPublisher(cfg, log)
	defer closePublisher()

	// 5. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()
	parser := resume.NewLLMParser(completer, cfg.ResumeParseTimeout)
	resumeService := resume.NewService(
		resumeRepo, parser, sanitizer, store, publisher, collector, log, cfg.ResumeMaxSize,
	)
	interviewService := interview.NewService(interviewRepo, resumeRepo, publisher, log)

	registry := session.NewRegistry(cfg.SessionConflictPolicy, collector, publisher, log)
	negotiator := session.NewNegotiator(
		registry, session.NewPionPeerFactory(cfg.ICEServers), collector, log, cfg.NegotiationTimeout,
	)

	assembler := conversation.NewAssembler(interviewRepo, resumeRepo, log)
	turns := conversation.NewTurnController(
		assembler, completer, sessionGate{registry: registry}, collector, log, cfg.TurnTimeout,
	)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitTurn, cfg.RateLimitUpload),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:             log,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,

		DB:             db,
		MetricsHandler: metrics.Handler(reg),

		InterviewService: interviewService,
		TurnHandler:      turns,

		ResumeService: resumeService,
		ResumeMaxSize: cfg.ResumeMaxSize,

		SessionRegistry:   registry,
		MessageHandler:    negotiator,
		WSMaxMessageBytes: cfg.WSMaxMessageBytes,

		EnableDebugRoutes: cfg.EnableDebugRoutes,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// WebSocket接続を切らないようWriteTimeoutは設定しない
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("session_policy", cfg.SessionConflictPolicy),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdownはhijack済みのWebSocket接続を待たないため、セッションは別に閉じる
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("some sessions did not drain before the deadline",
			slog.Int("remaining", registry.Count()),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、面接の失効ジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// シグナル受信でキャンセルされる
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. DB接続
	db, err := connectDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. 失効ジョブの初期化
	interviewRepo := repository.NewPostgresInterviewRepo(db)
	reg := prometheus.NewRegistry()
	expiryJob := cleanup.NewExpiryJob(interviewRepo, metrics.NewCollector(reg), slog.Default(), cfg.InterviewTTL)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("expire_interval", cfg.ExpireInterval),
		slog.Duration("interview_ttl", cfg.InterviewTTL),
	)

	// 失効ジョブをメインgoroutineで実行（ブロッキング）
	expiryJob.Start(ctx, cfg.ExpireInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runExpire は面接の失効処理を1回だけ実行する。
func runExpire(cfg *config.Config) error {
	ctx := context.Background()

	db, err := connectDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewExpiryJob(
		repository.NewPostgresInterviewRepo(db), metrics.NopCollector{}, slog.Default(), cfg.InterviewTTL,
	)
	return job.Run(ctx)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:" + port + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードを伏せる。解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
