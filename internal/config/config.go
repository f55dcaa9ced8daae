package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMプロバイダ名
const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

// セッション競合ポリシー
const (
	ConflictPolicyReplace = "replace"
	ConflictPolicyReject  = "reject"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// LLM
	LLMProvider  string
	GroqAPIKey   string
	GroqModel    string
	GroqBaseURL  string
	GeminiAPIKey string
	GeminiModel  string

	// GROQ_BASE_URLにプライベートアドレスを許可する（ローカルのOpenAI互換サーバー向け）
	LLMAllowPrivateEndpoint bool

	// Conversation
	TurnTimeout time.Duration

	// Resume
	ResumeParseTimeout time.Duration
	ResumeMaxSize      int64

	// Realtime session
	SessionConflictPolicy string
	ICEServers            []string
	NegotiationTimeout    time.Duration
	WSMaxMessageBytes     int64

	// Rate Limit（req/min/client）
	RateLimitTurn   int
	RateLimitUpload int

	// Interview expiry
	InterviewTTL   time.Duration
	ExpireInterval time.Duration

	// Document archive (S3互換ストレージ。未設定なら無効)
	S3Bucket    string
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	// Events (AMQP。未設定なら無効)
	AMQPURL      string
	AMQPExchange string

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigins []string

	// 1ターンを試すデバッグ用ルート（/api/test/*）
	EnableDebugRoutes bool
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GroqAPIKey == "" && cfg.GeminiAPIKey == "" {
		missing = append(missing, "GROQ_API_KEY or GEMINI_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// LLMプロバイダはキーの有無から推定し、明示指定があればそれを優先する
	defaultProvider := ProviderGroq
	if cfg.GroqAPIKey == "" {
		defaultProvider = ProviderGemini
	}
	cfg.LLMProvider = strings.ToLower(getEnvString("LLM_PROVIDER", defaultProvider))
	switch cfg.LLMProvider {
	case ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("LLM_PROVIDER=groq requires GROQ_API_KEY")
		}
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("LLM_PROVIDER=gemini requires GEMINI_API_KEY")
		}
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER: %s", cfg.LLMProvider)
	}

	cfg.SessionConflictPolicy = strings.ToLower(getEnvString("SESSION_CONFLICT_POLICY", ConflictPolicyReplace))
	if cfg.SessionConflictPolicy != ConflictPolicyReplace && cfg.SessionConflictPolicy != ConflictPolicyReject {
		return nil, fmt.Errorf("unsupported SESSION_CONFLICT_POLICY: %s", cfg.SessionConflictPolicy)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.GroqModel = getEnvString("GROQ_MODEL", "llama-3.3-70b-versatile")
	cfg.GroqBaseURL = getEnvString("GROQ_BASE_URL", "https://api.groq.com/openai/v1")
	cfg.LLMAllowPrivateEndpoint = getEnvBool("LLM_ALLOW_PRIVATE_ENDPOINT", false)
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.5-flash")
	cfg.TurnTimeout = getEnvDuration("TURN_TIMEOUT", 20*time.Second)
	cfg.ResumeParseTimeout = getEnvDuration("RESUME_PARSE_TIMEOUT", 20*time.Second)
	cfg.ResumeMaxSize = getEnvInt64("RESUME_MAX_SIZE", 10<<20)
	cfg.ICEServers = getEnvList("ICE_SERVERS", []string{"stun:stun.l.google.com:19302"})
	cfg.NegotiationTimeout = getEnvDuration("NEGOTIATION_TIMEOUT", 10*time.Second)
	cfg.WSMaxMessageBytes = getEnvInt64("WS_MAX_MESSAGE_BYTES", 1<<20)
	cfg.RateLimitTurn = getEnvInt("RATE_LIMIT_TURN", 30)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 10)
	cfg.InterviewTTL = getEnvDuration("INTERVIEW_TTL", 24*time.Hour)
	cfg.ExpireInterval = getEnvDuration("EXPIRE_INTERVAL", time.Hour)
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3Region = getEnvString("S3_REGION", "auto")
	cfg.S3AccessKey = getEnvString("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvString("S3_SECRET_KEY", "")
	cfg.AMQPURL = getEnvString("AMQP_URL", "")
	cfg.AMQPExchange = getEnvString("AMQP_EXCHANGE", "interview_events")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8000")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	cfg.EnableDebugRoutes = getEnvBool("ENABLE_DEBUG_ROUTES", true)

	return cfg, nil
}

// ArchiveEnabled は履歴書原本のアーカイブが設定されているかを返す。
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != ""
}

// EventsEnabled はイベント発行が設定されているかを返す。
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数をリストとして読み込む。空要素は除外する。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
