package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストアドライバ
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string
	StoreDriver string

	// Transaction
	TxMaxRetries     int
	TxRetryBaseDelay time.Duration

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Identity token
	TokenSigningKey string
	TokenIssuer     string
	TokenTTL        time.Duration
	TokenLeeway     time.Duration

	// Access request
	TechLeadGate bool

	// Claims resync
	ClaimsResyncInterval time.Duration
	// RequestRetentionDays は終了済み申請の保持日数。0の場合は削除しない。
	RequestRetentionDays int
	// WorkerMetricsPort はworkerモードの/metrics公開ポート。空の場合は公開しない。
	WorkerMetricsPort string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitSubmit  int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.StoreDriver = getEnvString("STORE_DRIVER", StoreDriverPostgres)
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %s", cfg.StoreDriver)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.StoreDriver == StoreDriverPostgres {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.TokenSigningKey = os.Getenv("TOKEN_SIGNING_KEY")
	if cfg.TokenSigningKey == "" {
		missing = append(missing, "TOKEN_SIGNING_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// HS256の鍵長は32バイト以上を要求する
	if len(cfg.TokenSigningKey) < 32 {
		return nil, fmt.Errorf("TOKEN_SIGNING_KEY must be at least 32 bytes")
	}

	// Optional fields with defaults
	cfg.TxMaxRetries = getEnvInt("TX_MAX_RETRIES", 3)
	cfg.TxRetryBaseDelay = getEnvDuration("TX_RETRY_BASE_DELAY", 20*time.Millisecond)
	cfg.TokenIssuer = getEnvString("TOKEN_ISSUER", "accessportal")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", time.Hour)
	cfg.TokenLeeway = getEnvDuration("TOKEN_LEEWAY", 30*time.Second)
	cfg.TechLeadGate = getEnvBool("TECH_LEAD_GATE", true)
	cfg.ClaimsResyncInterval = getEnvDuration("CLAIMS_RESYNC_INTERVAL", 10*time.Minute)
	cfg.WorkerMetricsPort = os.Getenv("WORKER_METRICS_PORT")
	cfg.RequestRetentionDays = getEnvInt("REQUEST_RETENTION_DAYS", 0)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSubmit = getEnvInt("RATE_LIMIT_SUBMIT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
