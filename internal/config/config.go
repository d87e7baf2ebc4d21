package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Rate Limit
	RateLimitGeneral  int
	RateLimitAnalysis int

	// Storage
	StorageRoot   string
	SignedURLTTL  time.Duration
	UploadMaxSize int64
	S3Bucket      string
	S3Endpoint    string

	// Realtime
	RedisURL string

	// Search
	SerpAPIKey       string
	RemoteOKEndpoint string
	JobRSSFeeds      []string
	SearchTimeout    time.Duration

	// Analysis
	PDFCoAPIKey       string
	HuggingFaceAPIKey string
	HuggingFaceModel  string
	GeminiAPIKey      string
	GeminiModel       string

	// Reminder
	ReminderInterval time.Duration
	AWSRegion        string
	SESFromAddress   string
	SNSTopicARN      string

	// Cleanup
	NotificationRetentionDays int

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
// カレントディレクトリに.envがあれば先に読み込むが、既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envは任意。存在しない場合のエラーは無視する
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
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

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GitHubClientID = getEnvString("GITHUB_CLIENT_ID", "")
	cfg.GitHubClientSecret = getEnvString("GITHUB_CLIENT_SECRET", "")
	cfg.GitHubRedirectURL = getEnvString("GITHUB_REDIRECT_URL", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAnalysis = getEnvInt("RATE_LIMIT_ANALYSIS", 10)
	cfg.StorageRoot = getEnvString("STORAGE_ROOT", "./data/storage")
	cfg.SignedURLTTL = getEnvDuration("SIGNED_URL_TTL", time.Hour)
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 10<<20)
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.SerpAPIKey = getEnvString("SERPAPI_KEY", "")
	cfg.RemoteOKEndpoint = getEnvString("REMOTEOK_ENDPOINT", "https://remoteok.com/api")
	cfg.JobRSSFeeds = getEnvList("JOB_RSS_FEEDS")
	cfg.SearchTimeout = getEnvDuration("SEARCH_TIMEOUT", 15*time.Second)
	cfg.PDFCoAPIKey = getEnvString("PDFCO_API_KEY", "")
	cfg.HuggingFaceAPIKey = getEnvString("HUGGINGFACE_API_KEY", "")
	cfg.HuggingFaceModel = getEnvString("HUGGINGFACE_MODEL", "mistralai/Mistral-7B-Instruct-v0.2")
	cfg.GeminiAPIKey = getEnvString("GEMINI_API_KEY", "")
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-1.5-flash")
	cfg.ReminderInterval = getEnvDuration("REMINDER_INTERVAL", time.Hour)
	cfg.AWSRegion = getEnvString("AWS_REGION", "")
	cfg.SESFromAddress = getEnvString("SES_FROM_ADDRESS", "")
	cfg.SNSTopicARN = getEnvString("SNS_TOPIC_ARN", "")
	cfg.NotificationRetentionDays = getEnvInt("NOTIFICATION_RETENTION_DAYS", 90)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// GitHubEnabled はGitHub OAuthの設定が揃っているかを返す。
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != "" && c.GitHubRedirectURL != ""
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

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスで返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
