package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/idna"
)

// DefaultAllowedDomain は許可するメールドメインの既定値。
const DefaultAllowedDomain = "@ucaldas.edu.co"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Identity backend
	SupabaseURL     string
	SupabaseAnonKey string

	// OAuth
	AllowedDomain    string
	OAuthRedirectURL string

	// Session persistence (CLI)
	SessionFile string

	// Profile API
	APIBaseURL    string
	APIToken      string // 開発用の固定トークン
	TestUserID    string // 開発用の固定ユーザーID
	HTTPTimeout   time.Duration
	AvatarMaxSize int64

	// Logging
	LogLevel string

	// Web front
	DatabaseURL           string
	DBConnectAttempts     int
	BaseURL               string
	ServerPort            string
	SessionMaxAge         int
	SessionRetentionDays  int
	RateLimitGeneral      int
	RateLimitProfileWrite int

	// Worker
	CleanupInterval time.Duration
	MetricsPort     string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	if cfg.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}

	cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")
	if cfg.SupabaseAnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	domain, err := NormalizeDomain(getEnvString("ALLOWED_EMAIL_DOMAIN", DefaultAllowedDomain))
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOWED_EMAIL_DOMAIN: %w", err)
	}
	cfg.AllowedDomain = domain

	// Optional fields with defaults
	cfg.OAuthRedirectURL = getEnvString("OAUTH_REDIRECT_URL", "http://127.0.0.1:8765/auth/callback")
	cfg.SessionFile = getEnvString("SESSION_FILE", defaultSessionFile())
	cfg.APIToken = os.Getenv("API_TOKEN")
	cfg.TestUserID = os.Getenv("TEST_USER_ID")
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 15*time.Second)
	cfg.AvatarMaxSize = getEnvInt64("AVATAR_MAX_SIZE", 5242880)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 7)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitProfileWrite = getEnvInt("RATE_LIMIT_PROFILE_WRITE", 20)
	cfg.DBConnectAttempts = getEnvInt("DB_CONNECT_ATTEMPTS", 5)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:8080")

	return cfg, nil
}

// ValidateServe はWebフロント（serveコマンド）に必要な設定を検証する。
func (c *Config) ValidateServe() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return nil
}

// NormalizeDomain は許可ドメインを比較用の形式に正規化する。
// 小文字化し、先頭に@を付与し、国際化ドメイン名はASCII（punycode）に変換する。
func NormalizeDomain(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "@")
	if d == "" {
		return "", fmt.Errorf("domain is empty")
	}
	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", err
	}
	return "@" + ascii, nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "uniconnect", "session.json")
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
