// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 署名シークレットと許可リストはこの構造体経由で各コンポーネントに
// 参照渡しされ、グローバル状態としては持たない。
type Config struct {
	// Database
	DatabaseURL string

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// 許可リスト
	AdminEmail    string   // 正規化済み
	AllowedEmails []string // 正規化済み（AdminEmailは含まない）

	// OTP
	OTPTTL    time.Duration
	OTPLength int

	// SMTP
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Janitor
	CleanupInterval time.Duration

	// Rate Limit
	RateLimitGeneral int // API全般（req/min/user）
	RateLimitOTP     int // OTPリクエスト（req/min/address）

	// Media
	FavoritesLimit int

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

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.AdminEmail = normalizeEmail(os.Getenv("ADMIN_EMAIL"))
	if cfg.AdminEmail == "" {
		missing = append(missing, "ADMIN_EMAIL")
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPHost == "" {
		missing = append(missing, "SMTP_HOST")
	}

	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	if cfg.SMTPFrom == "" {
		missing = append(missing, "SMTP_FROM")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.JWTExpiresIn = getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour)
	cfg.AllowedEmails = parseEmailList(os.Getenv("ALLOWED_EMAILS"))
	cfg.OTPTTL = getEnvDuration("OTP_TTL", 10*time.Minute)
	cfg.OTPLength = getEnvInt("OTP_LENGTH", 6)
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = getEnvString("SMTP_USER", "")
	cfg.SMTPPass = getEnvString("SMTP_PASS", "")
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 1*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitOTP = getEnvInt("RATE_LIMIT_OTP", 5)
	cfg.FavoritesLimit = getEnvInt("FAVORITES_LIMIT", 100)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// parseEmailList はカンマ区切りのメールアドレスリストを正規化して返す。
// 空要素は除外する。
func parseEmailList(raw string) []string {
	if raw == "" {
		return nil
	}
	var emails []string
	for _, e := range strings.Split(raw, ",") {
		normalized := normalizeEmail(e)
		if normalized != "" {
			emails = append(emails, normalized)
		}
	}
	return emails
}

// normalizeEmail はメールアドレスを小文字化し前後の空白を除去する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
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
