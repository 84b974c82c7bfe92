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
type Config struct {
	// Database
	DatabaseURL string

	// Remote Store
	RemoteStoreURL     string
	RemoteStoreAPIKey  string
	RemoteTimeout      time.Duration
	RemoteRateLimit    float64 // req/sec
	RemoteRateBurst    int
	RemoteMaxRetryHint int

	// Identity Provider
	GoogleClientID string

	// Session
	SessionMaxAge int

	// Sync
	SyncInterval      time.Duration
	SyncMaxConcurrent int

	// Reminder
	ReminderInterval time.Duration

	// Tombstone
	TombstoneRetentionDays int

	// Rate Limit
	RateLimitGeneral int
	RateLimitSync    int

	// Logging
	LogFile string

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

	cfg.RemoteStoreURL = os.Getenv("REMOTE_STORE_URL")
	if cfg.RemoteStoreURL == "" {
		missing = append(missing, "REMOTE_STORE_URL")
	}

	cfg.RemoteStoreAPIKey = os.Getenv("REMOTE_STORE_API_KEY")
	if cfg.RemoteStoreAPIKey == "" {
		missing = append(missing, "REMOTE_STORE_API_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RemoteTimeout = getEnvDuration("REMOTE_TIMEOUT", 10*time.Second)
	cfg.RemoteRateLimit = getEnvFloat("REMOTE_RATE_LIMIT", 20)
	cfg.RemoteRateBurst = getEnvInt("REMOTE_RATE_BURST", 40)
	cfg.RemoteMaxRetryHint = getEnvInt("REMOTE_MAX_RETRY_HINT", 5)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 15*time.Minute)
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 10)
	cfg.ReminderInterval = getEnvDuration("REMINDER_INTERVAL", time.Minute)
	cfg.TombstoneRetentionDays = getEnvInt("TOMBSTONE_RETENTION_DAYS", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSync = getEnvInt("RATE_LIMIT_SYNC", 10)
	cfg.LogFile = getEnvString("LOG_FILE", "")
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
