package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ForsakenReleaseDate はトラッキング開始日の既定値。
// これ以前のセッションは集計対象外とする。
var ForsakenReleaseDate = time.Date(2018, 9, 4, 17, 0, 0, 0, time.UTC)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Bungie API
	BungieAPIKey  string
	BungieBaseURL string

	// OAuth
	BungieClientID     string
	BungieClientSecret string
	BungieRedirectURL  string

	// Scan
	ScanInterval      time.Duration
	ScanMaxConcurrent int
	ScanPageSize      int
	TrackingSince     time.Time

	// Eligibility
	EligibilityThreshold float64

	// API Rate Limit
	BungieRequestsPerSecond int
	RateLimitGeneral        int

	// Cleanup
	GameRetentionDays int

	// Emblem
	EmblemTimeout time.Duration
	EmblemMaxSize int64

	// Server
	ServerPort string
	BaseURL    string

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

	cfg.BungieAPIKey = os.Getenv("BUNGIE_API_KEY")
	if cfg.BungieAPIKey == "" {
		missing = append(missing, "BUNGIE_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.BungieBaseURL = getEnvString("BUNGIE_BASE_URL", "https://www.bungie.net/Platform")
	cfg.BungieClientID = getEnvString("BUNGIE_CLIENT_ID", "")
	cfg.BungieClientSecret = getEnvString("BUNGIE_CLIENT_SECRET", "")
	cfg.BungieRedirectURL = getEnvString("BUNGIE_REDIRECT_URL", "")
	cfg.ScanInterval = getEnvDuration("SCAN_INTERVAL", 30*time.Minute)
	cfg.ScanMaxConcurrent = getEnvInt("SCAN_MAX_CONCURRENT", 5)
	cfg.ScanPageSize = getEnvInt("SCAN_PAGE_SIZE", 250)
	cfg.TrackingSince = getEnvTime("TRACKING_SINCE", ForsakenReleaseDate)
	cfg.EligibilityThreshold = getEnvFloat("ELIGIBILITY_THRESHOLD", 0.5)
	cfg.BungieRequestsPerSecond = getEnvInt("BUNGIE_REQUESTS_PER_SECOND", 20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.GameRetentionDays = getEnvInt("GAME_RETENTION_DAYS", 0)
	cfg.EmblemTimeout = getEnvDuration("EMBLEM_TIMEOUT", 10*time.Second)
	cfg.EmblemMaxSize = getEnvInt64("EMBLEM_MAX_SIZE", 1048576)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
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

func getEnvTime(key string, defaultVal time.Time) time.Time {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return defaultVal
	}
	return t
}
