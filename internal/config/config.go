package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Kiosk端末認証
	KioskAPIKey string

	// 顔認証サービス
	FaceAPIURL         string
	FaceAPIKey         string
	FaceMatchThreshold float64
	FaceTimeout        time.Duration
	FaceSampleMaxBytes int64

	// ジオフェンス
	LocationsFile           string
	LocationRefreshInterval time.Duration

	// スタッフ名簿
	StaffCacheTTL time.Duration

	// 勤怠（日付の切り捨てに使うタイムゾーン）
	Timezone *time.Location

	// Rate Limit
	RateLimitGeneral int
	RateLimitSubmit  int

	// Worker
	EnrollSyncInterval      time.Duration
	EnrollSyncBatchSize     int
	EnrollSyncMaxConcurrent int
	LedgerAuditInterval     time.Duration
	CleanupInterval         time.Duration
	AttemptRetention        time.Duration

	// Server
	ServerPort string

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

	cfg.KioskAPIKey = os.Getenv("KIOSK_API_KEY")
	if cfg.KioskAPIKey == "" {
		missing = append(missing, "KIOSK_API_KEY")
	}

	cfg.FaceAPIURL = os.Getenv("FACE_API_URL")
	if cfg.FaceAPIURL == "" {
		missing = append(missing, "FACE_API_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// 日付の切り捨てに使うタイムゾーン。クライアントとサーバーの時計ずれで
	// 日付がまたがらないよう、全判定で同一のゾーンを使う。
	tzName := getEnvString("TIMEZONE", "Local")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tzName, err)
	}
	cfg.Timezone = tz

	// 顔認証の採用しきい値。コード中のリテラルではなく必ずここを参照する。
	cfg.FaceMatchThreshold = getEnvFloat("FACE_MATCH_THRESHOLD", 0.7)
	if cfg.FaceMatchThreshold <= 0 || cfg.FaceMatchThreshold > 1 {
		return nil, fmt.Errorf("FACE_MATCH_THRESHOLD must be in (0, 1]: %v", cfg.FaceMatchThreshold)
	}

	// Optional fields with defaults
	cfg.FaceAPIKey = getEnvString("FACE_API_KEY", "")
	cfg.FaceTimeout = getEnvDuration("FACE_TIMEOUT", 5*time.Second)
	cfg.FaceSampleMaxBytes = getEnvInt64("FACE_SAMPLE_MAX_BYTES", 8388608)
	cfg.LocationsFile = getEnvString("LOCATIONS_FILE", "config/locations.yaml")
	cfg.LocationRefreshInterval = getEnvDuration("LOCATION_REFRESH_INTERVAL", 5*time.Minute)
	cfg.StaffCacheTTL = getEnvDuration("STAFF_CACHE_TTL", 5*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSubmit = getEnvInt("RATE_LIMIT_SUBMIT", 30)
	cfg.EnrollSyncInterval = getEnvDuration("ENROLL_SYNC_INTERVAL", time.Hour)
	cfg.EnrollSyncBatchSize = getEnvInt("ENROLL_SYNC_BATCH_SIZE", 50)
	cfg.EnrollSyncMaxConcurrent = getEnvInt("ENROLL_SYNC_MAX_CONCURRENT", 4)
	cfg.LedgerAuditInterval = getEnvDuration("LEDGER_AUDIT_INTERVAL", 6*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.AttemptRetention = getEnvDuration("ATTEMPT_RETENTION", 2160*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
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
