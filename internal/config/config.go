// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Notion
	NotionAPIKey            string
	NotionVersion           string
	NotionPostDatabaseID    string
	NotionProjectDatabaseID string

	// Sync
	RequestTimeout  time.Duration
	SyncInterval    time.Duration
	EnableScheduler bool

	// Cover
	CoverMaxBytes     int64 // ダウンロードの打ち切り上限（ハード）
	CoverSoftMaxBytes int64 // これ以下なら再エンコードせず素通しする（ソフト）
	CoverMaxDimension int   // 長辺の最大ピクセル数
	CoverJPEGQuality  int

	// Object storage
	S3Bucket        string
	S3Prefix        string
	S3Region        string
	S3Endpoint      string
	S3PublicBaseURL string
	S3AccessKey     string
	S3SecretKey     string

	// Revalidation
	RevalidateURL    string
	RevalidateSecret string

	// Server
	ServerPort        string
	StaticDir         string
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（存在しなくてもエラーにしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.NotionAPIKey = os.Getenv("NOTION_API_KEY")
	if cfg.NotionAPIKey == "" {
		missing = append(missing, "NOTION_API_KEY")
	}

	cfg.NotionPostDatabaseID = os.Getenv("NOTION_POST_DATABASE_ID")
	if cfg.NotionPostDatabaseID == "" {
		missing = append(missing, "NOTION_POST_DATABASE_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.NotionVersion = getEnvString("NOTION_VERSION", "2022-06-28")
	cfg.NotionProjectDatabaseID = os.Getenv("NOTION_PROJECT_DATABASE_ID")

	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 15*time.Second)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", time.Hour)
	cfg.EnableScheduler = getEnvString("ENABLE_SCHEDULER", "1") == "1"

	cfg.CoverMaxBytes = getEnvInt64("COVER_MAX_BYTES", 10*1024*1024)
	cfg.CoverSoftMaxBytes = getEnvInt64("COVER_SOFT_MAX_BYTES", 2*1024*1024)
	cfg.CoverMaxDimension = getEnvInt("COVER_MAX_DIMENSION", 1600)
	cfg.CoverJPEGQuality = getEnvInt("COVER_JPEG_QUALITY", 80)

	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	cfg.S3Prefix = getEnvString("S3_PREFIX", "covers")
	cfg.S3Region = getEnvString("S3_REGION", "ap-northeast-1")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3PublicBaseURL = os.Getenv("S3_PUBLIC_BASE_URL")
	cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.S3SecretKey = os.Getenv("S3_SECRET_KEY")

	cfg.RevalidateURL = os.Getenv("REVALIDATE_URL")
	cfg.RevalidateSecret = os.Getenv("REVALIDATE_SECRET")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.StaticDir = getEnvString("STATIC_DIR", "static")
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
