// Package config は環境変数からのアプリケーション設定読み込みを提供する。
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

	// 上流API認証
	SpotifyClientID     string
	SpotifyClientSecret string

	// API認証
	APIToken string

	// スキャン
	WeekStart         time.Weekday
	ScanMaxConcurrent int
	RadarInterval     time.Duration
	WrappedInterval   time.Duration
	BackfillInterval  time.Duration
	BackfillWeeks     int

	// 上流HTTP
	HTTPTimeout   time.Duration
	OutboundRate  float64 // 上流API送信ペーシング（req/sec）
	OutboundBurst int

	// Rate Limit
	RateLimitGeneral  int
	RateLimitScanTrig int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// ローカル実行用。ファイルがなければ何もしない。
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SpotifyClientID = os.Getenv("SPOTIFY_CLIENT_ID")
	if cfg.SpotifyClientID == "" {
		missing = append(missing, "SPOTIFY_CLIENT_ID")
	}

	cfg.SpotifyClientSecret = os.Getenv("SPOTIFY_CLIENT_SECRET")
	if cfg.SpotifyClientSecret == "" {
		missing = append(missing, "SPOTIFY_CLIENT_SECRET")
	}

	cfg.APIToken = os.Getenv("API_TOKEN")
	if cfg.APIToken == "" {
		missing = append(missing, "API_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// 週の開始曜日。履歴の週キーが混在しないよう、不正値はエラーにする。
	weekStart, err := parseWeekday(getEnvString("WEEK_START", "saturday"))
	if err != nil {
		return nil, err
	}
	cfg.WeekStart = weekStart

	// Optional fields with defaults
	cfg.ScanMaxConcurrent = getEnvInt("SCAN_MAX_CONCURRENT", 10)
	cfg.RadarInterval = getEnvDuration("RADAR_INTERVAL", 12*time.Hour)
	cfg.WrappedInterval = getEnvDuration("WRAPPED_INTERVAL", 24*time.Hour)
	cfg.BackfillInterval = getEnvDuration("BACKFILL_INTERVAL", 24*time.Hour)
	cfg.BackfillWeeks = getEnvInt("BACKFILL_WEEKS", 4)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 30*time.Second)
	cfg.OutboundRate = getEnvFloat("OUTBOUND_RATE", 10)
	cfg.OutboundBurst = getEnvInt("OUTBOUND_BURST", 5)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitScanTrig = getEnvInt("RATE_LIMIT_SCAN_TRIG", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// parseWeekday は曜日名をtime.Weekdayに変換する。
func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("WEEK_STARTの値が不正です: %s", s)
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
