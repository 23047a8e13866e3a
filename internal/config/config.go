// Package config はアプリケーション全体の設定を提供する。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	APIBaseURL string // REST APIのベースURL
	WSBaseURL  string // プッシュチャネルのベースURL

	// Client core
	TokenFile        string        // 永続化トークンのファイルパス
	HTTPTimeout      time.Duration // RESTリクエストのタイムアウト
	PollInterval     time.Duration // 通知ポーリング間隔
	ReconnectDelay   time.Duration // チャネル再接続の固定遅延
	FeedLimit        int           // 通知フィードの取得件数
	TranscriptLimit  int           // トランスクリプトの取得件数

	// Dev server
	ServerPort        string
	JWTSecret         string
	TokenTTL          time.Duration
	CORSAllowedOrigin string
	RateLimitGeneral  int // API全般のレート（req/min/user）
	RateLimitSend     int // メッセージ送信のレート（req/min/user）

	// Watch mode credentials
	Email    string
	Password string
}

// Load は環境変数からConfigを読み込む。
// クライアントコアの設定はすべてローカル開発向けのデフォルトを持つ。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = getEnvString("CARELINK_API_BASE_URL", "http://localhost:8080")
	cfg.WSBaseURL = getEnvString("CARELINK_WS_BASE_URL", "ws://localhost:8080")

	cfg.TokenFile = getEnvString("CARELINK_TOKEN_FILE", defaultTokenFile())
	cfg.HTTPTimeout = getEnvDuration("CARELINK_HTTP_TIMEOUT", 15*time.Second)
	cfg.PollInterval = getEnvDuration("CARELINK_POLL_INTERVAL", 30*time.Second)
	cfg.ReconnectDelay = getEnvDuration("CARELINK_RECONNECT_DELAY", 3*time.Second)
	cfg.FeedLimit = getEnvInt("CARELINK_FEED_LIMIT", 20)
	cfg.TranscriptLimit = getEnvInt("CARELINK_TRANSCRIPT_LIMIT", 50)

	cfg.ServerPort = getEnvString("CARELINK_SERVER_PORT", "8080")
	cfg.JWTSecret = os.Getenv("CARELINK_JWT_SECRET")
	cfg.TokenTTL = getEnvDuration("CARELINK_TOKEN_TTL", 24*time.Hour)
	cfg.CORSAllowedOrigin = getEnvString("CARELINK_CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitGeneral = getEnvInt("CARELINK_RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSend = getEnvInt("CARELINK_RATE_LIMIT_SEND", 30)

	cfg.Email = os.Getenv("CARELINK_EMAIL")
	cfg.Password = os.Getenv("CARELINK_PASSWORD")

	return cfg, nil
}

// ValidateServe は開発サーバーモードに必要な設定を検証する。
func (c *Config) ValidateServe() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("required environment variables are not set: [CARELINK_JWT_SECRET]")
	}
	return nil
}

// ValidateWatch はウォッチモードに必要な設定を検証する。
// 永続化トークンが存在する場合は資格情報なしでも起動できるため、
// ここではベースURLのみを検証する。
func (c *Config) ValidateWatch() error {
	var missing []string
	if c.APIBaseURL == "" {
		missing = append(missing, "CARELINK_API_BASE_URL")
	}
	if c.WSBaseURL == "" {
		missing = append(missing, "CARELINK_WS_BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return nil
}

// defaultTokenFile は永続化トークンのデフォルトパスを返す。
// ホームディレクトリが特定できない場合はカレントディレクトリ配下にフォールバックする。
func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".carelink/token"
	}
	return filepath.Join(home, ".carelink", "token")
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
