package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // 指定があればDSNより優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート
	PostgresSSLMode  string

	JWTSecret    string // JWT署名シークレット
	JWTAlgorithm string // HS256のみ対応

	AccessTokenTTL  time.Duration // アクセストークンの有効期限
	RefreshTokenTTL time.Duration // リフレッシュトークンの有効期限

	LoginMaxAttempts int           // ログイン試行の上限
	LoginWindow      time.Duration // ログイン試行のウィンドウ

	RateLimitDefault int // デフォルトのリクエスト上限
	RateLimitWindow  int // デフォルトのウィンドウ（秒）
	AuthRateLimit    int // /api/auth配下の上限
	AuthRateWindow   int // /api/auth配下のウィンドウ（秒）

	TrustProxyHeaders bool // プロキシ系ヘッダのクライアントIPを信用するか
}

// Loadは環境変数から設定を組み立てる
func Load() (Config, error) {
	cfg := Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     getenv("POSTGRES_USER", "postgres"),
		PostgresPassword: getenv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getenv("POSTGRES_DB", "app"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getenvInt("POSTGRES_PORT", 5432),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTAlgorithm: getenv("JWT_ALGORITHM", "HS256"),

		AccessTokenTTL:  time.Duration(getenvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		RefreshTokenTTL: time.Duration(getenvInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,

		LoginMaxAttempts: getenvInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindow:      time.Duration(getenvInt("LOGIN_WINDOW_SECONDS", 300)) * time.Second,

		RateLimitDefault: getenvInt("RATE_LIMIT_DEFAULT", 120),
		RateLimitWindow:  getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		AuthRateLimit:    getenvInt("AUTH_RATE_LIMIT", 30),
		AuthRateWindow:   getenvInt("AUTH_RATE_WINDOW_SECONDS", 60),

		TrustProxyHeaders: getenvBool("TRUST_PROXY_HEADERS", true),
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	//署名アルゴリズムはHS256だけを受け付ける
	if cfg.JWTAlgorithm != "HS256" {
		return Config{}, fmt.Errorf("JWT_ALGORITHM must be HS256, got %q", cfg.JWTAlgorithm)
	}

	return cfg, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True":
		return true
	case "0", "false", "FALSE", "False":
		return false
	default:
		return def
	}
}
