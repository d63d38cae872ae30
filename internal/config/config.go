// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// IdP
	IdPBaseURL string

	// クライアントシークレットレジストリ
	ClientSecrets map[string]string // CLIENT_SECRETS（JSONオブジェクト）から読み込む
	DatabaseURL   string            // 設定されている場合はPostgresレジストリを使用する

	// オブジェクトストレージ
	StorageBucket          string // 未設定の場合ストレージゲートウェイは無効
	StorageEndpoint        string
	StorageRegion          string
	StorageAccessKeyID     string
	StorageSecretAccessKey string

	// Rate Limit
	RateLimitStorage int // ストレージルートのクライアントごとのreq/min

	// Server
	ServerPort      string
	ShutdownTimeout time.Duration
}

// Load は環境変数からConfigを読み込む。
// クライアントシークレットの供給元（CLIENT_SECRETSまたはDATABASE_URL）が
// どちらも未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.IdPBaseURL = getEnvString("IDP_BASE_URL", "https://id.twitch.tv")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if raw := os.Getenv("CLIENT_SECRETS"); raw != "" {
		secrets := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &secrets); err != nil {
			return nil, fmt.Errorf("failed to parse CLIENT_SECRETS: %w", err)
		}
		cfg.ClientSecrets = secrets
	}

	if len(cfg.ClientSecrets) == 0 && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("client secret source is not configured: set CLIENT_SECRETS or DATABASE_URL")
	}

	cfg.StorageBucket = os.Getenv("STORAGE_BUCKET")
	cfg.StorageEndpoint = os.Getenv("STORAGE_ENDPOINT")
	cfg.StorageRegion = getEnvString("STORAGE_REGION", "auto")
	cfg.StorageAccessKeyID = os.Getenv("STORAGE_ACCESS_KEY_ID")
	cfg.StorageSecretAccessKey = os.Getenv("STORAGE_SECRET_ACCESS_KEY")

	cfg.RateLimitStorage = getEnvInt("RATE_LIMIT_STORAGE", 300)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)

	return cfg, nil
}

// StorageEnabled はストレージゲートウェイが有効かどうかを返す。
func (c *Config) StorageEnabled() bool {
	return c.StorageBucket != ""
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
