// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvDevelopment は開発モードを表す。鍵が未設定でも一時的な鍵で起動できる。
	EnvDevelopment = "development"
	// EnvProduction は本番モードを表す。
	EnvProduction = "production"

	// KeyProviderEnv は環境変数から平文のマスター鍵を読み込む。
	KeyProviderEnv = "env"
	// KeyProviderKMS は環境変数のCloud KMS暗号文を復号してマスター鍵を得る。
	KeyProviderKMS = "kms"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port        string
	AppEnv      string
	DatabaseURL string
	LogLevel    string

	// 鍵の取得元
	KeyProvider    string
	KMSKeyName     string
	RequiredKeyIDs []string

	// 暗号パラメータ
	CipherAlgorithm string
	ScryptN         int
	ScryptR         int
	ScryptP         int
	KeyValidity     time.Duration

	// 鍵の有効期限切れ処理
	ExpirySweepInterval time.Duration

	// 暗号APIの流量制御
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxConcurrentKDF int

	// OpenTelemetry
	GoogleCloudProject string
	OtelEnabled        bool
	OtelEndpoint       string
	OtelServiceName    string
	OtelSamplingRate   float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		AppEnv:      getEnv("APP_ENV", EnvProduction),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),

		KeyProvider:    getEnv("KEY_PROVIDER", KeyProviderEnv),
		KMSKeyName:     os.Getenv("KMS_KEY_NAME"),
		RequiredKeyIDs: splitList(getEnv("REQUIRED_KEY_IDS", "default")),

		CipherAlgorithm: getEnv("CIPHER_ALGORITHM", "aes-256-gcm"),
		ScryptN:         getEnvInt("SCRYPT_N", 16384),
		ScryptR:         getEnvInt("SCRYPT_R", 8),
		ScryptP:         getEnvInt("SCRYPT_P", 1),
		KeyValidity:     time.Duration(getEnvInt("KEY_VALIDITY_DAYS", 365)) * 24 * time.Hour,

		ExpirySweepInterval: getEnvDuration("EXPIRY_SWEEP_INTERVAL", time.Hour),

		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 100),
		MaxConcurrentKDF: getEnvInt("MAX_CONCURRENT_KDF", 8),

		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		OtelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "crypto-service"),
		OtelSamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

// IsDevelopment は開発モードかどうかを返す。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	if c.AppEnv != EnvDevelopment && c.AppEnv != EnvProduction {
		return fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.AppEnv)
	}
	switch c.KeyProvider {
	case KeyProviderEnv:
	case KeyProviderKMS:
		if c.KMSKeyName == "" {
			return fmt.Errorf("KMS_KEY_NAME is required when KEY_PROVIDER=kms")
		}
	default:
		return fmt.Errorf("unknown KEY_PROVIDER %q", c.KeyProvider)
	}
	// scryptのNは1より大きい2の冪
	if c.ScryptN <= 1 || c.ScryptN&(c.ScryptN-1) != 0 {
		return fmt.Errorf("SCRYPT_N must be a power of two greater than 1, got %d", c.ScryptN)
	}
	if c.ScryptR <= 0 || c.ScryptP <= 0 {
		return fmt.Errorf("SCRYPT_R and SCRYPT_P must be positive")
	}
	if c.KeyValidity <= 0 {
		return fmt.Errorf("KEY_VALIDITY_DAYS must be positive")
	}
	if c.ExpirySweepInterval <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be positive, got %s", c.ExpirySweepInterval)
	}
	// 0では暗号APIへのリクエストがすべて拒否される
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.MaxConcurrentKDF <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_KDF must be positive")
	}
	if c.OtelSamplingRate < 0 || c.OtelSamplingRate > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATE must be between 0 and 1")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
