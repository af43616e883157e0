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

	// Auth
	JWTSecret string
	JWTExpiry time.Duration

	// OAuth（未設定の場合Googleサインインは無効）
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Payment provider
	PayTRMerchantID     string
	PayTRMerchantKey    string
	PayTRMerchantSalt   string
	PayTRTestMode       bool
	PayTRTokenURL       string
	PayTRRefundURL      string
	PayTRTimeout        time.Duration
	PayTRCurrency       string
	PayTRMaxInstallment int
	PayTRNoInstallment  bool
	PaymentExpiry       time.Duration

	// Shipping provider
	ShippingAPIURL  string
	ShippingAPIKey  string
	ShippingTimeout time.Duration

	// Returns
	ReturnWindowDays  int
	ReturnAddress     string
	ImageProbeTimeout time.Duration

	// Verification codes
	VerificationCodeTTL time.Duration

	// Mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	// Storage
	S3Region string
	S3Bucket string

	// Worker
	CleanupInterval time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitPayment int

	// Server
	ServerPort string
	BaseURL    string

	// CORS（カンマ区切りで複数指定可）
	CORSAllowedOrigin string
}

// MailEnabled はSMTP送信が設定されているかを返す。
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.MailFrom != ""
}

// StorageEnabled はS3アップロードが設定されているかを返す。
func (c *Config) StorageEnabled() bool {
	return c.S3Region != "" && c.S3Bucket != ""
}

// GoogleEnabled はGoogleサインインが設定されているかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// ShippingEnabled は配送プロバイダー連携が設定されているかを返す。
func (c *Config) ShippingEnabled() bool {
	return c.ShippingAPIURL != ""
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合は不足しているキーをすべて列挙したエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.JWTSecret = required("JWT_SECRET")
	cfg.PayTRMerchantID = required("PAYTR_MERCHANT_ID")
	cfg.PayTRMerchantKey = required("PAYTR_MERCHANT_KEY")
	cfg.PayTRMerchantSalt = required("PAYTR_MERCHANT_SALT")
	cfg.BaseURL = required("BASE_URL")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.JWTExpiry = getEnvDuration("JWT_EXPIRY", 720*time.Hour)
	cfg.GoogleClientID = getEnvString("GOOGLE_CLIENT_ID", "")
	cfg.GoogleClientSecret = getEnvString("GOOGLE_CLIENT_SECRET", "")
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", "")
	cfg.PayTRTestMode = getEnvBool("PAYTR_TEST_MODE", true)
	cfg.PayTRTokenURL = getEnvString("PAYTR_TOKEN_URL", "https://www.paytr.com/odeme/api/get-token")
	cfg.PayTRRefundURL = getEnvString("PAYTR_REFUND_URL", "https://www.paytr.com/odeme/iade")
	cfg.PayTRTimeout = getEnvDuration("PAYTR_TIMEOUT", 10*time.Second)
	cfg.PayTRCurrency = getEnvString("PAYTR_CURRENCY", "TL")
	cfg.PayTRMaxInstallment = getEnvInt("PAYTR_MAX_INSTALLMENT", 0)
	cfg.PayTRNoInstallment = getEnvBool("PAYTR_NO_INSTALLMENT", false)
	cfg.PaymentExpiry = getEnvDuration("PAYMENT_EXPIRY", 2*time.Hour)
	cfg.ShippingAPIURL = strings.TrimRight(getEnvString("SHIPPING_API_URL", ""), "/")
	cfg.ShippingAPIKey = getEnvString("SHIPPING_API_KEY", "")
	cfg.ShippingTimeout = getEnvDuration("SHIPPING_TIMEOUT", 10*time.Second)
	cfg.ReturnWindowDays = getEnvInt("RETURN_WINDOW_DAYS", 14)
	cfg.ReturnAddress = getEnvString("RETURN_ADDRESS", "Bijou İade Merkezi, Atatürk Cad. No:1, Kadıköy, İstanbul 34710, Türkiye")
	cfg.ImageProbeTimeout = getEnvDuration("IMAGE_PROBE_TIMEOUT", 5*time.Second)
	cfg.VerificationCodeTTL = getEnvDuration("VERIFICATION_CODE_TTL", 10*time.Minute)
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.MailFrom = getEnvString("MAIL_FROM", "")
	cfg.S3Region = getEnvString("S3_REGION", "")
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 15*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPayment = getEnvInt("RATE_LIMIT_PAYMENT", 10)
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
