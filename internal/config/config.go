package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the typed view of the process environment.
type Config struct {
	Env        string
	Port       string
	CORSOrigin string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Gateway  GatewayConfig
	Wallet   WalletConfig

	JWTSecret string
	// ServiceKey authenticates internal callers such as the order service.
	// Empty disables the internal routes.
	ServiceKey        string
	ReconcileInterval time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled reports whether a redis host was configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type GatewayConfig struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	Timeout     time.Duration
	StripeKey   string
}

type WalletConfig struct {
	DefaultCurrency   string
	ReferralPoints    int64
	PointValue        string
	MaxVerifyAttempts int
	HistoryLimit      int
	MaxTopUpAmount    string
}

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// Load reads the environment into a Config, falling back to development defaults.
func Load() Config {
	return Config{
		Env:        GetEnv("ENV", "development"),
		Port:       GetEnv("PORT", "3000"),
		CORSOrigin: GetEnv("CORS_ORIGIN", "http://localhost:5173"),
		Database: DatabaseConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "scoutpay"),
			SSLMode:         GetEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", ""),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(GetEnv("KAFKA_BROKERS", "")),
			Topic:   GetEnv("KAFKA_WALLET_TOPIC", "wallet.events"),
		},
		Gateway: GatewayConfig{
			BaseURL:     GetEnv("GATEWAY_BASE_URL", "https://api.paystack.co"),
			SecretKey:   GetEnv("GATEWAY_SECRET_KEY", ""),
			CallbackURL: GetEnv("GATEWAY_CALLBACK_URL", ""),
			Timeout:     GetDurationEnv("GATEWAY_TIMEOUT", 30*time.Second),
			StripeKey:   GetEnv("STRIPE_SECRET_KEY", ""),
		},
		Wallet: WalletConfig{
			DefaultCurrency:   GetEnv("WALLET_CURRENCY", "NGN"),
			ReferralPoints:    int64(GetIntEnv("REFERRAL_POINTS", 50)),
			PointValue:        GetEnv("REFERRAL_POINT_VALUE", "1"),
			MaxVerifyAttempts: GetIntEnv("GATEWAY_VERIFY_ATTEMPTS", 5),
			HistoryLimit:      GetIntEnv("WALLET_HISTORY_LIMIT", 50),
			MaxTopUpAmount:    GetEnv("WALLET_MAX_TOPUP", "10000000"),
		},
		JWTSecret:         GetEnv("JWT_SECRET", "scoutpay"),
		ServiceKey:        GetEnv("SERVICE_API_KEY", ""),
		ReconcileInterval: GetDurationEnv("RECONCILE_INTERVAL", 5*time.Minute),
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetDurationEnv returns a duration environment variable or a default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
