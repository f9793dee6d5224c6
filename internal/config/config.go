package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Engine   EngineConfig
	Notify   NotifyConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	UseLock        bool
	LockTTLSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines channel authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	ChannelID             string
	ChannelSecret         string
	ChannelSecretHash     string
	BcryptCost            int
}

// EngineConfig tunes the flow engine and names its data files.
type EngineConfig struct {
	FAQThreshold    float64
	IntentThreshold float64
	IntentsPath     string
	KnowledgeBase   string
	CatalogPath     string
	CompliancePath  string
	TemplatesDir    string
}

// NotifyConfig holds escalation notification endpoints.
type NotifyConfig struct {
	WebhookURL     string
	TimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults
// where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	faqThreshold, err := strconv.ParseFloat(getEnv("ENGINE_FAQ_THRESHOLD", "0.60"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ENGINE_FAQ_THRESHOLD: %w", err)
	}
	intentThreshold, err := strconv.ParseFloat(getEnv("ENGINE_INTENT_THRESHOLD", "0.25"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ENGINE_INTENT_THRESHOLD: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-flow-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             redisDB,
			UseLock:        getEnvAsBool("REDIS_USE_LOCK", false),
			LockTTLSeconds: getEnvAsInt("REDIS_LOCK_TTL_SECONDS", 30),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			ChannelID:             getEnv("AUTH_CHANNEL_ID", "email-gateway"),
			ChannelSecret:         os.Getenv("AUTH_CHANNEL_SECRET"),
			ChannelSecretHash:     os.Getenv("AUTH_CHANNEL_SECRET_HASH"),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Engine: EngineConfig{
			FAQThreshold:    faqThreshold,
			IntentThreshold: intentThreshold,
			IntentsPath:     getEnv("ENGINE_INTENTS_PATH", "config/intents.json"),
			KnowledgeBase:   getEnv("ENGINE_KNOWLEDGE_BASE_PATH", "config/knowledge_base.json"),
			CatalogPath:     getEnv("ENGINE_CATALOG_PATH", "config/catalog.json"),
			CompliancePath:  getEnv("ENGINE_COMPLIANCE_PATH", "config/compliance.json"),
			TemplatesDir:    getEnv("ENGINE_TEMPLATES_DIR", "templates"),
		},
		Notify: NotifyConfig{
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 5),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LockTTL returns the Redis lease duration for conversation locks.
func (r RedisConfig) LockTTL() time.Duration {
	if r.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.LockTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
