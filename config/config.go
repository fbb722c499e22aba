package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// JWT
	JWTSecret string

	// CORS (comma-separated origins)
	AllowedOrigins string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// OAuth - Microsoft
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftRedirectURL  string
	MicrosoftTenantID     string

	// Classifier service
	ClassifierURL         string
	ClassifierTimeoutSec  int
	ClassifierMaxAttempts int
	ClassifierBackoff     time.Duration

	// OpenAI (fallback classifier)
	OpenAIAPIKey  string
	LLMModel      string
	LLMTimeoutSec int

	// Sync
	SyncPageLimit      int
	SyncIntervalMin    int
	SyncLeaseTTL       time.Duration
	BodyArchiveTTLDays int

	// Content store
	ContentStoreDir string

	// Worker
	WorkerID string

	// Consumer (Redis Stream)
	ConsumerBatchSize int
	ConsumerBlockMS   int
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "mailsync"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// CORS
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// OAuth - Microsoft
		MicrosoftClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
		MicrosoftClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		MicrosoftRedirectURL:  getEnv("MICROSOFT_REDIRECT_URL", ""),
		MicrosoftTenantID:     getEnv("MICROSOFT_TENANT_ID", "common"),

		// Classifier
		ClassifierURL:         getEnv("CLASSIFIER_URL", ""),
		ClassifierTimeoutSec:  getEnvInt("CLASSIFIER_TIMEOUT_SEC", 20),
		ClassifierMaxAttempts: getEnvInt("CLASSIFIER_MAX_ATTEMPTS", 3),
		ClassifierBackoff:     time.Duration(getEnvInt("CLASSIFIER_BACKOFF_SEC", 2)) * time.Second,

		// OpenAI
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSec: getEnvInt("LLM_TIMEOUT_SEC", 60),

		// Sync
		SyncPageLimit:      getEnvInt("SYNC_PAGE_LIMIT", 100),
		SyncIntervalMin:    getEnvInt("SYNC_INTERVAL_MIN", 15),
		SyncLeaseTTL:       time.Duration(getEnvInt("SYNC_LEASE_TTL_SEC", 300)) * time.Second,
		BodyArchiveTTLDays: getEnvInt("BODY_ARCHIVE_TTL_DAYS", 30),

		// Content store
		ContentStoreDir: getEnv("CONTENT_STORE_DIR", "./data/attachments"),

		// Worker
		WorkerID: getEnv("WORKER_ID", generateWorkerID()),

		// Consumer
		ConsumerBatchSize: getEnvInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlockMS:   getEnvInt("CONSUMER_BLOCK_MS", 5000),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
