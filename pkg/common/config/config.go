package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresMaxConns int

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers        []string
	KafkaGroupID        string
	KafkaJobsTopic      string
	KafkaProcessedTopic string
	KafkaDLQTopic       string

	// Clinical transcript provider
	ScribeURL     string
	ScribeTimeout time.Duration

	// Lab report provider
	LabAPIKey          string
	LabBaseURL         string
	LabTimeout         time.Duration
	LabPollInterval    time.Duration
	LabMaxPollAttempts int
	LabRulesPath       string

	// AI fallback providers
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string
	GeminiAPIKey       string
	GeminiBaseURL      string
	GeminiModel        string
	AITimeout          time.Duration
	AIFallbackProvider string

	// Circuit breaker
	BreakerMaxRequests      int
	BreakerInterval         time.Duration
	BreakerOpenTimeout      time.Duration
	BreakerFailureThreshold int

	// Processing
	DefaultHospital   string
	DefaultLocation   string
	AsyncProcessing   bool
	ResultCacheTTL    time.Duration
	TerminologyPath   string
	DLPRulesPath      string
	DocumentRetention time.Duration
	JobMaxAttempts    int
	PublishAttempts   int
	PublishBackoff    time.Duration
}

var dotenvOnce sync.Once

func Load() *Config {
	dotenvOnce.Do(func() {
		// a missing .env is the normal case outside local development
		_ = godotenv.Load()
	})

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 5*time.Minute),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 20*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "healthbridge"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "healthbridge"),
		PostgresDB:       getEnv("POSTGRES_DB", "healthbridge"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresMaxConns: getIntEnv("POSTGRES_MAX_CONNS", 20),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:        getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "healthbridge-processing"),
		KafkaJobsTopic:      getEnv("KAFKA_JOBS_TOPIC", "document-processing-jobs"),
		KafkaProcessedTopic: getEnv("KAFKA_PROCESSED_TOPIC", "document-processed-events"),
		KafkaDLQTopic:       getEnv("KAFKA_DLQ_TOPIC", "document-processing-dlq"),

		ScribeURL:     getEnv("EKA_SCRIBE_URL", ""),
		ScribeTimeout: getDuration("EKA_SCRIBE_TIMEOUT", 60*time.Second),

		LabAPIKey:          getEnv("EKA_API_KEY", ""),
		LabBaseURL:         getEnv("EKA_BASE_URL", "https://api.eka.care"),
		LabTimeout:         getDuration("EKA_TIMEOUT", 90*time.Second),
		LabPollInterval:    getDuration("EKA_POLL_INTERVAL", 3*time.Second),
		LabMaxPollAttempts: getIntEnv("EKA_MAX_POLL_ATTEMPTS", 80),
		LabRulesPath:       getEnv("LAB_INFERENCE_RULES_PATH", ""),

		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AITimeout:          getDuration("AI_TIMEOUT", 120*time.Second),
		AIFallbackProvider: strings.ToLower(getEnv("AI_FALLBACK_PROVIDER", "openai")),

		BreakerMaxRequests:      getIntEnv("BREAKER_MAX_REQUESTS", 1),
		BreakerInterval:         getDuration("BREAKER_INTERVAL", 60*time.Second),
		BreakerOpenTimeout:      getDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		BreakerFailureThreshold: getIntEnv("BREAKER_FAILURE_THRESHOLD", 5),

		DefaultHospital:   getEnv("DEFAULT_HOSPITAL", ""),
		DefaultLocation:   getEnv("DEFAULT_LOCATION", ""),
		AsyncProcessing:   getBoolEnv("ASYNC_PROCESSING", false),
		ResultCacheTTL:    getDuration("RESULT_CACHE_TTL", 24*time.Hour),
		TerminologyPath:   getEnv("TERMINOLOGY_PATH", ""),
		DLPRulesPath:      getEnv("DLP_RULES_PATH", ""),
		DocumentRetention: getDuration("DOCUMENT_RETENTION", 0),
		JobMaxAttempts:    getIntEnv("JOB_MAX_ATTEMPTS", 3),
		PublishAttempts:   getIntEnv("KAFKA_PUBLISH_ATTEMPTS", 3),
		PublishBackoff:    getDuration("KAFKA_PUBLISH_BACKOFF", 200*time.Millisecond),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
