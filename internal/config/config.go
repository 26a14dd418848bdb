// Package config provides environment configuration for the service.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Persistence
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS settings (outbox lifecycle events; optional)
	NATSURL   string
	NATSToken string

	// JWT settings
	JWTSecret string

	// CRM (Piperun) settings
	PiperunBaseURL  string
	PiperunAPIToken string
	PiperunTimeout  time.Duration

	// Outbox retry job
	BatchSize       int
	ProcessInterval time.Duration
	RetentionDays   int

	// Alerting
	SlackWebhookURL  string
	AlertWebhookURL  string
	AlertEmailTo     string
	DebounceWindow   time.Duration
	ErrorRateWindow  time.Duration
	MonitorInterval  time.Duration
	LatencyThreshold float64

	// Business hours
	BusinessHoursTZ    string
	BusinessHoursStart string
	BusinessHoursEnd   string
	BusinessHoursFile  string

	// Conversation summaries (optional)
	SummaryProvider string
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Persistence
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// NATS
		NATSURL:   getEnv("NATS_URL", ""),
		NATSToken: getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// CRM
		PiperunBaseURL:  getEnv("PIPERUN_BASE_URL", "https://api.pipe.run/v1"),
		PiperunAPIToken: getEnv("PIPERUN_API_TOKEN", ""),
		PiperunTimeout:  getDurationEnv("PIPERUN_TIMEOUT", 10*time.Second),

		// Outbox
		BatchSize:       getIntEnv("OUTBOX_BATCH_SIZE", 50),
		ProcessInterval: getDurationEnv("OUTBOX_PROCESS_INTERVAL", 5*time.Minute),
		RetentionDays:   getIntEnv("OUTBOX_RETENTION_DAYS", 30),

		// Alerting
		SlackWebhookURL:  getEnv("SLACK_WEBHOOK_URL", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
		AlertEmailTo:     getEnv("ALERT_EMAIL_TO", ""),
		DebounceWindow:   getDurationEnv("ALERT_DEBOUNCE_WINDOW", 15*time.Minute),
		ErrorRateWindow:  getDurationEnv("ALERT_ERROR_RATE_WINDOW", 5*time.Minute),
		MonitorInterval:  getDurationEnv("ALERT_MONITOR_INTERVAL", 60*time.Second),
		LatencyThreshold: getFloatEnv("ALERT_LATENCY_THRESHOLD", 10.0),

		// Business hours
		BusinessHoursTZ:    getEnv("BUSINESS_HOURS_TZ", ""),
		BusinessHoursStart: getEnv("BUSINESS_HOURS_START", ""),
		BusinessHoursEnd:   getEnv("BUSINESS_HOURS_END", ""),
		BusinessHoursFile:  getEnv("BUSINESS_HOURS_FILE", ""),

		// Summaries
		SummaryProvider: getEnv("SUMMARY_PROVIDER", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
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
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
