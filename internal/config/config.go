// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Storage settings. An empty DatabaseURL selects the in-memory store.
	DatabaseURL            string
	DatabaseConnectTimeout time.Duration
	DatabaseMigrate        bool

	// Resilience settings
	StoreRetryAttempts  int
	StoreRetryBaseDelay time.Duration
	FallbackCacheSize   int

	// NATS settings. An empty NATSURL disables event publishing.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	DefaultLLM        string
	ExtractionModel   string
	ExtractionTimeout time.Duration

	// Agents
	CoordinatorAgentType string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// CORS
	AllowedOrigins []string

	// Logging. Environment "development" selects the console logger.
	LogLevel    string
	Environment string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables, after seeding them
// from a .env file in the working directory when one exists.
func Load() *Config {
	// Variables already set in the environment win over .env.
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),

		// Storage
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		DatabaseConnectTimeout: getDurationEnv("DATABASE_CONNECT_TIMEOUT", 10*time.Second),
		DatabaseMigrate:        getBoolEnv("DATABASE_MIGRATE", true),

		// Resilience
		StoreRetryAttempts:  getIntEnv("STORE_RETRY_ATTEMPTS", 3),
		StoreRetryBaseDelay: getDurationEnv("STORE_RETRY_BASE_DELAY", 500*time.Millisecond),
		FallbackCacheSize:   getIntEnv("FALLBACK_CACHE_SIZE", 1000),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:        getEnv("DEFAULT_LLM", "anthropic"),
		ExtractionModel:   getEnv("EXTRACTION_MODEL", ""),
		ExtractionTimeout: getDurationEnv("EXTRACTION_TIMEOUT", 15*time.Second),

		// Agents
		CoordinatorAgentType: getEnv("COORDINATOR_AGENT_TYPE", "coordinator"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// CORS
		AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),

		// Logging
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENV", "production"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// UseMemoryStore reports whether no database is configured.
func (c *Config) UseMemoryStore() bool {
	return c.DatabaseURL == ""
}

// EventsEnabled reports whether conversation events go to NATS.
func (c *Config) EventsEnabled() bool {
	return c.NATSURL != ""
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

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
