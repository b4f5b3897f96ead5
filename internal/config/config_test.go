package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "NATS_URL", "STORE_RETRY_ATTEMPTS", "STORE_RETRY_BASE_DELAY", "CORS_ALLOWED_ORIGINS", "ENV"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.True(t, cfg.UseMemoryStore())
	assert.False(t, cfg.EventsEnabled())
	assert.Equal(t, 3, cfg.StoreRetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.StoreRetryBaseDelay)
	assert.Equal(t, 1000, cfg.FallbackCacheSize)
	assert.Equal(t, 15*time.Second, cfg.ExtractionTimeout)
	assert.Equal(t, "coordinator", cfg.CoordinatorAgentType)
	assert.Equal(t, []string{"https://*", "http://*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/conversations")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("STORE_RETRY_ATTEMPTS", "5")
	t.Setenv("STORE_RETRY_BASE_DELAY", "250ms")
	t.Setenv("DATABASE_MIGRATE", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("ENV", "development")

	cfg := Load()

	assert.False(t, cfg.UseMemoryStore())
	assert.True(t, cfg.EventsEnabled())
	assert.Equal(t, 5, cfg.StoreRetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.StoreRetryBaseDelay)
	assert.False(t, cfg.DatabaseMigrate)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("STORE_RETRY_ATTEMPTS", "many")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")

	cfg := Load()

	assert.Equal(t, 3, cfg.StoreRetryAttempts)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}
