// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/config"
	"github.com/capitalize-ai/agent-conversations/internal/extract"
	"github.com/capitalize-ai/agent-conversations/internal/handler"
	"github.com/capitalize-ai/agent-conversations/internal/llm"
	"github.com/capitalize-ai/agent-conversations/internal/middleware"
	natsclient "github.com/capitalize-ai/agent-conversations/internal/nats"
	"github.com/capitalize-ai/agent-conversations/internal/resilience"
	"github.com/capitalize-ai/agent-conversations/internal/service"
	"github.com/capitalize-ai/agent-conversations/internal/store"
	"github.com/capitalize-ai/agent-conversations/internal/store/memory"
	"github.com/capitalize-ai/agent-conversations/internal/store/postgres"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
	"github.com/capitalize-ai/agent-conversations/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var log *logger.Logger
	var err error
	if cfg.IsDevelopment() {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "agent-conversations", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Durable store
	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer closeRepo()

	opts := []service.Option{
		service.WithExtractor(extract.New(newLLMClient(cfg, log), extract.Config{
			Model:   cfg.ExtractionModel,
			Timeout: cfg.ExtractionTimeout,
		}, log)),
	}

	// Connect to NATS when configured
	var (
		natsClient *natsclient.Client
		events     handler.EventSource
		broker     handler.ConnectionChecker
	)
	if cfg.EventsEnabled() {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		publisher := natsclient.NewEventPublisher(natsClient, log)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		opts = append(opts, service.WithPublisher(publisher))
		events, broker = publisher, natsClient
	} else {
		log.Info("NATS_URL not set, conversation events disabled")
	}

	// Initialize services
	conversations := service.New(repo, log, opts...)
	cache, err := resilience.NewMemoryCache(cfg.FallbackCacheSize)
	if err != nil {
		log.Fatal("failed to create fallback cache", zap.Error(err))
	}
	adapter := resilience.NewAdapter(conversations, resilience.Policy{
		Attempts:  cfg.StoreRetryAttempts,
		BaseDelay: cfg.StoreRetryBaseDelay,
	}, cache, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(adapter, broker)
	api := &handler.API{
		Conversations: handler.NewConversationHandler(adapter, log),
		Messages:      handler.NewMessageHandler(adapter, log),
		Participants:  handler.NewParticipantHandler(adapter, log),
		Context:       handler.NewContextHandler(adapter, log),
		Agents:        handler.NewAgentHandler(adapter, cfg.CoordinatorAgentType, log),
		Events:        handler.NewEventHandler(adapter, events, log),
	}

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		api.Mount(r)
	})

	// Create HTTP server. Event streams are long-lived, so only the header
	// read is bounded globally.
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerWriteTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// openRepository returns the Postgres store when DATABASE_URL is set and
// an open-directory in-memory store otherwise.
func openRepository(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Repository, func(), error) {
	if cfg.UseMemoryStore() {
		log.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
		return memory.New(memory.WithOpenDirectory()), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.DatabaseConnectTimeout)
	defer cancel()
	pool, err := postgres.Connect(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	pg := postgres.New(pool, log)
	if cfg.DatabaseMigrate {
		if err := pg.Migrate(connectCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return pg, pool.Close, nil
}

// newLLMClient prefers the configured default provider and falls back to
// whichever provider has a key. Nil disables the model extraction stage.
func newLLMClient(cfg *config.Config, log *logger.Logger) llm.Client {
	keys := map[llm.Provider]string{
		llm.ProviderAnthropic: cfg.AnthropicAPIKey,
		llm.ProviderOpenAI:    cfg.OpenAIAPIKey,
	}
	order := []llm.Provider{llm.Provider(cfg.DefaultLLM), llm.ProviderAnthropic, llm.ProviderOpenAI}
	for _, provider := range order {
		key := keys[provider]
		if key == "" {
			continue
		}
		client, err := llm.NewClient(provider, key)
		if err != nil {
			log.Warn("failed to create LLM client", zap.String("provider", string(provider)), zap.Error(err))
			continue
		}
		log.Info("context extraction model stage enabled", zap.String("provider", client.Name()))
		return client
	}
	log.Info("no LLM key configured, context extraction uses patterns only")
	return nil
}
