// Package main is the entry point for the SDR platform reliability service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vendaflow/sdr-platform/internal/alerting"
	"github.com/vendaflow/sdr-platform/internal/config"
	"github.com/vendaflow/sdr-platform/internal/contextstore"
	"github.com/vendaflow/sdr-platform/internal/crm"
	"github.com/vendaflow/sdr-platform/internal/events"
	"github.com/vendaflow/sdr-platform/internal/handler"
	"github.com/vendaflow/sdr-platform/internal/middleware"
	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/internal/outbox"
	"github.com/vendaflow/sdr-platform/internal/pause"
	"github.com/vendaflow/sdr-platform/internal/schedule"
	"github.com/vendaflow/sdr-platform/internal/summarizer"
	"github.com/vendaflow/sdr-platform/pkg/logger"
	"github.com/vendaflow/sdr-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting SDR platform service")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "sdr-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Operation store: Postgres when configured, in-memory for dev
	var (
		store       outbox.Store
		storePinger handler.Pinger
	)
	if cfg.DatabaseURL != "" {
		pgStore, err := outbox.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to create operation store", zap.Error(err))
			os.Exit(1)
		}
		defer pgStore.Close()
		store = pgStore
		storePinger = pgStore
	} else {
		log.Warn("DATABASE_URL not set, using in-memory operation store")
		store = outbox.NewMemoryStore()
	}

	// Context store: Redis when configured, in-memory for dev
	var (
		contexts      contextstore.Store
		contextPinger handler.Pinger
	)
	if cfg.RedisAddr != "" {
		redisStore, err := contextstore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Error("failed to connect to redis", zap.Error(err))
			os.Exit(1)
		}
		defer redisStore.Close()
		contexts = redisStore
		contextPinger = redisStore
	} else {
		log.Warn("REDIS_ADDR not set, using in-memory context store")
		contexts = contextstore.NewMemoryStore()
	}

	// Lifecycle events (optional)
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.Connect(ctx, cfg.NATSURL, cfg.NATSToken, log)
		if err != nil {
			log.Warn("failed to connect to NATS, lifecycle events disabled", zap.Error(err))
		} else {
			defer publisher.Close()
		}
	}

	// Alerting
	tracker := alerting.NewTracker(cfg.ErrorRateWindow)
	senders := []alerting.Sender{
		alerting.NewSlackSender(cfg.SlackWebhookURL),
		alerting.NewWebhookSender(cfg.AlertWebhookURL),
		alerting.NewEmailSender(cfg.AlertEmailTo),
	}
	alertEngine := alerting.NewEngine(tracker, senders, alerting.EngineConfig{
		DebounceWindow:   cfg.DebounceWindow,
		LatencyThreshold: cfg.LatencyThreshold,
	}, log)

	monitor := alerting.NewMonitor(alertEngine, cfg.MonitorInterval, log)
	monitor.Start(ctx)
	defer monitor.Stop()

	// Business hours and pause state
	hours := schedule.NewEvaluator(schedule.Config{
		Timezone: cfg.BusinessHoursTZ,
		Start:    cfg.BusinessHoursStart,
		End:      cfg.BusinessHoursEnd,
		FilePath: cfg.BusinessHoursFile,
	}, log)

	pauseManager := pause.NewManager(contexts, hours, log)
	pauseManager.LoadAllFromStore(ctx)

	// Conversation summaries (optional)
	var summaries summarizer.Client
	if cfg.SummaryProvider != "" {
		apiKey := cfg.AnthropicAPIKey
		if summarizer.Provider(cfg.SummaryProvider) == summarizer.ProviderOpenAI {
			apiKey = cfg.OpenAIAPIKey
		}
		summaries, err = summarizer.NewClient(summarizer.Provider(cfg.SummaryProvider), apiKey)
		if err != nil {
			log.Warn("failed to create summarizer, summaries disabled", zap.Error(err))
		}
	}

	// Retry orchestrator and scheduler
	syncFlags := crm.NewSyncFlags(contexts)
	orchestrator := outbox.NewOrchestrator(store, alertEngine, syncFlags, publisher, log)

	if cfg.PiperunAPIToken != "" {
		piperun, err := crm.NewPiperunClient(cfg.PiperunBaseURL, cfg.PiperunAPIToken, cfg.PiperunTimeout)
		if err != nil {
			log.Error("failed to create piperun client", zap.Error(err))
			os.Exit(1)
		}
		syncer := crm.NewInstrumentedSyncer(piperun, alertEngine)
		orchestrator.RegisterExecutor(model.OpCreateDeal,
			outbox.NewCreateDealExecutor(syncer, summaries, log))
	} else {
		log.Warn("PIPERUN_API_TOKEN not set, deal sync disabled")
	}

	scheduler := outbox.NewScheduler(orchestrator, store, cfg.BatchSize, cfg.ProcessInterval, cfg.RetentionDays, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(storePinger, contextPinger)
	operationHandler := handler.NewOperationHandler(store, orchestrator, log)
	pauseHandler := handler.NewPauseHandler(pauseManager, hours, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/operations", operationHandler.Routes)

		r.Route("/conversations/{phone}", func(r chi.Router) {
			r.Get("/pause", pauseHandler.GetPause)
			r.Post("/pause", pauseHandler.Pause)
			r.Post("/resume", pauseHandler.Resume)
		})

		r.Get("/business-hours", pauseHandler.BusinessHours)
		r.Post("/business-hours/reload", pauseHandler.ReloadBusinessHours)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
