// Package main is the entry point for the triage API server.
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

	"github.com/mediflow/triage-engine/internal/booking"
	"github.com/mediflow/triage-engine/internal/config"
	"github.com/mediflow/triage-engine/internal/engine"
	"github.com/mediflow/triage-engine/internal/events"
	"github.com/mediflow/triage-engine/internal/extractor"
	"github.com/mediflow/triage-engine/internal/handler"
	"github.com/mediflow/triage-engine/internal/middleware"
	"github.com/mediflow/triage-engine/internal/service"
	"github.com/mediflow/triage-engine/internal/store"
	"github.com/mediflow/triage-engine/internal/triage"
	"github.com/mediflow/triage-engine/pkg/logger"
	"github.com/mediflow/triage-engine/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting triage API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "triage-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Session store: Postgres when configured, in-memory otherwise.
	var sessionStore store.SessionStore
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open session store", zap.Error(err))
			os.Exit(1)
		}
		sessionStore = pg
	} else {
		log.Warn("DATABASE_URL not set, using in-memory session store")
		sessionStore = store.NewMemoryStore()
	}
	defer sessionStore.Close()

	// NATS JetStream for transition audit events and booking handoffs.
	var natsClient *events.Client
	var publisher service.Publisher
	if cfg.NATSEnabled {
		natsClient, err = events.Connect(ctx, events.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		pub := events.NewPublisher(natsClient)
		if err := pub.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		publisher = pub
	} else {
		log.Warn("NATS disabled, transitions and handoffs will not be published")
	}

	rules := triage.DefaultRules()
	if cfg.RulesFile != "" {
		rules, err = triage.LoadRules(cfg.RulesFile)
		if err != nil {
			log.Error("failed to load triage rules", zap.Error(err))
			os.Exit(1)
		}
	}
	ext := buildExtractor(cfg, rules, log)

	eng := engine.New(
		triage.NewPolicy(rules),
		booking.Resolver{},
		engine.WithLockThreshold(cfg.LockThreshold),
	)

	triageSvc := service.NewTriageService(sessionStore, eng, ext, publisher, log,
		service.WithExtractTimeout(cfg.ExtractTimeout),
	)

	healthHandler := handler.NewHealthHandler(sessionStore, natsClient)
	sessionHandler := handler.NewSessionHandler(triageSvc, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, cfg.AllowAnonymous))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Post("/messages", sessionHandler.Message)
			r.Post("/events", sessionHandler.Event)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// buildExtractor picks the configured provider, falling back to the
// deterministic keyword extractor when no LLM key is available.
func buildExtractor(cfg *config.Config, rules triage.Rules, log *logger.Logger) extractor.Extractor {
	provider := extractor.Provider(cfg.ExtractorProvider)
	if provider == "" {
		switch {
		case cfg.AnthropicAPIKey != "":
			provider = extractor.ProviderAnthropic
		case cfg.OpenAIAPIKey != "":
			provider = extractor.ProviderOpenAI
		default:
			provider = extractor.ProviderKeyword
		}
	}

	switch provider {
	case extractor.ProviderAnthropic:
		ext, err := extractor.NewAnthropicExtractor(cfg.AnthropicAPIKey, cfg.ExtractorModel)
		if err == nil {
			return ext
		}
		log.Warn("failed to create Anthropic extractor, using keyword fallback", zap.Error(err))
	case extractor.ProviderOpenAI:
		ext, err := extractor.NewOpenAIExtractor(cfg.OpenAIAPIKey, cfg.ExtractorModel)
		if err == nil {
			return ext
		}
		log.Warn("failed to create OpenAI extractor, using keyword fallback", zap.Error(err))
	}

	return extractor.NewKeywordExtractor(rules)
}
