// Package main is the entrypoint for the Tracklink API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tracklink/tracklink/internal/analytics"
	"github.com/tracklink/tracklink/internal/cache"
	"github.com/tracklink/tracklink/internal/capi"
	"github.com/tracklink/tracklink/internal/config"
	"github.com/tracklink/tracklink/internal/handler"
	"github.com/tracklink/tracklink/internal/ingest"
	"github.com/tracklink/tracklink/internal/metrics"
	"github.com/tracklink/tracklink/internal/middleware"
	"github.com/tracklink/tracklink/internal/repository"
	"github.com/tracklink/tracklink/internal/server"
	"github.com/tracklink/tracklink/internal/tracking"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Repositories
	eventRepo := repository.NewEventRepository(repo)
	releaseRepo := repository.NewReleaseRepository(repo)

	// Services
	metricsRecorder := metrics.NewInMemory()
	capiClient := capi.New(cfg.MetaAPIBaseURL, logger)
	signer := tracking.NewSigner(cfg.TrackEventSigningSecret)

	credSource := ingest.NewCachedCredentialSource(cacheClient, releaseRepo, releaseRepo, logger)
	ingestService := ingest.NewService(
		eventRepo,
		credSource,
		capiClient,
		signer,
		cfg.DefaultAdsCredentials(),
		metricsRecorder,
		logger,
	)
	analyticsService := analytics.NewService(eventRepo, capiClient, cfg.MetaAdsReadToken, logger)

	// Initialize handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	trackHandler := handler.NewTrackEventHandler(ingestService, logger)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, metricsRecorder, logger)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)

	// Setup router
	r := setupRouter(h, healthHandler, trackHandler, analyticsHandler, metricsHandler, cacheClient, cfg, logger)

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"token_verification", signer.Enabled(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	trackHandler *handler.TrackEventHandler,
	analyticsHandler *handler.AnalyticsHandler,
	metricsHandler *handler.MetricsHandler,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment()
	securityCfg.MaxRequestBodySize = cfg.MaxRequestBodySize
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	// Health endpoints
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	// Metrics endpoint
	r.Get("/metrics", metricsHandler.Metrics)

	// Root info endpoint
	r.Get("/", h.Hello)

	// Rate limit middleware configuration
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:       logger,
		Cache:        cacheClient,
		TrackEnabled: cfg.RateLimitTrackEnabled,
		TrackRPS:     cfg.RateLimitTrackRPS,
		TrackBurst:   cfg.RateLimitTrackBurst,
	}

	// Event ingestion with IP-based rate limiting (no auth; token-verified)
	r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/track-event", trackHandler.Track)

	// Analytics API
	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Get("/summary", analyticsHandler.Summary)
		r.Get("/timeseries", analyticsHandler.Timeseries)
		r.Get("/campaigns", analyticsHandler.Campaigns)
		r.Get("/route-health", analyticsHandler.RouteHealth)
		r.Get("/high-intent", analyticsHandler.HighIntent)
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
