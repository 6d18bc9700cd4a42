package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/config"
	"github.com/staybook/hotel-server-go/internal/database"
	"github.com/staybook/hotel-server-go/internal/directory"
	"github.com/staybook/hotel-server-go/internal/handler"
	"github.com/staybook/hotel-server-go/internal/jobs"
	"github.com/staybook/hotel-server-go/internal/middleware"
	"github.com/staybook/hotel-server-go/internal/observability"
	"github.com/staybook/hotel-server-go/internal/redis"
	"github.com/staybook/hotel-server-go/internal/repository"
	"github.com/staybook/hotel-server-go/internal/service"
	"github.com/staybook/hotel-server-go/internal/sse"
)

func main() {
	observability.InitLogger(os.Stderr, "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger(os.Stderr, cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	shutdownTracing, err := observability.Setup(context.Background(), "hotel-server", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	authSessionRepo := repository.NewAuthSessionRepository(db.DB)
	documentRepo := repository.NewDocumentRepository(db.DB)

	broker := sse.NewBroker(redisClient)

	authService := service.NewAuthService(db, userRepo, authSessionRepo, cfg.SessionSecret, cfg.SessionTTL())
	documentService := service.NewDocumentService(documentRepo, broker)
	rateLimiter := service.NewRateLimiter(redisClient.Client)
	hotelDirectory := directory.NewClient(cfg.DirectoryURL, cfg.DirectoryCacheTTL())

	authMiddleware := middleware.NewAuthMiddleware(authService)
	loginLimitMiddleware := middleware.NewRedisRateLimitMiddleware(
		rateLimiter, "login", cfg.LoginRateLimitPerMin, middleware.ByClientIP,
	)
	writeLimitMiddleware := middleware.NewRedisRateLimitMiddleware(
		rateLimiter, "write", cfg.WriteRateLimitPerMin, middleware.ByUser,
	)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	timeout := chimiddleware.Timeout(config.ServerRequestTimeout)

	authHandler := handler.NewAuthHandler(authService, authMiddleware.Handler, loginLimitMiddleware.Handler)
	collectionsHandler := handler.NewCollectionsHandler(documentService, broker)
	hotelsHandler := handler.NewHotelsHandler(hotelDirectory)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
			"streams":   broker.TotalClients(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(timeout).Mount("/auth", authHandler.Routes())
		r.With(timeout).Mount("/hotels", hotelsHandler.Routes())

		r.Route("/collections", func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Mount("/", collectionsHandler.Routes(timeout, writeLimitMiddleware.Handler))
		})
	})

	cleanupJob := jobs.NewCleanupJob(config.CleanupJobInterval,
		jobs.Task{Name: "auth sessions", Run: authService.PurgeExpiredSessions},
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// Shutdown waits for open event streams; closing the broker ends them.
	broker.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("server stopped")
}
