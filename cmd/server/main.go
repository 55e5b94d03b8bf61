// Junrei - literary pilgrimage dialogue server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/junrei/internal/api"
	"github.com/ashureev/junrei/internal/catalog"
	"github.com/ashureev/junrei/internal/config"
	"github.com/ashureev/junrei/internal/dialogue"
	"github.com/ashureev/junrei/internal/identity"
	"github.com/ashureev/junrei/internal/llm"
	"github.com/ashureev/junrei/internal/metrics"
	"github.com/ashureev/junrei/internal/middleware"
	"github.com/ashureev/junrei/internal/onboarding"
	"github.com/ashureev/junrei/internal/realtime"
	"github.com/ashureev/junrei/internal/store"
	"github.com/ashureev/junrei/internal/sweeper"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "ai_provider", cfg.AI.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	completer, err := llm.New(ctx, cfg.LLM())
	if err != nil {
		slog.Error("Failed to initialize AI client", "error", err)
		os.Exit(1)
	}

	cat, err := catalog.Load()
	if err != nil {
		slog.Error("Failed to load encounter catalog", "error", err)
		os.Exit(1)
	}

	rec := metrics.New()

	// Initialize services.
	factory := &dialogue.Factory{
		Deps: dialogue.Deps{
			Completer:     completer,
			Profiles:      repo,
			Conversations: repo,
			Quotes:        repo,
			Progress:      repo,
			Recorder:      rec,
		},
		Catalog:     cat,
		Progression: cfg.Progression,
		Logger:      logger,
	}
	hub := realtime.NewHub(factory, realtime.OnboardingConfig{
		Deps: onboarding.Deps{
			Completer: completer,
			Profiles:  repo,
			Recorder:  rec,
		},
		SystemPrompt: cat.OnboardingPrompt(),
		Policy:       cfg.OnboardingPolicy(),
		Logger:       logger,
	}, rec.SetActiveSessions)

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, hub, cat, cfg.Progression, limiter)
	healthHandler := api.NewHealthHandler(repo, hub.Dialogues.Len)
	wsHandler := realtime.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Public routes.
	r.Handle("/metrics", rec.Handler())
	healthHandler.RegisterHealth(r)

	// Everything else runs with an anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		baseHandler.RegisterRoutes(r)
		r.Get("/ws/dialogue/{encounterID}", wsHandler.ServeHTTP)
	})

	// WebSocket connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("Session sweeper started", "session_ttl", cfg.SessionTTL)
		return sweeper.New(hub, cfg.SessionTTL).Run(gctx)
	})

	g.Go(func() error {
		return limiter.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		hub.Wait()
		os.Exit(1)
	}

	// Let detached quote saves land before the database closes.
	hub.Wait()
	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
