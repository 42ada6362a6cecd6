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

	"scribe-console/internal/app"
	"scribe-console/internal/config"
	"scribe-console/internal/handler"
	"scribe-console/internal/middleware"
	"scribe-console/internal/observability"
	"scribe-console/internal/view"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const loginPath = "/auth/login"

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting admin console",
		slog.String("environment", cfg.Environment),
		slog.String("credential_store", cfg.CredentialStore),
		slog.String("realtime_transport", cfg.RealtimeTransport))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storeCtx, storeCancel := context.WithTimeout(ctx, 10*time.Second)
	store, closeStore, err := app.OpenCredentialStore(storeCtx, cfg)
	storeCancel()
	if err != nil {
		slog.Error("failed to open credential store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	client := app.NewBackendClient(cfg)
	tokens := app.NewTokenManager(cfg, store, client)
	manager := app.NewManager(cfg, tokens.Token)
	views := view.NewDefaultSet(client, tokens, manager)

	// endSession runs on logout and whenever the credential is lost.
	endSession := func(context.Context) {
		views.UnmountAll()
		manager.DisconnectAll()
	}

	authHandler := handler.NewAuthHandler(tokens, endSession)
	sessionHandler := handler.NewSessionHandler(tokens, manager)
	viewHandler := handler.NewViewHandler(views, tokens, loginPath, endSession)
	adminHandler := handler.NewAdminHandler(client, tokens, views, loginPath, endSession)

	validator, err := middleware.OpenAPIValidator(
		middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPISpecPath, cfg.IsProduction()))
	if err != nil {
		slog.Error("failed to load openapi document", slog.String("error", err.Error()))
		os.Exit(1)
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Metrics())
	r.Use(validator)

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(store, manager))
	r.Handle("/metrics", promhttp.Handler())

	authLimiter := middleware.NewRateLimiter(ctx, 5, 10)
	apiLimiter := middleware.NewRateLimiter(ctx, 20, 50)

	r.Group(func(r chi.Router) {
		r.Use(authLimiter.Middleware())
		r.Get(loginPath, authHandler.LoginPage)
		r.Post(loginPath, authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLimiter.Middleware())
		r.Use(middleware.SessionGuard(tokens, loginPath, endSession))

		r.Get("/session", sessionHandler.Get)
		r.Get("/views", viewHandler.List)
		r.Get("/views/{view}", viewHandler.Get)
		r.Post("/views/{view}/refresh", viewHandler.Refresh)

		r.Delete("/users/{id}", adminHandler.DeleteUser)
		r.Post("/notifications", adminHandler.SendNotification)
		r.Get("/notifications/recipients", adminHandler.Recipients)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("admin console listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	views.UnmountAll()
	manager.DisconnectAll()
	cancel()

	slog.Info("server stopped gracefully")
}
