package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alextreichler/libreserve/internal/config"
	"github.com/alextreichler/libreserve/internal/handlers"
	"github.com/alextreichler/libreserve/internal/store"
	"github.com/alextreichler/libreserve/web"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// 2. Backend client
	db := store.NewStore(cfg.APIBase)

	// 3. Session Setup
	sessionStore := sessions.NewCookieStore(cfg.SessionKey)
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.Secure = cfg.CookieSecure
	sessionStore.Options.SameSite = http.SameSiteLaxMode
	sessionStore.Options.Path = "/"
	sessionStore.Options.MaxAge = 7 * 24 * 60 * 60
	if cfg.CookieDomain != "" {
		sessionStore.Options.Domain = cfg.CookieDomain
	}

	// 4. Init Templates
	templates := handlers.NewTemplateCache()
	for name, fn := range handlers.Funcs() {
		templates.AddFunc(name, fn)
	}
	if err := templates.Load(web.Templates, "templates"); err != nil {
		slog.Error("Failed to load templates", "error", err)
		os.Exit(1)
	}

	demoSrc, err := web.Demo()
	if err != nil {
		slog.Error("Failed to read demo page", "error", err)
		os.Exit(1)
	}
	demo, err := handlers.RenderMarkdown(demoSrc)
	if err != nil {
		slog.Error("Failed to render demo page", "error", err)
		os.Exit(1)
	}

	// 5. Rate Limiter
	var rateLimiter *handlers.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			slog.Warn("Redis unreachable, rate limiter will fail open until it is back", "addr", cfg.RedisAddr, "error", err)
		}
		rateLimiter = handlers.NewRedisRateLimiter(rdb, cfg.RateLimitWindow)
		slog.Info("Using Redis rate limiter", "addr", cfg.RedisAddr, "window", cfg.RateLimitWindow)
	} else {
		rateLimiter = handlers.NewRateLimiter(cfg.RateLimitWindow)
	}

	// 6. Setup Handlers
	clock := handlers.Clock{Now: time.Now, Location: cfg.Location}
	app := &handlers.Handlers{
		Auth: &handlers.AuthHandler{
			Store:        db,
			SessionStore: sessionStore,
			Templates:    templates,
			Clock:        clock,
		},
		Home: &handlers.HomeHandler{
			Store:        db,
			Templates:    templates,
			SessionStore: sessionStore,
			DemoPage:     demo,
		},
		Books: &handlers.BookHandler{
			Store:        db,
			SessionStore: sessionStore,
			Templates:    templates,
		},
		Reservations: &handlers.ReservationHandler{
			Store:        db,
			SessionStore: sessionStore,
			Templates:    templates,
			Clock:        clock,
			Prefix:       "/member/reservations",
		},
		AdminReservations: &handlers.ReservationHandler{
			Store:        db,
			SessionStore: sessionStore,
			Templates:    templates,
			Clock:        clock,
			Prefix:       "/admin/reservations",
			Admin:        true,
		},
		Admin: &handlers.AdminHandler{
			Store:        db,
			SessionStore: sessionStore,
			Templates:    templates,
			Clock:        clock,
		},
		Limiter: rateLimiter,
		Static:  web.Static(),
	}

	// 7. Middleware Setup
	CSRF := csrf.Protect(
		cfg.CSRFKey,
		csrf.Secure(cfg.CookieSecure),
		csrf.Path("/"),
		// Trust local development origins
		csrf.TrustedOrigins([]string{"localhost:" + cfg.Port, "127.0.0.1:" + cfg.Port, "localhost", "127.0.0.1"}),
	)

	// 8. Start Server with Graceful Shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.BodyLimitMiddleware(handlers.MaxUploadSize, handlers.ImportPath)(CSRF(app.Routes())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "api_base", cfg.APIBase)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to listen and serve", "error", err)
			os.Exit(1)
		}
	}()

	<-stop

	slog.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited gracefully.")
}
