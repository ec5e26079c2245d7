package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"homeledger/internal/config"
	"homeledger/internal/database"
	"homeledger/internal/handler"
	"homeledger/internal/middleware"
	"homeledger/internal/repository"
	"homeledger/internal/service"
	"homeledger/internal/session"
	"homeledger/internal/throttle"
	"homeledger/internal/token"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lgr := setupLogger(cfg.Env)

	// Initialize database
	db, err := database.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize repositories, services, and handlers
	txm := database.NewTxManager(db.Pool)
	userRepo := repository.NewUserRepository(db.Pool)
	tokenRepo := repository.NewRefreshTokenRepository(db.Pool)
	moduleRepo := repository.NewModuleRecordRepository(db.Pool)

	sessions := session.NewStore(tokenRepo, txm, cfg.RefreshTokenTTL)
	loginThrottle := throttle.New(userRepo, throttle.Config{
		MaxFailedAttempts: cfg.MaxFailedAttempts,
		LockoutDuration:   cfg.LockoutDuration,
		RateLimit:         cfg.LoginRateLimit,
		RateWindow:        cfg.LoginRateWindow,
	})
	codec := token.NewCodec([]byte(cfg.JwtSecret))

	authService := service.NewAuthService(userRepo, moduleRepo, sessions, loginThrottle, codec, txm,
		service.Config{AccessTokenTTL: cfg.AccessTokenTTL, BcryptCost: cfg.BcryptCost}, lgr)
	moduleService := service.NewModuleService(moduleRepo)

	authHandler := handler.NewAuthHandler(authService, lgr)
	moduleHandler := handler.NewModuleHandler(moduleService, lgr)

	// Create router with middleware
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RateLimiter())

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Auth routes with strict rate limiting
	r.Group(func(r chi.Router) {
		r.Use(middleware.StrictRateLimiter())
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimiter())
		r.Use(middleware.Authenticator(authService, lgr))
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/modules/{module}", moduleHandler.Get)
		r.Put("/modules/{module}", moduleHandler.Put)
	})

	// Periodically sweep expired refresh tokens and idle rate-limit state
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepExpiredTokens(sweepCtx, sessions, loginThrottle, cfg.SweepInterval, lgr)

	// Create server with timeouts
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		lgr.Info("server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lgr.Info("server is shutting down")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	lgr.Info("server exited properly")
}

func sweepExpiredTokens(ctx context.Context, sessions *session.Store, loginThrottle *throttle.Throttle, interval time.Duration, lgr *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			loginThrottle.SweepIdle()

			n, err := sessions.SweepExpired(ctx)
			if err != nil {
				lgr.Error("sweeping expired refresh tokens", slog.Any("error", err))
				continue
			}
			if n > 0 {
				lgr.Info("swept expired refresh tokens", slog.Int64("count", n))
			}
		}
	}
}

func setupLogger(env string) *slog.Logger {
	if env == "local" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
