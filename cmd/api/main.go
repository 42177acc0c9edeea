package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/devicekeep/server/internal/auth"
	"github.com/devicekeep/server/internal/config"
	"github.com/devicekeep/server/internal/db"
	httphandler "github.com/devicekeep/server/internal/http"
	"github.com/devicekeep/server/internal/http/handlers"
	"github.com/devicekeep/server/internal/observability"
	"github.com/devicekeep/server/internal/repo"
	"github.com/devicekeep/server/internal/repo/memory"
)

func main() {
	// Load .env from CWD if present (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fatalf("Failed to load configuration: %v", err)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		log.Printf("Sentry disabled: %v", err)
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		database *sql.DB
		accounts repo.AccountRepo
		tokens   repo.DeviceTokenRepo
	)
	if cfg.UseMemoryStore() {
		log.Println("DEV_MODE without DATABASE_URL: using in-memory store, data is lost on exit")
		store := memory.NewStore()
		accounts, tokens = store.Accounts(), store.DeviceTokens()
	} else {
		database, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		if err := db.Migrate(database); err != nil {
			fatalf("Failed to run migrations: %v", err)
		}
		accounts, tokens = repo.NewAccountRepo(database), repo.NewDeviceTokenRepo(database)
	}

	jwtService, err := auth.NewJWTService(cfg.TokenConfig())
	if err != nil {
		fatalf("Failed to configure token signer: %v", err)
	}
	hasher := auth.NewHasher(cfg.BcryptCost)
	authService := auth.NewAuthService(hasher, jwtService, accounts, tokens, cfg.LockoutPolicy())

	authHandler := handlers.NewAuthHandler(authService)
	// a nil *sql.DB must not reach the Pinger interface
	healthHandler := handlers.NewHealthHandler(nil)
	if database != nil {
		healthHandler = handlers.NewHealthHandler(database)
	}

	router := httphandler.NewRouter(authHandler, healthHandler, jwtService, httphandler.DefaultRouterConfig)
	defer router.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go runTokenSweeper(ctx, authService, cfg.SweepInterval())

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runTokenSweeper purges expired device tokens until ctx is cancelled
func runTokenSweeper(ctx context.Context, svc *auth.AuthService, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.SweepExpiredTokens(ctx)
			if err != nil {
				continue
			}
			if n > 0 {
				log.Printf("Token sweep removed %d expired device tokens", n)
			}
		}
	}
}

// fatalf reports the startup failure to Sentry before exiting, since log.Fatalf skips deferred flushes
func fatalf(format string, args ...any) {
	err := fmt.Errorf(format, args...)
	observability.CaptureError(err, map[string]string{"phase": "startup"})
	observability.FlushSentry()
	log.Fatal(err)
}
