/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fleet fuel engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and parse command-line flags
  2. Initialize SQLite store
  3. Seed default roles and the bootstrap admin account
  4. Build the engine (passenger + fire truck calculators)
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION:
  -port         HTTP server port (default: 8080, env PORT)
  -db           SQLite database path (default: fuel.db, env DB_PATH)
                Use ":memory:" for an in-memory database
  JWT_SECRET    HMAC secret for bearer tokens (required outside dev)
  ADMIN_LOGIN / ADMIN_PASSWORD
                Bootstrap admin credentials, created only when the user
                table is empty (defaults: admin / admin)
  LOG_LEVEL     logrus level (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/warp/fuel-engine/api"
	"github.com/warp/fuel-engine/auth"
	"github.com/warp/fuel-engine/firetruck"
	"github.com/warp/fuel-engine/fleet"
	"github.com/warp/fuel-engine/passenger"
	"github.com/warp/fuel-engine/signing"
	"github.com/warp/fuel-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "fuel.db"), "SQLite database path")
	flag.Parse()

	log := logrus.New()
	if level, err := logrus.ParseLevel(envStr("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(level)
	}

	secret := envStr("JWT_SECRET", "")
	if secret == "" {
		secret = "dev-secret-change-me"
		log.Warn("JWT_SECRET not set, using insecure dev secret")
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	ctx := context.Background()
	if err := signing.EnsureDefaults(ctx, store, log); err != nil {
		log.WithError(err).Fatal("failed to seed default roles")
	}
	if err := bootstrapAdmin(ctx, store, log); err != nil {
		log.WithError(err).Fatal("failed to bootstrap admin account")
	}

	engine := fleet.NewEngine(store, passenger.New(), firetruck.New())
	engine.Audit = store
	engine.Log = log

	handler := api.NewHandler(engine, store, store, auth.NewTokenIssuer(secret))
	handler.Log = log
	handler.Flow.Log = log

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}

// bootstrapAdmin creates the initial administrator account when the user
// table is empty, so a fresh install can log in.
func bootstrapAdmin(ctx context.Context, store signing.Store, log logrus.FieldLogger) error {
	users, err := store.ListUsers(ctx, fleet.WithDeleted)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	role, err := store.FindRoleByName(ctx, signing.RoleAdministrator)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("administrator role missing after seeding")
	}

	login := envStr("ADMIN_LOGIN", "admin")
	hash, err := auth.HashPassword(envStr("ADMIN_PASSWORD", "admin"))
	if err != nil {
		return err
	}

	admin := &signing.User{
		Name:         "Administrator",
		Login:        login,
		PasswordHash: hash,
		RoleID:       role.ID,
	}
	if err := store.SaveUser(ctx, admin); err != nil {
		return err
	}
	log.WithField("login", login).Info("bootstrap admin account created")
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
