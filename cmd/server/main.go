/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the contribution incentive server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Build the logger
  3. Initialize SQLite store
  4. Seed policies from INCENTIVE_POLICY_FILE when set
  5. Wire audit sinks (store, log, optional mail) behind an async buffer
  6. Create the contribution service, API handler and router
  7. Start the recalculation scheduler
  8. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides INCENTIVE_HTTP_PORT)
  -db      SQLite database path (overrides INCENTIVE_DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Flush buffered audit entries
  5. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/incentives.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  See config/config.go for the full list (INCENTIVE_*, SMTP_*).

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/contribution-engine/api"
	"github.com/warp/contribution-engine/audit"
	"github.com/warp/contribution-engine/config"
	"github.com/warp/contribution-engine/contribution"
	"github.com/warp/contribution-engine/factory"
	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/store/sqlite"
)

const bootstrapActor generic.ActorID = "system:bootstrap"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath

	logger, closeLog, err := cfg.NewLogger(os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer closeLog.Close()

	// Initialize store
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Audit fan out
	sinks := audit.Multi{audit.NewStoreSink(store, logger), audit.NewLogSink(logger)}
	if cfg.Mail.Enabled() {
		sinks = append(sinks, audit.NewMailSink(cfg.Mail, logger))
		logger.Info("audit mail enabled", "to", cfg.Mail.To)
	}
	auditSink := audit.NewAsync(sinks, cfg.AuditBuffer, logger)
	defer auditSink.Close()

	svc := contribution.NewService(store, store, generic.NewLedger(store), auditSink, logger)
	svc.Workers = cfg.RecalcWorkers

	if cfg.PolicyFile != "" {
		if err := loadPolicyFile(context.Background(), svc, cfg.PolicyFile, logger); err != nil {
			return err
		}
	}

	handler := api.NewHandler(svc, store, store, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   cfg.JWTSecret,
		Logger:      logger,
	})
	if cfg.JWTSecret == "" {
		logger.Warn("INCENTIVE_JWT_SECRET not set, trusting X-Actor headers")
	}

	scheduler := api.NewRecalculationScheduler(svc, logger)
	scheduler.CheckInterval = cfg.RecalcInterval
	scheduler.Enabled = cfg.RecalcInterval > 0
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// loadPolicyFile seeds policies from a document. Policies whose id is
// already stored are left alone; policies are immutable once saved.
func loadPolicyFile(ctx context.Context, svc *contribution.Service, path string, logger *slog.Logger) error {
	policies, err := factory.NewPolicyFactory().LoadFile(path)
	if err != nil {
		return err
	}

	created := 0
	for _, p := range policies {
		if _, err := svc.GetPolicy(ctx, p.ID); err == nil {
			logger.Debug("policy already stored, skipping", "id", p.ID)
			continue
		}
		if _, err := svc.CreatePolicy(ctx, bootstrapActor, p); err != nil {
			return fmt.Errorf("failed to create policy %s: %w", p.ID, err)
		}
		created++
	}
	logger.Info("policy file loaded", "path", path, "policies", len(policies), "created", created)
	return nil
}
