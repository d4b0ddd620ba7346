/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loyalty accrual server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and LOYALTY_* environment configuration
  2. Parse command-line flags (override port and database path)
  3. Initialize SQLite store and seed the default tier table
  4. Build the recomputer, handler, router and month-end scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: LOYALTY_PORT or 8080)
  -db      SQLite database path (default: LOYALTY_DB_PATH or loyalty.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running pass)
  2. Stop accepting new connections
  3. Wait for active requests (LOYALTY_SHUTDOWN_TIMEOUT)
  4. Stop the worker pool and close the database

EXAMPLES:
  # Run with file database
  ./server -db="./data/loyalty.db"

  # Run with in-memory database, console logs
  LOYALTY_LOG_FORMAT=console ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/text/language"

	"github.com/warp/loyalty-engine/api"
	"github.com/warp/loyalty-engine/config"
	"github.com/warp/loyalty-engine/factory"
	"github.com/warp/loyalty-engine/generic"
	"github.com/warp/loyalty-engine/logger"
	"github.com/warp/loyalty-engine/metrics"
	"github.com/warp/loyalty-engine/store/sqlite"
)

const serviceName = "loyalty-engine"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.Env, "db": *dbPath})

	// Initialize store
	store, err := sqlite.New(*dbPath, sqlite.WithLocation(cfg.Location()))
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	seeded, err := store.SeedTiers(ctx, factory.DefaultTiers())
	if err != nil {
		return fmt.Errorf("seed tier table: %w", err)
	}
	if seeded {
		logg.Info(ctx, "installed default multiplier tiers")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reportMetrics := metrics.NewReportMetrics(reg)

	collation, err := language.Parse(cfg.Collation)
	if err != nil {
		logg.Warn(logg.WithField(ctx, "collation", cfg.Collation), "unknown collation, using pt-BR")
		collation = generic.DefaultCollation
	}

	recomputer := generic.NewRecomputer(store, store, store, generic.RecomputerOptions{
		Workers:  cfg.ReportWorkers,
		MonthKey: cfg.MonthKeyMode(),
		Language: collation,
		Logger:   logg,
		Metrics:  reportMetrics,
	})
	defer recomputer.Close()

	handler := api.NewHandler(store, recomputer, api.HandlerOptions{
		Logger:   logg,
		Metrics:  reportMetrics,
		Location: cfg.Location(),
	})
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Gatherer:    reg,
	})

	scheduler := api.NewReportScheduler(store, handler, cfg.ReportCron)
	scheduler.Enabled = cfg.SchedulerEnabled
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"port":      *port,
			"month_key": string(cfg.MonthKeyMode()),
			"timezone":  cfg.Location().String(),
		}), "server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down server")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logg.Info(ctx, "server stopped")
	return nil
}
