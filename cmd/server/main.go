/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the GearGuard maintenance scheduling server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, .env, GEARGUARD_* env, YAML) and flags
  2. Build the zap logger
  3. Open the store (sqlite or memory)
  4. Create the Manager with Prometheus metrics
  5. Optionally seed a demo scenario
  6. Configure HTTP router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -addr    Listen address, overrides config (e.g. ":8080")
  -db      SQLite database path, overrides config
           Use ":memory:" for an in-memory database
  -seed    Demo scenario to load at startup (gearguard, gearguard-busy)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (shutdown_timeout, 30s default)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/gearguard.db"

  # Run in memory with the demo plant loaded
  GEARGUARD_STORE=memory ./server -seed=gearguard

SEE ALSO:
  - config/config.go: Configuration sources
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gearguard/maintenance-engine/api"
	"github.com/gearguard/maintenance-engine/config"
	"github.com/gearguard/maintenance-engine/logging"
	"github.com/gearguard/maintenance-engine/metrics"
	"github.com/gearguard/maintenance-engine/scheduling"
	"github.com/gearguard/maintenance-engine/scheduling/store"
	"github.com/gearguard/maintenance-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	seed := flag.String("seed", "", "Demo scenario to load at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *seed != "" {
		cfg.SeedScenario = *seed
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Initialize store
	backend, closeStore, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("store ready", zap.String("kind", cfg.Store), zap.String("path", cfg.DatabasePath))

	// Engine
	opts := []scheduling.ManagerOption{scheduling.WithLogger(logger.Named("scheduling"))}
	routerOpts := api.RouterOptions{AllowedOrigins: cfg.AllowedOrigins}
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, scheduling.WithMetrics(metrics.NewPrometheus(reg, "")))
		routerOpts.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	manager := scheduling.NewManager(backend, opts...)

	// Initialize handler
	handler := api.NewHandler(backend, manager, logger.Named("api"))
	if cfg.SeedScenario != "" {
		if err := handler.Seed(context.Background(), cfg.SeedScenario); err != nil {
			return fmt.Errorf("failed to seed %s: %w", cfg.SeedScenario, err)
		}
	}

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(handler, routerOpts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr), zap.Bool("metrics", cfg.MetricsEnabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openBackend(cfg *config.Config) (api.Backend, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemory(), func() error { return nil }, nil
	default:
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return db, db.Close, nil
	}
}
