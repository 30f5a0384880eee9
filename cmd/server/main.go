/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the bake cost tracker server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env vars, optional .env file)
  2. Build the root logger
  3. Open the SQLite store
  4. Wire engines and services
  5. Start the HTTP server with graceful shutdown

CONFIGURATION:
  APP_ENV             development | staging | production
  HTTP_PORT           Listen port (default: 8080)
  DB_PATH             SQLite database path (default: bake-tracker.db,
                      ":memory:" for in-memory)
  LOG_LEVEL           trace | debug | info | warn | error
  COSTING_MAX_DEPTH   Composition recursion bound (default: 32)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kentonium3/bake-tracker-sub019/api"
	"github.com/kentonium3/bake-tracker-sub019/catalog"
	"github.com/kentonium3/bake-tracker-sub019/costing"
	"github.com/kentonium3/bake-tracker-sub019/factory"
	"github.com/kentonium3/bake-tracker-sub019/pkg/config"
	"github.com/kentonium3/bake-tracker-sub019/pkg/logger"
	"github.com/kentonium3/bake-tracker-sub019/production"
	"github.com/kentonium3/bake-tracker-sub019/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("failed to initialize database")
	}
	defer store.Close()

	// Engines and services
	fifo := costing.NewDepletionEngine(log)
	avg := costing.NewAverageEngine()
	agg := costing.NewAggregator(fifo, avg, cfg.Costing.MaxDepth, log)

	cat := catalog.NewService(store, log)
	prod := production.NewService(store, agg, fifo, avg, log)
	fac := factory.NewCatalogFactory(cat, prod, log)

	handler := api.NewHandler(store, cat, prod, fac)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.HTTP.Addr()).
			Str("db", cfg.DB.Path).
			Str("env", cfg.App.Env).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
