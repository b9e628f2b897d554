/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the carton stock ledger server: configuration,
  storage, catalog seeding, dependency wiring, graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env CARTON_*, optional carton.yaml)
  2. Open the SQLite store and migrate the schema
  3. Seed the two location roles if missing
  4. Wire engine, reporter, handler, router
  5. Serve HTTP with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  in-flight requests, close the database, exit.

EXAMPLES:
  CARTON_DB_PATH=./data/cartons.db ./server
  CARTON_HTTP_PORT=3000 CARTON_LOG_LEVEL=debug ./server
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/packline/carton-ledger/api"
	"github.com/packline/carton-ledger/config"
	"github.com/packline/carton-ledger/ledger"
	"github.com/packline/carton-ledger/logger"
	"github.com/packline/carton-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.Log.Level)

	st, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	// The two location roles must exist before the engine can route
	// production and transfer entries.
	ctx := context.Background()
	if err := st.AddLocation(ctx, ledger.Location{ID: cfg.Locations.Production(), Name: cfg.Locations.ProductionName}); err != nil {
		log.Fatal().Err(err).Msg("seed production location")
	}
	if err := st.AddLocation(ctx, ledger.Location{ID: cfg.Locations.Storage(), Name: cfg.Locations.StorageName}); err != nil {
		log.Fatal().Err(err).Msg("seed storage location")
	}

	engine := ledger.NewEngine(st, st, cfg.Locations.Production(), cfg.Locations.Storage(), log)
	reporter := ledger.NewReporter(st, st, cfg.Locations.Production(), cfg.Locations.Storage())
	handler := api.NewHandler(engine, reporter, st, log)
	router := api.NewRouter(handler, cfg.HTTP.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTP.Port).Str("db", cfg.DB.Path).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}
