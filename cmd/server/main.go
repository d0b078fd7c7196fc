// Package main is the entry point for the rebalance simulation service.
//
// Startup sequence:
//  1. Load configuration from environment variables
//  2. Initialize structured logging
//  3. Open the run-history (ledger profile) and cache databases
//  4. Wire the engine, idempotency guard, workflow service, and policy resolver
//  5. Register the idempotency TTL sweep with the scheduler
//  6. Start the HTTP server and wait for a shutdown signal
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/engine"
	"github.com/aristath/rebalancer/internal/idempotency"
	"github.com/aristath/rebalancer/internal/policy"
	"github.com/aristath/rebalancer/internal/runhistory"
	"github.com/aristath/rebalancer/internal/scheduler"
	"github.com/aristath/rebalancer/internal/server"
	"github.com/aristath/rebalancer/internal/workflow"
	"github.com/aristath/rebalancer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting rebalancer")

	// Run history holds the immutable audit trail, so it gets the safest
	// durability profile. The idempotency cache is evictable and gets the
	// fastest one.
	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Profile: database.ProfileLedger,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDBPath(),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	history, err := runhistory.New(historyDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run history")
	}
	policyRepo, err := policy.NewRepository(historyDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize policy repository")
	}
	idemStore, err := idempotency.NewSQLiteStore(cacheDB.Conn())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize idempotency store")
	}

	eng := engine.New(log)
	guard := idempotency.NewGuard(idemStore, log)
	resolver := policy.NewResolver(policyRepo)
	wfService := workflow.NewService(history, log)

	sched := scheduler.New(log)
	sweep := scheduler.NewIdempotencySweepJob(idemStore, cfg.IdempotencyTTL, log)
	if err := sched.AddJob(cfg.IdempotencySweep, sweep); err != nil {
		log.Fatal().Err(err).Msg("Failed to register idempotency sweep")
	}
	sched.Start()

	// Clear out records that expired while the service was down rather than
	// waiting for the first scheduled sweep.
	if err := sched.RunNow(sweep); err != nil {
		log.Warn().Err(err).Msg("Startup idempotency sweep failed")
	}

	srv := server.New(server.Config{
		Log:    log,
		Config: cfg,
		RebalanceHandlers: server.NewRebalanceHandlers(
			eng, guard, history, resolver, wfService, cfg.DefaultPolicyPack, log),
		PolicyHandlers: server.NewPolicyHandlers(policyRepo, log),
		SystemHandlers: server.NewSystemHandlers(log, historyDB.Conn().Ping),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Shutdown complete")
}
