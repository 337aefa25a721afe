package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kislikjeka/pocketledger/internal/analytics"
	"github.com/kislikjeka/pocketledger/internal/appstate"
	"github.com/kislikjeka/pocketledger/internal/backup"
	"github.com/kislikjeka/pocketledger/internal/infra/backend"
	"github.com/kislikjeka/pocketledger/internal/ledger"
	"github.com/kislikjeka/pocketledger/internal/migration"
	"github.com/kislikjeka/pocketledger/internal/profile"
	"github.com/kislikjeka/pocketledger/internal/transport/httpapi"
	"github.com/kislikjeka/pocketledger/internal/transport/httpapi/handler"
	"github.com/kislikjeka/pocketledger/pkg/clock"
	"github.com/kislikjeka/pocketledger/pkg/config"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

func main() {
	// A missing .env is fine; the environment may be set another way
	_ = godotenv.Load()

	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting pocketledger API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreBackend,
	)

	// Open the store
	store, err := backend.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("Store opened", "backend", cfg.StoreBackend)

	// Repair legacy records before anything reads the ledger
	report, err := migration.NewMigrator(store, log).Run(ctx)
	if err != nil {
		log.Error("Failed to migrate ledger", "error", err)
		os.Exit(1)
	}
	log.Info("Ledger migration finished", "changed", report.Changed())

	// Change events
	publisher, publisherCloser, err := backend.OpenPublisher(cfg, log)
	if err != nil {
		log.Error("Failed to connect to message broker", "error", err)
		os.Exit(1)
	}
	defer publisherCloser.Close()
	if cfg.AMQPURL == "" {
		log.Warn("AMQP_URL not configured, change events disabled")
	}

	// Backup sink
	sink, sinkCloser, err := backend.OpenSink(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open backup sink", "error", err)
		os.Exit(1)
	}
	defer sinkCloser.Close()

	// Initialize services
	clk := clock.System{}
	ledgerSvc := ledger.NewService(store,
		ledger.WithPublisher(publisher),
		ledger.WithClock(clk),
		ledger.WithLogger(log),
	)
	analyticsSvc := analytics.NewService(ledgerSvc)
	profileSvc := profile.NewService(store)
	backupOpts := []backup.Option{
		backup.WithPublisher(publisher),
		backup.WithClock(clk),
		backup.WithLogger(log),
	}
	if sink != nil {
		backupOpts = append(backupOpts, backup.WithSink(sink))
	}
	backupSvc := backup.NewService(store, backupOpts...)

	// The cache is the only write surface of the HTTP layer
	cache := appstate.NewCache(ledgerSvc, analyticsSvc, clk, log)
	if err := cache.Reload(ctx); err != nil {
		log.Error("Failed to load ledger", "error", err)
		os.Exit(1)
	}

	if discrepancies, err := ledgerSvc.Reconcile(ctx); err != nil {
		log.Warn("Startup reconciliation failed", "error", err)
	} else if len(discrepancies) > 0 {
		log.Warn("Ledger balances disagree with history", "accounts", len(discrepancies))
	}

	// Create HTTP router
	r := httpapi.NewRouter(httpapi.Config{
		Logger:             log,
		AllowedOrigins:     cfg.AllowedOrigins,
		AllowLocalhost:     cfg.IsDevelopment(),
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		AccountHandler:     handler.NewAccountHandler(cache, ledgerSvc),
		TransactionHandler: handler.NewTransactionHandler(cache, ledgerSvc, clk),
		StatsHandler:       handler.NewStatsHandler(cache, analyticsSvc, ledgerSvc, clk),
		BackupHandler:      handler.NewBackupHandler(backupSvc, cache, migration.NewMigrator(store, log)),
		ProfileHandler:     handler.NewProfileHandler(profileSvc),
		HealthHandler:      handler.NewHealthHandler(store, cfg.StoreBackend).WithLedger(ledgerSvc).WithBackups(backupSvc),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
