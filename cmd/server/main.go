// Package main is the entry point for the pharmstock API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pharmstock/internal/config"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/billing"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/domain/payment"
	"pharmstock/internal/domain/transport"
	"pharmstock/internal/core/tx"
	v1 "pharmstock/internal/infrastructure/http/v1"
	"pharmstock/internal/infrastructure/http/v1/handlers"
	"pharmstock/internal/infrastructure/storage/memory"
	"pharmstock/internal/infrastructure/storage/postgres"
	"pharmstock/pkg/logger"
	"pharmstock/pkg/numerator"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting pharmstock server", "driver", cfg.StorageDriver)

	wiring, cleanup, err := buildStorage(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize storage", "error", err)
	}
	defer cleanup()

	num := numerator.New(wiring.sequencer)
	billService := billing.NewService(wiring.billRepo, wiring.ledgerRepo, num, wiring.txManager, wiring.audit)
	transportService := transport.NewService(wiring.transportRepo, wiring.ledgerRepo, num, wiring.txManager, wiring.audit)
	paymentService := payment.NewService(wiring.paymentRepo, wiring.billRepo, num, wiring.txManager, wiring.audit)
	ledgerService := ledger.NewService(wiring.ledgerRepo)

	router := v1.NewRouter(v1.RouterConfig{
		Logger:     log,
		Storage:    wiring.pinger,
		Version:    cfg.App.Version,
		Bills:      billService,
		Ledger:     ledgerService,
		Transports: transportService,
		Payments:   paymentService,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// storageWiring bundles the driver-specific pieces the services need.
type storageWiring struct {
	txManager     tx.Manager
	ledgerRepo    ledger.Repository
	billRepo      billing.Repository
	transportRepo transport.Repository
	paymentRepo   payment.Repository
	sequencer     numerator.Sequencer
	audit         domain.AuditLogger

	// pinger backs the readiness probe; nil for the memory driver.
	pinger handlers.Pinger
}

func buildStorage(ctx context.Context, cfg *config.Config) (*storageWiring, func(), error) {
	switch cfg.StorageDriver {
	case "postgres":
		poolCfg := postgres.DefaultPoolConfig(cfg.ConnectionString())
		poolCfg.MaxConns = cfg.DB.MaxConns
		poolCfg.MinConns = cfg.DB.MinConns

		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}

		txm := postgres.NewTxManager(pool)
		audit, err := postgres.NewAuditStore(txm)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}

		return &storageWiring{
			txManager:     txm,
			ledgerRepo:    postgres.NewBatchRepo(txm),
			billRepo:      postgres.NewBillRepo(txm),
			transportRepo: postgres.NewTransportRepo(txm),
			paymentRepo:   postgres.NewPaymentRepo(txm),
			sequencer:     postgres.NewSequenceRepo(txm),
			audit:         audit,
			pinger:        pool,
		}, pool.Close, nil

	case "memory":
		store := memory.NewStore()
		return &storageWiring{
			txManager:     memory.NewTxManager(store),
			ledgerRepo:    memory.NewLedgerRepo(store),
			billRepo:      memory.NewBillRepo(store),
			transportRepo: memory.NewTransportRepo(store),
			paymentRepo:   memory.NewPaymentRepo(store),
			sequencer:     memory.NewSequencer(store),
			audit:         domain.NopAuditLogger{},
		}, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
