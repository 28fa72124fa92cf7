package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vly-payment-engine/internal/api_gateway"
	"github.com/vly-payment-engine/internal/api_gateway/service"
	"github.com/vly-payment-engine/internal/config"
	"github.com/vly-payment-engine/internal/data/memory"
	"github.com/vly-payment-engine/internal/data/mongo"
	"github.com/vly-payment-engine/internal/data/postgres"
	"github.com/vly-payment-engine/internal/engine/dispatcher"
	"github.com/vly-payment-engine/internal/engine/reconciler"
	"github.com/vly-payment-engine/internal/engine/scheduler"
	"github.com/vly-payment-engine/internal/ledger"
	"github.com/vly-payment-engine/internal/logger"
	"github.com/vly-payment-engine/internal/metrics"
	"github.com/vly-payment-engine/internal/platform/messaging/producers"
	"github.com/vly-payment-engine/internal/platform/persistence"
	"github.com/vly-payment-engine/internal/store"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("payment_engine")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Payment Engine",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"store_driver", cfg.Store.Driver,
	)

	// Metrics registry shared by the engine and the /metrics route
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := metrics.New(registry)

	// Initialize the payment store backend
	var (
		backend    store.Backend
		postgresDB *persistence.PostgresDB
	)
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		postgresDB, err = persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
		if err != nil {
			log.Error("Failed to initialize PostgreSQL", "error", err)
			os.Exit(1)
		}
		backend = postgres.NewBackend(log, postgresDB)
	default:
		log.Warn("Using in-memory payment store, state is lost on restart")
		backend = memory.NewBackend(log)
	}

	paymentStore := store.New(backend, store.Options{
		ConfirmationThreshold: cfg.Reconciler.ConfirmationThreshold,
		MaxAttempts:           cfg.Dispatcher.MaxAttempts,
	}, log.With("component", "store"))

	observer := ledger.NewExplorerClient(cfg.Ledger.ExplorerURL, cfg.Ledger.APIKey, cfg.Ledger.Timeout, log.With("component", "ledger"))

	// Permanent delivery failures always reach the log, and the optional sinks when configured
	sinks := dispatcher.Sinks{dispatcher.LogSink{Logger: log.With("component", "dispatcher")}}
	var failureLog service.FailureLog

	var mongoDB *persistence.MongoDB
	if cfg.MongoDB.URI != "" {
		mongoDB, err = persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
		if err != nil {
			log.Error("Failed to initialize MongoDB", "error", err)
			os.Exit(1)
		}
		auditRepo := mongo.NewDeliveryAuditRepository(log, mongoDB.Database())
		if err := auditRepo.EnsureIndexes(appCtx); err != nil {
			log.Warn("Failed to ensure delivery audit indexes", "error", err)
		}
		sinks = append(sinks, auditRepo)
		failureLog = auditRepo
	}

	// dlqProducer is nil if DLQTopic is not configured
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	if dlqProducer != nil {
		sinks = append(sinks, dlqProducer)
	}

	// Initialize the engine loops
	rec, err := reconciler.New(
		paymentStore,
		observer,
		cfg.WorkerPool.Size,
		cfg.Reconciler.ObserverTimeout,
		engineMetrics,
		log.With("component", "reconciler"),
	)
	if err != nil {
		log.Error("Failed to initialize reconciler", "error", err)
		os.Exit(1)
	}

	disp, err := dispatcher.New(
		paymentStore.Queue(),
		paymentStore,
		dispatcher.NewWebhookClient(cfg.Dispatcher.WebhookTimeout, log.With("component", "webhook")),
		sinks,
		dispatcher.Config{
			BatchSize: cfg.Dispatcher.BatchSize,
			PoolSize:  cfg.WorkerPool.Size,
		},
		engineMetrics,
		log.With("component", "dispatcher"),
	)
	if err != nil {
		log.Error("Failed to initialize dispatcher", "error", err)
		os.Exit(1)
	}

	sched, err := scheduler.New(log.With("component", "scheduler"))
	if err != nil {
		log.Error("Failed to initialize scheduler", "error", err)
		os.Exit(1)
	}
	if err := registerLoops(appCtx, sched, cfg, rec, disp); err != nil {
		log.Error("Failed to register engine loops", "error", err)
		os.Exit(1)
	}

	// Initialize services and REST server
	merchantService := service.NewMerchantService(log, paymentStore)
	paymentService := service.NewPaymentService(log, paymentStore, observer, failureLog, cfg.Reconciler.DefaultTTL, engineMetrics)
	server := api_gateway.NewServer(log, cfg, registry, merchantService, paymentService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	sched.Start()

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Stop taking new requests first so nothing creates payments while the loops wind down
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Cancel in-flight cycles, then wait for them. Store mutations already running still commit.
	cancelAppCtx()
	if err := sched.Shutdown(); err != nil {
		log.Error("Error during scheduler shutdown", "error", err)
	}
	rec.Release()
	disp.Release()

	shutdown(shutdownCtx, log, dlqProducer, mongoDB, postgresDB)

	// Final status
	if serverErr != nil {
		log.Error("Payment Engine shutdown with errors", "error", serverErr)
		os.Exit(1)
	}
	log.Info("Payment Engine shutdown completed successfully")
}

func registerLoops(ctx context.Context, sched *scheduler.Scheduler, cfg *config.Config, rec *reconciler.Reconciler, disp *dispatcher.Dispatcher) error {
	if err := sched.Register(ctx, rec, cfg.Reconciler.Interval); err != nil {
		return err
	}
	return sched.Register(ctx, disp, cfg.Dispatcher.Interval)
}

// shutdown closes the external connections. Any of them may be nil.
func shutdown(ctx context.Context, log *slog.Logger, dlqProducer *producers.DLQProducer, mongoDB *persistence.MongoDB, postgresDB *persistence.PostgresDB) {
	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	if mongoDB != nil {
		if err := mongoDB.Close(ctx); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	}

	// Shutdown postgres connection pool
	if postgresDB != nil {
		postgresDB.Close()
	}
}
